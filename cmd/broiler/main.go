package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-broiler/api"
	"github.com/goliatone/go-broiler/config"
	"github.com/goliatone/go-broiler/models"
	"github.com/goliatone/go-broiler/pkg/di"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "broiler:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "", "listen address, overrides http.addr")
	flag.Parse()

	load := config.LoadDefault
	if *configPath != "" {
		load = func() (config.Config, error) { return config.Load(*configPath) }
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	container, err := di.NewContainer(cfg, di.WithLogger(logger))
	if err != nil {
		return err
	}
	defer container.Close()

	examples := di.NewStore[models.ExampleModel](container)
	container.RegisterAPI(api.ExampleAPI{}, api.NewRecordsAPI(examples, ""))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := container.CreateTables(ctx); err != nil {
		return err
	}

	server := container.NewServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
