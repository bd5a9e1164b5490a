// Package config loads the application configuration from YAML.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-broiler/cache"
	"github.com/goliatone/go-broiler/database"
	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"
)

// TokenEnv overrides HTTP.Token when set.
const TokenEnv = "BROILER_API_TOKEN"

// Config aggregates the settings of every component.
type Config struct {
	Database database.Config `yaml:"database"`
	Cache    cache.Config    `yaml:"cache"`
	HTTP     HTTPConfig      `yaml:"http"`
	Options  OptionsConfig   `yaml:"options"`
	Log      LogConfig       `yaml:"log"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	Token           string        `yaml:"token"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OptionsConfig configures the options store.
type OptionsConfig struct {
	Namespace string        `yaml:"namespace"`
	CacheTime time.Duration `yaml:"cache_time"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs on in-memory sqlite with the
// in-process cache.
func Default() Config {
	return Config{
		Database: database.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8080",
			AllowedOrigins:  []string{"http://127.0.0.1:5173", "http://localhost:5173"},
			ShutdownTimeout: 10 * time.Second,
		},
		Options: OptionsConfig{
			Namespace: "broiler",
			CacheTime: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to read config",
			map[string]interface{}{"path": path})
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse config")
	}

	return finish(cfg)
}

// LoadDefault returns Default with the environment overrides applied, for
// runs without a config file.
func LoadDefault() (Config, error) {
	return finish(Default())
}

// finish applies the environment overrides and validates.
func finish(cfg Config) (Config, error) {
	if token := os.Getenv(TokenEnv); token != "" {
		cfg.HTTP.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid database configuration")
	}
	if err := c.Cache.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid cache configuration")
	}

	err := validation.ValidateStruct(&c.HTTP,
		validation.Field(&c.HTTP.Addr, validation.Required),
		validation.Field(&c.HTTP.AllowedOrigins, validation.Each(validation.Required, is.URL)),
		validation.Field(&c.HTTP.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid http configuration")
	}

	err = validation.ValidateStruct(&c.Options,
		validation.Field(&c.Options.Namespace, validation.Required),
		validation.Field(&c.Options.CacheTime, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid options configuration")
	}

	err = validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Log.Format, validation.In("text", "json")),
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid log configuration")
	}
	return nil
}

// NewLogger builds a slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
