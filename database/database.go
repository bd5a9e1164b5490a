// Package database opens the bun handle shared by record stores.
package database

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jmgilman/go/errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config selects the driver and connection.
type Config struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	TablePrefix  string `yaml:"table_prefix"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// DefaultConfig returns an in-memory sqlite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLite,
		DSN:          ":memory:",
		TablePrefix:  "broiler_",
		MaxOpenConns: 1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
	)
}

// Open validates cfg and returns a bun handle for it. Queries are logged to
// logger at debug level when logger is not nil. The connection is opened
// lazily.
func Open(cfg Config, logger *slog.Logger) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid database configuration")
	}

	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeDatabase, "failed to open database",
			map[string]interface{}{"driver": cfg.Driver})
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverPostgres:
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if logger != nil {
		db.AddQueryHook(NewQueryLogger(logger))
	}
	return db, nil
}

// QueryLogger is a bun.QueryHook writing every query to slog.
type QueryLogger struct {
	logger *slog.Logger
}

var _ bun.QueryHook = (*QueryLogger)(nil)

// NewQueryLogger creates a QueryLogger.
func NewQueryLogger(logger *slog.Logger) *QueryLogger {
	return &QueryLogger{logger: logger}
}

func (h *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	attrs := []any{
		"operation", event.Operation(),
		"query", event.Query,
		"duration", time.Since(event.StartTime),
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.logger.WarnContext(ctx, "query failed", append(attrs, "error", event.Err)...)
		return
	}
	h.logger.DebugContext(ctx, "query", attrs...)
}
