// Package option stores namespaced application settings in the database.
//
// Values are encoded with msgpack, so any value msgpack can round-trip can be
// stored. Reads go through the cache registry under the "options" group.
package option

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-broiler/cache"
	"github.com/jmgilman/go/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// Group is the cache group of every option.
	Group = "options"
	// DefaultNamespace prefixes every key.
	DefaultNamespace = "broiler"
	// DefaultCacheTime is how long a read option stays cached.
	DefaultCacheTime = time.Hour
)

// Store reads and writes options.
type Store struct {
	db        bun.IDB
	registry  *cache.Registry
	logger    *slog.Logger
	namespace string
	table     string
	cacheTime time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace replaces DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		s.namespace = namespace
	}
}

// WithTablePrefix sets the prefix of the options table.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) {
		s.table = prefix + "options"
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCacheTime replaces DefaultCacheTime.
func WithCacheTime(d time.Duration) Option {
	return func(s *Store) {
		s.cacheTime = d
	}
}

// New creates an option store. registry may be nil, which disables caching.
func New(db bun.IDB, registry *cache.Registry, opts ...Option) *Store {
	s := &Store{
		db:        db,
		registry:  registry,
		logger:    slog.New(slog.DiscardHandler),
		namespace: DefaultNamespace,
		table:     "broiler_options",
		cacheTime: DefaultCacheTime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the options table name.
func (s *Store) Table() string {
	return s.table
}

// NamespacedKey returns the stored name of key.
func (s *Store) NamespacedKey(key string) string {
	return s.namespace + "_" + key
}

// Init creates the options table when it does not exist.
func (s *Store) Init(ctx context.Context) error {
	valueType := "BLOB"
	if s.db.Dialect().Name() == dialect.PG {
		valueType = "BYTEA"
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	name VARCHAR(191) PRIMARY KEY,
	value %s NOT NULL
)`, s.table, valueType)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapWithContext(err, errors.CodeDatabase, "failed to create options table",
			map[string]interface{}{"table": s.table})
	}
	return nil
}

// Get decodes the option stored for key into dest and reports whether it
// exists.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	name := s.NamespacedKey(key)

	raw, found, err := s.load(ctx, name)
	if err != nil || !found {
		return false, err
	}

	if err := msgpack.Unmarshal(raw, dest); err != nil {
		return false, errors.WrapWithContext(err, errors.CodeInternal, "failed to decode option",
			map[string]interface{}{"name": name})
	}
	return true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	name := s.NamespacedKey(key)

	raw, err := msgpack.Marshal(value)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeInvalidInput, "failed to encode option",
			map[string]interface{}{"name": name})
	}

	values := map[string]interface{}{"name": name, "value": raw}
	_, err = s.db.NewInsert().
		Model(&values).
		TableExpr("?", bun.Ident(s.table)).
		On("CONFLICT (?) DO UPDATE", bun.Ident("name")).
		Set("? = EXCLUDED.?", bun.Ident("value"), bun.Ident("value")).
		Exec(ctx)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeDatabase, "failed to store option",
			map[string]interface{}{"name": name})
	}

	s.forget(ctx, name)
	return nil
}

// Delete removes the option stored for key. Deleting a missing option is not
// an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	name := s.NamespacedKey(key)

	_, err := s.db.NewDelete().
		TableExpr("?", bun.Ident(s.table)).
		Where("? = ?", bun.Ident("name"), name).
		Exec(ctx)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeDatabase, "failed to delete option",
			map[string]interface{}{"name": name})
	}

	s.forget(ctx, name)
	return nil
}

func (s *Store) load(ctx context.Context, name string) ([]byte, bool, error) {
	if s.registry != nil {
		var cached []byte
		if s.registry.Get(ctx, name, Group, &cached) {
			return cached, true, nil
		}
	}

	var rows []map[string]interface{}
	err := s.db.NewSelect().
		TableExpr("?", bun.Ident(s.table)).
		ColumnExpr("?", bun.Ident("value")).
		Where("? = ?", bun.Ident("name"), name).
		Limit(1).
		Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, errors.WrapWithContext(err, errors.CodeDatabase, "failed to read option",
			map[string]interface{}{"name": name})
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	var raw []byte
	switch v := rows[0]["value"].(type) {
	case []byte:
		raw = append([]byte(nil), v...)
	case string:
		raw = []byte(v)
	default:
		return nil, false, errors.WithContextMap(errors.New(errors.CodeInternal, "unexpected option column type"),
			map[string]interface{}{"name": name, "type": fmt.Sprintf("%T", v)})
	}

	if s.registry != nil {
		if err := s.registry.Set(ctx, name, Group, raw, s.cacheTime); err != nil {
			s.logger.WarnContext(ctx, "option cache write skipped", "name", name, "error", err)
		}
	}
	return raw, true, nil
}

func (s *Store) forget(ctx context.Context, name string) {
	if s.registry == nil {
		return
	}
	if err := s.registry.ClearKey(ctx, name, Group); err != nil {
		s.logger.WarnContext(ctx, "option cache invalidation failed", "name", name, "error", err)
	}
}
