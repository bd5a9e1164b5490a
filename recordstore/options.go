package recordstore

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-broiler/cache"
	"github.com/goliatone/go-broiler/hooks"
)

const (
	// DefaultTablePrefix is prepended to the short name of every table.
	DefaultTablePrefix = "broiler_"
	// DefaultCacheTime is how long read results stay cached.
	DefaultCacheTime = 5 * time.Minute
)

type storeOptions struct {
	hooks       *hooks.Dispatcher
	logger      *slog.Logger
	tablePrefix string
	cacheTime   time.Duration
	keys        cache.KeySerializer
}

// Option configures a Store.
type Option func(*storeOptions)

// WithHooks attaches a dispatcher for query filters and write actions.
func WithHooks(d *hooks.Dispatcher) Option {
	return func(o *storeOptions) {
		o.hooks = d
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTablePrefix replaces DefaultTablePrefix.
func WithTablePrefix(prefix string) Option {
	return func(o *storeOptions) {
		o.tablePrefix = prefix
	}
}

// WithDefaultCacheTime replaces DefaultCacheTime for every read of the store.
func WithDefaultCacheTime(d time.Duration) Option {
	return func(o *storeOptions) {
		o.cacheTime = d
	}
}

// WithKeySerializer sets the serializer used for the well-known cache keys.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(o *storeOptions) {
		if s != nil {
			o.keys = s
		}
	}
}

type readOptions struct {
	noCache bool
	key     string
	ttl     time.Duration
	hasTTL  bool
}

// ReadOption adjusts a single read.
type ReadOption func(*readOptions)

// WithoutCache skips the cache lookup and does not store the result.
func WithoutCache() ReadOption {
	return func(o *readOptions) {
		o.noCache = true
	}
}

// WithCacheKey stores the result under key instead of the default key.
func WithCacheKey(key string) ReadOption {
	return func(o *readOptions) {
		o.key = key
	}
}

// WithCacheTime overrides the cache time of one read.
func WithCacheTime(d time.Duration) ReadOption {
	return func(o *readOptions) {
		o.ttl = d
		o.hasTTL = true
	}
}
