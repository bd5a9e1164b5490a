package di

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/goliatone/go-broiler/api"
	"github.com/goliatone/go-broiler/cache"
	"github.com/goliatone/go-broiler/config"
	"github.com/goliatone/go-broiler/database"
	"github.com/goliatone/go-broiler/hooks"
	"github.com/goliatone/go-broiler/option"
	"github.com/goliatone/go-broiler/recordstore"
	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// Container wires the shared components of the application from one
// config.Config: logger, database handle, cache backend and registry,
// hooks, key serializer, options store and prometheus registry.
// Record stores and APIs are added with NewStore and RegisterAPI.
type Container struct {
	config        config.Config
	logger        *slog.Logger
	db            *bun.DB
	cacheService  cache.CacheService
	registry      *cache.Registry
	keySerializer cache.KeySerializer
	hooks         *hooks.Dispatcher
	options       *option.Store
	prometheus    *prometheus.Registry

	mu     sync.Mutex
	tables []func(context.Context) error
	apis   []api.API
}

// Option customises a Container.
type Option func(*Container)

// WithLogger replaces the logger built from config.Log.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDB uses db instead of opening config.Database.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// NewContainer validates cfg and builds every shared component.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config:     cfg,
		logger:     cfg.Log.NewLogger(os.Stderr),
		hooks:      hooks.New(),
		prometheus: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.db == nil {
		db, err := database.Open(cfg.Database, c.logger)
		if err != nil {
			return nil, err
		}
		c.db = db
	}

	cacheService, err := cache.NewCacheService(cfg.Cache)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to create cache service")
	}
	c.cacheService = cacheService

	c.registry = cache.NewRegistry(cacheService,
		cache.WithLogger(c.logger),
		cache.WithMetrics(cache.NewMetrics(c.prometheus)),
	)
	c.keySerializer = cache.NewDefaultKeySerializer()

	c.options = option.New(c.db, c.registry,
		option.WithNamespace(cfg.Options.Namespace),
		option.WithTablePrefix(cfg.Database.TablePrefix),
		option.WithCacheTime(cfg.Options.CacheTime),
		option.WithLogger(c.logger),
	)
	c.tables = append(c.tables, c.options.Init)

	return c, nil
}

// NewContainerWithDefaults creates a container from config.Default.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(config.Default())
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Logger returns the process logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// DB returns the database handle.
func (c *Container) DB() *bun.DB {
	return c.db
}

// CacheService returns the singleton cache backend.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// Registry returns the cache registry shared by every store.
func (c *Container) Registry() *cache.Registry {
	return c.registry
}

// KeySerializer returns the singleton key serializer.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Hooks returns the dispatcher shared by every store.
func (c *Container) Hooks() *hooks.Dispatcher {
	return c.hooks
}

// Options returns the options store.
func (c *Container) Options() *option.Store {
	return c.options
}

// Gatherer returns the prometheus registry holding the cache metrics.
func (c *Container) Gatherer() prometheus.Gatherer {
	return c.prometheus
}

// NewStore creates a record store for M wired to the container and
// schedules its table for CreateTables.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewStore[models.ExampleModel](container)
func NewStore[M recordstore.Model](c *Container, opts ...recordstore.Option) *recordstore.Store[M] {
	base := []recordstore.Option{
		recordstore.WithHooks(c.hooks),
		recordstore.WithLogger(c.logger),
		recordstore.WithKeySerializer(c.keySerializer),
		recordstore.WithTablePrefix(c.config.Database.TablePrefix),
		recordstore.WithDefaultCacheTime(c.config.Cache.DefaultTTL),
	}
	store := recordstore.New[M](c.db, c.registry, append(base, opts...)...)

	c.mu.Lock()
	c.tables = append(c.tables, store.Init)
	c.mu.Unlock()
	return store
}

// RegisterAPI adds apis to every server created by NewServer.
func (c *Container) RegisterAPI(apis ...api.API) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apis = append(c.apis, apis...)
}

// CreateTables creates the options table and the table of every store.
func (c *Container) CreateTables(ctx context.Context) error {
	c.mu.Lock()
	tables := append([]func(context.Context) error(nil), c.tables...)
	c.mu.Unlock()

	for _, create := range tables {
		if err := create(ctx); err != nil {
			return err
		}
	}
	return nil
}

// NewServer creates an API server with every registered API.
func (c *Container) NewServer() *api.Server {
	server := api.NewServer(api.Config{
		Addr:           c.config.HTTP.Addr,
		Token:          c.config.HTTP.Token,
		AllowedOrigins: c.config.HTTP.AllowedOrigins,
	}, api.WithLogger(c.logger), api.WithGatherer(c.prometheus))

	c.mu.Lock()
	apis := append([]api.API(nil), c.apis...)
	c.mu.Unlock()

	server.Register(apis...)
	return server
}

// Close releases the database and the cache backend.
func (c *Container) Close() error {
	var errs []error
	if closer, ok := c.cacheService.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Wrap(stderrors.Join(errs...), errors.CodeInternal, "failed to close container")
	}
	return nil
}
