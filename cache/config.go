package cache

import (
	"time"

	"github.com/goliatone/go-broiler/internal/cacheinfra"
)

// Supported cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend string `yaml:"backend"`

	// DefaultTTL is the lifetime of cached query results when neither the
	// store nor the call overrides it.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig mirrors the redis adapter settings.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig(), cacheinfra.DefaultRedisConfig())
	cfg.Backend = BackendMemory
	cfg.DefaultTTL = 5 * time.Minute
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.DefaultTTL < 0 {
		return &cacheinfra.ConfigError{Field: "DefaultTTL", Message: "must be non-negative"}
	}

	switch c.Backend {
	case BackendMemory, "":
		return c.toInternal().Validate()
	case BackendRedis:
		return c.toInternalRedis().Validate()
	default:
		return &cacheinfra.ConfigError{Field: "Backend", Message: "must be one of memory, redis"}
	}
}

// NewCacheService constructs the configured cache service implementation.
func NewCacheService(cfg Config) (CacheService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendRedis {
		return cacheinfra.NewRedisService(cfg.toInternalRedis())
	}
	return cacheinfra.NewSturdycService(cfg.toInternal())
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func (c Config) toInternalRedis() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Addr:        c.Redis.Addr,
		Username:    c.Redis.Username,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		Prefix:      c.Redis.Prefix,
		DialTimeout: c.Redis.DialTimeout,
	}
}

func convertFromInternal(cfg cacheinfra.Config, redis cacheinfra.RedisConfig) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
		Redis: RedisConfig{
			Addr:        redis.Addr,
			Username:    redis.Username,
			Password:    redis.Password,
			DB:          redis.DB,
			Prefix:      redis.Prefix,
			DialTimeout: redis.DialTimeout,
		},
	}
}
