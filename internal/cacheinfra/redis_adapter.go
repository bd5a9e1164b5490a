package cacheinfra

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisConfig holds the connection settings for the redis adapter.
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	Prefix      string
	DialTimeout time.Duration
}

// DefaultRedisConfig returns settings for a local redis instance.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "127.0.0.1:6379",
		Prefix:      "broiler",
		DialTimeout: 5 * time.Second,
	}
}

// Validate checks if the redis configuration values are valid.
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return &ConfigError{Field: "Redis.Addr", Message: "cannot be empty"}
	}
	if c.DB < 0 {
		return &ConfigError{Field: "Redis.DB", Message: "must be non-negative"}
	}
	if c.DialTimeout < 0 {
		return &ConfigError{Field: "Redis.DialTimeout", Message: "must be non-negative"}
	}
	return nil
}

// redisService stores msgpack encoded values in redis. Expiry is delegated
// to redis, so entries written without a ttl never expire.
type redisService struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisService creates a redis backed cache service from cfg.
func NewRedisService(cfg RedisConfig) (*redisService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	return NewRedisServiceFromClient(client, cfg.Prefix), nil
}

// NewRedisServiceFromClient wraps an existing client.
func NewRedisServiceFromClient(client redis.UniversalClient, prefix string) *redisService {
	return &redisService{client: client, prefix: prefix}
}

func (s *redisService) key(key, group string) string {
	k := groupKey(group, key)
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Get decodes the entry stored under (key, group) into dest.
// Numbers held in untyped destinations come back as int64, uint64 or float64.
func (s *redisService) Get(ctx context.Context, key, group string, dest any) (bool, error) {
	k := s.key(key, group)
	data, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(dest); err != nil {
		return false, &DecodeError{Key: k, Message: err.Error()}
	}
	return true, nil
}

// Set encodes value and stores it under (key, group).
func (s *redisService) Set(ctx context.Context, key, group string, value any, ttl time.Duration) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(false)
	if err := enc.Encode(value); err != nil {
		return err
	}

	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.key(key, group), buf.Bytes(), ttl).Err()
}

// Delete removes a single entry.
func (s *redisService) Delete(ctx context.Context, key, group string) error {
	return s.client.Del(ctx, s.key(key, group)).Err()
}

// Close releases the underlying connection pool.
func (s *redisService) Close() error {
	return s.client.Close()
}
