package cacheinfra

import (
	"context"
	"reflect"
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc cache adapter.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Higher values improve concurrency but increase memory overhead.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the upper bound for the lifetime of any entry, including the
	// ones written without an expiry. Per-entry TTLs larger than this are
	// truncated by the underlying client.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	// Default: 10 (evict 10% of entries)
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                time.Hour,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included in the options.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// DecodeError is returned when a cached value cannot be written into the
// destination supplied by the caller.
type DecodeError struct {
	Key     string
	Message string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return "cannot decode cache entry " + e.Key + ": " + e.Message
}

// groupSeparator joins group and key into the flat key space of the backends.
const groupSeparator = "::"

func groupKey(group, key string) string {
	return group + groupSeparator + key
}

// entry carries the per-entry deadline next to the stored value, since
// sturdyc only knows about the client-wide TTL.
type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// sturdycService wraps a sturdyc client and implements the group aware
// key/value primitive the cache registry is built on.
type sturdycService struct {
	client *sturdyc.Client[entry]
	now    func() time.Time
}

// SturdycOption customises the in-process service.
type SturdycOption func(*sturdycService)

// WithClock replaces the time source used for per-entry expiry.
func WithClock(now func() time.Time) SturdycOption {
	return func(s *sturdycService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSturdycService creates a new sturdyc cache service adapter.
// It validates the configuration and initializes a sturdyc client with the provided settings.
//
// Values are kept as-is, so a read returns the very value that was written.
// Every write refreshes the entry in the client, so an entry that is
// rewritten at least as often as the entries it describes (the registry
// index) always outlives them.
func NewSturdycService(cfg Config, opts ...SturdycOption) (*sturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	s := &sturdycService{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get reads the entry stored under (key, group) into dest, which must be a
// non-nil pointer to a type the stored value is assignable to.
func (s *sturdycService) Get(ctx context.Context, key, group string, dest any) (bool, error) {
	k := groupKey(group, key)
	e, ok := s.client.Get(k)
	if !ok {
		return false, nil
	}

	if e.expired(s.now()) {
		s.client.Delete(k)
		return false, nil
	}

	if err := assign(k, dest, e.value); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under (key, group). A ttl <= 0 stores the entry without
// a per-entry deadline.
func (s *sturdycService) Set(ctx context.Context, key, group string, value any, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.client.Set(groupKey(group, key), e)
	return nil
}

// Delete removes a single entry. Deleting a missing entry is not an error.
func (s *sturdycService) Delete(ctx context.Context, key, group string) error {
	s.client.Delete(groupKey(group, key))
	return nil
}

// Size reports the number of entries currently held by the client.
func (s *sturdycService) Size() int {
	return s.client.Size()
}

// assign copies value into the pointer dest using reflection.
func assign(key string, dest, value any) error {
	if dest == nil {
		return &DecodeError{Key: key, Message: "destination cannot be nil"}
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return &DecodeError{Key: key, Message: "destination must be a non-nil pointer"}
	}

	target := dv.Elem()
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	vv := reflect.ValueOf(value)
	if !vv.Type().AssignableTo(target.Type()) {
		return &DecodeError{
			Key:     key,
			Message: vv.Type().String() + " is not assignable to " + target.Type().String(),
		}
	}

	target.Set(vv)
	return nil
}
