package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-broiler/internal/cacheinfra"
	"github.com/jmgilman/go/errors"
)

// ErrInvalidResultType is returned by Get when the cached value does not match
// the requested type.
var ErrInvalidResultType = errors.New(errors.CodeInternal, "cached value has an unexpected type")

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// CacheService is the key/value primitive the registry is built on. It only
// supports per-key operations: there is no way to list or delete a group.
//
// A ttl <= 0 stores the entry without an expiry of its own.
type CacheService interface {
	Get(ctx context.Context, key, group string, dest any) (bool, error)
	Set(ctx context.Context, key, group string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key, group string) error
}

// Get is a type-safe wrapper around CacheService.Get.
func Get[T any](ctx context.Context, service CacheService, key, group string) (T, bool, error) {
	var result T
	found, err := service.Get(ctx, key, group, &result)
	if err != nil {
		var zero T
		var decodeErr *cacheinfra.DecodeError
		if errors.As(err, &decodeErr) {
			return zero, false, fmt.Errorf("%w: %s", ErrInvalidResultType, decodeErr.Message)
		}
		return zero, false, err
	}
	return result, found, nil
}
