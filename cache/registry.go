package cache

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmgilman/go/errors"
)

// The registry index lives in the cache itself, under a reserved pair that
// application entries never use.
const (
	RegistryKey   = "_cache_registry"
	RegistryGroup = "cache_registry"
)

// Index maps a group to the keys registered in it and their expiry.
// A zero expiry marks a key written without one.
type Index map[string]map[string]time.Time

// Groups returns the number of groups in the index.
func (idx Index) Groups() int {
	return len(idx)
}

// Has reports whether key is registered in group.
func (idx Index) Has(group, key string) bool {
	_, ok := idx[group][key]
	return ok
}

func (idx Index) clone() Index {
	out := make(Index, len(idx))
	for group, keys := range idx {
		copied := make(map[string]time.Time, len(keys))
		for k, exp := range keys {
			copied[k] = exp
		}
		out[group] = copied
	}
	return out
}

// Registry adds group invalidation on top of a CacheService by tracking
// which keys were written to each group.
//
// Index updates are serialised inside one process. Registries in different
// processes sharing a backend can still overwrite each other's index; the
// worst case is a missed invalidation, bounded by the entry's ttl.
type Registry struct {
	service CacheService
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics

	mu sync.Mutex
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClock replaces the time source used to compute expiries.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger used for degraded cache operations.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches prometheus counters to the registry.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates a registry on top of service.
func NewRegistry(service CacheService, opts ...RegistryOption) *Registry {
	r := &Registry{
		service: service,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get reads (key, group) into dest. Backend failures are logged and read as
// a miss.
func (r *Registry) Get(ctx context.Context, key, group string, dest any) bool {
	found, err := r.service.Get(ctx, key, group, dest)
	if err != nil {
		r.logger.WarnContext(ctx, "cache read failed", "group", group, "key", key, "error", err)
		r.metrics.failure(group)
		r.metrics.miss(group)
		return false
	}

	if found {
		r.metrics.hit(group)
	} else {
		r.metrics.miss(group)
	}
	return found
}

// Set registers key in group and then writes the value. When the index cannot
// be updated the value is not written. The lock is held across both steps so
// a concurrent ClearGroup either sees the key or runs after the write.
func (r *Registry) Set(ctx context.Context, key, group string, value any, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.register(ctx, key, group, ttl); err != nil {
		return err
	}

	if err := r.service.Set(ctx, key, group, value, ttl); err != nil {
		r.metrics.failure(group)
		return errors.WrapWithContext(err, errors.CodeUnavailable, "cache write failed",
			map[string]interface{}{"group": group, "key": key})
	}

	r.metrics.set(group)
	return nil
}

// ClearKey deletes a single entry. The index keeps the key until a later
// write to the group prunes it by expiry; ClearGroup tolerates such keys.
func (r *Registry) ClearKey(ctx context.Context, key, group string) error {
	if err := r.service.Delete(ctx, key, group); err != nil {
		r.metrics.failure(group)
		return errors.WrapWithContext(err, errors.CodeUnavailable, "cache delete failed",
			map[string]interface{}{"group": group, "key": key})
	}
	return nil
}

// ClearGroup deletes every entry registered for group and drops the group
// from the index. Keys whose delete fails stay registered so a later call can
// retry them.
func (r *Registry) ClearGroup(ctx context.Context, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.load(ctx)
	if err != nil {
		return err
	}

	var failed []error
	keys := idx[group]
	for key := range keys {
		if err := r.service.Delete(ctx, key, group); err != nil {
			r.logger.WarnContext(ctx, "cache delete failed", "group", group, "key", key, "error", err)
			r.metrics.failure(group)
			failed = append(failed, err)
			continue
		}
		delete(keys, key)
	}

	if len(keys) == 0 {
		delete(idx, group)
	}

	if err := r.store(ctx, idx); err != nil {
		return err
	}

	r.metrics.invalidation(group)
	r.logger.DebugContext(ctx, "cache group cleared", "group", group, "failed", len(failed))

	if len(failed) > 0 {
		return errors.WrapWithContext(stderrors.Join(failed...), errors.CodeUnavailable,
			"cache group partially cleared", map[string]interface{}{"group": group, "failed": len(failed)})
	}
	return nil
}

// ClearRegistry forgets every registered key. Cached entries are left alone
// and expire on their own.
func (r *Registry) ClearRegistry(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store(ctx, Index{})
}

// Snapshot returns a copy of the current index.
func (r *Registry) Snapshot(ctx context.Context) (Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(ctx)
}

// register records key in the index. r.mu must be held.
func (r *Registry) register(ctx context.Context, key, group string, ttl time.Duration) error {
	idx, err := r.load(ctx)
	if err != nil {
		return err
	}

	now := r.now()
	keys, ok := idx[group]
	if !ok {
		keys = make(map[string]time.Time)
		idx[group] = keys
	} else {
		prune(keys, now)
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = now.Add(ttl)
	}

	current, ok := keys[key]
	if !ok || outlasts(expiry, current) {
		keys[key] = expiry
	}

	return r.store(ctx, idx)
}

func (r *Registry) load(ctx context.Context) (Index, error) {
	var idx Index
	found, err := r.service.Get(ctx, RegistryKey, RegistryGroup, &idx)
	if err != nil {
		r.metrics.failure(RegistryGroup)
		return nil, errors.Wrap(err, errors.CodeUnavailable, "cache registry read failed")
	}
	if !found || idx == nil {
		return Index{}, nil
	}
	// the in-process backend hands out the stored map itself
	return idx.clone(), nil
}

func (r *Registry) store(ctx context.Context, idx Index) error {
	if err := r.service.Set(ctx, RegistryKey, RegistryGroup, idx, 0); err != nil {
		r.metrics.failure(RegistryGroup)
		return errors.Wrap(err, errors.CodeUnavailable, "cache registry write failed")
	}
	return nil
}

// prune drops keys whose expiry is not after now. A key expiring exactly at
// now is already unreadable, so it goes too.
func prune(keys map[string]time.Time, now time.Time) {
	for k, exp := range keys {
		if !exp.IsZero() && !exp.After(now) {
			delete(keys, k)
		}
	}
}

// outlasts reports whether next expires later than current.
func outlasts(next, current time.Time) bool {
	if current.IsZero() {
		return false
	}
	if next.IsZero() {
		return true
	}
	return next.After(current)
}
