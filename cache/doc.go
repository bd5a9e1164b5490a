// Package cache provides the cache-aside building blocks used by record stores.
//
// # Overview
//
// The package exports:
//
//   - CacheService: a per-key get/set/delete primitive grouped by a logical
//     group name. Backends have no way to enumerate or delete a group.
//   - Registry: group invalidation on top of a CacheService. Every write
//     records (key, group, expiry) in an index that is itself stored in the
//     cache under RegistryKey/RegistryGroup.
//   - KeySerializer: builds stable cache keys from a prefix and arguments.
//   - Metrics: prometheus counters for registry traffic.
//
// # Basic Usage
//
//	service, err := cache.NewCacheService(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	registry := cache.NewRegistry(service, cache.WithLogger(logger))
//
//	_ = registry.Set(ctx, "single::42", "examplemodel", record, 5*time.Minute)
//
//	var cached recordstore.Record
//	if registry.Get(ctx, "single::42", "examplemodel", &cached) {
//		// hit
//	}
//
//	// drop everything cached for the group
//	_ = registry.ClearGroup(ctx, "examplemodel")
//
// # Index maintenance
//
// Expired keys are pruned from a group only when a new key is written to the
// same group; reads never touch the index. ClearKey deletes the entry but
// leaves the key registered, which ClearGroup tolerates. Registering a key
// again never shortens its recorded expiry.
//
// # Backends
//
// The memory backend (sturdyc) keeps values as-is, so a hit returns the very
// value that was stored. The redis backend encodes values with msgpack and is
// suitable for several processes sharing one cache. Registries in different
// processes do not coordinate: concurrent writers can lose each other's index
// updates, which at worst delays an invalidation until the entries expire.
//
// # Error Handling
//
// Read failures are logged and reported as misses. Write failures are
// returned to the caller, who decides whether to carry on without the cache.
package cache
