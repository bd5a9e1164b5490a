// Package recordstore provides a generic store over one table per model
// type, with read-through caching and query filters.
//
// # Naming
//
// A Store[M] derives one short name from M (its lowercased type name, or
// ModelName() when M implements Named). The table is the table prefix plus
// the short name; the cache group and every hook use the short name:
//
//	<name>_<query>_query   select/update/delete filters ("all", "by_id", "update", "delete")
//	<name>_update          action fired before an update with (id, data)
//	<name>_insert          action fired before an insert with (data)
//	<name>_cache_time      duration filter for the store's cache time
//
// # Reads
//
// GetAll and GetByID cache under <name>::all and <name>::single::<id>.
// Find and FindOne take any select built from NewSelect and cache under a
// fingerprint of the statement unless WithCacheKey is given. Coercers run on
// rows read from the database only; cached results are returned as stored.
// Empty results are not cached.
//
// # Writes
//
// Update, Delete and Insert clear the whole cache group of the store, so
// reads cached under custom keys are invalidated too.
//
// # Results
//
//	GetAll:  ([]Record{}, nil) when the table is empty
//	GetByID: (nil, false, nil) when the row does not exist
//	any:     a non-nil error when the database fails
package recordstore
