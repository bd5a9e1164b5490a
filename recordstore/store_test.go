package recordstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-broiler/cache"
	"github.com/goliatone/go-broiler/hooks"
	"github.com/goliatone/go-broiler/models"
	"github.com/goliatone/go-broiler/pkg/testsupport"
	"github.com/goliatone/go-broiler/recordstore"
	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type fixture struct {
	db       *bun.DB
	registry *cache.Registry
	hooks    *hooks.Dispatcher
	store    *recordstore.Store[models.ExampleModel]
	now      time.Time
}

func newFixture(t *testing.T, opts ...recordstore.Option) *fixture {
	t.Helper()

	service, err := cache.NewCacheService(cache.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{
		db:    testsupport.OpenSQLite(t),
		hooks: hooks.New(),
		now:   time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.registry = cache.NewRegistry(service, cache.WithClock(func() time.Time { return f.now }))

	opts = append([]recordstore.Option{recordstore.WithHooks(f.hooks)}, opts...)
	f.store = recordstore.New[models.ExampleModel](f.db, f.registry, opts...)
	require.NoError(t, f.store.Init(context.Background()))
	return f
}

func (f *fixture) insert(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.store.Insert(context.Background(), recordstore.Record{"name": name})
	require.NoError(t, err)
	return id
}

func (f *fixture) rawRename(t *testing.T, id int64, name string) {
	t.Helper()
	_, err := f.db.NewUpdate().
		TableExpr("?", bun.Ident(f.store.Table())).
		Set("? = ?", bun.Ident("name"), name).
		Where("? = ?", bun.Ident("id"), id).
		Exec(context.Background())
	require.NoError(t, err)
}

func (f *fixture) registered(t *testing.T, key string) bool {
	t.Helper()
	idx, err := f.registry.Snapshot(context.Background())
	require.NoError(t, err)
	return idx.Has(f.store.HookPrefix(), key)
}

func TestStore_Naming(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "broiler_examplemodel", f.store.Table())
	assert.Equal(t, "examplemodel", f.store.HookPrefix())
	assert.Equal(t, "examplemodel_all_query", f.store.HookName("all"))
	assert.Equal(t, "examplemodel_by_id_query", f.store.HookName("by_id"))

	prefixed := recordstore.New[models.ExampleModel](f.db, nil, recordstore.WithTablePrefix("wp_"))
	assert.Equal(t, "wp_examplemodel", prefixed.Table())
	assert.Equal(t, "examplemodel", prefixed.HookPrefix())
}

func TestStore_GetAllEmpty(t *testing.T) {
	f := newFixture(t)

	records, err := f.store.GetAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.False(t, f.registered(t, "examplemodel::all"), "empty results are not cached")
}

func TestStore_GetByIDMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, found, err := f.store.GetByID(ctx, 404)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, record)

	exists, err := f.store.Exists(ctx, 404)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_GetByIDCacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "first")

	first, found, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, f.registered(t, fmt.Sprintf("examplemodel::single::%d", id)))

	f.rawRename(t, id, "changed behind the cache")

	second, found, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, second)
	assert.Equal(t, "first", second.String("name"))

	fresh, _, err := f.store.GetByID(ctx, id, recordstore.WithoutCache())
	require.NoError(t, err)
	assert.Equal(t, "changed behind the cache", fresh.String("name"))

	exists, err := f.store.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_GetAllCacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "a")
	f.insert(t, "b")

	first, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	f.rawRename(t, id, "z")

	second, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_UpdateInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "before")
	other := f.insert(t, "other")

	_, _, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	_, _, err = f.store.GetByID(ctx, other)
	require.NoError(t, err)
	_, err = f.store.GetAll(ctx)
	require.NoError(t, err)

	n, err := f.store.Update(ctx, id, recordstore.Record{"name": "after"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	idx, err := f.registry.Snapshot(ctx)
	require.NoError(t, err)
	_, present := idx["examplemodel"]
	assert.False(t, present, "update clears the whole group")

	record, found, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "after", record.String("name"))

	all, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "after", all[0].String("name"))
}

func TestStore_UpdateMissingRow(t *testing.T) {
	f := newFixture(t)

	n, err := f.store.Update(context.Background(), 99, recordstore.Record{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStore_UpdateEmptyData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "kept")

	_, _, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)

	fired := false
	f.hooks.AddAction("examplemodel_update", func(context.Context, ...any) { fired = true })

	_, err = f.store.Update(ctx, id, recordstore.Record{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.False(t, fired)
	assert.True(t, f.registered(t, fmt.Sprintf("examplemodel::single::%d", id)))
}

func TestStore_UpdateHooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "locked")

	var gotID any
	var gotData any
	f.hooks.AddAction("examplemodel_update", func(_ context.Context, args ...any) {
		gotID, gotData = args[0], args[1]
	})
	f.hooks.AddUpdateFilter("examplemodel_update_query", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Where("? != ?", bun.Ident("name"), "locked")
	})

	data := recordstore.Record{"name": "changed"}
	n, err := f.store.Update(ctx, id, data)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "filter excluded the row")
	assert.Equal(t, id, gotID)
	assert.Equal(t, data, gotData)

	record, _, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "locked", record.String("name"))
}

func TestStore_DeleteWithoutID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "stays")

	_, _, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)

	n, err := f.store.Delete(ctx, recordstore.Args{"name": "stays"})
	assert.True(t, errors.Is(err, recordstore.ErrMissingID))
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Equal(t, int64(0), n)

	assert.True(t, f.registered(t, fmt.Sprintf("examplemodel::single::%d", id)), "cache untouched")
	exists, err := f.store.Exists(ctx, id, recordstore.WithoutCache())
	require.NoError(t, err)
	assert.True(t, exists, "table untouched")
}

func TestStore_DeleteInvalidID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "stays")

	_, _, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)

	for _, bad := range []any{struct{}{}, "abc", "", []byte("12x"), 1.5, true} {
		n, err := f.store.Delete(ctx, recordstore.Args{"id": bad})
		require.Error(t, err, "%#v", bad)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err), "%#v", bad)
		assert.True(t, errors.Is(err, recordstore.ErrMissingID), "%#v", bad)
		assert.Equal(t, int64(0), n)
	}

	assert.True(t, f.registered(t, fmt.Sprintf("examplemodel::single::%d", id)), "cache untouched")
	exists, err := f.store.Exists(ctx, id, recordstore.WithoutCache())
	require.NoError(t, err)
	assert.True(t, exists, "table untouched")
}

func TestStore_DeleteAcceptedIDForms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, form := range []func(int64) any{
		func(id int64) any { return id },
		func(id int64) any { return int(id) },
		func(id int64) any { return float64(id) },
		func(id int64) any { return fmt.Sprintf(" %d ", id) },
		func(id int64) any { return []byte(fmt.Sprint(id)) },
	} {
		id := f.insert(t, "gone")
		n, err := f.store.Delete(ctx, recordstore.Args{"id": form(id)})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "%#v", form(id))
	}
}

func TestStore_CachedRecordsAreCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "original")

	first, found, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	first["name"] = "edited by caller"

	second, _, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", second.String("name"))
	second["name"] = "edited again"

	third, _, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", third.String("name"))

	all, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	all[0]["name"] = "edited list"

	all, err = f.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "original", all[0].String("name"))
}

func TestStore_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "gone")

	_, found, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)

	n, err := f.store.Delete(ctx, recordstore.Args{"id": fmt.Sprint(id)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, found, err = f.store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_DeleteFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "protected")

	f.hooks.AddDeleteFilter("examplemodel_delete_query", func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("? != ?", bun.Ident("name"), "protected")
	})

	n, err := f.store.Delete(ctx, recordstore.Args{"id": id})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStore_SelectFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "a")
	f.insert(t, "b")

	f.hooks.AddSelectFilter("examplemodel_all_query", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("? = ?", bun.Ident("name"), "b")
	})

	records, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].String("name"))
}

func TestStore_CacheTime(t *testing.T) {
	f := newFixture(t, recordstore.WithDefaultCacheTime(time.Hour))
	ctx := context.Background()
	id := f.insert(t, "timed")

	_, err := f.store.GetAll(ctx)
	require.NoError(t, err)

	f.hooks.AddDurationFilter("examplemodel_cache_time", func(time.Duration) time.Duration { return time.Minute })
	_, _, err = f.store.GetByID(ctx, id)
	require.NoError(t, err)

	_, err = f.store.Find(ctx, f.store.NewSelect(), recordstore.WithCacheKey("custom"), recordstore.WithCacheTime(10*time.Minute))
	require.NoError(t, err)

	idx, err := f.registry.Snapshot(ctx)
	require.NoError(t, err)
	group := idx["examplemodel"]
	assert.Equal(t, f.now.Add(time.Hour), group["examplemodel::all"])
	assert.Equal(t, f.now.Add(time.Minute), group[fmt.Sprintf("examplemodel::single::%d", id)])
	assert.Equal(t, f.now.Add(10*time.Minute), group["custom"])
}

func TestStore_FindDefaultKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "a")

	q := f.store.NewSelect().Where("? = ?", bun.Ident("name"), "a")
	records, err := f.store.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.True(t, f.registered(t, cache.Fingerprint(q.String())))
}

func TestStore_CustomKeyClearedByWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.insert(t, "a")
	b := f.insert(t, "b")

	q := f.store.NewSelect().Where("? = ?", bun.Ident("name"), "a")
	record, found, err := f.store.FindOne(ctx, q, recordstore.WithCacheKey("by-name::a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, a, record.ID())

	_, err = f.store.Update(ctx, b, recordstore.Record{"name": "bb"})
	require.NoError(t, err)

	var cached recordstore.Record
	assert.False(t, f.registry.Get(ctx, "by-name::a", "examplemodel", &cached))
}

func TestStore_WithoutCacheDoesNotStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "a")

	_, err := f.store.GetAll(ctx, recordstore.WithoutCache())
	require.NoError(t, err)
	assert.False(t, f.registered(t, "examplemodel::all"))
}

func TestStore_Insert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var inserted any
	f.hooks.AddAction("examplemodel_insert", func(_ context.Context, args ...any) { inserted = args[0] })

	first := f.insert(t, "one")
	all, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	second := f.insert(t, "two")
	assert.Greater(t, second, first)
	assert.Equal(t, recordstore.Record{"name": "two"}, inserted)

	all, err = f.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "insert clears the cached collection")

	_, err = f.store.Insert(ctx, recordstore.Record{})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestStore_DatabaseError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Close())

	_, err := f.store.GetAll(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.CodeDatabase, errors.GetCode(err))

	_, err = f.store.Update(ctx, 1, recordstore.Record{"name": "x"})
	assert.Equal(t, errors.CodeDatabase, errors.GetCode(err))
}

func TestStore_WithoutRegistry(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	ctx := context.Background()

	store := recordstore.New[models.ExampleModel](db, nil)
	require.NoError(t, store.Init(ctx))

	id, err := store.Insert(ctx, recordstore.Record{"name": "plain"})
	require.NoError(t, err)

	record, found, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "plain", record.String("name"))
	assert.NoError(t, store.ClearCache(ctx))
}

type flagModel struct{}

func (flagModel) TableSchema(table string, _ dialect.Name) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	active TEXT,
	score TEXT,
	note TEXT
)`, table)
}

func (flagModel) Coercers() recordstore.Coercers {
	return recordstore.Coercers{
		"id":     recordstore.ToInt,
		"active": recordstore.ToBool,
		"score":  recordstore.ToInt,
	}
}

func TestStore_Coercion(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	ctx := context.Background()

	service, err := cache.NewCacheService(cache.DefaultConfig())
	require.NoError(t, err)
	store := recordstore.New[flagModel](db, cache.NewRegistry(service))
	require.NoError(t, store.Init(ctx))

	id, err := store.Insert(ctx, recordstore.Record{"active": "1", "score": "42", "note": "n"})
	require.NoError(t, err)

	record, found, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, true, record["active"])
	assert.Equal(t, int64(42), record["score"])
	assert.Equal(t, id, record["id"])
	assert.Equal(t, "n", record.String("note"))

	cached, _, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, record, cached)
}
