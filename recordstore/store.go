package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-broiler/cache"
	"github.com/jmgilman/go/errors"
	"github.com/uptrace/bun"
)

// ErrMissingID is returned by Delete when its arguments carry no id.
var ErrMissingID = errors.New(errors.CodeInvalidInput, "delete requires an id")

// Store provides CRUD with read-through caching over the table of M.
//
// Every read can be cached in the store's group of the registry; every
// write clears that whole group first.
type Store[M Model] struct {
	db       bun.IDB
	registry *cache.Registry
	opts     storeOptions

	name     string
	table    string
	model    M
	coercers Coercers
}

// New binds a store for M to db. registry may be nil, which disables
// caching.
func New[M Model](db bun.IDB, registry *cache.Registry, opts ...Option) *Store[M] {
	o := storeOptions{
		logger:      slog.New(slog.DiscardHandler),
		tablePrefix: DefaultTablePrefix,
		cacheTime:   DefaultCacheTime,
		keys:        cache.NewDefaultKeySerializer(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var model M
	name := shortName[M]()

	return &Store[M]{
		db:       db,
		registry: registry,
		opts:     o,
		name:     name,
		table:    o.tablePrefix + name,
		model:    model,
		coercers: model.Coercers(),
	}
}

// Table returns the table name.
func (s *Store[M]) Table() string {
	return s.table
}

// HookPrefix returns the prefix of every hook name and the cache group.
func (s *Store[M]) HookPrefix() string {
	return s.name
}

// HookName returns the filter name used for the query named query.
func (s *Store[M]) HookName(query string) string {
	return s.name + "_" + query + "_query"
}

// NewSelect starts a select over the store's table.
func (s *Store[M]) NewSelect() *bun.SelectQuery {
	return s.db.NewSelect().TableExpr("?", bun.Ident(s.table))
}

// Init creates the table when it does not exist.
func (s *Store[M]) Init(ctx context.Context) error {
	schema := s.model.TableSchema(s.table, s.db.Dialect().Name())
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapWithContext(err, errors.CodeDatabase, "failed to create table",
			map[string]interface{}{"table": s.table})
	}
	s.opts.logger.DebugContext(ctx, "table ready", "table", s.table)
	return nil
}

// GetAll returns every row. An empty table yields an empty slice.
func (s *Store[M]) GetAll(ctx context.Context, opts ...ReadOption) ([]Record, error) {
	q := s.FilterSelect("all", s.NewSelect())
	opts = append([]ReadOption{WithCacheKey(s.opts.keys.SerializeKey(s.name, "all"))}, opts...)
	return s.Find(ctx, q, opts...)
}

// GetByID returns the row with id, reporting false when there is none.
func (s *Store[M]) GetByID(ctx context.Context, id int64, opts ...ReadOption) (Record, bool, error) {
	q := s.NewSelect().Where("? = ?", bun.Ident("id"), id).Limit(1)
	q = s.FilterSelect("by_id", q)
	opts = append([]ReadOption{WithCacheKey(s.opts.keys.SerializeKey(s.name, "single", id))}, opts...)
	return s.FindOne(ctx, q, opts...)
}

// Exists reports whether a row with id exists.
func (s *Store[M]) Exists(ctx context.Context, id int64, opts ...ReadOption) (bool, error) {
	_, found, err := s.GetByID(ctx, id, opts...)
	return found, err
}

// Find runs q and returns every row it selects.
//
// Unless WithoutCache is given the result is looked up in the cache first
// and, on a miss, stored after coercion. A hit returns a copy of the stored rows without
// coercing them again, so callers may edit what they get back. The
// default cache key is a fingerprint of the statement text.
func (s *Store[M]) Find(ctx context.Context, q *bun.SelectQuery, opts ...ReadOption) ([]Record, error) {
	ro := s.readOptions(q, opts)

	if !ro.noCache {
		var cached []Record
		if s.cacheGet(ctx, ro.key, &cached) {
			return cloneRecords(cached), nil
		}
	}

	records, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(records) > 0 && !ro.noCache {
		s.cacheSet(ctx, ro.key, cloneRecords(records), ro.ttl)
	}
	return records, nil
}

// FindOne runs q and returns its first row, reporting false when q selects
// nothing. Caching follows Find.
func (s *Store[M]) FindOne(ctx context.Context, q *bun.SelectQuery, opts ...ReadOption) (Record, bool, error) {
	ro := s.readOptions(q, opts)

	if !ro.noCache {
		var cached Record
		if s.cacheGet(ctx, ro.key, &cached) {
			return cached.Clone(), true, nil
		}
	}

	records, err := s.fetch(ctx, q)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}

	record := records[0]
	if !ro.noCache {
		s.cacheSet(ctx, ro.key, record.Clone(), ro.ttl)
	}
	return record, true, nil
}

// Insert adds a row and returns its id.
func (s *Store[M]) Insert(ctx context.Context, data Record) (int64, error) {
	if len(data) == 0 {
		return 0, errors.New(errors.CodeInvalidInput, "insert data is empty")
	}

	s.opts.hooks.Do(ctx, s.name+"_insert", data)

	values := map[string]interface{}(data)
	var id int64
	_, err := s.db.NewInsert().
		Model(&values).
		TableExpr("?", bun.Ident(s.table)).
		Returning("?", bun.Ident("id")).
		Exec(ctx, &id)
	if err != nil {
		return 0, errors.WrapWithContext(err, errors.CodeDatabase, "insert failed",
			map[string]interface{}{"table": s.table})
	}

	s.invalidate(ctx)
	return id, nil
}

// Update writes data to the row with id and returns the number of rows
// affected. The cache group is cleared and the update action fired before
// the write.
func (s *Store[M]) Update(ctx context.Context, id int64, data Record) (int64, error) {
	if len(data) == 0 {
		return 0, errors.New(errors.CodeInvalidInput, "update data is empty")
	}

	s.invalidate(ctx)
	s.opts.hooks.Do(ctx, s.name+"_update", id, data)

	q := s.db.NewUpdate().TableExpr("?", bun.Ident(s.table))
	for _, column := range sortedColumns(data) {
		q = q.Set("? = ?", bun.Ident(column), data[column])
	}
	q = s.FilterUpdate("update", q.Where("? = ?", bun.Ident("id"), id))

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, errors.WrapWithContext(err, errors.CodeDatabase, "update failed",
			map[string]interface{}{"table": s.table, "id": id})
	}
	return affected(res), nil
}

// Delete removes the row whose id is args["id"] and returns the number of
// rows affected. Without an id nothing is touched and ErrMissingID is
// returned.
func (s *Store[M]) Delete(ctx context.Context, args Args) (int64, error) {
	raw, ok := args["id"]
	if !ok || raw == nil {
		return 0, ErrMissingID
	}
	id, ok := parseID(raw)
	if !ok {
		return 0, errors.WrapWithContext(ErrMissingID, errors.CodeInvalidInput, "delete id is not an integer",
			map[string]interface{}{"table": s.table, "id": fmt.Sprint(raw)})
	}

	s.invalidate(ctx)

	q := s.db.NewDelete().
		TableExpr("?", bun.Ident(s.table)).
		Where("? = ?", bun.Ident("id"), id)
	q = s.FilterDelete("delete", q)

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, errors.WrapWithContext(err, errors.CodeDatabase, "delete failed",
			map[string]interface{}{"table": s.table, "id": id})
	}
	return affected(res), nil
}

// FilterSelect passes q through the select filters registered for query.
func (s *Store[M]) FilterSelect(query string, q *bun.SelectQuery) *bun.SelectQuery {
	return s.opts.hooks.FilterSelect(s.HookName(query), q)
}

// FilterUpdate passes q through the update filters registered for query.
func (s *Store[M]) FilterUpdate(query string, q *bun.UpdateQuery) *bun.UpdateQuery {
	return s.opts.hooks.FilterUpdate(s.HookName(query), q)
}

// FilterDelete passes q through the delete filters registered for query.
func (s *Store[M]) FilterDelete(query string, q *bun.DeleteQuery) *bun.DeleteQuery {
	return s.opts.hooks.FilterDelete(s.HookName(query), q)
}

// ClearCache drops every cached read of the store.
func (s *Store[M]) ClearCache(ctx context.Context) error {
	if s.registry == nil {
		return nil
	}
	return s.registry.ClearGroup(ctx, s.name)
}

func (s *Store[M]) readOptions(q *bun.SelectQuery, opts []ReadOption) readOptions {
	ro := readOptions{}
	for _, opt := range opts {
		opt(&ro)
	}

	if !ro.hasTTL {
		ro.ttl = s.opts.hooks.FilterDuration(s.name+"_cache_time", s.opts.cacheTime)
	}
	if ro.key == "" && !ro.noCache {
		ro.key = cache.Fingerprint(q.String())
	}
	if s.registry == nil {
		ro.noCache = true
	}
	return ro
}

func (s *Store[M]) fetch(ctx context.Context, q *bun.SelectQuery) ([]Record, error) {
	var rows []map[string]interface{}
	if err := q.Scan(ctx, &rows); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.WrapWithContext(err, errors.CodeDatabase, "select failed",
			map[string]interface{}{"table": s.table})
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, s.coercers.Apply(Record(row)))
	}
	return records, nil
}

func (s *Store[M]) cacheGet(ctx context.Context, key string, dest any) bool {
	return s.registry.Get(ctx, key, s.name, dest)
}

func (s *Store[M]) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := s.registry.Set(ctx, key, s.name, value, ttl); err != nil {
		s.opts.logger.WarnContext(ctx, "cache write skipped", "group", s.name, "key", key, "error", err)
	}
}

// invalidate clears the group ahead of a write. A failure is logged and the
// write goes ahead.
func (s *Store[M]) invalidate(ctx context.Context) {
	if err := s.ClearCache(ctx); err != nil {
		s.opts.logger.WarnContext(ctx, "cache invalidation failed", "group", s.name, "error", err)
	}
}

// parseID accepts integers, whole floats and strings holding a base 10
// integer. Anything else is rejected rather than coerced.
func parseID(v any) (int64, bool) {
	switch t := v.(type) {
	case []byte:
		return parseID(string(t))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	case float32:
		return parseID(float64(t))
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || t >= math.MaxInt64 || t < math.MinInt64 {
			return 0, false
		}
		return int64(t), true
	case bool:
		return 0, false
	}
	n, ok := ToInt(v).(int64)
	return n, ok
}

func sortedColumns(data Record) []string {
	columns := make([]string, 0, len(data))
	for column := range data {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
