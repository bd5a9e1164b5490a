package di

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goliatone/go-broiler/config"
	"github.com/goliatone/go-broiler/models"
	"github.com/goliatone/go-broiler/recordstore"
	"github.com/uptrace/bun"
)

// selectCounter counts the SELECT statements reaching the database, which
// tells cache hits from misses.
type selectCounter struct {
	n atomic.Int64
}

func (c *selectCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *selectCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if strings.HasPrefix(strings.TrimSpace(event.Query), "SELECT") {
		c.n.Add(1)
	}
}

func (c *selectCounter) count() int64 {
	return c.n.Load()
}

func newIntegrationStore(t testing.TB) (*Container, *recordstore.Store[models.ExampleModel], *selectCounter) {
	t.Helper()

	container := newTestContainer(t, config.Default())
	counter := &selectCounter{}
	container.DB().AddQueryHook(counter)

	store := NewStore[models.ExampleModel](container)
	if err := container.CreateTables(context.Background()); err != nil {
		t.Fatalf("CreateTables() failed: %v", err)
	}
	return container, store, counter
}

func TestEndToEndCachedStoreFlow(t *testing.T) {
	_, store, counter := newIntegrationStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, recordstore.Record{"name": "Test User"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// First GetByID reaches the database
	record, found, err := store.GetByID(ctx, id)
	if err != nil || !found {
		t.Fatalf("First GetByID failed: found=%v err=%v", found, err)
	}
	if record.String("name") != "Test User" {
		t.Errorf("First GetByID returned incorrect record: %+v", record)
	}
	if n := counter.count(); n != 1 {
		t.Errorf("Expected 1 select after the first GetByID, got %d", n)
	}

	// Second GetByID is served from cache
	if _, _, err := store.GetByID(ctx, id); err != nil {
		t.Fatalf("Second GetByID failed: %v", err)
	}
	if n := counter.count(); n != 1 {
		t.Errorf("Expected the second GetByID to be a cache hit, got %d selects", n)
	}

	// GetAll misses once, then hits
	for i := 0; i < 2; i++ {
		records, err := store.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll failed: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("GetAll returned %d records, expected 1", len(records))
		}
	}
	if n := counter.count(); n != 2 {
		t.Errorf("Expected 2 selects after GetAll twice, got %d", n)
	}

	// An update clears the whole group, so both reads miss again
	if _, err := store.Update(ctx, id, recordstore.Record{"name": "Renamed"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	record, _, err = store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID after update failed: %v", err)
	}
	if record.String("name") != "Renamed" {
		t.Errorf("Expected the updated name, got %q", record.String("name"))
	}
	if _, err := store.GetAll(ctx); err != nil {
		t.Fatalf("GetAll after update failed: %v", err)
	}
	if n := counter.count(); n != 4 {
		t.Errorf("Expected 4 selects after the update, got %d", n)
	}
}

func TestDeleteInvalidatesFlow(t *testing.T) {
	_, store, _ := newIntegrationStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, recordstore.Record{"name": "gone"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if found, err := store.Exists(ctx, id); err != nil || !found {
		t.Fatalf("Exists before delete: found=%v err=%v", found, err)
	}

	n, err := store.Delete(ctx, recordstore.Args{"id": id})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 deleted row, got %d", n)
	}

	if found, err := store.Exists(ctx, id); err != nil || found {
		t.Errorf("Exists after delete: found=%v err=%v", found, err)
	}
}

func TestOptionsAndStoresShareRegistry(t *testing.T) {
	container, store, _ := newIntegrationStore(t)
	ctx := context.Background()

	if err := container.Options().Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var theme string
	if _, err := container.Options().Get(ctx, "theme", &theme); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := store.Insert(ctx, recordstore.Record{"name": "a"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := store.GetAll(ctx); err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}

	index, err := container.Registry().Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if index.Groups() != 2 {
		t.Errorf("Expected options and store groups, got %v", index)
	}

	if err := store.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache failed: %v", err)
	}
	index, err = container.Registry().Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if index.Has(store.HookPrefix(), "examplemodel::all") {
		t.Error("Expected the store group to be cleared")
	}
	if !index.Has("options", container.Options().NamespacedKey("theme")) {
		t.Errorf("Expected the options group to survive, got %v", index)
	}
}

func TestConcurrentAccess(t *testing.T) {
	_, store, counter := newIntegrationStore(t)
	ctx := context.Background()

	ids := make([]int64, 20)
	for i := range ids {
		id, err := store.Insert(ctx, recordstore.Record{"name": fmt.Sprintf("User %d", i)})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids[i] = id
	}

	const numGoroutines = 20
	const operationsPerGoroutine = 20

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*operationsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := 0; j < operationsPerGoroutine; j++ {
				id := ids[(workerID+j)%len(ids)]
				if _, found, err := store.GetByID(ctx, id); err != nil || !found {
					errs <- fmt.Errorf("worker %d operation %d GetByID: found=%v err=%v", workerID, j, found, err)
					continue
				}
				if j%5 == 0 {
					if _, err := store.GetAll(ctx); err != nil {
						errs <- fmt.Errorf("worker %d operation %d GetAll failed: %v", workerID, j, err)
					}
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	totalOperations := int64(numGoroutines * operationsPerGoroutine)
	if n := counter.count(); n >= totalOperations {
		t.Errorf("Expected the cache to absorb reads: %d selects for %d operations", n, totalOperations)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	container, store, _ := newIntegrationStore(t)
	ctx := context.Background()

	const writers = 5
	const writesPerWriter = 10

	var wg sync.WaitGroup
	errs := make(chan error, writers*writesPerWriter*2)

	for w := 0; w < writers; w++ {
		wg.Add(2)
		go func(writer int) {
			defer wg.Done()
			for i := 0; i < writesPerWriter; i++ {
				if _, err := store.Insert(ctx, recordstore.Record{"name": fmt.Sprintf("w%d-%d", writer, i)}); err != nil {
					errs <- err
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < writesPerWriter; i++ {
				if _, err := store.GetAll(ctx); err != nil {
					errs <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	records, err := store.GetAll(ctx, recordstore.WithoutCache())
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(records) != writers*writesPerWriter {
		t.Errorf("Expected %d records, got %d", writers*writesPerWriter, len(records))
	}

	if _, err := container.Registry().Snapshot(ctx); err != nil {
		t.Errorf("Registry index should stay readable: %v", err)
	}
}
