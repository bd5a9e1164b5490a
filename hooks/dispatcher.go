// Package hooks provides typed extension points for record stores: query
// filters that can reshape a query before it runs, value filters and
// actions fired before writes.
//
// Callbacks run in registration order. A nil *Dispatcher is valid and
// leaves every value untouched.
package hooks

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"
)

// Action is a side-effecting listener.
type Action func(ctx context.Context, args ...any)

// DurationFilter transforms a duration, e.g. a store's cache time.
type DurationFilter func(time.Duration) time.Duration

// Dispatcher holds named callback chains.
type Dispatcher struct {
	selects   chain[repository.SelectCriteria]
	updates   chain[repository.UpdateCriteria]
	deletes   chain[repository.DeleteCriteria]
	durations chain[DurationFilter]
	actions   chain[Action]
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		selects:   newChain[repository.SelectCriteria](),
		updates:   newChain[repository.UpdateCriteria](),
		deletes:   newChain[repository.DeleteCriteria](),
		durations: newChain[DurationFilter](),
		actions:   newChain[Action](),
	}
}

// AddSelectFilter registers fn under name.
func (d *Dispatcher) AddSelectFilter(name string, fn repository.SelectCriteria) {
	d.selects.add(name, fn)
}

// FilterSelect passes q through the select filters registered under name.
func (d *Dispatcher) FilterSelect(name string, q *bun.SelectQuery) *bun.SelectQuery {
	if d == nil {
		return q
	}
	for _, fn := range d.selects.get(name) {
		if next := fn(q); next != nil {
			q = next
		}
	}
	return q
}

// AddUpdateFilter registers fn under name.
func (d *Dispatcher) AddUpdateFilter(name string, fn repository.UpdateCriteria) {
	d.updates.add(name, fn)
}

// FilterUpdate passes q through the update filters registered under name.
func (d *Dispatcher) FilterUpdate(name string, q *bun.UpdateQuery) *bun.UpdateQuery {
	if d == nil {
		return q
	}
	for _, fn := range d.updates.get(name) {
		if next := fn(q); next != nil {
			q = next
		}
	}
	return q
}

// AddDeleteFilter registers fn under name.
func (d *Dispatcher) AddDeleteFilter(name string, fn repository.DeleteCriteria) {
	d.deletes.add(name, fn)
}

// FilterDelete passes q through the delete filters registered under name.
func (d *Dispatcher) FilterDelete(name string, q *bun.DeleteQuery) *bun.DeleteQuery {
	if d == nil {
		return q
	}
	for _, fn := range d.deletes.get(name) {
		if next := fn(q); next != nil {
			q = next
		}
	}
	return q
}

// AddDurationFilter registers fn under name.
func (d *Dispatcher) AddDurationFilter(name string, fn DurationFilter) {
	d.durations.add(name, fn)
}

// FilterDuration passes value through the duration filters registered under name.
func (d *Dispatcher) FilterDuration(name string, value time.Duration) time.Duration {
	if d == nil {
		return value
	}
	for _, fn := range d.durations.get(name) {
		value = fn(value)
	}
	return value
}

// AddAction registers fn under name.
func (d *Dispatcher) AddAction(name string, fn Action) {
	d.actions.add(name, fn)
}

// Do runs the actions registered under name.
func (d *Dispatcher) Do(ctx context.Context, name string, args ...any) {
	if d == nil {
		return
	}
	for _, fn := range d.actions.get(name) {
		fn(ctx, args...)
	}
}

// chain is a copy-on-write list of callbacks per name, so dispatch never
// observes a half-registered chain.
type chain[F any] struct {
	m *xsync.MapOf[string, []F]
}

func newChain[F any]() chain[F] {
	return chain[F]{m: xsync.NewMapOf[string, []F]()}
}

func (c chain[F]) add(name string, fn F) {
	c.m.Compute(name, func(old []F, _ bool) ([]F, bool) {
		next := make([]F, len(old), len(old)+1)
		copy(next, old)
		return append(next, fn), false
	})
}

func (c chain[F]) get(name string) []F {
	fns, _ := c.m.Load(name)
	return fns
}
