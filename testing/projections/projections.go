// Package projections provides fixtures for testing read models.
package projections

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
)

// TB is an alias for testing.TB to enable easier mocking in tests.
type TB = testing.TB

// Builder constructs the read model under test on an adapter.
type Builder[T any] func(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ledger.ReadModel[T], error)

// ReadModelFixture feeds events to one read model and checks its rows.
type ReadModelFixture[T any] struct {
	t        TB
	ctx      context.Context
	model    *ledger.ReadModel[T]
	events   []ledger.Event
	position int64
	versions map[string]int64
	now      time.Time
}

// TestReadModel builds the read model on a fresh in-memory adapter.
func TestReadModel[T any](t TB, build Builder[T]) *ReadModelFixture[T] {
	t.Helper()
	return TestReadModelOn(t, memory.NewAdapter(), build)
}

// TestReadModelOn builds the read model on adapter and creates its table.
func TestReadModelOn[T any](t TB, adapter adapters.ReadModelAdapter, build Builder[T]) *ReadModelFixture[T] {
	t.Helper()

	model, err := build(adapter)
	if err != nil {
		t.Fatalf("Failed to build read model: %v", err)
	}
	ctx := context.Background()
	if err := model.Initialize(ctx); err != nil {
		t.Fatalf("Failed to create read model table: %v", err)
	}

	return &ReadModelFixture[T]{
		t:        t,
		ctx:      ctx,
		model:    model,
		versions: make(map[string]int64),
		now:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// WithContext sets a custom context.
func (f *ReadModelFixture[T]) WithContext(ctx context.Context) *ReadModelFixture[T] {
	f.ctx = ctx
	return f
}

// At sets the RecordedAt time of the events that follow.
func (f *ReadModelFixture[T]) At(now time.Time) *ReadModelFixture[T] {
	f.now = now
	return f
}

// GivenEvents raises payloads for aggregateID, continuing its version, and
// applies them in order.
func (f *ReadModelFixture[T]) GivenEvents(aggregateID string, payloads ...ledger.Payload) *ReadModelFixture[T] {
	f.t.Helper()

	for _, p := range payloads {
		f.versions[aggregateID]++
		e := ledger.NewEvent(aggregateID, f.versions[aggregateID], p)
		f.position++
		e.ID = f.position
		e.RecordedAt = f.now
		f.apply(e)
	}
	return f
}

// GivenStored applies events as given, e.g. out of order or redelivered.
func (f *ReadModelFixture[T]) GivenStored(events ...ledger.Event) *ReadModelFixture[T] {
	f.t.Helper()

	for _, e := range events {
		f.apply(e)
	}
	return f
}

func (f *ReadModelFixture[T]) apply(e ledger.Event) {
	f.t.Helper()

	f.events = append(f.events, e)
	if err := f.model.Apply(f.ctx, e); err != nil {
		f.t.Fatalf("Failed to apply %s (aggregate %s v%d): %v", e.Name, e.AggregateID, e.AggregateVersion, err)
	}
}

// Redeliver applies every event again and asserts the rows did not change.
func (f *ReadModelFixture[T]) Redeliver() *ReadModelFixture[T] {
	f.t.Helper()

	before := f.rows()
	for _, e := range f.events {
		if err := f.model.Apply(f.ctx, e); err != nil {
			f.t.Fatalf("Failed to redeliver %s: %v", e.Name, err)
		}
	}
	if after := f.rows(); !reflect.DeepEqual(before, after) {
		f.t.Errorf("Redelivery changed rows:\nBefore: %+v\nAfter: %+v", before, after)
	}
	return f
}

func (f *ReadModelFixture[T]) rows() []T {
	f.t.Helper()

	var all []T
	for page := 1; ; page++ {
		rows, err := f.model.GetAll(f.ctx, page, ledger.DefaultPageSize)
		if err != nil {
			f.t.Fatalf("Failed to list rows: %v", err)
		}
		all = append(all, rows...)
		if len(rows) < ledger.DefaultPageSize {
			return all
		}
	}
}

// ThenRow asserts the row of id equals expected.
func (f *ReadModelFixture[T]) ThenRow(id string, expected T) *ReadModelFixture[T] {
	f.t.Helper()

	actual := f.ThenRowExists(id)
	if actual != nil && !reflect.DeepEqual(expected, *actual) {
		f.t.Errorf("Row %s mismatch:\nExpected: %+v\nActual: %+v", id, expected, *actual)
	}
	return f
}

// ThenRowExists asserts that id has a row and returns it.
func (f *ReadModelFixture[T]) ThenRowExists(id string) *T {
	f.t.Helper()

	row, err := f.model.GetByID(f.ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		f.t.Errorf("Expected row %s to exist", id)
		return nil
	}
	if err != nil {
		f.t.Fatalf("Failed to get row %s: %v", id, err)
	}
	return row
}

// ThenRowNotExists asserts that id has no row.
func (f *ReadModelFixture[T]) ThenRowNotExists(id string) *ReadModelFixture[T] {
	f.t.Helper()

	_, err := f.model.GetByID(f.ctx, id)
	switch {
	case err == nil:
		f.t.Errorf("Expected row %s not to exist", id)
	case !errors.Is(err, ledger.ErrNotFound):
		f.t.Fatalf("Failed to get row %s: %v", id, err)
	}
	return f
}

// ThenRowCount asserts the number of rows.
func (f *ReadModelFixture[T]) ThenRowCount(expected int64) *ReadModelFixture[T] {
	f.t.Helper()

	n, err := f.model.Count(f.ctx)
	if err != nil {
		f.t.Fatalf("Failed to count rows: %v", err)
	}
	if n != expected {
		f.t.Errorf("Expected %d rows, got %d", expected, n)
	}
	return f
}

// ThenRowMatches runs check against the row of id.
func (f *ReadModelFixture[T]) ThenRowMatches(id string, check func(t TB, row *T)) *ReadModelFixture[T] {
	f.t.Helper()

	if row := f.ThenRowExists(id); row != nil {
		check(f.t, row)
	}
	return f
}

// ThenStats asserts the applied and skipped counters.
func (f *ReadModelFixture[T]) ThenStats(applied, skipped int64) *ReadModelFixture[T] {
	f.t.Helper()

	s := f.model.Stats()
	if s.Applied != applied || s.Skipped != skipped {
		f.t.Errorf("Expected %d applied and %d skipped, got %d and %d", applied, skipped, s.Applied, s.Skipped)
	}
	return f
}

// Model returns the read model under test.
func (f *ReadModelFixture[T]) Model() *ledger.ReadModel[T] {
	return f.model
}

// Events returns every event delivered so far.
func (f *ReadModelFixture[T]) Events() []ledger.Event {
	return f.events
}
