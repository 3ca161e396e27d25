// Package adaptertest provides a conformance suite every adapters.Backend must pass.
package adaptertest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Factory returns a fresh, initialized backend for one subtest.
type Factory func(t *testing.T) adapters.Backend

// Run executes the conformance suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("Events", func(t *testing.T) { testEvents(t, newBackend) })
	t.Run("State", func(t *testing.T) { testState(t, newBackend) })
	t.Run("Snapshots", func(t *testing.T) { testSnapshots(t, newBackend) })
	t.Run("ReadModel", func(t *testing.T) { testReadModel(t, newBackend) })
	t.Run("Checkpoints", func(t *testing.T) { testCheckpoints(t, newBackend) })
}

// Records builds a contiguous batch of events for aggregateID starting at version from.
func Records(aggregateID string, from int64, names ...string) []adapters.EventRecord {
	records := make([]adapters.EventRecord, len(names))
	for i, name := range names {
		records[i] = adapters.EventRecord{
			Name:             name,
			SchemaVersion:    1,
			AggregateID:      aggregateID,
			AggregateVersion: from + int64(i),
			Body:             []byte(fmt.Sprintf(`{"n":%d}`, i)),
		}
	}
	return records
}

// Commit appends records in their own transaction.
func Commit(t *testing.T, b adapters.Backend, records []adapters.EventRecord) []adapters.StoredEvent {
	t.Helper()
	ctx := context.Background()

	tx, err := b.BeginTx(ctx)
	require.NoError(t, err)
	stored, err := tx.AppendEvents(ctx, records)
	if err != nil {
		_ = tx.Rollback()
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	return stored
}

func testEvents(t *testing.T, newBackend Factory) {
	ctx := context.Background()

	t.Run("append assigns increasing ids", func(t *testing.T) {
		b := newBackend(t)

		stored := Commit(t, b, Records("car-1", 1, "CarRegistered", "MileageRecorded"))

		require.Len(t, stored, 2)
		assert.Greater(t, stored[1].ID, stored[0].ID)
		assert.Equal(t, int64(1), stored[0].AggregateVersion)
		assert.Equal(t, int64(2), stored[1].AggregateVersion)
		assert.False(t, stored[0].RecordedAt.IsZero())

		last, err := b.LastEventID(ctx)
		require.NoError(t, err)
		assert.Equal(t, stored[1].ID, last)
	})

	t.Run("load returns events after version in order", func(t *testing.T) {
		b := newBackend(t)
		Commit(t, b, Records("car-1", 1, "A", "B", "C"))
		Commit(t, b, Records("car-2", 1, "A"))

		events, err := b.Load(ctx, "car-1", 1)

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "B", events[0].Name)
		assert.Equal(t, "C", events[1].Name)
		assert.JSONEq(t, `{"n":1}`, string(events[0].Body))
		assert.Equal(t, 1, events[0].SchemaVersion)
	})

	t.Run("load of unknown aggregate is empty", func(t *testing.T) {
		b := newBackend(t)

		events, err := b.Load(ctx, "missing", 0)

		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("duplicate version is a concurrency conflict", func(t *testing.T) {
		b := newBackend(t)
		Commit(t, b, Records("car-1", 1, "A"))

		tx, err := b.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		_, err = tx.AppendEvents(ctx, Records("car-1", 1, "B"))
		if err == nil {
			err = tx.Commit()
		}

		assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)
	})

	t.Run("rollback discards events and state", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureStateTable(ctx, "cars"))

		tx, err := b.BeginTx(ctx)
		require.NoError(t, err)
		_, err = tx.AppendEvents(ctx, Records("car-1", 1, "A"))
		require.NoError(t, err)
		require.NoError(t, tx.UpsertState(ctx, "cars", adapters.StateRecord{
			AggregateID: "car-1", AggregateVersion: 1, State: []byte(`{}`),
		}))
		require.NoError(t, tx.Rollback())

		events, err := b.Load(ctx, "car-1", 0)
		require.NoError(t, err)
		assert.Empty(t, events)

		state, err := b.LoadState(ctx, "cars", "car-1")
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("concurrent writers of the same version", func(t *testing.T) {
		b := newBackend(t)
		Commit(t, b, Records("car-1", 1, "A"))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tx, err := b.BeginTx(ctx)
				if err != nil {
					errs[i] = err
					return
				}
				defer func() { _ = tx.Rollback() }()
				if _, err := tx.AppendEvents(ctx, Records("car-1", 2, "B")); err != nil {
					errs[i] = err
					return
				}
				errs[i] = tx.Commit()
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)
		}
		assert.Equal(t, 1, succeeded)

		events, err := b.Load(ctx, "car-1", 0)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("load by names pages by id", func(t *testing.T) {
		b := newBackend(t)
		Commit(t, b, Records("car-1", 1, "Registered", "Moved", "Moved"))
		Commit(t, b, Records("car-2", 1, "Registered", "Deleted"))

		page, err := b.LoadByNames(ctx, []string{"Registered", "Deleted"}, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "car-1", page[0].AggregateID)
		assert.Equal(t, "car-2", page[1].AggregateID)

		rest, err := b.LoadByNames(ctx, []string{"Registered", "Deleted"}, page[1].ID, 2)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "Deleted", rest[0].Name)

		all, err := b.LoadByNames(ctx, nil, 0, 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})
}

func testState(t *testing.T, newBackend Factory) {
	ctx := context.Background()

	t.Run("upsert inserts then updates", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureStateTable(ctx, "customers"))

		for v := int64(1); v <= 2; v++ {
			tx, err := b.BeginTx(ctx)
			require.NoError(t, err)
			require.NoError(t, tx.UpsertState(ctx, "customers", adapters.StateRecord{
				AggregateID:      "c-1",
				AggregateVersion: v,
				State:            []byte(fmt.Sprintf(`{"v":%d}`, v)),
			}))
			require.NoError(t, tx.Commit())
		}

		state, err := b.LoadState(ctx, "customers", "c-1")
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, int64(2), state.AggregateVersion)
		assert.JSONEq(t, `{"v":2}`, string(state.State))
	})

	t.Run("missing state is nil", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureStateTable(ctx, "customers"))

		state, err := b.LoadState(ctx, "customers", "nope")

		require.NoError(t, err)
		assert.Nil(t, state)
	})
}

func testSnapshots(t *testing.T, newBackend Factory) {
	ctx := context.Background()

	t.Run("latest and bounded lookups", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureSnapshotTable(ctx, "car_snapshots"))

		for _, v := range []int64{5, 10, 15} {
			require.NoError(t, b.SaveSnapshot(ctx, "car_snapshots", adapters.SnapshotRecord{
				AggregateID:      "car-1",
				AggregateVersion: v,
				State:            []byte(fmt.Sprintf(`{"v":%d}`, v)),
			}))
		}

		latest, err := b.LoadSnapshot(ctx, "car_snapshots", "car-1", 0)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, int64(15), latest.AggregateVersion)

		bounded, err := b.LoadSnapshot(ctx, "car_snapshots", "car-1", 12)
		require.NoError(t, err)
		require.NotNil(t, bounded)
		assert.Equal(t, int64(10), bounded.AggregateVersion)
		assert.JSONEq(t, `{"v":10}`, string(bounded.State))

		none, err := b.LoadSnapshot(ctx, "car_snapshots", "car-1", 4)
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("saving the same version twice is a no-op", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureSnapshotTable(ctx, "car_snapshots"))
		rec := adapters.SnapshotRecord{AggregateID: "car-1", AggregateVersion: 3, State: []byte(`{}`)}

		require.NoError(t, b.SaveSnapshot(ctx, "car_snapshots", rec))
		assert.NoError(t, b.SaveSnapshot(ctx, "car_snapshots", rec))
	})
}

func testReadModel(t *testing.T, newBackend Factory) {
	ctx := context.Background()

	t.Run("upsert ignores stale versions", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureReadModelTable(ctx, "car_view"))

		applied, err := b.UpsertRow(ctx, "car_view", adapters.RowRecord{ID: "car-1", Version: 2, Data: []byte(`{"m":2}`)})
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = b.UpsertRow(ctx, "car_view", adapters.RowRecord{ID: "car-1", Version: 2, Data: []byte(`{"m":99}`)})
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = b.UpsertRow(ctx, "car_view", adapters.RowRecord{ID: "car-1", Version: 1, Data: []byte(`{"m":1}`)})
		require.NoError(t, err)
		assert.False(t, applied)

		row, err := b.GetRow(ctx, "car_view", "car-1")
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, int64(2), row.Version)
		assert.JSONEq(t, `{"m":2}`, string(row.Data))

		applied, err = b.UpsertRow(ctx, "car_view", adapters.RowRecord{ID: "car-1", Version: 3, Data: []byte(`{"m":3}`)})
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("list, page, count and clear", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureReadModelTable(ctx, "car_view"))
		for _, id := range []string{"c", "a", "b"} {
			_, err := b.UpsertRow(ctx, "car_view", adapters.RowRecord{ID: id, Version: 1, Data: []byte(`{}`)})
			require.NoError(t, err)
		}

		rows, err := b.ListRows(ctx, "car_view", "a", 10)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "b", rows[0].ID)

		page, err := b.PageRows(ctx, "car_view", 2, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "c", page[0].ID)

		n, err := b.CountRows(ctx, "car_view")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		require.NoError(t, b.ClearRows(ctx, "car_view"))
		n, err = b.CountRows(ctx, "car_view")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("snapshot twin and cursor", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.EnsureReadModelTable(ctx, "car_view"))
		twin := adapters.SnapshotTable("car_view")

		require.NoError(t, b.InsertRows(ctx, twin, []adapters.RowRecord{
			{ID: "a", Version: 4, Data: []byte(`{"x":1}`)},
		}))
		require.NoError(t, b.SaveSnapshotCursor(ctx, adapters.ProjectionSnapshotRecord{
			Table: "car_view", LastEventID: 42, Rows: 1,
		}))

		cursor, err := b.LoadSnapshotCursor(ctx, "car_view")
		require.NoError(t, err)
		require.NotNil(t, cursor)
		assert.Equal(t, int64(42), cursor.LastEventID)
		assert.Equal(t, int64(1), cursor.Rows)

		row, err := b.GetRow(ctx, twin, "a")
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, int64(4), row.Version)

		require.NoError(t, b.DeleteSnapshotCursor(ctx, "car_view"))
		cursor, err = b.LoadSnapshotCursor(ctx, "car_view")
		require.NoError(t, err)
		assert.Nil(t, cursor)
	})
}

func testCheckpoints(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	b := newBackend(t)

	pos, err := b.GetCheckpoint(ctx, "car_view")
	require.NoError(t, err)
	assert.Zero(t, pos)

	require.NoError(t, b.SetCheckpoint(ctx, "car_view", 7))
	require.NoError(t, b.SetCheckpoint(ctx, "car_view", 9))

	pos, err = b.GetCheckpoint(ctx, "car_view")
	require.NoError(t, err)
	assert.Equal(t, int64(9), pos)
}
