package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendEvents(t *testing.T, store *EventStore, id string, events []Event) ([]Event, error) {
	t.Helper()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	appended, err := store.Append(ctx, tx, id, events)
	if err != nil {
		return nil, err
	}
	return appended, tx.Commit()
}

func TestEventStore_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns store positions", func(t *testing.T) {
		store, _ := newTestStore(t)
		a := newTestAccount("acc-1")
		events, err := Raise(a, AccountOpened{Owner: "ann"}, MoneyDeposited{Amount: 10})
		require.NoError(t, err)

		appended, err := appendEvents(t, store, "acc-1", events)
		require.NoError(t, err)
		require.Len(t, appended, 2)
		assert.Equal(t, int64(1), appended[0].ID)
		assert.Equal(t, int64(2), appended[1].ID)
		assert.False(t, appended[0].RecordedAt.IsZero())

		head, err := store.LastEventID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), head)
	})

	t.Run("duplicate version conflicts", func(t *testing.T) {
		logger := newTestLogger()
		store, _ := newTestStore(t, WithLogger(logger))

		first, err := Raise(newTestAccount("acc-1"), AccountOpened{Owner: "ann"})
		require.NoError(t, err)
		_, err = appendEvents(t, store, "acc-1", first)
		require.NoError(t, err)

		second, err := Raise(newTestAccount("acc-1"), AccountOpened{Owner: "bob"})
		require.NoError(t, err)
		_, err = appendEvents(t, store, "acc-1", second)

		var ce *ConcurrencyError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "acc-1", ce.AggregateID)
		assert.Equal(t, int64(1), ce.Version)
		assert.Contains(t, logger.warnings(), "Concurrency conflict on append")
	})

	t.Run("invalid input", func(t *testing.T) {
		store, _ := newTestStore(t)
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		_, err = store.Append(ctx, tx, "", []Event{NewEvent("", 1, MoneyDeposited{})})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = store.Append(ctx, tx, "acc-1", nil)
		assert.ErrorIs(t, err, ErrNoEvents)

		_, err = store.Append(ctx, nil, "acc-1", []Event{NewEvent("acc-1", 1, MoneyDeposited{})})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		gap := []Event{NewEvent("acc-1", 1, MoneyDeposited{}), NewEvent("acc-1", 3, MoneyDeposited{})}
		_, err = store.Append(ctx, tx, "acc-1", gap)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		foreign := []Event{NewEvent("acc-2", 1, MoneyDeposited{})}
		_, err = store.Append(ctx, tx, "acc-1", foreign)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestEventStore_Reads(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for _, id := range []string{"acc-1", "acc-2"} {
		events, err := Raise(newTestAccount(id), AccountOpened{Owner: id}, MoneyDeposited{Amount: 1}, MoneyWithdrawn{Amount: 1})
		require.NoError(t, err)
		_, err = appendEvents(t, store, id, events)
		require.NoError(t, err)
	}

	t.Run("by aggregate", func(t *testing.T) {
		events, err := store.ReadByAggregate(ctx, "acc-2", 1)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(2), events[0].AggregateVersion)
		assert.Equal(t, MoneyDeposited{Amount: 1}, events[0].Payload)

		events, err = store.ReadByAggregate(ctx, "acc-3", 0)
		require.NoError(t, err)
		assert.Empty(t, events)

		_, err = store.ReadByAggregate(ctx, "", 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("by event names", func(t *testing.T) {
		events, err := store.ReadByEventNames(ctx, []string{"MoneyDeposited", "MoneyWithdrawn"}, 0, 0)
		require.NoError(t, err)
		require.Len(t, events, 4)
		assert.Equal(t, []int64{2, 3, 5, 6}, []int64{events[0].ID, events[1].ID, events[2].ID, events[3].ID})

		events, err = store.ReadByEventNames(ctx, []string{"MoneyDeposited"}, 2, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, int64(5), events[0].ID)

		events, err = store.ReadByEventNames(ctx, nil, 4, 10)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("unregistered event fails the read", func(t *testing.T) {
		bare := New(store.Adapter())
		_, err := bare.ReadByAggregate(ctx, "acc-1", 0)
		assert.True(t, errors.Is(err, ErrEventTypeNotRegistered))
	})
}

func TestEventStore_Accessors(t *testing.T) {
	store, adapter := newTestStore(t)
	assert.Same(t, adapter, store.Adapter())
	assert.Equal(t, 4, store.Registry().Count())
	assert.NotNil(t, store.Codec())
	assert.NotNil(t, store.Logger())
	require.NoError(t, store.Initialize(context.Background()))
	require.NoError(t, store.Close())
}
