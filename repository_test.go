package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

func TestNewRepository(t *testing.T) {
	store, _ := newTestStore(t)

	t.Run("defaults", func(t *testing.T) {
		repo, err := NewRepository(store, newTestAccount)
		require.NoError(t, err)
		assert.Equal(t, "account", repo.AggregateType())
		assert.Equal(t, "account_state", repo.StateTable())
		assert.Equal(t, "account_snapshots", repo.Snapshots().Table())
		assert.Equal(t, "", repo.New().AggregateID())
	})

	t.Run("custom tables", func(t *testing.T) {
		repo, err := NewRepository(store, newTestAccount, WithStateTable("accounts"), WithSnapshotTable("account_snaps"))
		require.NoError(t, err)
		assert.Equal(t, "accounts", repo.StateTable())
		assert.Equal(t, "account_snaps", repo.Snapshots().Table())
	})

	t.Run("invalid table", func(t *testing.T) {
		_, err := NewRepository(store, newTestAccount, WithStateTable("drop table;"))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := NewRepository[*testAccount](nil, newTestAccount)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = NewRepository[*testAccount](store, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestRepository_Hydrate(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepository(t)
	openAccount(t, repo, "acc-1", 50)

	t.Run("empty id gives a fresh aggregate", func(t *testing.T) {
		a, err := repo.Hydrate(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(0), a.Version())
	})

	t.Run("replays history", func(t *testing.T) {
		a, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", a.AggregateID())
		assert.Equal(t, int64(2), a.Version())
		assert.Equal(t, int64(50), a.Balance)
		assert.Equal(t, "owner-acc-1", a.Owner)
		assert.Empty(t, a.UncommittedEvents())
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := repo.Hydrate(ctx, "acc-404")
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "account", nf.AggregateType)
		assert.Equal(t, "acc-404", nf.AggregateID)
	})
}

func TestRepository_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("writes events and state", func(t *testing.T) {
		observer := newTestObserver()
		repo, store, _ := newTestRepository(t, WithObserver(observer))
		a := openAccount(t, repo, "acc-1", 20)
		assert.Empty(t, a.UncommittedEvents())

		state, err := repo.LoadState(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), state.AggregateVersion)
		assert.JSONEq(t, `{"owner":"owner-acc-1","balance":20}`, string(state.State))

		head, err := store.LastEventID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), head)
		assert.Equal(t, 1, observer.saves)
	})

	t.Run("explicit events", func(t *testing.T) {
		repo, _, _ := newTestRepository(t)
		a := openAccount(t, repo, "acc-1", 0)

		events, err := a.Deposit(5)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, a, events))

		loaded, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), loaded.Balance)
	})

	t.Run("nothing to save", func(t *testing.T) {
		repo, store, _ := newTestRepository(t)
		a := openAccount(t, repo, "acc-1", 0)
		require.NoError(t, repo.Save(ctx, a, nil))

		head, err := store.LastEventID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), head)
	})

	t.Run("events must end at the aggregate version", func(t *testing.T) {
		repo, _, _ := newTestRepository(t)
		a := openAccount(t, repo, "acc-1", 0)
		first, err := a.Deposit(1)
		require.NoError(t, err)
		_, err = a.Deposit(2)
		require.NoError(t, err)

		err = repo.Save(ctx, a, first)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.NotErrorIs(t, err, ErrPersistenceFailure)
	})

	t.Run("aggregate without id", func(t *testing.T) {
		repo, _, _ := newTestRepository(t)
		a := newTestAccount("")
		a.uncommitted = []Event{NewEvent("", 1, AccountOpened{})}
		err := repo.Save(ctx, a, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("state row is not written on conflict", func(t *testing.T) {
		repo, _, _ := newTestRepository(t)
		openAccount(t, repo, "acc-1", 10)

		stale := newTestAccount("acc-1")
		_, err := stale.Open("intruder")
		require.NoError(t, err)
		err = repo.Save(ctx, stale, nil)

		require.ErrorIs(t, err, ErrConcurrencyConflict)
		require.ErrorIs(t, err, ErrPersistenceFailure)
		var ce *ConcurrencyError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, int64(1), ce.Version)

		state, err := repo.LoadState(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), state.AggregateVersion)
		assert.Contains(t, string(state.State), "owner-acc-1")
		assert.Len(t, stale.UncommittedEvents(), 1, "failed save keeps pending events")
	})
}

func TestRepository_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepository(t)
	openAccount(t, repo, "acc-1", 100)

	const writers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < writers; i++ {
		a, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)

		wg.Add(1)
		go func(a *testAccount) {
			defer wg.Done()
			<-start
			events, err := a.Withdraw(10)
			if err != nil {
				return
			}
			switch err := repo.Save(ctx, a, events); {
			case err == nil:
				succeeded.Add(1)
			case IsRetryable(err):
				conflicts.Add(1)
			}
		}(a)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())

	final, err := repo.Hydrate(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), final.Version())
	assert.Equal(t, int64(90), final.Balance)
}

func TestRepository_RetryOnConflict(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepository(t)
	openAccount(t, repo, "acc-1", 100)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := RetryOnConflict(ctx, ExponentialBackoffRetry(20, 0, 0), func(ctx context.Context) error {
				a, err := repo.Hydrate(ctx, "acc-1")
				if err != nil {
					return err
				}
				events, err := a.Withdraw(5)
				if err != nil {
					return err
				}
				return repo.Save(ctx, a, events)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := repo.Hydrate(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), final.Balance)
	assert.Equal(t, int64(6), final.Version())
}

func TestRepository_Cache(t *testing.T) {
	ctx := context.Background()

	t.Run("save populates and hydrate reads", func(t *testing.T) {
		cache := newMapCache()
		repo, _, _ := newTestRepository(t, WithCache(cache))
		openAccount(t, repo, "acc-1", 30)

		entry, ok := cache.entry(CacheKey("account", "acc-1"))
		require.True(t, ok)
		assert.Equal(t, int64(2), entry.Version)

		a, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(30), a.Balance)
		assert.Equal(t, 1, cache.hits)
	})

	t.Run("entries are copies", func(t *testing.T) {
		cache := newMapCache()
		repo, _, _ := newTestRepository(t, WithCache(cache))
		openAccount(t, repo, "acc-1", 30)

		a, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		a.Balance = 1_000_000

		b, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(30), b.Balance)
	})

	t.Run("stale entry catches up from the log", func(t *testing.T) {
		cache := newMapCache()
		repo, store, _ := newTestRepository(t, WithCache(cache))
		openAccount(t, repo, "acc-1", 30)

		// Another process appends without touching this cache.
		other, err := NewRepository(store, newTestAccount)
		require.NoError(t, err)
		a, err := other.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		_, err = a.Deposit(12)
		require.NoError(t, err)
		require.NoError(t, other.Save(ctx, a, nil))

		b, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), b.Version())
		assert.Equal(t, int64(42), b.Balance)

		entry, _ := cache.entry(CacheKey("account", "acc-1"))
		assert.Equal(t, int64(3), entry.Version)
	})

	t.Run("failed save evicts", func(t *testing.T) {
		cache := newMapCache()
		repo, _, _ := newTestRepository(t, WithCache(cache))
		openAccount(t, repo, "acc-1", 30)

		stale := newTestAccount("acc-1")
		_, err := stale.Open("x")
		require.NoError(t, err)
		require.Error(t, repo.Save(ctx, stale, nil))

		_, ok := cache.entry(CacheKey("account", "acc-1"))
		assert.False(t, ok)
	})

	t.Run("cache errors fall back to storage", func(t *testing.T) {
		cache := newMapCache()
		logger := newTestLogger()
		repo, _, _ := newTestRepository(t, WithCache(cache), WithRepositoryLogger(logger))
		openAccount(t, repo, "acc-1", 30)
		cache.failGet = true

		a, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(30), a.Balance)
		assert.Contains(t, logger.warnings(), "Cache read failed")
	})
}

func TestRepository_Snapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("cadence", func(t *testing.T) {
		repo, _, _ := newTestRepository(t, WithSnapshotEvery(3))
		a := openAccount(t, repo, "acc-1", 10)

		snap, err := repo.Snapshots().Latest(ctx, "acc-1")
		require.NoError(t, err)
		assert.Nil(t, snap, "version 2 has not crossed 3")

		_, err = a.Deposit(1)
		require.NoError(t, err)
		_, err = a.Deposit(1)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, a, nil))

		snap, err = repo.Snapshots().Latest(ctx, "acc-1")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, int64(4), snap.AggregateVersion)
	})

	t.Run("hydrate starts from the snapshot", func(t *testing.T) {
		repo, _, _ := newTestRepository(t)
		a := openAccount(t, repo, "acc-1", 10)
		require.NoError(t, repo.Snapshot(ctx, a))

		_, err := a.Deposit(5)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, a, nil))

		loaded, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), loaded.Version())
		assert.Equal(t, int64(15), loaded.Balance)
	})

	t.Run("unreadable snapshot is ignored", func(t *testing.T) {
		logger := newTestLogger()
		repo, _, adapter := newTestRepository(t, WithRepositoryLogger(logger))
		openAccount(t, repo, "acc-1", 10)
		require.NoError(t, adapter.SaveSnapshot(ctx, repo.Snapshots().Table(), adapters.SnapshotRecord{
			AggregateID: "acc-1", AggregateVersion: 2, State: []byte("{broken"),
		}))

		loaded, err := repo.Hydrate(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), loaded.Balance)
		assert.Contains(t, logger.warnings(), "Ignoring unreadable snapshot")
	})

	t.Run("snapshot rejects unsaved aggregates", func(t *testing.T) {
		repo, _, _ := newTestRepository(t)
		a := openAccount(t, repo, "acc-1", 0)
		_, err := a.Deposit(1)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Snapshot(ctx, a), ErrInvalidArgument)
		assert.ErrorIs(t, repo.Snapshot(ctx, newTestAccount("acc-2")), ErrNotFound)
	})
}

func TestRepository_HydrateAt(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepository(t, WithSnapshotEvery(2), WithCache(newMapCache()))
	a := openAccount(t, repo, "acc-1", 10) // v2, snapshot at 2
	for i := 0; i < 3; i++ {
		_, err := a.Deposit(1)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, a, nil))
	} // v5, snapshot at 4

	tests := []struct {
		version int64
		balance int64
	}{
		{1, 0},
		{2, 10},
		{3, 11},
		{4, 12},
		{5, 13},
		{99, 13},
	}
	for _, tt := range tests {
		past, err := repo.HydrateAt(ctx, "acc-1", tt.version)
		require.NoError(t, err)
		assert.Equal(t, tt.balance, past.Balance, "version %d", tt.version)
		assert.Equal(t, min(tt.version, 5), past.Version())
	}

	_, err := repo.HydrateAt(ctx, "", 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = repo.HydrateAt(ctx, "acc-404", 2)
	assert.ErrorIs(t, err, ErrNotFound)

	current, err := repo.HydrateAt(ctx, "acc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), current.Version())
}

func TestRepository_LoadState(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepository(t)

	_, err := repo.LoadState(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = repo.LoadState(ctx, "acc-404")
	assert.ErrorIs(t, err, ErrNotFound)
}
