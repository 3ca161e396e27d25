package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/car"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/customer"
)

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, 27, r.Count())
	assert.Contains(t, r.Names(), "CarRegistered")
	assert.Contains(t, r.Names(), "WorkerDismissed")

	assert.Error(t, Register(r), "registering twice fails")
}

func TestProjections(t *testing.T) {
	ctx := context.Background()
	set, err := Projections(memory.NewAdapter())
	require.NoError(t, err)
	require.NoError(t, set.Initialize(ctx))

	assert.Len(t, set.All(), 6)
	assert.Equal(t, []string{"car_view", "customer_view", "order_summary", "user_view", "work_board", "worker_roster"}, set.Names())

	m, err := set.ByName("order_summary")
	require.NoError(t, err)
	assert.Equal(t, "order_summary", m.Table())

	_, err = set.ByName("nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRepositories(t *testing.T) {
	ctx := context.Background()
	adapter := memory.NewAdapter()
	registry, err := NewRegistry()
	require.NoError(t, err)
	store := ledger.New(adapter, ledger.WithRegistry(registry))

	set, err := Projections(adapter)
	require.NoError(t, err)
	require.NoError(t, set.Initialize(ctx))
	dispatcher, err := set.Dispatcher()
	require.NoError(t, err)

	repos, err := Repositories(store, ledger.WithDispatcher(dispatcher))
	require.NoError(t, err)
	require.Len(t, repos, len(AggregateTypes))
	for _, typ := range AggregateTypes {
		require.Contains(t, repos, typ)
		require.NoError(t, repos[typ].Initialize(ctx))
	}

	carRepo, err := ledger.NewRepository(store, car.New, ledger.WithDispatcher(dispatcher))
	require.NoError(t, err)
	c := car.New("")
	_, err = c.Register(car.Register{ID: "car-1", Plate: "P-1"})
	require.NoError(t, err)
	_, err = c.RecordMileage(car.RecordMileage{Mileage: 10})
	require.NoError(t, err)
	require.NoError(t, carRepo.Save(ctx, c, nil))

	agg, err := repos[car.AggregateType].Load(ctx, "car-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Version())
	assert.Equal(t, int64(0), agg.(*car.Car).Mileage)

	v, err := repos[car.AggregateType].TakeSnapshot(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = repos[customer.AggregateType].Load(ctx, "cust-404", 0)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	m, err := set.ByName(car.ViewTable)
	require.NoError(t, err)
	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
