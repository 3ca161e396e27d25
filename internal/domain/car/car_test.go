package car

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
)

func newRepo(t *testing.T, opts ...ledger.RepositoryOption) (*ledger.Repository[*Car], *memory.MemoryAdapter) {
	t.Helper()

	registry := ledger.NewEventRegistry()
	require.NoError(t, RegisterEvents(registry))

	adapter := memory.NewAdapter()
	store := ledger.New(adapter, ledger.WithRegistry(registry))
	repo, err := ledger.NewRepository(store, New, opts...)
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(context.Background()))
	return repo, adapter
}

func TestCar_Register(t *testing.T) {
	t.Run("assigns id and raises one event", func(t *testing.T) {
		c := New("")
		events, err := c.Register(Register{Plate: "AB-123", Make: "Volvo", Model: "V60", Year: 2021, Mileage: 1200})
		require.NoError(t, err)

		require.Len(t, events, 1)
		assert.NotEmpty(t, c.AggregateID())
		assert.Equal(t, "CarRegistered", events[0].Name)
		assert.Equal(t, int64(1), events[0].AggregateVersion)
		assert.Equal(t, "AB-123", c.Plate)
		assert.Equal(t, int64(1200), c.Mileage)
	})

	t.Run("keeps the given id", func(t *testing.T) {
		c := New("")
		_, err := c.Register(Register{ID: "car-1", Plate: "X"})
		require.NoError(t, err)
		assert.Equal(t, "car-1", c.AggregateID())
	})

	t.Run("requires a plate", func(t *testing.T) {
		_, err := New("").Register(Register{})
		assert.ErrorIs(t, err, ledger.ErrDomainRuleViolation)
	})

	t.Run("rejects a second registration", func(t *testing.T) {
		c := New("car-1")
		_, err := c.Register(Register{Plate: "X"})
		require.NoError(t, err)

		_, err = c.Register(Register{Plate: "Y"})
		assert.ErrorIs(t, err, ledger.ErrDomainRuleViolation)
	})
}

func TestCar_RecordMileage(t *testing.T) {
	c := New("car-1")
	_, err := c.Register(Register{Plate: "X", Mileage: 100})
	require.NoError(t, err)

	events, err := c.RecordMileage(RecordMileage{Mileage: 150})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), c.Version())

	_, err = c.RecordMileage(RecordMileage{Mileage: 120})
	var rule *ledger.DomainRuleError
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, "mileage cannot decrease", rule.Rule)
	assert.Equal(t, int64(150), c.Mileage)

	events, err = c.RecordMileage(RecordMileage{Mileage: 150})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCar_CommandsRequireHistory(t *testing.T) {
	c := New("car-1")

	_, err := c.RecordMileage(RecordMileage{Mileage: 10})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = c.AssignOwner(AssignOwner{CustomerID: "cust-1"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = c.Delete(Delete{})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCar_Delete(t *testing.T) {
	c := New("car-1")
	_, err := c.Register(Register{Plate: "X"})
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = c.Delete(Delete{At: at})
	require.NoError(t, err)
	require.True(t, c.Deleted())
	assert.Equal(t, at, *c.DeletedAt)

	_, err = c.AssignOwner(AssignOwner{CustomerID: "cust-1"})
	assert.ErrorIs(t, err, ledger.ErrDomainRuleViolation)
}

func TestCar_SaveAndHydrate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	c, err := repo.Hydrate(ctx, "")
	require.NoError(t, err)
	events, err := c.Register(Register{ID: "car-1", Plate: "AB-123", Make: "Saab", Model: "900", Year: 1990})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c, events))

	c, err = repo.Hydrate(ctx, "car-1")
	require.NoError(t, err)
	events, err = c.RecordMileage(RecordMileage{Mileage: 5000})
	require.NoError(t, err)
	more, err := c.AssignOwner(AssignOwner{CustomerID: "cust-9"})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c, append(events, more...)))

	loaded, err := repo.Hydrate(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Version())
	assert.Equal(t, int64(5000), loaded.Mileage)
	assert.Equal(t, "cust-9", loaded.OwnerID)
	assert.Equal(t, "Saab", loaded.Make)

	past, err := repo.HydrateAt(ctx, "car-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), past.Mileage)
	assert.Empty(t, past.OwnerID)
}

func TestCar_StaleWriterConflicts(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	c := New("")
	events, err := c.Register(Register{ID: "car-1", Plate: "X"})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c, events))

	first, err := repo.Hydrate(ctx, "car-1")
	require.NoError(t, err)
	second, err := repo.Hydrate(ctx, "car-1")
	require.NoError(t, err)

	events, err = first.RecordMileage(RecordMileage{Mileage: 10})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, first, events))

	events, err = second.RecordMileage(RecordMileage{Mileage: 20})
	require.NoError(t, err)
	err = repo.Save(ctx, second, events)
	assert.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
	assert.ErrorIs(t, err, ledger.ErrPersistenceFailure)

	loaded, err := repo.Hydrate(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), loaded.Mileage)
}

func TestView(t *testing.T) {
	ctx := context.Background()
	adapter := memory.NewAdapter()

	view, err := NewView(adapter)
	require.NoError(t, err)
	require.NoError(t, view.Initialize(ctx))
	assert.Equal(t, []string{"CarDeleted", "CarMileageRecorded", "CarOwnerAssigned", "CarRegistered"}, view.HandledEvents())

	c := New("car-1")
	events, err := c.Register(Register{Plate: "AB-1", Make: "Volvo", Model: "XC40", Year: 2022})
	require.NoError(t, err)
	more, err := c.RecordMileage(RecordMileage{Mileage: 42})
	require.NoError(t, err)
	events = append(events, more...)

	for _, e := range events {
		require.NoError(t, view.Apply(ctx, e))
	}

	row, err := view.GetByID(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, "Volvo XC40", row.Label)
	assert.Equal(t, int64(42), row.Mileage)
	assert.False(t, row.Deleted)

	// Redelivery leaves the row unchanged.
	require.NoError(t, view.Apply(ctx, events[0]))
	row, err = view.GetByID(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), row.Mileage)
	assert.Equal(t, int64(1), view.Stats().Skipped)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		in   Registered
		want string
	}{
		{"both", Registered{Make: "Volvo", Model: "V60"}, "Volvo V60"},
		{"make only", Registered{Make: "Volvo"}, "Volvo"},
		{"model only", Registered{Model: "V60"}, "V60"},
		{"neither", Registered{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, label(tt.in))
		})
	}
}
