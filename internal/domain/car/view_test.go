package car

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
)

// failOnce fails the first delivery of one event name, then delegates.
type failOnce struct {
	ledger.Projection
	event  string
	failed bool
}

func (p *failOnce) Apply(ctx context.Context, e ledger.Event) error {
	if e.Name == p.event && !p.failed {
		p.failed = true
		return errors.New("view store unavailable")
	}
	return p.Projection.Apply(ctx, e)
}

func TestView_MissedMileageIsRecoveredByCatchUp(t *testing.T) {
	ctx := context.Background()

	registry := ledger.NewEventRegistry()
	require.NoError(t, RegisterEvents(registry))
	adapter := memory.NewAdapter()
	store := ledger.New(adapter, ledger.WithRegistry(registry))

	view, err := NewView(adapter)
	require.NoError(t, err)
	require.NoError(t, view.Initialize(ctx))

	d := ledger.NewDispatcher(ledger.WithDispatcherCheckpoints(adapter))
	require.NoError(t, d.Register(&failOnce{Projection: view, event: "CarMileageRecorded"}))

	repo, err := ledger.NewRepository(store, New, ledger.WithDispatcher(d))
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(ctx))

	c := New("car-1")
	_, err = c.Register(Register{Plate: "AB-123", Make: "Volvo", Model: "V60", Year: 2021, Mileage: 100})
	require.NoError(t, err)
	_, err = c.RecordMileage(RecordMileage{Mileage: 500})
	require.NoError(t, err)
	_, err = c.AssignOwner(AssignOwner{CustomerID: "cust-1"})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c, nil), "delivery failures do not fail the save")

	row, err := view.GetByID(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), row.Mileage)
	assert.Empty(t, row.OwnerID, "owner is withheld behind the failed mileage")
	assert.Equal(t, []string{ViewTable}, d.Halted())

	n, err := ledger.NewProjector(store, adapter, view).CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	row, err = view.GetByID(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), row.Mileage)
	assert.Equal(t, "cust-1", row.OwnerID)

	// Live delivery resumes once the checkpoint has passed the withheld events.
	_, err = c.RecordMileage(RecordMileage{Mileage: 900})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c, nil))

	assert.Empty(t, d.Halted())
	row, err = view.GetByID(ctx, "car-1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), row.Mileage)
	assert.Equal(t, "cust-1", row.OwnerID)
}
