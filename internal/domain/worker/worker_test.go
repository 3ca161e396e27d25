package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
)

func hired(t *testing.T) *Worker {
	t.Helper()
	w := New("")
	_, err := w.Hire(Hire{ID: "wk-1", Name: "Grace", Skills: []string{" Brakes", "tyres", "brakes"}})
	require.NoError(t, err)
	return w
}

func TestWorker_Hire(t *testing.T) {
	w := hired(t)
	assert.Equal(t, []string{"brakes", "tyres"}, w.Skills)
	assert.True(t, w.Available)
	assert.True(t, w.HasSkill("Brakes"))

	_, err := New("").Hire(Hire{Name: " "})
	assert.ErrorIs(t, err, ledger.ErrDomainRuleViolation)
}

func TestWorker_UpdateSkills(t *testing.T) {
	w := hired(t)

	events, err := w.UpdateSkills(UpdateSkills{Skills: []string{"tyres", "BRAKES"}})
	require.NoError(t, err)
	assert.Empty(t, events, "same set in another order")

	events, err = w.UpdateSkills(UpdateSkills{Skills: []string{"engine"}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, w.HasSkill("brakes"))
}

func TestWorker_AvailabilityAndDismissal(t *testing.T) {
	w := hired(t)

	events, err := w.SetAvailability(SetAvailability{Available: true})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = w.SetAvailability(SetAvailability{Available: false})
	require.NoError(t, err)
	assert.False(t, w.Available)

	_, err = w.Dismiss(Dismiss{Reason: "contract ended"})
	require.NoError(t, err)
	require.NotNil(t, w.DismissedAt)

	_, err = w.SetAvailability(SetAvailability{Available: true})
	assert.ErrorIs(t, err, ledger.ErrDomainRuleViolation)
	_, err = New("ghost").Dismiss(Dismiss{})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{}, normalize(nil))
	assert.Equal(t, []string{"a", "b"}, normalize([]string{"B", "", " a ", "b"}))
}

func TestView_Snapshot(t *testing.T) {
	ctx := context.Background()
	adapter := memory.NewAdapter()
	view, err := NewView(adapter, ledger.WithPageSize(1))
	require.NoError(t, err)
	require.NoError(t, view.Initialize(ctx))

	for _, id := range []string{"wk-1", "wk-2", "wk-3"} {
		w := New(id)
		_, err := w.Hire(Hire{Name: "W " + id})
		require.NoError(t, err)
		for _, e := range w.UncommittedEvents() {
			require.NoError(t, view.Apply(ctx, e))
		}
	}

	snap, err := view.CreateSnapshot(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Rows)

	require.NoError(t, view.Clear(ctx))
	n, err := view.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pos, err := view.ApplySnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	rows, err := view.GetAll(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "W wk-1", rows[0].Name)
	assert.True(t, rows[2].Employed)
}
