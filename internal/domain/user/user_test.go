package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
)

func TestUser_Register(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Register
		wantErr bool
		role    Role
	}{
		{name: "defaults to viewer", cmd: Register{Email: "Ops@Example.com"}, role: RoleViewer},
		{name: "explicit role", cmd: Register{Email: "a@b.io", Role: RoleAdmin}, role: RoleAdmin},
		{name: "missing email", cmd: Register{Name: "x"}, wantErr: true},
		{name: "malformed email", cmd: Register{Email: "not-an-email"}, wantErr: true},
		{name: "unknown role", cmd: Register{Email: "a@b.io", Role: "root"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := New("")
			_, err := u.Register(tt.cmd)
			if tt.wantErr {
				assert.ErrorIs(t, err, ledger.ErrDomainRuleViolation)
				assert.False(t, u.Exists())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, u.Role)
			assert.True(t, u.Active)
		})
	}
}

func TestUser_EmailIsNormalized(t *testing.T) {
	u := New("u-1")
	_, err := u.Register(Register{Email: "  Ops@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", u.Email)
}

func TestUser_ChangeRoleAndDeactivate(t *testing.T) {
	u := New("u-1")
	_, err := u.Register(Register{Email: "a@b.io"})
	require.NoError(t, err)

	events, err := u.ChangeRole(ChangeRole{Role: RoleOperator})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, RoleChanged{From: RoleViewer, To: RoleOperator}, events[0].Payload)

	events, err = u.ChangeRole(ChangeRole{Role: RoleOperator})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = u.Deactivate(Deactivate{Reason: "left"})
	require.NoError(t, err)
	assert.False(t, u.Active)

	_, err = u.ChangeRole(ChangeRole{Role: RoleAdmin})
	assert.ErrorIs(t, err, ledger.ErrDomainRuleViolation)

	_, err = u.Delete(Delete{})
	require.NoError(t, err)
	assert.True(t, u.Deleted)
}

func TestUser_SnapshotCadence(t *testing.T) {
	ctx := context.Background()
	registry := ledger.NewEventRegistry()
	require.NoError(t, RegisterEvents(registry))
	store := ledger.New(memory.NewAdapter(), ledger.WithRegistry(registry))

	repo, err := ledger.NewRepository(store, New, ledger.WithSnapshotEvery(2))
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(ctx))

	u := New("")
	_, err = u.Register(Register{ID: "u-1", Email: "a@b.io"})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, u, nil))

	snap, err := repo.Snapshots().Latest(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, err = u.ChangeRole(ChangeRole{Role: RoleAdmin})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, u, nil))

	snap, err = repo.Snapshots().Latest(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(2), snap.AggregateVersion)

	loaded, err := repo.Hydrate(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, loaded.Role)
	assert.Equal(t, int64(2), loaded.Version())
}

func TestView(t *testing.T) {
	ctx := context.Background()
	view, err := NewView(memory.NewAdapter())
	require.NoError(t, err)
	require.NoError(t, view.Initialize(ctx))

	u := New("u-1")
	_, err = u.Register(Register{Email: "a@b.io", Name: "Ann"})
	require.NoError(t, err)
	_, err = u.Deactivate(Deactivate{})
	require.NoError(t, err)
	for _, e := range u.UncommittedEvents() {
		require.NoError(t, view.Apply(ctx, e))
	}

	row, err := view.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", row.Name)
	assert.False(t, row.Active)
}
