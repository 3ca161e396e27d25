package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Snapshot is one aggregate's serialized state at a version. It only
// shortcuts replay; the event log stays authoritative.
type Snapshot struct {
	AggregateID      string
	AggregateVersion int64
	State            []byte
	CreatedAt        time.Time
}

// SnapshotStore persists aggregate snapshots in one table per aggregate type.
type SnapshotStore struct {
	adapter adapters.SnapshotAdapter
	table   string
}

// NewSnapshotStore creates a snapshot store writing to table.
func NewSnapshotStore(adapter adapters.SnapshotAdapter, table string) (*SnapshotStore, error) {
	if adapter == nil {
		return nil, InvalidArgument(errors.New("snapshot adapter is required"))
	}
	if err := adapters.ValidateIdentifier(table); err != nil {
		return nil, InvalidArgument(err)
	}
	return &SnapshotStore{adapter: adapter, table: table}, nil
}

// Table returns the snapshot table name.
func (s *SnapshotStore) Table() string {
	return s.table
}

// Initialize creates the snapshot table.
func (s *SnapshotStore) Initialize(ctx context.Context) error {
	return s.adapter.EnsureSnapshotTable(ctx, s.table)
}

// Latest returns the highest-version snapshot of aggregateID, or nil.
func (s *SnapshotStore) Latest(ctx context.Context, aggregateID string) (*Snapshot, error) {
	return s.LatestAt(ctx, aggregateID, 0)
}

// LatestAt returns the highest-version snapshot with version <= maxVersion,
// or nil. A maxVersion <= 0 means no bound.
func (s *SnapshotStore) LatestAt(ctx context.Context, aggregateID string, maxVersion int64) (*Snapshot, error) {
	if aggregateID == "" {
		return nil, InvalidArgument(ErrEmptyAggregateID)
	}

	rec, err := s.adapter.LoadSnapshot(ctx, s.table, aggregateID, maxVersion)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to load snapshot of %q: %w", aggregateID, err)
	}
	if rec == nil {
		return nil, nil
	}
	return &Snapshot{
		AggregateID:      rec.AggregateID,
		AggregateVersion: rec.AggregateVersion,
		State:            rec.State,
		CreatedAt:        rec.CreatedAt,
	}, nil
}

// Save stores state for aggregateID at version.
func (s *SnapshotStore) Save(ctx context.Context, aggregateID string, version int64, state []byte) error {
	if aggregateID == "" {
		return InvalidArgument(ErrEmptyAggregateID)
	}
	if version < 1 {
		return InvalidArgument(fmt.Errorf("snapshot version must be positive, got %d", version))
	}

	err := s.adapter.SaveSnapshot(ctx, s.table, adapters.SnapshotRecord{
		AggregateID:      aggregateID,
		AggregateVersion: version,
		State:            state,
	})
	if err != nil {
		return fmt.Errorf("ledger: failed to save snapshot of %q: %w", aggregateID, err)
	}
	return nil
}
