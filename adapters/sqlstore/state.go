package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

var (
	stateColumns    = []string{"aggregate_id", "aggregate_version", "state", "updated_at"}
	snapshotColumns = []string{"aggregate_id", "aggregate_version", "state", "created_at"}
)

type stateRow struct {
	AggregateID      string    `db:"aggregate_id"`
	AggregateVersion int64     `db:"aggregate_version"`
	State            []byte    `db:"state"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type snapshotRow struct {
	AggregateID      string    `db:"aggregate_id"`
	AggregateVersion int64     `db:"aggregate_version"`
	State            []byte    `db:"state"`
	CreatedAt        time.Time `db:"created_at"`
}

// EnsureStateTable creates an aggregate state table.
func (s *Store) EnsureStateTable(ctx context.Context, table string) error {
	if err := adapters.ValidateIdentifier(table); err != nil {
		return err
	}
	return s.exec(ctx, "create state table", StateDDL(s.dialect, s.schema, table))
}

// LoadState returns the state row for aggregateID, or nil.
func (s *Store) LoadState(ctx context.Context, table, aggregateID string) (*adapters.StateRecord, error) {
	if s.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if err := adapters.ValidateIdentifier(table); err != nil {
		return nil, err
	}

	var row stateRow
	query := s.rebind(fmt.Sprintf(
		`SELECT aggregate_id, aggregate_version, state, updated_at FROM %s WHERE aggregate_id = ?`,
		s.table(table)))
	err := s.db.GetContext(ctx, &row, query, aggregateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.errorf("failed to load state", err)
	}

	return &adapters.StateRecord{
		AggregateID:      row.AggregateID,
		AggregateVersion: row.AggregateVersion,
		State:            row.State,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

// EnsureSnapshotTable creates an aggregate snapshot table.
func (s *Store) EnsureSnapshotTable(ctx context.Context, table string) error {
	if err := adapters.ValidateIdentifier(table); err != nil {
		return err
	}
	return s.exec(ctx, "create snapshot table", SnapshotDDL(s.dialect, s.schema, table))
}

// SaveSnapshot inserts an aggregate snapshot, ignoring duplicates.
func (s *Store) SaveSnapshot(ctx context.Context, table string, record adapters.SnapshotRecord) error {
	if s.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	if record.AggregateID == "" {
		return adapters.ErrEmptyAggregateID
	}
	if err := adapters.ValidateIdentifier(table); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	query := s.rebind(s.dialect.InsertIgnore(s.table(table), snapshotColumns))
	_, err := s.db.ExecContext(ctx, query,
		record.AggregateID, record.AggregateVersion, string(record.State), record.CreatedAt)
	if err != nil {
		return s.errorf("failed to save snapshot", err)
	}
	return nil
}

// LoadSnapshot returns the highest snapshot at or below maxVersion, or nil.
func (s *Store) LoadSnapshot(ctx context.Context, table, aggregateID string, maxVersion int64) (*adapters.SnapshotRecord, error) {
	if s.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if err := adapters.ValidateIdentifier(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT aggregate_id, aggregate_version, state, created_at FROM %s WHERE aggregate_id = ?`,
		s.table(table))
	args := []interface{}{aggregateID}
	if maxVersion > 0 {
		query += ` AND aggregate_version <= ?`
		args = append(args, maxVersion)
	}
	query += ` ORDER BY aggregate_version DESC LIMIT 1`

	var row snapshotRow
	err := s.db.GetContext(ctx, &row, s.rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.errorf("failed to load snapshot", err)
	}

	return &adapters.SnapshotRecord{
		AggregateID:      row.AggregateID,
		AggregateVersion: row.AggregateVersion,
		State:            row.State,
		CreatedAt:        row.CreatedAt,
	}, nil
}
