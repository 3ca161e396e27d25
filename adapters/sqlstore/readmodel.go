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
	rowColumns        = []string{"id", "version", "data", "updated_at"}
	cursorColumns     = []string{"table_name", "last_event_id", "row_count", "created_at"}
	checkpointColumns = []string{"projection_name", "position", "updated_at"}
)

type readModelRow struct {
	ID        string    `db:"id"`
	Version   int64     `db:"version"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r readModelRow) record() adapters.RowRecord {
	return adapters.RowRecord{ID: r.ID, Version: r.Version, Data: r.Data, UpdatedAt: r.UpdatedAt}
}

type cursorRow struct {
	Table       string    `db:"table_name"`
	LastEventID int64     `db:"last_event_id"`
	Rows        int64     `db:"row_count"`
	CreatedAt   time.Time `db:"created_at"`
}

// EnsureReadModelTable creates a read-model table and its snapshot twin.
func (s *Store) EnsureReadModelTable(ctx context.Context, table string) error {
	if err := adapters.ValidateIdentifier(table); err != nil {
		return err
	}
	return s.exec(ctx, "create read model table", ReadModelDDL(s.dialect, s.schema, table))
}

func (s *Store) selectRows(table string) string {
	return fmt.Sprintf(`SELECT id, version, data, updated_at FROM %s`, s.table(table))
}

func (s *Store) checkTable(table string) error {
	if s.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	return adapters.ValidateIdentifier(table)
}

// GetRow returns one read-model row, or nil.
func (s *Store) GetRow(ctx context.Context, table, id string) (*adapters.RowRecord, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	var row readModelRow
	err := s.db.GetContext(ctx, &row, s.rebind(s.selectRows(table)+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.errorf("failed to get row", err)
	}
	rec := row.record()
	return &rec, nil
}

// ListRows returns rows with id > afterID ordered by id.
func (s *Store) ListRows(ctx context.Context, table, afterID string, limit int) ([]adapters.RowRecord, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	var rows []readModelRow
	query := s.rebind(s.selectRows(table) + ` WHERE id > ? ORDER BY id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, afterID, adapters.NormalizeLimit(limit)); err != nil {
		return nil, s.errorf("failed to list rows", err)
	}
	return records(rows), nil
}

// PageRows returns rows ordered by id, skipping offset.
func (s *Store) PageRows(ctx context.Context, table string, offset, limit int) ([]adapters.RowRecord, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	var rows []readModelRow
	query := s.rebind(s.selectRows(table) + ` ORDER BY id LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &rows, query, adapters.NormalizeLimit(limit), offset); err != nil {
		return nil, s.errorf("failed to page rows", err)
	}
	return records(rows), nil
}

// CountRows returns the number of rows in table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table(table))); err != nil {
		return 0, s.errorf("failed to count rows", err)
	}
	return n, nil
}

// UpsertRow writes row when it is newer than the stored one.
func (s *Store) UpsertRow(ctx context.Context, table string, row adapters.RowRecord) (bool, error) {
	if err := s.checkTable(table); err != nil {
		return false, err
	}
	if row.ID == "" {
		return false, adapters.ErrEmptyAggregateID
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = s.now()
	}

	query := s.rebind(s.dialect.UpsertIfNewer(s.table(table), table, "id", "version", rowColumns))
	res, err := s.db.ExecContext(ctx, query, row.ID, row.Version, string(row.Data), row.UpdatedAt)
	if err != nil {
		return false, s.errorf("failed to upsert row", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.errorf("failed to read affected rows", err)
	}
	return n > 0, nil
}

// InsertRows bulk-inserts rows in one transaction.
func (s *Store) InsertRows(ctx context.Context, table string, rows []adapters.RowRecord) error {
	if err := s.checkTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.errorf("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, s.rebind(InsertStatement(s.dialect.Quote, s.table(table), rowColumns)))
	if err != nil {
		return s.errorf("failed to prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = s.now()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Version, string(r.Data), updatedAt); err != nil {
			return s.errorf("failed to insert row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.errorf("failed to commit transaction", err)
	}
	return nil
}

// ClearRows deletes every row of table.
func (s *Store) ClearRows(ctx context.Context, table string) error {
	if err := s.checkTable(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table(table))); err != nil {
		return s.errorf("failed to clear rows", err)
	}
	return nil
}

// SaveSnapshotCursor records the cursor of a completed projection snapshot.
func (s *Store) SaveSnapshotCursor(ctx context.Context, record adapters.ProjectionSnapshotRecord) error {
	if err := s.checkTable(record.Table); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	query := s.rebind(s.dialect.Upsert(s.table(s.cursors), "table_name", cursorColumns))
	if _, err := s.db.ExecContext(ctx, query, record.Table, record.LastEventID, record.Rows, record.CreatedAt); err != nil {
		return s.errorf("failed to save snapshot cursor", err)
	}
	return nil
}

// LoadSnapshotCursor returns the projection snapshot cursor, or nil.
func (s *Store) LoadSnapshotCursor(ctx context.Context, table string) (*adapters.ProjectionSnapshotRecord, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	var row cursorRow
	query := s.rebind(fmt.Sprintf(
		`SELECT table_name, last_event_id, row_count, created_at FROM %s WHERE table_name = ?`, s.table(s.cursors)))
	err := s.db.GetContext(ctx, &row, query, table)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.errorf("failed to load snapshot cursor", err)
	}
	return &adapters.ProjectionSnapshotRecord{
		Table:       row.Table,
		LastEventID: row.LastEventID,
		Rows:        row.Rows,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// DeleteSnapshotCursor forgets the projection snapshot cursor.
func (s *Store) DeleteSnapshotCursor(ctx context.Context, table string) error {
	if err := s.checkTable(table); err != nil {
		return err
	}
	query := s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE table_name = ?`, s.table(s.cursors)))
	if _, err := s.db.ExecContext(ctx, query, table); err != nil {
		return s.errorf("failed to delete snapshot cursor", err)
	}
	return nil
}

// GetCheckpoint returns the last processed event id for a projection.
func (s *Store) GetCheckpoint(ctx context.Context, projectionName string) (int64, error) {
	if s.closed.Load() {
		return 0, adapters.ErrAdapterClosed
	}

	var pos int64
	query := s.rebind(fmt.Sprintf(`SELECT position FROM %s WHERE projection_name = ?`, s.table(s.checkpoints)))
	err := s.db.GetContext(ctx, &pos, query, projectionName)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, s.errorf("failed to get checkpoint", err)
	}
	return pos, nil
}

// SetCheckpoint stores the last processed event id for a projection.
func (s *Store) SetCheckpoint(ctx context.Context, projectionName string, position int64) error {
	if s.closed.Load() {
		return adapters.ErrAdapterClosed
	}

	query := s.rebind(s.dialect.Upsert(s.table(s.checkpoints), "projection_name", checkpointColumns))
	if _, err := s.db.ExecContext(ctx, query, projectionName, position, s.now()); err != nil {
		return s.errorf("failed to set checkpoint", err)
	}
	return nil
}

func records(rows []readModelRow) []adapters.RowRecord {
	out := make([]adapters.RowRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out
}
