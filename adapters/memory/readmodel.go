package memory

import (
	"context"
	"sort"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// EnsureReadModelTable registers the live table and its snapshot twin.
func (a *MemoryAdapter) EnsureReadModelTable(ctx context.Context, table string) error {
	if err := adapters.ValidateIdentifier(table); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, name := range []string{table, adapters.SnapshotTable(table)} {
		if a.tables[name] == nil {
			a.tables[name] = make(map[string]adapters.RowRecord)
		}
	}
	return nil
}

// GetRow returns one row, or nil.
func (a *MemoryAdapter) GetRow(ctx context.Context, table, id string) (*adapters.RowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	row, ok := a.tables[table][id]
	if !ok {
		return nil, nil
	}
	row.Data = append([]byte(nil), row.Data...)
	return &row, nil
}

// ListRows returns rows with id > afterID ordered by id.
func (a *MemoryAdapter) ListRows(ctx context.Context, table, afterID string, limit int) ([]adapters.RowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	rows := a.sortedRows(table)
	start := sort.Search(len(rows), func(i int) bool { return rows[i].ID > afterID })
	rows = rows[start:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// PageRows returns rows ordered by id, skipping offset.
func (a *MemoryAdapter) PageRows(ctx context.Context, table string, offset, limit int) ([]adapters.RowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	rows := a.sortedRows(table)
	if offset >= len(rows) {
		return []adapters.RowRecord{}, nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// CountRows returns the number of rows in table.
func (a *MemoryAdapter) CountRows(ctx context.Context, table string) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int64(len(a.tables[table])), nil
}

// UpsertRow writes row unless the stored version is already at or above row.Version.
func (a *MemoryAdapter) UpsertRow(ctx context.Context, table string, row adapters.RowRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if row.ID == "" {
		return false, adapters.ErrEmptyAggregateID
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.table(table)
	if existing, ok := t[row.ID]; ok && existing.Version >= row.Version {
		return false, nil
	}
	row.Data = append([]byte(nil), row.Data...)
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = a.now()
	}
	t[row.ID] = row
	return true, nil
}

// InsertRows copies rows into table as they are.
func (a *MemoryAdapter) InsertRows(ctx context.Context, table string, rows []adapters.RowRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.table(table)
	for _, row := range rows {
		row.Data = append([]byte(nil), row.Data...)
		t[row.ID] = row
	}
	return nil
}

// ClearRows deletes every row of table.
func (a *MemoryAdapter) ClearRows(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.tables[table] = make(map[string]adapters.RowRecord)
	return nil
}

// SaveSnapshotCursor stores the projection snapshot cursor.
func (a *MemoryAdapter) SaveSnapshotCursor(ctx context.Context, record adapters.ProjectionSnapshotRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = a.now()
	}
	a.cursors[record.Table] = record
	return nil
}

// LoadSnapshotCursor returns the projection snapshot cursor, or nil.
func (a *MemoryAdapter) LoadSnapshotCursor(ctx context.Context, table string) (*adapters.ProjectionSnapshotRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.cursors[table]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// DeleteSnapshotCursor forgets the projection snapshot cursor.
func (a *MemoryAdapter) DeleteSnapshotCursor(ctx context.Context, table string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cursors, table)
	return nil
}

func (a *MemoryAdapter) table(name string) map[string]adapters.RowRecord {
	t, ok := a.tables[name]
	if !ok {
		t = make(map[string]adapters.RowRecord)
		a.tables[name] = t
	}
	return t
}

func (a *MemoryAdapter) sortedRows(table string) []adapters.RowRecord {
	t := a.tables[table]
	rows := make([]adapters.RowRecord, 0, len(t))
	for _, row := range t {
		row.Data = append([]byte(nil), row.Data...)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}
