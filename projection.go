package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// DefaultPageSize is the number of rows copied per page by projection
// snapshots and returned by GetAll when no page size is given.
const DefaultPageSize = 100

// ErrNoProjectionSnapshot is returned by ApplySnapshot when no complete snapshot exists.
var ErrNoProjectionSnapshot = errors.New("ledger: no projection snapshot")

// Projection is a sink for events, keyed by event name.
type Projection interface {
	// Name identifies the projection for checkpoints.
	Name() string

	// HandledEvents returns the event names this projection consumes.
	HandledEvents() []string

	// Apply processes one event. Redelivered events must be harmless.
	Apply(ctx context.Context, event Event) error
}

// ProjectionSnapshot describes a bulk copy of a read-model table. It is a
// different mechanism from an aggregate Snapshot.
type ProjectionSnapshot struct {
	Table       string
	LastEventID int64
	Rows        int64
	CreatedAt   time.Time
}

// Handler updates row for event. row holds the current row, or the zero
// value when the aggregate has no row yet.
type Handler[T any] func(row *T, event Event) error

// ProjectionStats counts events delivered to a read model.
type ProjectionStats struct {
	Applied int64
	Skipped int64
	Failed  int64
}

// ReadModel maintains one denormalized table with a row per aggregate.
//
// Every row carries the aggregate version of the last event applied to it.
// Events at or below that version are ignored and counted as skipped, so
// redelivery leaves the row unchanged.
type ReadModel[T any] struct {
	name     string
	table    string
	adapter  adapters.ReadModelAdapter
	handlers map[string]Handler[T]
	pageSize int
	logger   Logger
	observer Observer

	applied atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// ReadModelOption configures a ReadModel.
type ReadModelOption func(*readModelConfig)

type readModelConfig struct {
	name     string
	pageSize int
	logger   Logger
	observer Observer
}

// WithProjectionName sets the checkpoint name (default: the table name).
func WithProjectionName(name string) ReadModelOption {
	return func(c *readModelConfig) {
		c.name = name
	}
}

// WithPageSize sets the snapshot copy page size.
func WithPageSize(n int) ReadModelOption {
	return func(c *readModelConfig) {
		c.pageSize = n
	}
}

// WithProjectionLogger sets the logger for the read model.
func WithProjectionLogger(l Logger) ReadModelOption {
	return func(c *readModelConfig) {
		c.logger = l
	}
}

// WithProjectionObserver sets the metrics observer for the read model.
func WithProjectionObserver(o Observer) ReadModelOption {
	return func(c *readModelConfig) {
		c.observer = o
	}
}

// NewReadModel creates a read model stored in table.
func NewReadModel[T any](adapter adapters.ReadModelAdapter, table string, opts ...ReadModelOption) (*ReadModel[T], error) {
	if adapter == nil {
		return nil, InvalidArgument(errors.New("read model adapter is required"))
	}
	if err := adapters.ValidateIdentifier(table); err != nil {
		return nil, InvalidArgument(err)
	}
	if err := adapters.ValidateIdentifier(adapters.SnapshotTable(table)); err != nil {
		return nil, InvalidArgument(err)
	}

	cfg := &readModelConfig{
		name:     table,
		pageSize: DefaultPageSize,
		logger:   &noopLogger{},
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.pageSize <= 0 {
		cfg.pageSize = DefaultPageSize
	}

	return &ReadModel[T]{
		name:     cfg.name,
		table:    table,
		adapter:  adapter,
		handlers: make(map[string]Handler[T]),
		pageSize: cfg.pageSize,
		logger:   cfg.logger,
		observer: cfg.observer,
	}, nil
}

// On registers the handler for eventName, replacing any previous one.
func (m *ReadModel[T]) On(eventName string, h Handler[T]) *ReadModel[T] {
	m.handlers[eventName] = h
	return m
}

// Handle registers a handler receiving the typed payload P.
func Handle[T any, P Payload](m *ReadModel[T], h func(row *T, payload P, event Event) error) {
	var zero P
	m.On(zero.EventName(), func(row *T, e Event) error {
		p, ok := e.Payload.(P)
		if !ok {
			return fmt.Errorf("ledger: %s: unexpected payload %T for %q", m.name, e.Payload, e.Name)
		}
		return h(row, p, e)
	})
}

// Name returns the projection name.
func (m *ReadModel[T]) Name() string {
	return m.name
}

// Table returns the live table name.
func (m *ReadModel[T]) Table() string {
	return m.table
}

// HandledEvents returns the registered event names, sorted.
func (m *ReadModel[T]) HandledEvents() []string {
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns delivery counters since the read model was created.
func (m *ReadModel[T]) Stats() ProjectionStats {
	return ProjectionStats{
		Applied: m.applied.Load(),
		Skipped: m.skipped.Load(),
		Failed:  m.failed.Load(),
	}
}

// Initialize creates the live table and its snapshot twin.
func (m *ReadModel[T]) Initialize(ctx context.Context) error {
	return m.adapter.EnsureReadModelTable(ctx, m.table)
}

// Apply runs the handler for event against the aggregate's row.
// Unhandled and stale events are skipped.
func (m *ReadModel[T]) Apply(ctx context.Context, event Event) (err error) {
	start := time.Now()
	applied := false
	defer func() {
		switch {
		case err != nil:
			m.failed.Add(1)
		case applied:
			m.applied.Add(1)
		default:
			m.skipped.Add(1)
		}
		m.observer.ObserveProjection(m.name, event.Name, applied, time.Since(start), err)
	}()

	h, ok := m.handlers[event.Name]
	if !ok {
		return nil
	}
	if event.AggregateID == "" {
		return InvalidArgument(ErrEmptyAggregateID)
	}

	current, err := m.adapter.GetRow(ctx, m.table, event.AggregateID)
	if err != nil {
		return fmt.Errorf("ledger: %s: failed to load row %q: %w", m.name, event.AggregateID, err)
	}

	var row T
	if current != nil {
		if current.Version >= event.AggregateVersion {
			m.logger.Debug("Skipping stale event",
				"projection", m.name, "aggregate_id", event.AggregateID,
				"version", event.AggregateVersion, "stored_version", current.Version)
			return nil
		}
		if err := json.Unmarshal(current.Data, &row); err != nil {
			return NewSerializationError(m.table, "decode", err)
		}
	}

	if err := h(&row, event); err != nil {
		return fmt.Errorf("ledger: %s: handler for %q failed: %w", m.name, event.Name, err)
	}

	data, err := json.Marshal(row)
	if err != nil {
		return NewSerializationError(m.table, "encode", err)
	}

	applied, err = m.adapter.UpsertRow(ctx, m.table, adapters.RowRecord{
		ID:      event.AggregateID,
		Version: event.AggregateVersion,
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("ledger: %s: failed to upsert row %q: %w", m.name, event.AggregateID, err)
	}
	return nil
}

// GetByID returns the row of one aggregate.
func (m *ReadModel[T]) GetByID(ctx context.Context, id string) (*T, error) {
	rec, err := m.adapter.GetRow(ctx, m.table, id)
	if err != nil {
		return nil, fmt.Errorf("ledger: %s: failed to get %q: %w", m.name, id, err)
	}
	if rec == nil {
		return nil, NewNotFoundError(m.table, id)
	}

	var row T
	if err := json.Unmarshal(rec.Data, &row); err != nil {
		return nil, NewSerializationError(m.table, "decode", err)
	}
	return &row, nil
}

// GetAll returns one page of rows ordered by id. page starts at 1; a
// pageSize <= 0 means DefaultPageSize.
func (m *ReadModel[T]) GetAll(ctx context.Context, page, pageSize int) ([]T, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > adapters.MaxLimit {
		pageSize = adapters.MaxLimit
	}

	recs, err := m.adapter.PageRows(ctx, m.table, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: %s: failed to list rows: %w", m.name, err)
	}

	rows := make([]T, len(recs))
	for i, rec := range recs {
		if err := json.Unmarshal(rec.Data, &rows[i]); err != nil {
			return nil, NewSerializationError(m.table, "decode", err)
		}
	}
	return rows, nil
}

// Count returns the number of rows in the live table.
func (m *ReadModel[T]) Count(ctx context.Context) (int64, error) {
	return m.adapter.CountRows(ctx, m.table)
}

// Clear deletes every live row.
func (m *ReadModel[T]) Clear(ctx context.Context) error {
	return m.adapter.ClearRows(ctx, m.table)
}

// CreateSnapshot copies the live table into its snapshot twin page by page
// and tags the copy with lastEventID. Any previous snapshot is replaced.
func (m *ReadModel[T]) CreateSnapshot(ctx context.Context, lastEventID int64) (*ProjectionSnapshot, error) {
	twin := adapters.SnapshotTable(m.table)

	if err := m.adapter.DeleteSnapshotCursor(ctx, m.table); err != nil {
		return nil, fmt.Errorf("ledger: %s: failed to reset snapshot cursor: %w", m.name, err)
	}
	if err := m.adapter.ClearRows(ctx, twin); err != nil {
		return nil, fmt.Errorf("ledger: %s: failed to clear snapshot table: %w", m.name, err)
	}

	copied, err := m.copyRows(ctx, m.table, twin)
	if err != nil {
		return nil, err
	}

	snap := adapters.ProjectionSnapshotRecord{
		Table:       m.table,
		LastEventID: lastEventID,
		Rows:        copied,
	}
	if err := m.adapter.SaveSnapshotCursor(ctx, snap); err != nil {
		return nil, fmt.Errorf("ledger: %s: failed to save snapshot cursor: %w", m.name, err)
	}

	m.logger.Info("Created projection snapshot", "projection", m.name, "rows", copied, "last_event_id", lastEventID)
	return m.Snapshot(ctx)
}

// ApplySnapshot replaces the live table with the snapshot copy and returns
// the event id to resume delivery after.
func (m *ReadModel[T]) ApplySnapshot(ctx context.Context) (int64, error) {
	cursor, err := m.adapter.LoadSnapshotCursor(ctx, m.table)
	if err != nil {
		return 0, fmt.Errorf("ledger: %s: failed to load snapshot cursor: %w", m.name, err)
	}
	if cursor == nil {
		return 0, ErrNoProjectionSnapshot
	}

	if err := m.adapter.ClearRows(ctx, m.table); err != nil {
		return 0, fmt.Errorf("ledger: %s: failed to clear live table: %w", m.name, err)
	}
	restored, err := m.copyRows(ctx, adapters.SnapshotTable(m.table), m.table)
	if err != nil {
		return 0, err
	}

	m.logger.Info("Restored projection snapshot",
		"projection", m.name, "rows", restored, "last_event_id", cursor.LastEventID)
	return cursor.LastEventID, nil
}

// Snapshot returns the metadata of the current projection snapshot, or nil.
func (m *ReadModel[T]) Snapshot(ctx context.Context) (*ProjectionSnapshot, error) {
	cursor, err := m.adapter.LoadSnapshotCursor(ctx, m.table)
	if err != nil {
		return nil, fmt.Errorf("ledger: %s: failed to load snapshot cursor: %w", m.name, err)
	}
	if cursor == nil {
		return nil, nil
	}
	return &ProjectionSnapshot{
		Table:       cursor.Table,
		LastEventID: cursor.LastEventID,
		Rows:        cursor.Rows,
		CreatedAt:   cursor.CreatedAt,
	}, nil
}

// copyRows pages through from by id and inserts each page into to.
func (m *ReadModel[T]) copyRows(ctx context.Context, from, to string) (int64, error) {
	var (
		after  string
		copied int64
	)
	for {
		page, err := m.adapter.ListRows(ctx, from, after, m.pageSize)
		if err != nil {
			return copied, fmt.Errorf("ledger: %s: failed to read %s: %w", m.name, from, err)
		}
		if len(page) == 0 {
			return copied, nil
		}
		if err := m.adapter.InsertRows(ctx, to, page); err != nil {
			return copied, fmt.Errorf("ledger: %s: failed to write %s: %w", m.name, to, err)
		}
		copied += int64(len(page))
		after = page[len(page)-1].ID

		if len(page) < m.pageSize {
			return copied, nil
		}
		if err := ctx.Err(); err != nil {
			return copied, err
		}
	}
}
