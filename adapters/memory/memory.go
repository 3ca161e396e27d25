// Package memory provides an in-memory implementation of the ledger storage adapters.
// This adapter is primarily intended for testing and development purposes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Ensure MemoryAdapter implements all required interfaces.
var (
	_ adapters.Backend       = (*MemoryAdapter)(nil)
	_ adapters.HealthChecker = (*MemoryAdapter)(nil)
	_ adapters.Tx            = (*memoryTx)(nil)
)

type versionKey struct {
	aggregateID string
	version     int64
}

// MemoryAdapter is an in-memory implementation of adapters.Backend.
// It is thread-safe and suitable for unit testing. Like SQLite it allows a
// single writer: BeginTx blocks until the previous transaction finishes.
type MemoryAdapter struct {
	mu         sync.RWMutex
	events     []adapters.StoredEvent
	byVersion  map[versionKey]struct{}
	lastID     int64
	states     map[string]map[string]adapters.StateRecord
	snapshots  map[string]map[string][]adapters.SnapshotRecord
	tables     map[string]map[string]adapters.RowRecord
	cursors    map[string]adapters.ProjectionSnapshotRecord
	checkpoint map[string]int64
	closed     bool

	writer chan struct{}
	now    func() time.Time
}

// Option configures a MemoryAdapter.
type Option func(*MemoryAdapter)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *MemoryAdapter) {
		a.now = now
	}
}

// NewAdapter creates a new in-memory adapter.
func NewAdapter(opts ...Option) *MemoryAdapter {
	adapter := &MemoryAdapter{
		byVersion:  make(map[versionKey]struct{}),
		states:     make(map[string]map[string]adapters.StateRecord),
		snapshots:  make(map[string]map[string][]adapters.SnapshotRecord),
		tables:     make(map[string]map[string]adapters.RowRecord),
		cursors:    make(map[string]adapters.ProjectionSnapshotRecord),
		checkpoint: make(map[string]int64),
		writer:     make(chan struct{}, 1),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// Initialize is a no-op for the memory adapter.
func (a *MemoryAdapter) Initialize(ctx context.Context) error {
	return ctx.Err()
}

// Ping reports whether the adapter is open.
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return adapters.ErrAdapterClosed
	}
	return ctx.Err()
}

// BeginTx starts a transaction, waiting for any running one to finish.
func (a *MemoryAdapter) BeginTx(ctx context.Context) (adapters.Tx, error) {
	select {
	case a.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		<-a.writer
		return nil, adapters.ErrAdapterClosed
	}

	return &memoryTx{adapter: a}, nil
}

// Load returns the events of one aggregate after afterVersion.
func (a *MemoryAdapter) Load(ctx context.Context, aggregateID string, afterVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}
	if aggregateID == "" {
		return nil, adapters.ErrEmptyAggregateID
	}

	result := make([]adapters.StoredEvent, 0)
	for _, e := range a.events {
		if e.AggregateID == aggregateID && e.AggregateVersion > afterVersion {
			result = append(result, copyEvent(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AggregateVersion < result[j].AggregateVersion
	})
	return result, nil
}

// LoadByNames pages through the global log filtered by event name.
func (a *MemoryAdapter) LoadByNames(ctx context.Context, names []string, afterID int64, limit int) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	limit = adapters.NormalizeLimit(limit)
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}

	result := make([]adapters.StoredEvent, 0)
	for _, e := range a.events {
		if e.ID <= afterID {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[e.Name]; !ok {
				continue
			}
		}
		result = append(result, copyEvent(e))
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// LastEventID returns the highest committed event id.
func (a *MemoryAdapter) LastEventID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.events) == 0 {
		return 0, nil
	}
	return a.events[len(a.events)-1].ID, nil
}

// Close marks the adapter closed.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// EventCount returns the number of committed events. Useful in tests.
func (a *MemoryAdapter) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.events)
}

// EnsureStateTable is a no-op for the memory adapter.
func (a *MemoryAdapter) EnsureStateTable(ctx context.Context, table string) error {
	return adapters.ValidateIdentifier(table)
}

// LoadState returns the committed state row for aggregateID.
func (a *MemoryAdapter) LoadState(ctx context.Context, table, aggregateID string) (*adapters.StateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.states[table][aggregateID]
	if !ok {
		return nil, nil
	}
	rec.State = append([]byte(nil), rec.State...)
	return &rec, nil
}

// EnsureSnapshotTable is a no-op for the memory adapter.
func (a *MemoryAdapter) EnsureSnapshotTable(ctx context.Context, table string) error {
	return adapters.ValidateIdentifier(table)
}

// SaveSnapshot stores an aggregate snapshot.
func (a *MemoryAdapter) SaveSnapshot(ctx context.Context, table string, record adapters.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.AggregateID == "" {
		return adapters.ErrEmptyAggregateID
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}

	byID, ok := a.snapshots[table]
	if !ok {
		byID = make(map[string][]adapters.SnapshotRecord)
		a.snapshots[table] = byID
	}
	for _, existing := range byID[record.AggregateID] {
		if existing.AggregateVersion == record.AggregateVersion {
			return nil
		}
	}

	record.State = append([]byte(nil), record.State...)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = a.now()
	}
	byID[record.AggregateID] = append(byID[record.AggregateID], record)
	return nil
}

// LoadSnapshot returns the highest snapshot at or below maxVersion.
func (a *MemoryAdapter) LoadSnapshot(ctx context.Context, table, aggregateID string, maxVersion int64) (*adapters.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	var best *adapters.SnapshotRecord
	for _, s := range a.snapshots[table][aggregateID] {
		if maxVersion > 0 && s.AggregateVersion > maxVersion {
			continue
		}
		if best == nil || s.AggregateVersion > best.AggregateVersion {
			s := s
			best = &s
		}
	}
	if best != nil {
		best.State = append([]byte(nil), best.State...)
	}
	return best, nil
}

// GetCheckpoint returns the last processed event id for a projection.
func (a *MemoryAdapter) GetCheckpoint(ctx context.Context, projectionName string) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.checkpoint[projectionName], nil
}

// SetCheckpoint stores the last processed event id for a projection.
func (a *MemoryAdapter) SetCheckpoint(ctx context.Context, projectionName string, position int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkpoint[projectionName] = position
	return nil
}

func copyEvent(e adapters.StoredEvent) adapters.StoredEvent {
	e.Body = append([]byte(nil), e.Body...)
	return e
}

// memoryTx buffers writes until Commit. It holds the adapter's writer slot
// for its whole lifetime.
type memoryTx struct {
	adapter *MemoryAdapter
	events  []adapters.StoredEvent
	states  map[string]map[string]adapters.StateRecord
	done    bool
}

func (t *memoryTx) AppendEvents(ctx context.Context, records []adapters.EventRecord) ([]adapters.StoredEvent, error) {
	if t.done {
		return nil, adapters.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, adapters.ErrNoEvents
	}
	if err := adapters.ValidateRecords(records[0].AggregateID, records); err != nil {
		return nil, err
	}

	a := t.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range records {
		key := versionKey{r.AggregateID, r.AggregateVersion}
		if _, taken := a.byVersion[key]; taken {
			return nil, adapters.ErrConcurrencyConflict
		}
		for _, pending := range t.events {
			if pending.AggregateID == r.AggregateID && pending.AggregateVersion == r.AggregateVersion {
				return nil, adapters.ErrConcurrencyConflict
			}
		}
	}

	stored := make([]adapters.StoredEvent, len(records))
	for i, r := range records {
		a.lastID++
		stored[i] = adapters.StoredEvent{
			ID:               a.lastID,
			Name:             r.Name,
			SchemaVersion:    r.SchemaVersion,
			AggregateID:      r.AggregateID,
			AggregateVersion: r.AggregateVersion,
			Body:             append([]byte(nil), r.Body...),
			RecordedAt:       a.now(),
		}
	}
	t.events = append(t.events, stored...)
	return stored, nil
}

func (t *memoryTx) UpsertState(ctx context.Context, table string, record adapters.StateRecord) error {
	if t.done {
		return adapters.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.AggregateID == "" {
		return adapters.ErrEmptyAggregateID
	}
	if err := adapters.ValidateIdentifier(table); err != nil {
		return err
	}

	if t.states == nil {
		t.states = make(map[string]map[string]adapters.StateRecord)
	}
	if t.states[table] == nil {
		t.states[table] = make(map[string]adapters.StateRecord)
	}
	record.State = append([]byte(nil), record.State...)
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = t.adapter.now()
	}
	t.states[table][record.AggregateID] = record
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return adapters.ErrTxDone
	}
	t.done = true
	defer func() { <-t.adapter.writer }()

	a := t.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}

	for _, e := range t.events {
		a.byVersion[versionKey{e.AggregateID, e.AggregateVersion}] = struct{}{}
	}
	a.events = append(a.events, t.events...)

	for table, rows := range t.states {
		if a.states[table] == nil {
			a.states[table] = make(map[string]adapters.StateRecord)
		}
		for id, rec := range rows {
			a.states[table][id] = rec
		}
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.adapter.writer
	return nil
}
