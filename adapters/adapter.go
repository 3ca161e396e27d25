// Package adapters provides the storage contracts implemented by ledger backends.
package adapters

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// to enable consistent error handling across different backends.
var (
	// ErrConcurrencyConflict is returned when an insert violates the
	// (aggregate_id, aggregate_version) uniqueness constraint.
	ErrConcurrencyConflict = errors.New("ledger: concurrency conflict")

	// ErrEmptyAggregateID is returned when an empty aggregate ID is provided.
	ErrEmptyAggregateID = errors.New("ledger: aggregate ID is required")

	// ErrNoEvents is returned when attempting to append zero events.
	ErrNoEvents = errors.New("ledger: no events to append")

	// ErrInvalidEvent is returned when an event batch is malformed.
	ErrInvalidEvent = errors.New("ledger: invalid event")

	// ErrInvalidIdentifier is returned when a table or schema name is not a safe SQL identifier.
	ErrInvalidIdentifier = errors.New("ledger: invalid identifier")

	// ErrAdapterClosed is returned when operations are attempted on a closed adapter.
	ErrAdapterClosed = errors.New("ledger: adapter is closed")

	// ErrTxDone is returned when a transaction is used after Commit or Rollback.
	ErrTxDone = errors.New("ledger: transaction already finished")
)

// EventRecord is an event ready to be written to the event table.
type EventRecord struct {
	// Name identifies the event type for replay and dispatch.
	Name string

	// SchemaVersion is the revision of the payload shape for Name.
	SchemaVersion int

	// AggregateID is the aggregate the event belongs to.
	AggregateID string

	// AggregateVersion is the aggregate's version after the event is applied.
	AggregateVersion int64

	// Body is the JSON encoded payload.
	Body []byte
}

// StoredEvent is an event row as persisted by the backend.
type StoredEvent struct {
	// ID is the global, monotonically increasing insertion id.
	ID int64

	Name             string
	SchemaVersion    int
	AggregateID      string
	AggregateVersion int64
	Body             []byte
	RecordedAt       time.Time
}

// StateRecord is the latest serialized state of one aggregate.
type StateRecord struct {
	AggregateID      string
	AggregateVersion int64
	State            []byte
	UpdatedAt        time.Time
}

// SnapshotRecord is a point-in-time aggregate state used to shortcut replay.
type SnapshotRecord struct {
	AggregateID      string
	AggregateVersion int64
	State            []byte
	CreatedAt        time.Time
}

// RowRecord is one read-model row keyed by aggregate id.
type RowRecord struct {
	ID        string
	Version   int64
	Data      []byte
	UpdatedAt time.Time
}

// ProjectionSnapshotRecord describes the bulk copy of a read-model table.
type ProjectionSnapshotRecord struct {
	Table       string
	LastEventID int64
	Rows        int64
	CreatedAt   time.Time
}

// Tx is a unit of work spanning the event append and the state upsert of one save.
// Nothing written through a Tx is visible until Commit succeeds.
type Tx interface {
	// AppendEvents inserts one event row per record. A duplicate
	// (aggregate_id, aggregate_version) pair fails with ErrConcurrencyConflict.
	AppendEvents(ctx context.Context, records []EventRecord) ([]StoredEvent, error)

	// UpsertState inserts or replaces the state row for record.AggregateID in table.
	UpsertState(ctx context.Context, table string, record StateRecord) error

	// Commit makes the unit of work durable.
	Commit() error

	// Rollback discards the unit of work. Calling it after Commit is a no-op.
	Rollback() error
}

// EventStoreAdapter is the append-only event log.
type EventStoreAdapter interface {
	// Initialize creates the event and checkpoint tables if needed.
	Initialize(ctx context.Context) error

	// BeginTx starts a unit of work.
	BeginTx(ctx context.Context) (Tx, error)

	// Load returns the events of one aggregate with aggregate_version > afterVersion, ascending.
	Load(ctx context.Context, aggregateID string, afterVersion int64) ([]StoredEvent, error)

	// LoadByNames returns up to limit events whose name is in names and whose
	// id is greater than afterID, ordered by id. An empty names slice matches every event.
	LoadByNames(ctx context.Context, names []string, afterID int64, limit int) ([]StoredEvent, error)

	// LastEventID returns the highest event id, or 0 for an empty log.
	LastEventID(ctx context.Context) (int64, error)

	// Close releases resources held by the adapter.
	Close() error
}

// StateAdapter reads the per-aggregate-type state tables written through Tx.UpsertState.
type StateAdapter interface {
	// EnsureStateTable creates the state table if it does not exist.
	EnsureStateTable(ctx context.Context, table string) error

	// LoadState returns the state row, or nil if there is none.
	LoadState(ctx context.Context, table, aggregateID string) (*StateRecord, error)
}

// SnapshotAdapter persists aggregate snapshots, one table per aggregate type.
type SnapshotAdapter interface {
	// EnsureSnapshotTable creates the snapshot table if it does not exist.
	EnsureSnapshotTable(ctx context.Context, table string) error

	// SaveSnapshot inserts a snapshot. Saving the same (id, version) twice is a no-op.
	SaveSnapshot(ctx context.Context, table string, record SnapshotRecord) error

	// LoadSnapshot returns the highest-version snapshot with version <= maxVersion,
	// or nil if there is none. A maxVersion <= 0 means no upper bound.
	LoadSnapshot(ctx context.Context, table, aggregateID string, maxVersion int64) (*SnapshotRecord, error)
}

// ReadModelAdapter stores denormalized read-model rows. The row operations
// work on any table created by EnsureReadModelTable, which is how the
// projection snapshot copy reuses them.
type ReadModelAdapter interface {
	// EnsureReadModelTable creates the live table and its snapshot twin.
	EnsureReadModelTable(ctx context.Context, table string) error

	// GetRow returns one row, or nil if there is none.
	GetRow(ctx context.Context, table, id string) (*RowRecord, error)

	// ListRows returns up to limit rows with id > afterID ordered by id.
	ListRows(ctx context.Context, table, afterID string, limit int) ([]RowRecord, error)

	// PageRows returns up to limit rows ordered by id, skipping offset rows.
	PageRows(ctx context.Context, table string, offset, limit int) ([]RowRecord, error)

	// CountRows returns the number of rows in table.
	CountRows(ctx context.Context, table string) (int64, error)

	// UpsertRow writes row only when no row exists or the stored version is
	// lower than row.Version. It reports whether the write was applied.
	UpsertRow(ctx context.Context, table string, row RowRecord) (bool, error)

	// InsertRows bulk-inserts rows as they are.
	InsertRows(ctx context.Context, table string, rows []RowRecord) error

	// ClearRows deletes every row of table.
	ClearRows(ctx context.Context, table string) error

	// SaveSnapshotCursor records the event cursor of a completed projection snapshot.
	SaveSnapshotCursor(ctx context.Context, record ProjectionSnapshotRecord) error

	// LoadSnapshotCursor returns the cursor for table, or nil if no snapshot is complete.
	LoadSnapshotCursor(ctx context.Context, table string) (*ProjectionSnapshotRecord, error)

	// DeleteSnapshotCursor forgets the snapshot cursor for table.
	DeleteSnapshotCursor(ctx context.Context, table string) error
}

// CheckpointAdapter manages projection delivery checkpoints.
type CheckpointAdapter interface {
	// GetCheckpoint returns the last processed event id for a projection.
	// Returns 0 if no checkpoint exists.
	GetCheckpoint(ctx context.Context, projectionName string) (int64, error)

	// SetCheckpoint stores the last processed event id for a projection.
	SetCheckpoint(ctx context.Context, projectionName string, position int64) error
}

// HealthChecker provides health check capabilities.
type HealthChecker interface {
	// Ping checks if the adapter can reach its backend.
	Ping(ctx context.Context) error
}

// Backend is the full set of capabilities a storage backend offers.
type Backend interface {
	EventStoreAdapter
	StateAdapter
	SnapshotAdapter
	ReadModelAdapter
	CheckpointAdapter
}
