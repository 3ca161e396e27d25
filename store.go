package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// DefaultReadLimit bounds ReadByEventNames when no limit is given.
const DefaultReadLimit = adapters.DefaultLimit

// EventStore is the append-only log of all events across all aggregates.
type EventStore struct {
	adapter adapters.EventStoreAdapter
	codec   *Codec
	logger  Logger
}

// Logger defines the logging interface used across the ledger.
// Arguments after msg are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return &noopLogger{}
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithRegistry sets the registry used to decode stored events.
func WithRegistry(r *EventRegistry) Option {
	return func(es *EventStore) {
		es.codec = NewCodec(r)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(es *EventStore) {
		es.logger = l
	}
}

// New creates a new EventStore with the given adapter and options.
func New(adapter adapters.EventStoreAdapter, opts ...Option) *EventStore {
	es := &EventStore{
		adapter: adapter,
		codec:   NewCodec(nil),
		logger:  &noopLogger{},
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// Adapter returns the underlying adapter.
func (s *EventStore) Adapter() adapters.EventStoreAdapter {
	return s.adapter
}

// Codec returns the event codec.
func (s *EventStore) Codec() *Codec {
	return s.codec
}

// Registry returns the event registry.
func (s *EventStore) Registry() *EventRegistry {
	return s.codec.Registry()
}

// Logger returns the configured logger.
func (s *EventStore) Logger() Logger {
	return s.logger
}

// Initialize creates the event table and bookkeeping tables.
func (s *EventStore) Initialize(ctx context.Context) error {
	return s.adapter.Initialize(ctx)
}

// BeginTx starts a write transaction.
func (s *EventStore) BeginTx(ctx context.Context) (adapters.Tx, error) {
	return s.adapter.BeginTx(ctx)
}

// Append inserts events for aggregateID inside tx and returns them with
// their store positions assigned. Event versions must be contiguous.
// A duplicate (aggregate id, version) fails with a ConcurrencyError.
func (s *EventStore) Append(ctx context.Context, tx adapters.Tx, aggregateID string, events []Event) ([]Event, error) {
	if aggregateID == "" {
		return nil, InvalidArgument(ErrEmptyAggregateID)
	}
	if len(events) == 0 {
		return nil, InvalidArgument(ErrNoEvents)
	}
	if tx == nil {
		return nil, InvalidArgument(errors.New("transaction is required"))
	}

	records := make([]adapters.EventRecord, len(events))
	for i, e := range events {
		switch e.AggregateID {
		case "":
			e.AggregateID = aggregateID
		case aggregateID:
		default:
			return nil, InvalidArgument(fmt.Errorf("%w: event %d belongs to aggregate %q, not %q",
				adapters.ErrInvalidEvent, i, e.AggregateID, aggregateID))
		}
		rec, err := s.codec.Encode(e)
		if err != nil {
			return nil, fmt.Errorf("ledger: failed to encode event %d: %w", i, err)
		}
		records[i] = rec
	}

	stored, err := tx.AppendEvents(ctx, records)
	if err != nil {
		switch {
		case errors.Is(err, adapters.ErrConcurrencyConflict):
			s.logger.Warn("Concurrency conflict on append",
				"aggregate_id", aggregateID, "version", records[0].AggregateVersion)
			return nil, NewConcurrencyError(aggregateID, records[0].AggregateVersion)
		case isInvalidInput(err):
			return nil, InvalidArgument(err)
		default:
			return nil, err
		}
	}

	appended := make([]Event, len(events))
	for i, e := range events {
		e.ID = stored[i].ID
		e.AggregateID = stored[i].AggregateID
		e.SchemaVersion = stored[i].SchemaVersion
		e.RecordedAt = stored[i].RecordedAt
		appended[i] = e
	}

	s.logger.Debug("Appended events",
		"aggregate_id", aggregateID, "count", len(appended), "version", LastVersion(appended))
	return appended, nil
}

// ReadByAggregate returns the events of aggregateID with version > afterVersion, ascending.
func (s *EventStore) ReadByAggregate(ctx context.Context, aggregateID string, afterVersion int64) ([]Event, error) {
	if aggregateID == "" {
		return nil, InvalidArgument(ErrEmptyAggregateID)
	}

	stored, err := s.adapter.Load(ctx, aggregateID, afterVersion)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read aggregate %q: %w", aggregateID, err)
	}
	return s.codec.DecodeAll(stored)
}

// ReadByEventNames pages through the log in store order, returning at most
// limit events named in names with id > afterEventID. A limit <= 0 reads
// DefaultReadLimit events; an empty names list matches every event.
func (s *EventStore) ReadByEventNames(ctx context.Context, names []string, afterEventID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	stored, err := s.adapter.LoadByNames(ctx, names, afterEventID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read events by name: %w", err)
	}
	return s.codec.DecodeAll(stored)
}

// LastEventID returns the highest store position, or 0 for an empty log.
func (s *EventStore) LastEventID(ctx context.Context) (int64, error) {
	return s.adapter.LastEventID(ctx)
}

// Close releases the adapter.
func (s *EventStore) Close() error {
	return s.adapter.Close()
}
