package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Table name suffixes for the per-aggregate-type tables.
const (
	StateTableSuffix    = "_state"
	SnapshotTableSuffix = "_snapshots"
)

// Repository hydrates and saves aggregates of one type.
//
// Save appends the events and upserts the aggregate's full state in one
// transaction. A concurrency conflict is returned to the caller, never
// retried here; see RetryOnConflict.
type Repository[T Aggregate] struct {
	store         *EventStore
	states        adapters.StateAdapter
	snapshots     *SnapshotStore
	factory       func(id string) T
	aggregateType string
	stateTable    string
	cache         Cache
	snapshotEvery int64
	dispatcher    *Dispatcher
	logger        Logger
	observer      Observer
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryConfig)

type repositoryConfig struct {
	stateTable    string
	snapshotTable string
	cache         Cache
	snapshotEvery int64
	dispatcher    *Dispatcher
	logger        Logger
	observer      Observer
}

// WithStateTable overrides the state table name (default "<type>_state").
func WithStateTable(name string) RepositoryOption {
	return func(c *repositoryConfig) {
		c.stateTable = name
	}
}

// WithSnapshotTable overrides the snapshot table name (default "<type>_snapshots").
func WithSnapshotTable(name string) RepositoryOption {
	return func(c *repositoryConfig) {
		c.snapshotTable = name
	}
}

// WithCache enables the hydration cache.
func WithCache(cache Cache) RepositoryOption {
	return func(c *repositoryConfig) {
		c.cache = cache
	}
}

// WithSnapshotEvery saves a snapshot after a successful save whenever the
// aggregate version crosses a multiple of n. Snapshot failures are logged
// and do not fail the save. n <= 0 disables snapshots.
func WithSnapshotEvery(n int64) RepositoryOption {
	return func(c *repositoryConfig) {
		c.snapshotEvery = n
	}
}

// WithDispatcher delivers saved events to in-process projections after commit.
func WithDispatcher(d *Dispatcher) RepositoryOption {
	return func(c *repositoryConfig) {
		c.dispatcher = d
	}
}

// WithRepositoryLogger sets the repository logger. The store's logger is used otherwise.
func WithRepositoryLogger(l Logger) RepositoryOption {
	return func(c *repositoryConfig) {
		c.logger = l
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) RepositoryOption {
	return func(c *repositoryConfig) {
		c.observer = o
	}
}

// NewRepository creates a repository for the aggregates built by factory.
// The store's adapter must also implement adapters.StateAdapter and
// adapters.SnapshotAdapter.
func NewRepository[T Aggregate](store *EventStore, factory func(id string) T, opts ...RepositoryOption) (*Repository[T], error) {
	if store == nil || factory == nil {
		return nil, InvalidArgument(errors.New("store and factory are required"))
	}

	states, ok := store.Adapter().(adapters.StateAdapter)
	if !ok {
		return nil, InvalidArgument(errors.New("adapter does not store aggregate state"))
	}
	snapshots, ok := store.Adapter().(adapters.SnapshotAdapter)
	if !ok {
		return nil, InvalidArgument(errors.New("adapter does not store snapshots"))
	}

	aggregateType := factory("").AggregateType()
	cfg := &repositoryConfig{
		stateTable:    aggregateType + StateTableSuffix,
		snapshotTable: aggregateType + SnapshotTableSuffix,
		logger:        store.Logger(),
		observer:      noopObserver{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := adapters.ValidateIdentifier(cfg.stateTable); err != nil {
		return nil, InvalidArgument(err)
	}
	snapshotStore, err := NewSnapshotStore(snapshots, cfg.snapshotTable)
	if err != nil {
		return nil, err
	}

	return &Repository[T]{
		store:         store,
		states:        states,
		snapshots:     snapshotStore,
		factory:       factory,
		aggregateType: aggregateType,
		stateTable:    cfg.stateTable,
		cache:         cfg.cache,
		snapshotEvery: cfg.snapshotEvery,
		dispatcher:    cfg.dispatcher,
		logger:        cfg.logger,
		observer:      cfg.observer,
	}, nil
}

// AggregateType returns the type handled by this repository.
func (r *Repository[T]) AggregateType() string {
	return r.aggregateType
}

// StateTable returns the state table name.
func (r *Repository[T]) StateTable() string {
	return r.stateTable
}

// Snapshots returns the repository's snapshot store.
func (r *Repository[T]) Snapshots() *SnapshotStore {
	return r.snapshots
}

// Initialize creates the state and snapshot tables.
func (r *Repository[T]) Initialize(ctx context.Context) error {
	if err := r.states.EnsureStateTable(ctx, r.stateTable); err != nil {
		return fmt.Errorf("ledger: failed to create state table %q: %w", r.stateTable, err)
	}
	if err := r.snapshots.Initialize(ctx); err != nil {
		return fmt.Errorf("ledger: failed to create snapshot table %q: %w", r.snapshots.Table(), err)
	}
	return nil
}

// New returns a fresh aggregate at version 0 with no identity.
func (r *Repository[T]) New() T {
	return r.factory("")
}

// Hydrate rebuilds the aggregate from the cache or its latest snapshot plus
// the events after it. An empty id returns a fresh aggregate. An id with no
// history fails with a NotFoundError.
func (r *Repository[T]) Hydrate(ctx context.Context, aggregateID string) (agg T, err error) {
	if aggregateID == "" {
		return r.New(), nil
	}

	start := time.Now()
	defer func() { r.observer.ObserveHydrate(r.aggregateType, time.Since(start), err) }()

	agg, fromVersion := r.fromCache(ctx, aggregateID)
	cached := fromVersion > 0
	if !cached {
		agg, fromVersion, err = r.fromSnapshot(ctx, aggregateID, 0)
		if err != nil {
			return agg, err
		}
	}

	events, err := r.store.ReadByAggregate(ctx, aggregateID, fromVersion)
	if err != nil {
		return agg, err
	}
	if err := Replay(agg, events); err != nil {
		return agg, fmt.Errorf("ledger: failed to replay %s %q: %w", r.aggregateType, aggregateID, err)
	}
	if agg.Version() == 0 {
		return agg, NewNotFoundError(r.aggregateType, aggregateID)
	}

	if !cached || len(events) > 0 {
		r.remember(ctx, agg)
	}
	return agg, nil
}

// HydrateAt rebuilds the aggregate as it was at version, using the highest
// snapshot at or below it. The cache is bypassed. A version <= 0 behaves like Hydrate.
func (r *Repository[T]) HydrateAt(ctx context.Context, aggregateID string, version int64) (agg T, err error) {
	if version <= 0 {
		return r.Hydrate(ctx, aggregateID)
	}
	if aggregateID == "" {
		return r.New(), InvalidArgument(ErrEmptyAggregateID)
	}

	start := time.Now()
	defer func() { r.observer.ObserveHydrate(r.aggregateType, time.Since(start), err) }()

	agg, fromVersion, err := r.fromSnapshot(ctx, aggregateID, version)
	if err != nil {
		return agg, err
	}

	events, err := r.store.ReadByAggregate(ctx, aggregateID, fromVersion)
	if err != nil {
		return agg, err
	}
	for i, e := range events {
		if e.AggregateVersion > version {
			events = events[:i]
			break
		}
	}
	if err := Replay(agg, events); err != nil {
		return agg, fmt.Errorf("ledger: failed to replay %s %q: %w", r.aggregateType, aggregateID, err)
	}
	if agg.Version() == 0 {
		return agg, NewNotFoundError(r.aggregateType, aggregateID)
	}
	return agg, nil
}

// Save persists events raised on agg. When events is empty the aggregate's
// uncommitted events are used; with nothing to save it is a no-op.
//
// Events and the state row are written in one transaction. On any failure
// the transaction is rolled back, the cache entry is dropped and a
// PersistenceError is returned; a conflict also matches ErrConcurrencyConflict.
func (r *Repository[T]) Save(ctx context.Context, agg T, events []Event) (err error) {
	if any(agg) == nil {
		return ErrNilAggregate
	}
	if len(events) == 0 {
		events = agg.UncommittedEvents()
	}
	if len(events) == 0 {
		return nil
	}

	id := agg.AggregateID()
	if id == "" {
		return InvalidArgument(ErrEmptyAggregateID)
	}
	if last := LastVersion(events); last != agg.Version() {
		return InvalidArgument(fmt.Errorf("events end at version %d but %s %q is at version %d",
			last, r.aggregateType, id, agg.Version()))
	}

	start := time.Now()
	defer func() { r.observer.ObserveSave(r.aggregateType, len(events), time.Since(start), err) }()

	state, err := json.Marshal(agg)
	if err != nil {
		return NewSerializationError(r.aggregateType, "encode", err)
	}

	appended, err := r.commit(ctx, id, agg.Version(), state, events)
	if err != nil {
		r.forget(ctx, id)
		if errors.Is(err, ErrInvalidArgument) {
			return err
		}
		r.logger.Error("Failed to save aggregate",
			"aggregate_type", r.aggregateType, "aggregate_id", id, "error", err)
		return NewPersistenceError("save "+r.aggregateType, err)
	}

	agg.ClearUncommittedEvents()
	r.logger.Debug("Saved aggregate",
		"aggregate_type", r.aggregateType, "aggregate_id", id, "version", agg.Version(), "events", len(appended))

	r.put(ctx, id, agg.Version(), state)
	r.maybeSnapshot(ctx, id, events[0].AggregateVersion-1, agg.Version(), state)
	if r.dispatcher != nil {
		if err := r.dispatcher.Dispatch(ctx, appended); err != nil {
			r.logger.Warn("Projection delivery failed",
				"aggregate_type", r.aggregateType, "aggregate_id", id, "error", err)
		}
	}
	return nil
}

func (r *Repository[T]) commit(ctx context.Context, id string, version int64, state []byte, events []Event) ([]Event, error) {
	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	appended, err := r.store.Append(ctx, tx, id, events)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	err = tx.UpsertState(ctx, r.stateTable, adapters.StateRecord{
		AggregateID:      id,
		AggregateVersion: version,
		State:            state,
	})
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, adapters.ErrConcurrencyConflict) {
			return nil, NewConcurrencyError(id, events[0].AggregateVersion)
		}
		return nil, err
	}
	return appended, nil
}

// Snapshot stores the aggregate's current state as a snapshot.
// The aggregate must have no unsaved events.
func (r *Repository[T]) Snapshot(ctx context.Context, agg T) error {
	if any(agg) == nil {
		return ErrNilAggregate
	}
	if len(agg.UncommittedEvents()) > 0 {
		return InvalidArgument(errors.New("cannot snapshot an aggregate with unsaved events"))
	}
	if err := RequireExists(agg); err != nil {
		return err
	}

	state, err := json.Marshal(agg)
	if err != nil {
		return NewSerializationError(r.aggregateType, "encode", err)
	}
	return r.snapshots.Save(ctx, agg.AggregateID(), agg.Version(), state)
}

// LoadState returns the persisted state row of an aggregate.
func (r *Repository[T]) LoadState(ctx context.Context, aggregateID string) (*adapters.StateRecord, error) {
	if aggregateID == "" {
		return nil, InvalidArgument(ErrEmptyAggregateID)
	}

	rec, err := r.states.LoadState(ctx, r.stateTable, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to load state of %q: %w", aggregateID, err)
	}
	if rec == nil {
		return nil, NewNotFoundError(r.aggregateType, aggregateID)
	}
	return rec, nil
}

// fromSnapshot builds the aggregate from the highest snapshot <= maxVersion.
// It returns a fresh aggregate at version 0 when there is none.
func (r *Repository[T]) fromSnapshot(ctx context.Context, id string, maxVersion int64) (T, int64, error) {
	snap, err := r.snapshots.LatestAt(ctx, id, maxVersion)
	if err != nil {
		return r.factory(id), 0, err
	}
	if snap == nil {
		return r.factory(id), 0, nil
	}

	agg, err := r.decode(id, snap.AggregateVersion, snap.State)
	if err != nil {
		r.logger.Warn("Ignoring unreadable snapshot",
			"aggregate_type", r.aggregateType, "aggregate_id", id, "version", snap.AggregateVersion, "error", err)
		return r.factory(id), 0, nil
	}
	return agg, snap.AggregateVersion, nil
}

func (r *Repository[T]) fromCache(ctx context.Context, id string) (T, int64) {
	if r.cache == nil {
		return r.factory(id), 0
	}

	key := CacheKey(r.aggregateType, id)
	entry, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("Cache read failed", "key", key, "error", err)
		return r.factory(id), 0
	}
	if !ok {
		return r.factory(id), 0
	}

	agg, err := r.decode(id, entry.Version, entry.State)
	if err != nil {
		r.forget(ctx, id)
		return r.factory(id), 0
	}
	return agg, entry.Version
}

func (r *Repository[T]) decode(id string, version int64, state []byte) (T, error) {
	agg := r.factory(id)
	if err := json.Unmarshal(state, agg); err != nil {
		return r.factory(id), NewSerializationError(r.aggregateType, "decode", err)
	}
	restore(agg, version)
	return agg, nil
}

func (r *Repository[T]) remember(ctx context.Context, agg T) {
	if r.cache == nil {
		return
	}
	state, err := json.Marshal(agg)
	if err != nil {
		return
	}
	r.put(ctx, agg.AggregateID(), agg.Version(), state)
}

func (r *Repository[T]) put(ctx context.Context, id string, version int64, state []byte) {
	if r.cache == nil {
		return
	}
	key := CacheKey(r.aggregateType, id)
	if err := r.cache.Set(ctx, key, CacheEntry{Version: version, State: state}); err != nil {
		r.logger.Warn("Cache write failed", "key", key, "error", err)
	}
}

func (r *Repository[T]) forget(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	key := CacheKey(r.aggregateType, id)
	if err := r.cache.Delete(ctx, key); err != nil {
		r.logger.Warn("Cache invalidation failed", "key", key, "error", err)
	}
}

func (r *Repository[T]) maybeSnapshot(ctx context.Context, id string, before, after int64, state []byte) {
	if r.snapshotEvery <= 0 || before/r.snapshotEvery == after/r.snapshotEvery {
		return
	}
	if err := r.snapshots.Save(ctx, id, after, state); err != nil {
		r.logger.Warn("Snapshot failed", "aggregate_type", r.aggregateType, "aggregate_id", id,
			"version", after, "error", err)
		return
	}
	r.logger.Debug("Saved snapshot", "aggregate_type", r.aggregateType, "aggregate_id", id, "version", after)
}
