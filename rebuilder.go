package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Rebuildable is a projection whose table can be reset and restored.
// *ReadModel[T] implements it.
type Rebuildable interface {
	Projection

	// Clear deletes every live row.
	Clear(ctx context.Context) error

	// ApplySnapshot restores the live table from the projection snapshot and
	// returns the cursor, or ErrNoProjectionSnapshot.
	ApplySnapshot(ctx context.Context) (int64, error)
}

// RebuildResult summarizes one rebuild.
type RebuildResult struct {
	Projection   string
	FromSnapshot bool
	// StartPosition is the event id replay resumed after.
	StartPosition int64
	Processed     int
	Position      int64
	Duration      time.Duration
}

// Rebuilder reconstructs projections from their snapshot or from the start of the log.
type Rebuilder struct {
	store       *EventStore
	checkpoints adapters.CheckpointAdapter
	logger      Logger
	observer    Observer
	batchSize   int
}

// RebuilderOption configures a Rebuilder.
type RebuilderOption func(*Rebuilder)

// WithRebuilderBatchSize sets the batch size for rebuilding.
func WithRebuilderBatchSize(size int) RebuilderOption {
	return func(r *Rebuilder) {
		r.batchSize = size
	}
}

// WithRebuilderLogger sets the logger for the rebuilder.
func WithRebuilderLogger(logger Logger) RebuilderOption {
	return func(r *Rebuilder) {
		r.logger = logger
	}
}

// WithRebuilderObserver sets the metrics observer for the rebuilder.
func WithRebuilderObserver(o Observer) RebuilderOption {
	return func(r *Rebuilder) {
		r.observer = o
	}
}

// NewRebuilder creates a new projection rebuilder.
func NewRebuilder(store *EventStore, checkpoints adapters.CheckpointAdapter, opts ...RebuilderOption) *Rebuilder {
	r := &Rebuilder{
		store:       store,
		checkpoints: checkpoints,
		logger:      store.Logger(),
		observer:    noopObserver{},
		batchSize:   DefaultReadLimit,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Rebuild restores p from its projection snapshot when one exists, otherwise
// clears it and replays from event id 0. It then catches up to the head of
// the log. Concurrent delivery to p must be stopped while it runs.
func (r *Rebuilder) Rebuild(ctx context.Context, p Rebuildable) (RebuildResult, error) {
	start := time.Now()
	result := RebuildResult{Projection: p.Name()}

	pos, err := p.ApplySnapshot(ctx)
	switch {
	case err == nil:
		result.FromSnapshot = true
	case errors.Is(err, ErrNoProjectionSnapshot):
		if err := p.Clear(ctx); err != nil {
			return result, fmt.Errorf("ledger: %s: failed to clear: %w", p.Name(), err)
		}
		pos = 0
	default:
		return result, err
	}
	result.StartPosition = pos

	if err := r.checkpoints.SetCheckpoint(ctx, p.Name(), pos); err != nil {
		return result, fmt.Errorf("ledger: %s: failed to reset checkpoint: %w", p.Name(), err)
	}

	r.logger.Info("Rebuilding projection",
		"projection", p.Name(), "from_snapshot", result.FromSnapshot, "position", pos)

	projector := NewProjector(r.store, r.checkpoints, p,
		WithBatchSize(r.batchSize),
		WithProjectorLogger(r.logger),
		WithProjectorObserver(r.observer),
	)
	result.Processed, err = projector.CatchUp(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	result.Position, err = projector.Position(ctx)
	if err != nil {
		return result, err
	}

	r.logger.Info("Rebuilt projection",
		"projection", p.Name(), "events", result.Processed, "position", result.Position, "duration", result.Duration)
	return result, nil
}

// RebuildAll rebuilds projections one after another, stopping at the first failure.
func (r *Rebuilder) RebuildAll(ctx context.Context, projections ...Rebuildable) ([]RebuildResult, error) {
	results := make([]RebuildResult, 0, len(projections))
	for _, p := range projections {
		res, err := r.Rebuild(ctx, p)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
