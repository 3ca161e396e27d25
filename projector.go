package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Projector delivers the event log to one projection from a stored
// checkpoint, in batches ordered by store position.
//
// The checkpoint is a single position, so it assumes ids become visible in
// order. The memory adapter and SQLite serialize writers, so that holds
// there. PostgreSQL and MySQL draw ids at insert time: two concurrent
// transactions can take ids 10 and 11 and commit 11 first, and a batch read
// in between checkpoints at 11 so id 10 is never delivered. On those stores
// run a single writer, or rebuild the projection after concurrent writes.
type Projector struct {
	store        *EventStore
	checkpoints  adapters.CheckpointAdapter
	projection   Projection
	batchSize    int
	pollInterval time.Duration
	retryPolicy  RetryPolicy
	logger       Logger
	observer     Observer
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithBatchSize sets how many events are read per batch.
func WithBatchSize(n int) ProjectorOption {
	return func(p *Projector) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithPollInterval sets how long Run waits when the projection is caught up.
func WithPollInterval(d time.Duration) ProjectorOption {
	return func(p *Projector) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithProjectorRetryPolicy sets the backoff Run applies after failed batches.
func WithProjectorRetryPolicy(policy RetryPolicy) ProjectorOption {
	return func(p *Projector) {
		p.retryPolicy = policy
	}
}

// WithProjectorLogger sets the logger for the projector.
func WithProjectorLogger(l Logger) ProjectorOption {
	return func(p *Projector) {
		p.logger = l
	}
}

// WithProjectorObserver sets the metrics observer for the projector.
func WithProjectorObserver(o Observer) ProjectorOption {
	return func(p *Projector) {
		p.observer = o
	}
}

// NewProjector creates a projector for projection.
func NewProjector(store *EventStore, checkpoints adapters.CheckpointAdapter, projection Projection, opts ...ProjectorOption) *Projector {
	p := &Projector{
		store:        store,
		checkpoints:  checkpoints,
		projection:   projection,
		batchSize:    DefaultReadLimit,
		pollInterval: time.Second,
		retryPolicy:  ExponentialBackoffRetry(5, 100*time.Millisecond, 10*time.Second),
		logger:       store.Logger(),
		observer:     noopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the projection name.
func (p *Projector) Name() string {
	return p.projection.Name()
}

// Position returns the id of the last event delivered.
func (p *Projector) Position(ctx context.Context) (int64, error) {
	return p.checkpoints.GetCheckpoint(ctx, p.projection.Name())
}

// CatchUp delivers every event after the checkpoint and returns how many
// were applied. The checkpoint advances after each batch; on a failure it is
// set to the last event applied, so the next call resumes at the failing event.
func (p *Projector) CatchUp(ctx context.Context) (int, error) {
	name := p.projection.Name()
	pos, err := p.checkpoints.GetCheckpoint(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("ledger: %s: failed to read checkpoint: %w", name, err)
	}

	names := p.projection.HandledEvents()
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		events, err := p.store.ReadByEventNames(ctx, names, pos, p.batchSize)
		if err != nil {
			return processed, err
		}
		if len(events) == 0 {
			return processed, nil
		}

		for _, e := range events {
			if err := p.projection.Apply(ctx, e); err != nil {
				if cpErr := p.checkpoint(ctx, pos); cpErr != nil {
					return processed, errors.Join(err, cpErr)
				}
				return processed, fmt.Errorf("ledger: %s: event %d: %w", name, e.ID, err)
			}
			pos = e.ID
			processed++
		}
		if err := p.checkpoint(ctx, pos); err != nil {
			return processed, err
		}

		if len(events) < p.batchSize {
			return processed, nil
		}
	}
}

// Run catches up, then polls for new events until ctx is cancelled.
// Failed batches are retried with the retry policy's backoff; Run returns
// the error once the policy gives up.
func (p *Projector) Run(ctx context.Context) error {
	failures := 0
	for {
		n, err := p.CatchUp(ctx)
		if ctx.Err() != nil {
			return nil
		}

		wait := p.pollInterval
		switch {
		case err != nil:
			if !p.retryPolicy.ShouldRetry(failures, err) {
				return err
			}
			wait = p.retryPolicy.Delay(failures)
			failures++
			p.logger.Warn("Projection batch failed", "projection", p.Name(), "attempt", failures, "error", err)
		case n > 0:
			failures = 0
			continue
		default:
			failures = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// ProjectorStatus reports how far a projection is behind the log.
type ProjectorStatus struct {
	Name     string
	Position int64
	Head     int64
	Lag      int64
}

// Status returns the checkpoint, the log head and the difference between them.
func (p *Projector) Status(ctx context.Context) (ProjectorStatus, error) {
	pos, err := p.Position(ctx)
	if err != nil {
		return ProjectorStatus{}, err
	}
	head, err := p.store.LastEventID(ctx)
	if err != nil {
		return ProjectorStatus{}, err
	}

	lag := head - pos
	if lag < 0 {
		lag = 0
	}
	return ProjectorStatus{Name: p.Name(), Position: pos, Head: head, Lag: lag}, nil
}

func (p *Projector) checkpoint(ctx context.Context, pos int64) error {
	if err := p.checkpoints.SetCheckpoint(ctx, p.projection.Name(), pos); err != nil {
		return fmt.Errorf("ledger: %s: failed to store checkpoint: %w", p.projection.Name(), err)
	}
	p.observer.ObserveCheckpoint(p.projection.Name(), pos)
	return nil
}
