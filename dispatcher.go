package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Dispatcher delivers saved events to in-process projections.
//
// Delivery happens after commit: a failed projection does not undo the
// save. A projection that fails is halted, and the dispatcher withholds
// every later event from it so that no newer version lands in its rows
// ahead of the missed one. A Projector over the same projection delivers
// the missed events. With WithDispatcherCheckpoints the dispatcher resumes
// a halted projection once its checkpoint covers everything withheld;
// otherwise call Resume after catching up.
type Dispatcher struct {
	mu          sync.RWMutex
	projections []Projection
	byEvent     map[string][]Projection
	halted      map[string]int64 // projection name -> last event id withheld
	checkpoints adapters.CheckpointAdapter
	logger      Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for the dispatcher.
func WithDispatcherLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithDispatcherCheckpoints lets the dispatcher resume a halted projection
// once its projector checkpoint has passed every withheld event.
func WithDispatcherCheckpoints(c adapters.CheckpointAdapter) DispatcherOption {
	return func(d *Dispatcher) {
		d.checkpoints = c
	}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		byEvent: make(map[string][]Projection),
		halted:  make(map[string]int64),
		logger:  &noopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds projections. Names must be unique.
func (d *Dispatcher) Register(projections ...Projection) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range projections {
		if p == nil || p.Name() == "" {
			return InvalidArgument(errors.New("projection must have a name"))
		}
		for _, existing := range d.projections {
			if existing.Name() == p.Name() {
				return InvalidArgument(fmt.Errorf("projection %q already registered", p.Name()))
			}
		}
		d.projections = append(d.projections, p)
		for _, name := range p.HandledEvents() {
			d.byEvent[name] = append(d.byEvent[name], p)
		}
	}
	return nil
}

// Projections returns the registered projections in registration order.
func (d *Dispatcher) Projections() []Projection {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Projection, len(d.projections))
	copy(out, d.projections)
	return out
}

// Halted returns the names of projections the dispatcher is withholding
// events from, in registration order.
func (d *Dispatcher) Halted() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for _, p := range d.projections {
		if _, ok := d.halted[p.Name()]; ok {
			out = append(out, p.Name())
		}
	}
	return out
}

// Resume restarts delivery to a halted projection. Call it only once the
// projection has caught up past the events it missed.
func (d *Dispatcher) Resume(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.halted, name)
}

// Dispatch delivers events in order to every projection handling them.
// A failing projection is halted for the rest of events and for later
// calls; the others keep receiving. Failures are joined into the result.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resumeCaughtUp(ctx)

	var errs []error
	for _, e := range events {
		for _, p := range d.byEvent[e.Name] {
			name := p.Name()
			if _, ok := d.halted[name]; ok {
				d.halted[name] = e.ID
				continue
			}
			if err := p.Apply(ctx, e); err != nil {
				d.halted[name] = e.ID
				d.logger.Error("Projection failed",
					"projection", name, "event", e.Name, "aggregate_id", e.AggregateID, "error", err)
				d.logger.Warn("Projection halted until caught up",
					"projection", name, "event_id", e.ID)
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// resumeCaughtUp clears halted projections whose checkpoint has reached the
// last withheld event. Must hold d.mu.
func (d *Dispatcher) resumeCaughtUp(ctx context.Context) {
	if d.checkpoints == nil {
		return
	}
	for name, withheld := range d.halted {
		pos, err := d.checkpoints.GetCheckpoint(ctx, name)
		if err != nil {
			d.logger.Warn("Failed to read checkpoint of halted projection",
				"projection", name, "error", err)
			continue
		}
		if withheld > 0 && pos >= withheld {
			delete(d.halted, name)
			d.logger.Info("Projection resumed", "projection", name, "position", pos)
		}
	}
}
