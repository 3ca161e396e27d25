package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// Aggregate is an event-sourced entity whose state is derived from its events.
//
// Implementations embed AggregateBase, which provides everything except
// AggregateType and ApplyEvent.
type Aggregate interface {
	// AggregateID returns the unique identifier for this aggregate instance.
	AggregateID() string

	// AggregateType returns the type/category of this aggregate (e.g., "car", "order").
	AggregateType() string

	// Version returns the aggregate version of the last applied event, or 0.
	Version() int64

	// ApplyEvent mutates state for one event. It must be deterministic: replaying
	// the same history always yields the same state. It must not touch the version.
	ApplyEvent(event Event) error

	// UncommittedEvents returns events raised but not yet persisted.
	UncommittedEvents() []Event

	// ClearUncommittedEvents removes all uncommitted events after successful persistence.
	ClearUncommittedEvents()

	base() *AggregateBase
}

// AggregateBase holds identity, version and pending events.
// Embed it in your aggregate types.
type AggregateBase struct {
	id          string
	version     int64
	uncommitted []Event
}

// NewAggregateBase creates an AggregateBase for id at version 0.
func NewAggregateBase(id string) AggregateBase {
	return AggregateBase{id: id}
}

// AggregateID returns the aggregate's unique identifier.
func (a *AggregateBase) AggregateID() string {
	return a.id
}

// SetID assigns the aggregate's identity. Creation commands call it before
// raising their first event.
func (a *AggregateBase) SetID(id string) {
	a.id = id
}

// Version returns the current version of the aggregate.
func (a *AggregateBase) Version() int64 {
	return a.version
}

// Exists reports whether at least one event has been applied.
func (a *AggregateBase) Exists() bool {
	return a.version > 0
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateBase) UncommittedEvents() []Event {
	return a.uncommitted
}

// ClearUncommittedEvents removes all uncommitted events.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.uncommitted = nil
}

// HasUncommittedEvents returns true if there are events waiting to be persisted.
func (a *AggregateBase) HasUncommittedEvents() bool {
	return len(a.uncommitted) > 0
}

func (a *AggregateBase) base() *AggregateBase {
	return a
}

// Raise applies payloads as new events, each one version after the previous,
// and records them as uncommitted. It returns the raised events.
func Raise(a Aggregate, payloads ...Payload) ([]Event, error) {
	if a == nil {
		return nil, ErrNilAggregate
	}
	b := a.base()
	if b.id == "" {
		return nil, InvalidArgument(fmt.Errorf("%s: cannot raise events without an id", a.AggregateType()))
	}

	events := make([]Event, 0, len(payloads))
	for _, p := range payloads {
		e := NewEvent(b.id, b.version+1, p)
		if err := a.ApplyEvent(e); err != nil {
			return nil, err
		}
		b.version = e.AggregateVersion
		b.uncommitted = append(b.uncommitted, e)
		events = append(events, e)
	}
	return events, nil
}

// Replay applies stored history to a. Events must continue the aggregate's
// version without gaps.
func Replay(a Aggregate, events []Event) error {
	if a == nil {
		return ErrNilAggregate
	}
	b := a.base()
	for _, e := range events {
		if e.AggregateVersion != b.version+1 {
			return fmt.Errorf("ledger: %s %q: expected version %d, got %d",
				a.AggregateType(), b.id, b.version+1, e.AggregateVersion)
		}
		if err := a.ApplyEvent(e); err != nil {
			return err
		}
		b.version = e.AggregateVersion
	}
	return nil
}

// RequireExists returns a NotFoundError when a has no history.
// Every command other than creation starts with it.
func RequireExists(a Aggregate) error {
	if a.Version() == 0 {
		return NewNotFoundError(a.AggregateType(), a.AggregateID())
	}
	return nil
}

// NewID returns a new random aggregate identity.
func NewID() string {
	return uuid.NewString()
}

// restore positions a freshly constructed aggregate at version after its
// state has been loaded from a snapshot or cache entry.
func restore(a Aggregate, version int64) {
	b := a.base()
	b.version = version
	b.uncommitted = nil
}
