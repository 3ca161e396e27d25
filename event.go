package ledger

import (
	"time"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// DefaultSchemaVersion is the schema version of payloads that do not declare one.
const DefaultSchemaVersion = 1

// Payload is the body of a domain event. EventName identifies the payload
// shape for storage and dispatch.
type Payload interface {
	EventName() string
}

// SchemaVersioned is implemented by payloads with more than one revision.
type SchemaVersioned interface {
	EventSchemaVersion() int
}

// Event is an immutable fact about one aggregate.
//
// AggregateVersion is the aggregate's version after the event is applied;
// ID is the global store position, zero until the event is appended.
type Event struct {
	ID               int64
	Name             string
	SchemaVersion    int
	AggregateID      string
	AggregateVersion int64
	Payload          interface{}
	RecordedAt       time.Time
}

// NewEvent creates an event for payload using its declared name and schema version.
func NewEvent(aggregateID string, version int64, payload Payload) Event {
	return Event{
		Name:             payload.EventName(),
		SchemaVersion:    SchemaVersionOf(payload),
		AggregateID:      aggregateID,
		AggregateVersion: version,
		Payload:          payload,
	}
}

// SchemaVersionOf returns the payload's schema version, or DefaultSchemaVersion.
func SchemaVersionOf(payload interface{}) int {
	if v, ok := payload.(SchemaVersioned); ok && v.EventSchemaVersion() > 0 {
		return v.EventSchemaVersion()
	}
	return DefaultSchemaVersion
}

// IsPersisted reports whether the event has been assigned a store position.
func (e Event) IsPersisted() bool {
	return e.ID > 0
}

// EventNames returns the names of events in order.
func EventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

// LastVersion returns the aggregate version of the last event, or 0.
func LastVersion(events []Event) int64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].AggregateVersion
}

// LastID returns the highest store position in events, or 0.
func LastID(events []Event) int64 {
	var id int64
	for _, e := range events {
		if e.ID > id {
			id = e.ID
		}
	}
	return id
}

// eventFromStored builds an Event from a stored row and its decoded payload.
func eventFromStored(stored adapters.StoredEvent, payload interface{}) Event {
	return Event{
		ID:               stored.ID,
		Name:             stored.Name,
		SchemaVersion:    stored.SchemaVersion,
		AggregateID:      stored.AggregateID,
		AggregateVersion: stored.AggregateVersion,
		Payload:          payload,
		RecordedAt:       stored.RecordedAt,
	}
}
