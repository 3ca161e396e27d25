package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Decoder turns a stored JSON body into a typed payload.
type Decoder func(body []byte) (interface{}, error)

type eventKey struct {
	name          string
	schemaVersion int
}

// EventRegistry maps (event name, schema version) to a decoder.
// It is built explicitly at startup; nothing is discovered at runtime.
type EventRegistry struct {
	mu       sync.RWMutex
	decoders map[eventKey]Decoder
}

// NewEventRegistry creates a new empty EventRegistry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{
		decoders: make(map[eventKey]Decoder),
	}
}

// RegisterDecoder adds a decoder for name at schemaVersion.
// Registering the same pair twice is an error.
func (r *EventRegistry) RegisterDecoder(name string, schemaVersion int, dec Decoder) error {
	if name == "" {
		return InvalidArgument(errors.New("event name is required"))
	}
	if schemaVersion < 1 {
		return InvalidArgument(fmt.Errorf("event %q: schema version must be positive", name))
	}
	if dec == nil {
		return InvalidArgument(fmt.Errorf("event %q: decoder is nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventKey{name: name, schemaVersion: schemaVersion}
	if _, exists := r.decoders[key]; exists {
		return InvalidArgument(fmt.Errorf("event %q schema v%d already registered", name, schemaVersion))
	}
	r.decoders[key] = dec
	return nil
}

// Register adds a JSON decoder producing values of T for name at schemaVersion.
func Register[T any](r *EventRegistry, name string, schemaVersion int) error {
	return r.RegisterDecoder(name, schemaVersion, func(body []byte) (interface{}, error) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// RegisterPayload registers T under the name and schema version it declares.
func RegisterPayload[T Payload](r *EventRegistry) error {
	var zero T
	return Register[T](r, zero.EventName(), SchemaVersionOf(zero))
}

// MustRegisterPayload is RegisterPayload that panics on error. Use it when
// building a registry at program start.
func MustRegisterPayload[T Payload](r *EventRegistry) {
	if err := RegisterPayload[T](r); err != nil {
		panic(err)
	}
}

// Lookup returns the decoder for name at schemaVersion.
func (r *EventRegistry) Lookup(name string, schemaVersion int) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dec, ok := r.decoders[eventKey{name: name, schemaVersion: schemaVersion}]
	return dec, ok
}

// Names returns the registered event names, sorted and without duplicates.
func (r *EventRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.decoders))
	names := make([]string, 0, len(r.decoders))
	for k := range r.decoders {
		if _, ok := seen[k.name]; ok {
			continue
		}
		seen[k.name] = struct{}{}
		names = append(names, k.name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered (name, schema version) pairs.
func (r *EventRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.decoders)
}

// Codec converts between Events and stored rows.
type Codec struct {
	registry *EventRegistry
}

// NewCodec creates a codec over registry.
func NewCodec(registry *EventRegistry) *Codec {
	if registry == nil {
		registry = NewEventRegistry()
	}
	return &Codec{registry: registry}
}

// Registry returns the codec's registry.
func (c *Codec) Registry() *EventRegistry {
	return c.registry
}

// Encode serializes e into a row ready for append.
func (c *Codec) Encode(e Event) (adapters.EventRecord, error) {
	if e.Name == "" {
		return adapters.EventRecord{}, InvalidArgument(errors.New("event name is required"))
	}
	if e.Payload == nil {
		return adapters.EventRecord{}, NewSerializationError(e.Name, "encode", errors.New("payload is nil"))
	}

	body, err := json.Marshal(e.Payload)
	if err != nil {
		return adapters.EventRecord{}, NewSerializationError(e.Name, "encode", err)
	}

	schemaVersion := e.SchemaVersion
	if schemaVersion == 0 {
		schemaVersion = SchemaVersionOf(e.Payload)
	}

	return adapters.EventRecord{
		Name:             e.Name,
		SchemaVersion:    schemaVersion,
		AggregateID:      e.AggregateID,
		AggregateVersion: e.AggregateVersion,
		Body:             body,
	}, nil
}

// Decode reconstructs a typed Event from a stored row.
func (c *Codec) Decode(stored adapters.StoredEvent) (Event, error) {
	dec, ok := c.registry.Lookup(stored.Name, stored.SchemaVersion)
	if !ok {
		return Event{}, NewEventTypeNotRegisteredError(stored.Name, stored.SchemaVersion)
	}

	payload, err := dec(stored.Body)
	if err != nil {
		return Event{}, NewSerializationError(stored.Name, "decode", err)
	}
	return eventFromStored(stored, payload), nil
}

// DecodeAll decodes rows in order, stopping at the first failure.
func (c *Codec) DecodeAll(stored []adapters.StoredEvent) ([]Event, error) {
	events := make([]Event, len(stored))
	for i, s := range stored {
		e, err := c.Decode(s)
		if err != nil {
			return nil, err
		}
		events[i] = e
	}
	return events, nil
}
