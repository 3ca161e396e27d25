package ledger

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Sentinel errors for the error taxonomy.
// Use errors.Is() to check for these errors.
var (
	// ErrInvalidArgument indicates a caller bug such as a missing aggregate id.
	ErrInvalidArgument = errors.New("ledger: invalid argument")

	// ErrDomainRuleViolation indicates a business invariant was broken by a command.
	ErrDomainRuleViolation = errors.New("ledger: domain rule violation")

	// ErrNotFound indicates an operation required an aggregate with history and found none.
	ErrNotFound = errors.New("ledger: not found")

	// ErrConcurrencyConflict indicates another writer appended the same aggregate version first.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrPersistenceFailure indicates a storage failure; the transaction was rolled back.
	ErrPersistenceFailure = errors.New("ledger: persistence failure")

	// ErrSerializationFailed indicates an event or state could not be encoded or decoded.
	ErrSerializationFailed = errors.New("ledger: serialization failed")

	// ErrEventTypeNotRegistered indicates a stored event has no registered decoder.
	ErrEventTypeNotRegistered = errors.New("ledger: event type not registered")

	// ErrNilAggregate indicates a nil aggregate was passed.
	ErrNilAggregate = errors.New("ledger: nil aggregate")

	// ErrEmptyAggregateID indicates an empty aggregate id was provided.
	ErrEmptyAggregateID = adapters.ErrEmptyAggregateID

	// ErrNoEvents indicates no events were provided for append.
	ErrNoEvents = adapters.ErrNoEvents

	// ErrAdapterClosed indicates the adapter has been closed.
	ErrAdapterClosed = adapters.ErrAdapterClosed
)

// InvalidArgument wraps cause so that it matches ErrInvalidArgument.
func InvalidArgument(cause error) error {
	if cause == nil || errors.Is(cause, ErrInvalidArgument) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrInvalidArgument, cause)
}

// isInvalidInput reports whether err is an adapter-level input validation error.
func isInvalidInput(err error) bool {
	return errors.Is(err, adapters.ErrEmptyAggregateID) ||
		errors.Is(err, adapters.ErrNoEvents) ||
		errors.Is(err, adapters.ErrInvalidEvent) ||
		errors.Is(err, adapters.ErrInvalidIdentifier)
}

// DomainRuleError describes a rejected command.
type DomainRuleError struct {
	Aggregate string
	Rule      string
}

// Error returns the error message.
func (e *DomainRuleError) Error() string {
	return fmt.Sprintf("ledger: %s: %s", e.Aggregate, e.Rule)
}

// Is reports whether this error matches the target error.
func (e *DomainRuleError) Is(target error) bool {
	return target == ErrDomainRuleViolation
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainRuleError) Unwrap() error {
	return ErrDomainRuleViolation
}

// NewDomainRuleError creates a new DomainRuleError.
func NewDomainRuleError(aggregate, rule string) *DomainRuleError {
	return &DomainRuleError{Aggregate: aggregate, Rule: rule}
}

// NotFoundError provides detailed information about a missing aggregate.
type NotFoundError struct {
	AggregateType string
	AggregateID   string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	if e.AggregateID == "" {
		return fmt.Sprintf("ledger: %s does not exist", e.AggregateType)
	}
	return fmt.Sprintf("ledger: %s %q not found", e.AggregateType, e.AggregateID)
}

// Is reports whether this error matches the target error.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(aggregateType, aggregateID string) *NotFoundError {
	return &NotFoundError{AggregateType: aggregateType, AggregateID: aggregateID}
}

// ConcurrencyError provides detailed information about a concurrency conflict.
type ConcurrencyError struct {
	AggregateID string
	// Version is the first version of the rejected batch.
	Version int64
}

// Error returns the error message.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("ledger: concurrency conflict on aggregate %q at version %d", e.AggregateID, e.Version)
}

// Is reports whether this error matches the target error.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ConcurrencyError) Unwrap() error {
	return ErrConcurrencyConflict
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(aggregateID string, version int64) *ConcurrencyError {
	return &ConcurrencyError{AggregateID: aggregateID, Version: version}
}

// PersistenceError wraps a failure that aborted a transaction.
// errors.Is matches both ErrPersistenceFailure and the cause.
type PersistenceError struct {
	Op    string
	Cause error
}

// Error returns the error message.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: %s failed: %v", e.Op, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailure
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op string, cause error) *PersistenceError {
	return &PersistenceError{Op: op, Cause: cause}
}

// SerializationError provides detailed information about a serialization failure.
type SerializationError struct {
	EventName string
	Operation string // "encode" or "decode"
	Cause     error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("ledger: failed to %s %q: %v", e.Operation, e.EventName, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(eventName, operation string, cause error) *SerializationError {
	return &SerializationError{EventName: eventName, Operation: operation, Cause: cause}
}

// EventTypeNotRegisteredError names the missing event name and schema version.
type EventTypeNotRegisteredError struct {
	Name          string
	SchemaVersion int
}

// Error returns the error message.
func (e *EventTypeNotRegisteredError) Error() string {
	return fmt.Sprintf("ledger: event %q schema v%d not registered", e.Name, e.SchemaVersion)
}

// Is reports whether this error matches the target error.
func (e *EventTypeNotRegisteredError) Is(target error) bool {
	return target == ErrEventTypeNotRegistered
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *EventTypeNotRegisteredError) Unwrap() error {
	return ErrEventTypeNotRegistered
}

// NewEventTypeNotRegisteredError creates a new EventTypeNotRegisteredError.
func NewEventTypeNotRegisteredError(name string, schemaVersion int) *EventTypeNotRegisteredError {
	return &EventTypeNotRegisteredError{Name: name, SchemaVersion: schemaVersion}
}

// IsRetryable reports whether err is a conflict that a caller may resolve by
// re-hydrating and re-running the command.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
