package adapters

import (
	"fmt"
	"regexp"
)

// DefaultLimit is the page size used when a caller passes a non-positive limit.
const DefaultLimit = 100

// MaxLimit caps a single page read from the event log.
const MaxLimit = 10000

// SnapshotTableSuffix is appended to a read-model table name to get its snapshot twin.
const SnapshotTableSuffix = "_snapshot"

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// ValidateIdentifier reports whether name can be used as a table or schema name.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// SnapshotTable returns the snapshot twin of a read-model table.
func SnapshotTable(table string) string {
	return table + SnapshotTableSuffix
}

// NormalizeLimit maps a non-positive limit to DefaultLimit and caps it at MaxLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// ValidateRecords checks that records form one contiguous batch for aggregateID.
func ValidateRecords(aggregateID string, records []EventRecord) error {
	if aggregateID == "" {
		return ErrEmptyAggregateID
	}
	if len(records) == 0 {
		return ErrNoEvents
	}
	for i, r := range records {
		if r.AggregateID != aggregateID {
			return fmt.Errorf("%w: event %d belongs to aggregate %q, not %q", ErrInvalidEvent, i, r.AggregateID, aggregateID)
		}
		if r.Name == "" {
			return fmt.Errorf("%w: event %d has no name", ErrInvalidEvent, i)
		}
		if r.AggregateVersion < 1 {
			return fmt.Errorf("%w: event %d has version %d", ErrInvalidEvent, i, r.AggregateVersion)
		}
		if i > 0 && r.AggregateVersion != records[i-1].AggregateVersion+1 {
			return fmt.Errorf("%w: event %d version %d does not follow %d",
				ErrInvalidEvent, i, r.AggregateVersion, records[i-1].AggregateVersion)
		}
	}
	return nil
}
