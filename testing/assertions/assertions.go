// Package assertions provides assertion helpers for ledger events.
package assertions

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-ledger"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// Payloads returns the payload of every event.
func Payloads(events []ledger.Event) []ledger.Payload {
	out := make([]ledger.Payload, 0, len(events))
	for _, e := range events {
		if p, ok := e.Payload.(ledger.Payload); ok {
			out = append(out, p)
		} else {
			out = append(out, nil)
		}
	}
	return out
}

// AssertEventNames asserts that events carry exactly these names, in order.
func AssertEventNames(t TB, events []ledger.Event, names ...string) {
	t.Helper()

	if len(events) != len(names) {
		t.Errorf("Expected %d events, got %d", len(names), len(events))
		return
	}
	for i, name := range names {
		if events[i].Name != name {
			t.Errorf("Event %d: expected %s, got %s", i, name, events[i].Name)
		}
	}
}

// AssertPayload asserts that event carries a T equal to expected.
func AssertPayload[T ledger.Payload](t TB, event ledger.Event, expected T) {
	t.Helper()

	actual, ok := event.Payload.(T)
	if !ok {
		t.Errorf("Expected payload %T, got %T", expected, event.Payload)
		return
	}
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("Payload mismatch:\nExpected: %+v\nActual: %+v", expected, actual)
	}
}

// AssertEventCount asserts the number of events.
func AssertEventCount(t TB, events []ledger.Event, expected int) {
	t.Helper()

	if len(events) != expected {
		t.Errorf("Expected %d events, got %d", expected, len(events))
	}
}

// AssertNoEvents asserts that no events were produced.
func AssertNoEvents(t TB, events []ledger.Event) {
	t.Helper()

	if len(events) > 0 {
		t.Errorf("Expected no events, got %d: %v", len(events), names(events))
	}
}

// AssertContainsPayload asserts that some event carries a T equal to expected.
func AssertContainsPayload[T ledger.Payload](t TB, events []ledger.Event, expected T) {
	t.Helper()

	if !AnyMatch(events, MatchPayload(expected)) {
		t.Errorf("Expected events to contain %T %+v", expected, expected)
	}
}

// AssertVersions asserts that events belong to aggregateID and carry
// contiguous versions starting at from.
func AssertVersions(t TB, events []ledger.Event, aggregateID string, from int64) {
	t.Helper()

	for i, e := range events {
		if e.AggregateID != aggregateID {
			t.Errorf("Event %d: expected aggregate %q, got %q", i, aggregateID, e.AggregateID)
		}
		if want := from + int64(i); e.AggregateVersion != want {
			t.Errorf("Event %d: expected version %d, got %d", i, want, e.AggregateVersion)
		}
	}
}

// AssertOrdered asserts that store positions strictly increase.
func AssertOrdered(t TB, events []ledger.Event) {
	t.Helper()

	for i := 1; i < len(events); i++ {
		if events[i].ID <= events[i-1].ID {
			t.Errorf("Event %d: id %d does not follow %d", i, events[i].ID, events[i-1].ID)
		}
	}
}

// EventDiff represents a difference between expected and actual payloads.
type EventDiff struct {
	Index    int
	Expected ledger.Payload
	Actual   ledger.Payload
	Type     DiffType
}

// DiffType indicates the type of difference.
type DiffType int

const (
	// DiffMissing indicates an expected payload is missing.
	DiffMissing DiffType = iota
	// DiffExtra indicates an unexpected payload is present.
	DiffExtra
	// DiffMismatch indicates the payloads differ.
	DiffMismatch
)

func (d DiffType) String() string {
	switch d {
	case DiffMissing:
		return "missing"
	case DiffExtra:
		return "extra"
	case DiffMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// DiffPayloads compares two payload slices position by position.
func DiffPayloads(expected, actual []ledger.Payload) []EventDiff {
	var diffs []EventDiff

	n := len(expected)
	if len(actual) > n {
		n = len(actual)
	}

	for i := 0; i < n; i++ {
		switch {
		case i >= len(expected):
			diffs = append(diffs, EventDiff{Index: i, Actual: actual[i], Type: DiffExtra})
		case i >= len(actual):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Type: DiffMissing})
		case !reflect.DeepEqual(expected[i], actual[i]):
			diffs = append(diffs, EventDiff{Index: i, Expected: expected[i], Actual: actual[i], Type: DiffMismatch})
		}
	}

	return diffs
}

// FormatDiffs formats diffs as a human-readable string.
func FormatDiffs(diffs []EventDiff) string {
	if len(diffs) == 0 {
		return "no differences"
	}

	var buf strings.Builder
	buf.WriteString("Event differences:\n")
	for _, diff := range diffs {
		fmt.Fprintf(&buf, "  Event %d (%s):\n", diff.Index, diff.Type)
		switch diff.Type {
		case DiffExtra:
			fmt.Fprintf(&buf, "    + %T %+v (unexpected)\n", diff.Actual, diff.Actual)
		case DiffMissing:
			fmt.Fprintf(&buf, "    - %T %+v (missing)\n", diff.Expected, diff.Expected)
		case DiffMismatch:
			fmt.Fprintf(&buf, "    - %T %+v\n", diff.Expected, diff.Expected)
			fmt.Fprintf(&buf, "    + %T %+v\n", diff.Actual, diff.Actual)
		}
	}
	return buf.String()
}

// AssertPayloadsEqual fails if the payloads of events differ from expected.
func AssertPayloadsEqual(t TB, expected []ledger.Payload, events []ledger.Event) {
	t.Helper()

	if diffs := DiffPayloads(expected, Payloads(events)); len(diffs) > 0 {
		t.Error(FormatDiffs(diffs))
	}
}

// EventMatcher is a predicate over events.
type EventMatcher func(event ledger.Event) bool

// MatchEventName matches events by name.
func MatchEventName(name string) EventMatcher {
	return func(event ledger.Event) bool {
		return event.Name == name
	}
}

// MatchPayload matches events whose payload equals expected.
func MatchPayload[T ledger.Payload](expected T) EventMatcher {
	return func(event ledger.Event) bool {
		actual, ok := event.Payload.(T)
		return ok && reflect.DeepEqual(expected, actual)
	}
}

// MatchAggregate matches events of one aggregate.
func MatchAggregate(aggregateID string) EventMatcher {
	return func(event ledger.Event) bool {
		return event.AggregateID == aggregateID
	}
}

// AnyMatch reports whether any event matches.
func AnyMatch(events []ledger.Event, matcher EventMatcher) bool {
	return CountMatches(events, matcher) > 0
}

// AssertAllMatch asserts that every event matches.
func AssertAllMatch(t TB, events []ledger.Event, matcher EventMatcher) {
	t.Helper()

	for i, e := range events {
		if !matcher(e) {
			t.Errorf("Event %d (%s) does not match", i, e.Name)
		}
	}
}

// AssertNoneMatch asserts that no event matches.
func AssertNoneMatch(t TB, events []ledger.Event, matcher EventMatcher) {
	t.Helper()

	for i, e := range events {
		if matcher(e) {
			t.Errorf("Event %d (%s) unexpectedly matches", i, e.Name)
		}
	}
}

// CountMatches counts matching events.
func CountMatches(events []ledger.Event, matcher EventMatcher) int {
	n := 0
	for _, e := range events {
		if matcher(e) {
			n++
		}
	}
	return n
}

// FilterEvents returns the matching events.
func FilterEvents(events []ledger.Event, matcher EventMatcher) []ledger.Event {
	var out []ledger.Event
	for _, e := range events {
		if matcher(e) {
			out = append(out, e)
		}
	}
	return out
}

func names(events []ledger.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Name
	}
	return out
}
