// Package bdd provides Given-When-Then fixtures for event-sourced aggregates.
package bdd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/testing/assertions"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// TestFixture provides BDD-style testing for aggregates.
type TestFixture struct {
	t         TB
	aggregate ledger.Aggregate
	given     []ledger.Payload
	version   int64
	result    error
	executed  bool
}

// Given sets up the aggregate with historical events. The payloads are
// raised and then cleared, so they count as already committed. The
// aggregate needs an id when history is given.
func Given(t TB, aggregate ledger.Aggregate, history ...ledger.Payload) *TestFixture {
	t.Helper()
	return &TestFixture{
		t:         t,
		aggregate: aggregate,
		given:     history,
	}
}

// When applies the history and then runs command against the aggregate.
func (f *TestFixture) When(command func() error) *TestFixture {
	f.t.Helper()

	if len(f.given) > 0 {
		if _, err := ledger.Raise(f.aggregate, f.given...); err != nil {
			f.t.Fatalf("Failed to apply given events: %v", err)
		}
	}
	f.aggregate.ClearUncommittedEvents()
	f.version = f.aggregate.Version()

	f.result = command()
	f.executed = true

	return f
}

func (f *TestFixture) mustHaveRun(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatalf("bdd: %s must be called after When", step)
	}
}

// Then asserts that the command succeeded and raised exactly expected.
func (f *TestFixture) Then(expected ...ledger.Payload) *TestFixture {
	f.t.Helper()
	f.mustHaveRun("Then")

	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}

	raised := f.aggregate.UncommittedEvents()
	if diffs := assertions.DiffPayloads(expected, assertions.Payloads(raised)); len(diffs) > 0 {
		f.t.Error(assertions.FormatDiffs(diffs))
	}
	assertions.AssertVersions(f.t, raised, f.aggregate.AggregateID(), f.version+1)
	return f
}

// ThenError asserts that the command failed with an error matching target.
func (f *TestFixture) ThenError(target error) {
	f.t.Helper()
	f.mustHaveRun("ThenError")

	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}
	if !errors.Is(f.result, target) {
		f.t.Errorf("Expected error %v, got %v", target, f.result)
	}
	if n := len(f.aggregate.UncommittedEvents()); n > 0 {
		f.t.Errorf("Expected no events after a failed command, got %d", n)
	}
}

// ThenErrorContains asserts that the error message contains substring.
func (f *TestFixture) ThenErrorContains(substring string) {
	f.t.Helper()
	f.mustHaveRun("ThenErrorContains")

	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}
	if !strings.Contains(f.result.Error(), substring) {
		f.t.Errorf("Expected error containing %q, got %q", substring, f.result.Error())
	}
}

// ThenNoEvents asserts that the command succeeded without raising events.
func (f *TestFixture) ThenNoEvents() {
	f.t.Helper()
	f.mustHaveRun("ThenNoEvents")

	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}
	assertions.AssertNoEvents(f.t, f.aggregate.UncommittedEvents())
}

// ThenState runs check against the aggregate after the command.
func (f *TestFixture) ThenState(check func(t TB)) {
	f.t.Helper()
	f.mustHaveRun("ThenState")
	check(f.t)
}

// RepositoryFixture runs commands through a repository, so saving and
// hydration take part in the scenario.
type RepositoryFixture[T ledger.Aggregate] struct {
	t        TB
	ctx      context.Context
	repo     *ledger.Repository[T]
	id       string
	agg      T
	result   error
	executed bool
}

// GivenRepository starts a scenario for aggregate id on repo.
func GivenRepository[T ledger.Aggregate](t TB, repo *ledger.Repository[T], id string) *RepositoryFixture[T] {
	t.Helper()
	return &RepositoryFixture[T]{t: t, ctx: context.Background(), repo: repo, id: id}
}

// WithContext sets the context for repository calls.
func (f *RepositoryFixture[T]) WithContext(ctx context.Context) *RepositoryFixture[T] {
	f.ctx = ctx
	return f
}

// WithHistory runs command on a fresh copy of the aggregate and saves the
// result, failing the test on any error.
func (f *RepositoryFixture[T]) WithHistory(command func(agg T) error) *RepositoryFixture[T] {
	f.t.Helper()

	agg := f.load()
	if err := command(agg); err != nil {
		f.t.Fatalf("Failed to set up history: %v", err)
	}
	if err := f.repo.Save(f.ctx, agg, nil); err != nil {
		f.t.Fatalf("Failed to save history: %v", err)
	}
	return f
}

// When hydrates the aggregate, runs command and saves it when it succeeds.
func (f *RepositoryFixture[T]) When(command func(agg T) error) *RepositoryFixture[T] {
	f.t.Helper()

	f.agg = f.load()
	f.result = command(f.agg)
	if f.result == nil {
		f.result = f.repo.Save(f.ctx, f.agg, nil)
	}
	f.executed = true
	return f
}

func (f *RepositoryFixture[T]) load() T {
	f.t.Helper()

	agg, err := f.repo.Hydrate(f.ctx, f.id)
	if errors.Is(err, ledger.ErrNotFound) {
		return agg
	}
	if err != nil {
		f.t.Fatalf("Failed to hydrate %s: %v", f.id, err)
	}
	return agg
}

// ThenSucceeds asserts that the command and the save succeeded.
func (f *RepositoryFixture[T]) ThenSucceeds() *RepositoryFixture[T] {
	f.t.Helper()
	if !f.executed {
		f.t.Fatal("bdd: ThenSucceeds must be called after When")
	}
	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}
	return f
}

// ThenFails asserts that the command or the save failed with target.
func (f *RepositoryFixture[T]) ThenFails(target error) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatal("bdd: ThenFails must be called after When")
	}
	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}
	if !errors.Is(f.result, target) {
		f.t.Errorf("Expected error %v, got %v", target, f.result)
	}
}

// ThenVersion asserts the stored version of the aggregate.
func (f *RepositoryFixture[T]) ThenVersion(expected int64) *RepositoryFixture[T] {
	f.t.Helper()

	agg, err := f.repo.Hydrate(f.ctx, f.id)
	if err != nil {
		f.t.Fatalf("Failed to hydrate %s: %v", f.id, err)
	}
	if agg.Version() != expected {
		f.t.Errorf("Expected version %d, got %d", expected, agg.Version())
	}
	return f
}

// Aggregate returns the aggregate the last When ran against.
func (f *RepositoryFixture[T]) Aggregate() T {
	return f.agg
}
