package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
)

// =============================================================================
// Test Types
// =============================================================================

type parcel struct {
	ledger.AggregateBase
	Dest string `json:"dest"`
}

type parcelSent struct {
	Dest string `json:"dest"`
}

func (parcelSent) EventName() string { return "ParcelSent" }

func (p *parcel) AggregateType() string { return "parcel" }

func (p *parcel) ApplyEvent(e ledger.Event) error {
	if sent, ok := e.Payload.(parcelSent); ok {
		p.Dest = sent.Dest
	}
	return nil
}

func newParcel(id string) *parcel {
	return &parcel{AggregateBase: ledger.NewAggregateBase(id)}
}

type failingProjection struct{ err error }

func (f *failingProjection) Name() string            { return "failing" }
func (f *failingProjection) HandledEvents() []string { return []string{"ParcelSent"} }
func (f *failingProjection) Apply(context.Context, ledger.Event) error {
	return f.err
}

func newRecorder() (*tracetest.SpanRecorder, *Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, NewTracer(WithTracerProvider(tp), WithServiceName("depot"))
}

func spanNamed(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range sr.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no ended span named %q", name)
	return nil
}

func attr(s sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// =============================================================================
// Tracer Tests
// =============================================================================

func TestNewTracer(t *testing.T) {
	tr := NewTracer()
	assert.Equal(t, DefaultServiceName, tr.ServiceName())
	assert.NotNil(t, tr.Tracer())

	_, tr = newRecorder()
	assert.Equal(t, "depot", tr.ServiceName())
}

func TestNewStdoutProvider(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewStdoutProvider(&buf)
	require.NoError(t, err)

	tr := NewTracer(WithTracerProvider(tp))
	_, span := tr.StartSpan(context.Background(), "hello")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "hello"`)
}

// =============================================================================
// Backend Middleware Tests
// =============================================================================

func TestBackend_SaveAndHydrate(t *testing.T) {
	ctx := context.Background()
	sr, tr := newRecorder()

	registry := ledger.NewEventRegistry()
	require.NoError(t, ledger.RegisterPayload[parcelSent](registry))
	backend := WrapBackend(memory.NewAdapter(), tr)
	store := ledger.New(backend, ledger.WithRegistry(registry))
	require.NoError(t, store.Initialize(ctx))

	repo, err := ledger.NewRepository(store, newParcel)
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(ctx))

	p := newParcel("p-1")
	_, err = ledger.Raise(p, parcelSent{Dest: "Oslo"})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, p, nil))

	loaded, err := repo.Hydrate(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Oslo", loaded.Dest)

	init := spanNamed(t, sr, "ledger.initialize")
	assert.Equal(t, codes.Ok, init.Status().Code)

	tx := spanNamed(t, sr, "ledger.tx")
	assert.Equal(t, codes.Ok, tx.Status().Code)
	outcome, ok := attr(tx, "ledger.tx.outcome")
	require.True(t, ok)
	assert.Equal(t, "commit", outcome.AsString())
	require.Len(t, tx.Events(), 2)
	assert.Equal(t, "append", tx.Events()[0].Name)
	assert.Equal(t, "upsert_state", tx.Events()[1].Name)

	load := spanNamed(t, sr, "ledger.load")
	id, ok := attr(load, "ledger.aggregate_id")
	require.True(t, ok)
	assert.Equal(t, "p-1", id.AsString())
	n, _ := attr(load, "ledger.events.loaded")
	assert.Equal(t, int64(1), n.AsInt64())

	svc, _ := attr(load, "ledger.service")
	assert.Equal(t, "depot", svc.AsString())

	assert.Equal(t, 1, backend.Unwrap().(*memory.MemoryAdapter).EventCount())
}

func TestBackend_Conflict(t *testing.T) {
	ctx := context.Background()
	sr, tr := newRecorder()

	registry := ledger.NewEventRegistry()
	require.NoError(t, ledger.RegisterPayload[parcelSent](registry))
	store := ledger.New(WrapBackend(memory.NewAdapter(), tr), ledger.WithRegistry(registry))
	repo, err := ledger.NewRepository(store, newParcel)
	require.NoError(t, err)
	require.NoError(t, repo.Initialize(ctx))

	first, second := newParcel("p-1"), newParcel("p-1")
	_, _ = ledger.Raise(first, parcelSent{Dest: "A"})
	_, _ = ledger.Raise(second, parcelSent{Dest: "B"})
	require.NoError(t, repo.Save(ctx, first, nil))
	require.ErrorIs(t, repo.Save(ctx, second, nil), ledger.ErrConcurrencyConflict)

	var rolledBack int
	for _, s := range sr.Ended() {
		if s.Name() != "ledger.tx" {
			continue
		}
		if v, _ := attr(s, "ledger.tx.outcome"); v.AsString() == "rollback" {
			rolledBack++
			assert.Equal(t, codes.Error, s.Status().Code)
		}
	}
	assert.Equal(t, 1, rolledBack)
}

func TestBackend_LoadByNames(t *testing.T) {
	ctx := context.Background()
	sr, tr := newRecorder()
	backend := WrapBackend(memory.NewAdapter(), tr)

	events, err := backend.LoadByNames(ctx, []string{"ParcelSent"}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	head, err := backend.LastEventID(ctx)
	require.NoError(t, err)
	assert.Zero(t, head)

	s := spanNamed(t, sr, "ledger.load_by_names")
	names, _ := attr(s, "ledger.event_names")
	assert.Equal(t, []string{"ParcelSent"}, names.AsStringSlice())
	spanNamed(t, sr, "ledger.last_event_id")
}

// =============================================================================
// Projection Middleware Tests
// =============================================================================

func TestProjection(t *testing.T) {
	ctx := context.Background()
	sr, tr := newRecorder()
	boom := errors.New("boom")

	p := WrapProjection(&failingProjection{err: boom}, tr)
	assert.Equal(t, "failing", p.Name())
	assert.Equal(t, []string{"ParcelSent"}, p.HandledEvents())

	err := p.Apply(ctx, ledger.Event{ID: 3, Name: "ParcelSent", AggregateID: "p-1", AggregateVersion: 1})
	require.ErrorIs(t, err, boom)

	s := spanNamed(t, sr, "projection.failing.apply")
	assert.Equal(t, codes.Error, s.Status().Code)
	id, _ := attr(s, "ledger.event.id")
	assert.Equal(t, int64(3), id.AsInt64())
}

func TestSpanHelpers(t *testing.T) {
	sr, tr := newRecorder()
	ctx, span := tr.StartSpan(context.Background(), "outer")
	AddEvent(ctx, "checkpoint")
	SetError(ctx, errors.New("bad"))
	span.End()

	s := spanNamed(t, sr, "outer")
	require.Len(t, s.Events(), 2)
	assert.Equal(t, codes.Error, s.Status().Code)
}
