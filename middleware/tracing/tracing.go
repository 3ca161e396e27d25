// Package tracing provides OpenTelemetry integration for the ledger.
//
// Wrap a storage backend to get a span per adapter call and one span per
// write transaction, and wrap projections to get a span per delivered event.
//
// Basic usage:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer()
//	backend := tracing.WrapBackend(postgres.NewAdapter(db), tracer)
//	store := ledger.New(backend, ledger.WithRegistry(registry))
//
// Spans carry the aggregate id, versions, event names and store positions.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

const (
	// TracerName is the instrumentation name of the ledger tracer.
	TracerName = "github.com/AshkanYarmoradi/go-ledger"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "ledger"
)

// Tracer wraps an OpenTelemetry tracer for ledger operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	span.SetAttributes(attribute.String("ledger.service", t.serviceName))
	return ctx, span
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// NewStdoutProvider returns a provider that writes finished spans to w as
// JSON. The CLI uses it when tracing is enabled with the stdout exporter.
func NewStdoutProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("ledger/tracing: failed to create stdout exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)), nil
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// =============================================================================
// Backend Middleware
// =============================================================================

// Backend wraps an adapters.Backend with tracing of the event log.
// Every other capability is passed through unchanged.
type Backend struct {
	adapters.Backend
	tracer *Tracer
}

// WrapBackend wraps a backend with tracing.
func WrapBackend(backend adapters.Backend, tracer *Tracer) *Backend {
	return &Backend{Backend: backend, tracer: tracer}
}

// Initialize creates the backend tables with tracing.
func (b *Backend) Initialize(ctx context.Context) error {
	ctx, span := b.tracer.StartSpan(ctx, "ledger.initialize", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	err := b.Backend.Initialize(ctx)
	finish(span, err)
	return err
}

// BeginTx starts a transaction traced by one span that ends at Commit or Rollback.
func (b *Backend) BeginTx(ctx context.Context) (adapters.Tx, error) {
	ctx, span := b.tracer.StartSpan(ctx, "ledger.tx", trace.WithSpanKind(trace.SpanKindClient))

	tx, err := b.Backend.BeginTx(ctx)
	if err != nil {
		finish(span, err)
		span.End()
		return nil, err
	}
	return &tracedTx{Tx: tx, span: span}, nil
}

// Load reads one aggregate's events with tracing.
func (b *Backend) Load(ctx context.Context, aggregateID string, afterVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := b.tracer.StartSpan(ctx, "ledger.load", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("ledger.aggregate_id", aggregateID),
		attribute.Int64("ledger.after_version", afterVersion),
	)

	events, err := b.Backend.Load(ctx, aggregateID, afterVersion)
	if err == nil {
		span.SetAttributes(attribute.Int("ledger.events.loaded", len(events)))
	}
	finish(span, err)
	return events, err
}

// LoadByNames pages through the log with tracing.
func (b *Backend) LoadByNames(ctx context.Context, names []string, afterID int64, limit int) ([]adapters.StoredEvent, error) {
	ctx, span := b.tracer.StartSpan(ctx, "ledger.load_by_names", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.StringSlice("ledger.event_names", names),
		attribute.Int64("ledger.after_id", afterID),
		attribute.Int("ledger.limit", limit),
	)

	events, err := b.Backend.LoadByNames(ctx, names, afterID, limit)
	if err == nil {
		span.SetAttributes(attribute.Int("ledger.events.loaded", len(events)))
		if len(events) > 0 {
			span.SetAttributes(attribute.Int64("ledger.last_id", events[len(events)-1].ID))
		}
	}
	finish(span, err)
	return events, err
}

// LastEventID returns the head of the log with tracing.
func (b *Backend) LastEventID(ctx context.Context) (int64, error) {
	ctx, span := b.tracer.StartSpan(ctx, "ledger.last_event_id", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	id, err := b.Backend.LastEventID(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int64("ledger.last_id", id))
	}
	finish(span, err)
	return id, err
}

// Unwrap returns the wrapped backend.
func (b *Backend) Unwrap() adapters.Backend {
	return b.Backend
}

type tracedTx struct {
	adapters.Tx
	span trace.Span
	once sync.Once
}

func (t *tracedTx) AppendEvents(ctx context.Context, records []adapters.EventRecord) ([]adapters.StoredEvent, error) {
	stored, err := t.Tx.AppendEvents(ctx, records)

	attrs := []attribute.KeyValue{attribute.Int("ledger.events.count", len(records))}
	if len(records) > 0 {
		names := make([]string, len(records))
		for i, r := range records {
			names[i] = r.Name
		}
		attrs = append(attrs,
			attribute.String("ledger.aggregate_id", records[0].AggregateID),
			attribute.Int64("ledger.aggregate_version", records[len(records)-1].AggregateVersion),
			attribute.StringSlice("ledger.events.names", names),
		)
	}
	if err != nil {
		t.span.RecordError(err)
	} else if len(stored) > 0 {
		attrs = append(attrs, attribute.Int64("ledger.last_id", stored[len(stored)-1].ID))
	}
	t.span.AddEvent("append", trace.WithAttributes(attrs...))
	return stored, err
}

func (t *tracedTx) UpsertState(ctx context.Context, table string, record adapters.StateRecord) error {
	err := t.Tx.UpsertState(ctx, table, record)
	t.span.AddEvent("upsert_state", trace.WithAttributes(
		attribute.String("ledger.table", table),
		attribute.Int64("ledger.aggregate_version", record.AggregateVersion),
	))
	if err != nil {
		t.span.RecordError(err)
	}
	return err
}

func (t *tracedTx) Commit() error {
	err := t.Tx.Commit()
	t.end("commit", err)
	return err
}

func (t *tracedTx) Rollback() error {
	err := t.Tx.Rollback()
	t.end("rollback", err)
	return err
}

func (t *tracedTx) end(outcome string, err error) {
	t.once.Do(func() {
		t.span.SetAttributes(attribute.String("ledger.tx.outcome", outcome))
		if outcome == "rollback" && err == nil {
			t.span.SetStatus(codes.Error, "rolled back")
		} else {
			finish(t.span, err)
		}
		t.span.End()
	})
}

// =============================================================================
// Projection Middleware
// =============================================================================

// Projection wraps a ledger.Projection with a span per delivered event.
type Projection struct {
	projection ledger.Projection
	tracer     *Tracer
}

// WrapProjection wraps a projection with tracing.
func WrapProjection(projection ledger.Projection, tracer *Tracer) *Projection {
	return &Projection{projection: projection, tracer: tracer}
}

// Name returns the projection name.
func (p *Projection) Name() string {
	return p.projection.Name()
}

// HandledEvents returns the handled event names.
func (p *Projection) HandledEvents() []string {
	return p.projection.HandledEvents()
}

// Apply applies an event with tracing.
func (p *Projection) Apply(ctx context.Context, event ledger.Event) error {
	ctx, span := p.tracer.StartSpan(ctx, fmt.Sprintf("projection.%s.apply", p.projection.Name()),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("ledger.projection", p.projection.Name()),
		attribute.String("ledger.event.name", event.Name),
		attribute.Int64("ledger.event.id", event.ID),
		attribute.String("ledger.aggregate_id", event.AggregateID),
		attribute.Int64("ledger.aggregate_version", event.AggregateVersion),
	)

	err := p.projection.Apply(ctx, event)
	finish(span, err)
	return err
}

// =============================================================================
// Span Helpers
// =============================================================================

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
