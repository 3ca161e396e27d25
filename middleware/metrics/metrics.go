// Package metrics provides Prometheus metrics for the ledger.
//
// Metrics implements ledger.Observer, so it can be handed to repositories,
// read models and projectors, and it wraps a storage backend to time every
// adapter call.
//
// Basic usage:
//
//	m := metrics.New(metrics.WithNamespace("fleet"))
//	m.MustRegister()
//
//	adapter, err := sqlite.NewAdapter("fleet.db")
//	...
//	backend := m.WrapBackend(adapter)
//	store := ledger.New(backend, ledger.WithRegistry(registry))
//	repo, _ := ledger.NewRepository(store, car.New, ledger.WithObserver(m))
//
// The metrics collected include:
//   - Hydrate and save counts and durations per aggregate type
//   - Adapter operations (begin, append, load, read by name)
//   - Projection delivery outcomes, checkpoints and lag
//   - Error counts by type
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Metric labels.
const (
	LabelAggregateType  = "aggregate_type"
	LabelEventName      = "event_name"
	LabelProjectionName = "projection_name"
	LabelOperation      = "operation"
	LabelStatus         = "status"
	LabelErrorType      = "error_type"
	LabelService        = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Adapter operation values.
const (
	OperationBegin       = "begin"
	OperationAppend      = "append"
	OperationUpsertState = "upsert_state"
	OperationCommit      = "commit"
	OperationLoad        = "load"
	OperationLoadByNames = "load_by_names"
	OperationLastEventID = "last_event_id"
)

// Metrics holds the Prometheus collectors for one service.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	hydratesTotal    *prometheus.CounterVec
	hydrateDuration  *prometheus.HistogramVec
	savesTotal       *prometheus.CounterVec
	saveDuration     *prometheus.HistogramVec
	eventsSavedTotal *prometheus.CounterVec

	adapterOperationsTotal   *prometheus.CounterVec
	adapterOperationDuration *prometheus.HistogramVec
	eventsAppendedTotal      *prometheus.CounterVec
	eventsLoadedTotal        *prometheus.CounterVec

	projectionEventsTotal *prometheus.CounterVec
	projectionDuration    *prometheus.HistogramVec
	projectionCheckpoint  *prometheus.GaugeVec
	projectionLag         *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec
}

var _ ledger.Observer = (*Metrics)(nil)

// Option configures Metrics.
type Option func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) Option {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithServiceName sets the service label.
func WithServiceName(name string) Option {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a Metrics instance. Collectors are not registered.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		namespace:   "ledger",
		serviceName: "unknown",
	}
	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) initMetrics() {
	m.hydratesTotal = m.counter("hydrates_total",
		"Total number of aggregate hydrations.", LabelAggregateType, LabelStatus)
	m.hydrateDuration = m.histogram("hydrate_duration_seconds",
		"Duration of aggregate hydration in seconds.", LabelAggregateType)
	m.savesTotal = m.counter("saves_total",
		"Total number of aggregate saves.", LabelAggregateType, LabelStatus)
	m.saveDuration = m.histogram("save_duration_seconds",
		"Duration of aggregate saves in seconds.", LabelAggregateType)
	m.eventsSavedTotal = m.counter("events_saved_total",
		"Total number of events committed by repositories.", LabelAggregateType)

	m.adapterOperationsTotal = m.counter("adapter_operations_total",
		"Total number of storage adapter operations.", LabelOperation, LabelStatus)
	m.adapterOperationDuration = m.histogram("adapter_operation_duration_seconds",
		"Duration of storage adapter operations in seconds.", LabelOperation)
	m.eventsAppendedTotal = m.counter("events_appended_total",
		"Total number of events appended to the log.", LabelEventName)
	m.eventsLoadedTotal = m.counter("events_loaded_total",
		"Total number of events read from the log.")

	m.projectionEventsTotal = m.counter("projection_events_total",
		"Total number of events delivered to projections.", LabelProjectionName, LabelEventName, LabelStatus)
	m.projectionDuration = m.histogram("projection_duration_seconds",
		"Duration of projection event handling in seconds.", LabelProjectionName)
	m.projectionCheckpoint = m.gauge("projection_checkpoint_position",
		"Last event id stored as a projection checkpoint.", LabelProjectionName)
	m.projectionLag = m.gauge("projection_lag_events",
		"Number of events between a projection checkpoint and the head of the log.", LabelProjectionName)

	m.errorsTotal = m.counter("errors_total",
		"Total number of errors by type.", LabelErrorType)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.hydratesTotal,
		m.hydrateDuration,
		m.savesTotal,
		m.saveDuration,
		m.eventsSavedTotal,
		m.adapterOperationsTotal,
		m.adapterOperationDuration,
		m.eventsAppendedTotal,
		m.eventsLoadedTotal,
		m.projectionEventsTotal,
		m.projectionDuration,
		m.projectionCheckpoint,
		m.projectionLag,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Observer
// =============================================================================

// ObserveHydrate records one hydration.
func (m *Metrics) ObserveHydrate(aggregateType string, duration time.Duration, err error) {
	m.hydrateDuration.WithLabelValues(m.serviceName, aggregateType).Observe(duration.Seconds())
	m.hydratesTotal.WithLabelValues(m.serviceName, aggregateType, m.status(err)).Inc()
}

// ObserveSave records one save.
func (m *Metrics) ObserveSave(aggregateType string, events int, duration time.Duration, err error) {
	m.saveDuration.WithLabelValues(m.serviceName, aggregateType).Observe(duration.Seconds())
	m.savesTotal.WithLabelValues(m.serviceName, aggregateType, m.status(err)).Inc()
	if err == nil {
		m.eventsSavedTotal.WithLabelValues(m.serviceName, aggregateType).Add(float64(events))
	}
}

// ObserveProjection records one delivered event.
func (m *Metrics) ObserveProjection(projection, eventName string, applied bool, duration time.Duration, err error) {
	m.projectionDuration.WithLabelValues(m.serviceName, projection).Observe(duration.Seconds())

	status := StatusSuccess
	switch {
	case err != nil:
		status = m.status(err)
	case !applied:
		status = StatusSkipped
	}
	m.projectionEventsTotal.WithLabelValues(m.serviceName, projection, eventName, status).Inc()
}

// ObserveCheckpoint records a stored projection position.
func (m *Metrics) ObserveCheckpoint(projection string, position int64) {
	m.projectionCheckpoint.WithLabelValues(m.serviceName, projection).Set(float64(position))
}

// RecordProjectionStatus records the lag reported by Projector.Status.
func (m *Metrics) RecordProjectionStatus(status ledger.ProjectorStatus) {
	m.projectionLag.WithLabelValues(m.serviceName, status.Name).Set(float64(status.Lag))
	m.projectionCheckpoint.WithLabelValues(m.serviceName, status.Name).Set(float64(status.Position))
}

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

func (m *Metrics) status(err error) string {
	if err == nil {
		return StatusSuccess
	}
	m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
	return StatusError
}

// errorTypeName maps an error to a low-cardinality label value.
func errorTypeName(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ledger.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ledger.ErrDomainRuleViolation):
		return "domain_rule_violation"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrSerializationFailed):
		return "serialization_failed"
	case errors.Is(err, ledger.ErrEventTypeNotRegistered):
		return "event_type_not_registered"
	case errors.Is(err, ledger.ErrAdapterClosed):
		return "adapter_closed"
	case errors.Is(err, ledger.ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "unknown"
	}
}

// =============================================================================
// Backend Middleware
// =============================================================================

// Backend wraps an adapters.Backend and times the event log operations.
// Every other capability is passed through unchanged.
type Backend struct {
	adapters.Backend
	metrics *Metrics
}

// WrapBackend wraps a backend with metrics collection.
func (m *Metrics) WrapBackend(backend adapters.Backend) *Backend {
	return &Backend{Backend: backend, metrics: m}
}

func (m *Metrics) observeOperation(op string, start time.Time, err error) {
	m.adapterOperationDuration.WithLabelValues(m.serviceName, op).Observe(time.Since(start).Seconds())
	m.adapterOperationsTotal.WithLabelValues(m.serviceName, op, m.status(err)).Inc()
}

// BeginTx starts a transaction whose appends and commit are measured.
func (b *Backend) BeginTx(ctx context.Context) (adapters.Tx, error) {
	start := time.Now()
	tx, err := b.Backend.BeginTx(ctx)
	b.metrics.observeOperation(OperationBegin, start, err)
	if err != nil {
		return nil, err
	}
	return &meteredTx{Tx: tx, metrics: b.metrics}, nil
}

// Load reads one aggregate's events with metrics.
func (b *Backend) Load(ctx context.Context, aggregateID string, afterVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := b.Backend.Load(ctx, aggregateID, afterVersion)
	b.metrics.observeOperation(OperationLoad, start, err)
	if err == nil {
		b.metrics.eventsLoadedTotal.WithLabelValues(b.metrics.serviceName).Add(float64(len(events)))
	}
	return events, err
}

// LoadByNames pages through the log with metrics.
func (b *Backend) LoadByNames(ctx context.Context, names []string, afterID int64, limit int) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := b.Backend.LoadByNames(ctx, names, afterID, limit)
	b.metrics.observeOperation(OperationLoadByNames, start, err)
	if err == nil {
		b.metrics.eventsLoadedTotal.WithLabelValues(b.metrics.serviceName).Add(float64(len(events)))
	}
	return events, err
}

// LastEventID returns the head of the log with metrics.
func (b *Backend) LastEventID(ctx context.Context) (int64, error) {
	start := time.Now()
	id, err := b.Backend.LastEventID(ctx)
	b.metrics.observeOperation(OperationLastEventID, start, err)
	return id, err
}

// Unwrap returns the wrapped backend.
func (b *Backend) Unwrap() adapters.Backend {
	return b.Backend
}

type meteredTx struct {
	adapters.Tx
	metrics  *Metrics
	appended []adapters.EventRecord
}

func (t *meteredTx) AppendEvents(ctx context.Context, records []adapters.EventRecord) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := t.Tx.AppendEvents(ctx, records)
	t.metrics.observeOperation(OperationAppend, start, err)
	if err == nil {
		t.appended = append(t.appended, records...)
	}
	return stored, err
}

func (t *meteredTx) UpsertState(ctx context.Context, table string, record adapters.StateRecord) error {
	start := time.Now()
	err := t.Tx.UpsertState(ctx, table, record)
	t.metrics.observeOperation(OperationUpsertState, start, err)
	return err
}

// Commit counts appended events only once they are durable.
func (t *meteredTx) Commit() error {
	start := time.Now()
	err := t.Tx.Commit()
	t.metrics.observeOperation(OperationCommit, start, err)
	if err == nil {
		for _, r := range t.appended {
			t.metrics.eventsAppendedTotal.WithLabelValues(t.metrics.serviceName, r.Name).Inc()
		}
	}
	t.appended = nil
	return err
}

// =============================================================================
// Getters for testing
// =============================================================================

// HydratesTotal returns the hydration counter.
func (m *Metrics) HydratesTotal() *prometheus.CounterVec { return m.hydratesTotal }

// HydrateDuration returns the hydration histogram.
func (m *Metrics) HydrateDuration() *prometheus.HistogramVec { return m.hydrateDuration }

// SavesTotal returns the save counter.
func (m *Metrics) SavesTotal() *prometheus.CounterVec { return m.savesTotal }

// SaveDuration returns the save histogram.
func (m *Metrics) SaveDuration() *prometheus.HistogramVec { return m.saveDuration }

// EventsSavedTotal returns the saved events counter.
func (m *Metrics) EventsSavedTotal() *prometheus.CounterVec { return m.eventsSavedTotal }

// AdapterOperationsTotal returns the adapter operation counter.
func (m *Metrics) AdapterOperationsTotal() *prometheus.CounterVec { return m.adapterOperationsTotal }

// EventsAppendedTotal returns the appended events counter.
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec { return m.eventsAppendedTotal }

// EventsLoadedTotal returns the loaded events counter.
func (m *Metrics) EventsLoadedTotal() *prometheus.CounterVec { return m.eventsLoadedTotal }

// ProjectionEventsTotal returns the projection delivery counter.
func (m *Metrics) ProjectionEventsTotal() *prometheus.CounterVec { return m.projectionEventsTotal }

// ProjectionCheckpoint returns the checkpoint gauge.
func (m *Metrics) ProjectionCheckpoint() *prometheus.GaugeVec { return m.projectionCheckpoint }

// ProjectionLag returns the lag gauge.
func (m *Metrics) ProjectionLag() *prometheus.GaugeVec { return m.projectionLag }

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec { return m.errorsTotal }
