package ledger

import "time"

// Observer receives timing and outcome callbacks from repositories,
// read models and projectors. middleware/metrics provides a Prometheus
// implementation.
type Observer interface {
	// ObserveHydrate is called after every Hydrate or HydrateAt.
	ObserveHydrate(aggregateType string, duration time.Duration, err error)

	// ObserveSave is called after every Save that had events to persist.
	ObserveSave(aggregateType string, events int, duration time.Duration, err error)

	// ObserveProjection is called for each event delivered to a read model.
	// applied is false when the event was stale or not handled.
	ObserveProjection(projection, eventName string, applied bool, duration time.Duration, err error)

	// ObserveCheckpoint is called when a projector stores its position.
	ObserveCheckpoint(projection string, position int64)
}

// noopObserver is a no-op implementation of Observer.
type noopObserver struct{}

func (noopObserver) ObserveHydrate(aggregateType string, duration time.Duration, err error) {}

func (noopObserver) ObserveSave(aggregateType string, events int, duration time.Duration, err error) {
}

func (noopObserver) ObserveProjection(projection, eventName string, applied bool, duration time.Duration, err error) {
}

func (noopObserver) ObserveCheckpoint(projection string, position int64) {}
