// Package ledger is an event-sourced persistence engine for Go applications.
//
// Business state is derived from an append-only log of domain events. The
// package provides the aggregate abstraction, an event store with optimistic
// concurrency, hydration from snapshots plus tail events, transactional
// saves, and read-model projections that can snapshot and restore their own
// tables.
//
// # Quick Start
//
// Create an event store with the in-memory adapter for development:
//
//	import (
//	    "github.com/AshkanYarmoradi/go-ledger"
//	    "github.com/AshkanYarmoradi/go-ledger/adapters/memory"
//	)
//
//	registry := ledger.NewEventRegistry()
//	ledger.MustRegisterPayload[CarRegistered](registry)
//	store := ledger.New(memory.NewAdapter(), ledger.WithRegistry(registry))
//
// For production, use the PostgreSQL, MySQL or SQLite adapter:
//
//	adapter, err := postgres.NewAdapter(connStr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := ledger.New(adapter, ledger.WithRegistry(registry))
//
// # Defining Events
//
// An event payload is a struct that names itself:
//
//	type CarRegistered struct {
//	    Plate string `json:"plate"`
//	}
//
//	func (CarRegistered) EventName() string { return "CarRegistered" }
//
// Stored events are decoded through the registry, which maps an event name
// and schema version to a decoder. Nothing is discovered by reflection.
//
// # Defining Aggregates
//
//	type Car struct {
//	    ledger.AggregateBase
//	    Plate string `json:"plate"`
//	}
//
//	func NewCar(id string) *Car {
//	    return &Car{AggregateBase: ledger.NewAggregateBase(id)}
//	}
//
//	func (c *Car) AggregateType() string { return "car" }
//
//	func (c *Car) Register(plate string) ([]ledger.Event, error) {
//	    if plate == "" {
//	        return nil, ledger.NewDomainRuleError("car", "plate required")
//	    }
//	    c.SetID(ledger.NewID())
//	    return ledger.Raise(c, CarRegistered{Plate: plate})
//	}
//
//	func (c *Car) ApplyEvent(e ledger.Event) error {
//	    switch p := e.Payload.(type) {
//	    case CarRegistered:
//	        c.Plate = p.Plate
//	    }
//	    return nil
//	}
//
// # Saving and Hydrating
//
//	repo, _ := ledger.NewRepository(store, NewCar)
//	car := repo.New()
//	events, err := car.Register("B-123")
//	err = repo.Save(ctx, car, events)
//
//	loaded, err := repo.Hydrate(ctx, car.AggregateID())
//
// Save appends the events and upserts the aggregate's state row in one
// transaction. A concurrent writer of the same version fails with
// ErrConcurrencyConflict; wrap the whole command in RetryOnConflict to retry.
//
// # Projections
//
// A ReadModel keeps one row per aggregate, guarded by the aggregate version:
//
//	view, _ := ledger.NewReadModel[CarView](adapter, "car_view")
//	ledger.Handle(view, func(row *CarView, p CarRegistered, e ledger.Event) error {
//	    row.ID, row.Plate = e.AggregateID, p.Plate
//	    return nil
//	})
//
// Deliver events in-process with a Dispatcher, or from the log with a
// Projector. CreateSnapshot and ApplySnapshot copy the table to and from
// its snapshot twin so a Rebuilder can resume from a cursor.
package ledger

// Version returns the library version string.
func Version() string {
	return "0.3.0"
}
