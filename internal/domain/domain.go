// Package domain wires the car service aggregates and read models into the
// ledger: the event registry, repositories and projections.
package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/car"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/customer"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/order"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/user"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/work"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/worker"
)

// AggregateTypes lists every aggregate type, sorted.
var AggregateTypes = []string{
	car.AggregateType,
	customer.AggregateType,
	order.AggregateType,
	user.AggregateType,
	work.AggregateType,
	worker.AggregateType,
}

// Register adds every domain event to r.
func Register(r *ledger.EventRegistry) error {
	return errors.Join(
		car.RegisterEvents(r),
		customer.RegisterEvents(r),
		order.RegisterEvents(r),
		user.RegisterEvents(r),
		work.RegisterEvents(r),
		worker.RegisterEvents(r),
	)
}

// NewRegistry returns a registry holding every domain event.
func NewRegistry() (*ledger.EventRegistry, error) {
	r := ledger.NewEventRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadModel is the untyped view of a *ledger.ReadModel[T].
type ReadModel interface {
	ledger.Rebuildable
	Table() string
	Initialize(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Stats() ledger.ProjectionStats
	CreateSnapshot(ctx context.Context, lastEventID int64) (*ledger.ProjectionSnapshot, error)
	Snapshot(ctx context.Context) (*ledger.ProjectionSnapshot, error)
}

// ProjectionSet is the set of domain read models sharing one adapter.
type ProjectionSet struct {
	models []ReadModel
}

// Projections builds every domain read model on adapter.
func Projections(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ProjectionSet, error) {
	set := &ProjectionSet{}
	add := func(m ReadModel, err error) error {
		if err != nil {
			return err
		}
		set.models = append(set.models, m)
		return nil
	}

	carView, err := car.NewView(adapter, opts...)
	if err := add(carView, err); err != nil {
		return nil, err
	}
	customerView, err := customer.NewView(adapter, opts...)
	if err := add(customerView, err); err != nil {
		return nil, err
	}
	orderView, err := order.NewView(adapter, opts...)
	if err := add(orderView, err); err != nil {
		return nil, err
	}
	userView, err := user.NewView(adapter, opts...)
	if err := add(userView, err); err != nil {
		return nil, err
	}
	workView, err := work.NewView(adapter, opts...)
	if err := add(workView, err); err != nil {
		return nil, err
	}
	workerView, err := worker.NewView(adapter, opts...)
	if err := add(workerView, err); err != nil {
		return nil, err
	}
	return set, nil
}

// All returns the read models in a stable order.
func (s *ProjectionSet) All() []ReadModel {
	out := make([]ReadModel, len(s.models))
	copy(out, s.models)
	return out
}

// Names returns the projection names, sorted.
func (s *ProjectionSet) Names() []string {
	names := make([]string, len(s.models))
	for i, m := range s.models {
		names[i] = m.Name()
	}
	sort.Strings(names)
	return names
}

// ByName returns the read model with the given projection name.
func (s *ProjectionSet) ByName(name string) (ReadModel, error) {
	for _, m := range s.models {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("domain: unknown projection %q: %w", name, ledger.ErrNotFound)
}

// Initialize creates every read-model table.
func (s *ProjectionSet) Initialize(ctx context.Context) error {
	for _, m := range s.models {
		if err := m.Initialize(ctx); err != nil {
			return fmt.Errorf("domain: failed to initialize %s: %w", m.Name(), err)
		}
	}
	return nil
}

// Dispatcher returns a dispatcher delivering to every read model.
func (s *ProjectionSet) Dispatcher(opts ...ledger.DispatcherOption) (*ledger.Dispatcher, error) {
	d := ledger.NewDispatcher(opts...)
	for _, m := range s.models {
		if err := d.Register(m); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Rebuildables returns the read models as ledger.Rebuildable values.
func (s *ProjectionSet) Rebuildables() []ledger.Rebuildable {
	out := make([]ledger.Rebuildable, len(s.models))
	for i, m := range s.models {
		out[i] = m
	}
	return out
}

// Repository is the untyped view of a *ledger.Repository[T] used by tooling.
type Repository interface {
	AggregateType() string
	Initialize(ctx context.Context) error
	// Load hydrates the aggregate, at version when at > 0.
	Load(ctx context.Context, id string, at int64) (ledger.Aggregate, error)
	// TakeSnapshot hydrates the aggregate, snapshots it and returns the version.
	TakeSnapshot(ctx context.Context, id string) (int64, error)
}

type repository[T ledger.Aggregate] struct {
	*ledger.Repository[T]
}

func (r repository[T]) Load(ctx context.Context, id string, at int64) (ledger.Aggregate, error) {
	if at > 0 {
		return r.HydrateAt(ctx, id, at)
	}
	return r.Hydrate(ctx, id)
}

func (r repository[T]) TakeSnapshot(ctx context.Context, id string) (int64, error) {
	agg, err := r.Hydrate(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := r.Snapshot(ctx, agg); err != nil {
		return 0, err
	}
	return agg.Version(), nil
}

func newRepository[T ledger.Aggregate](store *ledger.EventStore, factory func(string) T, opts []ledger.RepositoryOption) (Repository, error) {
	repo, err := ledger.NewRepository(store, factory, opts...)
	if err != nil {
		return nil, err
	}
	return repository[T]{repo}, nil
}

// Repositories builds one repository per aggregate type, keyed by type.
func Repositories(store *ledger.EventStore, opts ...ledger.RepositoryOption) (map[string]Repository, error) {
	builders := []func() (Repository, error){
		func() (Repository, error) { return newRepository(store, car.New, opts) },
		func() (Repository, error) { return newRepository(store, customer.New, opts) },
		func() (Repository, error) { return newRepository(store, order.New, opts) },
		func() (Repository, error) { return newRepository(store, user.New, opts) },
		func() (Repository, error) { return newRepository(store, work.New, opts) },
		func() (Repository, error) { return newRepository(store, worker.New, opts) },
	}

	repos := make(map[string]Repository, len(builders))
	for _, build := range builders {
		repo, err := build()
		if err != nil {
			return nil, err
		}
		repos[repo.AggregateType()] = repo
	}
	return repos, nil
}
