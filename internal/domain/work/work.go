// Package work models jobs carried out on a car as part of an order.
package work

import (
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
)

const AggregateType = "work"

type State string

const (
	StateOpen      State = "open"
	StateAssigned  State = "assigned"
	StateStarted   State = "started"
	StateCompleted State = "completed"
)

type Created struct {
	Title   string `json:"title"`
	OrderID string `json:"orderId,omitempty"`
	CarID   string `json:"carId,omitempty"`
	// Estimate is the planned effort in minutes.
	Estimate int `json:"estimate,omitempty"`
}

func (Created) EventName() string { return "WorkCreated" }

type Assigned struct {
	WorkerID string `json:"workerId"`
}

func (Assigned) EventName() string { return "WorkAssigned" }

type Started struct {
	At time.Time `json:"at"`
}

func (Started) EventName() string { return "WorkStarted" }

type Completed struct {
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
}

func (Completed) EventName() string { return "WorkCompleted" }

type Deleted struct {
	At time.Time `json:"at"`
}

func (Deleted) EventName() string { return "WorkDeleted" }

// Work is a unit of labour. It moves open -> assigned -> started -> completed.
type Work struct {
	ledger.AggregateBase

	Title       string     `json:"title"`
	OrderID     string     `json:"orderId,omitempty"`
	CarID       string     `json:"carId,omitempty"`
	Estimate    int        `json:"estimate,omitempty"`
	WorkerID    string     `json:"workerId,omitempty"`
	State       State      `json:"state"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Deleted     bool       `json:"deleted,omitempty"`
}

func New(id string) *Work {
	return &Work{AggregateBase: ledger.NewAggregateBase(id)}
}

func (w *Work) AggregateType() string { return AggregateType }

// Duration returns the time between start and completion, or 0.
func (w *Work) Duration() time.Duration {
	if w.StartedAt == nil || w.CompletedAt == nil {
		return 0
	}
	return w.CompletedAt.Sub(*w.StartedAt)
}

func (w *Work) ApplyEvent(event ledger.Event) error {
	switch e := event.Payload.(type) {
	case Created:
		w.Title = e.Title
		w.OrderID = e.OrderID
		w.CarID = e.CarID
		w.Estimate = e.Estimate
		w.State = StateOpen
	case Assigned:
		w.WorkerID = e.WorkerID
		if w.State == StateOpen {
			w.State = StateAssigned
		}
	case Started:
		at := e.At
		w.StartedAt = &at
		w.State = StateStarted
	case Completed:
		at := e.At
		w.CompletedAt = &at
		w.State = StateCompleted
	case Deleted:
		w.Deleted = true
	default:
		return fmt.Errorf("work: unexpected event %q", event.Name)
	}
	return nil
}

type Create struct {
	ID       string
	Title    string
	OrderID  string
	CarID    string
	Estimate int
}

func (w *Work) Create(cmd Create) ([]ledger.Event, error) {
	if w.Exists() {
		return nil, rule("work already created")
	}
	if cmd.Title == "" {
		return nil, rule("title is required")
	}
	if cmd.Estimate < 0 {
		return nil, rule("estimate cannot be negative")
	}
	if cmd.ID != "" {
		w.SetID(cmd.ID)
	} else if w.AggregateID() == "" {
		w.SetID(ledger.NewID())
	}
	return ledger.Raise(w, Created{Title: cmd.Title, OrderID: cmd.OrderID, CarID: cmd.CarID, Estimate: cmd.Estimate})
}

type Assign struct {
	WorkerID string
}

// Assign hands the work to a worker. Reassignment is allowed until completion.
func (w *Work) Assign(cmd Assign) ([]ledger.Event, error) {
	if err := w.live(); err != nil {
		return nil, err
	}
	if cmd.WorkerID == "" {
		return nil, rule("worker is required")
	}
	if w.State == StateCompleted {
		return nil, rule("completed work cannot be reassigned")
	}
	if cmd.WorkerID == w.WorkerID {
		return nil, nil
	}
	return ledger.Raise(w, Assigned{WorkerID: cmd.WorkerID})
}

type Start struct {
	At time.Time
}

func (w *Work) Start(cmd Start) ([]ledger.Event, error) {
	if err := w.live(); err != nil {
		return nil, err
	}
	switch w.State {
	case StateOpen:
		return nil, rule("work must be assigned before it starts")
	case StateStarted, StateCompleted:
		return nil, rule(fmt.Sprintf("work is already %s", w.State))
	}
	return ledger.Raise(w, Started{At: orNow(cmd.At)})
}

type Complete struct {
	At    time.Time
	Notes string
}

func (w *Work) Complete(cmd Complete) ([]ledger.Event, error) {
	if err := w.live(); err != nil {
		return nil, err
	}
	if w.State != StateStarted {
		return nil, rule("work must be started before completion")
	}
	at := orNow(cmd.At)
	if at.Before(*w.StartedAt) {
		return nil, rule("completion precedes start")
	}
	return ledger.Raise(w, Completed{At: at, Notes: cmd.Notes})
}

type Delete struct {
	At time.Time
}

func (w *Work) Delete(cmd Delete) ([]ledger.Event, error) {
	if err := w.live(); err != nil {
		return nil, err
	}
	return ledger.Raise(w, Deleted{At: orNow(cmd.At)})
}

func (w *Work) live() error {
	if err := ledger.RequireExists(w); err != nil {
		return err
	}
	if w.Deleted {
		return rule("work is deleted")
	}
	return nil
}

func rule(r string) error {
	return ledger.NewDomainRuleError(AggregateType, r)
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func RegisterEvents(r *ledger.EventRegistry) error {
	return errors.Join(
		ledger.RegisterPayload[Created](r),
		ledger.RegisterPayload[Assigned](r),
		ledger.RegisterPayload[Started](r),
		ledger.RegisterPayload[Completed](r),
		ledger.RegisterPayload[Deleted](r),
	)
}
