// Package order models work orders placed by a customer for a car.
package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
)

const AggregateType = "order"

// Status is the lifecycle stage of an order.
type Status string

const (
	StatusPlaced    Status = "placed"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Line is one priced item of an order.
type Line struct {
	SKU         string `json:"sku"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
}

// Amount returns Quantity * UnitPrice.
func (l Line) Amount() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

type Order struct {
	ledger.AggregateBase

	CustomerID  string     `json:"customerId"`
	CarID       string     `json:"carId"`
	Lines       []Line     `json:"lines,omitempty"`
	Status      Status     `json:"status"`
	PlacedAt    time.Time  `json:"placedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Deleted     bool       `json:"deleted,omitempty"`
}

func New(id string) *Order {
	return &Order{AggregateBase: ledger.NewAggregateBase(id)}
}

func (o *Order) AggregateType() string { return AggregateType }

// Total returns the sum of all line amounts in cents.
func (o *Order) Total() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.Amount()
	}
	return total
}

func (o *Order) ApplyEvent(event ledger.Event) error {
	switch e := event.Payload.(type) {
	case Placed:
		o.CustomerID = e.CustomerID
		o.CarID = e.CarID
		o.PlacedAt = e.PlacedAt
		o.Status = StatusPlaced
	case LineAdded:
		o.Lines = append(o.Lines, Line(e))
	case Approved:
		o.Status = StatusApproved
	case Completed:
		at := e.CompletedAt
		o.CompletedAt = &at
		o.Status = StatusCompleted
	case Cancelled:
		o.Status = StatusCancelled
	case Deleted:
		o.Deleted = true
	default:
		return fmt.Errorf("order: unexpected event %q", event.Name)
	}
	return nil
}

type Place struct {
	ID         string
	CustomerID string
	CarID      string
	At         time.Time
}

// Place opens an order for a customer's car.
func (o *Order) Place(cmd Place) ([]ledger.Event, error) {
	if o.Exists() {
		return nil, rule("order already placed")
	}
	if cmd.CustomerID == "" {
		return nil, rule("customer is required")
	}
	if cmd.CarID == "" {
		return nil, rule("car is required")
	}
	if cmd.ID != "" {
		o.SetID(cmd.ID)
	} else if o.AggregateID() == "" {
		o.SetID(ledger.NewID())
	}
	return ledger.Raise(o, Placed{CustomerID: cmd.CustomerID, CarID: cmd.CarID, PlacedAt: now(cmd.At)})
}

type AddLine struct {
	SKU         string
	Description string
	Quantity    int
	UnitPrice   int64
}

// AddLine appends a line. Lines can only be added while the order is placed.
func (o *Order) AddLine(cmd AddLine) ([]ledger.Event, error) {
	if err := o.open(); err != nil {
		return nil, err
	}
	if o.Status != StatusPlaced {
		return nil, rule("lines cannot be added after approval")
	}
	if cmd.SKU == "" {
		return nil, rule("sku is required")
	}
	if cmd.Quantity <= 0 {
		return nil, rule("quantity must be positive")
	}
	if cmd.UnitPrice <= 0 {
		return nil, rule("unit price must be positive")
	}
	return ledger.Raise(o, LineAdded(cmd))
}

type Approve struct {
	At time.Time
}

func (o *Order) Approve(cmd Approve) ([]ledger.Event, error) {
	if err := o.open(); err != nil {
		return nil, err
	}
	if o.Status != StatusPlaced {
		return nil, rule(fmt.Sprintf("cannot approve a %s order", o.Status))
	}
	if len(o.Lines) == 0 {
		return nil, rule("order has no lines")
	}
	return ledger.Raise(o, Approved{Total: o.Total(), ApprovedAt: now(cmd.At)})
}

type Complete struct {
	At time.Time
}

func (o *Order) Complete(cmd Complete) ([]ledger.Event, error) {
	if err := o.open(); err != nil {
		return nil, err
	}
	if o.Status != StatusApproved {
		return nil, rule("order must be approved before completion")
	}
	return ledger.Raise(o, Completed{CompletedAt: now(cmd.At)})
}

type Cancel struct {
	Reason string
	At     time.Time
}

// Cancel stops an order that is not yet completed.
func (o *Order) Cancel(cmd Cancel) ([]ledger.Event, error) {
	if err := o.open(); err != nil {
		return nil, err
	}
	switch o.Status {
	case StatusCompleted:
		return nil, rule("completed orders cannot be cancelled")
	case StatusCancelled:
		return nil, nil
	}
	return ledger.Raise(o, Cancelled{Reason: cmd.Reason, CancelledAt: now(cmd.At)})
}

type Delete struct {
	At time.Time
}

func (o *Order) Delete(cmd Delete) ([]ledger.Event, error) {
	if err := o.open(); err != nil {
		return nil, err
	}
	return ledger.Raise(o, Deleted{At: now(cmd.At)})
}

func (o *Order) open() error {
	if err := ledger.RequireExists(o); err != nil {
		return err
	}
	if o.Deleted {
		return rule("order is deleted")
	}
	return nil
}

func rule(r string) error {
	return ledger.NewDomainRuleError(AggregateType, r)
}

func now(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// RegisterEvents adds the order events to r.
func RegisterEvents(r *ledger.EventRegistry) error {
	return errors.Join(
		ledger.RegisterPayload[Placed](r),
		ledger.RegisterPayload[LineAdded](r),
		ledger.RegisterPayload[Approved](r),
		ledger.RegisterPayload[Completed](r),
		ledger.RegisterPayload[Cancelled](r),
		ledger.RegisterPayload[Deleted](r),
	)
}
