// Package car models fleet vehicles.
package car

import (
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
)

// AggregateType is the aggregate type name and the prefix of its tables.
const AggregateType = "car"

// Car is a vehicle tracked by plate, with an odometer and an optional owner.
type Car struct {
	ledger.AggregateBase

	Plate     string     `json:"plate"`
	Make      string     `json:"make"`
	Model     string     `json:"model"`
	Year      int        `json:"year"`
	Mileage   int64      `json:"mileage"`
	OwnerID   string     `json:"ownerId,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// New returns an empty car with the given id.
func New(id string) *Car {
	return &Car{AggregateBase: ledger.NewAggregateBase(id)}
}

func (c *Car) AggregateType() string { return AggregateType }

// Deleted reports whether the car has been deleted.
func (c *Car) Deleted() bool { return c.DeletedAt != nil }

// ApplyEvent applies a domain event to update aggregate state.
func (c *Car) ApplyEvent(event ledger.Event) error {
	switch e := event.Payload.(type) {
	case Registered:
		c.Plate = e.Plate
		c.Make = e.Make
		c.Model = e.Model
		c.Year = e.Year
		c.Mileage = e.Mileage
	case MileageRecorded:
		c.Mileage = e.Mileage
	case OwnerAssigned:
		c.OwnerID = e.CustomerID
	case Deleted:
		at := e.At
		c.DeletedAt = &at
	default:
		return fmt.Errorf("car: unexpected event %q", event.Name)
	}
	return nil
}

// Register is the command creating a car.
type Register struct {
	ID      string
	Plate   string
	Make    string
	Model   string
	Year    int
	Mileage int64
}

// Register creates the car. An empty ID gets a generated one.
func (c *Car) Register(cmd Register) ([]ledger.Event, error) {
	if c.Exists() {
		return nil, c.rule("car already registered")
	}
	if cmd.Plate == "" {
		return nil, c.rule("plate is required")
	}
	if cmd.Mileage < 0 {
		return nil, c.rule("mileage cannot be negative")
	}

	switch {
	case cmd.ID != "":
		c.SetID(cmd.ID)
	case c.AggregateID() == "":
		c.SetID(ledger.NewID())
	}

	return ledger.Raise(c, Registered{
		Plate:   cmd.Plate,
		Make:    cmd.Make,
		Model:   cmd.Model,
		Year:    cmd.Year,
		Mileage: cmd.Mileage,
	})
}

// RecordMileage is the command storing an odometer reading.
type RecordMileage struct {
	Mileage int64
}

// RecordMileage stores a reading. Readings never go down; an equal reading
// raises nothing.
func (c *Car) RecordMileage(cmd RecordMileage) ([]ledger.Event, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	if cmd.Mileage < c.Mileage {
		return nil, c.rule("mileage cannot decrease")
	}
	if cmd.Mileage == c.Mileage {
		return nil, nil
	}
	return ledger.Raise(c, MileageRecorded{Mileage: cmd.Mileage})
}

// AssignOwner is the command linking a car to a customer.
type AssignOwner struct {
	CustomerID string
}

func (c *Car) AssignOwner(cmd AssignOwner) ([]ledger.Event, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	if cmd.CustomerID == "" {
		return nil, c.rule("customer is required")
	}
	if cmd.CustomerID == c.OwnerID {
		return nil, nil
	}
	return ledger.Raise(c, OwnerAssigned{CustomerID: cmd.CustomerID})
}

// Delete is the command removing a car. A zero At means now.
type Delete struct {
	At time.Time
}

func (c *Car) Delete(cmd Delete) ([]ledger.Event, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return ledger.Raise(c, Deleted{At: at})
}

func (c *Car) active() error {
	if err := ledger.RequireExists(c); err != nil {
		return err
	}
	if c.Deleted() {
		return c.rule("car is deleted")
	}
	return nil
}

func (c *Car) rule(rule string) error {
	return ledger.NewDomainRuleError(AggregateType, rule)
}

// RegisterEvents adds the car events to r.
func RegisterEvents(r *ledger.EventRegistry) error {
	return errors.Join(
		ledger.RegisterPayload[Registered](r),
		ledger.RegisterPayload[MileageRecorded](r),
		ledger.RegisterPayload[OwnerAssigned](r),
		ledger.RegisterPayload[Deleted](r),
	)
}
