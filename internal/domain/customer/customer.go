// Package customer models the people and companies that own cars and place orders.
package customer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

const AggregateType = "customer"

// Created is raised when a customer is first recorded.
type Created struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (Created) EventName() string { return "CustomerCreated" }

type Renamed struct {
	Name string `json:"name"`
}

func (Renamed) EventName() string { return "CustomerRenamed" }

// ContactChanged replaces both contact fields.
type ContactChanged struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (ContactChanged) EventName() string { return "CustomerContactChanged" }

type Deleted struct {
	At time.Time `json:"at"`
}

func (Deleted) EventName() string { return "CustomerDeleted" }

// Customer is the aggregate root for customer records.
type Customer struct {
	ledger.AggregateBase

	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func New(id string) *Customer {
	return &Customer{AggregateBase: ledger.NewAggregateBase(id)}
}

func (c *Customer) AggregateType() string { return AggregateType }

func (c *Customer) Deleted() bool { return c.DeletedAt != nil }

func (c *Customer) ApplyEvent(event ledger.Event) error {
	switch e := event.Payload.(type) {
	case Created:
		c.Name = e.Name
		c.Email = e.Email
		c.Phone = e.Phone
	case Renamed:
		c.Name = e.Name
	case ContactChanged:
		c.Email = e.Email
		c.Phone = e.Phone
	case Deleted:
		at := e.At
		c.DeletedAt = &at
	default:
		return fmt.Errorf("customer: unexpected event %q", event.Name)
	}
	return nil
}

type Create struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// Create records a new customer. Name is required.
func (c *Customer) Create(cmd Create) ([]ledger.Event, error) {
	if c.Exists() {
		return nil, rule("customer already exists")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, rule("name is required")
	}
	if cmd.ID != "" {
		c.SetID(cmd.ID)
	} else if c.AggregateID() == "" {
		c.SetID(ledger.NewID())
	}
	return ledger.Raise(c, Created{Name: name, Email: cmd.Email, Phone: cmd.Phone})
}

type Rename struct {
	Name string
}

func (c *Customer) Rename(cmd Rename) ([]ledger.Event, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, rule("name is required")
	}
	if name == c.Name {
		return nil, nil
	}
	return ledger.Raise(c, Renamed{Name: name})
}

type ChangeContact struct {
	Email string
	Phone string
}

func (c *Customer) ChangeContact(cmd ChangeContact) ([]ledger.Event, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	if cmd.Email != "" && !strings.Contains(cmd.Email, "@") {
		return nil, rule("email is malformed")
	}
	if cmd.Email == c.Email && cmd.Phone == c.Phone {
		return nil, nil
	}
	return ledger.Raise(c, ContactChanged{Email: cmd.Email, Phone: cmd.Phone})
}

type Delete struct {
	At time.Time
}

func (c *Customer) Delete(cmd Delete) ([]ledger.Event, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return ledger.Raise(c, Deleted{At: at})
}

func (c *Customer) active() error {
	if err := ledger.RequireExists(c); err != nil {
		return err
	}
	if c.Deleted() {
		return rule("customer is deleted")
	}
	return nil
}

func rule(r string) error {
	return ledger.NewDomainRuleError(AggregateType, r)
}

// RegisterEvents adds the customer events to r.
func RegisterEvents(r *ledger.EventRegistry) error {
	return errors.Join(
		ledger.RegisterPayload[Created](r),
		ledger.RegisterPayload[Renamed](r),
		ledger.RegisterPayload[ContactChanged](r),
		ledger.RegisterPayload[Deleted](r),
	)
}

const ViewTable = "customer_view"

// View is the customer directory row.
type View struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Deleted bool   `json:"deleted"`
}

// NewView creates the customer directory read model.
func NewView(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ledger.ReadModel[View], error) {
	m, err := ledger.NewReadModel[View](adapter, ViewTable, opts...)
	if err != nil {
		return nil, err
	}

	ledger.Handle(m, func(v *View, p Created, e ledger.Event) error {
		*v = View{ID: e.AggregateID, Name: p.Name, Email: p.Email, Phone: p.Phone}
		return nil
	})
	ledger.Handle(m, func(v *View, p Renamed, _ ledger.Event) error {
		v.Name = p.Name
		return nil
	})
	ledger.Handle(m, func(v *View, p ContactChanged, _ ledger.Event) error {
		v.Email = p.Email
		v.Phone = p.Phone
		return nil
	})
	ledger.Handle(m, func(v *View, _ Deleted, _ ledger.Event) error {
		v.Deleted = true
		return nil
	})
	return m, nil
}
