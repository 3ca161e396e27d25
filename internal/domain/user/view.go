package user

import (
	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

const ViewTable = "user_view"

type View struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`
}

// NewView creates the user directory. Deleted users keep their row with
// Active false.
func NewView(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ledger.ReadModel[View], error) {
	m, err := ledger.NewReadModel[View](adapter, ViewTable, opts...)
	if err != nil {
		return nil, err
	}
	ledger.Handle(m, func(v *View, p Registered, e ledger.Event) error {
		*v = View{ID: e.AggregateID, Email: p.Email, Name: p.Name, Role: p.Role, Active: true}
		return nil
	})
	ledger.Handle(m, func(v *View, p RoleChanged, _ ledger.Event) error {
		v.Role = p.To
		return nil
	})
	ledger.Handle(m, func(v *View, _ Deactivated, _ ledger.Event) error {
		v.Active = false
		return nil
	})
	ledger.Handle(m, func(v *View, _ Deleted, _ ledger.Event) error {
		v.Active = false
		return nil
	})
	return m, nil
}
