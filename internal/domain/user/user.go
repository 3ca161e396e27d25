// Package user models operator accounts.
package user

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
)

const AggregateType = "user"

// Role is an access level.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

type Registered struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
}

func (Registered) EventName() string { return "UserRegistered" }

type RoleChanged struct {
	From Role `json:"from"`
	To   Role `json:"to"`
}

func (RoleChanged) EventName() string { return "UserRoleChanged" }

type Deactivated struct {
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func (Deactivated) EventName() string { return "UserDeactivated" }

type Deleted struct {
	At time.Time `json:"at"`
}

func (Deleted) EventName() string { return "UserDeleted" }

type User struct {
	ledger.AggregateBase

	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Role    Role   `json:"role"`
	Active  bool   `json:"active"`
	Deleted bool   `json:"deleted,omitempty"`
}

func New(id string) *User {
	return &User{AggregateBase: ledger.NewAggregateBase(id)}
}

func (u *User) AggregateType() string { return AggregateType }

func (u *User) ApplyEvent(event ledger.Event) error {
	switch e := event.Payload.(type) {
	case Registered:
		u.Email = e.Email
		u.Name = e.Name
		u.Role = e.Role
		u.Active = true
	case RoleChanged:
		u.Role = e.To
	case Deactivated:
		u.Active = false
	case Deleted:
		u.Active = false
		u.Deleted = true
	default:
		return fmt.Errorf("user: unexpected event %q", event.Name)
	}
	return nil
}

type Register struct {
	ID    string
	Email string
	Name  string
	// Role defaults to RoleViewer.
	Role Role
}

func (u *User) Register(cmd Register) ([]ledger.Event, error) {
	if u.Exists() {
		return nil, rule("user already registered")
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return nil, rule("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, rule("email is malformed")
	}
	role := cmd.Role
	if role == "" {
		role = RoleViewer
	}
	if !role.Valid() {
		return nil, rule(fmt.Sprintf("unknown role %q", role))
	}

	if cmd.ID != "" {
		u.SetID(cmd.ID)
	} else if u.AggregateID() == "" {
		u.SetID(ledger.NewID())
	}
	return ledger.Raise(u, Registered{Email: email, Name: cmd.Name, Role: role})
}

type ChangeRole struct {
	Role Role
}

func (u *User) ChangeRole(cmd ChangeRole) ([]ledger.Event, error) {
	if err := u.active(); err != nil {
		return nil, err
	}
	if !cmd.Role.Valid() {
		return nil, rule(fmt.Sprintf("unknown role %q", cmd.Role))
	}
	if cmd.Role == u.Role {
		return nil, nil
	}
	return ledger.Raise(u, RoleChanged{From: u.Role, To: cmd.Role})
}

type Deactivate struct {
	Reason string
	At     time.Time
}

func (u *User) Deactivate(cmd Deactivate) ([]ledger.Event, error) {
	if err := u.active(); err != nil {
		return nil, err
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return ledger.Raise(u, Deactivated{Reason: cmd.Reason, At: at})
}

type Delete struct {
	At time.Time
}

// Delete removes the user. Inactive users can still be deleted.
func (u *User) Delete(cmd Delete) ([]ledger.Event, error) {
	if err := ledger.RequireExists(u); err != nil {
		return nil, err
	}
	if u.Deleted {
		return nil, rule("user is deleted")
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return ledger.Raise(u, Deleted{At: at})
}

func (u *User) active() error {
	if err := ledger.RequireExists(u); err != nil {
		return err
	}
	if !u.Active {
		return rule("user is not active")
	}
	return nil
}

func rule(r string) error {
	return ledger.NewDomainRuleError(AggregateType, r)
}

func RegisterEvents(r *ledger.EventRegistry) error {
	return errors.Join(
		ledger.RegisterPayload[Registered](r),
		ledger.RegisterPayload[RoleChanged](r),
		ledger.RegisterPayload[Deactivated](r),
		ledger.RegisterPayload[Deleted](r),
	)
}
