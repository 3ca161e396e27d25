package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Account fixture events.
type (
	AccountOpened struct {
		Owner string `json:"owner"`
	}
	AccountDeposited struct {
		Amount int64 `json:"amount"`
	}
	AccountWithdrawn struct {
		Amount int64 `json:"amount"`
	}
)

func (AccountOpened) EventName() string    { return "AccountOpened" }
func (AccountDeposited) EventName() string { return "AccountDeposited" }
func (AccountWithdrawn) EventName() string { return "AccountWithdrawn" }

// AccountType is the aggregate type of Account.
const AccountType = "account"

// Account is a minimal aggregate for exercising repositories and projections.
type Account struct {
	ledger.AggregateBase

	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
}

// NewAccount returns an empty account.
func NewAccount(id string) *Account {
	return &Account{AggregateBase: ledger.NewAggregateBase(id)}
}

func (a *Account) AggregateType() string { return AccountType }

func (a *Account) ApplyEvent(event ledger.Event) error {
	switch p := event.Payload.(type) {
	case AccountOpened:
		a.Owner = p.Owner
	case AccountDeposited:
		a.Balance += p.Amount
	case AccountWithdrawn:
		a.Balance -= p.Amount
	default:
		return errors.New("account: unexpected event " + event.Name)
	}
	return nil
}

// Open raises AccountOpened.
func (a *Account) Open(owner string) ([]ledger.Event, error) {
	if a.Exists() {
		return nil, ledger.NewDomainRuleError(AccountType, "account already open")
	}
	if a.AggregateID() == "" {
		a.SetID(ledger.NewID())
	}
	return ledger.Raise(a, AccountOpened{Owner: owner})
}

// Deposit raises AccountDeposited.
func (a *Account) Deposit(amount int64) ([]ledger.Event, error) {
	if err := ledger.RequireExists(a); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ledger.NewDomainRuleError(AccountType, "amount must be positive")
	}
	return ledger.Raise(a, AccountDeposited{Amount: amount})
}

// Withdraw raises AccountWithdrawn unless the balance is too low.
func (a *Account) Withdraw(amount int64) ([]ledger.Event, error) {
	if err := ledger.RequireExists(a); err != nil {
		return nil, err
	}
	if amount > a.Balance {
		return nil, ledger.NewDomainRuleError(AccountType, "insufficient funds")
	}
	return ledger.Raise(a, AccountWithdrawn{Amount: amount})
}

// RegisterAccountEvents adds the account events to r.
func RegisterAccountEvents(r *ledger.EventRegistry) error {
	return errors.Join(
		ledger.RegisterPayload[AccountOpened](r),
		ledger.RegisterPayload[AccountDeposited](r),
		ledger.RegisterPayload[AccountWithdrawn](r),
	)
}

// AccountStore returns an event store over backend that decodes account events.
func AccountStore(t testing.TB, backend adapters.EventStoreAdapter) *ledger.EventStore {
	t.Helper()

	r := ledger.NewEventRegistry()
	require.NoError(t, RegisterAccountEvents(r))
	return ledger.New(backend, ledger.WithRegistry(r))
}

// AccountViewTable is the table of the account read model.
const AccountViewTable = "account_view"

// AccountView is the account read-model row.
type AccountView struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	Balance      int64  `json:"balance"`
	Transactions int    `json:"transactions"`
}

// NewAccountView creates the account read model.
func NewAccountView(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ledger.ReadModel[AccountView], error) {
	m, err := ledger.NewReadModel[AccountView](adapter, AccountViewTable, opts...)
	if err != nil {
		return nil, err
	}

	ledger.Handle(m, func(v *AccountView, p AccountOpened, e ledger.Event) error {
		*v = AccountView{ID: e.AggregateID, Owner: p.Owner}
		return nil
	})
	ledger.Handle(m, func(v *AccountView, p AccountDeposited, e ledger.Event) error {
		v.Balance += p.Amount
		v.Transactions++
		return nil
	})
	ledger.Handle(m, func(v *AccountView, p AccountWithdrawn, e ledger.Event) error {
		v.Balance -= p.Amount
		v.Transactions++
		return nil
	})
	return m, nil
}
