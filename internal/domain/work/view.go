package work

import (
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

const ViewTable = "work_board"

// Card is one entry on the work board.
type Card struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	OrderID  string `json:"orderId,omitempty"`
	WorkerID string `json:"workerId,omitempty"`
	State    State  `json:"state"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	// Minutes is the actual duration once completed.
	Minutes int  `json:"minutes,omitempty"`
	Deleted bool `json:"deleted"`
}

// NewView creates the work board read model.
func NewView(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ledger.ReadModel[Card], error) {
	m, err := ledger.NewReadModel[Card](adapter, ViewTable, opts...)
	if err != nil {
		return nil, err
	}
	ledger.Handle(m, func(c *Card, p Created, e ledger.Event) error {
		*c = Card{ID: e.AggregateID, Title: p.Title, OrderID: p.OrderID, State: StateOpen}
		return nil
	})
	ledger.Handle(m, func(c *Card, p Assigned, _ ledger.Event) error {
		c.WorkerID = p.WorkerID
		if c.State == StateOpen {
			c.State = StateAssigned
		}
		return nil
	})
	ledger.Handle(m, func(c *Card, p Started, _ ledger.Event) error {
		at := p.At
		c.StartedAt = &at
		c.State = StateStarted
		return nil
	})
	ledger.Handle(m, func(c *Card, p Completed, _ ledger.Event) error {
		c.State = StateCompleted
		if c.StartedAt != nil {
			c.Minutes = int(p.At.Sub(*c.StartedAt).Minutes())
		}
		return nil
	})
	ledger.Handle(m, func(c *Card, _ Deleted, _ ledger.Event) error {
		c.Deleted = true
		return nil
	})
	return m, nil
}
