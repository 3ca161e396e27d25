package order

import (
	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

const ViewTable = "order_summary"

// Summary is the order list row.
type Summary struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	CarID      string `json:"carId"`
	Status     Status `json:"status"`
	Lines      int    `json:"lines"`
	Total      int64  `json:"total"`
	Deleted    bool   `json:"deleted"`
}

// NewView creates the order summary read model.
func NewView(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ledger.ReadModel[Summary], error) {
	m, err := ledger.NewReadModel[Summary](adapter, ViewTable, opts...)
	if err != nil {
		return nil, err
	}

	ledger.Handle(m, func(s *Summary, p Placed, e ledger.Event) error {
		*s = Summary{ID: e.AggregateID, CustomerID: p.CustomerID, CarID: p.CarID, Status: StatusPlaced}
		return nil
	})
	ledger.Handle(m, func(s *Summary, p LineAdded, _ ledger.Event) error {
		s.Lines++
		s.Total += Line(p).Amount()
		return nil
	})
	ledger.Handle(m, func(s *Summary, p Approved, _ ledger.Event) error {
		s.Status = StatusApproved
		s.Total = p.Total
		return nil
	})
	ledger.Handle(m, func(s *Summary, _ Completed, _ ledger.Event) error {
		s.Status = StatusCompleted
		return nil
	})
	ledger.Handle(m, func(s *Summary, _ Cancelled, _ ledger.Event) error {
		s.Status = StatusCancelled
		return nil
	})
	ledger.Handle(m, func(s *Summary, _ Deleted, _ ledger.Event) error {
		s.Deleted = true
		return nil
	})
	return m, nil
}
