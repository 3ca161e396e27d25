package order

import "time"

type Placed struct {
	CustomerID string    `json:"customerId"`
	CarID      string    `json:"carId"`
	PlacedAt   time.Time `json:"placedAt"`
}

func (Placed) EventName() string { return "OrderPlaced" }

// LineAdded adds Quantity units of SKU at UnitPrice cents each.
type LineAdded struct {
	SKU         string `json:"sku"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
}

func (LineAdded) EventName() string { return "OrderLineAdded" }

type Approved struct {
	Total      int64     `json:"total"`
	ApprovedAt time.Time `json:"approvedAt"`
}

func (Approved) EventName() string { return "OrderApproved" }

type Completed struct {
	CompletedAt time.Time `json:"completedAt"`
}

func (Completed) EventName() string { return "OrderCompleted" }

type Cancelled struct {
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (Cancelled) EventName() string { return "OrderCancelled" }

type Deleted struct {
	At time.Time `json:"at"`
}

func (Deleted) EventName() string { return "OrderDeleted" }
