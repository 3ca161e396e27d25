package car

import (
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// ViewTable is the read model table for cars.
const ViewTable = "car_view"

// View is the denormalized car row.
type View struct {
	ID        string     `json:"id"`
	Plate     string     `json:"plate"`
	Label     string     `json:"label"`
	Year      int        `json:"year"`
	Mileage   int64      `json:"mileage"`
	OwnerID   string     `json:"ownerId,omitempty"`
	Deleted   bool       `json:"deleted"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// NewView creates the car list read model.
func NewView(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ledger.ReadModel[View], error) {
	m, err := ledger.NewReadModel[View](adapter, ViewTable, opts...)
	if err != nil {
		return nil, err
	}

	ledger.Handle(m, func(v *View, p Registered, e ledger.Event) error {
		*v = View{
			ID:        e.AggregateID,
			Plate:     p.Plate,
			Label:     label(p),
			Year:      p.Year,
			Mileage:   p.Mileage,
			UpdatedAt: e.RecordedAt,
		}
		return nil
	})
	ledger.Handle(m, func(v *View, p MileageRecorded, e ledger.Event) error {
		v.Mileage = p.Mileage
		v.UpdatedAt = e.RecordedAt
		return nil
	})
	ledger.Handle(m, func(v *View, p OwnerAssigned, e ledger.Event) error {
		v.OwnerID = p.CustomerID
		v.UpdatedAt = e.RecordedAt
		return nil
	})
	ledger.Handle(m, func(v *View, p Deleted, e ledger.Event) error {
		at := p.At
		v.Deleted = true
		v.DeletedAt = &at
		v.UpdatedAt = e.RecordedAt
		return nil
	})

	return m, nil
}

func label(p Registered) string {
	switch {
	case p.Make == "":
		return p.Model
	case p.Model == "":
		return p.Make
	}
	return p.Make + " " + p.Model
}
