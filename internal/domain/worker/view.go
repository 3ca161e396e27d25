package worker

import (
	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

const ViewTable = "worker_roster"

type RosterEntry struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Skills    []string `json:"skills,omitempty"`
	Available bool     `json:"available"`
	Employed  bool     `json:"employed"`
}

// NewView creates the worker roster read model.
func NewView(adapter adapters.ReadModelAdapter, opts ...ledger.ReadModelOption) (*ledger.ReadModel[RosterEntry], error) {
	m, err := ledger.NewReadModel[RosterEntry](adapter, ViewTable, opts...)
	if err != nil {
		return nil, err
	}
	ledger.Handle(m, func(r *RosterEntry, p Hired, e ledger.Event) error {
		*r = RosterEntry{ID: e.AggregateID, Name: p.Name, Skills: p.Skills, Available: true, Employed: true}
		return nil
	})
	ledger.Handle(m, func(r *RosterEntry, p SkillsUpdated, _ ledger.Event) error {
		r.Skills = p.Skills
		return nil
	})
	ledger.Handle(m, func(r *RosterEntry, p AvailabilitySet, _ ledger.Event) error {
		r.Available = p.Available
		return nil
	})
	ledger.Handle(m, func(r *RosterEntry, _ Dismissed, _ ledger.Event) error {
		r.Available = false
		r.Employed = false
		return nil
	})
	return m, nil
}
