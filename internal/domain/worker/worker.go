// Package worker models mechanics and their availability.
package worker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-ledger"
)

const AggregateType = "worker"

type Hired struct {
	Name   string    `json:"name"`
	Skills []string  `json:"skills,omitempty"`
	At     time.Time `json:"at"`
}

func (Hired) EventName() string { return "WorkerHired" }

// SkillsUpdated replaces the whole skill set.
type SkillsUpdated struct {
	Skills []string `json:"skills"`
}

func (SkillsUpdated) EventName() string { return "WorkerSkillsUpdated" }

type AvailabilitySet struct {
	Available bool `json:"available"`
}

func (AvailabilitySet) EventName() string { return "WorkerAvailabilitySet" }

type Dismissed struct {
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func (Dismissed) EventName() string { return "WorkerDismissed" }

type Worker struct {
	ledger.AggregateBase

	Name        string     `json:"name"`
	Skills      []string   `json:"skills,omitempty"`
	Available   bool       `json:"available"`
	HiredAt     time.Time  `json:"hiredAt"`
	DismissedAt *time.Time `json:"dismissedAt,omitempty"`
}

func New(id string) *Worker {
	return &Worker{AggregateBase: ledger.NewAggregateBase(id)}
}

func (w *Worker) AggregateType() string { return AggregateType }

// HasSkill reports whether the worker lists skill, ignoring case.
func (w *Worker) HasSkill(skill string) bool {
	skill = strings.ToLower(skill)
	for _, s := range w.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

func (w *Worker) ApplyEvent(event ledger.Event) error {
	switch e := event.Payload.(type) {
	case Hired:
		w.Name = e.Name
		w.Skills = e.Skills
		w.HiredAt = e.At
		w.Available = true
	case SkillsUpdated:
		w.Skills = e.Skills
	case AvailabilitySet:
		w.Available = e.Available
	case Dismissed:
		at := e.At
		w.DismissedAt = &at
		w.Available = false
	default:
		return fmt.Errorf("worker: unexpected event %q", event.Name)
	}
	return nil
}

type Hire struct {
	ID     string
	Name   string
	Skills []string
	At     time.Time
}

func (w *Worker) Hire(cmd Hire) ([]ledger.Event, error) {
	if w.Exists() {
		return nil, rule("worker already hired")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, rule("name is required")
	}
	if cmd.ID != "" {
		w.SetID(cmd.ID)
	} else if w.AggregateID() == "" {
		w.SetID(ledger.NewID())
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return ledger.Raise(w, Hired{Name: name, Skills: normalize(cmd.Skills), At: at})
}

type UpdateSkills struct {
	Skills []string
}

func (w *Worker) UpdateSkills(cmd UpdateSkills) ([]ledger.Event, error) {
	if err := w.employed(); err != nil {
		return nil, err
	}
	skills := normalize(cmd.Skills)
	if equal(skills, w.Skills) {
		return nil, nil
	}
	return ledger.Raise(w, SkillsUpdated{Skills: skills})
}

type SetAvailability struct {
	Available bool
}

func (w *Worker) SetAvailability(cmd SetAvailability) ([]ledger.Event, error) {
	if err := w.employed(); err != nil {
		return nil, err
	}
	if cmd.Available == w.Available {
		return nil, nil
	}
	return ledger.Raise(w, AvailabilitySet{Available: cmd.Available})
}

type Dismiss struct {
	Reason string
	At     time.Time
}

func (w *Worker) Dismiss(cmd Dismiss) ([]ledger.Event, error) {
	if err := w.employed(); err != nil {
		return nil, err
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return ledger.Raise(w, Dismissed{Reason: cmd.Reason, At: at})
}

func (w *Worker) employed() error {
	if err := ledger.RequireExists(w); err != nil {
		return err
	}
	if w.DismissedAt != nil {
		return rule("worker is dismissed")
	}
	return nil
}

func rule(r string) error {
	return ledger.NewDomainRuleError(AggregateType, r)
}

// normalize lowercases, trims, dedupes and sorts skills.
func normalize(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func RegisterEvents(r *ledger.EventRegistry) error {
	return errors.Join(
		ledger.RegisterPayload[Hired](r),
		ledger.RegisterPayload[SkillsUpdated](r),
		ledger.RegisterPayload[AvailabilitySet](r),
		ledger.RegisterPayload[Dismissed](r),
	)
}
