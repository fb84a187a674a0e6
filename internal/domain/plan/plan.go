// Package plan defines the release Plan aggregate and its editable sections.
package plan

import (
	"slices"
	"time"
)

// Status represents the lifecycle state of a release plan.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusPaused     Status = "paused"
)

// IsActive reports whether a plan in this status still claims its features.
func (s Status) IsActive() bool {
	return s != StatusDone
}

// Phase is one entry of a plan's ordered timeline.
type Phase struct {
	Name  string    `json:"name" validate:"required,max=100"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Color string    `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// ComponentAssignment records a component the plan will ship, together with
// the version known when it was assigned and the version the release targets.
type ComponentAssignment struct {
	ComponentID    string `json:"component_id" validate:"required"`
	CurrentVersion string `json:"current_version"`
	FinalVersion   string `json:"final_version" validate:"required"`
}

// Milestone marks a dated checkpoint within a plan.
type Milestone struct {
	Name        string    `json:"name" validate:"required,max=100"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
}

// Reference is an external link or annotation attached to a plan.
type Reference struct {
	Label string `json:"label" validate:"required,max=200"`
	URL   string `json:"url,omitempty" validate:"omitempty,url"`
	Kind  string `json:"kind,omitempty"`
}

// Plan is the release plan aggregate. FeatureIDs, Components and CalendarIDs
// reference entities owned elsewhere; the plan only owns membership.
// UpdatedAt is the version stamp used for optimistic locking.
type Plan struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Owner       string                `json:"owner"`
	Status      Status                `json:"status"`
	StartDate   time.Time             `json:"start_date"`
	EndDate     time.Time             `json:"end_date"`
	Description string                `json:"description"`
	ProductID   string                `json:"product_id"`
	Phases      []Phase               `json:"phases"`
	FeatureIDs  []string              `json:"feature_ids"`
	Components  []ComponentAssignment `json:"components"`
	CalendarIDs []string              `json:"calendar_ids"`
	Milestones  []Milestone           `json:"milestones"`
	References  []Reference           `json:"references"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Clone returns a deep copy of p so callers can edit it without touching the
// original slices.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Phases = slices.Clone(p.Phases)
	c.FeatureIDs = slices.Clone(p.FeatureIDs)
	c.Components = slices.Clone(p.Components)
	c.CalendarIDs = slices.Clone(p.CalendarIDs)
	c.Milestones = slices.Clone(p.Milestones)
	c.References = slices.Clone(p.References)
	return &c
}

// Assignment returns the component assignment for componentID, if any.
func (p *Plan) Assignment(componentID string) (ComponentAssignment, bool) {
	for _, a := range p.Components {
		if a.ComponentID == componentID {
			return a, true
		}
	}
	return ComponentAssignment{}, false
}

// CreateRequest holds the fields needed to create a new plan.
type CreateRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Owner       string    `json:"owner" validate:"max=100"`
	Status      Status    `json:"status" validate:"required,oneof=planned in_progress done paused"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Description string    `json:"description"`
	ProductID   string    `json:"product_id" validate:"required"`
}
