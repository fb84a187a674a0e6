package plan

import (
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

// Section is an independently saved subset of a plan's fields.
type Section string

const (
	SectionGeneral    Section = "general"
	SectionFeatures   Section = "features"
	SectionComponents Section = "components"
	SectionCalendars  Section = "calendars"
	SectionReferences Section = "references"
)

// Sections lists every section in the order a full-plan commit saves them.
var Sections = []Section{
	SectionGeneral,
	SectionFeatures,
	SectionComponents,
	SectionCalendars,
	SectionReferences,
}

// ParseSection converts a wire value into a Section.
func ParseSection(s string) (Section, error) {
	sec := Section(s)
	if !slices.Contains(Sections, sec) {
		return "", fmt.Errorf("%w: unknown section %q", domain.ErrValidation, s)
	}
	return sec, nil
}

// Patch is a partial plan update. Only non-nil fields are written. Slice
// fields are pointers so that "set to empty" differs from "unchanged".
type Patch struct {
	Name        *string                `json:"name,omitempty"`
	Owner       *string                `json:"owner,omitempty"`
	Status      *Status                `json:"status,omitempty"`
	StartDate   *time.Time             `json:"start_date,omitempty"`
	EndDate     *time.Time             `json:"end_date,omitempty"`
	Description *string                `json:"description,omitempty"`
	ProductID   *string                `json:"product_id,omitempty"`
	Phases      *[]Phase               `json:"phases,omitempty"`
	FeatureIDs  *[]string              `json:"feature_ids,omitempty"`
	Components  *[]ComponentAssignment `json:"components,omitempty"`
	CalendarIDs *[]string              `json:"calendar_ids,omitempty"`
	Milestones  *[]Milestone           `json:"milestones,omitempty"`
	References  *[]Reference           `json:"references,omitempty"`
}

// Fields returns the wire names of the fields set in the patch.
func (p *Patch) Fields() []string {
	var f []string
	add := func(set bool, name string) {
		if set {
			f = append(f, name)
		}
	}
	add(p.Name != nil, "name")
	add(p.Owner != nil, "owner")
	add(p.Status != nil, "status")
	add(p.StartDate != nil, "start_date")
	add(p.EndDate != nil, "end_date")
	add(p.Description != nil, "description")
	add(p.ProductID != nil, "product_id")
	add(p.Phases != nil, "phases")
	add(p.FeatureIDs != nil, "feature_ids")
	add(p.Components != nil, "components")
	add(p.CalendarIDs != nil, "calendar_ids")
	add(p.Milestones != nil, "milestones")
	add(p.References != nil, "references")
	return f
}

// IsEmpty reports whether the patch changes nothing.
func (p *Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Apply writes the patch onto pl. Slices are copied.
func (p *Patch) Apply(pl *Plan) {
	if p.Name != nil {
		pl.Name = *p.Name
	}
	if p.Owner != nil {
		pl.Owner = *p.Owner
	}
	if p.Status != nil {
		pl.Status = *p.Status
	}
	if p.StartDate != nil {
		pl.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		pl.EndDate = *p.EndDate
	}
	if p.Description != nil {
		pl.Description = *p.Description
	}
	if p.ProductID != nil {
		pl.ProductID = *p.ProductID
	}
	if p.Phases != nil {
		pl.Phases = slices.Clone(*p.Phases)
	}
	if p.FeatureIDs != nil {
		pl.FeatureIDs = slices.Clone(*p.FeatureIDs)
	}
	if p.Components != nil {
		pl.Components = slices.Clone(*p.Components)
	}
	if p.CalendarIDs != nil {
		pl.CalendarIDs = slices.Clone(*p.CalendarIDs)
	}
	if p.Milestones != nil {
		pl.Milestones = slices.Clone(*p.Milestones)
	}
	if p.References != nil {
		pl.References = slices.Clone(*p.References)
	}
}

// SectionOf returns the section that owns the given wire field name.
func SectionOf(field string) (Section, bool) {
	switch field {
	case "name", "owner", "status", "start_date", "end_date", "description", "product_id", "phases":
		return SectionGeneral, true
	case "feature_ids":
		return SectionFeatures, true
	case "components":
		return SectionComponents, true
	case "calendar_ids":
		return SectionCalendars, true
	case "milestones", "references":
		return SectionReferences, true
	}
	return "", false
}

// Sections returns the sections touched by the patch, in save order.
func (p *Patch) Sections() []Section {
	var out []Section
	for _, f := range p.Fields() {
		s, _ := SectionOf(f)
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Section) int {
		return slices.Index(Sections, a) - slices.Index(Sections, b)
	})
	return out
}

// ApplyPatch returns a copy of pl with patch applied, after validating every
// section the patch touches. pl is not modified.
func ApplyPatch(pl *Plan, patch Patch) (*Plan, error) {
	next := pl.Clone()
	patch.Apply(next)
	for _, s := range patch.Sections() {
		if err := ValidateSection(s, next); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// UpdateRequest is a conditional patch of a plan as it travels over the API.
type UpdateRequest struct {
	Patch             Patch     `json:"patch"`
	ExpectedUpdatedAt time.Time `json:"expected_updated_at"`
}
