package service

import (
	"slices"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
)

// DiffSection returns the minimal patch that turns baseline into local for
// one section, and whether anything changed. The patch never carries fields
// of another section.
func DiffSection(section plan.Section, baseline, local *plan.Plan) (plan.Patch, bool) {
	var p plan.Patch
	if baseline == local {
		return p, false
	}

	switch section {
	case plan.SectionGeneral:
		diffGeneral(&p, baseline, local)
	case plan.SectionFeatures:
		if !sameSet(baseline.FeatureIDs, local.FeatureIDs) {
			p.FeatureIDs = listPtr(local.FeatureIDs)
		}
	case plan.SectionComponents:
		if !sameList(baseline.Components, local.Components, nil) {
			p.Components = listPtr(local.Components)
		}
	case plan.SectionCalendars:
		if !sameSet(baseline.CalendarIDs, local.CalendarIDs) {
			p.CalendarIDs = listPtr(local.CalendarIDs)
		}
	case plan.SectionReferences:
		if !sameList(baseline.Milestones, local.Milestones, utcMilestones) {
			p.Milestones = listPtr(local.Milestones)
		}
		if !sameList(baseline.References, local.References, nil) {
			p.References = listPtr(local.References)
		}
	}
	return p, !p.IsEmpty()
}

func diffGeneral(p *plan.Patch, b, l *plan.Plan) {
	if b.Name != l.Name {
		p.Name = ptr(l.Name)
	}
	if b.Owner != l.Owner {
		p.Owner = ptr(l.Owner)
	}
	if b.Status != l.Status {
		p.Status = ptr(l.Status)
	}
	if !b.StartDate.Equal(l.StartDate) {
		p.StartDate = ptr(l.StartDate)
	}
	if !b.EndDate.Equal(l.EndDate) {
		p.EndDate = ptr(l.EndDate)
	}
	if b.Description != l.Description {
		p.Description = ptr(l.Description)
	}
	if b.ProductID != l.ProductID {
		p.ProductID = ptr(l.ProductID)
	}
	if !sameList(b.Phases, l.Phases, utcPhases) {
		p.Phases = listPtr(l.Phases)
	}
}

// sameSet compares id sets ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	if slices.Equal(a, b) {
		return true
	}
	return sameHash(a, b, true)
}

// sameList compares ordered lists. Slices sharing a backing array are equal
// without hashing. norm, when set, canonicalizes both sides before hashing.
func sameList[T any](a, b []T, norm func([]T) []T) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 || &a[0] == &b[0] {
		return true
	}
	if norm != nil {
		a, b = norm(a), norm(b)
	}
	return sameHash(a, b, false)
}

// sameHash reports structural equality. A value that cannot be hashed is
// treated as changed, which costs at most a redundant write.
func sameHash(a, b any, asSets bool) bool {
	opts := &hashstructure.HashOptions{SlicesAsSets: asSets}
	ha, err := hashstructure.Hash(a, hashstructure.FormatV2, opts)
	if err != nil {
		return false
	}
	hb, err := hashstructure.Hash(b, hashstructure.FormatV2, opts)
	if err != nil {
		return false
	}
	return ha == hb
}

func utcPhases(in []plan.Phase) []plan.Phase {
	out := make([]plan.Phase, len(in))
	for i, ph := range in {
		ph.Start, ph.End = utc(ph.Start), utc(ph.End)
		out[i] = ph
	}
	return out
}

func utcMilestones(in []plan.Milestone) []plan.Milestone {
	out := make([]plan.Milestone, len(in))
	for i, m := range in {
		m.Date = utc(m.Date)
		out[i] = m
	}
	return out
}

// utc drops the location and monotonic reading so equal instants hash alike.
func utc(t time.Time) time.Time {
	return t.UTC().Round(0)
}

func ptr[T any](v T) *T { return &v }

// listPtr copies s into a non-nil slice so an emptied list is sent as [] and
// not as null.
func listPtr[T any](s []T) *[]T {
	c := make([]T, len(s))
	copy(c, s)
	return &c
}
