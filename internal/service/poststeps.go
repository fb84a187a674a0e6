package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
)

// DependentKind names the entity a post-commit write touched.
type DependentKind string

const (
	DependentFeature DependentKind = "feature"
	DependentProduct DependentKind = "product"
)

// DependentOutcome is the result of one post-commit write. Failure is set
// when OK is false; NotFound marks an entity deleted since it was selected.
type DependentOutcome struct {
	Kind     DependentKind       `json:"kind"`
	ID       string              `json:"id"`
	Action   string              `json:"action"`
	OK       bool                `json:"ok"`
	NotFound bool                `json:"not_found,omitempty"`
	Message  string              `json:"message,omitempty"`
	Failure  *resilience.Failure `json:"-"`
}

// commit describes a successful plan write: the plan it was applied to and
// the plan the store returned.
type commit struct {
	section plan.Section
	before  *plan.Plan
	after   *plan.Plan
}

// postCommitStep runs after the plan write succeeded. Steps never fail as a
// whole; each dependent write reports its own outcome.
type postCommitStep func(ctx context.Context, c commit) []DependentOutcome

func (s *SaveService) postCommitSteps(section plan.Section) []postCommitStep {
	switch section {
	case plan.SectionFeatures:
		return []postCommitStep{s.syncFeatureStatus}
	case plan.SectionComponents:
		return []postCommitStep{s.syncComponentVersions}
	}
	return nil
}

// syncFeatureStatus assigns features that joined the plan and completes the
// ones that left it. Writes run concurrently, one attempt each.
func (s *SaveService) syncFeatureStatus(ctx context.Context, c commit) []DependentOutcome {
	added, removed := setDelta(c.before.FeatureIDs, c.after.FeatureIDs)

	type job struct {
		id     string
		status feature.Status
	}
	jobs := make([]job, 0, len(added)+len(removed))
	for _, id := range added {
		jobs = append(jobs, job{id: id, status: feature.StatusAssigned})
	}
	for _, id := range removed {
		jobs = append(jobs, job{id: id, status: feature.StatusCompleted})
	}
	if len(jobs) == 0 {
		return nil
	}

	outcomes := make([]DependentOutcome, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(s.parallelism())
	for i, j := range jobs {
		g.Go(func() error {
			_, err := s.features.UpdateFeatureStatus(ctx, j.id, j.status, time.Time{})
			if err != nil {
				err = fmt.Errorf("set feature %s %s: %w", j.id, j.status, err)
			}
			outcomes[i] = outcome(DependentFeature, j.id, string(j.status), err)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// syncComponentVersions moves every changed assignment's component to its
// final version with a single partial update of the plan's product. The store
// only moves versions forward, so a component another plan already shipped
// past FinalVersion comes back as a validation failure.
func (s *SaveService) syncComponentVersions(ctx context.Context, c commit) []DependentOutcome {
	var changed []product.Component
	for _, a := range c.after.Components {
		if prev, ok := c.before.Assignment(a.ComponentID); ok && prev == a {
			continue
		}
		changed = append(changed, product.Component{
			ID:              a.ComponentID,
			CurrentVersion:  a.FinalVersion,
			PreviousVersion: a.CurrentVersion,
		})
	}
	if len(changed) == 0 || c.after.ProductID == "" {
		return nil
	}

	u := product.ComponentsUpdate{Components: changed, PartialUpdate: true}
	_, err := s.components.UpdateComponents(ctx, c.after.ProductID, u, time.Time{})
	if err != nil {
		err = fmt.Errorf("update components of product %s: %w", c.after.ProductID, err)
	}
	return []DependentOutcome{outcome(DependentProduct, c.after.ProductID, "components", err)}
}

func (s *SaveService) parallelism() int {
	if s.opts.MaxParallel <= 0 {
		return -1
	}
	return s.opts.MaxParallel
}

func outcome(kind DependentKind, id, action string, err error) DependentOutcome {
	o := DependentOutcome{Kind: kind, ID: id, Action: action, OK: err == nil}
	if err != nil {
		o.Failure = resilience.Classify(err)
		o.Message = o.Failure.Message
		if errors.Is(err, domain.ErrNotFound) {
			o.NotFound = true
			o.Message = fmt.Sprintf("%s %s no longer exists.", kind, id)
		}
	}
	return o
}

// setDelta returns the ids in after but not before, and in before but not
// after, each in the order they appear.
func setDelta(before, after []string) (added, removed []string) {
	for _, id := range after {
		if !slices.Contains(before, id) {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if !slices.Contains(after, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}
