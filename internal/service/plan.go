package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/port/database"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
	"github.com/Strob0t/ReleaseForge/internal/port/messagequeue"
	"github.com/Strob0t/ReleaseForge/internal/port/planstore"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
)

// SaveRequest is an orchestrated save submitted by an editor: the plan as it
// was loaded and the plan as it was edited.
type SaveRequest struct {
	Baseline *plan.Plan `json:"baseline"`
	Local    *plan.Plan `json:"local"`
}

// PlanService manages plans. Orchestrated saves of one plan are serialized.
type PlanService struct {
	store    database.Store
	plans    planstore.Store
	saver    *SaveService
	notifier invalidation.Notifier
	queue    messagequeue.Queue
	locks    *keyLock
}

// NewPlanService creates a PlanService. plans is the (possibly cached) view
// used for reads and conditional writes; store serves everything else.
// notifier and queue may be nil.
func NewPlanService(store database.Store, plans planstore.Store, saver *SaveService, notifier invalidation.Notifier, queue messagequeue.Queue) *PlanService {
	if plans == nil {
		plans = store
	}
	return &PlanService{
		store:    store,
		plans:    plans,
		saver:    saver,
		notifier: notifier,
		queue:    queue,
		locks:    newKeyLock(),
	}
}

// List returns all plans.
func (s *PlanService) List(ctx context.Context) ([]plan.Plan, error) {
	return s.store.ListPlans(ctx)
}

// Get returns one plan.
func (s *PlanService) Get(ctx context.Context, id string) (*plan.Plan, error) {
	return s.plans.GetPlan(ctx, id)
}

// Create validates and stores a new plan.
func (s *PlanService) Create(ctx context.Context, req plan.CreateRequest) (*plan.Plan, error) {
	if err := plan.ValidateCreate(&req); err != nil {
		return nil, err
	}
	p, err := s.store.CreatePlan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	notify(ctx, s.notifier, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindPlan}, PlanID: p.ID})
	return p, nil
}

// Patch is a raw conditional write with no dependent reconciliation.
func (s *PlanService) Patch(ctx context.Context, id string, patch plan.Patch, expected time.Time) (*plan.Plan, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: patch changes nothing", domain.ErrValidation)
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.plans.UpdatePlan(ctx, id, patch, expected)
	if err != nil {
		return nil, err
	}
	notify(ctx, s.notifier, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindPlan}, PlanID: id})
	return p, nil
}

// Delete removes a plan. Features and components it referenced are untouched.
func (s *PlanService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePlan(ctx, id); err != nil {
		return err
	}
	notify(ctx, s.notifier, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindPlan}, PlanID: id})
	return nil
}

// SaveSection runs the orchestrated save of one section of plan id.
func (s *PlanService) SaveSection(ctx context.Context, id string, section plan.Section, req SaveRequest) (*SaveResult, error) {
	b, err := baselineFor(id, req)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	res, err := s.saver.SaveSection(ctx, b, section, req.Local)
	if err != nil {
		return nil, err
	}
	s.publishCompleted(ctx, section, res)
	return res, nil
}

// SaveAll runs the orchestrated save of every changed section of plan id.
func (s *PlanService) SaveAll(ctx context.Context, id string, req SaveRequest) (*SaveResult, error) {
	b, err := baselineFor(id, req)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	res, err := s.saver.SaveAll(ctx, b, req.Local)
	if res != nil && len(res.Sections) > 0 {
		s.publishCompleted(ctx, sectionAll, res)
	}
	return res, err
}

// sectionAll labels events of a full-plan save.
const sectionAll plan.Section = "all"

func baselineFor(id string, req SaveRequest) (*Baseline, error) {
	if req.Baseline == nil || req.Local == nil {
		return nil, resilience.Classify(fmt.Errorf("%w: baseline and local plan are required", domain.ErrValidation))
	}
	if req.Baseline.ID != id {
		return nil, resilience.Classify(fmt.Errorf("%w: baseline is plan %q, not %q", domain.ErrValidation, req.Baseline.ID, id))
	}
	return NewBaseline(req.Baseline), nil
}

func (s *PlanService) publishCompleted(ctx context.Context, section plan.Section, res *SaveResult) {
	if s.queue == nil || res.Plan == nil {
		return
	}
	data, err := json.Marshal(messagequeue.SaveCompletedPayload{
		PlanID:           res.Plan.ID,
		Section:          string(section),
		Attempts:         res.Attempts,
		NoOp:             res.NoOp,
		DependentsFailed: len(res.Failed()),
		UpdatedAt:        res.Plan.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectSaveCompleted, data); err != nil {
		slog.WarnContext(ctx, "publish save completed failed", "error", err)
	}
}
