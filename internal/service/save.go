package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/domain/stamp"
	"github.com/Strob0t/ReleaseForge/internal/logger"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
	"github.com/Strob0t/ReleaseForge/internal/port/planstore"
	"github.com/Strob0t/ReleaseForge/internal/port/statusstore"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
)

// SaveOptions tunes the save path.
type SaveOptions struct {
	Policy resilience.Policy
	// MaxParallel bounds concurrent dependent writes. Zero or less means no bound.
	MaxParallel int
	// PreflightCheck re-reads the plan before the first write and fails fast
	// with a conflict when the baseline is already stale.
	PreflightCheck bool
}

// DefaultSaveOptions returns the production settings.
func DefaultSaveOptions() SaveOptions {
	return SaveOptions{Policy: resilience.DefaultPolicy, MaxParallel: 8}
}

// SaveRecorder receives save telemetry. The otel adapter implements it.
type SaveRecorder interface {
	RecordAttempt(ctx context.Context, section string)
	RecordRetry(ctx context.Context, section, class string)
	RecordSave(ctx context.Context, section, outcome string, d time.Duration)
	RecordDependentFailure(ctx context.Context, kind string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAttempt(context.Context, string)                      {}
func (noopRecorder) RecordRetry(context.Context, string, string)                {}
func (noopRecorder) RecordSave(context.Context, string, string, time.Duration) {}
func (noopRecorder) RecordDependentFailure(context.Context, string)             {}

// SaveResult reports a finished save. Plan is the server-confirmed plan.
// Dependents lists the outcome of every post-commit write; failures there do
// not undo the plan write.
type SaveResult struct {
	NoOp       bool               `json:"no_op"`
	Plan       *plan.Plan         `json:"plan"`
	Sections   []plan.Section     `json:"sections"`
	Attempts   int                `json:"attempts"`
	Dependents []DependentOutcome `json:"dependents,omitempty"`
}

// Failed returns the dependent writes that did not succeed.
func (r *SaveResult) Failed() []DependentOutcome {
	var out []DependentOutcome
	for _, d := range r.Dependents {
		if !d.OK {
			out = append(out, d)
		}
	}
	return out
}

// SaveService commits plan sections and reconciles the features and product
// components they reference.
type SaveService struct {
	plans      planstore.Store
	features   statusstore.FeatureStore
	components statusstore.ComponentStore
	notifier   invalidation.Notifier
	metrics    SaveRecorder
	opts       SaveOptions
}

// NewSaveService creates a SaveService. notifier may be nil.
func NewSaveService(plans planstore.Store, features statusstore.FeatureStore, components statusstore.ComponentStore, notifier invalidation.Notifier, opts SaveOptions) *SaveService {
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = resilience.DefaultPolicy
	}
	return &SaveService{
		plans:      plans,
		features:   features,
		components: components,
		notifier:   notifier,
		metrics:    noopRecorder{},
		opts:       opts,
	}
}

// SetMetrics installs a telemetry recorder.
func (s *SaveService) SetMetrics(m SaveRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// SaveSection commits one section of local against baseline. Every returned
// error is a *resilience.Failure. On success the baseline holds the
// server-confirmed plan; local is never modified.
func (s *SaveService) SaveSection(ctx context.Context, baseline *Baseline, section plan.Section, local *plan.Plan) (*SaveResult, error) {
	start := time.Now()
	res, err := s.saveSection(ctx, baseline, section, local)
	s.metrics.RecordSave(ctx, string(section), outcomeOf(res, err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SaveAll commits every section in order and stops at the first failure. All
// changed sections are validated before the first write. The result covers
// the sections saved before a failure, so it is non-nil even when err is not.
func (s *SaveService) SaveAll(ctx context.Context, baseline *Baseline, local *plan.Plan) (*SaveResult, error) {
	if err := checkInputs(baseline, local); err != nil {
		return nil, resilience.Classify(err)
	}
	for _, sec := range plan.Sections {
		if _, changed := DiffSection(sec, baseline.snapshot(), local); !changed {
			continue
		}
		if err := s.validate(sec, baseline.snapshot(), local); err != nil {
			return nil, resilience.Classify(err)
		}
	}

	total := &SaveResult{NoOp: true, Plan: baseline.Plan()}
	for _, sec := range plan.Sections {
		res, err := s.SaveSection(ctx, baseline, sec, local)
		if err != nil {
			return total, err
		}
		total.Plan = res.Plan
		total.Attempts += res.Attempts
		total.Dependents = append(total.Dependents, res.Dependents...)
		if !res.NoOp {
			total.NoOp = false
			total.Sections = append(total.Sections, sec)
		}
	}
	return total, nil
}

func (s *SaveService) saveSection(ctx context.Context, b *Baseline, section plan.Section, local *plan.Plan) (*SaveResult, error) {
	if err := checkInputs(b, local); err != nil {
		return nil, resilience.Classify(err)
	}
	ctx = logger.WithPlanID(ctx, b.ID())
	log := slog.With("section", string(section))

	if err := s.validate(section, b.snapshot(), local); err != nil {
		log.InfoContext(ctx, "save rejected by validation", "error", err)
		return nil, resilience.Classify(err)
	}

	patch, changed := DiffSection(section, b.snapshot(), local)
	if !changed {
		return &SaveResult{NoOp: true, Plan: b.Plan()}, nil
	}

	var (
		attempts  int
		writeBase = b.snapshot()
		settled   *plan.Plan
	)

	op := func(ctx context.Context, attempt int) (*plan.Plan, error) {
		if settled != nil {
			return settled, nil
		}
		attempts++
		s.metrics.RecordAttempt(ctx, string(section))
		if attempt == 0 && s.opts.PreflightCheck {
			if err := s.preflight(ctx, b); err != nil {
				return nil, err
			}
		}
		p, err := s.plans.UpdatePlan(ctx, b.ID(), patch, b.Stamp())
		if err != nil {
			return nil, fmt.Errorf("update plan %s section %s: %w", b.ID(), section, err)
		}
		return p, nil
	}

	refresh := func(ctx context.Context, attempt int, last *resilience.Failure) error {
		s.metrics.RecordRetry(ctx, string(section), string(last.Class))
		log.WarnContext(ctx, "plan write failed, retrying", "attempt", attempt, "class", last.Class, "error", last.Err)

		fresh, err := s.plans.GetPlan(ctx, b.ID())
		if err != nil {
			return fmt.Errorf("refresh baseline of plan %s: %w", b.ID(), err)
		}
		b.replace(fresh)
		writeBase = b.snapshot()

		patch, changed = DiffSection(section, writeBase, local)
		if !changed {
			// Someone else already wrote exactly these values.
			settled = b.Plan()
		}
		return nil
	}

	saved, err := resilience.Retry(ctx, s.opts.Policy, op, refresh)
	if err != nil {
		f := resilience.Classify(err)
		log.ErrorContext(ctx, "plan write failed", "attempts", attempts, "class", f.Class, "error", f.Err)
		return nil, f
	}
	b.replace(saved)

	res := &SaveResult{Plan: b.Plan(), Sections: []plan.Section{section}, Attempts: attempts}
	c := commit{section: section, before: writeBase, after: saved}
	for _, step := range s.postCommitSteps(section) {
		res.Dependents = append(res.Dependents, step(ctx, c)...)
	}
	for _, d := range res.Failed() {
		s.metrics.RecordDependentFailure(ctx, string(d.Kind))
		log.WarnContext(ctx, "dependent write failed", "kind", d.Kind, "id", d.ID, "action", d.Action, "error", d.Failure.Err)
	}

	s.invalidate(ctx, c, res)
	log.InfoContext(ctx, "section saved", "attempts", attempts, "dependents", len(res.Dependents), "dependents_failed", len(res.Failed()))
	return res, nil
}

// validate runs the structural checks of a section and, for components, the
// version check of every assignment that changed against the baseline.
func (s *SaveService) validate(section plan.Section, base, local *plan.Plan) error {
	if err := plan.ValidateSection(section, local); err != nil {
		return err
	}
	if section != plan.SectionComponents {
		return nil
	}
	for _, a := range local.Components {
		if prev, ok := base.Assignment(a.ComponentID); ok && prev == a {
			continue
		}
		if err := product.ValidateComponentUpgrade(a.ComponentID, a.CurrentVersion, a.FinalVersion); err != nil {
			return err
		}
	}
	return nil
}

func (s *SaveService) preflight(ctx context.Context, b *Baseline) error {
	current, err := s.plans.GetPlan(ctx, b.ID())
	if err != nil {
		return fmt.Errorf("preflight read of plan %s: %w", b.ID(), err)
	}
	return stamp.Check(b.Stamp(), current.UpdatedAt)
}

func (s *SaveService) invalidate(ctx context.Context, c commit, res *SaveResult) {
	if s.notifier == nil {
		return
	}
	sig := invalidation.Signal{
		Kinds:  []invalidation.Kind{invalidation.KindPlan, invalidation.KindFeature, invalidation.KindComponent},
		PlanID: c.after.ID,
	}
	for _, d := range res.Dependents {
		switch d.Kind {
		case DependentFeature:
			sig.FeatureIDs = append(sig.FeatureIDs, d.ID)
		case DependentProduct:
			sig.ProductID = d.ID
		}
	}
	if err := s.notifier.Invalidate(ctx, sig); err != nil {
		slog.WarnContext(ctx, "invalidation failed", "error", err)
	}
}

func checkInputs(b *Baseline, local *plan.Plan) error {
	switch {
	case b == nil || b.snapshot() == nil:
		return fmt.Errorf("%w: no baseline to save against", domain.ErrValidation)
	case local == nil:
		return fmt.Errorf("%w: nothing to save", domain.ErrValidation)
	case local.ID != "" && local.ID != b.ID():
		return fmt.Errorf("%w: edits for plan %s cannot be saved onto plan %s", domain.ErrValidation, local.ID, b.ID())
	}
	return nil
}

func outcomeOf(res *SaveResult, err error) string {
	var f *resilience.Failure
	switch {
	case errors.As(err, &f):
		return string(f.Class)
	case err != nil:
		return string(resilience.ClassUnknown)
	case res.NoOp:
		return "noop"
	case len(res.Failed()) > 0:
		return "partial"
	}
	return "ok"
}
