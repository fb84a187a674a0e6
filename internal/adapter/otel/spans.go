package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/port/planstore"
)

const tracerName = "releaseforge"

// StartPlanSpan starts a span for a plan store call.
func StartPlanSpan(ctx context.Context, op, planID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "plan."+op,
		trace.WithAttributes(attribute.String("plan.id", planID)),
	)
}

// SetError marks span as failed.
func SetError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TracedPlanStore wraps a plan store with a span per call.
type TracedPlanStore struct {
	next planstore.Store
}

var _ planstore.Store = (*TracedPlanStore)(nil)

// TracePlanStore returns next with tracing.
func TracePlanStore(next planstore.Store) *TracedPlanStore {
	return &TracedPlanStore{next: next}
}

func (s *TracedPlanStore) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	ctx, span := StartPlanSpan(ctx, "get", id)
	defer span.End()

	p, err := s.next.GetPlan(ctx, id)
	if err != nil {
		SetError(span, err)
	}
	return p, err
}

func (s *TracedPlanStore) UpdatePlan(ctx context.Context, id string, patch plan.Patch, expected time.Time) (*plan.Plan, error) {
	ctx, span := StartPlanSpan(ctx, "update", id)
	defer span.End()
	span.SetAttributes(attribute.StringSlice("plan.fields", patch.Fields()))

	p, err := s.next.UpdatePlan(ctx, id, patch, expected)
	if err != nil {
		SetError(span, err)
	}
	return p, err
}
