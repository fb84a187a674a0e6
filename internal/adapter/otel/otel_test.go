package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Strob0t/ReleaseForge/internal/config"
	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTEL{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsRecordSaveTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := NewMetricsFrom(mp)
	if err != nil {
		t.Fatalf("NewMetricsFrom: %v", err)
	}

	ctx := context.Background()
	m.RecordAttempt(ctx, "features")
	m.RecordAttempt(ctx, "features")
	m.RecordRetry(ctx, "features", "conflict")
	m.RecordSave(ctx, "features", "ok", 120*time.Millisecond)
	m.RecordDependentFailure(ctx, "feature")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	tests := []struct {
		name string
		want int64
	}{
		{"releaseforge.save.attempts", 2},
		{"releaseforge.save.retries", 1},
		{"releaseforge.saves", 1},
		{"releaseforge.save.dependent_failures", 1},
	}
	for _, tt := range tests {
		if got := sumOf(t, rm, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

type stubPlans struct {
	err error
}

func (s stubPlans) GetPlan(_ context.Context, id string) (*plan.Plan, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &plan.Plan{ID: id}, nil
}

func (s stubPlans) UpdatePlan(_ context.Context, id string, _ plan.Patch, _ time.Time) (*plan.Plan, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &plan.Plan{ID: id}, nil
}

func TestTracedPlanStorePassesThrough(t *testing.T) {
	ctx := context.Background()
	p, err := TracePlanStore(stubPlans{}).GetPlan(ctx, "plan-1")
	if err != nil || p.ID != "plan-1" {
		t.Fatalf("GetPlan = %v, %v", p, err)
	}

	_, err = TracePlanStore(stubPlans{err: domain.ErrConflict}).UpdatePlan(ctx, "plan-1", plan.Patch{}, time.Time{})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestHTTPMiddlewareCallsNext(t *testing.T) {
	called := false
	h := HTTPMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if !called || rec.Code != http.StatusNoContent {
		t.Fatalf("called=%v code=%d", called, rec.Code)
	}
}
