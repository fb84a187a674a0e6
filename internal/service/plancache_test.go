package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/port/cache"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
)

func TestCachedPlanStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	store := &mockPlanStore{plan: testPlan()}
	c := newMapCache()
	s := NewCachedPlanStore(store, c, 0)

	for range 3 {
		p, err := s.GetPlan(ctx, "plan-1")
		if err != nil {
			t.Fatalf("GetPlan: %v", err)
		}
		if p.Name != "Q2 release" || !p.UpdatedAt.Equal(t0) {
			t.Fatalf("unexpected plan %+v", p)
		}
	}
	if store.getCalls != 1 {
		t.Errorf("store reads = %d, want 1", store.getCalls)
	}
}

func TestCachedPlanStore_CacheErrorFallsThrough(t *testing.T) {
	store := &mockPlanStore{plan: testPlan()}
	c := newMapCache()
	c.getErr = errors.New("cache down")
	s := NewCachedPlanStore(store, c, 0)

	if _, err := s.GetPlan(context.Background(), "plan-1"); err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if store.getCalls != 1 {
		t.Errorf("store reads = %d, want 1", store.getCalls)
	}
}

func TestCachedPlanStore_UpdateReplacesEntry(t *testing.T) {
	ctx := context.Background()
	store := &mockPlanStore{plan: testPlan()}
	s := NewCachedPlanStore(store, newMapCache(), 0)

	if _, err := s.GetPlan(ctx, "plan-1"); err != nil {
		t.Fatal(err)
	}
	name := "Renamed"
	if _, err := s.UpdatePlan(ctx, "plan-1", plan.Patch{Name: &name}, t0); err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	p, err := s.GetPlan(ctx, "plan-1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Renamed" {
		t.Errorf("cached name = %q, want Renamed", p.Name)
	}
	if store.getCalls != 1 {
		t.Errorf("store reads = %d, want 1", store.getCalls)
	}
}

func TestCachedPlanStore_ConflictEvicts(t *testing.T) {
	ctx := context.Background()
	store := &mockPlanStore{plan: testPlan()}
	c := newMapCache()
	s := NewCachedPlanStore(store, c, 0)

	if _, err := s.GetPlan(ctx, "plan-1"); err != nil {
		t.Fatal(err)
	}
	store.updateErrs = []error{domain.ErrConflict}
	name := "x"
	if _, err := s.UpdatePlan(ctx, "plan-1", plan.Patch{Name: &name}, t0); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if c.has(cache.PlanKey("plan-1")) {
		t.Fatal("conflict should evict the cached plan")
	}
	if _, err := s.GetPlan(ctx, "plan-1"); err != nil {
		t.Fatal(err)
	}
	if store.getCalls != 2 {
		t.Errorf("store reads = %d, want 2", store.getCalls)
	}
}

func TestCachedPlanStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := newMapCache()
	s := NewCachedPlanStore(&mockPlanStore{plan: testPlan()}, c, 0)
	if _, err := s.GetPlan(ctx, "plan-1"); err != nil {
		t.Fatal(err)
	}

	// Feature-only signals leave plans alone.
	_ = s.Invalidate(ctx, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindFeature}, PlanID: "plan-1"})
	if !c.has(cache.PlanKey("plan-1")) {
		t.Fatal("feature signal evicted the plan")
	}

	_ = s.Invalidate(ctx, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindPlan}, PlanID: "plan-1"})
	if c.has(cache.PlanKey("plan-1")) {
		t.Fatal("plan signal did not evict the plan")
	}
}
