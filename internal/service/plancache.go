package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/port/cache"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
	"github.com/Strob0t/ReleaseForge/internal/port/planstore"
)

// CachedPlanStore is a read-through plan cache in front of a planstore.Store.
// Writes go straight to the store; the cached copy is replaced on success and
// dropped on conflict, so a retry after a conflict always reads the store.
// It also acts as an invalidation.Notifier that evicts signalled plans.
type CachedPlanStore struct {
	next  planstore.Store
	cache cache.Cache
	ttl   time.Duration
}

var (
	_ planstore.Store       = (*CachedPlanStore)(nil)
	_ invalidation.Notifier = (*CachedPlanStore)(nil)
)

// NewCachedPlanStore wraps next with c. Entries live for ttl.
func NewCachedPlanStore(next planstore.Store, c cache.Cache, ttl time.Duration) *CachedPlanStore {
	return &CachedPlanStore{next: next, cache: c, ttl: ttl}
}

// GetPlan returns the cached plan or loads and caches it. Cache failures
// fall through to the store.
func (s *CachedPlanStore) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	key := cache.PlanKey(id)
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "plan cache get failed", "plan_id", id, "error", err)
	} else if ok {
		var p plan.Plan
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		_ = s.cache.Delete(ctx, key)
	}

	p, err := s.next.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(ctx, p)
	return p, nil
}

// UpdatePlan writes through to the store.
func (s *CachedPlanStore) UpdatePlan(ctx context.Context, id string, patch plan.Patch, expected time.Time) (*plan.Plan, error) {
	p, err := s.next.UpdatePlan(ctx, id, patch, expected)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			s.evict(ctx, id)
		}
		return nil, err
	}
	s.put(ctx, p)
	return p, nil
}

// Evict drops the cached copy of a plan.
func (s *CachedPlanStore) Evict(ctx context.Context, id string) {
	s.evict(ctx, id)
}

// Invalidate evicts the signalled plan. Signals without a plan id are ignored;
// plans are only cached by id.
func (s *CachedPlanStore) Invalidate(ctx context.Context, sig invalidation.Signal) error {
	if sig.Has(invalidation.KindPlan) && sig.PlanID != "" {
		return s.cache.Delete(ctx, cache.PlanKey(sig.PlanID))
	}
	return nil
}

func (s *CachedPlanStore) put(ctx context.Context, p *plan.Plan) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.PlanKey(p.ID), data, s.ttl); err != nil {
		slog.WarnContext(ctx, "plan cache set failed", "plan_id", p.ID, "error", err)
	}
}

func (s *CachedPlanStore) evict(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, cache.PlanKey(id)); err != nil {
		slog.WarnContext(ctx, "plan cache delete failed", "plan_id", id, "error", err)
	}
}
