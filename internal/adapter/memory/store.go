// Package memory implements database.Store in process memory for development
// mode and tests. It applies the same optimistic locking rules as the
// Postgres store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/domain/stamp"
)

// Store holds every entity in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	plans    map[string]*plan.Plan
	features map[string]*feature.Feature
	products map[string]*product.Product
	last     time.Time
	now      func() time.Time // for testing
}

// New creates an empty store.
func New() *Store {
	return &Store{
		plans:    make(map[string]*plan.Plan),
		features: make(map[string]*feature.Feature),
		products: make(map[string]*product.Product),
		now:      time.Now,
	}
}

// tick returns a stamp strictly after every stamp handed out before.
// Must be called with s.mu held for writing.
func (s *Store) tick() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// --- Plans ---

func (s *Store) ListPlans(_ context.Context) ([]plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, *p.Clone())
	}
	slices.SortFunc(out, func(a, b plan.Plan) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) GetPlan(_ context.Context, id string) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("get plan %s: %w", id, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *Store) CreatePlan(_ context.Context, req plan.CreateRequest) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	p := &plan.Plan{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Owner:       req.Owner,
		Status:      req.Status,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Description: req.Description,
		ProductID:   req.ProductID,
		Phases:      []plan.Phase{},
		FeatureIDs:  []string{},
		Components:  []plan.ComponentAssignment{},
		CalendarIDs: []string{},
		Milestones:  []plan.Milestone{},
		References:  []plan.Reference{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.plans[p.ID] = p
	return p.Clone(), nil
}

func (s *Store) UpdatePlan(_ context.Context, id string, patch plan.Patch, expected time.Time) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("update plan %s: %w", id, domain.ErrNotFound)
	}
	if err := stamp.Check(expected, cur.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update plan %s: %w", id, err)
	}
	next, err := plan.ApplyPatch(cur, patch)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = s.tick()
	s.plans[id] = next
	return next.Clone(), nil
}

func (s *Store) DeletePlan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return fmt.Errorf("delete plan %s: %w", id, domain.ErrNotFound)
	}
	delete(s.plans, id)
	return nil
}

// --- Features ---

func (s *Store) ListFeatures(_ context.Context, productID string) ([]feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feature.Feature
	for _, f := range s.features {
		if productID == "" || f.ProductID == productID {
			out = append(out, *f)
		}
	}
	slices.SortFunc(out, func(a, b feature.Feature) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) GetFeature(_ context.Context, id string) (*feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[id]
	if !ok {
		return nil, fmt.Errorf("get feature %s: %w", id, domain.ErrNotFound)
	}
	c := *f
	return &c, nil
}

func (s *Store) CreateFeature(_ context.Context, req feature.CreateRequest) (*feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	f := &feature.Feature{
		ID:          uuid.NewString(),
		ProductID:   req.ProductID,
		Name:        req.Name,
		Description: req.Description,
		Status:      feature.StatusPlanned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.features[f.ID] = f
	c := *f
	return &c, nil
}

func (s *Store) UpdateFeatureStatus(_ context.Context, id string, status feature.Status, expected time.Time) (*feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.features[id]
	if !ok {
		return nil, fmt.Errorf("update feature %s: %w", id, domain.ErrNotFound)
	}
	if err := stamp.Check(expected, f.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update feature %s: %w", id, err)
	}
	if err := feature.ValidateTransition(f.Status, status); err != nil {
		return nil, err
	}
	f.Status = status
	f.UpdatedAt = s.tick()
	c := *f
	return &c, nil
}

// --- Products ---

func (s *Store) ListProducts(_ context.Context) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, cloneProduct(p))
	}
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("get product %s: %w", id, domain.ErrNotFound)
	}
	c := cloneProduct(p)
	return &c, nil
}

func (s *Store) CreateProduct(_ context.Context, req product.CreateRequest) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	p := &product.Product{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Owner:      req.Owner,
		Components: withIDs(req.Components),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.products[p.ID] = p
	c := cloneProduct(p)
	return &c, nil
}

func (s *Store) UpdateComponents(_ context.Context, productID string, u product.ComponentsUpdate, expected time.Time) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("update components of product %s: %w", productID, domain.ErrNotFound)
	}
	if err := stamp.Check(expected, p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update components of product %s: %w", productID, err)
	}
	merged, err := u.Merge(p.Components)
	if err != nil {
		return nil, fmt.Errorf("update components of product %s: %w", productID, err)
	}
	merged = withIDs(merged)
	if err := product.ValidateComponents(merged); err != nil {
		return nil, err
	}
	p.Components = merged
	p.UpdatedAt = s.tick()
	c := cloneProduct(p)
	return &c, nil
}

func cloneProduct(p *product.Product) product.Product {
	c := *p
	c.Components = slices.Clone(p.Components)
	return c
}

// withIDs assigns ids to components created without one.
func withIDs(cs []product.Component) []product.Component {
	out := make([]product.Component, len(cs))
	for i, c := range cs {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		out[i] = c
	}
	return out
}
