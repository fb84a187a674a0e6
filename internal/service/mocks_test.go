package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/domain/stamp"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
	"github.com/Strob0t/ReleaseForge/internal/port/messagequeue"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// mockPlanStore keeps one plan and advances its stamp by a minute per write.
type mockPlanStore struct {
	mu      sync.Mutex
	plan    *plan.Plan
	patches []plan.Patch

	// Error hooks, consumed one per call in order.
	updateErrs []error
	getErrs    []error

	// beforeUpdate runs under the lock before a write, e.g. to simulate a
	// concurrent writer.
	beforeUpdate func(p *plan.Plan)

	getCalls    int
	updateCalls int
}

func (m *mockPlanStore) GetPlan(_ context.Context, id string) (*plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if len(m.getErrs) > 0 {
		err := m.getErrs[0]
		m.getErrs = m.getErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.plan == nil || m.plan.ID != id {
		return nil, fmt.Errorf("get plan %s: %w", id, domain.ErrNotFound)
	}
	return m.plan.Clone(), nil
}

func (m *mockPlanStore) UpdatePlan(_ context.Context, id string, patch plan.Patch, expected time.Time) (*plan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.beforeUpdate != nil {
		m.beforeUpdate(m.plan)
	}
	if len(m.updateErrs) > 0 {
		err := m.updateErrs[0]
		m.updateErrs = m.updateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.plan == nil || m.plan.ID != id {
		return nil, fmt.Errorf("update plan %s: %w", id, domain.ErrNotFound)
	}
	if err := stamp.Check(expected, m.plan.UpdatedAt); err != nil {
		return nil, err
	}
	m.patches = append(m.patches, patch)
	patch.Apply(m.plan)
	m.plan.UpdatedAt = m.plan.UpdatedAt.Add(time.Minute)
	return m.plan.Clone(), nil
}

// touch simulates another writer changing the plan.
func (m *mockPlanStore) touch(fn func(p *plan.Plan)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.plan)
	m.plan.UpdatedAt = m.plan.UpdatedAt.Add(time.Minute)
}

type statusCall struct {
	id     string
	status feature.Status
}

type mockFeatureStore struct {
	mu    sync.Mutex
	calls []statusCall
	errs  map[string]error
}

func (m *mockFeatureStore) UpdateFeatureStatus(_ context.Context, id string, status feature.Status, _ time.Time) (*feature.Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, statusCall{id: id, status: status})
	if err := m.errs[id]; err != nil {
		return nil, err
	}
	return &feature.Feature{ID: id, Status: status, UpdatedAt: t0}, nil
}

func (m *mockFeatureStore) sortedCalls() []statusCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.calls)
	slices.SortFunc(out, func(a, b statusCall) int {
		if a.id < b.id {
			return -1
		}
		if a.id > b.id {
			return 1
		}
		return 0
	})
	return out
}

type componentsCall struct {
	productID string
	update    product.ComponentsUpdate
}

type mockComponentStore struct {
	mu    sync.Mutex
	calls []componentsCall
	err   error
}

func (m *mockComponentStore) UpdateComponents(_ context.Context, productID string, u product.ComponentsUpdate, _ time.Time) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, componentsCall{productID: productID, update: u})
	if m.err != nil {
		return nil, m.err
	}
	return &product.Product{ID: productID, Components: u.Components, UpdatedAt: t0}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	signals []invalidation.Signal
}

func (r *recordingNotifier) Invalidate(_ context.Context, s invalidation.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	attempts int
	retries  []string
	outcomes []string
	depFails int
}

func (r *recordingMetrics) RecordAttempt(context.Context, string) {
	r.mu.Lock()
	r.attempts++
	r.mu.Unlock()
}

func (r *recordingMetrics) RecordRetry(_ context.Context, _, class string) {
	r.mu.Lock()
	r.retries = append(r.retries, class)
	r.mu.Unlock()
}

func (r *recordingMetrics) RecordSave(_ context.Context, _, outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func (r *recordingMetrics) RecordDependentFailure(context.Context, string) {
	r.mu.Lock()
	r.depFails++
	r.mu.Unlock()
}

func testPlan() *plan.Plan {
	return &plan.Plan{
		ID:        "plan-1",
		Name:      "Q2 release",
		Owner:     "ana",
		Status:    plan.StatusPlanned,
		StartDate: t0,
		EndDate:   t0.Add(60 * 24 * time.Hour),
		ProductID: "prod-1",
		Phases: []plan.Phase{
			{Name: "Build", Start: t0, End: t0.Add(30 * 24 * time.Hour), Color: "#00aa00"},
		},
		FeatureIDs: []string{"f1"},
		Components: []plan.ComponentAssignment{
			{ComponentID: "c1", CurrentVersion: "2.3.0", FinalVersion: "2.3.1"},
		},
		CalendarIDs: []string{"cal-1"},
		Milestones:  []plan.Milestone{{Name: "Freeze", Date: t0.Add(40 * 24 * time.Hour)}},
		References:  []plan.Reference{{Label: "Epic", URL: "https://tracker.example.com/E-1"}},
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
}

// mapCache is an in-process cache.Cache with failure hooks.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	deletes []string
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deletes = append(c.deletes, key)
	return nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type published struct {
	subject string
	data    []byte
}

// fakeQueue delivers published messages synchronously to subscribers.
type fakeQueue struct {
	mu        sync.Mutex
	published []published
	handlers  map[string][]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: make(map[string][]messagequeue.Handler)}
}

func (q *fakeQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	q.mu.Lock()
	q.published = append(q.published, published{subject: subject, data: data})
	hs := append([]messagequeue.Handler(nil), q.handlers[subject]...)
	q.mu.Unlock()
	for _, h := range hs {
		if err := h(ctx, subject, data); err != nil {
			return err
		}
	}
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = append(q.handlers[subject], h)
	return func() {}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, p := range q.published {
		out = append(out, p.subject)
	}
	return out
}
