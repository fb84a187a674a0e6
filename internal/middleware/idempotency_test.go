package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/middleware"
)

// mockCache is an in-memory cache.Cache for testing.
type mockCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func makeTestHandler(counter *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*counter++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *counter)
	})
}

func send(h http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_NoHeader(t *testing.T) {
	counter := 0
	store := newMockCache()
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusOK))

	send(handler, http.MethodPut, "/api/v1/plans/p1", "")
	send(handler, http.MethodPut, "/api/v1/plans/p1", "")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
	if store.len() != 0 {
		t.Fatalf("expected nothing stored, got %d entries", store.len())
	}
}

func TestIdempotency_SecondRequestReplays(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockCache(), time.Hour)(makeTestHandler(&counter, http.StatusOK))

	rec1 := send(handler, http.MethodPut, "/api/v1/plans/p1/sections/features", "key-2")
	rec2 := send(handler, http.MethodPut, "/api/v1/plans/p1/sections/features", "key-2")

	if counter != 1 {
		t.Fatalf("expected handler called once, got %d", counter)
	}
	if rec2.Code != http.StatusOK || rec2.Body.String() != rec1.Body.String() {
		t.Fatalf("replay = %d %q, want %d %q", rec2.Code, rec2.Body, rec1.Code, rec1.Body)
	}
	if rec2.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected Idempotent-Replayed header on replay")
	}
}

func TestIdempotency_KeyScopedToPath(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockCache(), time.Hour)(makeTestHandler(&counter, http.StatusOK))

	send(handler, http.MethodPut, "/api/v1/plans/p1", "same")
	send(handler, http.MethodPut, "/api/v1/plans/p2", "same")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
}

func TestIdempotency_GETIgnored(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockCache(), time.Hour)(makeTestHandler(&counter, http.StatusOK))

	send(handler, http.MethodGet, "/api/v1/plans", "key-get")
	send(handler, http.MethodGet, "/api/v1/plans", "key-get")

	if counter != 2 {
		t.Fatalf("expected handler called twice, got %d", counter)
	}
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	counter := 0
	store := newMockCache()
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusBadGateway))

	send(handler, http.MethodPut, "/api/v1/plans/p1", "key-5xx")
	send(handler, http.MethodPut, "/api/v1/plans/p1", "key-5xx")

	if counter != 2 {
		t.Fatalf("expected retry after 5xx to reach the handler, got %d calls", counter)
	}
	if store.len() != 0 {
		t.Fatalf("expected nothing stored, got %d entries", store.len())
	}
}

func TestIdempotency_LookupErrorFallsThrough(t *testing.T) {
	counter := 0
	store := newMockCache()
	store.getErr = errors.New("kv unavailable")
	handler := middleware.Idempotency(store, time.Hour)(makeTestHandler(&counter, http.StatusCreated))

	rec := send(handler, http.MethodPost, "/api/v1/plans", "key-err")
	if rec.Code != http.StatusCreated || counter != 1 {
		t.Fatalf("code=%d calls=%d", rec.Code, counter)
	}
}
