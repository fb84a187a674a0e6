package restclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/adapter/restclient"
	"github.com/Strob0t/ReleaseForge/internal/domain"
	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/logger"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
)

var stamp = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestGetPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/plans/p1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Request-ID"); got != "req-1" {
			t.Errorf("X-Request-ID = %q", got)
		}
		_ = json.NewEncoder(w).Encode(plan.Plan{ID: "p1", Name: "Q3", UpdatedAt: stamp})
	}))
	defer srv.Close()

	c := restclient.New(srv.URL+"/", time.Second)
	p, err := c.GetPlan(logger.WithRequestID(context.Background(), "req-1"), "p1")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if p.Name != "Q3" || !p.UpdatedAt.Equal(stamp) {
		t.Errorf("plan = %+v", p)
	}
}

func TestUpdatePlanSendsExpectedStamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var req plan.UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if !req.ExpectedUpdatedAt.Equal(stamp) || req.Patch.Name == nil || *req.Patch.Name != "New" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(plan.Plan{ID: "p1", Name: "New", UpdatedAt: stamp.Add(time.Second)})
	}))
	defer srv.Close()

	name := "New"
	p, err := restclient.New(srv.URL, time.Second).UpdatePlan(context.Background(), "p1", plan.Patch{Name: &name}, stamp)
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	if p.Name != "New" {
		t.Errorf("plan = %+v", p)
	}
}

func TestStatusCodesMapToTaxonomy(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
		class    resilience.Class
	}{
		{http.StatusBadRequest, domain.ErrValidation, resilience.ClassValidation},
		{http.StatusNotFound, domain.ErrNotFound, resilience.ClassUnknown},
		{http.StatusConflict, domain.ErrConflict, resilience.ClassConflict},
		{http.StatusTooManyRequests, domain.ErrRateLimited, resilience.ClassRateLimit},
		{http.StatusBadGateway, nil, resilience.ClassServerError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"x","status":0,"detail":"final_version must be greater"}`))
			}))
			defer srv.Close()

			_, err := restclient.New(srv.URL, time.Second).UpdateFeatureStatus(context.Background(), "f1", feature.StatusAssigned, time.Time{})
			var se *resilience.StatusError
			if !errors.As(err, &se) || se.Status != tt.status {
				t.Fatalf("expected StatusError %d, got %v", tt.status, err)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("expected errors.Is(%v)", tt.sentinel)
			}
			if got := resilience.Classify(err).Class; got != tt.class {
				t.Errorf("class = %s, want %s", got, tt.class)
			}
		})
	}
}

func TestValidationDetailReachesUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"component api: final version 0.9 must be greater than 1.0"}`))
	}))
	defer srv.Close()

	_, err := restclient.New(srv.URL, time.Second).UpdateComponents(context.Background(), "prod", product.ComponentsUpdate{PartialUpdate: true}, time.Time{})
	f := resilience.Classify(err)
	if f.Message != "component api: final version 0.9 must be greater than 1.0" {
		t.Errorf("message = %q", f.Message)
	}
}

func TestUpdateComponentsSendsPartialFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatal(err)
		}
		if raw["partial_update"] != true {
			t.Errorf("partial_update = %v", raw["partial_update"])
		}
		if _, ok := raw["components"]; !ok {
			t.Error("components missing from top level of body")
		}
		_ = json.NewEncoder(w).Encode(product.Product{ID: "prod"})
	}))
	defer srv.Close()

	u := product.ComponentsUpdate{Components: []product.Component{{ID: "api", CurrentVersion: "1.1"}}, PartialUpdate: true}
	if _, err := restclient.New(srv.URL, time.Second).UpdateComponents(context.Background(), "prod", u, time.Time{}); err != nil {
		t.Fatalf("UpdateComponents: %v", err)
	}
}

func TestUnreachableServerIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := restclient.New(url, time.Second).GetPlan(context.Background(), "p1")
	if !errors.Is(err, resilience.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if got := resilience.Classify(err).Class; got != resilience.ClassNetwork {
		t.Errorf("class = %s", got)
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := restclient.New(srv.URL, time.Second)
	c.SetBreaker(resilience.NewBreaker(2, time.Minute))

	ctx := context.Background()
	for range 2 {
		_, _ = c.GetPlan(ctx, "p1")
	}
	_, err := c.GetPlan(ctx, "p1")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls to reach the server, got %d", calls)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := restclient.New(srv.URL, time.Second).Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
