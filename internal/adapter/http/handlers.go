package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/service"
)

// DefaultMaxBodySize caps request bodies when Handlers.MaxBodySize is unset.
const DefaultMaxBodySize = 1 << 20 // 1 MB

// HealthCheck probes one backing service for /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Plans       *service.PlanService
	Features    *service.FeatureService
	Products    *service.ProductService
	Checks      []HealthCheck
	MaxBodySize int64
}

func (h *Handlers) bodyLimit() int64 {
	if h.MaxBodySize <= 0 {
		return DefaultMaxBodySize
	}
	return h.MaxBodySize
}

// --- Plans ---

// ListPlans handles GET /api/v1/plans
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	handleList(h.Plans.List)(w, r)
}

// GetPlan handles GET /api/v1/plans/{id}
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Plans.Get, "plan not found")(w, r)
}

// CreatePlan handles POST /api/v1/plans
func (h *Handlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.bodyLimit(), h.Plans.Create)(w, r)
}

// PatchPlan handles PATCH /api/v1/plans/{id}. A stale expected_updated_at
// answers 409.
func (h *Handlers) PatchPlan(w http.ResponseWriter, r *http.Request) {
	handleUpdate(h.bodyLimit(), func(ctx context.Context, id string, req plan.UpdateRequest) (*plan.Plan, error) {
		return h.Plans.Patch(ctx, id, req.Patch, req.ExpectedUpdatedAt)
	}, "plan not found")(w, r)
}

// DeletePlan handles DELETE /api/v1/plans/{id}
func (h *Handlers) DeletePlan(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Plans.Delete, "plan not found")(w, r)
}

// SavePlanSection handles PUT /api/v1/plans/{id}/sections/{section}
func (h *Handlers) SavePlanSection(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	section, err := plan.ParseSection(urlParam(r, "section"))
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	req, ok := readJSON[service.SaveRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}

	res, err := h.Plans.SaveSection(r.Context(), id, section, req)
	if err != nil {
		writeFailure(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SavePlan handles PUT /api/v1/plans/{id}: every changed section in order.
func (h *Handlers) SavePlan(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[service.SaveRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}

	res, err := h.Plans.SaveAll(r.Context(), id, req)
	if err != nil {
		writeFailure(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Features ---

// ListFeatures handles GET /api/v1/features?product_id=
func (h *Handlers) ListFeatures(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	handleList(func(ctx context.Context) ([]feature.Feature, error) {
		return h.Features.List(ctx, productID)
	})(w, r)
}

// GetFeature handles GET /api/v1/features/{id}
func (h *Handlers) GetFeature(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Features.Get, "feature not found")(w, r)
}

// CreateFeature handles POST /api/v1/features
func (h *Handlers) CreateFeature(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.bodyLimit(), h.Features.Create)(w, r)
}

// UpdateFeatureStatus handles PUT /api/v1/features/{id}/status
func (h *Handlers) UpdateFeatureStatus(w http.ResponseWriter, r *http.Request) {
	handleUpdate(h.bodyLimit(), func(ctx context.Context, id string, req feature.StatusUpdate) (*feature.Feature, error) {
		return h.Features.UpdateStatus(ctx, id, req.Status, req.ExpectedUpdatedAt)
	}, "feature not found")(w, r)
}

// --- Products ---

// ListProducts handles GET /api/v1/products
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	handleList(h.Products.List)(w, r)
}

// GetProduct handles GET /api/v1/products/{id}
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Products.Get, "product not found")(w, r)
}

// CreateProduct handles POST /api/v1/products
func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.bodyLimit(), h.Products.Create)(w, r)
}

// UpdateComponents handles PUT /api/v1/products/{id}/components. With
// partial_update the listed components merge into the stored list.
func (h *Handlers) UpdateComponents(w http.ResponseWriter, r *http.Request) {
	handleUpdate(h.bodyLimit(), func(ctx context.Context, id string, req product.ComponentsRequest) (*product.Product, error) {
		return h.Products.UpdateComponents(ctx, id, req.ComponentsUpdate, req.ExpectedUpdatedAt)
	}, "product not found")(w, r)
}

// --- Health ---

type healthStatus struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// Health handles GET /health. Any failing check answers 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Status: "ok", Services: make(map[string]string, len(h.Checks))}
	code := http.StatusOK
	for _, c := range h.Checks {
		if err := c.Check(ctx); err != nil {
			slog.WarnContext(ctx, "health check failed", "service", c.Name, "error", err)
			status.Services[c.Name] = "down"
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Services[c.Name] = "up"
	}
	writeJSON(w, code, status)
}
