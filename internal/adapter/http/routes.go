package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Plans
		r.Get("/plans", h.ListPlans)
		r.Post("/plans", h.CreatePlan)
		r.Get("/plans/{id}", h.GetPlan)
		r.Patch("/plans/{id}", h.PatchPlan)
		r.Put("/plans/{id}", h.SavePlan)
		r.Delete("/plans/{id}", h.DeletePlan)
		r.Put("/plans/{id}/sections/{section}", h.SavePlanSection)

		// Features
		r.Get("/features", h.ListFeatures)
		r.Post("/features", h.CreateFeature)
		r.Get("/features/{id}", h.GetFeature)
		r.Put("/features/{id}/status", h.UpdateFeatureStatus)

		// Products and their components
		r.Get("/products", h.ListProducts)
		r.Post("/products", h.CreateProduct)
		r.Get("/products/{id}", h.GetProduct)
		r.Put("/products/{id}/components", h.UpdateComponents)
	})
}
