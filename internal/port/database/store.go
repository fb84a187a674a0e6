// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/port/planstore"
	"github.com/Strob0t/ReleaseForge/internal/port/statusstore"
)

// Store is the port interface for persistence. Every conditional write takes
// the caller's last-known UpdatedAt and fails with domain.ErrConflict when
// the stored one is newer beyond stamp.Tolerance.
type Store interface {
	planstore.Store
	statusstore.FeatureStore
	statusstore.ComponentStore

	// Plans
	ListPlans(ctx context.Context) ([]plan.Plan, error)
	CreatePlan(ctx context.Context, req plan.CreateRequest) (*plan.Plan, error)
	DeletePlan(ctx context.Context, id string) error

	// Features
	ListFeatures(ctx context.Context, productID string) ([]feature.Feature, error)
	GetFeature(ctx context.Context, id string) (*feature.Feature, error)
	CreateFeature(ctx context.Context, req feature.CreateRequest) (*feature.Feature, error)

	// Products
	ListProducts(ctx context.Context) ([]product.Product, error)
	GetProduct(ctx context.Context, id string) (*product.Product, error)
	CreateProduct(ctx context.Context, req product.CreateRequest) (*product.Product, error)
}

