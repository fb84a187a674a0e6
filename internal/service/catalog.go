package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/port/database"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
)

// FeatureService manages features and their status.
type FeatureService struct {
	store    database.Store
	notifier invalidation.Notifier
}

// NewFeatureService creates a FeatureService. notifier may be nil.
func NewFeatureService(store database.Store, notifier invalidation.Notifier) *FeatureService {
	return &FeatureService{store: store, notifier: notifier}
}

// List returns features, optionally restricted to one product.
func (s *FeatureService) List(ctx context.Context, productID string) ([]feature.Feature, error) {
	return s.store.ListFeatures(ctx, productID)
}

// Get returns one feature.
func (s *FeatureService) Get(ctx context.Context, id string) (*feature.Feature, error) {
	return s.store.GetFeature(ctx, id)
}

// Create validates and stores a new feature in status planned.
func (s *FeatureService) Create(ctx context.Context, req feature.CreateRequest) (*feature.Feature, error) {
	if err := feature.ValidateCreate(&req); err != nil {
		return nil, err
	}
	f, err := s.store.CreateFeature(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create feature: %w", err)
	}
	notify(ctx, s.notifier, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindFeature}, FeatureIDs: []string{f.ID}})
	return f, nil
}

// UpdateStatus is the conditional status write used by remote orchestrators.
func (s *FeatureService) UpdateStatus(ctx context.Context, id string, status feature.Status, expected time.Time) (*feature.Feature, error) {
	f, err := s.store.UpdateFeatureStatus(ctx, id, status, expected)
	if err != nil {
		return nil, err
	}
	notify(ctx, s.notifier, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindFeature}, FeatureIDs: []string{id}})
	return f, nil
}

// ProductService manages products and their components.
type ProductService struct {
	store    database.Store
	notifier invalidation.Notifier
}

// NewProductService creates a ProductService. notifier may be nil.
func NewProductService(store database.Store, notifier invalidation.Notifier) *ProductService {
	return &ProductService{store: store, notifier: notifier}
}

// List returns all products.
func (s *ProductService) List(ctx context.Context) ([]product.Product, error) {
	return s.store.ListProducts(ctx)
}

// Get returns one product.
func (s *ProductService) Get(ctx context.Context, id string) (*product.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// Create validates and stores a new product.
func (s *ProductService) Create(ctx context.Context, req product.CreateRequest) (*product.Product, error) {
	if err := product.ValidateCreate(&req); err != nil {
		return nil, err
	}
	p, err := s.store.CreateProduct(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// UpdateComponents is the conditional component write used by remote
// orchestrators. Partial updates merge into the stored list.
func (s *ProductService) UpdateComponents(ctx context.Context, id string, u product.ComponentsUpdate, expected time.Time) (*product.Product, error) {
	p, err := s.store.UpdateComponents(ctx, id, u, expected)
	if err != nil {
		return nil, err
	}
	notify(ctx, s.notifier, invalidation.Signal{Kinds: []invalidation.Kind{invalidation.KindComponent}, ProductID: id})
	return p, nil
}

func notify(ctx context.Context, n invalidation.Notifier, sig invalidation.Signal) {
	if n == nil {
		return
	}
	if err := n.Invalidate(ctx, sig); err != nil {
		slog.WarnContext(ctx, "invalidation failed", "kinds", sig.Kinds, "error", err)
	}
}
