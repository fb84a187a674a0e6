// Package statusstore defines the ports for the entities a plan references.
package statusstore

import (
	"context"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
)

// FeatureStore writes feature status.
type FeatureStore interface {
	// UpdateFeatureStatus moves a feature to status. Same failure taxonomy as
	// planstore.Store.UpdatePlan; an illegal transition is a validation error.
	UpdateFeatureStatus(ctx context.Context, id string, status feature.Status, expected time.Time) (*feature.Feature, error)
}

// ComponentStore writes the component version records of a product.
type ComponentStore interface {
	// UpdateComponents writes u to the product's component list. Unless
	// u.PartialUpdate is set the list replaces every existing component. A
	// partial update only moves versions forward; see product.ComponentsUpdate.Merge.
	UpdateComponents(ctx context.Context, productID string, u product.ComponentsUpdate, expected time.Time) (*product.Product, error)
}
