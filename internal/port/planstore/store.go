// Package planstore defines the plan store port consumed by the save path.
package planstore

import (
	"context"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
)

// Store reads and conditionally writes plans.
type Store interface {
	// GetPlan returns the plan or an error wrapping domain.ErrNotFound.
	GetPlan(ctx context.Context, id string) (*plan.Plan, error)

	// UpdatePlan applies patch if expected is fresh against the stored
	// UpdatedAt, and returns the persisted plan with its new stamp. A stale
	// stamp fails with domain.ErrConflict and malformed fields with
	// domain.ErrValidation. A zero expected stamp skips the check.
	UpdatePlan(ctx context.Context, id string, patch plan.Patch, expected time.Time) (*plan.Plan, error)
}
