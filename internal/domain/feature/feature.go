// Package feature defines features and their plan-membership status.
package feature

import (
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

// Status is the lifecycle state of a feature.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusAssigned, StatusCompleted:
		return true
	}
	return false
}

// Feature is owned independently of plans. UpdatedAt is the version stamp.
type Feature struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a feature.
type CreateRequest struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CanTransition reports whether a feature may move from one status to another.
// Joining a plan assigns a feature; leaving one completes it. A completed
// feature can be picked up by another plan. Same-status writes are allowed so
// retried updates stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPlanned:
		return to == StatusAssigned
	case StatusAssigned:
		return to == StatusCompleted
	case StatusCompleted:
		return to == StatusAssigned
	}
	return false
}

// ValidateCreate checks a CreateRequest.
func ValidateCreate(req *CreateRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if req.ProductID == "" {
		return fmt.Errorf("%w: product_id is required", domain.ErrValidation)
	}
	return nil
}

// ValidateTransition wraps CanTransition with a user-facing error.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown feature status %q", domain.ErrValidation, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: feature cannot move from %s to %s", domain.ErrValidation, from, to)
	}
	return nil
}

// StatusUpdate is a conditional status write as it travels over the API.
type StatusUpdate struct {
	Status            Status    `json:"status"`
	ExpectedUpdatedAt time.Time `json:"expected_updated_at"`
}
