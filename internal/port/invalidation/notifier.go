// Package invalidation defines the signal telling readers which entity kinds
// changed and must be refetched.
package invalidation

import (
	"context"
	"errors"
)

// Kind names an entity kind readers cache.
type Kind string

const (
	KindPlan      Kind = "plan"
	KindFeature   Kind = "feature"
	KindComponent Kind = "component"
)

// Signal lists changed entity kinds. IDs narrow the change when known.
type Signal struct {
	Kinds      []Kind   `json:"kinds"`
	PlanID     string   `json:"plan_id,omitempty"`
	FeatureIDs []string `json:"feature_ids,omitempty"`
	ProductID  string   `json:"product_id,omitempty"`
	// Origin identifies the instance that raised the signal so it can ignore
	// its own echo from the bus.
	Origin string `json:"origin,omitempty"`
}

// Has reports whether k is among the signal's kinds.
func (s Signal) Has(k Kind) bool {
	for _, x := range s.Kinds {
		if x == k {
			return true
		}
	}
	return false
}

// Notifier delivers invalidation signals.
type Notifier interface {
	Invalidate(ctx context.Context, s Signal) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, s Signal) error

func (f NotifierFunc) Invalidate(ctx context.Context, s Signal) error { return f(ctx, s) }

// Multi fans a signal out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Invalidate(ctx context.Context, s Signal) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Invalidate(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
