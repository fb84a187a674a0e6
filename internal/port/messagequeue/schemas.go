package messagequeue

import "time"

// InvalidatePayload is the schema for releaseforge.invalidate messages.
type InvalidatePayload struct {
	Kinds      []string `json:"kinds"`
	PlanID     string   `json:"plan_id,omitempty"`
	FeatureIDs []string `json:"feature_ids,omitempty"`
	ProductID  string   `json:"product_id,omitempty"`
	Origin     string   `json:"origin,omitempty"`
}

// SaveCompletedPayload is the schema for releaseforge.saves.complete messages.
type SaveCompletedPayload struct {
	PlanID           string    `json:"plan_id"`
	Section          string    `json:"section"`
	Attempts         int       `json:"attempts"`
	NoOp             bool      `json:"no_op"`
	DependentsFailed int       `json:"dependents_failed"`
	UpdatedAt        time.Time `json:"updated_at"`
}
