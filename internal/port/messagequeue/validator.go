package messagequeue

import (
	"encoding/json"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectInvalidate:
		var p InvalidatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if len(p.Kinds) == 0 {
			return fmt.Errorf("schema validation failed for %s: kinds is empty", subject)
		}
	case SubjectSaveCompleted:
		var p SaveCompletedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.PlanID == "" {
			return fmt.Errorf("schema validation failed for %s: plan_id is empty", subject)
		}
	}
	return nil
}
