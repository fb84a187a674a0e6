package product

import (
	"fmt"
	"strings"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

// ValidateCreate checks a CreateRequest.
func ValidateCreate(req *CreateRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	return ValidateComponents(req.Components)
}

// ValidateComponents checks that every component has a name and a unique id.
func ValidateComponents(cs []Component) error {
	seen := make(map[string]struct{}, len(cs))
	for i, c := range cs {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: components[%d].name is required", domain.ErrValidation, i)
		}
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: component id %q appears twice", domain.ErrValidation, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
