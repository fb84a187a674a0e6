// Package product defines products and the versioned components they own.
package product

import (
	"slices"
	"time"
)

// Component is a version record owned by a product.
type Component struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CurrentVersion  string `json:"current_version"`
	PreviousVersion string `json:"previous_version"`
}

// Product owns an ordered list of components. UpdatedAt is the version stamp.
type Product struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Owner      string      `json:"owner"`
	Components []Component `json:"components"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Component returns the component with the given id, if present.
func (p *Product) Component(id string) (Component, bool) {
	for _, c := range p.Components {
		if c.ID == id {
			return c, true
		}
	}
	return Component{}, false
}

// ComponentsUpdate is a write to a product's component list. When
// PartialUpdate is false the list replaces every existing component.
type ComponentsUpdate struct {
	Components    []Component `json:"components"`
	PartialUpdate bool        `json:"partial_update"`
}

// Merge returns the component list that results from applying u to existing.
// A partial update moves matching ids to their new CurrentVersion (and
// renames them when a name is given), appends unknown ids and leaves the rest
// untouched. A matched component only moves forward: its PreviousVersion
// becomes the stored CurrentVersion, and a version that is not strictly
// greater fails with domain.ErrValidation. An entry without a version only
// renames.
func (u ComponentsUpdate) Merge(existing []Component) ([]Component, error) {
	if !u.PartialUpdate {
		return slices.Clone(u.Components), nil
	}
	out := slices.Clone(existing)
	for _, c := range u.Components {
		i := slices.IndexFunc(out, func(e Component) bool { return e.ID == c.ID })
		if i < 0 {
			out = append(out, c)
			continue
		}
		if c.Name != "" {
			out[i].Name = c.Name
		}
		if c.CurrentVersion == "" {
			continue
		}
		if err := ValidateComponentUpgrade(out[i].Name, out[i].CurrentVersion, c.CurrentVersion); err != nil {
			return nil, err
		}
		out[i].PreviousVersion = out[i].CurrentVersion
		out[i].CurrentVersion = c.CurrentVersion
	}
	return out, nil
}

// CreateRequest holds the fields needed to create a product.
type CreateRequest struct {
	Name       string      `json:"name"`
	Owner      string      `json:"owner"`
	Components []Component `json:"components"`
}

// ComponentsRequest is a conditional component write as it travels over the
// API. The update's fields sit at the top level of the body.
type ComponentsRequest struct {
	ComponentsUpdate
	ExpectedUpdatedAt time.Time `json:"expected_updated_at"`
}
