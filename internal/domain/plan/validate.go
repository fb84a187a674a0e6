package plan

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// generalInfo is the validated view of the general section.
type generalInfo struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Owner     string  `json:"owner" validate:"max=100"`
	Status    Status  `json:"status" validate:"required,oneof=planned in_progress done paused"`
	ProductID string  `json:"product_id" validate:"required"`
	Phases    []Phase `json:"phases" validate:"dive"`
}

type referencesInfo struct {
	Milestones []Milestone `json:"milestones" validate:"dive"`
	References []Reference `json:"references" validate:"dive"`
}

type componentsInfo struct {
	Components []ComponentAssignment `json:"components" validate:"dive"`
}

// ValidateCreate checks a CreateRequest for required fields and a sane date range.
func ValidateCreate(req *CreateRequest) error {
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}
	return validateDateRange("start_date", req.StartDate, "end_date", req.EndDate)
}

// ValidateSection runs the structural checks for one section of p.
// Component version ordering is checked separately by the product package.
func ValidateSection(section Section, p *Plan) error {
	switch section {
	case SectionGeneral:
		return validateGeneral(p)
	case SectionFeatures:
		return validateIDSet("feature_ids", p.FeatureIDs)
	case SectionComponents:
		return validateComponents(p.Components)
	case SectionCalendars:
		return validateIDSet("calendar_ids", p.CalendarIDs)
	case SectionReferences:
		return validateReferences(p)
	default:
		return fmt.Errorf("%w: unknown section %q", domain.ErrValidation, section)
	}
}

// ValidatePlan validates every section of p.
func ValidatePlan(p *Plan) error {
	for _, s := range Sections {
		if err := ValidateSection(s, p); err != nil {
			return err
		}
	}
	return nil
}

func validateGeneral(p *Plan) error {
	info := generalInfo{
		Name:      p.Name,
		Owner:     p.Owner,
		Status:    p.Status,
		ProductID: p.ProductID,
		Phases:    p.Phases,
	}
	if err := validate.Struct(&info); err != nil {
		return validationError(err)
	}
	if err := validateDateRange("start_date", p.StartDate, "end_date", p.EndDate); err != nil {
		return err
	}
	for i, ph := range p.Phases {
		prefix := fmt.Sprintf("phases[%d]", i)
		if err := validateDateRange(prefix+".start", ph.Start, prefix+".end", ph.End); err != nil {
			return err
		}
	}
	return nil
}

func validateComponents(assignments []ComponentAssignment) error {
	if err := validate.Struct(&componentsInfo{Components: assignments}); err != nil {
		return validationError(err)
	}
	seen := make(map[string]struct{}, len(assignments))
	for i, a := range assignments {
		if _, dup := seen[a.ComponentID]; dup {
			return fmt.Errorf("%w: components[%d].component_id %q is assigned twice", domain.ErrValidation, i, a.ComponentID)
		}
		seen[a.ComponentID] = struct{}{}
	}
	return nil
}

func validateReferences(p *Plan) error {
	info := referencesInfo{Milestones: p.Milestones, References: p.References}
	if err := validate.Struct(&info); err != nil {
		return validationError(err)
	}
	for i, m := range p.Milestones {
		if m.Date.IsZero() {
			return fmt.Errorf("%w: milestones[%d].date is required", domain.ErrValidation, i)
		}
	}
	return nil
}

func validateIDSet(field string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: %s[%d] must not be empty", domain.ErrValidation, field, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s contains %q twice", domain.ErrValidation, field, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func validateDateRange(startField string, start time.Time, endField string, end time.Time) error {
	if start.IsZero() {
		return fmt.Errorf("%w: %s is required", domain.ErrValidation, startField)
	}
	if end.IsZero() {
		return fmt.Errorf("%w: %s is required", domain.ErrValidation, endField)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: %s must not be before %s", domain.ErrValidation, endField, startField)
	}
	return nil
}

// validationError turns validator output into a single user-facing message
// naming the first offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "url":
		msg = field + " must be a valid URL"
	case "hexcolor":
		msg = field + " must be a hex color"
	default:
		msg = field + " is invalid"
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}
