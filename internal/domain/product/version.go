package product

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

// Version is a normalized MAJOR.SUB.MINOR.PATCH tuple.
type Version [4]int

// ParseVersion normalizes s into a Version. Missing segments are zero, as are
// segments that are not plain non-negative integers. Segments beyond the
// fourth are ignored. A leading "v" is accepted.
func ParseVersion(s string) Version {
	var v Version
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return v
	}
	for i, part := range strings.SplitN(s, ".", len(v)+1) {
		if i >= len(v) {
			break
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			continue
		}
		v[i] = n
	}
	return v
}

// Compare returns -1, 0 or 1 as v is less than, equal to or greater than o.
func (v Version) Compare(o Version) int {
	for i := range v {
		switch {
		case v[i] < o[i]:
			return -1
		case v[i] > o[i]:
			return 1
		}
	}
	return 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// ValidateUpgrade fails with domain.ErrValidation unless final is strictly
// greater than current.
func ValidateUpgrade(current, final string) error {
	if ParseVersion(final).Compare(ParseVersion(current)) <= 0 {
		return fmt.Errorf("%w: final version %q must be greater than current version %q",
			domain.ErrValidation, final, current)
	}
	return nil
}

// ValidateComponentUpgrade is ValidateUpgrade with the component named in the
// error message.
func ValidateComponentUpgrade(name, current, final string) error {
	if err := ValidateUpgrade(current, final); err != nil {
		return fmt.Errorf("%w: component %s: final version %q must be greater than current version %q",
			domain.ErrValidation, name, final, current)
	}
	return nil
}
