// Package stamp compares version stamps used for optimistic locking.
package stamp

import (
	"fmt"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

// Tolerance absorbs clock skew between the client that read a stamp and the
// server that compares it.
const Tolerance = time.Second

// Freshness is the outcome of comparing an expected stamp with the stored one.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
)

func (f Freshness) String() string {
	if f == Stale {
		return "stale"
	}
	return "fresh"
}

// Compare reports whether a write carrying expected may proceed against a
// record last modified at actual. Only an actual stamp newer than expected by
// more than Tolerance is stale.
func Compare(expected, actual time.Time) Freshness {
	if !actual.After(expected) {
		return Fresh
	}
	if actual.Sub(expected) <= Tolerance {
		return Fresh
	}
	return Stale
}

// Check returns a wrapped domain.ErrConflict when expected is stale against
// actual. A zero expected stamp skips the check.
func Check(expected, actual time.Time) error {
	if expected.IsZero() {
		return nil
	}
	if Compare(expected, actual) == Stale {
		return fmt.Errorf("%w: stored version %s is newer than %s",
			domain.ErrConflict, actual.UTC().Format(time.RFC3339Nano), expected.UTC().Format(time.RFC3339Nano))
	}
	return nil
}
