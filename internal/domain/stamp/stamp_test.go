package stamp

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

func TestCompare(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		actual time.Time
		want   Freshness
	}{
		{"equal", base, Fresh},
		{"server older", base.Add(-time.Hour), Fresh},
		{"server newer by 500ms", base.Add(500 * time.Millisecond), Fresh},
		{"server newer by exactly tolerance", base.Add(time.Second), Fresh},
		{"server newer by 1001ms", base.Add(1001 * time.Millisecond), Stale},
		{"server newer by a minute", base.Add(time.Minute), Stale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(base, tt.actual); got != tt.want {
				t.Errorf("Compare() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := Check(base, base.Add(time.Second)); err != nil {
		t.Errorf("unexpected error within tolerance: %v", err)
	}
	if err := Check(time.Time{}, base); err != nil {
		t.Errorf("zero expected stamp should skip the check, got %v", err)
	}
	err := Check(base, base.Add(2*time.Second))
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}
