package service

import (
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
)

// Baseline is the last server-confirmed snapshot of one plan. The caller owns
// it and passes it to every save of that plan; SaveService replaces the
// snapshot only between a failed attempt and the next one, and after a
// successful write. A Baseline is not safe for concurrent saves.
type Baseline struct {
	plan *plan.Plan
}

// NewBaseline starts a baseline from a plan read from the store.
func NewBaseline(p *plan.Plan) *Baseline {
	return &Baseline{plan: p.Clone()}
}

// Plan returns a copy of the snapshot.
func (b *Baseline) Plan() *plan.Plan {
	return b.plan.Clone()
}

// ID returns the plan id.
func (b *Baseline) ID() string {
	if b.plan == nil {
		return ""
	}
	return b.plan.ID
}

// Stamp returns the version stamp the next write must carry.
func (b *Baseline) Stamp() time.Time {
	if b.plan == nil {
		return time.Time{}
	}
	return b.plan.UpdatedAt
}

func (b *Baseline) replace(p *plan.Plan) {
	b.plan = p.Clone()
}

// snapshot returns the stored pointer for read-only use inside the package.
func (b *Baseline) snapshot() *plan.Plan {
	return b.plan
}
