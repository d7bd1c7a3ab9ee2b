package app

import (
	"sync/atomic"

	"github.com/rnmehta/dinevox/internal/policy"
)

// hotPolicy is a policy.Service whose rules can be swapped atomically on a
// config hot-reload. The dialog orchestrator holds this wrapper for its
// whole lifetime; each check reads the current rules.
type hotPolicy struct {
	rules atomic.Pointer[policy.Rules]
}

var _ policy.Service = (*hotPolicy)(nil)

func newHotPolicy(r *policy.Rules) *hotPolicy {
	p := &hotPolicy{}
	p.rules.Store(r)
	return p
}

// Replace swaps in new rules. In-flight checks finish against the old set.
func (p *hotPolicy) Replace(r *policy.Rules) {
	p.rules.Store(r)
}

// IsRestaurantOpen implements policy.Service.
func (p *hotPolicy) IsRestaurantOpen() (bool, string) {
	return p.rules.Load().IsRestaurantOpen()
}

// CheckItemAvailability implements policy.Service.
func (p *hotPolicy) CheckItemAvailability(name string) (bool, string) {
	return p.rules.Load().CheckItemAvailability(name)
}
