package worker

import (
	"context"
	"time"

	"github.com/teacurran/village-homepage-sub012/internal/job"
	"github.com/teacurran/village-homepage-sub012/internal/store"
)

// Governor bounds how many jobs from a queue family may be processing
// simultaneously, independent of how many worker processes exist. The
// in-flight count is derived from the jobs table itself — the same store
// that guards claiming — so there is no second source of truth to drift.
//
// The count and the subsequent claim are not atomic: two supervisors can
// both pass the check at a ceiling of K and briefly put K+1 jobs in
// flight. Overshoot is bounded by one claim per polling goroutine per
// tick, which is the soft limit the screenshot browser pool is sized for.
type Governor struct {
	store        *store.Store
	limits       map[job.Queue]int
	leaseTimeout time.Duration
}

// NewGovernor creates a Governor enforcing limits. Families absent from
// limits, or mapped to 0 or less, are unlimited.
func NewGovernor(st *store.Store, limits map[job.Queue]int, leaseTimeout time.Duration) *Governor {
	return &Governor{store: st, limits: limits, leaseTimeout: leaseTimeout}
}

// Allow reports whether queue is below its in-flight ceiling and a claim
// may be attempted this tick. Jobs with expired leases do not count: they
// are abandoned, not in flight.
func (g *Governor) Allow(ctx context.Context, queue job.Queue) (bool, error) {
	limit, ok := g.limits[queue]
	if !ok || limit <= 0 {
		return true, nil
	}
	n, err := g.store.CountProcessing(ctx, queue, g.leaseTimeout)
	if err != nil {
		return false, err
	}
	return n < limit, nil
}
