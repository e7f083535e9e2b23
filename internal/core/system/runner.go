package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick.
type Runner struct {
	systems []System
	sorted  bool
	ticks   uint64

	// Wall time spent in Tick; reset by ResetTimings.
	last    time.Duration
	slowest time.Duration
	overrun uint64 // ticks that took longer than their dt
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	r.ticks++
	start := time.Now()
	for _, s := range r.systems {
		s.Update(dt)
	}
	r.last = time.Since(start)
	r.slowest = max(r.slowest, r.last)
	if dt > 0 && r.last > dt {
		r.overrun++
	}
}

// Ticks returns the number of full ticks run.
func (r *Runner) Ticks() uint64 { return r.ticks }

// Len returns the number of registered systems.
func (r *Runner) Len() int { return len(r.systems) }

// Timings returns the duration of the last tick, the slowest tick and the
// number of ticks that took longer than their dt since the last reset.
func (r *Runner) Timings() (last, slowest time.Duration, overrun uint64) {
	return r.last, r.slowest, r.overrun
}

func (r *Runner) ResetTimings() {
	r.slowest = 0
	r.overrun = 0
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		// Stable: systems sharing a phase keep registration order.
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
