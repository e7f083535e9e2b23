package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/activation"
	coresys "github.com/l1jgo/chunkact/internal/core/system"
	"github.com/l1jgo/chunkact/internal/journal"
	"github.com/l1jgo/chunkact/internal/spawner"
	"github.com/l1jgo/chunkact/internal/ticker"
)

// StatsSystem periodically logs the activation counters. Phase 4 (Output).
type StatsSystem struct {
	runner    *coresys.Runner
	activator *activation.Activator
	ticker    *ticker.Ticker
	spawner   *spawner.Spawner
	journal   *journal.Buffer
	log       *zap.Logger
	tickCount int
	interval  int
}

func NewStatsSystem(runner *coresys.Runner, a *activation.Activator, t *ticker.Ticker, s *spawner.Spawner, j *journal.Buffer, log *zap.Logger, intervalTicks int) *StatsSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &StatsSystem{
		runner:    runner,
		activator: a,
		ticker:    t,
		spawner:   s,
		journal:   j,
		log:       log,
		interval:  intervalTicks,
	}
}

func (s *StatsSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *StatsSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Log()
}

// Log writes the current counters.
func (s *StatsSystem) Log() {
	as := s.activator.Stats()
	ss := s.spawner.Stats()
	js := s.journal.Stats()
	_, slowest, overrun := s.runner.Timings()
	s.runner.ResetTimings()
	s.log.Info("activation stats",
		zap.Int("chunks", as.Chunks),
		zap.Int("active", as.Active),
		zap.Int("pending", as.Pending),
		zap.Int("deferred", as.Deferred),
		zap.Int("activation_passes", as.ActivationPasses),
		zap.Int("deactivation_passes", as.DeactivationPasses),
		zap.Int("max_depth", as.MaxDepth),
		zap.Duration("avg_activation", as.AvgActivation),
		zap.Duration("max_activation", as.MaxActivation),
		zap.Int("ticking", s.ticker.Len()),
		zap.Int("spawned", ss.Spawned),
		zap.Int("spawn_queue", ss.Pending),
		zap.Int("spawn_queue_max", ss.MaxPending),
		zap.Int64("journal_aborted", js.Aborted),
		zap.Int("journal_buffered", s.journal.Len()),
		zap.Duration("slowest_tick", slowest),
		zap.Uint64("overrun_ticks", overrun),
	)
}
