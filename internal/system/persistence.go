package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/chunkact/internal/core/system"
	"github.com/l1jgo/chunkact/internal/journal"
)

// PersistenceSystem periodically flushes the activation journal. Phase 5 (Persist).
type PersistenceSystem struct {
	journal   *journal.Buffer
	log       *zap.Logger
	tickCount int
	interval  int // flush every N ticks
	failures  int // consecutive failed flushes
}

func NewPersistenceSystem(j *journal.Buffer, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		journal:  j,
		log:      log,
		interval: intervalTicks,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.flush()
}

// FlushNow writes everything still buffered. Called for graceful shutdown.
func (s *PersistenceSystem) FlushNow() {
	s.flush()
}

func (s *PersistenceSystem) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pending := s.journal.Len()
	if err := s.journal.Flush(ctx); err != nil {
		s.failures++
		// Only the first failure of a streak is an error; the rows are retried.
		level := zap.WarnLevel
		if s.failures == 1 {
			level = zap.ErrorLevel
		}
		s.log.Log(level, "journal flush failed",
			zap.Int("rows", pending),
			zap.Int("failures", s.failures),
			zap.Error(err),
		)
		return
	}
	if s.failures > 0 {
		s.log.Info("journal flush recovered", zap.Int("failures", s.failures))
		s.failures = 0
	}
}
