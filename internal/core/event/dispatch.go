package event

import (
	"time"

	coresys "github.com/l1jgo/chunkact/internal/core/system"
)

// DispatchSystem swaps the bus buffers and delivers last tick's events.
// Phase 1 (PreUpdate).
type DispatchSystem struct {
	bus *Bus
}

func NewDispatchSystem(bus *Bus) *DispatchSystem {
	return &DispatchSystem{bus: bus}
}

func (s *DispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *DispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
