package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: host simulation input (player movement)
	PhasePreUpdate               // 1: deliver last tick's host events
	PhaseUpdate                  // 2: scheduled tasks, entity ticking
	PhasePostUpdate              // 3: spawn queue
	PhaseOutput                  // 4: statistics
	PhasePersist                 // 5: journal flush
	PhaseCleanup                 // 6: end-of-tick cleanup
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
