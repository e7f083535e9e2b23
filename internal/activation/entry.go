package activation

import (
	"slices"

	"github.com/l1jgo/chunkact/internal/chunk"
	"github.com/l1jgo/chunkact/internal/sched"
)

// State is the observable activation state of a chunk entry.
type State byte

const (
	StateUnknown State = iota // no entities in the chunk
	StateInactive
	StatePending // delayed activation scheduled
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// chunkEntry is the activation state of one chunk that contains entities.
//
// Invariants:
//   - delayed != nil implies !active
//   - queued in the deferred queue implies shouldBeActive and delayed == nil
//   - active implies shouldBeActive, until a deactivation flips the target first
type chunkEntry struct {
	coords         chunk.Coords
	active         bool
	shouldBeActive bool
	delayed        *sched.Task
}

func newChunkEntry(c chunk.Coords) *chunkEntry {
	return &chunkEntry{coords: c}
}

func (e *chunkEntry) state() State {
	switch {
	case e.active:
		return StateActive
	case e.delayed != nil:
		return StatePending
	default:
		return StateInactive
	}
}

func (e *chunkEntry) isActivationDelayed() bool { return e.delayed != nil }

func (e *chunkEntry) setDelayedActivation(t *sched.Task) {
	e.cancelDelayedActivation()
	e.delayed = t
}

func (e *chunkEntry) cancelDelayedActivation() {
	if e.delayed != nil {
		e.delayed.Cancel()
		e.delayed = nil
	}
}

// setActive also moves the target state along.
func (e *chunkEntry) setActive(active bool) {
	e.active = active
	e.shouldBeActive = active
}

// needsActivation reports whether a bulk scan still has to activate the chunk:
// not active, not pending a delayed activation and not already targeted.
func (e *chunkEntry) needsActivation() bool {
	return !e.active && e.delayed == nil && !e.shouldBeActive
}

func (e *chunkEntry) cleanUp() {
	e.cancelDelayedActivation()
}

// deferredQueue holds the chunks whose activation was requested while
// another activation pass was running. FIFO; expected to stay small.
type deferredQueue struct {
	entries []*chunkEntry
}

func (q *deferredQueue) push(e *chunkEntry) {
	q.entries = append(q.entries, e)
}

func (q *deferredQueue) pop() *chunkEntry {
	if len(q.entries) == 0 {
		return nil
	}
	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return e
}

func (q *deferredQueue) remove(e *chunkEntry) bool {
	i := slices.Index(q.entries, e)
	if i < 0 {
		return false
	}
	q.entries = slices.Delete(q.entries, i, i+1)
	return true
}

func (q *deferredQueue) contains(e *chunkEntry) bool {
	return slices.Contains(q.entries, e)
}

func (q *deferredQueue) len() int { return len(q.entries) }

func (q *deferredQueue) clear() { q.entries = nil }
