package spawner

import (
	"slices"

	"github.com/l1jgo/chunkact/internal/world"
)

type queued struct {
	entity   *world.Entity
	eligible func(*world.Entity) bool
}

// spawnQueue spreads spawns over time: at most perWindow entities are
// processed every windowTicks ticks.
type spawnQueue struct {
	pending     []queued
	maxPending  int
	perWindow   int
	windowTicks int
	counter     int
	process     func(q queued)
	onRemoval   func(e *world.Entity)
}

func newSpawnQueue(perWindow, windowTicks int, process func(queued), onRemoval func(*world.Entity)) *spawnQueue {
	if perWindow <= 0 {
		perWindow = DefaultSpawnsPerWindow
	}
	if windowTicks <= 0 {
		windowTicks = DefaultWindowTicks
	}
	return &spawnQueue{
		perWindow:   perWindow,
		windowTicks: windowTicks,
		process:     process,
		onRemoval:   onRemoval,
	}
}

func (q *spawnQueue) add(e *world.Entity, eligible func(*world.Entity) bool) {
	q.pending = append(q.pending, queued{entity: e, eligible: eligible})
	if n := len(q.pending); n > q.maxPending {
		q.maxPending = n
	}
}

func (q *spawnQueue) remove(e *world.Entity) bool {
	i := slices.IndexFunc(q.pending, func(x queued) bool { return x.entity == e })
	if i < 0 {
		return false
	}
	q.pending = slices.Delete(q.pending, i, i+1)
	q.onRemoval(e)
	return true
}

// tick advances the window and processes the next batch when it is due.
func (q *spawnQueue) tick() {
	q.counter++
	if q.counter < q.windowTicks {
		return
	}
	q.counter = 0
	for range q.perWindow {
		if len(q.pending) == 0 {
			return
		}
		next := q.pending[0]
		q.pending[0] = queued{}
		q.pending = q.pending[1:]
		q.process(next)
	}
}

func (q *spawnQueue) shutdown() {
	for _, x := range q.pending {
		q.onRemoval(x.entity)
	}
	q.pending = nil
	q.maxPending = 0
	q.counter = 0
}
