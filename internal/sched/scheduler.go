package sched

import (
	"container/heap"
	"time"

	coresys "github.com/l1jgo/chunkact/internal/core/system"
)

// Task is a one-shot callback scheduled on a future tick.
type Task struct {
	due       int64
	seq       uint64
	fn        func()
	cancelled bool
	done      bool
	index     int // heap index, -1 once popped
}

// Cancel prevents the task from running. Safe to call more than once,
// and after the task has already run.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.cancelled = true
	t.fn = nil
}

// Pending reports whether the task is still waiting to run.
func (t *Task) Pending() bool {
	return t != nil && !t.cancelled && !t.done
}

// Due returns the tick the task is scheduled for.
func (t *Task) Due() int64 { return t.due }

// Scheduler runs one-shot tasks on tick boundaries.
// Accessed only from the game loop goroutine, no locks.
type Scheduler struct {
	now     int64
	nextSeq uint64
	queue   taskHeap
}

func New() *Scheduler {
	return &Scheduler{
		queue: make(taskHeap, 0, 64),
	}
}

// Now returns the number of ticks advanced so far.
func (s *Scheduler) Now() int64 { return s.now }

// ScheduleOnce runs fn after delayTicks ticks. Delays below one tick are
// raised to one: nothing ever runs synchronously from the scheduling call.
func (s *Scheduler) ScheduleOnce(delayTicks int64, fn func()) *Task {
	if delayTicks < 1 {
		delayTicks = 1
	}
	s.nextSeq++
	t := &Task{due: s.now + delayTicks, seq: s.nextSeq, fn: fn}
	heap.Push(&s.queue, t)
	return t
}

// NextTick runs fn on the next tick.
func (s *Scheduler) NextTick(fn func()) *Task {
	return s.ScheduleOnce(1, fn)
}

// Cancel cancels t. Cancelled tasks are dropped lazily when they reach the
// head of the queue.
func (s *Scheduler) Cancel(t *Task) {
	t.Cancel()
}

// Pending returns the number of tasks that will still run.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.queue {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves to the next tick and runs all tasks due by then, ordered by
// due tick and then by scheduling order.
func (s *Scheduler) Advance() {
	s.now++
	for len(s.queue) > 0 {
		head := s.queue[0]
		if head.due > s.now {
			return
		}
		heap.Pop(&s.queue)
		if head.cancelled {
			continue
		}
		fn := head.fn
		head.fn = nil
		head.done = true
		fn()
	}
}

// Clear cancels every pending task.
func (s *Scheduler) Clear() {
	for _, t := range s.queue {
		t.Cancel()
	}
	s.queue = s.queue[:0]
}

// Phase implements system.System; the scheduler runs in the update phase.
func (s *Scheduler) Phase() coresys.Phase { return coresys.PhaseUpdate }

// Update implements system.System.
func (s *Scheduler) Update(_ time.Duration) {
	s.Advance()
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
