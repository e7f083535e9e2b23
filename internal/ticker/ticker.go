package ticker

import (
	"time"

	"github.com/kamstrup/intmap"
	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/core/ecs"
	coresys "github.com/l1jgo/chunkact/internal/core/system"
	"github.com/l1jgo/chunkact/internal/world"
)

const (
	// DefaultPeriod is the number of ticks between two ticks of the same entity.
	DefaultPeriod = 20
	// DefaultGroups spreads the ticking entities over this many groups; one
	// group is ticked every Period/Groups ticks.
	DefaultGroups = 4
)

// Behavior is what a ticking entity does. Callbacks run on the game loop.
type Behavior interface {
	OnStartTicking(e *world.Entity)
	Tick(e *world.Entity)
	OnStopTicking(e *world.Entity)
}

// NopBehavior does nothing.
type NopBehavior struct{}

func (NopBehavior) OnStartTicking(*world.Entity) {}
func (NopBehavior) Tick(*world.Entity)           {}
func (NopBehavior) OnStopTicking(*world.Entity)  {}

type group struct {
	entities *intmap.Map[ecs.EntityID, *world.Entity]
}

// Ticker ticks the active entities. Entities are spread over a fixed number
// of groups by id, so each runner tick only processes a fraction of them.
//
// Start and stop requests made while a group is being ticked run their
// behaviour callbacks immediately, but the group membership change is applied
// after the group finished ticking (last request wins).
// Accessed only from the game loop goroutine, no locks.
type Ticker struct {
	behavior Behavior
	groups   []group
	interval int // runner ticks between two groups
	counter  int
	active   int // index of the group ticked next

	ticking bool
	pending map[*world.Entity]bool
	order   []*world.Entity // pending in request order

	ticks int64
	log   *zap.Logger
}

func New(behavior Behavior, period, groups int, log *zap.Logger) *Ticker {
	if behavior == nil {
		behavior = NopBehavior{}
	}
	if groups <= 0 {
		groups = DefaultGroups
	}
	if period < groups {
		period = groups
	}
	t := &Ticker{
		behavior: behavior,
		groups:   make([]group, groups),
		interval: period / groups,
		pending:  make(map[*world.Entity]bool),
		log:      log,
	}
	for i := range t.groups {
		t.groups[i].entities = intmap.New[ecs.EntityID, *world.Entity](64)
	}
	return t
}

func (t *Ticker) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (t *Ticker) Update(_ time.Duration) {
	t.counter++
	if t.counter < t.interval {
		return
	}
	t.counter = 0
	t.TickGroup()
}

// Len returns the number of registered ticking entities.
func (t *Ticker) Len() int {
	n := 0
	for _, g := range t.groups {
		n += g.entities.Len()
	}
	return n
}

// Ticks returns the number of entity ticks performed so far.
func (t *Ticker) Ticks() int64 { return t.ticks }

func (t *Ticker) groupOf(e *world.Entity) *group {
	return &t.groups[int(e.ID.Index())%len(t.groups)]
}

// StartTicking has no effect if the entity is already ticking.
func (t *Ticker) StartTicking(e *world.Entity) {
	if e.IsTicking() {
		return
	}
	e.SetTicking(true)
	t.log.Debug("ticking started", zap.String("entity", e.Name), zap.Bool("deferred", t.ticking))
	if t.ticking {
		t.deferChange(e, true)
	} else {
		t.groupOf(e).entities.Put(e.ID, e)
	}
	t.call("start", e, t.behavior.OnStartTicking)
}

// StopTicking has no effect if the entity is not ticking.
func (t *Ticker) StopTicking(e *world.Entity) {
	if !e.IsTicking() {
		return
	}
	e.SetTicking(false)
	t.log.Debug("ticking stopped", zap.String("entity", e.Name), zap.Bool("deferred", t.ticking))
	if t.ticking {
		t.deferChange(e, false)
	} else {
		t.groupOf(e).entities.Del(e.ID)
	}
	t.call("stop", e, t.behavior.OnStopTicking)
}

func (t *Ticker) deferChange(e *world.Entity, start bool) {
	if _, ok := t.pending[e]; !ok {
		t.order = append(t.order, e)
	}
	t.pending[e] = start
}

// TickGroup ticks the next group and applies the registration changes that
// were requested meanwhile.
func (t *Ticker) TickGroup() {
	g := &t.groups[t.active]

	t.ticking = true
	g.entities.ForEach(func(_ ecs.EntityID, e *world.Entity) bool {
		// Skip entities that were stopped while waiting for their turn.
		if e.IsTicking() {
			t.ticks++
			t.call("tick", e, t.behavior.Tick)
		}
		return true
	})
	t.ticking = false

	for _, e := range t.order {
		if t.pending[e] {
			t.groupOf(e).entities.Put(e.ID, e)
		} else {
			t.groupOf(e).entities.Del(e.ID)
		}
	}
	clear(t.pending)
	t.order = t.order[:0]

	t.active = (t.active + 1) % len(t.groups)
}

func (t *Ticker) call(what string, e *world.Entity, fn func(*world.Entity)) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("entity behaviour panicked",
				zap.String("during", what),
				zap.String("entity", e.Name),
				zap.Stringer("id", e.ID),
				zap.Any("panic", r),
			)
		}
	}()
	fn(e)
}

// Shutdown reports and clears any entities still registered.
func (t *Ticker) Shutdown() {
	if t.ticking {
		t.ticking = false
		t.clearAll()
		return
	}
	if t.Len() != 0 {
		t.log.Warn("some ticking entities were not properly unregistered", zap.Int("entities", t.Len()))
	}
	if len(t.pending) != 0 {
		t.log.Warn("unexpected pending ticking changes", zap.Int("pending", len(t.pending)))
	}
	t.clearAll()
}

func (t *Ticker) clearAll() {
	for _, g := range t.groups {
		g.entities.Clear()
	}
	clear(t.pending)
	t.order = t.order[:0]
}
