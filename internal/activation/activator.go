package activation

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/chunk"
	"github.com/l1jgo/chunkact/internal/core/event"
	"github.com/l1jgo/chunkact/internal/sched"
	"github.com/l1jgo/chunkact/internal/world"
)

const (
	// DefaultActivationDelay defers chunk activation so that chunks loaded only
	// briefly never spawn their entities.
	DefaultActivationDelay = 20
	// DefaultImmediateRadius is the chunk radius around an arriving player that
	// is activated without delay. Zero activates only the player's own chunk.
	DefaultImmediateRadius = 2
)

const (
	reasonActivation   = "activation"
	reasonDeactivation = "deactivation"
)

// Actor is a player whose arrival triggers the eager activation of nearby chunks.
type Actor = event.Actor

// Index is the entity-location index. Every returned slice is a snapshot the
// activator may hold on to while callbacks mutate the index.
type Index interface {
	EntitiesInChunk(c chunk.Coords) []*world.Entity
	ChunksInWorld(world string) []chunk.Coords
	EntityCountInWorld(world string) int
}

// Ticker starts and stops entity ticking. Both calls are idempotent.
type Ticker interface {
	StartTicking(e *world.Entity)
	StopTicking(e *world.Entity)
}

// Spawner materializes and removes entities. Batch operations may queue work
// and must re-check eligible for every entity before acting on it.
type Spawner interface {
	SpawnBatch(c chunk.Coords, reason string, entities []*world.Entity, eligible func(*world.Entity) bool)
	DespawnBatch(c chunk.Coords, reason string, entities []*world.Entity, eligible func(*world.Entity) bool)
	SpawnImmediately(e *world.Entity)
	Despawn(e *world.Entity)
	OnEntityMoved(e *world.Entity, oldChunk chunk.Coords, activationChanged bool)
}

// Timer schedules one-shot callbacks on later ticks.
type Timer interface {
	ScheduleOnce(delayTicks int64, fn func()) *sched.Task
	NextTick(fn func()) *sched.Task
	Now() int64
}

// ChunkLoader is the host's view of which chunks and worlds are loaded.
type ChunkLoader interface {
	IsChunkLoaded(c chunk.Coords) bool
	ViewDistance() int
	Worlds() []string
}

// Observer receives a record of every completed activation or deactivation pass.
type Observer interface {
	ObservePass(p Pass)
}

// PassKind distinguishes activation from deactivation passes.
type PassKind byte

const (
	PassActivation PassKind = iota + 1
	PassDeactivation
)

func (k PassKind) String() string {
	if k == PassDeactivation {
		return reasonDeactivation
	}
	return reasonActivation
}

// Pass describes one chunk activation or deactivation.
type Pass struct {
	Kind     PassKind
	Chunk    chunk.Coords
	Entities int
	Duration time.Duration
	Tick     int64
	Aborted  bool // reversed by a nested request before completing
}

// Deps are the collaborators of the activator. Observer is optional.
type Deps struct {
	Index    Index
	Ticker   Ticker
	Spawner  Spawner
	Timer    Timer
	Loader   ChunkLoader
	Observer Observer
	Log      *zap.Logger
}

// Options tune the activation policy. A non-positive ActivationDelay selects
// the default; a negative ImmediateRadius disables eager activation.
type Options struct {
	ActivationDelay int64
	ImmediateRadius int
}

func DefaultOptions() Options {
	return Options{
		ActivationDelay: DefaultActivationDelay,
		ImmediateRadius: DefaultImmediateRadius,
	}
}

func (o Options) withDefaults() Options {
	if o.ActivationDelay <= 0 {
		o.ActivationDelay = DefaultActivationDelay
	}
	return o
}

// Stats is a point-in-time summary of the activator's state.
type Stats struct {
	Chunks             int
	Active             int
	Pending            int
	Deferred           int
	ActivationPasses   int
	DeactivationPasses int
	MaxDepth           int // deepest nesting of activation passes observed
	AvgActivation      time.Duration
	MaxActivation      time.Duration
}

type timings struct {
	count int
	total time.Duration
	max   time.Duration
}

func (t *timings) add(d time.Duration) {
	t.count++
	t.total += d
	if d > t.max {
		t.max = d
	}
}

func (t *timings) avg() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.total / time.Duration(t.count)
}

// Activator tracks the activation state of every chunk that contains entities
// and activates or deactivates those entities as chunks load and unload.
//
// At most one activation pass runs at a time: requests that arrive while a
// pass is running (from entity side effects) are queued and processed in
// order once it completes. Deactivation is never deferred; it flips the flags
// that a running activation pass checks before each step.
// Accessed only from the game loop goroutine, no locks.
type Activator struct {
	index    Index
	ticker   Ticker
	spawner  Spawner
	timer    Timer
	loader   ChunkLoader
	observer Observer
	log      *zap.Logger

	delay           int64
	immediateRadius int32

	chunks   map[chunk.Coords]*chunkEntry
	scratch  chunk.Scratch
	deferred deferredQueue

	activationInProgress bool
	draining             bool
	depth                int
	maxDepth             int

	activations   timings
	deactivations int
}

// New creates an activator. The immediate radius is capped by the loader's
// view distance at construction time.
func New(deps Deps, opts Options) *Activator {
	opts = opts.withDefaults()
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	radius := opts.ImmediateRadius
	if vd := deps.Loader.ViewDistance(); radius > vd {
		radius = vd
	}
	return &Activator{
		index:           deps.Index,
		ticker:          deps.Ticker,
		spawner:         deps.Spawner,
		timer:           deps.Timer,
		loader:          deps.Loader,
		observer:        deps.Observer,
		log:             log,
		delay:           opts.ActivationDelay,
		immediateRadius: int32(radius),
		chunks:          make(map[chunk.Coords]*chunkEntry),
	}
}

// ImmediateRadius returns the effective eager activation radius.
func (a *Activator) ImmediateRadius() int { return int(a.immediateRadius) }

// Shutdown reports and clears any residual state. Expected to run after all
// worlds were deactivated and all entities removed.
func (a *Activator) Shutdown() {
	a.activations = timings{}
	if len(a.chunks) != 0 {
		a.log.Warn("some chunk entries were not properly removed from the chunk activator",
			zap.Int("chunks", len(a.chunks)))
		for _, e := range a.chunks {
			e.cleanUp()
		}
		clear(a.chunks)
	}
	if a.deferred.len() != 0 {
		a.log.Warn("some deferred chunk activations were not properly removed from the chunk activator",
			zap.Int("deferred", a.deferred.len()))
		a.deferred.clear()
	}
}

// ---------- chunk entries ----------

func (a *Activator) entry(c chunk.Coords) *chunkEntry {
	return a.chunks[c]
}

// OnChunkAdded is called when the first entity entered a chunk.
func (a *Activator) OnChunkAdded(c chunk.Coords) {
	if _, ok := a.chunks[c]; ok {
		return
	}
	a.chunks[c] = newChunkEntry(c)
}

// OnChunkRemoved is called when the last entity left a chunk.
func (a *Activator) OnChunkRemoved(c chunk.Coords) {
	e := a.chunks[c]
	if e == nil {
		return
	}
	delete(a.chunks, c)
	a.cancelDeferredActivation(e)
	e.cleanUp()
}

// IsChunkActive reports whether the chunk's entities are currently active.
func (a *Activator) IsChunkActive(c chunk.Coords) bool {
	e := a.entry(c)
	return e != nil && e.active
}

// ChunkState returns the activation state of the chunk.
func (a *Activator) ChunkState(c chunk.Coords) State {
	e := a.entry(c)
	if e == nil {
		return StateUnknown
	}
	return e.state()
}

// ShouldBeActive returns the chunk's target activation state.
func (a *Activator) ShouldBeActive(c chunk.Coords) bool {
	e := a.entry(c)
	return e != nil && e.shouldBeActive
}

// IsActivationDeferred reports whether the chunk waits in the deferred queue.
func (a *Activator) IsActivationDeferred(c chunk.Coords) bool {
	e := a.entry(c)
	return e != nil && a.deferred.contains(e)
}

func (a *Activator) Stats() Stats {
	s := Stats{
		Chunks:             len(a.chunks),
		Deferred:           a.deferred.len(),
		ActivationPasses:   a.activations.count,
		DeactivationPasses: a.deactivations,
		MaxDepth:           a.maxDepth,
		AvgActivation:      a.activations.avg(),
		MaxActivation:      a.activations.max,
	}
	for _, e := range a.chunks {
		switch e.state() {
		case StateActive:
			s.Active++
		case StatePending:
			s.Pending++
		}
	}
	return s
}

// ---------- entity activation ----------

// CheckEntityActivation aligns an entity's activation state with the state of
// the chunk it was just added or moved to.
func (a *Activator) CheckEntityActivation(ent *world.Entity) {
	c, ok := ent.LastChunk()
	if !ok || ent.Virtual {
		return
	}
	e := a.entry(c)
	if e == nil {
		a.log.Warn("entity in chunk without activation entry",
			zap.String("entity", ent.Name), zap.Stringer("chunk", c))
		return
	}
	if e.active {
		a.activateEntity(ent)
	} else {
		a.DeactivateEntity(ent)
	}
}

func (a *Activator) activateEntity(ent *world.Entity) {
	if ent.IsActive() {
		return
	}
	ent.SetActive(true)
	a.ticker.StartTicking(ent)
	if !ent.IsActive() {
		return
	}
	a.spawner.SpawnImmediately(ent)
}

// DeactivateEntity deactivates a single entity, e.g. because it is about to
// be removed. The entity must still be filed under its chunk.
func (a *Activator) DeactivateEntity(ent *world.Entity) {
	if ent.Virtual || !ent.IsActive() {
		return
	}
	ent.SetActive(false)
	a.ticker.StopTicking(ent)
	if ent.IsActive() {
		return
	}
	a.spawner.Despawn(ent)
}

// OnEntityMoved updates the activation state of an entity that moved from
// oldChunk to its current chunk and informs the spawner.
func (a *Activator) OnEntityMoved(ent *world.Entity, oldChunk chunk.Coords) {
	wasActive := ent.IsActive()
	a.CheckEntityActivation(ent)
	a.spawner.OnEntityMoved(ent, oldChunk, ent.IsActive() != wasActive)
}

// OnEntityAdded implements world.ChangeListener.
func (a *Activator) OnEntityAdded(ent *world.Entity) { a.CheckEntityActivation(ent) }

// OnEntityRemoving implements world.ChangeListener.
func (a *Activator) OnEntityRemoving(ent *world.Entity) { a.DeactivateEntity(ent) }

// ---------- chunk activation ----------

// OnChunkLoad starts the delayed activation of a freshly loaded chunk.
func (a *Activator) OnChunkLoad(c chunk.Coords) {
	e := a.entry(c)
	if e == nil {
		return
	}
	if !a.loader.IsChunkLoaded(c) {
		// Load events arrive a tick late, so a chunk that was loaded and
		// unloaded again in the meantime is ordinary churn.
		if e.active || e.shouldBeActive || e.isActivationDelayed() {
			a.log.Warn("chunk load reported for a chunk that is not loaded", zap.Stringer("chunk", c))
		} else {
			a.log.Debug("chunk unloaded again before its load was processed", zap.Stringer("chunk", c))
		}
		return
	}
	switch {
	case e.active:
		a.log.Debug("chunk load for already active chunk", zap.Stringer("chunk", c))
		return
	case e.isActivationDelayed():
		a.log.Debug("chunk load for chunk with already delayed activation", zap.Stringer("chunk", c))
		return
	}
	a.startDelayedActivation(e)
}

func (a *Activator) startDelayedActivation(e *chunkEntry) {
	e.setDelayedActivation(a.timer.ScheduleOnce(a.delay, func() {
		e.delayed = nil
		if !a.loader.IsChunkLoaded(e.coords) {
			a.log.Warn("delayed activation fired for a chunk that is not loaded", zap.Stringer("chunk", e.coords))
			return
		}
		a.activateChunk(e)
	}))
}

// ActivatePendingNearbyChunksDelayed activates the chunks around the actor
// that are pending a delayed activation, one tick from now so the arrival is
// fully processed first.
func (a *Activator) ActivatePendingNearbyChunksDelayed(actor Actor) {
	a.timer.NextTick(func() {
		if !actor.Online() {
			return
		}
		w, bx, bz := actor.Position()
		a.ActivatePendingNearbyChunks(w, chunk.FromBlock(bx), chunk.FromBlock(bz), a.ImmediateRadius())
	})
}

// ActivatePendingNearbyChunks immediately activates the chunks within radius
// of the given chunk that are pending a delayed activation.
func (a *Activator) ActivatePendingNearbyChunks(w string, cx, cz int32, radius int) {
	if radius < 0 {
		return
	}
	r := int32(radius)
	for x := cx - r; x <= cx+r; x++ {
		for z := cz - r; z <= cz+r; z++ {
			e := a.chunks[a.scratch.Set(w, x, z)]
			if e == nil || !e.isActivationDelayed() {
				continue
			}
			a.activateChunk(e)
		}
	}
	a.scratch.Reset()
}

// RequestActivation activates the chunk's entities unless it is already
// active. While another activation pass is running the request is queued.
func (a *Activator) RequestActivation(c chunk.Coords) {
	if e := a.entry(c); e != nil {
		a.activateChunk(e)
	}
}

// RequestDeactivation deactivates the chunk's entities, or cancels a pending
// activation if the chunk is not active yet.
func (a *Activator) RequestDeactivation(c chunk.Coords) {
	if e := a.entry(c); e != nil {
		a.deactivateChunk(e)
	}
}

// OnChunkUnload deactivates the chunk.
func (a *Activator) OnChunkUnload(c chunk.Coords) {
	a.RequestDeactivation(c)
}

// cancelDeferredActivation also resets the chunk's target state.
func (a *Activator) cancelDeferredActivation(e *chunkEntry) {
	if e.shouldBeActive {
		e.shouldBeActive = false
		a.deferred.remove(e)
	}
}

func (a *Activator) activateChunk(e *chunkEntry) {
	c := e.coords
	if !a.loader.IsChunkLoaded(c) {
		a.log.Warn("activation requested for a chunk that is not loaded", zap.Stringer("chunk", c))
		a.cancelDeferredActivation(e)
		e.cancelDelayedActivation()
		return
	}

	wasShouldBeActive := e.shouldBeActive
	e.shouldBeActive = true

	if e.active {
		if e.isActivationDelayed() || a.deferred.contains(e) {
			a.log.Warn("active chunk still pending activation", zap.Stringer("chunk", c))
			e.cancelDelayedActivation()
			a.deferred.remove(e)
		}
		return
	}

	e.cancelDelayedActivation()

	if a.activationInProgress {
		if wasShouldBeActive {
			// Either queued already, or part of a bulk scan that reaches it later.
			a.log.Debug("ignoring activation request, chunk already pending activation", zap.Stringer("chunk", c))
			return
		}
		a.log.Debug("activation in progress, deferring chunk activation", zap.Stringer("chunk", c))
		a.deferred.push(e)
		return
	}

	a.runActivation(e)
}

// runActivation executes one activation pass with the guard held and then
// drains the deferred queue. Passes started from the drain loop never drain
// themselves, so passes run one after another instead of nesting.
func (a *Activator) runActivation(e *chunkEntry) {
	defer a.drainDeferred()

	a.activationInProgress = true
	a.depth++
	if a.depth > a.maxDepth {
		a.maxDepth = a.depth
	}
	start := time.Now()
	defer func() {
		a.depth--
		a.activationInProgress = false
	}()

	entities, aborted := a.activateEntities(e)
	d := time.Since(start)
	a.activations.add(d)
	a.observe(Pass{
		Kind:     PassActivation,
		Chunk:    e.coords,
		Entities: len(entities),
		Duration: d,
		Aborted:  aborted,
	})
}

func (a *Activator) activateEntities(e *chunkEntry) (entities []*world.Entity, aborted bool) {
	c := e.coords
	entities = a.index.EntitiesInChunk(c)
	a.log.Debug("activating chunk", zap.Stringer("chunk", c), zap.Int("entities", len(entities)))

	e.setActive(true)
	for _, ent := range entities {
		ent.SetActive(true)
	}

	for _, ent := range entities {
		if !e.active {
			return entities, true
		}
		if !ent.IsActive() {
			continue
		}
		// Moved entities still complete their activation: they are already
		// marked active, so nothing else will start them.
		a.ticker.StartTicking(ent)
	}
	if !e.active {
		return entities, true
	}

	a.spawner.SpawnBatch(c, reasonActivation, entities, isActive)
	return entities, false
}

func (a *Activator) drainDeferred() {
	if a.draining {
		return
	}
	a.draining = true
	defer func() { a.draining = false }()

	for e := a.deferred.pop(); e != nil; e = a.deferred.pop() {
		if !e.shouldBeActive {
			continue
		}
		if a.chunks[e.coords] != e {
			continue
		}
		a.activateChunk(e)
	}
}

func (a *Activator) deactivateChunk(e *chunkEntry) {
	c := e.coords
	if !e.active {
		a.cancelDeferredActivation(e)
		e.cancelDelayedActivation()
		return
	}

	e.setActive(false)
	entities := a.index.EntitiesInChunk(c)
	a.log.Debug("deactivating chunk", zap.Stringer("chunk", c), zap.Int("entities", len(entities)))

	start := time.Now()
	aborted := a.deactivateEntities(e, entities)
	a.deactivations++
	a.observe(Pass{
		Kind:     PassDeactivation,
		Chunk:    c,
		Entities: len(entities),
		Duration: time.Since(start),
		Aborted:  aborted,
	})
}

func (a *Activator) deactivateEntities(e *chunkEntry, entities []*world.Entity) (aborted bool) {
	for _, ent := range entities {
		ent.SetActive(false)
	}
	for _, ent := range entities {
		if e.active {
			return true
		}
		if ent.IsActive() {
			continue
		}
		a.ticker.StopTicking(ent)
	}
	if e.active {
		return true
	}
	a.spawner.DespawnBatch(e.coords, reasonDeactivation, entities, isInactive)
	return false
}

func (a *Activator) observe(p Pass) {
	if a.observer == nil {
		return
	}
	p.Tick = a.timer.Now()
	a.observer.ObservePass(p)
}

func isActive(e *world.Entity) bool   { return e.IsActive() }
func isInactive(e *world.Entity) bool { return !e.IsActive() }

// ---------- worlds ----------

// ActivateChunks activates every loaded chunk of the world that contains
// entities and is neither active nor pending. Called during an activation
// pass, the marked chunks are queued behind it.
func (a *Activator) ActivateChunks(w string) {
	n := a.index.EntityCountInWorld(w)
	if n == 0 {
		return
	}
	a.log.Debug("activating entities in world", zap.String("world", w), zap.Int("entities", n))

	chunks := a.index.ChunksInWorld(w)
	// Mark first, so that entity side effects of the activations below
	// observe the final target state of every chunk in the world.
	for _, c := range chunks {
		e := a.entry(c)
		if e == nil {
			continue
		}
		if e.needsActivation() && a.loader.IsChunkLoaded(c) {
			e.shouldBeActive = true
		}
	}
	for _, c := range chunks {
		e := a.entry(c)
		if e == nil || !e.shouldBeActive {
			continue
		}
		if a.activationInProgress {
			if !e.active && !a.deferred.contains(e) {
				a.deferred.push(e)
			}
			continue
		}
		a.activateChunk(e)
	}
}

// DeactivateChunks deactivates every chunk of the world.
func (a *Activator) DeactivateChunks(w string) {
	n := a.index.EntityCountInWorld(w)
	if n == 0 {
		return
	}
	a.log.Debug("deactivating entities in world", zap.String("world", w), zap.Int("entities", n))

	chunks := a.index.ChunksInWorld(w)
	for _, c := range chunks {
		if e := a.entry(c); e != nil {
			e.shouldBeActive = false
			a.deferred.remove(e)
		}
	}
	for _, c := range chunks {
		e := a.entry(c)
		if e == nil || e.shouldBeActive {
			continue
		}
		a.deactivateChunk(e)
	}
}

// ActivateAllWorlds activates the loaded chunks of every loaded world.
func (a *Activator) ActivateAllWorlds() {
	for _, w := range a.loader.Worlds() {
		a.ActivateChunks(w)
	}
}

// DeactivateAllWorlds deactivates the chunks of every loaded world.
func (a *Activator) DeactivateAllWorlds() {
	for _, w := range a.loader.Worlds() {
		a.DeactivateChunks(w)
	}
}
