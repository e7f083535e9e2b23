package activation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/l1jgo/chunkact/internal/chunk"
	"github.com/l1jgo/chunkact/internal/sched"
	"github.com/l1jgo/chunkact/internal/world"
)

// ---------- fakes ----------

type fakeLoader struct {
	loaded       map[chunk.Coords]bool
	worlds       []string
	viewDistance int
}

func (l *fakeLoader) IsChunkLoaded(c chunk.Coords) bool { return l.loaded[c] }
func (l *fakeLoader) ViewDistance() int                 { return l.viewDistance }
func (l *fakeLoader) Worlds() []string                  { return l.worlds }

type fakeTicker struct {
	calls   *[]string
	onStart func(e *world.Entity)
}

func (t *fakeTicker) StartTicking(e *world.Entity) {
	if e.IsTicking() {
		return
	}
	e.SetTicking(true)
	*t.calls = append(*t.calls, "start "+e.Name)
	if t.onStart != nil {
		t.onStart(e)
	}
}

func (t *fakeTicker) StopTicking(e *world.Entity) {
	if !e.IsTicking() {
		return
	}
	e.SetTicking(false)
	*t.calls = append(*t.calls, "stop "+e.Name)
}

type fakeSpawner struct {
	calls *[]string
}

func names(entities []*world.Entity, eligible func(*world.Entity) bool) string {
	var out []string
	for _, e := range entities {
		if eligible == nil || eligible(e) {
			out = append(out, e.Name)
		}
	}
	return "[" + strings.Join(out, " ") + "]"
}

func (s *fakeSpawner) SpawnBatch(c chunk.Coords, reason string, entities []*world.Entity, eligible func(*world.Entity) bool) {
	*s.calls = append(*s.calls, fmt.Sprintf("spawn %s %s %s", c, reason, names(entities, eligible)))
}

func (s *fakeSpawner) DespawnBatch(c chunk.Coords, reason string, entities []*world.Entity, eligible func(*world.Entity) bool) {
	*s.calls = append(*s.calls, fmt.Sprintf("despawn %s %s %s", c, reason, names(entities, eligible)))
}

func (s *fakeSpawner) SpawnImmediately(e *world.Entity) {
	*s.calls = append(*s.calls, "spawn-now "+e.Name)
}

func (s *fakeSpawner) Despawn(e *world.Entity) {
	*s.calls = append(*s.calls, "despawn-now "+e.Name)
}

func (s *fakeSpawner) OnEntityMoved(e *world.Entity, old chunk.Coords, changed bool) {
	*s.calls = append(*s.calls, fmt.Sprintf("moved %s from %s changed=%v", e.Name, old, changed))
}

type passRecorder struct {
	passes []Pass
}

func (r *passRecorder) ObservePass(p Pass) { r.passes = append(r.passes, p) }

func (r *passRecorder) count(kind PassKind) int {
	n := 0
	for _, p := range r.passes {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	reg    *world.Registry
	sched  *sched.Scheduler
	loader *fakeLoader
	ticker *fakeTicker
	passes *passRecorder
	act    *Activator
	logs   *observer.ObservedLogs
	calls  []string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	h := &harness{
		reg:    world.NewRegistry(log),
		sched:  sched.New(),
		loader: &fakeLoader{loaded: map[chunk.Coords]bool{}, worlds: []string{"w"}, viewDistance: 10},
		passes: &passRecorder{},
		logs:   logs,
	}
	h.ticker = &fakeTicker{calls: &h.calls}
	h.act = New(Deps{
		Index:    h.reg,
		Ticker:   h.ticker,
		Spawner:  &fakeSpawner{calls: &h.calls},
		Timer:    h.sched,
		Loader:   h.loader,
		Observer: h.passes,
		Log:      log,
	}, opts)
	h.reg.SetListener(h.act)
	return h
}

func cc(x, z int32) chunk.Coords { return chunk.Coords{World: "w", X: x, Z: z} }

// add places a named entity in the middle of the given chunk.
func (h *harness) add(name string, c chunk.Coords) *world.Entity {
	e := &world.Entity{Name: name, World: c.World, X: c.X*chunk.Size + 8, Z: c.Z*chunk.Size + 8}
	h.reg.Add(e)
	return e
}

func (h *harness) load(cs ...chunk.Coords) {
	for _, c := range cs {
		h.loader.loaded[c] = true
		h.act.OnChunkLoad(c)
	}
}

func (h *harness) unload(cs ...chunk.Coords) {
	for _, c := range cs {
		delete(h.loader.loaded, c)
		h.act.OnChunkUnload(c)
	}
}

func (h *harness) markLoaded(cs ...chunk.Coords) {
	for _, c := range cs {
		h.loader.loaded[c] = true
	}
}

func (h *harness) advance(ticks int) {
	for range ticks {
		h.sched.Advance()
	}
}

func (h *harness) takeCalls() []string {
	out := h.calls
	h.calls = nil
	return out
}

// ---------- lifecycle ----------

func TestEndToEndLoadDebounceUnload(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)

	assert.Equal(t, StateUnknown, h.act.ChunkState(c))
	e := h.add("E", c)
	assert.Equal(t, StateInactive, h.act.ChunkState(c))
	assert.False(t, e.IsActive())
	assert.Empty(t, h.takeCalls())

	h.load(c)
	assert.Equal(t, StatePending, h.act.ChunkState(c))

	h.advance(DefaultActivationDelay - 1)
	assert.Equal(t, StatePending, h.act.ChunkState(c))
	assert.Empty(t, h.calls)

	h.advance(1)
	assert.Equal(t, StateActive, h.act.ChunkState(c))
	assert.True(t, e.IsActive())
	assert.Equal(t, []string{"start E", "spawn w,0,0 activation [E]"}, h.takeCalls())

	h.unload(c)
	assert.Equal(t, StateInactive, h.act.ChunkState(c))
	assert.False(t, e.IsActive())
	assert.Equal(t, []string{"stop E", "despawn w,0,0 deactivation [E]"}, h.takeCalls())

	require.Len(t, h.passes.passes, 2)
	assert.Equal(t, PassActivation, h.passes.passes[0].Kind)
	assert.Equal(t, int64(DefaultActivationDelay), h.passes.passes[0].Tick)
	assert.Equal(t, 1, h.passes.passes[0].Entities)
	assert.Equal(t, PassDeactivation, h.passes.passes[1].Kind)
}

func TestEntryRemovedWithLastEntity(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(3, 3)
	a := h.add("a", c)
	b := h.add("b", c)
	h.load(c)

	h.reg.Remove(a)
	assert.Equal(t, StatePending, h.act.ChunkState(c))
	h.reg.Remove(b)
	assert.Equal(t, StateUnknown, h.act.ChunkState(c))
	assert.Zero(t, h.sched.Pending(), "debounce cancelled with the entry")

	h.advance(DefaultActivationDelay * 2)
	assert.Empty(t, h.calls)
}

func TestRequestActivationIsIdempotent(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(1, 0)
	h.add("E", c)
	h.markLoaded(c)

	h.act.RequestActivation(c)
	h.act.RequestActivation(c)

	assert.Equal(t, []string{"start E", "spawn w,1,0 activation [E]"}, h.calls)
	assert.True(t, h.act.IsChunkActive(c))
	assert.True(t, h.act.ShouldBeActive(c))
	assert.Equal(t, 1, h.passes.count(PassActivation))
}

func TestRequestOnChunkWithoutEntitiesIsNoop(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(9, 9)
	h.markLoaded(c)
	h.act.RequestActivation(c)
	h.act.RequestDeactivation(c)
	h.load(c)
	assert.Empty(t, h.calls)
	assert.Zero(t, h.act.Stats().Chunks)
}

func TestLoadThenUnloadBeforeDelayDoesNothing(t *testing.T) {
	for _, after := range []int{0, 1, DefaultActivationDelay - 1} {
		t.Run(fmt.Sprintf("after %d ticks", after), func(t *testing.T) {
			h := newHarness(t, DefaultOptions())
			c := cc(-2, 5)
			h.add("E", c)

			h.load(c)
			h.advance(after)
			h.unload(c)
			h.advance(DefaultActivationDelay * 2)

			assert.Empty(t, h.calls)
			assert.Equal(t, StateInactive, h.act.ChunkState(c))
			assert.False(t, h.act.ShouldBeActive(c))
			assert.Zero(t, h.sched.Pending())
			assert.Empty(t, h.passes.passes)
		})
	}
}

func TestRepeatedLoadKeepsSingleDebounce(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("E", c)

	h.load(c)
	h.advance(5)
	h.act.OnChunkLoad(c)
	assert.Equal(t, 1, h.sched.Pending())
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("already delayed activation").Len())

	h.advance(DefaultActivationDelay - 5)
	assert.True(t, h.act.IsChunkActive(c))

	h.act.OnChunkLoad(c)
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("already active chunk").Len())
	assert.Equal(t, 1, h.passes.count(PassActivation))
}

func TestLoadOfUnloadedChunkIsLoggedAndSkipped(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("E", c)
	h.load(c)

	delete(h.loader.loaded, c) // loader disagrees without an unload
	h.act.OnChunkLoad(c)
	warn := h.logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet("not loaded")
	assert.Equal(t, 1, warn.Len())
	assert.Equal(t, StatePending, h.act.ChunkState(c))
	assert.Equal(t, 1, h.sched.Pending())
}

func TestLateLoadOfUnloadedChunkIsChurn(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("E", c)

	h.act.OnChunkLoad(c) // already unloaded again
	assert.Zero(t, h.logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("unloaded again").Len())
	assert.Equal(t, StateInactive, h.act.ChunkState(c))
	assert.Zero(t, h.sched.Pending())
}

func TestConfiguredActivationDelay(t *testing.T) {
	h := newHarness(t, Options{ActivationDelay: 3, ImmediateRadius: 1})
	c := cc(0, 0)
	h.add("E", c)
	h.load(c)
	h.advance(2)
	assert.False(t, h.act.IsChunkActive(c))
	h.advance(1)
	assert.True(t, h.act.IsChunkActive(c))
}

// ---------- reentrancy ----------

func TestNestedActivationRequestsAreDeferredAndSequential(t *testing.T) {
	const n = 50
	h := newHarness(t, DefaultOptions())
	p := cc(0, 0)
	others := make([]chunk.Coords, n)
	for i := range others {
		others[i] = cc(int32(i+1), 0)
		h.add(fmt.Sprintf("o%d", i), others[i])
	}
	h.add("trigger", p)
	h.markLoaded(append(others, p)...)

	var depthDuringStart []int
	h.ticker.onStart = func(e *world.Entity) {
		depthDuringStart = append(depthDuringStart, h.act.depth)
		if e.Name != "trigger" {
			return
		}
		for _, c := range others {
			h.act.RequestActivation(c)
			h.act.RequestActivation(c) // already queued: ignored
		}
		assert.Equal(t, n, h.act.Stats().Deferred)
		assert.True(t, h.act.IsActivationDeferred(others[0]))
		assert.False(t, h.act.IsChunkActive(others[0]))
	}

	h.act.RequestActivation(p)

	require.Len(t, h.passes.passes, n+1)
	assert.Equal(t, p, h.passes.passes[0].Chunk)
	for i, c := range others {
		assert.Equal(t, c, h.passes.passes[i+1].Chunk, "FIFO drain order")
		assert.True(t, h.act.IsChunkActive(c))
	}
	for _, d := range depthDuringStart {
		assert.Equal(t, 1, d)
	}
	st := h.act.Stats()
	assert.Equal(t, 1, st.MaxDepth)
	assert.Zero(t, st.Deferred)
	assert.Equal(t, n+1, st.ActivationPasses)
	assert.Equal(t, n+1, st.Active)
}

func TestWorldDeactivationDuringPassDropsDeferredChunk(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p, q := cc(0, 0), cc(3, 0)
	h.add("trigger", p)
	h.add("Q", q)
	h.markLoaded(p, q)

	h.ticker.onStart = func(e *world.Entity) {
		if e.Name != "trigger" {
			return
		}
		h.act.RequestActivation(q)
		require.True(t, h.act.IsActivationDeferred(q))

		h.act.DeactivateChunks("w")
		assert.False(t, h.act.IsActivationDeferred(q))
		assert.Zero(t, h.act.Stats().Deferred)

		h.act.RequestActivation(q)
		assert.Equal(t, 1, h.act.Stats().Deferred, "queued once")
	}
	h.act.RequestActivation(p)

	assert.False(t, h.act.IsChunkActive(p))
	assert.True(t, h.act.IsChunkActive(q))
	assert.Zero(t, h.act.Stats().Deferred)
	assert.Equal(t, 2, h.passes.count(PassActivation))
	assert.Equal(t, 1, h.passes.count(PassDeactivation))
}

func TestActivateChunksDuringPassQueuesMarkedChunks(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p, q, r := cc(0, 0), cc(3, 0), cc(6, 0)
	h.add("trigger", p)
	h.add("Q", q)
	h.add("R", r)
	h.markLoaded(p, q, r)

	h.ticker.onStart = func(e *world.Entity) {
		if e.Name != "trigger" {
			return
		}
		h.act.RequestActivation(r)
		h.act.ActivateChunks("w")
		assert.True(t, h.act.IsActivationDeferred(q))
		assert.Equal(t, 2, h.act.Stats().Deferred, "r is not queued twice")
	}
	h.act.RequestActivation(p)

	for _, c := range []chunk.Coords{p, q, r} {
		assert.Equal(t, StateActive, h.act.ChunkState(c), c.String())
	}
	require.Len(t, h.passes.passes, 3)
	assert.Equal(t, r, h.passes.passes[1].Chunk)
	assert.Equal(t, q, h.passes.passes[2].Chunk)
	assert.Zero(t, h.act.Stats().Deferred)
}

func TestDeactivationDuringActivationAbortsLoop(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := cc(0, 0)
	h.add("A", p)
	h.add("B", p)
	h.add("C", p)
	h.markLoaded(p)

	h.ticker.onStart = func(e *world.Entity) {
		if e.Name == "A" {
			h.act.RequestDeactivation(p)
		}
	}
	h.act.RequestActivation(p)

	assert.Equal(t, []string{
		"start A",
		"stop A",
		"despawn w,0,0 deactivation [A B C]",
	}, h.calls)
	assert.False(t, h.act.IsChunkActive(p))
	assert.False(t, h.act.ShouldBeActive(p))
	require.Len(t, h.passes.passes, 2)
	assert.Equal(t, PassDeactivation, h.passes.passes[0].Kind)
	assert.True(t, h.passes.passes[1].Aborted)
}

func TestDeferredActivationCancelledByDeactivation(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p, q := cc(0, 0), cc(1, 0)
	h.add("trigger", p)
	h.add("Q", q)
	h.markLoaded(p, q)

	h.ticker.onStart = func(e *world.Entity) {
		if e.Name != "trigger" {
			return
		}
		h.act.RequestActivation(q)
		require.True(t, h.act.IsActivationDeferred(q))
		h.act.RequestDeactivation(q)
		assert.False(t, h.act.IsActivationDeferred(q))
	}
	h.act.RequestActivation(p)

	assert.False(t, h.act.IsChunkActive(q))
	assert.NotContains(t, h.calls, "start Q")
	assert.Equal(t, 1, h.passes.count(PassActivation))
}

func TestDeferredActivationDroppedWithChunk(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p, q := cc(0, 0), cc(1, 0)
	h.add("trigger", p)
	qe := h.add("Q", q)
	h.markLoaded(p, q)

	h.ticker.onStart = func(e *world.Entity) {
		if e.Name != "trigger" {
			return
		}
		h.act.RequestActivation(q)
		h.reg.Remove(qe)
	}
	h.act.RequestActivation(p)

	assert.Equal(t, StateUnknown, h.act.ChunkState(q))
	assert.Zero(t, h.act.Stats().Deferred)
	assert.Equal(t, 1, h.passes.count(PassActivation))
}

func TestEntityDeactivatedMidLoopIsSkipped(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	p := cc(0, 0)
	h.add("A", p)
	b := h.add("B", p)
	h.add("C", p)
	h.markLoaded(p)

	h.ticker.onStart = func(e *world.Entity) {
		if e.Name == "A" {
			h.reg.Remove(b)
		}
	}
	h.act.RequestActivation(p)

	assert.Equal(t, []string{
		"start A",
		"despawn-now B",
		"start C",
		"spawn w,0,0 activation [A C]",
	}, h.calls)
}

// ---------- proximity ----------

type actor struct {
	world  string
	x, z   int32
	online bool
}

func (a *actor) Online() bool { return a.online }
func (a *actor) Position() (string, int32, int32) {
	return a.world, a.x, a.z
}

func TestArrivalActivatesPendingChunksInRadius(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	near, edge, far := cc(1, -1), cc(-2, 2), cc(3, 0)
	for _, c := range []chunk.Coords{near, edge, far} {
		h.add("e"+c.String(), c)
	}
	h.load(near, edge, far)
	h.advance(5)

	h.act.ActivatePendingNearbyChunksDelayed(&actor{world: "w", x: 8, z: 8, online: true})
	assert.Equal(t, StatePending, h.act.ChunkState(near), "scan runs one tick later")

	h.advance(1)
	assert.True(t, h.act.IsChunkActive(near))
	assert.True(t, h.act.IsChunkActive(edge))
	assert.Equal(t, StatePending, h.act.ChunkState(far))
	assert.Equal(t, 2, h.passes.count(PassActivation))

	h.advance(DefaultActivationDelay)
	assert.True(t, h.act.IsChunkActive(far))
	assert.Equal(t, 3, h.passes.count(PassActivation))
}

func TestArrivalRadiusCappedByViewDistance(t *testing.T) {
	h := newHarness(t, Options{})
	h.loader.viewDistance = 1
	h.act = New(Deps{Index: h.reg, Ticker: h.ticker, Spawner: &fakeSpawner{calls: &h.calls}, Timer: h.sched, Loader: h.loader}, Options{ImmediateRadius: 2})
	h.reg.SetListener(h.act)
	assert.Equal(t, 1, h.act.ImmediateRadius())

	in, out := cc(1, 1), cc(2, 0)
	h.add("in", in)
	h.add("out", out)
	h.load(in, out)

	h.act.ActivatePendingNearbyChunksDelayed(&actor{world: "w", online: true})
	h.advance(1)
	assert.True(t, h.act.IsChunkActive(in))
	assert.False(t, h.act.IsChunkActive(out))
}

func TestArrivalIgnoredWhenActorLeft(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("E", c)
	h.load(c)

	a := &actor{world: "w", online: true}
	h.act.ActivatePendingNearbyChunksDelayed(a)
	a.online = false
	h.advance(1)
	assert.Equal(t, StatePending, h.act.ChunkState(c))
}

func TestArrivalInOtherWorldIsUnaffected(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("E", c)
	h.load(c)
	h.act.ActivatePendingNearbyChunks("nether", 0, 0, 2)
	assert.Equal(t, StatePending, h.act.ChunkState(c))
}

func TestArrivalDoesNotTouchInactiveChunks(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("E", c)
	h.markLoaded(c) // loaded but no debounce pending
	h.act.ActivatePendingNearbyChunks("w", 0, 0, 2)
	assert.Equal(t, StateInactive, h.act.ChunkState(c))
}

// ---------- bulk scans ----------

func TestActivateChunksActivatesEveryLoadedChunkOnce(t *testing.T) {
	const k = 6
	h := newHarness(t, DefaultOptions())
	var chunks []chunk.Coords
	for i := range k {
		c := cc(int32(i), int32(-i))
		chunks = append(chunks, c)
		h.add(fmt.Sprintf("e%d", i), c)
		h.add(fmt.Sprintf("f%d", i), c)
	}
	h.markLoaded(chunks...)
	unloaded := cc(100, 100)
	h.add("u", unloaded)

	h.act.ActivateChunks("w")

	require.Equal(t, k, h.passes.count(PassActivation))
	seen := map[chunk.Coords]bool{}
	for _, p := range h.passes.passes {
		assert.False(t, seen[p.Chunk], "duplicate pass for %s", p.Chunk)
		seen[p.Chunk] = true
	}
	spawns := 0
	for _, call := range h.calls {
		if strings.HasPrefix(call, "spawn ") {
			spawns++
		}
	}
	assert.Equal(t, k, spawns)
	assert.False(t, h.act.IsChunkActive(unloaded))
	assert.False(t, h.act.ShouldBeActive(unloaded))

	h.calls = nil
	h.act.ActivateChunks("w")
	assert.Empty(t, h.calls, "second scan finds nothing to do")
}

func TestActivateChunksSkipsPendingChunks(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	pending, loaded := cc(0, 0), cc(1, 0)
	h.add("p", pending)
	h.add("l", loaded)
	h.load(pending)
	h.markLoaded(loaded)

	h.act.ActivateChunks("w")
	assert.Equal(t, StatePending, h.act.ChunkState(pending))
	assert.True(t, h.act.IsChunkActive(loaded))
}

func TestActivateChunksWithCrossChunkSideEffects(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a, b := cc(0, 0), cc(1, 0)
	h.add("A", a)
	h.add("B", b)
	h.markLoaded(a, b)

	h.ticker.onStart = func(e *world.Entity) {
		if e.Name == "A" {
			h.act.RequestActivation(b) // already targeted by the scan
		}
	}
	h.act.ActivateChunks("w")

	assert.Equal(t, 2, h.passes.count(PassActivation))
	assert.Equal(t, []string{
		"start A",
		"spawn w,0,0 activation [A]",
		"start B",
		"spawn w,1,0 activation [B]",
	}, h.calls)
}

func TestDeactivateChunksMirrorsActivation(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	active, pending := cc(0, 0), cc(5, 5)
	h.add("A", active)
	h.add("P", pending)
	h.markLoaded(active)
	h.act.ActivateChunks("w")
	h.load(pending)
	h.calls = nil

	h.act.DeactivateChunks("w")
	assert.Equal(t, []string{"stop A", "despawn w,0,0 deactivation [A]"}, h.calls)
	assert.Equal(t, StateInactive, h.act.ChunkState(active))
	assert.Equal(t, StateInactive, h.act.ChunkState(pending))
	assert.Zero(t, h.sched.Pending())
}

func TestAllWorlds(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.loader.worlds = []string{"w", "nether"}
	a := cc(0, 0)
	b := chunk.Coords{World: "nether", X: 2}
	h.add("A", a)
	h.add("B", b)
	h.markLoaded(a, b)

	h.act.ActivateAllWorlds()
	assert.True(t, h.act.IsChunkActive(a))
	assert.True(t, h.act.IsChunkActive(b))

	h.act.DeactivateAllWorlds()
	assert.False(t, h.act.IsChunkActive(a))
	assert.False(t, h.act.IsChunkActive(b))
	assert.Equal(t, 2, h.act.Stats().DeactivationPasses)
}

// ---------- entity hooks ----------

func TestEntityAddedToActiveChunkSpawnsImmediately(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("A", c)
	h.markLoaded(c)
	h.act.RequestActivation(c)
	h.calls = nil

	b := h.add("B", c)
	assert.True(t, b.IsActive())
	assert.Equal(t, []string{"start B", "spawn-now B"}, h.takeCalls())

	h.reg.Remove(b)
	assert.Equal(t, []string{"stop B", "despawn-now B"}, h.takeCalls())
}

func TestEntityMovedBetweenChunks(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	on, off := cc(0, 0), cc(4, 0)
	h.add("anchor", on)
	e := h.add("E", on)
	h.add("other", off)
	h.markLoaded(on)
	h.act.RequestActivation(on)
	h.calls = nil

	h.reg.Move(e, "w", off.X*chunk.Size, 64, 0)
	assert.False(t, e.IsActive())
	assert.Equal(t, []string{"stop E", "despawn-now E", "moved E from w,0,0 changed=true"}, h.takeCalls())

	h.reg.Move(e, "w", 0, 64, 0)
	assert.True(t, e.IsActive())
	assert.Equal(t, []string{"start E", "spawn-now E", "moved E from w,4,0 changed=true"}, h.takeCalls())

	h.reg.Move(e, "w", 1, 64, 1) // same chunk
	assert.Empty(t, h.calls)
}

func TestVirtualEntitiesAreIgnored(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	v := &world.Entity{Name: "v", Virtual: true}
	h.reg.Add(v)
	h.act.CheckEntityActivation(v)
	h.reg.Remove(v)
	assert.Empty(t, h.calls)
	assert.Zero(t, h.act.Stats().Chunks)
}

// ---------- shutdown ----------

func TestShutdownClearsResidualState(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("E", c)
	h.load(c)

	h.act.Shutdown()
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("chunk entries were not properly removed").Len())
	assert.Zero(t, h.act.Stats().Chunks)
	assert.Zero(t, h.sched.Pending())
}

func TestCleanShutdownLogsNothing(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := cc(0, 0)
	h.add("E", c)
	h.markLoaded(c)
	h.act.ActivateAllWorlds()

	h.act.DeactivateAllWorlds()
	h.reg.RemoveAll()
	h.act.Shutdown()
	assert.Zero(t, h.logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestStatsCountsStates(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.add("a", cc(0, 0))
	h.add("b", cc(1, 0))
	h.add("c", cc(2, 0))
	h.markLoaded(cc(0, 0))
	h.act.RequestActivation(cc(0, 0))
	h.load(cc(1, 0))

	st := h.act.Stats()
	assert.Equal(t, 3, st.Chunks)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 1, st.ActivationPasses)
	assert.Equal(t, "pending", h.act.ChunkState(cc(1, 0)).String())
}
