package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/chunk"
	"github.com/l1jgo/chunkact/internal/core/event"
)

type hostRecorder struct {
	events []any
}

func newHostRecorder(bus *event.Bus) *hostRecorder {
	r := &hostRecorder{}
	event.Subscribe(bus, func(e event.ChunkLoaded) { r.events = append(r.events, e) })
	event.Subscribe(bus, func(e event.ChunkUnloaded) { r.events = append(r.events, e) })
	event.Subscribe(bus, func(e event.WorldLoaded) { r.events = append(r.events, e) })
	event.Subscribe(bus, func(e event.WorldUnloaded) { r.events = append(r.events, e) })
	event.Subscribe(bus, func(e event.PlayerJoined) { r.events = append(r.events, e) })
	event.Subscribe(bus, func(e event.PlayerTeleported) { r.events = append(r.events, e) })
	return r
}

func (r *hostRecorder) flush(bus *event.Bus) []any {
	bus.SwapBuffers()
	bus.DispatchAll()
	out := r.events
	r.events = nil
	return out
}

func TestChunkTrackerRefCounts(t *testing.T) {
	tr := NewChunkTracker()
	c := chunk.Coords{World: "w", X: 1, Z: 2}

	assert.True(t, tr.Hold(1, c))
	assert.False(t, tr.Hold(2, c))
	assert.False(t, tr.Hold(2, c))
	assert.Equal(t, 2, tr.Holders(c))

	assert.False(t, tr.Release(1, c))
	assert.False(t, tr.Release(1, c))
	assert.True(t, tr.Release(2, c))
	assert.False(t, tr.Held(c))
	assert.Zero(t, tr.Len())
}

func TestArea(t *testing.T) {
	a := Area(chunk.Coords{World: "w"}, 1)
	assert.Len(t, a, 9)
	assert.Contains(t, a, chunk.Coords{World: "w", X: -1, Z: 1})
	assert.Equal(t, []chunk.Coords{{World: "w"}}, Area(chunk.Coords{World: "w"}, 0))
}

func TestHostLoadWorldHoldsSpawnArea(t *testing.T) {
	bus := event.NewBus()
	rec := newHostRecorder(bus)
	h := NewHost(bus, 2, zap.NewNop())

	h.LoadWorld("w", chunk.Coords{X: 10, Z: 10}, 1)
	evs := rec.flush(bus)

	require.Len(t, evs, 10)
	assert.Equal(t, event.WorldLoaded{World: "w"}, evs[9])
	assert.True(t, h.IsChunkLoaded(chunk.Coords{World: "w", X: 11, Z: 9}))
	assert.False(t, h.IsChunkLoaded(chunk.Coords{World: "w", X: 12, Z: 10}))
	assert.Equal(t, []string{"w"}, h.Worlds())

	h.LoadWorld("w", chunk.Coords{}, 1)
	assert.Empty(t, rec.flush(bus))
}

func TestHostJoinWalkQuit(t *testing.T) {
	bus := event.NewBus()
	rec := newHostRecorder(bus)
	h := NewHost(bus, 1, zap.NewNop())
	h.LoadWorld("w", chunk.Coords{}, -1)
	rec.flush(bus)

	p := &Player{SessionID: 7, Name: "alice", World: "w"}
	require.True(t, h.Join(p))
	evs := rec.flush(bus)
	require.Len(t, evs, 10)
	assert.Equal(t, event.PlayerJoined{Player: p}, evs[9])
	assert.Equal(t, 9, h.LoadedChunks())

	// one chunk east: a column of three loads, a column of three unloads
	require.True(t, h.Walk(7, 16, 0))
	evs = rec.flush(bus)
	var loaded, unloaded int
	for _, e := range evs {
		switch ev := e.(type) {
		case event.ChunkLoaded:
			loaded++
			assert.Equal(t, int32(2), ev.Chunk.X)
		case event.ChunkUnloaded:
			unloaded++
			assert.Equal(t, int32(-1), ev.Chunk.X)
		}
	}
	assert.Equal(t, 3, loaded)
	assert.Equal(t, 3, unloaded)

	h.Quit(7)
	assert.False(t, p.Online())
	assert.Len(t, rec.flush(bus), 9)
	assert.Zero(t, h.LoadedChunks())
	assert.False(t, h.Walk(7, 0, 0))
}

func TestHostSharedChunksStayLoaded(t *testing.T) {
	bus := event.NewBus()
	rec := newHostRecorder(bus)
	h := NewHost(bus, 0, zap.NewNop())
	h.LoadWorld("w", chunk.Coords{}, 0)
	rec.flush(bus)

	require.True(t, h.Join(&Player{SessionID: 1, World: "w"}))
	assert.Equal(t, []any{event.PlayerJoined{Player: h.Player(1)}}, rec.flush(bus))

	h.Quit(1)
	assert.Empty(t, rec.flush(bus), "spawn chunk stays loaded")
	assert.True(t, h.IsChunkLoaded(chunk.Coords{World: "w"}))
}

func TestHostTeleport(t *testing.T) {
	bus := event.NewBus()
	rec := newHostRecorder(bus)
	h := NewHost(bus, 0, zap.NewNop())
	h.LoadWorld("a", chunk.Coords{}, -1)
	h.LoadWorld("b", chunk.Coords{}, -1)
	p := &Player{SessionID: 1, World: "a"}
	require.True(t, h.Join(p))
	rec.flush(bus)

	require.True(t, h.Teleport(1, "b", 40, -20))
	dest := chunk.Coords{World: "b", X: 2, Z: -2}
	assert.Equal(t, []any{
		event.ChunkLoaded{Chunk: dest},
		event.ChunkUnloaded{Chunk: chunk.Coords{World: "a"}},
		event.PlayerTeleported{Player: p, To: dest, HasDestination: true},
	}, rec.flush(bus))

	assert.False(t, h.Teleport(1, "nowhere", 0, 0))
	assert.Equal(t, []any{event.PlayerTeleported{Player: p}}, rec.flush(bus))
}

func TestHostUnloadWorld(t *testing.T) {
	bus := event.NewBus()
	rec := newHostRecorder(bus)
	h := NewHost(bus, 0, zap.NewNop())
	h.LoadWorld("w", chunk.Coords{}, 1)
	p := &Player{SessionID: 1, World: "w", X: 100}
	require.True(t, h.Join(p))
	rec.flush(bus)

	h.UnloadWorld("w")
	evs := rec.flush(bus)
	require.Len(t, evs, 11)
	assert.Equal(t, event.WorldUnloaded{World: "w"}, evs[10])
	assert.False(t, p.Online())
	assert.Zero(t, h.LoadedChunks())
	assert.False(t, h.IsWorldLoaded("w"))
	assert.False(t, h.Join(&Player{SessionID: 2, World: "w"}))
}
