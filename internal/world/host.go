package world

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/chunk"
	"github.com/l1jgo/chunkact/internal/core/event"
)

// spawnHolder is the pseudo session that keeps a world's spawn area loaded.
const spawnHolder uint64 = 0

// Player is an actor moving through the worlds. Its presence keeps the
// chunks within the view distance loaded.
type Player struct {
	SessionID uint64
	Name      string
	World     string
	X         int32 // block coordinates
	Z         int32

	online bool
	held   []chunk.Coords
}

func (p *Player) Online() bool { return p.online }

func (p *Player) Position() (world string, blockX, blockZ int32) {
	return p.World, p.X, p.Z
}

func (p *Player) Chunk() chunk.Coords { return chunk.At(p.World, p.X, p.Z) }

type hostWorld struct {
	name        string
	spawn       chunk.Coords
	spawnRadius int32
}

// Host is the surrounding simulation: it owns the loaded worlds, the players
// and the chunk loading driven by them, and reports every change on the
// event bus. Accessed only from the game loop goroutine, no locks.
type Host struct {
	bus          *event.Bus
	viewDistance int32
	tracker      *ChunkTracker
	worlds       map[string]*hostWorld
	players      map[uint64]*Player
	log          *zap.Logger
}

func NewHost(bus *event.Bus, viewDistance int, log *zap.Logger) *Host {
	if viewDistance < 0 {
		viewDistance = 0
	}
	return &Host{
		bus:          bus,
		viewDistance: int32(viewDistance),
		tracker:      NewChunkTracker(),
		worlds:       make(map[string]*hostWorld),
		players:      make(map[uint64]*Player),
		log:          log,
	}
}

// ViewDistance returns the chunk radius each player keeps loaded.
func (h *Host) ViewDistance() int { return int(h.viewDistance) }

// IsWorldLoaded reports whether the world is loaded.
func (h *Host) IsWorldLoaded(world string) bool {
	_, ok := h.worlds[world]
	return ok
}

// IsChunkLoaded reports whether the chunk is loaded.
func (h *Host) IsChunkLoaded(c chunk.Coords) bool {
	if !h.IsWorldLoaded(c.World) {
		return false
	}
	return h.tracker.Held(c)
}

// LoadedChunks returns the number of loaded chunks across all worlds.
func (h *Host) LoadedChunks() int { return h.tracker.Len() }

// Worlds returns the names of the loaded worlds, sorted.
func (h *Host) Worlds() []string {
	out := make([]string, 0, len(h.worlds))
	for name := range h.worlds {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// LoadWorld loads a world and keeps the spawn area (spawnRadius chunks
// around spawn; negative = none) loaded for as long as the world is.
func (h *Host) LoadWorld(name string, spawn chunk.Coords, spawnRadius int) {
	if h.IsWorldLoaded(name) {
		return
	}
	spawn.World = name
	w := &hostWorld{name: name, spawn: spawn, spawnRadius: int32(spawnRadius)}
	h.worlds[name] = w
	if spawnRadius >= 0 {
		for _, c := range Area(spawn, w.spawnRadius) {
			h.hold(spawnHolder, c)
		}
	}
	h.log.Info("world loaded", zap.String("world", name))
	event.Emit(h.bus, event.WorldLoaded{World: name})
}

// UnloadWorld kicks the players in the world, unloads its chunks and the world.
func (h *Host) UnloadWorld(name string) {
	if !h.IsWorldLoaded(name) {
		return
	}
	for _, p := range h.Players() {
		if p.World == name {
			h.Quit(p.SessionID)
		}
	}
	dropped := h.tracker.DropWorld(name)
	slices.SortFunc(dropped, compareCoords)
	for _, c := range dropped {
		event.Emit(h.bus, event.ChunkUnloaded{Chunk: c})
	}
	delete(h.worlds, name)
	h.log.Info("world unloaded", zap.String("world", name))
	event.Emit(h.bus, event.WorldUnloaded{World: name})
}

// Join brings a player in-world at its current position.
func (h *Host) Join(p *Player) bool {
	if !h.IsWorldLoaded(p.World) {
		h.log.Warn("join into unloaded world", zap.String("player", p.Name), zap.String("world", p.World))
		return false
	}
	if _, dup := h.players[p.SessionID]; dup || p.SessionID == spawnHolder {
		return false
	}
	p.online = true
	h.players[p.SessionID] = p
	h.updateView(p)
	event.Emit(h.bus, event.PlayerJoined{Player: p})
	return true
}

// Quit removes the player and releases the chunks it kept loaded.
func (h *Host) Quit(sessionID uint64) {
	p, ok := h.players[sessionID]
	if !ok {
		return
	}
	p.online = false
	for _, c := range p.held {
		h.release(p.SessionID, c)
	}
	p.held = nil
	delete(h.players, sessionID)
}

// Teleport moves the player to the destination and reports the arrival.
func (h *Host) Teleport(sessionID uint64, world string, x, z int32) bool {
	p, ok := h.players[sessionID]
	if !ok {
		return false
	}
	if !h.IsWorldLoaded(world) {
		event.Emit(h.bus, event.PlayerTeleported{Player: p})
		return false
	}
	p.World, p.X, p.Z = world, x, z
	h.updateView(p)
	event.Emit(h.bus, event.PlayerTeleported{Player: p, To: p.Chunk(), HasDestination: true})
	return true
}

// Walk moves the player within its current world. No arrival is reported.
func (h *Host) Walk(sessionID uint64, x, z int32) bool {
	p, ok := h.players[sessionID]
	if !ok {
		return false
	}
	p.X, p.Z = x, z
	h.updateView(p)
	return true
}

// Player returns the online player with the given session.
func (h *Host) Player(sessionID uint64) *Player {
	return h.players[sessionID]
}

// Players returns the online players ordered by session.
func (h *Host) Players() []*Player {
	out := make([]*Player, 0, len(h.players))
	for _, p := range h.players {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Player) int { return cmp.Compare(a.SessionID, b.SessionID) })
	return out
}

// updateView loads the chunks newly in view and unloads those left behind.
func (h *Host) updateView(p *Player) {
	next := Area(p.Chunk(), h.viewDistance)
	for _, c := range next {
		h.hold(p.SessionID, c)
	}
	for _, c := range p.held {
		if !slices.Contains(next, c) {
			h.release(p.SessionID, c)
		}
	}
	p.held = next
}

func (h *Host) hold(holder uint64, c chunk.Coords) {
	if h.tracker.Hold(holder, c) {
		event.Emit(h.bus, event.ChunkLoaded{Chunk: c})
	}
}

func (h *Host) release(holder uint64, c chunk.Coords) {
	if h.tracker.Release(holder, c) {
		event.Emit(h.bus, event.ChunkUnloaded{Chunk: c})
	}
}

func compareCoords(a, b chunk.Coords) int {
	if n := cmp.Compare(a.X, b.X); n != 0 {
		return n
	}
	return cmp.Compare(a.Z, b.Z)
}
