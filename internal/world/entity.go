package world

import (
	"github.com/l1jgo/chunkact/internal/chunk"
	"github.com/l1jgo/chunkact/internal/core/ecs"
)

// Entity is a location-bound object whose ticking and presence are gated by
// the activation state of its chunk.
// Accessed only from the game loop goroutine, no locks.
type Entity struct {
	ID     ecs.EntityID
	Name   string
	Kind   string // free-form type tag, e.g. "merchant", "guard"
	Script string // behaviour script key ("" = default behaviour)

	World   string
	X       int32 // block coordinates
	Y       int32
	Z       int32
	Virtual bool // not bound to any chunk (outside the activation system)

	active    bool
	ticking   bool
	spawn     SpawnState
	lastChunk chunk.Coords // chunk the registry has this entity filed under
	filed     bool
	removed   bool
}

// SpawnState tracks an entity's presence in the world.
type SpawnState byte

const (
	Despawned SpawnState = iota
	SpawnQueued
	Spawned
)

func (s SpawnState) String() string {
	switch s {
	case SpawnQueued:
		return "queued"
	case Spawned:
		return "spawned"
	default:
		return "despawned"
	}
}

func (e *Entity) IsActive() bool          { return e.active }
func (e *Entity) SetActive(active bool)   { e.active = active }
func (e *Entity) IsTicking() bool         { return e.ticking }
func (e *Entity) SetTicking(ticking bool) { e.ticking = ticking }

func (e *Entity) SpawnState() SpawnState     { return e.spawn }
func (e *Entity) SetSpawnState(s SpawnState) { e.spawn = s }

// Valid reports whether the entity is still registered.
func (e *Entity) Valid() bool { return !e.removed && !e.ID.IsZero() }

// Chunk returns the chunk of the entity's current position.
// ok is false for virtual entities.
func (e *Entity) Chunk() (c chunk.Coords, ok bool) {
	if e.Virtual || e.World == "" {
		return chunk.Coords{}, false
	}
	return chunk.At(e.World, e.X, e.Z), true
}

// LastChunk returns the chunk the registry has the entity filed under, which
// lags behind Chunk() until the registry processes a move.
func (e *Entity) LastChunk() (c chunk.Coords, ok bool) {
	return e.lastChunk, e.filed
}
