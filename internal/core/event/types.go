package event

import "github.com/l1jgo/chunkact/internal/chunk"

// Host notifications consumed by the chunk activation listener.

type ChunkLoaded struct {
	Chunk chunk.Coords
}

type ChunkUnloaded struct {
	Chunk chunk.Coords
}

type WorldLoaded struct {
	World string
}

type WorldUnloaded struct {
	World string
}

// PlayerJoined is emitted once the player is in-world at its spawn position.
type PlayerJoined struct {
	Player Actor
}

// PlayerTeleported carries the destination; HasDestination is false when the
// teleport target could not be resolved (the event is then ignored).
type PlayerTeleported struct {
	Player         Actor
	To             chunk.Coords
	HasDestination bool
}

// Actor is the minimal view of a player the activation listener needs.
type Actor interface {
	Online() bool
	Position() (world string, blockX, blockZ int32)
}
