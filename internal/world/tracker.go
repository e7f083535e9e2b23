package world

import "github.com/l1jgo/chunkact/internal/chunk"

// ChunkTracker tracks which sessions keep which chunks loaded.
// Each player holds the square of chunks within the view distance around its
// own chunk; a chunk is loaded while at least one holder remains.
// Accessed only from the game loop goroutine, no locks.
type ChunkTracker struct {
	cells map[chunk.Coords]map[uint64]struct{} // chunk → set of holder sessionIDs
}

func NewChunkTracker() *ChunkTracker {
	return &ChunkTracker{
		cells: make(map[chunk.Coords]map[uint64]struct{}),
	}
}

// Hold adds a holder to the chunk. Returns true if the chunk was not held before.
func (t *ChunkTracker) Hold(holder uint64, c chunk.Coords) bool {
	cell := t.cells[c]
	if cell == nil {
		cell = make(map[uint64]struct{})
		t.cells[c] = cell
	}
	if _, ok := cell[holder]; ok {
		return false
	}
	cell[holder] = struct{}{}
	return len(cell) == 1
}

// Release removes a holder from the chunk. Returns true if it was the last one.
func (t *ChunkTracker) Release(holder uint64, c chunk.Coords) bool {
	cell := t.cells[c]
	if cell == nil {
		return false
	}
	if _, ok := cell[holder]; !ok {
		return false
	}
	delete(cell, holder)
	if len(cell) == 0 {
		delete(t.cells, c)
		return true
	}
	return false
}

// Held reports whether any holder keeps the chunk loaded.
func (t *ChunkTracker) Held(c chunk.Coords) bool {
	return len(t.cells[c]) > 0
}

// Holders returns the number of holders of the chunk.
func (t *ChunkTracker) Holders(c chunk.Coords) int {
	return len(t.cells[c])
}

// Len returns the number of held chunks.
func (t *ChunkTracker) Len() int { return len(t.cells) }

// HeldInWorld returns the held chunks of a world.
func (t *ChunkTracker) HeldInWorld(world string) []chunk.Coords {
	var out []chunk.Coords
	for c := range t.cells {
		if c.World == world {
			out = append(out, c)
		}
	}
	return out
}

// DropWorld forgets every held chunk of a world and returns them.
func (t *ChunkTracker) DropWorld(world string) []chunk.Coords {
	out := t.HeldInWorld(world)
	for _, c := range out {
		delete(t.cells, c)
	}
	return out
}

// Area returns the square of chunks within radius of center.
func Area(center chunk.Coords, radius int32) []chunk.Coords {
	out := make([]chunk.Coords, 0, (2*radius+1)*(2*radius+1))
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			out = append(out, center.Offset(dx, dz))
		}
	}
	return out
}
