package chunk

import "strconv"

// Shift converts block coordinates to chunk indices: a chunk spans 16x16 blocks.
const Shift = 4

// Size is the edge length of a chunk in blocks.
const Size = 1 << Shift

// FromBlock returns the chunk index containing the given block coordinate.
// Arithmetic shift floors negative coordinates correctly (-1 -> -1, -16 -> -1, -17 -> -2).
func FromBlock(v int32) int32 {
	return v >> Shift
}

// Coords identifies a chunk: world name plus chunk grid indices.
// Comparable value type; used directly as a map key.
type Coords struct {
	World string
	X     int32
	Z     int32
}

// At returns the coords of the chunk containing the given block position.
func At(world string, blockX, blockZ int32) Coords {
	return Coords{World: world, X: FromBlock(blockX), Z: FromBlock(blockZ)}
}

func (c Coords) String() string {
	return c.World + "," + strconv.Itoa(int(c.X)) + "," + strconv.Itoa(int(c.Z))
}

// Within reports whether o is in the same world and within the given
// Chebyshev radius (in chunks) of c.
func (c Coords) Within(o Coords, radius int32) bool {
	if c.World != o.World {
		return false
	}
	return abs32(c.X-o.X) <= radius && abs32(c.Z-o.Z) <= radius
}

// Offset returns the chunk dx/dz chunks away in the same world.
func (c Coords) Offset(dx, dz int32) Coords {
	return Coords{World: c.World, X: c.X + dx, Z: c.Z + dz}
}

func abs32(n int32) int32 {
	if n < 0 {
		return -n
	}
	return n
}

// Scratch is a reusable lookup key for hot loops that scan many chunks.
// It must never be stored; call Coords() to obtain an owned copy.
type Scratch struct {
	c Coords
}

// Set updates the key in place and returns it for immediate lookup.
func (s *Scratch) Set(world string, x, z int32) Coords {
	s.c.World = world
	s.c.X = x
	s.c.Z = z
	return s.c
}

// Coords returns a copy of the current key.
func (s *Scratch) Coords() Coords { return s.c }

// Reset drops the world name so the scratch key does not pin it.
func (s *Scratch) Reset() { s.c = Coords{} }
