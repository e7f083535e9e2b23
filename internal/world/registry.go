package world

import (
	"cmp"
	"slices"

	"github.com/kamstrup/intmap"
	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/chunk"
	"github.com/l1jgo/chunkact/internal/core/ecs"
)

// ChangeListener is informed about registry changes. The activator implements
// it to keep its chunk table in sync with the chunks that contain entities.
type ChangeListener interface {
	// OnChunkAdded is called when the first entity enters a chunk, before
	// OnEntityAdded/OnEntityMoved for that entity.
	OnChunkAdded(c chunk.Coords)
	// OnChunkRemoved is called when the last entity leaves a chunk.
	OnChunkRemoved(c chunk.Coords)
	OnEntityAdded(e *Entity)
	// OnEntityRemoving is called while the entity is still filed under its chunk.
	OnEntityRemoving(e *Entity)
	OnEntityMoved(e *Entity, oldChunk chunk.Coords)
}

// NopListener ignores all registry changes.
type NopListener struct{}

func (NopListener) OnChunkAdded(chunk.Coords)           {}
func (NopListener) OnChunkRemoved(chunk.Coords)         {}
func (NopListener) OnEntityAdded(*Entity)               {}
func (NopListener) OnEntityRemoving(*Entity)            {}
func (NopListener) OnEntityMoved(*Entity, chunk.Coords) {}

type chunkEntities struct {
	coords   chunk.Coords
	entities []*Entity // insertion order
}

func (c *chunkEntities) remove(e *Entity) {
	for i, x := range c.entities {
		if x == e {
			c.entities = slices.Delete(c.entities, i, i+1)
			return
		}
	}
}

type worldEntities struct {
	name   string
	chunks map[chunk.Coords]*chunkEntities
	count  int
}

// Registry is the entity-location index: it maps chunks to the entities
// located in them. All queries return snapshots that stay valid while the
// registry is mutated by callbacks.
// Accessed only from the game loop goroutine, no locks.
type Registry struct {
	pool     *ecs.EntityPool
	byID     *intmap.Map[ecs.EntityID, *Entity]
	worlds   map[string]*worldEntities
	virtual  int
	listener ChangeListener
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		pool:     ecs.NewEntityPool(),
		byID:     intmap.New[ecs.EntityID, *Entity](256),
		worlds:   make(map[string]*worldEntities),
		listener: NopListener{},
		log:      log,
	}
}

// SetListener installs the change listener. Must be called before entities are added.
func (r *Registry) SetListener(l ChangeListener) {
	if l == nil {
		l = NopListener{}
	}
	r.listener = l
}

// Add registers the entity, assigning it an id, and files it under its chunk.
func (r *Registry) Add(e *Entity) ecs.EntityID {
	e.ID = r.pool.Create()
	e.removed = false
	r.byID.Put(e.ID, e)

	if c, ok := e.Chunk(); ok {
		r.file(e, c)
	} else {
		r.virtual++
	}
	r.listener.OnEntityAdded(e)
	return e.ID
}

// Remove unregisters the entity. The listener sees it while still filed.
func (r *Registry) Remove(e *Entity) {
	if !e.Valid() {
		return
	}
	if _, ok := r.byID.Get(e.ID); !ok {
		return
	}
	r.listener.OnEntityRemoving(e)

	if e.filed {
		r.unfile(e, false)
	} else {
		r.virtual--
	}
	r.byID.Del(e.ID)
	r.pool.Release(e.ID)
	e.removed = true
}

// Move updates the entity's position and refiles it if its chunk changed.
// Returns true if the entity moved to a different chunk.
func (r *Registry) Move(e *Entity, world string, x, y, z int32) bool {
	e.World, e.X, e.Y, e.Z = world, x, y, z
	if e.Virtual || !e.Valid() {
		return false
	}
	newChunk, ok := e.Chunk()
	if !ok {
		return false
	}
	oldChunk, wasFiled := e.LastChunk()
	if wasFiled && oldChunk == newChunk {
		return false
	}
	if !wasFiled {
		// Entity without a world so far: file it as if newly added.
		r.virtual--
		r.file(e, newChunk)
		r.listener.OnEntityAdded(e)
		return true
	}
	// Moving within one world keeps the world entry alive.
	r.unfile(e, oldChunk.World == newChunk.World)
	r.file(e, newChunk)
	r.listener.OnEntityMoved(e, oldChunk)
	return true
}

func (r *Registry) file(e *Entity, c chunk.Coords) {
	w := r.worlds[c.World]
	if w == nil {
		w = &worldEntities{name: c.World, chunks: make(map[chunk.Coords]*chunkEntities)}
		r.worlds[c.World] = w
	}
	ce := w.chunks[c]
	newChunk := ce == nil
	if newChunk {
		ce = &chunkEntities{coords: c}
		w.chunks[c] = ce
	}
	ce.entities = append(ce.entities, e)
	w.count++
	e.lastChunk = c
	e.filed = true
	if newChunk {
		r.listener.OnChunkAdded(c)
	}
}

func (r *Registry) unfile(e *Entity, skipWorldCleanup bool) {
	c := e.lastChunk
	e.filed = false
	w := r.worlds[c.World]
	if w == nil {
		return
	}
	ce := w.chunks[c]
	if ce == nil {
		return
	}
	ce.remove(e)
	w.count--
	chunkRemoved := len(ce.entities) == 0
	if chunkRemoved {
		delete(w.chunks, c)
	}
	if !skipWorldCleanup && w.count == 0 {
		delete(r.worlds, c.World)
	}
	if chunkRemoved {
		r.listener.OnChunkRemoved(c)
	}
}

// Get returns the entity with the given id.
func (r *Registry) Get(id ecs.EntityID) (*Entity, bool) {
	return r.byID.Get(id)
}

// Len returns the number of registered entities, virtual ones included.
func (r *Registry) Len() int { return r.byID.Len() }

// VirtualCount returns the number of registered virtual entities.
func (r *Registry) VirtualCount() int { return r.virtual }

// EntitiesInChunk returns a snapshot of the entities filed under the chunk.
func (r *Registry) EntitiesInChunk(c chunk.Coords) []*Entity {
	w := r.worlds[c.World]
	if w == nil {
		return nil
	}
	ce := w.chunks[c]
	if ce == nil {
		return nil
	}
	return slices.Clone(ce.entities)
}

// ChunksInWorld returns a snapshot of the chunks that contain entities,
// sorted by X then Z.
func (r *Registry) ChunksInWorld(world string) []chunk.Coords {
	w := r.worlds[world]
	if w == nil {
		return nil
	}
	out := make([]chunk.Coords, 0, len(w.chunks))
	for c := range w.chunks {
		out = append(out, c)
	}
	slices.SortFunc(out, compareCoords)
	return out
}

// EntityCountInWorld returns the number of chunk-bound entities in the world.
func (r *Registry) EntityCountInWorld(world string) int {
	if w := r.worlds[world]; w != nil {
		return w.count
	}
	return 0
}

// Worlds returns the names of the worlds that contain entities, sorted.
func (r *Registry) Worlds() []string {
	out := make([]string, 0, len(r.worlds))
	for name := range r.worlds {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// All returns a snapshot of every registered entity.
func (r *Registry) All() []*Entity {
	out := make([]*Entity, 0, r.byID.Len())
	r.byID.ForEach(func(_ ecs.EntityID, e *Entity) bool {
		out = append(out, e)
		return true
	})
	slices.SortFunc(out, func(a, b *Entity) int { return cmp.Compare(a.ID.Index(), b.ID.Index()) })
	return out
}

// RemoveAll unregisters every entity.
func (r *Registry) RemoveAll() {
	for _, e := range r.All() {
		r.Remove(e)
	}
}

// EnsureEmpty logs and clears any residual state.
func (r *Registry) EnsureEmpty() {
	if r.byID.Len() != 0 || len(r.worlds) != 0 || r.virtual != 0 {
		r.log.Warn("some entities were not properly removed from the registry",
			zap.Int("entities", r.byID.Len()),
			zap.Int("worlds", len(r.worlds)),
		)
		r.byID.Clear()
		r.worlds = make(map[string]*worldEntities)
		r.virtual = 0
	}
}
