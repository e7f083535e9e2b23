package spawner

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/chunk"
	coresys "github.com/l1jgo/chunkact/internal/core/system"
	"github.com/l1jgo/chunkact/internal/world"
)

const (
	DefaultSpawnsPerWindow = 6
	DefaultWindowTicks     = 3
)

// Presence materializes entities in the world. Spawn reports whether the
// entity is present afterwards.
type Presence interface {
	Spawn(e *world.Entity) bool
	Despawn(e *world.Entity)
}

// ChunkActivity reports whether a chunk is currently active.
type ChunkActivity interface {
	IsChunkActive(c chunk.Coords) bool
}

// Stats are the spawner's counters.
type Stats struct {
	Spawned    int
	Despawned  int
	Failed     int
	Pending    int
	MaxPending int
}

// Spawner spawns and despawns entities on behalf of the chunk activator.
// Chunk batches go through a rate-limited queue; single entities that were
// just created or moved next to a player are spawned immediately.
// Accessed only from the game loop goroutine, no locks.
type Spawner struct {
	presence Presence
	activity ChunkActivity
	queue    *spawnQueue
	stats    Stats
	log      *zap.Logger
}

func New(presence Presence, perWindow, windowTicks int, log *zap.Logger) *Spawner {
	s := &Spawner{presence: presence, log: log}
	s.queue = newSpawnQueue(perWindow, windowTicks, s.processQueued, func(e *world.Entity) {
		if e.SpawnState() == world.SpawnQueued {
			e.SetSpawnState(world.Despawned)
		}
	})
	return s
}

// SetChunkActivity wires the source of chunk activation states. Batches for
// inactive chunks are ignored.
func (s *Spawner) SetChunkActivity(a ChunkActivity) { s.activity = a }

func (s *Spawner) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *Spawner) Update(_ time.Duration) { s.queue.tick() }

func (s *Spawner) Stats() Stats {
	st := s.stats
	st.Pending = len(s.queue.pending)
	st.MaxPending = s.queue.maxPending
	return st
}

// updateSpawnState removes a queued entity from the queue before changing its state.
func (s *Spawner) updateSpawnState(e *world.Entity, state world.SpawnState) {
	if e.SpawnState() == world.SpawnQueued {
		s.queue.remove(e)
	}
	e.SetSpawnState(state)
}

// SpawnBatch queues the eligible entities of an active chunk for spawning.
func (s *Spawner) SpawnBatch(c chunk.Coords, reason string, entities []*world.Entity, eligible func(*world.Entity) bool) {
	if len(entities) == 0 {
		return
	}
	if s.activity != nil && !s.activity.IsChunkActive(c) {
		return
	}
	queued := 0
	for _, e := range entities {
		if e.Virtual || !eligible(e) {
			continue
		}
		switch e.SpawnState() {
		case world.Spawned:
			continue
		case world.SpawnQueued:
			// Re-queue at the end so the latest eligibility check is used.
			s.updateSpawnState(e, world.Despawned)
		}
		e.SetSpawnState(world.SpawnQueued)
		s.queue.add(e, eligible)
		queued++
	}
	s.log.Debug("spawning chunk entities",
		zap.Stringer("chunk", c),
		zap.String("reason", reason),
		zap.Int("entities", len(entities)),
		zap.Int("queued", queued),
	)
}

// DespawnBatch despawns the eligible entities right away.
func (s *Spawner) DespawnBatch(c chunk.Coords, reason string, entities []*world.Entity, eligible func(*world.Entity) bool) {
	if len(entities) == 0 {
		return
	}
	despawned := 0
	for _, e := range entities {
		if e.Virtual || !eligible(e) {
			continue
		}
		if e.SpawnState() == world.Despawned {
			continue
		}
		s.doDespawn(e)
		despawned++
	}
	s.log.Debug("despawning chunk entities",
		zap.Stringer("chunk", c),
		zap.String("reason", reason),
		zap.Int("entities", len(entities)),
		zap.Int("despawned", despawned),
	)
}

// SpawnImmediately spawns an active entity, bypassing the queue.
func (s *Spawner) SpawnImmediately(e *world.Entity) {
	if e.Virtual || !e.IsActive() {
		return
	}
	if e.SpawnState() == world.Spawned {
		return
	}
	s.doSpawn(e)
}

// Despawn despawns the entity and removes it from the spawn queue.
func (s *Spawner) Despawn(e *world.Entity) {
	if e.Virtual {
		return
	}
	s.doDespawn(e)
}

// OnEntityMoved is called after a moved entity's activation state was
// updated. An entity that stayed active is spawned right away, even if it
// was only queued before.
func (s *Spawner) OnEntityMoved(e *world.Entity, oldChunk chunk.Coords, activationChanged bool) {
	if activationChanged || !e.IsActive() {
		return
	}
	s.SpawnImmediately(e)
}

func (s *Spawner) processQueued(q queued) {
	e := q.entity
	if e.SpawnState() != world.SpawnQueued {
		return
	}
	if !e.Valid() || !q.eligible(e) {
		e.SetSpawnState(world.Despawned)
		return
	}
	s.doSpawn(e)
}

func (s *Spawner) doSpawn(e *world.Entity) {
	s.updateSpawnState(e, world.Spawned)
	ok := s.call(e, func() bool { return s.presence.Spawn(e) })
	if !ok {
		e.SetSpawnState(world.Despawned)
		s.stats.Failed++
		s.log.Debug("spawning failed", zap.String("entity", e.Name), zap.Stringer("id", e.ID))
		return
	}
	s.stats.Spawned++
}

func (s *Spawner) doDespawn(e *world.Entity) {
	wasSpawned := e.SpawnState() == world.Spawned
	s.updateSpawnState(e, world.Despawned)
	if !wasSpawned {
		return
	}
	s.call(e, func() bool { s.presence.Despawn(e); return true })
	s.stats.Despawned++
}

func (s *Spawner) call(e *world.Entity, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("entity presence panicked",
				zap.String("entity", e.Name),
				zap.Stringer("id", e.ID),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()
	return fn()
}

// Shutdown drops the pending spawns.
func (s *Spawner) Shutdown() {
	s.queue.shutdown()
}
