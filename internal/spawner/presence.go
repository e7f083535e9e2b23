package spawner

import (
	"github.com/kamstrup/intmap"
	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/core/ecs"
	"github.com/l1jgo/chunkact/internal/world"
)

// LogPresence is the daemon's Presence: it keeps the set of present
// entities and logs every change.
type LogPresence struct {
	present *intmap.Map[ecs.EntityID, *world.Entity]
	log     *zap.Logger
}

func NewLogPresence(log *zap.Logger) *LogPresence {
	return &LogPresence{
		present: intmap.New[ecs.EntityID, *world.Entity](256),
		log:     log,
	}
}

func (p *LogPresence) Spawn(e *world.Entity) bool {
	if !e.Valid() {
		return false
	}
	p.present.Put(e.ID, e)
	p.log.Debug("entity spawned",
		zap.String("entity", e.Name),
		zap.String("kind", e.Kind),
		zap.String("world", e.World),
		zap.Int32("x", e.X),
		zap.Int32("z", e.Z),
	)
	return true
}

func (p *LogPresence) Despawn(e *world.Entity) {
	if !p.present.Del(e.ID) {
		return
	}
	p.log.Debug("entity despawned", zap.String("entity", e.Name))
}

// Present reports whether the entity is currently spawned.
func (p *LogPresence) Present(e *world.Entity) bool {
	return p.present.Has(e.ID)
}

func (p *LogPresence) Len() int { return p.present.Len() }
