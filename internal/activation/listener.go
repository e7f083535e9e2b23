package activation

import (
	"github.com/l1jgo/chunkact/internal/core/event"
)

// Listener translates host notifications into activator calls.
type Listener struct {
	activator *Activator
}

func NewListener(a *Activator) *Listener {
	return &Listener{activator: a}
}

// Register subscribes the listener to the host events on the bus.
func (l *Listener) Register(bus *event.Bus) {
	event.Subscribe(bus, l.OnChunkLoaded)
	event.Subscribe(bus, l.OnChunkUnloaded)
	event.Subscribe(bus, l.OnWorldLoaded)
	event.Subscribe(bus, l.OnWorldUnloaded)
	event.Subscribe(bus, l.OnPlayerJoined)
	event.Subscribe(bus, l.OnPlayerTeleported)
}

func (l *Listener) OnChunkLoaded(e event.ChunkLoaded) {
	l.activator.OnChunkLoad(e.Chunk)
}

func (l *Listener) OnChunkUnloaded(e event.ChunkUnloaded) {
	l.activator.OnChunkUnload(e.Chunk)
}

func (l *Listener) OnWorldLoaded(e event.WorldLoaded) {
	l.activator.ActivateChunks(e.World)
}

func (l *Listener) OnWorldUnloaded(e event.WorldUnloaded) {
	l.activator.DeactivateChunks(e.World)
}

// OnPlayerJoined activates the pending chunks around the player once the join
// has been fully handled. Players kicked during the join are ignored.
func (l *Listener) OnPlayerJoined(e event.PlayerJoined) {
	if e.Player == nil || !e.Player.Online() {
		return
	}
	l.activator.ActivatePendingNearbyChunksDelayed(e.Player)
}

// OnPlayerTeleported ignores teleports without a resolvable destination.
func (l *Listener) OnPlayerTeleported(e event.PlayerTeleported) {
	if e.Player == nil || !e.HasDestination {
		return
	}
	l.activator.ActivatePendingNearbyChunksDelayed(e.Player)
}
