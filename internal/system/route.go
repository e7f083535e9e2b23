package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/chunkact/internal/core/system"
	"github.com/l1jgo/chunkact/internal/world"
)

// Waypoint is one leg of a scripted player route.
type Waypoint struct {
	World    string // "" = stay in the current world
	X, Z     int32
	Teleport bool // jump instead of walking
	Wait     int  // ticks to idle after arriving
}

// Route drives one scripted player: join, follow the waypoints, then quit
// or loop back to the first waypoint.
type Route struct {
	Player    *world.Player
	Waypoints []Waypoint
	Speed     int32 // blocks per tick while walking
	Loop      bool

	joined bool
	done   bool
	next   int
	wait   int
}

// RouteSystem moves scripted players through the host simulation.
// Phase 0 (Input).
type RouteSystem struct {
	host   *world.Host
	routes []*Route
	log    *zap.Logger
}

func NewRouteSystem(host *world.Host, log *zap.Logger) *RouteSystem {
	return &RouteSystem{host: host, log: log}
}

func (s *RouteSystem) Phase() coresys.Phase { return coresys.PhaseInput }

// Add registers a route. The player joins on the next update.
func (s *RouteSystem) Add(r *Route) {
	if r.Speed <= 0 {
		r.Speed = 1
	}
	s.routes = append(s.routes, r)
}

// Active returns the number of routes still running.
func (s *RouteSystem) Active() int {
	n := 0
	for _, r := range s.routes {
		if !r.done {
			n++
		}
	}
	return n
}

func (s *RouteSystem) Update(_ time.Duration) {
	for _, r := range s.routes {
		if r.done {
			continue
		}
		s.step(r)
	}
}

func (s *RouteSystem) step(r *Route) {
	p := r.Player
	if !r.joined {
		if !s.host.Join(p) {
			s.log.Warn("scripted player could not join", zap.String("player", p.Name), zap.String("world", p.World))
			r.done = true
			return
		}
		r.joined = true
		return
	}
	if !p.Online() {
		r.done = true
		return
	}
	if r.wait > 0 {
		r.wait--
		return
	}
	if r.next >= len(r.Waypoints) {
		if r.Loop && len(r.Waypoints) > 0 {
			r.next = 0
		} else {
			s.host.Quit(p.SessionID)
			r.done = true
			return
		}
	}

	wp := r.Waypoints[r.next]
	if wp.Teleport || (wp.World != "" && wp.World != p.World) {
		dest := wp.World
		if dest == "" {
			dest = p.World
		}
		if !s.host.Teleport(p.SessionID, dest, wp.X, wp.Z) {
			s.log.Warn("scripted teleport failed", zap.String("player", p.Name), zap.String("world", dest))
		}
		s.arrive(r, wp)
		return
	}

	x := approach(p.X, wp.X, r.Speed)
	z := approach(p.Z, wp.Z, r.Speed)
	s.host.Walk(p.SessionID, x, z)
	if x == wp.X && z == wp.Z {
		s.arrive(r, wp)
	}
}

func (s *RouteSystem) arrive(r *Route, wp Waypoint) {
	r.next++
	r.wait = wp.Wait
}

// approach moves from toward to by at most step.
func approach(from, to, step int32) int32 {
	switch {
	case to > from+step:
		return from + step
	case to < from-step:
		return from - step
	}
	return to
}
