package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorldEntry is a world loaded at startup.
type WorldEntry struct {
	Name        string `yaml:"name"`
	SpawnX      int32  `yaml:"spawn_x"` // block coordinates
	SpawnZ      int32  `yaml:"spawn_z"`
	SpawnRadius int    `yaml:"spawn_radius"` // chunks kept loaded around spawn, -1 = none
}

// WaypointEntry is one leg of a scripted player's route.
type WaypointEntry struct {
	World    string `yaml:"world"`
	X        int32  `yaml:"x"`
	Z        int32  `yaml:"z"`
	Teleport bool   `yaml:"teleport"`
	Wait     int    `yaml:"wait"` // ticks
}

// PlayerEntry is a scripted player that joins at startup and follows its route.
type PlayerEntry struct {
	Name  string          `yaml:"name"`
	World string          `yaml:"world"`
	X     int32           `yaml:"x"`
	Z     int32           `yaml:"z"`
	Speed int32           `yaml:"speed"` // blocks per tick
	Loop  bool            `yaml:"loop"`
	Route []WaypointEntry `yaml:"route"`
}

// WorldTable describes the simulated host: its worlds and scripted players.
type WorldTable struct {
	Worlds  []WorldEntry  `yaml:"worlds"`
	Players []PlayerEntry `yaml:"players"`
}

// LoadWorldTable loads worlds.yaml.
func LoadWorldTable(path string) (*WorldTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world table: %w", err)
	}
	var t WorldTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse world table: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("world table: %w", err)
	}
	return &t, nil
}

func (t *WorldTable) validate() error {
	known := make(map[string]bool, len(t.Worlds))
	for i, w := range t.Worlds {
		if w.Name == "" {
			return fmt.Errorf("world %d: missing name", i)
		}
		if known[w.Name] {
			return fmt.Errorf("world %s: defined twice", w.Name)
		}
		known[w.Name] = true
	}
	names := make(map[string]bool, len(t.Players))
	for i, p := range t.Players {
		if p.Name == "" {
			return fmt.Errorf("player %d: missing name", i)
		}
		if names[p.Name] {
			return fmt.Errorf("player %s: defined twice", p.Name)
		}
		names[p.Name] = true
		if !known[p.World] {
			return fmt.Errorf("player %s: unknown world %q", p.Name, p.World)
		}
	}
	return nil
}

// Has reports whether the table defines the world.
func (t *WorldTable) Has(world string) bool {
	for _, w := range t.Worlds {
		if w.Name == world {
			return true
		}
	}
	return false
}
