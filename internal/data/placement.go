package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Placement puts one entity into the world at startup.
type Placement struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Script  string `yaml:"script"` // behaviour script key, "" = default
	World   string `yaml:"world"`
	X       int32  `yaml:"x"`
	Y       int32  `yaml:"y"`
	Z       int32  `yaml:"z"`
	Virtual bool   `yaml:"virtual"` // not bound to a chunk
}

type placementFile struct {
	Placements []Placement `yaml:"placements"`
}

// PlacementTable holds the validated placements in file order.
type PlacementTable struct {
	placements []Placement
	perWorld   map[string]int
}

// LoadPlacementTable loads placements.yaml.
func LoadPlacementTable(path string) (*PlacementTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read placements: %w", err)
	}
	var f placementFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse placements: %w", err)
	}
	return NewPlacementTable(f.Placements)
}

// NewPlacementTable validates placements coming from any source.
func NewPlacementTable(entries []Placement) (*PlacementTable, error) {
	t := &PlacementTable{
		placements: make([]Placement, 0, len(entries)),
		perWorld:   make(map[string]int),
	}
	for i, p := range entries {
		if p.Name == "" {
			return nil, fmt.Errorf("placement %d: missing name", i)
		}
		if !p.Virtual && p.World == "" {
			return nil, fmt.Errorf("placement %d (%s): missing world", i, p.Name)
		}
		if p.Virtual {
			p.World = ""
		}
		t.placements = append(t.placements, p)
		t.perWorld[p.World]++
	}
	return t, nil
}

// All returns the placements in file order. The slice must not be modified.
func (t *PlacementTable) All() []Placement { return t.placements }

// Count returns the total number of placements loaded.
func (t *PlacementTable) Count() int { return len(t.placements) }

// CountInWorld returns the number of placements in a world ("" = virtual).
func (t *PlacementTable) CountInWorld(world string) int { return t.perWorld[world] }
