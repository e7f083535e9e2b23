package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PlacementRow is a stored entity placement.
type PlacementRow struct {
	Name    string
	Kind    string
	Script  string
	World   string
	X, Y, Z int32
	Virtual bool
}

type PlacementRepo struct {
	db *DB
}

func NewPlacementRepo(db *DB) *PlacementRepo {
	return &PlacementRepo{db: db}
}

// LoadAll returns all placements in insertion order.
func (r *PlacementRepo) LoadAll(ctx context.Context) ([]PlacementRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name, kind, script, world, x, y, z, virtual FROM entity_placements ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PlacementRow, error) {
		var p PlacementRow
		err := row.Scan(&p.Name, &p.Kind, &p.Script, &p.World, &p.X, &p.Y, &p.Z, &p.Virtual)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan placements: %w", err)
	}
	return out, nil
}
