package persist

import (
	"context"
	"fmt"
)

// JournalRow is one recorded activation or deactivation pass.
type JournalRow struct {
	Kind       string // "activation", "deactivation"
	World      string
	ChunkX     int32
	ChunkZ     int32
	Entities   int32
	DurationUs int64
	Tick       int64
	Aborted    bool
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteBatch writes the rows in a single transaction. Either all rows are
// stored or none.
func (r *JournalRepo) WriteBatch(ctx context.Context, rows []JournalRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		if _, err := tx.Exec(ctx,
			`INSERT INTO activation_journal (kind, world, chunk_x, chunk_z, entities, duration_us, tick, aborted)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			row.Kind, row.World, row.ChunkX, row.ChunkZ, row.Entities, row.DurationUs, row.Tick, row.Aborted,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Prune deletes journal rows older than the given number of days.
func (r *JournalRepo) Prune(ctx context.Context, days int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM activation_journal WHERE recorded_at < NOW() - make_interval(days => $1)`,
		days,
	)
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
