// Package journal records the activator's passes and hands them to the
// database in batches.
package journal

import (
	"context"

	"go.uber.org/zap"

	"github.com/l1jgo/chunkact/internal/activation"
	"github.com/l1jgo/chunkact/internal/persist"
)

// DefaultLimit bounds the number of buffered rows between two flushes.
const DefaultLimit = 4096

// Sink stores journal rows.
type Sink interface {
	WriteBatch(ctx context.Context, rows []persist.JournalRow) error
}

// Stats are the journal's counters since startup.
type Stats struct {
	Activations   int64
	Deactivations int64
	Aborted       int64
	Entities      int64
	Written       int64
	Dropped       int64
	FailedFlushes int64
}

// Buffer is an activation.Observer. Without a sink it only keeps counters.
// Accessed only from the game loop goroutine, no locks.
type Buffer struct {
	sink  Sink
	rows  []persist.JournalRow
	limit int
	stats Stats
	log   *zap.Logger
}

func NewBuffer(sink Sink, limit int, log *zap.Logger) *Buffer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Buffer{sink: sink, limit: limit, log: log}
}

func (b *Buffer) ObservePass(p activation.Pass) {
	switch p.Kind {
	case activation.PassActivation:
		b.stats.Activations++
	case activation.PassDeactivation:
		b.stats.Deactivations++
	}
	if p.Aborted {
		b.stats.Aborted++
	}
	b.stats.Entities += int64(p.Entities)

	if b.sink == nil {
		return
	}
	if len(b.rows) >= b.limit {
		// Keep the most recent passes.
		n := len(b.rows) - b.limit + 1
		b.rows = append(b.rows[:0], b.rows[n:]...)
		b.stats.Dropped += int64(n)
	}
	b.rows = append(b.rows, persist.JournalRow{
		Kind:       p.Kind.String(),
		World:      p.Chunk.World,
		ChunkX:     p.Chunk.X,
		ChunkZ:     p.Chunk.Z,
		Entities:   int32(p.Entities),
		DurationUs: p.Duration.Microseconds(),
		Tick:       p.Tick,
		Aborted:    p.Aborted,
	})
}

// Len returns the number of rows waiting for the next flush.
func (b *Buffer) Len() int { return len(b.rows) }

func (b *Buffer) Stats() Stats { return b.stats }

// Flush writes the buffered rows. On failure the rows are kept for the
// next attempt.
func (b *Buffer) Flush(ctx context.Context) error {
	if b.sink == nil || len(b.rows) == 0 {
		return nil
	}
	if err := b.sink.WriteBatch(ctx, b.rows); err != nil {
		b.stats.FailedFlushes++
		return err
	}
	b.stats.Written += int64(len(b.rows))
	b.log.Debug("journal flushed", zap.Int("rows", len(b.rows)))
	clear(b.rows)
	b.rows = b.rows[:0]
	return nil
}
