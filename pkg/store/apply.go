package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/solplace/indexer/pkg/events"
)

// TargetKind discriminates enrichment targets.
type TargetKind string

const (
	TargetPixel TargetKind = "pixel"
	TargetShard TargetKind = "shard"
)

// EnrichTarget identifies one row whose location_name is still unresolved,
// together with the canvas coordinates the lookup needs.
type EnrichTarget struct {
	Kind TargetKind

	// Pixel targets.
	PixelID int64
	PX      uint16
	PY      uint16

	// Shard targets.
	ShardX int32
	ShardY int32
}

// Key is the dedup identity of a target inside the enrichment retry queue.
func (t EnrichTarget) Key() string {
	if t.Kind == TargetPixel {
		return fmt.Sprintf("pixel:%d", t.PixelID)
	}
	return fmt.Sprintf("shard:%d:%d", t.ShardX, t.ShardY)
}

// ApplyTransaction projects the events of one source transaction into the
// view as a single atomic unit. It fails fast when the signature has already
// been applied (applied=false), and otherwise inserts rows, advances
// counters, upserts users, and marks the signature processed, all in one
// SQLite transaction. A crash before commit loses the mark and the writes
// together, so redelivery replays cleanly.
//
// An empty events slice still marks the signature: failed on-chain
// transactions go through this path so backfill never re-fetches them.
//
// The returned targets are the rows this call created (shard duplicates are
// skipped, not returned); the caller hands them to enrichment after commit.
func (s *Store) ApplyTransaction(ctx context.Context, signature string, evs []events.Event, now time.Time) (targets []EnrichTarget, applied bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM processed_sigs WHERE signature = ?`, signature,
	).Scan(&n); err != nil {
		return nil, false, fmt.Errorf("failed to check processed_sigs: %w", err)
	}
	if n > 0 {
		return nil, false, nil
	}

	for _, ev := range evs {
		switch ev := ev.(type) {
		case events.PixelChanged:
			target, err := s.applyPixelChanged(ctx, tx, ev)
			if err != nil {
				return nil, false, err
			}
			targets = append(targets, target)
		case events.ShardInitialized:
			target, created, err := s.applyShardInitialized(ctx, tx, ev)
			if err != nil {
				return nil, false, err
			}
			if created {
				targets = append(targets, target)
			}
		default:
			// Closed variant set; the parser never produces anything else.
			return nil, false, fmt.Errorf("unknown event type %T", ev)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO processed_sigs (signature, processed_at) VALUES (?, ?)`,
		signature, now.UTC().Unix(),
	); err != nil {
		return nil, false, fmt.Errorf("failed to mark signature processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit apply transaction: %w", err)
	}
	return targets, true, nil
}

func (s *Store) applyPixelChanged(ctx context.Context, tx *sql.Tx, ev events.PixelChanged) (EnrichTarget, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO pixel_events (px, py, color, main_wallet, timestamp) VALUES (?, ?, ?, ?, ?)`,
		ev.PX, ev.PY, ev.Color, ev.MainWallet.String(), ev.Timestamp,
	)
	if err != nil {
		return EnrichTarget{}, fmt.Errorf("failed to insert pixel event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return EnrichTarget{}, fmt.Errorf("failed to read pixel event id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE global_stats SET total_pixels_placed = total_pixels_placed + 1 WHERE id = 1`,
	); err != nil {
		return EnrichTarget{}, fmt.Errorf("failed to increment total_pixels_placed: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (main_wallet, pixels_placed_count) VALUES (?, 1)
		 ON CONFLICT(main_wallet) DO UPDATE SET pixels_placed_count = pixels_placed_count + 1`,
		ev.MainWallet.String(),
	); err != nil {
		return EnrichTarget{}, fmt.Errorf("failed to upsert user: %w", err)
	}

	// A painter that is not the owning wallet is a delegated session key.
	if !ev.Painter.Equals(ev.MainWallet) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET session_address = ? WHERE main_wallet = ?`,
			ev.Painter.String(), ev.MainWallet.String(),
		); err != nil {
			return EnrichTarget{}, fmt.Errorf("failed to update session address: %w", err)
		}
	}

	return EnrichTarget{Kind: TargetPixel, PixelID: id, PX: ev.PX, PY: ev.PY}, nil
}

func (s *Store) applyShardInitialized(ctx context.Context, tx *sql.Tx, ev events.ShardInitialized) (EnrichTarget, bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO shards (shard_x, shard_y, main_wallet, timestamp) VALUES (?, ?, ?, ?)
		 ON CONFLICT(shard_x, shard_y) DO NOTHING`,
		ev.ShardX, ev.ShardY, ev.MainWallet.String(), ev.Timestamp,
	)
	if err != nil {
		return EnrichTarget{}, false, fmt.Errorf("failed to insert shard: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return EnrichTarget{}, false, fmt.Errorf("failed to read shard insert result: %w", err)
	}
	if inserted == 0 {
		// Already indexed, likely via the other source. Not an error and
		// nothing to count.
		s.log.Debug("store: shard already indexed", "shard_x", ev.ShardX, "shard_y", ev.ShardY)
		return EnrichTarget{}, false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE global_stats SET total_shards_deployed = total_shards_deployed + 1 WHERE id = 1`,
	); err != nil {
		return EnrichTarget{}, false, fmt.Errorf("failed to increment total_shards_deployed: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (main_wallet, shards_owned_count) VALUES (?, 1)
		 ON CONFLICT(main_wallet) DO UPDATE SET shards_owned_count = shards_owned_count + 1`,
		ev.MainWallet.String(),
	); err != nil {
		return EnrichTarget{}, false, fmt.Errorf("failed to upsert user: %w", err)
	}

	return EnrichTarget{Kind: TargetShard, ShardX: ev.ShardX, ShardY: ev.ShardY}, true, nil
}
