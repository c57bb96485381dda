package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

type PixelEvent struct {
	ID           int64   `json:"id"`
	PX           uint16  `json:"px"`
	PY           uint16  `json:"py"`
	Color        uint32  `json:"color"`
	MainWallet   string  `json:"main_wallet"`
	Timestamp    int64   `json:"timestamp"`
	LocationName *string `json:"location_name"`
}

type Shard struct {
	ShardX       int32   `json:"shard_x"`
	ShardY       int32   `json:"shard_y"`
	MainWallet   string  `json:"main_wallet"`
	Timestamp    int64   `json:"timestamp"`
	LocationName *string `json:"location_name"`
}

type User struct {
	MainWallet     string  `json:"main_wallet"`
	PixelsPlaced   int64   `json:"pixels_placed_count"`
	ShardsOwned    int64   `json:"shards_owned_count"`
	SessionAddress *string `json:"session_address"`
}

type GlobalStats struct {
	TotalPixelsPlaced   int64 `json:"total_pixels_placed"`
	TotalShardsDeployed int64 `json:"total_shards_deployed"`
}

// RecentPixelEvents returns the newest placements, most recent first.
func (s *Store) RecentPixelEvents(ctx context.Context, limit int) ([]PixelEvent, error) {
	return s.queryPixelEvents(ctx,
		`SELECT id, px, py, color, main_wallet, timestamp, location_name
		 FROM pixel_events ORDER BY id DESC LIMIT ?`, limit)
}

// PixelEventsAt returns the placement history of one cell, most recent first.
func (s *Store) PixelEventsAt(ctx context.Context, px, py uint16, limit int) ([]PixelEvent, error) {
	return s.queryPixelEvents(ctx,
		`SELECT id, px, py, color, main_wallet, timestamp, location_name
		 FROM pixel_events WHERE px = ? AND py = ? ORDER BY id DESC LIMIT ?`, px, py, limit)
}

func (s *Store) queryPixelEvents(ctx context.Context, query string, args ...any) ([]PixelEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pixel events: %w", err)
	}
	defer rows.Close()

	var out []PixelEvent
	for rows.Next() {
		var ev PixelEvent
		if err := rows.Scan(&ev.ID, &ev.PX, &ev.PY, &ev.Color, &ev.MainWallet, &ev.Timestamp, &ev.LocationName); err != nil {
			return nil, fmt.Errorf("failed to scan pixel event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pixel events: %w", err)
	}
	return out, nil
}

// ShardAt returns the shard at the given coordinates, or nil when none was
// created there yet.
func (s *Store) ShardAt(ctx context.Context, shardX, shardY int32) (*Shard, error) {
	var sh Shard
	err := s.db.QueryRowContext(ctx,
		`SELECT shard_x, shard_y, main_wallet, timestamp, location_name
		 FROM shards WHERE shard_x = ? AND shard_y = ?`, shardX, shardY,
	).Scan(&sh.ShardX, &sh.ShardY, &sh.MainWallet, &sh.Timestamp, &sh.LocationName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query shard: %w", err)
	}
	return &sh, nil
}

func (s *Store) ShardsByOwner(ctx context.Context, mainWallet string) ([]Shard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shard_x, shard_y, main_wallet, timestamp, location_name
		 FROM shards WHERE main_wallet = ? ORDER BY timestamp DESC`, mainWallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query shards by owner: %w", err)
	}
	defer rows.Close()

	var out []Shard
	for rows.Next() {
		var sh Shard
		if err := rows.Scan(&sh.ShardX, &sh.ShardY, &sh.MainWallet, &sh.Timestamp, &sh.LocationName); err != nil {
			return nil, fmt.Errorf("failed to scan shard: %w", err)
		}
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shards: %w", err)
	}
	return out, nil
}

// UserByWallet returns the user row for a wallet, or nil when the wallet has
// never appeared in an applied event.
func (s *Store) UserByWallet(ctx context.Context, mainWallet string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT main_wallet, pixels_placed_count, shards_owned_count, session_address
		 FROM users WHERE main_wallet = ?`, mainWallet,
	).Scan(&u.MainWallet, &u.PixelsPlaced, &u.ShardsOwned, &u.SessionAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *Store) Stats(ctx context.Context) (GlobalStats, error) {
	var st GlobalStats
	err := s.db.QueryRowContext(ctx,
		`SELECT total_pixels_placed, total_shards_deployed FROM global_stats WHERE id = 1`,
	).Scan(&st.TotalPixelsPlaced, &st.TotalShardsDeployed)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("failed to query global stats: %w", err)
	}
	return st, nil
}

func (s *Store) CountPixelEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM pixel_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pixel events: %w", err)
	}
	return n, nil
}

func (s *Store) CountShards(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM shards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count shards: %w", err)
	}
	return n, nil
}

// SetPixelLocation writes the enrichment result for one pixel event row.
func (s *Store) SetPixelLocation(ctx context.Context, id int64, name string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE pixel_events SET location_name = ? WHERE id = ?`, name, id,
	); err != nil {
		return fmt.Errorf("failed to set pixel location: %w", err)
	}
	return nil
}

// SetShardLocation writes the enrichment result for one shard row.
func (s *Store) SetShardLocation(ctx context.Context, shardX, shardY int32, name string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE shards SET location_name = ? WHERE shard_x = ? AND shard_y = ?`, name, shardX, shardY,
	); err != nil {
		return fmt.Errorf("failed to set shard location: %w", err)
	}
	return nil
}

// UnresolvedTargets selects up to limit rows whose location is still null or
// the permanent-failure sentinel, newest first across both tables. The
// repair scan uses this to recover entries dropped from the retry queue or
// lost to a restart.
func (s *Store) UnresolvedTargets(ctx context.Context, limit int) ([]EnrichTarget, error) {
	type scored struct {
		target EnrichTarget
		ts     int64
	}
	var all []scored

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, px, py, timestamp FROM pixel_events
		 WHERE location_name IS NULL OR location_name = ?
		 ORDER BY id DESC LIMIT ?`, LocationUnknown, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved pixel events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t EnrichTarget
		var ts int64
		if err := rows.Scan(&t.PixelID, &t.PX, &t.PY, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan unresolved pixel event: %w", err)
		}
		t.Kind = TargetPixel
		all = append(all, scored{target: t, ts: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unresolved pixel events: %w", err)
	}

	shardRows, err := s.db.QueryContext(ctx,
		`SELECT shard_x, shard_y, timestamp FROM shards
		 WHERE location_name IS NULL OR location_name = ?
		 ORDER BY timestamp DESC LIMIT ?`, LocationUnknown, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved shards: %w", err)
	}
	defer shardRows.Close()
	for shardRows.Next() {
		var t EnrichTarget
		var ts int64
		if err := shardRows.Scan(&t.ShardX, &t.ShardY, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan unresolved shard: %w", err)
		}
		t.Kind = TargetShard
		all = append(all, scored{target: t, ts: ts})
	}
	if err := shardRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unresolved shards: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].ts > all[j].ts })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]EnrichTarget, 0, len(all))
	for _, sc := range all {
		out = append(out, sc.target)
	}
	return out, nil
}
