package store

// Logical tables of the materialized view. processed_sigs is the idempotency
// gate: a signature is inserted in the same transaction as the writes it
// covers, never before them.
const schema = `
CREATE TABLE IF NOT EXISTS processed_sigs (
	signature    TEXT PRIMARY KEY,
	processed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_state (
	label          TEXT PRIMARY KEY,
	last_signature TEXT NOT NULL,
	updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pixel_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	px            INTEGER NOT NULL,
	py            INTEGER NOT NULL,
	color         INTEGER NOT NULL,
	main_wallet   TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	location_name TEXT
);

CREATE INDEX IF NOT EXISTS idx_pixel_events_coords ON pixel_events(px, py);

CREATE TABLE IF NOT EXISTS shards (
	shard_x       INTEGER NOT NULL,
	shard_y       INTEGER NOT NULL,
	main_wallet   TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	location_name TEXT,
	PRIMARY KEY (shard_x, shard_y)
);

CREATE INDEX IF NOT EXISTS idx_shards_owner ON shards(main_wallet);

CREATE TABLE IF NOT EXISTS users (
	main_wallet         TEXT PRIMARY KEY,
	pixels_placed_count INTEGER NOT NULL DEFAULT 0,
	shards_owned_count  INTEGER NOT NULL DEFAULT 0,
	session_address     TEXT
);

CREATE TABLE IF NOT EXISTS global_stats (
	id                    INTEGER PRIMARY KEY CHECK (id = 1),
	total_pixels_placed   INTEGER NOT NULL DEFAULT 0,
	total_shards_deployed INTEGER NOT NULL DEFAULT 0
);

INSERT INTO global_stats (id) VALUES (1) ON CONFLICT(id) DO NOTHING;
`
