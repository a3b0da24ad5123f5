package storage

const schemaVersion = "1"

const schemaSQL = `
-- One row per mirror run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY NOT NULL,
    seed_url TEXT NOT NULL,
    target_dir TEXT NOT NULL,
    depth INTEGER NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,

    -- Totals, filled in when the run finishes
    pages INTEGER NOT NULL DEFAULT 0,
    resources INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    links_unresolved INTEGER NOT NULL DEFAULT 0,
    discovery_failures INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed_url, started_at);

-- Pages written (or attempted) by a run
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    canonical_url TEXT NOT NULL,
    local_path TEXT NOT NULL,
    title TEXT,
    status TEXT NOT NULL CHECK (status IN ('saved', 'failed')),
    error TEXT,
    saved_at DATETIME NOT NULL,
    UNIQUE(run_id, canonical_url)
);

CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id, id);

-- Distinct static resources of a run, keyed by URL hash
CREATE TABLE IF NOT EXISTS resources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    hash TEXT NOT NULL,
    source_url TEXT NOT NULL,
    local_path TEXT NOT NULL,
    reused INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    saved_at DATETIME NOT NULL,
    UNIQUE(run_id, hash)
);

CREATE INDEX IF NOT EXISTS idx_resources_run ON resources(run_id, id);

-- Key-value metadata about the manifest itself
CREATE TABLE IF NOT EXISTS manifest_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
