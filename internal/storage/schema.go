// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// SchemaVersion tracks the database schema version for migrations.
const SchemaVersion = 1

// Schema is applied on every open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Single-row table holding the current api mode record
CREATE TABLE IF NOT EXISTS api_mode (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    mode TEXT NOT NULL,
    last_mode_switch TEXT NOT NULL DEFAULT '',
    usage_warnings_enabled INTEGER NOT NULL,
    auto_switch_on_limit INTEGER NOT NULL
);

-- Append-only history of successful writes
CREATE TABLE IF NOT EXISTS mode_switches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_mode TEXT NOT NULL DEFAULT '',
    to_mode TEXT NOT NULL,
    switched_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mode_switches_switched_at ON mode_switches(switched_at);
`

// InitMetadata seeds the metadata table.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`
