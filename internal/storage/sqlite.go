// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/jeranaias/translink/internal/router"
)

// Switch is one entry in the mode switch history.
type Switch struct {
	ID         int64
	From       router.Mode
	To         router.Mode
	SwitchedAt string
}

// SQLiteStore implements router.ConfigStore on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetConfig returns the stored record, or a nil record if none was written.
func (s *SQLiteStore) GetConfig(ctx context.Context) (router.StoredConfig, error) {
	var rec router.ManagedAPIConfig
	var mode string
	err := s.db.QueryRowContext(ctx, `
		SELECT mode, last_mode_switch, usage_warnings_enabled, auto_switch_on_limit
		FROM api_mode WHERE id = 1
	`).Scan(&mode, &rec.LastModeSwitch, &rec.UsageWarningsEnabled, &rec.AutoSwitchOnLimit)

	if errors.Is(err, sql.ErrNoRows) {
		return router.StoredConfig{}, nil
	}
	if err != nil {
		return router.StoredConfig{}, fmt.Errorf("failed to read api mode: %w", err)
	}

	rec.Mode = router.Mode(mode)
	return router.StoredConfig{ManagedAPIConfig: &rec}, nil
}

// UpdateConfig upserts the record and appends a history row, in one
// transaction.
func (s *SQLiteStore) UpdateConfig(ctx context.Context, partial router.StoredConfig) error {
	rec := partial.ManagedAPIConfig
	if rec == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var from string
	err = tx.QueryRowContext(ctx, `SELECT mode FROM api_mode WHERE id = 1`).Scan(&from)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read api mode: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO api_mode (id, mode, last_mode_switch, usage_warnings_enabled, auto_switch_on_limit)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			last_mode_switch = excluded.last_mode_switch,
			usage_warnings_enabled = excluded.usage_warnings_enabled,
			auto_switch_on_limit = excluded.auto_switch_on_limit
	`, string(rec.Mode), rec.LastModeSwitch, rec.UsageWarningsEnabled, rec.AutoSwitchOnLimit)
	if err != nil {
		return fmt.Errorf("failed to write api mode: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mode_switches (from_mode, to_mode, switched_at) VALUES (?, ?, ?)
	`, from, string(rec.Mode), rec.LastModeSwitch)
	if err != nil {
		return fmt.Errorf("failed to record mode switch: %w", err)
	}

	return tx.Commit()
}

// History returns up to limit switches, newest first. limit <= 0 means all.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]Switch, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_mode, to_mode, switched_at
		FROM mode_switches
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Switch
	for rows.Next() {
		var sw Switch
		var from, to string
		if err := rows.Scan(&sw.ID, &from, &to, &sw.SwitchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		sw.From = router.Mode(from)
		sw.To = router.Mode(to)
		out = append(out, sw)
	}
	return out, rows.Err()
}
