// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for the api mode record.
//
// SQLiteStore is an alternative to the TOML-backed config.FileStore for
// installs that prefer a database. Every successful write also appends a
// row to a mode switch history, which the CLI shows with
// "translink history".
//
// # Key Types
//
//   - SQLiteStore: router.ConfigStore backed by SQLite (pure Go driver)
//   - Switch: one entry in the mode switch history
//
// # Usage
//
//	store, err := storage.OpenSQLite(ctx, "/home/me/.translink/translink.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	r, err := router.New(ctx, store, checker, managed)
//	...
//	switches, err := store.History(ctx, 20)
//
// # Storage Location
//
// The database defaults to ~/.translink/translink.db.
package storage
