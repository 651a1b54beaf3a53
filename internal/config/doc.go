// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and persistence for translink.
//
// Configuration lives in a single TOML file with sensible defaults,
// environment variable overrides and validation. The same file carries the
// persisted api mode record, which FileStore reads and writes on behalf of
// the router.
//
// # Key Types
//
//   - Config: main configuration structure
//   - FileStore: router.ConfigStore over the [api_mode] table
//   - Watcher: reloads the file on change (fsnotify)
//   - ValidateErrors: every validation failure, not just the first
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TRANSLINK_*)
//   - ~/.translink/config.toml (or $TRANSLINK_HOME/config.toml)
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//
// Hot-reload the context window settings:
//
//	w, err := config.NewWatcher(path, 0, logger, func(c *config.Config) {
//	    window.UpdateConfig(contextwin.FullUpdate(c.Context))
//	})
package config
