// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the translink command-line interface.
//
// # Commands
//
//   - status: show api mode, context window settings and managed availability
//   - mode [personal|managed]: show or switch the api mode
//   - translate [text...]: translate once, or start an interactive session
//   - history: show recent api mode switches (sqlite storage only)
//
// Global flags (--config, --log-level, --log-format) come before the
// command. The managed-mode user token is read from --token,
// $TRANSLINK_TOKEN, or a hidden prompt when stdin is a terminal. It is never
// written to disk.
//
// # Usage
//
//	app := cli.NewApp()
//	os.Exit(app.Run(ctx, os.Args[1:]))
package cli
