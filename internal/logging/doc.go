// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the process logger from the [logging] config section.
//
// Text output uses tint (coloured when writing to a terminal); "json" output
// uses the standard slog JSON handler for log shippers.
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
package logging
