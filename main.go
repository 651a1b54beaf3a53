// translink - context-aware translation client with personal and managed api modes.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/translink/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := cli.NewApp()
	app.Version = Version
	app.GitCommit = GitCommit
	app.BuildDate = BuildDate

	code := app.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
