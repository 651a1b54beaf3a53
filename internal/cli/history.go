// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/translink/internal/config"
)

// ErrNoHistory is returned by the history command on file storage.
var ErrNoHistory = errors.New(`mode history needs [storage] backend = "` + config.StorageSQLite + `"`)

func runHistory(ctx context.Context, a *App, args []string) error {
	fs := a.newFlagSet("history")
	limit := fs.IntP("limit", "n", 20, "number of entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit < 1 {
		return usagef("--limit must be positive")
	}

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.history == nil {
		return ErrNoHistory
	}

	switches, err := rt.history.History(ctx, *limit)
	if err != nil {
		return err
	}
	if len(switches) == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("No mode switches recorded."))
		return nil
	}

	fmt.Fprintln(a.Out, TitleStyle.Render("Mode switches"))
	fmt.Fprintln(a.Out, RenderSeparator())
	for _, s := range switches {
		from := string(s.From)
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(a.Out, "%s  %s -> %s\n",
			DimStyle.Render(s.SwitchedAt), from, RenderMode(string(s.To)))
	}
	return nil
}
