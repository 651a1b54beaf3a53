// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jeranaias/translink/internal/router"
)

func runMode(ctx context.Context, a *App, args []string) error {
	fs := a.newFlagSet("mode")
	token := fs.String("token", "", "managed api token (default $"+TokenEnv+", else prompt)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return usagef("mode takes at most one argument")
	}

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if fs.NArg() == 0 {
		fmt.Fprintf(a.Out, "%s\n", RenderMode(string(rt.router.Mode())))
		return nil
	}

	mode, err := router.ParseMode(fs.Arg(0))
	if err != nil {
		return usagef("%v", err)
	}
	if mode == router.ModeManaged {
		if err := a.applyToken(rt, *token, true); err != nil {
			return err
		}
	}
	return switchMode(ctx, a.Out, rt.router, mode)
}

// switchMode switches r to mode and reports the outcome on w.
func switchMode(ctx context.Context, w io.Writer, r *router.Router, mode router.Mode) error {
	if err := r.SetMode(ctx, mode); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s api mode is now %s\n", RenderStatus("ok"), RenderMode(string(mode)))
	return nil
}
