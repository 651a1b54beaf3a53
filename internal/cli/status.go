// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jeranaias/translink/internal/config"
	"github.com/jeranaias/translink/internal/contextwin"
	"github.com/jeranaias/translink/internal/router"
	"github.com/jeranaias/translink/internal/session"
)

func runStatus(ctx context.Context, a *App, args []string) error {
	fs := a.newFlagSet("status")
	token := fs.String("token", "", "managed api token (default $"+TokenEnv+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := a.applyToken(rt, *token, false); err != nil {
		return err
	}

	fmt.Fprintln(a.Out, TitleStyle.Render("translink status"))
	fmt.Fprintln(a.Out, RenderSeparator())
	writeModeSection(a.Out, rt.router.ManagedAPIConfig())

	access := "skipped (no token)"
	if rt.router.HasUserToken() {
		if rt.router.IsManagedModeAvailable(ctx) {
			access = RenderStatus("ok") + " available"
		} else {
			access = RenderStatus("no") + " unavailable"
		}
	}
	fmt.Fprintln(a.Out, RenderField("Managed access", access))

	writeContextSection(a.Out, rt.window.Config(), nil)
	writeStorageSection(a.Out, rt)
	return nil
}

func writeModeSection(w io.Writer, cfg router.ManagedAPIConfig) {
	fmt.Fprintln(w, SectionStyle.Render("API Mode"))
	fmt.Fprintln(w, RenderField("Mode", RenderMode(string(cfg.Mode))))
	last := cfg.LastModeSwitch
	if last == "" {
		last = "never"
	}
	fmt.Fprintln(w, RenderField("Last switch", last))
	fmt.Fprintln(w, RenderField("Usage warnings", onOff(cfg.UsageWarningsEnabled)))
	fmt.Fprintln(w, RenderField("Auto switch on limit", onOff(cfg.AutoSwitchOnLimit)))
}

// writeContextSection renders window settings and, when stats is non-nil,
// the live window contents.
func writeContextSection(w io.Writer, cfg contextwin.Config, stats *contextwin.Stats) {
	fmt.Fprintln(w, SectionStyle.Render("Context Window"))
	fmt.Fprintln(w, RenderField("Enabled", onOff(cfg.Enabled)))
	fmt.Fprintln(w, RenderField("Max chunks", strconv.Itoa(cfg.MaxChunks)))
	fmt.Fprintln(w, RenderField("Max tokens", strconv.Itoa(cfg.MaxTokens)))
	fmt.Fprintln(w, RenderField("Include source", onOff(cfg.IncludeSource)))
	fmt.Fprintln(w, RenderField("Reset on lang change", onOff(cfg.ResetOnLanguageChange)))
	if stats == nil {
		return
	}
	fmt.Fprintln(w, RenderField("Chunks", fmt.Sprintf("%d/%d", stats.WindowSize, stats.MaxChunks)))
	fmt.Fprintln(w, RenderField("Est. tokens", strconv.Itoa(stats.EstimatedTokens)))
	pair := stats.LanguagePair
	if pair == "" {
		pair = "-"
	}
	fmt.Fprintln(w, RenderField("Language pair", pair))
}

func writeStorageSection(w io.Writer, rt *runtime) {
	fmt.Fprintln(w, SectionStyle.Render("Storage"))
	fmt.Fprintln(w, RenderField("Config file", rt.cfgPath))
	fmt.Fprintln(w, RenderField("Backend", rt.cfg.Storage.Backend))
	if rt.cfg.Storage.Backend == config.StorageSQLite {
		if p, err := rt.cfg.DatabasePath(); err == nil {
			fmt.Fprintln(w, RenderField("Database", p))
		}
	}
}

func writeSessionSection(w io.Writer, st session.Status) {
	fmt.Fprintln(w, SectionStyle.Render("Session"))
	fmt.Fprintln(w, RenderField("ID", st.ID))
	fmt.Fprintln(w, RenderField("Mode", RenderMode(string(st.Mode))))
	fmt.Fprintln(w, RenderField("Duration", session.FormatDuration(st.Duration)))
	fmt.Fprintln(w, RenderField("Translations", strconv.Itoa(st.Stats.Translations)))
	fmt.Fprintln(w, RenderField("Managed / personal", fmt.Sprintf("%d / %d", st.Stats.ManagedCalls, st.Stats.PersonalCalls)))
	fmt.Fprintln(w, RenderField("Failures", strconv.Itoa(st.Stats.Failures)))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
