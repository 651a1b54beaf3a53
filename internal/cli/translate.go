// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/text/language"

	"github.com/jeranaias/translink/internal/config"
	"github.com/jeranaias/translink/internal/contextwin"
	"github.com/jeranaias/translink/internal/router"
	"github.com/jeranaias/translink/internal/session"
	"github.com/jeranaias/translink/internal/util"
)

// autoLanguage lets the model detect the source language.
const autoLanguage = "auto"

// historyFile is the REPL history file name inside the config dir.
const historyFile = "history"

// maxHistory bounds the saved REPL history.
const maxHistory = 500

func runTranslate(ctx context.Context, a *App, args []string) error {
	fs := a.newFlagSet("translate")
	from := fs.StringP("from", "f", autoLanguage, "source language (BCP 47, or auto)")
	to := fs.StringP("to", "t", "en", "target language (BCP 47)")
	token := fs.String("token", "", "managed api token (default $"+TokenEnv+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	src, err := normalizeLanguage(*from, true)
	if err != nil {
		return usagef("--from: %v", err)
	}
	tgt, err := normalizeLanguage(*to, false)
	if err != nil {
		return usagef("--to: %v", err)
	}

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := a.applyToken(rt, *token, false); err != nil {
		return err
	}

	t := &translator{out: a.Out, errOut: a.Err, rt: rt, from: src, to: tgt}
	switch {
	case fs.NArg() > 0:
		return t.translate(ctx, strings.Join(fs.Args(), " "), false)
	case !isTerminal(a.In):
		return t.stream(ctx, a.In)
	default:
		return t.repl(ctx)
	}
}

// normalizeLanguage validates a BCP 47 tag and returns its canonical form.
func normalizeLanguage(code string, allowAuto bool) (string, error) {
	code = strings.TrimSpace(code)
	if allowAuto && strings.EqualFold(code, autoLanguage) {
		return autoLanguage, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language %q", code)
	}
	return tag.String(), nil
}

// =============================================================================
// TRANSLATOR
// =============================================================================

// translator runs translations for one CLI invocation.
type translator struct {
	out    io.Writer
	errOut io.Writer
	rt     *runtime
	from   string
	to     string

	// promptSecret reads a hidden value in interactive mode.
	promptSecret func(prompt string) (string, error)
}

// translate translates one piece of text. Interactive output carries a
// dim tag naming the mode and whether context was used.
func (t *translator) translate(ctx context.Context, text string, interactive bool) error {
	res, err := t.rt.session.Translate(ctx, text, t.from, t.to)
	if err != nil {
		return err
	}

	if !interactive {
		fmt.Fprintln(t.out, res.Text)
		return nil
	}

	tag := RenderMode(string(res.Mode))
	if res.ContextUsed {
		tag += DimStyle.Render(", with context")
	}
	fmt.Fprintf(t.out, "%s\n%s\n", res.Text,
		DimStyle.Render("(")+tag+DimStyle.Render(", "+session.FormatDuration(res.Duration)+")"))
	return nil
}

// stream translates r line by line. Blank lines are skipped. Each line is a
// chunk, so earlier lines become context for later ones.
func (t *translator) stream(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var total, failed int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		total++
		if err := t.translate(ctx, text, false); err != nil {
			failed++
			fmt.Fprintf(t.errOut, "%s line %d: %v\n", ErrorStyle.Render("Error:"), total, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lines failed", failed, total)
	}
	return nil
}

// =============================================================================
// INTERACTIVE SESSION
// =============================================================================

func (t *translator) repl(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	t.promptSecret = line.PasswordPrompt

	histPath := replHistoryPath()
	if histPath != "" {
		if f, err := os.Open(histPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	w, err := config.NewWatcher(t.rt.cfgPath, 0, t.rt.logger, t.reloadContext)
	if err == nil {
		if err := w.Watch(); err != nil {
			t.rt.logger.Warn("config hot reload disabled", "error", err)
		}
		defer w.Close()
	}

	fmt.Fprintln(t.out, TitleStyle.Render("translink")+DimStyle.Render(" interactive session "+t.rt.session.ID()))
	fmt.Fprintln(t.out, DimStyle.Render("Type text to translate, /help for commands, Ctrl+D to exit."))

	for ctx.Err() == nil {
		input, err := line.Prompt(t.prompt())
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if t.command(ctx, input) {
				break
			}
			continue
		}
		if err := t.translate(ctx, input, true); err != nil {
			fmt.Fprintf(t.errOut, "%s %v\n", ErrorStyle.Render("Error:"), err)
		}
	}

	if histPath != "" {
		var buf bytes.Buffer
		if _, err := line.WriteHistory(&buf); err == nil {
			if err := util.AtomicWriteFile(histPath, buf.Bytes(), 0600); err != nil {
				t.rt.logger.Warn("failed to save history", "error", err)
			}
		}
	}
	return nil
}

func (t *translator) prompt() string {
	return t.from + ">" + t.to + "> "
}

// reloadContext applies a reloaded [context] section to the live window.
func (t *translator) reloadContext(cfg *config.Config) {
	t.rt.window.UpdateConfig(contextwin.FullUpdate(cfg.Context))
	// Runs on the watcher goroutine while liner owns the terminal: keep it
	// below the default log level.
	t.rt.logger.Debug("context settings reloaded",
		"enabled", cfg.Context.Enabled,
		"max_chunks", cfg.Context.MaxChunks,
		"max_tokens", cfg.Context.MaxTokens)
}

func replHistoryPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, historyFile)
}

const replHelp = `Commands:
  /from <lang>          set the source language (or auto)
  /to <lang>            set the target language
  /mode [personal|managed]
                        show or switch the api mode
  /context              show the context sent with the next request
  /clear                clear the context window
  /status               show session and window status
  /help                 show this help
  /quit                 exit`

// command runs a slash command and reports whether the session should end.
func (t *translator) command(ctx context.Context, input string) (quit bool) {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]

	fail := func(err error) {
		fmt.Fprintf(t.errOut, "%s %v\n", ErrorStyle.Render("Error:"), err)
	}

	switch name {
	case "/quit", "/exit", "/q":
		return true

	case "/help", "/?":
		fmt.Fprintln(t.out, replHelp)

	case "/clear":
		t.rt.session.Reset()
		fmt.Fprintln(t.out, DimStyle.Render("Context cleared."))

	case "/context":
		text, ok := t.rt.window.GetContextString()
		if !ok {
			fmt.Fprintln(t.out, DimStyle.Render("No context."))
			break
		}
		fmt.Fprintln(t.out, DimStyle.Render(text))

	case "/status":
		st := t.rt.session.Status()
		writeSessionSection(t.out, st)
		writeContextSection(t.out, t.rt.window.Config(), &st.Window)

	case "/from", "/to":
		if len(args) != 1 {
			fail(fmt.Errorf("usage: %s <lang>", name))
			break
		}
		code, err := normalizeLanguage(args[0], name == "/from")
		if err != nil {
			fail(err)
			break
		}
		if name == "/from" {
			t.from = code
		} else {
			t.to = code
		}

	case "/mode":
		if len(args) == 0 {
			fmt.Fprintln(t.out, RenderMode(string(t.rt.router.Mode())))
			break
		}
		mode, err := router.ParseMode(args[0])
		if err != nil {
			fail(err)
			break
		}
		if mode == router.ModeManaged && !t.rt.router.HasUserToken() && t.promptSecret != nil {
			token, err := t.promptSecret("Managed API token: ")
			if err != nil {
				fail(err)
				break
			}
			t.rt.router.SetUserToken(strings.TrimSpace(token))
		}
		if err := switchMode(ctx, t.out, t.rt.router, mode); err != nil {
			fail(err)
		}

	default:
		fail(fmt.Errorf("unknown command %s (try /help)", name))
	}
	return false
}
