// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HELPERS
// =============================================================================

// fakeAPI serves /access (entitlement) and /chat/completions (personal).
type fakeAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	hasAccess bool
	reason    string
	replies   []string
	prompts   []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{hasAccess: true}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/access":
		json.NewEncoder(w).Encode(map[string]any{"has_access": f.hasAccess, "reason": f.reason})
	case "/chat/completions":
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			f.prompts = append(f.prompts, req.Messages[0].Content)
		}
		reply := "?"
		if n := len(f.prompts); n <= len(f.replies) {
			reply = f.replies[n-1]
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, reply)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) systemPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// testEnv isolates TRANSLINK_HOME and writes a config file pointing both
// backends at api.
func testEnv(t *testing.T, api *fakeAPI, extra string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TRANSLINK_HOME", home)

	path := filepath.Join(home, "config.toml")
	content := fmt.Sprintf(`
[managed]
url = %q
max_retries = 1

[personal]
url = %q
api_key = "sk-test"

[logging]
level = "error"
%s`, api.server.URL, api.server.URL, extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

type result struct {
	code int
	out  string
	err  string
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &App{
		In:      strings.NewReader(stdin),
		Out:     &out,
		Err:     &errOut,
		Version: "1.2.3",
		Getenv: func(key string) string {
			if key == "NO_COLOR" {
				return "1"
			}
			return ""
		},
	}
	code := a.Run(context.Background(), args)
	return result{code: code, out: out.String(), err: errOut.String()}
}

// =============================================================================
// DISPATCH TESTS
// =============================================================================

func TestRun_NoCommandPrintsUsage(t *testing.T) {
	res := run(t, "")
	assert.Equal(t, ExitUsage, res.code)
	assert.Contains(t, res.err, "Commands:")
	assert.Contains(t, res.err, "translate")
}

func TestRun_Help(t *testing.T) {
	assert.Equal(t, ExitOK, run(t, "", "help").code)
	assert.Equal(t, ExitOK, run(t, "", "--help").code)
}

func TestRun_UnknownCommand(t *testing.T) {
	res := run(t, "", "frobnicate")
	assert.Equal(t, ExitUsage, res.code)
	assert.Contains(t, res.err, `unknown command "frobnicate"`)
}

func TestRun_Version(t *testing.T) {
	res := run(t, "", "--version")
	assert.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.out, "translink 1.2.3")
}

func TestRun_InvalidConfig(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "\n[storage]\nbackend = \"postgres\"\n")

	res := run(t, "", "--config", path, "status")
	assert.Equal(t, ExitError, res.code)
	assert.Contains(t, res.err, "storage.backend")
}

func TestOpen_ClientTimeoutsAreIndependent(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")
	t.Setenv("TRANSLINK_MANAGED_TIMEOUT_SECS", "30")
	t.Setenv("TRANSLINK_PERSONAL_TIMEOUT_SECS", "7")

	a := &App{In: strings.NewReader(""), Out: &bytes.Buffer{}, Err: &bytes.Buffer{}, Getenv: func(string) string { return "" }, configPath: path}
	rt, err := a.open(context.Background())
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 30*time.Second, rt.managed.Timeout())
	assert.Equal(t, 7*time.Second, rt.personal.Timeout())
}

// =============================================================================
// STATUS / MODE TESTS
// =============================================================================

func TestStatus_Defaults(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "status")

	require.Equal(t, ExitOK, res.code, res.err)
	assert.Contains(t, res.out, "personal")
	assert.Contains(t, res.out, "skipped (no token)")
	assert.Contains(t, res.out, "never")
	assert.Contains(t, res.out, path)
}

func TestStatus_ChecksManagedAccessWithToken(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "status", "--token", "tok")

	require.Equal(t, ExitOK, res.code, res.err)
	assert.Contains(t, res.out, "[OK] available")
}

func TestMode_ShowsCurrent(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "mode")
	require.Equal(t, ExitOK, res.code, res.err)
	assert.Equal(t, "personal\n", res.out)
}

func TestMode_SwitchToManagedPersists(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "mode", "managed", "--token", "tok")
	require.Equal(t, ExitOK, res.code, res.err)
	assert.Contains(t, res.out, "api mode is now managed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `mode = "managed"`)

	res = run(t, "", "--config", path, "mode")
	assert.Equal(t, "managed\n", res.out)
}

func TestMode_ManagedDeniedKeepsPersonal(t *testing.T) {
	api := newFakeAPI(t)
	api.hasAccess = false
	api.reason = "no subscription"
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "mode", "managed", "--token", "tok")
	assert.Equal(t, ExitError, res.code)
	assert.Contains(t, res.err, "no subscription")

	res = run(t, "", "--config", path, "mode")
	assert.Equal(t, "personal\n", res.out)
}

func TestMode_ManagedWithoutTokenOffTerminal(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "mode", "managed")
	assert.Equal(t, ExitError, res.code)
	assert.Contains(t, res.err, TokenEnv)
}

func TestMode_InvalidMode(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "mode", "enterprise")
	assert.Equal(t, ExitUsage, res.code)
}

// =============================================================================
// TRANSLATE TESTS
// =============================================================================

func TestTranslate_OneShot(t *testing.T) {
	api := newFakeAPI(t)
	api.replies = []string{"konnichiwa"}
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "translate", "--from", "en", "--to", "ja", "hello", "there")

	require.Equal(t, ExitOK, res.code, res.err)
	assert.Equal(t, "konnichiwa\n", res.out)
	prompts := api.systemPrompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "English")
	assert.Contains(t, prompts[0], "Japanese")
}

func TestTranslate_StdinLinesShareContext(t *testing.T) {
	api := newFakeAPI(t)
	api.replies = []string{"ohayou", "arigatou"}
	path := testEnv(t, api, "")

	res := run(t, "good morning\n\nthank you\n", "--config", path, "translate", "-f", "en", "-t", "ja")

	require.Equal(t, ExitOK, res.code, res.err)
	assert.Equal(t, "ohayou\narigatou\n", res.out)
	prompts := api.systemPrompts()
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "ohayou")
	assert.Contains(t, prompts[1], "ohayou", "first translation becomes context")
}

func TestTranslate_InvalidLanguage(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "translate", "--to", "not a language", "hi")
	assert.Equal(t, ExitUsage, res.code)
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in        string
		allowAuto bool
		want      string
		wantErr   bool
	}{
		{"en", false, "en", false},
		{"ja-jp", false, "ja-JP", false},
		{"AUTO", true, "auto", false},
		{"auto", false, "", true},
		{"!!", false, "", true},
	}
	for _, tt := range tests {
		got, err := normalizeLanguage(tt.in, tt.allowAuto)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

// =============================================================================
// INTERACTIVE COMMAND TESTS
// =============================================================================

func newTestTranslator(t *testing.T, api *fakeAPI, extra string) (*translator, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	path := testEnv(t, api, extra)

	var out, errOut bytes.Buffer
	a := &App{In: strings.NewReader(""), Out: &out, Err: &errOut, Getenv: func(string) string { return "" }, configPath: path}
	rt, err := a.open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	return &translator{out: &out, errOut: &errOut, rt: rt, from: "en", to: "ja"}, &out, &errOut
}

func TestCommand_LanguagesAndQuit(t *testing.T) {
	tr, _, errOut := newTestTranslator(t, newFakeAPI(t), "")
	ctx := context.Background()

	assert.False(t, tr.command(ctx, "/from de"))
	assert.False(t, tr.command(ctx, "/to fr"))
	assert.Equal(t, "de>fr> ", tr.prompt())

	tr.command(ctx, "/to !!")
	assert.Equal(t, "fr", tr.to)
	assert.Contains(t, errOut.String(), "invalid language")

	assert.True(t, tr.command(ctx, "/quit"))
	assert.True(t, tr.command(ctx, "/EXIT"))
}

func TestCommand_ContextAndClear(t *testing.T) {
	api := newFakeAPI(t)
	api.replies = []string{"ohayou"}
	tr, out, _ := newTestTranslator(t, api, "")
	ctx := context.Background()

	require.NoError(t, tr.translate(ctx, "good morning", true))
	assert.Contains(t, out.String(), "ohayou")
	assert.Contains(t, out.String(), "personal")

	out.Reset()
	tr.command(ctx, "/context")
	assert.Contains(t, out.String(), "ohayou")

	tr.command(ctx, "/clear")
	assert.Equal(t, 0, tr.rt.window.WindowSize())

	out.Reset()
	tr.command(ctx, "/context")
	assert.Contains(t, out.String(), "No context.")
}

func TestCommand_Status(t *testing.T) {
	api := newFakeAPI(t)
	api.replies = []string{"hallo"}
	tr, out, _ := newTestTranslator(t, api, "")
	ctx := context.Background()

	require.NoError(t, tr.translate(ctx, "hello", false))
	out.Reset()
	tr.command(ctx, "/status")

	assert.Contains(t, out.String(), tr.rt.session.ID())
	assert.Contains(t, out.String(), "1/5")
	assert.Contains(t, out.String(), "en-ja")
}

func TestCommand_ModePromptsForToken(t *testing.T) {
	tr, out, errOut := newTestTranslator(t, newFakeAPI(t), "")
	ctx := context.Background()

	var prompted int
	tr.promptSecret = func(string) (string, error) {
		prompted++
		return " tok ", nil
	}

	tr.command(ctx, "/mode managed")
	assert.Equal(t, 1, prompted)
	assert.Empty(t, errOut.String())
	assert.Contains(t, out.String(), "api mode is now managed")

	out.Reset()
	tr.command(ctx, "/mode")
	assert.Equal(t, "managed\n", out.String())

	tr.command(ctx, "/mode personal")
	assert.Equal(t, 1, prompted, "personal needs no token")
}

func TestCommand_Unknown(t *testing.T) {
	tr, _, errOut := newTestTranslator(t, newFakeAPI(t), "")
	assert.False(t, tr.command(context.Background(), "/dance"))
	assert.Contains(t, errOut.String(), "unknown command /dance")
}

func TestReloadContext(t *testing.T) {
	tr, _, _ := newTestTranslator(t, newFakeAPI(t), "")

	cfg := tr.rt.cfg
	cfg.Context.MaxChunks = 2
	cfg.Context.Enabled = false
	tr.reloadContext(cfg)

	assert.Equal(t, 2, tr.rt.window.Config().MaxChunks)
	assert.False(t, tr.rt.window.IsEnabled())
}

func TestReloadContext_QuietAtInfo(t *testing.T) {
	tr, _, _ := newTestTranslator(t, newFakeAPI(t), "")
	var logs bytes.Buffer
	tr.rt.logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	tr.reloadContext(tr.rt.cfg)

	assert.Empty(t, logs.String(), "reload must not write over the interactive prompt")
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestHistory_RequiresSQLite(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "")

	res := run(t, "", "--config", path, "history")
	assert.Equal(t, ExitError, res.code)
	assert.Contains(t, res.err, "sqlite")
}

func TestHistory_SQLite(t *testing.T) {
	api := newFakeAPI(t)
	path := testEnv(t, api, "\n[storage]\nbackend = \"sqlite\"\n\n[entitlement]\nallow_all = true\n")

	require.Equal(t, ExitOK, run(t, "", "--config", path, "mode", "managed", "--token", "tok").code)
	require.Equal(t, ExitOK, run(t, "", "--config", path, "mode", "personal").code)

	res := run(t, "", "--config", path, "history")
	require.Equal(t, ExitOK, res.code, res.err)
	lines := strings.Split(strings.TrimSpace(res.out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[2], "managed -> personal")
	assert.Contains(t, lines[3], "- -> managed")

	res = run(t, "", "--config", path, "history", "-n", "1")
	assert.NotContains(t, res.out, "- -> managed")
}

// =============================================================================
// TERMINAL TESTS
// =============================================================================

func TestColorsEnabled(t *testing.T) {
	env := func(kv map[string]string) func(string) string {
		return func(k string) string { return kv[k] }
	}
	var buf bytes.Buffer

	assert.False(t, colorsEnabled(&buf, env(nil)), "non-terminal writer")
	assert.True(t, colorsEnabled(&buf, env(map[string]string{"FORCE_COLOR": "1"})))
	assert.False(t, colorsEnabled(&buf, env(map[string]string{"FORCE_COLOR": "1", "NO_COLOR": "1"})))
}

func TestReadSecret_RequiresTerminal(t *testing.T) {
	_, err := readSecret(strings.NewReader("tok\n"), &bytes.Buffer{}, "Token: ", "read a token")
	var ttyErr *TTYRequiredError
	require.ErrorAs(t, err, &ttyErr)
	assert.Equal(t, "read a token", ttyErr.Operation)
}
