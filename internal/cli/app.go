// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/jeranaias/translink/internal/backend"
	"github.com/jeranaias/translink/internal/config"
	"github.com/jeranaias/translink/internal/contextwin"
	"github.com/jeranaias/translink/internal/entitlement"
	"github.com/jeranaias/translink/internal/logging"
	"github.com/jeranaias/translink/internal/router"
	"github.com/jeranaias/translink/internal/session"
	"github.com/jeranaias/translink/internal/storage"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// TokenEnv is the environment variable holding the managed-mode user token.
const TokenEnv = "TRANSLINK_TOKEN"

// ErrUsage marks a command-line usage error.
var ErrUsage = errors.New("usage error")

// =============================================================================
// APP
// =============================================================================

// App is the translink command-line application. The zero value is not
// usable; call NewApp.
type App struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Getenv func(string) string

	Version   string
	GitCommit string
	BuildDate string

	configPath string
	logLevel   string
	logFormat  string
}

// NewApp returns an App bound to the process streams and environment.
func NewApp() *App {
	return &App{
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
		Getenv:  os.Getenv,
		Version: "dev",
	}
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *App, args []string) error
}

var commands = []command{
	{"status", "Show api mode, context window and managed availability", runStatus},
	{"mode", "Show or switch the api mode (personal|managed)", runMode},
	{"translate", "Translate text, stdin lines, or start an interactive session", runTranslate},
	{"history", "Show recent api mode switches (sqlite storage)", runHistory},
	{"version", "Print version information", runVersion},
}

// Run parses global flags, dispatches the command and returns an exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("translink", pflag.ContinueOnError)
	fs.SetOutput(a.Err)
	fs.SetInterspersed(false)
	fs.StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.translink/config.toml)")
	fs.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	showVersion := fs.BoolP("version", "v", false, "print version and exit")
	fs.Usage = func() { a.printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	configureColors(a.Out, a.Getenv)

	if *showVersion {
		return a.exit(runVersion(ctx, a, nil))
	}

	rest := fs.Args()
	if len(rest) == 0 {
		a.printUsage(fs)
		return ExitUsage
	}

	name := rest[0]
	if name == "help" {
		a.printUsage(fs)
		return ExitOK
	}
	for _, c := range commands {
		if c.name == name {
			return a.exit(c.run(ctx, a, rest[1:]))
		}
	}

	fmt.Fprintf(a.Err, "%s unknown command %q\n\n", ErrorStyle.Render("Error:"), name)
	a.printUsage(fs)
	return ExitUsage
}

func (a *App) exit(err error) int {
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return ExitOK
	case errors.Is(err, ErrUsage):
		fmt.Fprintf(a.Err, "%s %v\n", ErrorStyle.Render("Error:"), err)
		return ExitUsage
	default:
		fmt.Fprintf(a.Err, "%s %v\n", ErrorStyle.Render("Error:"), err)
		return ExitError
	}
}

func (a *App) printUsage(fs *pflag.FlagSet) {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("translink") + " - context-aware translation client\n\n")
	b.WriteString("Usage:\n  translink [global flags] <command> [flags] [args]\n\n")
	b.WriteString("Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-10s %s\n", c.name, c.summary)
	}
	b.WriteString("\nGlobal flags:\n")
	b.WriteString(fs.FlagUsages())
	b.WriteString("\nRun 'translink <command> --help' for command flags.\n")
	io.WriteString(a.Err, b.String())
}

func (a *App) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.Err)
	return fs
}

// usagef wraps a usage error.
func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// =============================================================================
// RUNTIME WIRING
// =============================================================================

// runtime is everything a command needs, built from the config file.
type runtime struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger

	store   router.ConfigStore
	history *storage.SQLiteStore // nil unless storage.backend = "sqlite"

	managed  *backend.Client
	personal *backend.Client
	router   *router.Router
	window   *contextwin.Manager
	session  *session.Session
}

// open loads configuration and wires the store, clients, router, window and
// session together.
func (a *App) open(ctx context.Context) (*runtime, error) {
	path := a.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	logger, err := logging.New(cfg.Logging, a.Err)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, cfgPath: path, logger: logger}

	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		dbPath, err := cfg.DatabasePath()
		if err != nil {
			return nil, err
		}
		db, err := storage.OpenSQLite(ctx, dbPath)
		if err != nil {
			return nil, err
		}
		rt.store = db
		rt.history = db
	default:
		rt.store = config.NewFileStore(path)
	}

	rt.managed = backend.New(cfg.Managed.URL,
		backend.WithTimeout(time.Duration(cfg.Managed.TimeoutSecs)*time.Second),
		backend.WithMaxRetries(cfg.Managed.MaxRetries),
		backend.WithRateLimit(cfg.Managed.RatePerSecond, cfg.Managed.Burst),
		backend.WithLogger(logger.With("client", "managed")),
	)
	rt.personal = backend.New(cfg.Personal.URL,
		backend.WithTimeout(time.Duration(cfg.Personal.TimeoutSecs)*time.Second),
		backend.WithLogger(logger.With("client", "personal")),
	)

	rt.router, err = router.New(ctx, rt.store, rt.buildChecker(), rt.managed,
		router.WithLogger(logger),
		router.WithUsageWarning(0, a.usageWarning),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.window = contextwin.NewManager(cfg.Context, contextwin.WithLogger(logger))
	rt.session = session.New(rt.window, rt.router, rt.personal, session.Config{
		APIKey: cfg.Personal.APIKey,
		Model:  cfg.Personal.Model,
	}, session.WithLogger(logger))

	return rt, nil
}

// buildChecker picks the entitlement source. With no URLs configured the
// managed backend itself answers access checks.
func (rt *runtime) buildChecker() router.AccessChecker {
	ent := rt.cfg.Entitlement
	if ent.AllowAll {
		return entitlement.Allow()
	}
	if len(ent.URLs) == 0 {
		return entitlement.NewHTTPChecker(rt.managed)
	}

	checkers := make([]router.AccessChecker, 0, len(ent.URLs))
	for _, u := range ent.URLs {
		c := backend.New(u,
			backend.WithTimeout(10*time.Second),
			backend.WithMaxRetries(1),
			backend.WithLogger(rt.logger.With("client", "entitlement")),
		)
		checkers = append(checkers, entitlement.NewHTTPChecker(c))
	}
	return entitlement.AnyOf(checkers...)
}

// Close releases the runtime's resources.
func (rt *runtime) Close() error {
	if rt.history != nil {
		return rt.history.Close()
	}
	return nil
}

// applyToken resolves the managed-mode token and hands it to the router.
// When prompt is set and nothing else supplies one, the user is asked.
func (a *App) applyToken(rt *runtime, flagValue string, prompt bool) error {
	token := strings.TrimSpace(flagValue)
	if token == "" {
		token = strings.TrimSpace(a.Getenv(TokenEnv))
	}
	if token == "" && prompt {
		t, err := readSecret(a.In, a.Err, "Managed API token: ", "read the managed api token")
		if err != nil {
			return fmt.Errorf("no managed api token (use --token or $%s): %w", TokenEnv, err)
		}
		token = strings.TrimSpace(t)
	}
	rt.router.SetUserToken(token)
	if token != "" {
		rt.logger.Debug("user token set", "fingerprint", backend.Fingerprint(token))
	}
	return nil
}

func (a *App) usageWarning(u router.Usage) {
	fmt.Fprintf(a.Err, "%s managed usage at %.0f%% (%d of %d)\n",
		WarningStyle.Render("Warning:"), u.Ratio()*100, u.Used, u.Limit)
}

func runVersion(_ context.Context, a *App, _ []string) error {
	fmt.Fprintf(a.Out, "translink %s\n", a.Version)
	if a.GitCommit != "" {
		fmt.Fprintf(a.Out, "  commit: %s\n", a.GitCommit)
	}
	if a.BuildDate != "" {
		fmt.Fprintf(a.Out, "  built:  %s\n", a.BuildDate)
	}
	return nil
}
