// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jeranaias/translink/internal/contextwin"
	"github.com/jeranaias/translink/internal/logging"
	"github.com/jeranaias/translink/internal/router"
	"github.com/jeranaias/translink/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRANSLINK_"

// CurrentVersion is the config file format version.
const CurrentVersion = "1"

// Storage backends accepted by StorageConfig.Backend.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete translink configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Context window settings (hot-reloadable)
	Context contextwin.Config `toml:"context" json:"context" envPrefix:"CONTEXT_"`

	// Persisted API mode record. Written by the router, not by hand.
	APIMode router.ManagedAPIConfig `toml:"api_mode" json:"api_mode"`

	// Managed backend
	Managed ManagedConfig `toml:"managed" json:"managed" envPrefix:"MANAGED_"`

	// User's own OpenAI-compatible provider
	Personal PersonalConfig `toml:"personal" json:"personal" envPrefix:"PERSONAL_"`

	// Entitlement services consulted before switching to managed mode
	Entitlement EntitlementConfig `toml:"entitlement" json:"entitlement" envPrefix:"ENTITLEMENT_"`

	// Where the api mode record lives
	Storage StorageConfig `toml:"storage" json:"storage" envPrefix:"STORAGE_"`

	Logging logging.Config `toml:"logging" json:"logging" envPrefix:"LOG_"`
}

// ManagedConfig configures the managed backend client.
type ManagedConfig struct {
	URL           string  `toml:"url" json:"url" env:"URL"`
	TimeoutSecs   int     `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
	MaxRetries    int     `toml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	RatePerSecond float64 `toml:"rate_per_second" json:"rate_per_second" env:"RATE_PER_SECOND"`
	Burst         int     `toml:"burst" json:"burst" env:"BURST"`
}

// PersonalConfig configures the user's own provider.
type PersonalConfig struct {
	URL         string `toml:"url" json:"url" env:"URL"`
	APIKey      string `toml:"api_key" json:"api_key" env:"API_KEY"`
	Model       string `toml:"model" json:"model" env:"MODEL"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
}

// EntitlementConfig lists entitlement service base URLs. Access is granted
// when any of them grants it. AllowAll skips the check entirely, for
// self-hosted managed backends.
type EntitlementConfig struct {
	URLs     []string `toml:"urls" json:"urls" env:"URLS" envSeparator:","`
	AllowAll bool     `toml:"allow_all" json:"allow_all" env:"ALLOW_ALL"`
}

// StorageConfig selects the api mode store.
type StorageConfig struct {
	// Backend is "file" (this config file) or "sqlite".
	Backend string `toml:"backend" json:"backend" env:"BACKEND"`
	// Path of the SQLite database; defaults to ~/.translink/translink.db.
	Path string `toml:"path" json:"path" env:"PATH"`
}

// Default returns a new Config with all default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Context: contextwin.DefaultConfig(),
		APIMode: router.DefaultManagedAPIConfig(),
		Managed: ManagedConfig{
			URL:           "https://api.translink.app",
			TimeoutSecs:   60,
			MaxRetries:    3,
			RatePerSecond: 5,
			Burst:         10,
		},
		Personal: PersonalConfig{
			URL:         "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			TimeoutSecs: 60,
		},
		Storage: StorageConfig{Backend: StorageFile},
		Logging: logging.DefaultConfig(),
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the translink directory: $TRANSLINK_HOME if set,
// otherwise ~/.translink.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".translink"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DatabasePath returns the SQLite path, honouring Storage.Path.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "translink.db"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads the default config file. A missing file yields defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads a config file with env overrides and validation.
// A missing file yields defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg, _, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decodeFile decodes path over the defaults without env overrides.
// meta is nil when the file does not exist.
func decodeFile(path string) (*Config, *toml.MetaData, error) {
	cfg := Default()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil, nil
	}
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return cfg, &meta, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# translink configuration file")
	fmt.Fprintln(&buf, "# [api_mode] is managed by translink - edit with care")
	fmt.Fprintln(&buf)

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ensureSecurePermissions tightens a config file to 0600. It may hold an
// API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// DEFAULTS / ENV
// =============================================================================

// SetDefaults fills values a hand-edited file may leave empty.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.APIMode.Mode == "" {
		c.APIMode.Mode = router.ModePersonal
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Personal.Model == "" {
		c.Personal.Model = d.Personal.Model
	}
	c.Managed.URL = strings.TrimSuffix(c.Managed.URL, "/")
	c.Personal.URL = strings.TrimSuffix(c.Personal.URL, "/")
}

// ApplyEnvOverrides applies TRANSLINK_* environment variables, for example
// TRANSLINK_CONTEXT_MAX_TOKENS, TRANSLINK_PERSONAL_API_KEY or
// TRANSLINK_ENTITLEMENT_URLS (comma separated).
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors on failure.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if c.Context.MaxChunks <= 0 {
		add("context.max_chunks", "must be positive")
	}
	if c.Context.MaxTokens <= 0 {
		add("context.max_tokens", "must be positive")
	}

	if !c.APIMode.Mode.Valid() {
		add("api_mode.mode", fmt.Sprintf("must be %q or %q", router.ModePersonal, router.ModeManaged))
	}

	if c.Managed.URL != "" {
		if err := validateURL(c.Managed.URL); err != nil {
			add("managed.url", err.Error())
		}
	}
	if c.Managed.TimeoutSecs < 0 {
		add("managed.timeout_secs", "must not be negative")
	}
	if c.Managed.MaxRetries < 0 {
		add("managed.max_retries", "must not be negative")
	}
	if c.Managed.RatePerSecond < 0 {
		add("managed.rate_per_second", "must not be negative")
	}

	if c.Personal.URL != "" {
		if err := validateURL(c.Personal.URL); err != nil {
			add("personal.url", err.Error())
		}
	}

	if c.Personal.TimeoutSecs < 0 {
		add("personal.timeout_secs", "must not be negative")
	}

	for i, u := range c.Entitlement.URLs {
		if err := validateURL(u); err != nil {
			add(fmt.Sprintf("entitlement.urls[%d]", i), err.Error())
		}
	}

	switch c.Storage.Backend {
	case StorageFile, StorageSQLite:
	default:
		add("storage.backend", fmt.Sprintf("must be %q or %q", StorageFile, StorageSQLite))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", err.Error())
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		add("logging.format", fmt.Sprintf("must be %q or %q", logging.FormatText, logging.FormatJSON))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must have a host")
	}
	return nil
}
