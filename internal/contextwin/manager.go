// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextwin

import (
	"log/slog"
	"strings"
	"sync"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager maintains the context window for one translation session.
//
// All operations are total: nothing returns an error and malformed chunks
// (empty strings, empty language codes) are accepted as-is.
type Manager struct {
	mu sync.Mutex

	config Config

	// window is oldest-first; len(window) <= config.MaxChunks after every call
	window []Chunk

	// lastPair is the pair key of the most recently added chunk ("" = none)
	lastPair string

	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager. Non-positive capacity or budget values are
// replaced with the defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	m := &Manager{
		config: cfg,
		window: make([]Chunk, 0, cfg.MaxChunks+1),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// WINDOW MUTATION
// =============================================================================

// AddChunk appends a chunk to the window. It is a no-op while disabled.
//
// With ResetOnLanguageChange set, a chunk whose language pair differs from
// the previous chunk's pair clears the window first: context in another
// language pair actively misleads the translator.
func (m *Manager) AddChunk(chunk Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.config.Enabled {
		return
	}

	pair := chunk.PairKey()
	if m.config.ResetOnLanguageChange && m.lastPair != "" && m.lastPair != pair {
		m.logger.Debug("context window reset on language change",
			"from", m.lastPair, "to", pair, "dropped", len(m.window))
		m.window = m.window[:0]
	}
	m.lastPair = pair

	m.window = append(m.window, chunk)

	// The window was at or under capacity before the append, so one
	// eviction restores the invariant.
	if len(m.window) > m.config.MaxChunks {
		m.window = m.window[1:]
	}
}

// ClearContext empties the window and forgets the language pair.
func (m *Manager) ClearContext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	m.window = m.window[:0]
	m.lastPair = ""
}

// UpdateConfig merges a partial configuration.
//
// Disabling clears the window so that re-enabling starts empty. Shrinking
// MaxChunks below the current size drops the oldest chunks immediately.
// Non-positive MaxChunks or MaxTokens values are ignored.
func (m *Manager) UpdateConfig(update ConfigUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if update.Enabled != nil {
		m.config.Enabled = *update.Enabled
	}
	if update.MaxChunks != nil && *update.MaxChunks > 0 {
		m.config.MaxChunks = *update.MaxChunks
	}
	if update.MaxTokens != nil && *update.MaxTokens > 0 {
		m.config.MaxTokens = *update.MaxTokens
	}
	if update.IncludeSource != nil {
		m.config.IncludeSource = *update.IncludeSource
	}
	if update.ResetOnLanguageChange != nil {
		m.config.ResetOnLanguageChange = *update.ResetOnLanguageChange
	}

	if !m.config.Enabled {
		m.clearLocked()
		return
	}

	if excess := len(m.window) - m.config.MaxChunks; excess > 0 {
		m.window = append(m.window[:0], m.window[excess:]...)
	}
}

// =============================================================================
// CONTEXT RENDERING
// =============================================================================

// GetContextString renders the window using the configured text side:
// source text when IncludeSource is set, translated text otherwise.
func (m *Manager) GetContextString() (string, bool) {
	m.mu.Lock()
	useTranslated := !m.config.IncludeSource
	m.mu.Unlock()
	return m.ContextString(useTranslated)
}

// ContextString renders the window into a single space-joined string.
//
// Chunks are taken newest first until the next one would push the estimated
// cost over MaxTokens; that chunk and everything older is dropped. The
// result reads oldest to newest. ok is false when the manager is disabled,
// the window is empty, or not even the newest chunk fits the budget.
func (m *Manager) ContextString(useTranslated bool) (context string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.config.Enabled || len(m.window) == 0 {
		return "", false
	}

	selected := make([]string, 0, len(m.window))
	used := 0
	for i := len(m.window) - 1; i >= 0; i-- {
		text := m.window[i].text(useTranslated)
		cost := EstimateTokens(text)
		if used+cost > m.config.MaxTokens {
			break
		}
		selected = append(selected, text)
		used += cost
	}

	if len(selected) == 0 {
		return "", false
	}

	// selected is newest-first; flip to reading order
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return strings.Join(selected, " "), true
}

// StructuredContext returns a copy of the window, oldest first.
func (m *Manager) StructuredContext() []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Chunk, len(m.window))
	copy(out, m.window)
	return out
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Config returns the current configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// WindowSize returns the number of chunks in the window.
func (m *Manager) WindowSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.window)
}

// IsEnabled reports whether the manager is enabled.
func (m *Manager) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.Enabled
}

// Stats returns a snapshot of the window. Character and token counts cover
// translated text only.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	chars := 0
	for _, c := range m.window {
		chars += CharCount(c.TranslatedText)
	}

	return Stats{
		Enabled:         m.config.Enabled,
		WindowSize:      len(m.window),
		MaxChunks:       m.config.MaxChunks,
		TotalCharacters: chars,
		EstimatedTokens: tokensForChars(chars),
		LanguagePair:    m.lastPair,
	}
}
