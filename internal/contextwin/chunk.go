// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextwin

import "time"

// =============================================================================
// CHUNK
// =============================================================================

// Chunk is one completed translation unit. Chunks are values; the window
// stores copies and never hands out pointers into its storage.
type Chunk struct {
	SourceText     string    `json:"source_text"`
	TranslatedText string    `json:"translated_text"`
	Timestamp      time.Time `json:"timestamp"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
}

// NewChunk creates a chunk stamped with the current time.
func NewChunk(source, translated, sourceLang, targetLang string) Chunk {
	return Chunk{
		SourceText:     source,
		TranslatedText: translated,
		Timestamp:      time.Now(),
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	}
}

// PairKey returns the "src-tgt" language pair key of the chunk.
func (c Chunk) PairKey() string {
	return c.SourceLanguage + "-" + c.TargetLanguage
}

// text returns the translated or source text of the chunk.
func (c Chunk) text(useTranslated bool) string {
	if useTranslated {
		return c.TranslatedText
	}
	return c.SourceText
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Default window settings.
const (
	DefaultMaxChunks = 5
	DefaultMaxTokens = 500
)

// Config holds the context window configuration.
type Config struct {
	// Enabled is the master switch. A disabled manager holds no chunks.
	Enabled bool `toml:"enabled" json:"enabled" env:"ENABLED"`

	// MaxChunks is the window capacity (positive).
	MaxChunks int `toml:"max_chunks" json:"max_chunks" env:"MAX_CHUNKS"`

	// MaxTokens is the output budget of GetContextString (positive).
	MaxTokens int `toml:"max_tokens" json:"max_tokens" env:"MAX_TOKENS"`

	// IncludeSource builds context from source text instead of translations.
	IncludeSource bool `toml:"include_source" json:"include_source" env:"INCLUDE_SOURCE"`

	// ResetOnLanguageChange clears the window when the language pair changes.
	ResetOnLanguageChange bool `toml:"reset_on_language_change" json:"reset_on_language_change" env:"RESET_ON_LANGUAGE_CHANGE"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		MaxChunks:             DefaultMaxChunks,
		MaxTokens:             DefaultMaxTokens,
		IncludeSource:         false,
		ResetOnLanguageChange: true,
	}
}

// ConfigUpdate is a partial configuration. Nil fields are left unchanged.
type ConfigUpdate struct {
	Enabled               *bool
	MaxChunks             *int
	MaxTokens             *int
	IncludeSource         *bool
	ResetOnLanguageChange *bool
}

// Bool returns a pointer to v, for building a ConfigUpdate.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v, for building a ConfigUpdate.
func Int(v int) *int { return &v }

// FullUpdate returns an update that replaces every field with cfg.
func FullUpdate(cfg Config) ConfigUpdate {
	return ConfigUpdate{
		Enabled:               Bool(cfg.Enabled),
		MaxChunks:             Int(cfg.MaxChunks),
		MaxTokens:             Int(cfg.MaxTokens),
		IncludeSource:         Bool(cfg.IncludeSource),
		ResetOnLanguageChange: Bool(cfg.ResetOnLanguageChange),
	}
}

// =============================================================================
// STATS
// =============================================================================

// Stats is an observational snapshot of the window.
type Stats struct {
	Enabled         bool   `json:"enabled"`
	WindowSize      int    `json:"window_size"`
	MaxChunks       int    `json:"max_chunks"`
	TotalCharacters int    `json:"total_characters"`
	EstimatedTokens int    `json:"estimated_tokens"`
	LanguagePair    string `json:"language_pair"`
}
