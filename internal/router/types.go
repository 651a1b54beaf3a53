// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ============================================================================
// MODE
// ============================================================================

// Mode selects who serves AI requests.
type Mode string

const (
	// ModePersonal routes requests to the caller's own client and key.
	ModePersonal Mode = "personal"
	// ModeManaged routes requests to the managed backend.
	ModeManaged Mode = "managed"
)

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePersonal || m == ModeManaged
}

// ParseMode parses a mode name (case-insensitive).
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// ============================================================================
// PERSISTED CONFIG
// ============================================================================

// ManagedAPIConfig is the persisted mode record.
type ManagedAPIConfig struct {
	Mode                 Mode   `toml:"mode" json:"mode"`
	LastModeSwitch       string `toml:"last_mode_switch" json:"lastModeSwitch"`
	UsageWarningsEnabled bool   `toml:"usage_warnings_enabled" json:"usageWarningsEnabled"`
	AutoSwitchOnLimit    bool   `toml:"auto_switch_on_limit" json:"autoSwitchOnLimit"`
}

// DefaultManagedAPIConfig returns the record used when the store has none.
func DefaultManagedAPIConfig() ManagedAPIConfig {
	return ManagedAPIConfig{
		Mode:                 ModePersonal,
		UsageWarningsEnabled: true,
		AutoSwitchOnLimit:    false,
	}
}

// StoredConfig is the slice of the configuration store the router reads and
// writes. A nil ManagedAPIConfig means "not set".
type StoredConfig struct {
	ManagedAPIConfig *ManagedAPIConfig
}

// ============================================================================
// REQUEST / RESPONSE
// ============================================================================

// Kind identifies the request family being routed.
type Kind string

const (
	KindChat          Kind = "chat"
	KindTranslation   Kind = "translation"
	KindTranscription Kind = "transcription"
	KindTTS           Kind = "tts"
)

// DefaultEndpoint returns the managed endpoint used when a request leaves
// Endpoint empty.
func (k Kind) DefaultEndpoint() string {
	switch k {
	case KindTranslation:
		return "/v1/translate"
	case KindTranscription:
		return "/v1/audio/transcriptions"
	case KindTTS:
		return "/v1/audio/speech"
	default:
		return "/v1/chat/completions"
	}
}

// Request is the envelope forwarded to the managed backend. Body is any
// JSON-serialisable value; by convention it already carries the context
// string of the translation session.
type Request struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	Body     any    `json:"body,omitempty"`
}

// withDefaults fills Endpoint and Method for kind.
func (r Request) withDefaults(kind Kind) Request {
	if r.Endpoint == "" {
		r.Endpoint = kind.DefaultEndpoint()
	}
	if r.Method == "" {
		r.Method = http.MethodPost
	}
	return r
}

// Usage is optional quota information attached by the managed backend.
type Usage struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Ratio returns Used/Limit, or 0 when no limit is reported.
func (u Usage) Ratio() float64 {
	if u.Limit <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Limit)
}

// Response is the managed backend's reply, returned to callers unchanged.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Usage   *Usage          `json:"usage,omitempty"`
}

// AccessResult is the outcome of an entitlement check.
type AccessResult struct {
	HasAccess bool   `json:"has_access"`
	Reason    string `json:"reason,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
}

// ============================================================================
// COLLABORATORS
// ============================================================================

// ConfigStore persists the mode record.
type ConfigStore interface {
	GetConfig(ctx context.Context) (StoredConfig, error)
	UpdateConfig(ctx context.Context, partial StoredConfig) error
}

// AccessChecker answers whether a token may use managed mode.
type AccessChecker interface {
	CheckAccess(ctx context.Context, token string) (AccessResult, error)
}

// BackendClient performs a managed call on behalf of the token holder.
type BackendClient interface {
	Call(ctx context.Context, token string, req Request) (*Response, error)
}
