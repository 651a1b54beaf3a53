// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultUsageWarningThreshold is the used/limit ratio that triggers a usage
// warning when warnings are enabled.
const DefaultUsageWarningThreshold = 0.8

// ============================================================================
// ROUTER
// ============================================================================

// Router is the single authority for "which backend answers this request".
//
// The mode is committed only after validation and persistence succeed, so a
// request routed while a switch is in flight sees the pre-switch mode.
// Concurrent SetMode calls are serialised.
type Router struct {
	// mu guards config and token
	mu     sync.RWMutex
	config ManagedAPIConfig
	token  string

	// switchMu serialises mode transitions
	switchMu sync.Mutex

	store     ConfigStore
	validator *Validator
	backend   BackendClient

	logger         *slog.Logger
	now            func() time.Time
	warnThreshold  float64
	onUsageWarning func(Usage)
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the clock used for LastModeSwitch stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithUsageWarning installs a hook called when a managed response reports
// usage at or above threshold (and usage warnings are enabled). A threshold
// <= 0 keeps DefaultUsageWarningThreshold.
func WithUsageWarning(threshold float64, hook func(Usage)) Option {
	return func(r *Router) {
		if threshold > 0 {
			r.warnThreshold = threshold
		}
		r.onUsageWarning = hook
	}
}

// New creates a router and loads the persisted mode record from store.
//
// A store read failure is logged and the default (personal) record is used:
// the router must always be constructible so that personal mode keeps
// working.
func New(ctx context.Context, store ConfigStore, checker AccessChecker, backend BackendClient, opts ...Option) (*Router, error) {
	if store == nil {
		return nil, errors.New("router: config store is required")
	}

	r := &Router{
		config:        DefaultManagedAPIConfig(),
		store:         store,
		validator:     NewValidator(checker),
		backend:       backend,
		logger:        slog.Default(),
		now:           time.Now,
		warnThreshold: DefaultUsageWarningThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}

	stored, err := store.GetConfig(ctx)
	switch {
	case err != nil:
		r.logger.Warn("could not load api mode, using personal", "error", err)
	case stored.ManagedAPIConfig != nil:
		r.config = *stored.ManagedAPIConfig
		if !r.config.Mode.Valid() {
			r.logger.Warn("stored api mode is invalid, using personal", "mode", r.config.Mode)
			r.config.Mode = ModePersonal
		}
	}

	r.logger.Debug("api mode router ready", "mode", r.config.Mode)
	return r, nil
}

// ============================================================================
// ACCESSORS
// ============================================================================

// Mode returns the current mode.
func (r *Router) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Mode
}

// ManagedAPIConfig returns a copy of the current mode record.
func (r *Router) ManagedAPIConfig() ManagedAPIConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// SetUserToken replaces the in-memory user token. The token is never logged
// or persisted.
func (r *Router) SetUserToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
}

// HasUserToken reports whether a user token is set.
func (r *Router) HasUserToken() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token != ""
}

// ============================================================================
// ACCESS VALIDATION
// ============================================================================

// ValidateManagedAccess checks the current token against the entitlement
// service. Without a token it returns false without any network call.
// Entitlement failures are returned to the caller.
func (r *Router) ValidateManagedAccess(ctx context.Context) (bool, error) {
	result, err := r.checkAccess(ctx)
	if err != nil {
		return false, err
	}
	return result.HasAccess, nil
}

// IsManagedModeAvailable is the non-failing projection of
// ValidateManagedAccess: any error reads as false.
func (r *Router) IsManagedModeAvailable(ctx context.Context) bool {
	ok, err := r.ValidateManagedAccess(ctx)
	if err != nil {
		r.logger.Debug("managed mode availability check failed", "error", err)
		return false
	}
	return ok
}

func (r *Router) checkAccess(ctx context.Context) (AccessResult, error) {
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()
	return r.validator.CheckAccess(ctx, token)
}

// ============================================================================
// MODE TRANSITIONS
// ============================================================================

// SetMode switches the routing mode.
//
// Switching to personal never requires validation. Switching to managed
// requires the entitlement check to grant access; otherwise an
// *AccessDeniedError (matching ErrManagedAccessDenied) is returned and
// nothing changes. On success the new record, stamped with a fresh
// LastModeSwitch and carrying the existing warning/auto-switch flags, is
// persisted before it becomes visible.
func (r *Router) SetMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	r.switchMu.Lock()
	defer r.switchMu.Unlock()

	if mode == ModeManaged {
		result, err := r.checkAccess(ctx)
		if err != nil {
			r.logger.Warn("managed mode switch denied: entitlement check failed", "error", err)
			return &AccessDeniedError{Cause: err}
		}
		if !result.HasAccess {
			r.logger.Info("managed mode switch denied", "reason", result.Reason)
			return &AccessDeniedError{Reason: result.Reason}
		}
	}

	r.mu.RLock()
	prev := r.config
	r.mu.RUnlock()

	next := ManagedAPIConfig{
		Mode:                 mode,
		LastModeSwitch:       r.switchStamp(prev.LastModeSwitch),
		UsageWarningsEnabled: prev.UsageWarningsEnabled,
		AutoSwitchOnLimit:    prev.AutoSwitchOnLimit,
	}

	if err := r.store.UpdateConfig(ctx, StoredConfig{ManagedAPIConfig: &next}); err != nil {
		return fmt.Errorf("failed to persist api mode: %w", err)
	}

	r.mu.Lock()
	r.config = next
	r.mu.Unlock()

	r.logger.Info("api mode switched", "from", prev.Mode, "to", mode)
	return nil
}

// switchStamp returns the current time as RFC 3339, never earlier than prev.
func (r *Router) switchStamp(prev string) string {
	now := r.now().UTC()
	if prev != "" {
		if last, err := time.Parse(time.RFC3339Nano, prev); err == nil && last.After(now) {
			now = last
		}
	}
	return now.Format(time.RFC3339Nano)
}

// ============================================================================
// ROUTING
// ============================================================================

// RouteChatRequest routes an OpenAI-style chat completion request.
//
// In personal mode it returns (nil, nil) and performs no I/O; the caller must
// use its own client. In managed mode the request is forwarded once and the
// backend's response or error is returned unchanged.
func (r *Router) RouteChatRequest(ctx context.Context, req Request) (*Response, error) {
	return r.route(ctx, KindChat, req)
}

// RouteTranslation routes a translation request. Same contract as RouteChatRequest.
func (r *Router) RouteTranslation(ctx context.Context, req Request) (*Response, error) {
	return r.route(ctx, KindTranslation, req)
}

// RouteTranscription routes a transcription request. Same contract as RouteChatRequest.
func (r *Router) RouteTranscription(ctx context.Context, req Request) (*Response, error) {
	return r.route(ctx, KindTranscription, req)
}

// RouteTTS routes a text-to-speech request. Same contract as RouteChatRequest.
func (r *Router) RouteTTS(ctx context.Context, req Request) (*Response, error) {
	return r.route(ctx, KindTTS, req)
}

func (r *Router) route(ctx context.Context, kind Kind, req Request) (*Response, error) {
	r.mu.RLock()
	cfg := r.config
	token := r.token
	r.mu.RUnlock()

	if cfg.Mode != ModeManaged {
		return nil, nil
	}
	if r.backend == nil {
		return nil, ErrNoBackend
	}

	req = req.withDefaults(kind)
	r.logger.Debug("routing to managed backend", "kind", kind, "endpoint", req.Endpoint)

	resp, err := r.backend.Call(ctx, token, req)
	if err != nil {
		if cfg.AutoSwitchOnLimit && errors.Is(err, ErrUsageLimit) {
			r.fallbackToPersonal(ctx)
		}
		return nil, err
	}

	if cfg.UsageWarningsEnabled && resp != nil && resp.Usage != nil {
		r.checkUsage(*resp.Usage)
	}
	return resp, nil
}

// fallbackToPersonal switches to personal after the managed quota ran out.
// The switch cannot be denied; only persistence can fail, which is logged.
func (r *Router) fallbackToPersonal(ctx context.Context) {
	r.logger.Warn("managed usage limit reached, switching to personal mode")
	if err := r.SetMode(ctx, ModePersonal); err != nil {
		r.logger.Error("auto switch to personal mode failed", "error", err)
	}
}

func (r *Router) checkUsage(u Usage) {
	if u.Ratio() < r.warnThreshold {
		return
	}
	r.logger.Warn("managed usage approaching limit", "used", u.Used, "limit", u.Limit)
	if r.onUsageWarning != nil {
		r.onUsageWarning(u)
	}
}
