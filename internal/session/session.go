// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/translink/internal/backend"
	"github.com/jeranaias/translink/internal/contextwin"
	"github.com/jeranaias/translink/internal/router"
)

// Error variables for the translation pipeline.
var (
	// ErrEmptyText indicates nothing to translate.
	ErrEmptyText = errors.New("nothing to translate")

	// ErrEmptyTranslation indicates the model answered with no text.
	ErrEmptyTranslation = errors.New("empty translation")

	// ErrNoPersonalClient indicates personal mode without a client.
	ErrNoPersonalClient = errors.New("personal client not configured")
)

// ManagedError is a managed response with success=false. Its message is the
// backend's own error text.
type ManagedError struct {
	Message string
}

func (e *ManagedError) Error() string {
	if e.Message == "" {
		return "managed backend reported failure"
	}
	return e.Message
}

// PersonalClient performs a chat completion with the user's own key.
// *backend.Client satisfies it.
type PersonalClient interface {
	Chat(ctx context.Context, apiKey string, req backend.ChatRequest) (*backend.ChatResponse, error)
}

// Config holds the personal-mode request settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one translation conversation.
type Session struct {
	mu sync.Mutex

	id           string
	startTime    time.Time
	lastActivity time.Time
	stats        Stats

	window   *contextwin.Manager
	router   *router.Router
	personal PersonalClient
	cfg      Config

	logger *slog.Logger
	now    func() time.Time
}

// Stats counts pipeline outcomes.
type Stats struct {
	Translations  int
	ManagedCalls  int
	PersonalCalls int
	Failures      int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a session. window and r are required; personal may be nil
// when the session only ever runs managed.
func New(window *contextwin.Manager, r *router.Router, personal PersonalClient, cfg Config, opts ...Option) *Session {
	s := &Session{
		id:       uuid.New().String(),
		window:   window,
		router:   r,
		personal: personal,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startTime = s.now()
	s.lastActivity = s.startTime
	s.logger = s.logger.With("session", s.id)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Window returns the session's context window.
func (s *Session) Window() *contextwin.Manager {
	return s.window
}

// Router returns the session's router.
func (s *Session) Router() *router.Router {
	return s.router
}

// Reset clears the context window, for example when the user starts a new
// topic.
func (s *Session) Reset() {
	s.window.ClearContext()
	s.logger.Debug("context cleared")
}

// =============================================================================
// TRANSLATION
// =============================================================================

// Result is one completed translation.
type Result struct {
	Text        string
	Mode        router.Mode
	ContextUsed bool
	Duration    time.Duration
}

// Translate translates text from srcLang to tgtLang using the current
// context window and records the result into it.
func (s *Session) Translate(ctx context.Context, text, srcLang, tgtLang string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	start := s.now()
	contextText, hasContext := s.window.GetContextString()
	req := s.buildRequest(text, srcLang, tgtLang, contextText, hasContext)

	translated, mode, err := s.dispatch(ctx, req)
	if err != nil {
		s.record(func(st *Stats) { st.Failures++ })
		return nil, err
	}

	s.window.AddChunk(contextwin.NewChunk(text, translated, srcLang, tgtLang))
	s.record(func(st *Stats) {
		st.Translations++
		if mode == router.ModeManaged {
			st.ManagedCalls++
		} else {
			st.PersonalCalls++
		}
	})

	res := &Result{
		Text:        translated,
		Mode:        mode,
		ContextUsed: hasContext,
		Duration:    s.now().Sub(start),
	}
	s.logger.Debug("translated", "mode", mode, "pair", srcLang+"-"+tgtLang, "context", hasContext, "duration", res.Duration)
	return res, nil
}

// dispatch asks the router first; a nil response means the personal client
// serves the request.
func (s *Session) dispatch(ctx context.Context, req backend.ChatRequest) (string, router.Mode, error) {
	resp, err := s.router.RouteChatRequest(ctx, router.Request{Body: req})
	if err != nil {
		return "", router.ModeManaged, err
	}

	if resp != nil {
		if !resp.Success {
			return "", router.ModeManaged, &ManagedError{Message: resp.Error}
		}
		text, err := managedText(resp.Data)
		if err != nil {
			return "", router.ModeManaged, err
		}
		return text, router.ModeManaged, nil
	}

	if s.personal == nil {
		return "", router.ModePersonal, ErrNoPersonalClient
	}
	out, err := s.personal.Chat(ctx, s.cfg.APIKey, req)
	if err != nil {
		return "", router.ModePersonal, err
	}
	text := strings.TrimSpace(out.Content())
	if text == "" {
		return "", router.ModePersonal, ErrEmptyTranslation
	}
	return text, router.ModePersonal, nil
}

func (s *Session) buildRequest(text, srcLang, tgtLang, contextText string, hasContext bool) backend.ChatRequest {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "You are a live interpreter. Translate the user's message from %s to %s. ",
		languageName(srcLang), languageName(tgtLang))
	prompt.WriteString("Reply with the translation only.")
	if hasContext {
		prompt.WriteString("\n\nEarlier in this conversation (for continuity only, do not translate again):\n")
		prompt.WriteString(contextText)
	}

	return backend.ChatRequest{
		Model: s.cfg.Model,
		Messages: []backend.ChatMessage{
			backend.NewSystemMessage(prompt.String()),
			backend.NewUserMessage(text),
		},
		Temperature: s.cfg.Temperature,
	}
}

// managedText extracts the translation from a managed response payload.
// The backend answers either with a chat completion or with {"text": ...}.
func managedText(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyTranslation
	}

	var payload struct {
		backend.ChatResponse
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("failed to parse managed response: %w", err)
	}

	text := payload.Text
	if text == "" {
		text = payload.Content()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranslation
	}
	return text, nil
}

func (s *Session) record(update func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.stats)
	s.lastActivity = s.now()
}

// =============================================================================
// STATUS
// =============================================================================

// Status is a snapshot of the session for display.
type Status struct {
	ID        string
	StartTime time.Time
	Duration  time.Duration
	IdleTime  time.Duration
	Mode      router.Mode
	Stats     Stats
	Window    contextwin.Stats
}

// Status returns the current session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	stats := s.stats
	last := s.lastActivity
	s.mu.Unlock()

	now := s.now()
	return Status{
		ID:        s.id,
		StartTime: s.startTime,
		Duration:  now.Sub(s.startTime),
		IdleTime:  now.Sub(last),
		Mode:      s.router.Mode(),
		Stats:     stats,
		Window:    s.window.Stats(),
	}
}
