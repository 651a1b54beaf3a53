// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/translink/internal/backend"
	"github.com/jeranaias/translink/internal/contextwin"
	"github.com/jeranaias/translink/internal/router"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type memStore struct {
	rec *router.ManagedAPIConfig
}

func (s *memStore) GetConfig(context.Context) (router.StoredConfig, error) {
	return router.StoredConfig{ManagedAPIConfig: s.rec}, nil
}

func (s *memStore) UpdateConfig(_ context.Context, p router.StoredConfig) error {
	if p.ManagedAPIConfig != nil {
		cp := *p.ManagedAPIConfig
		s.rec = &cp
	}
	return nil
}

type stubPersonal struct {
	reply    string
	err      error
	requests []backend.ChatRequest
	keys     []string
}

func (p *stubPersonal) Chat(_ context.Context, apiKey string, req backend.ChatRequest) (*backend.ChatResponse, error) {
	p.requests = append(p.requests, req)
	p.keys = append(p.keys, apiKey)
	if p.err != nil {
		return nil, p.err
	}
	var out backend.ChatResponse
	body := `{"choices":[{"message":{"role":"assistant","content":` + mustJSON(p.reply) + `}}]}`
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type stubManaged struct {
	resp     *router.Response
	err      error
	requests []router.Request
}

func (m *stubManaged) Call(_ context.Context, _ string, req router.Request) (*router.Response, error) {
	m.requests = append(m.requests, req)
	return m.resp, m.err
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newRouter(t *testing.T, mode router.Mode, managed router.BackendClient) *router.Router {
	t.Helper()
	rec := router.ManagedAPIConfig{Mode: mode}
	r, err := router.New(context.Background(), &memStore{rec: &rec}, nil, managed)
	require.NoError(t, err)
	r.SetUserToken("tok")
	return r
}

func newWindow() *contextwin.Manager {
	return contextwin.NewManager(contextwin.DefaultConfig())
}

func systemPrompt(req backend.ChatRequest) string {
	return req.Messages[0].Content
}

// =============================================================================
// PERSONAL MODE
// =============================================================================

func TestTranslate_PersonalUsesOwnClient(t *testing.T) {
	managed := &stubManaged{}
	personal := &stubPersonal{reply: " Ohayou gozaimasu "}
	s := New(newWindow(), newRouter(t, router.ModePersonal, managed), personal,
		Config{APIKey: "sk-user", Model: "gpt-4o-mini"})

	res, err := s.Translate(context.Background(), "Good morning", "en", "ja")

	require.NoError(t, err)
	assert.Equal(t, "Ohayou gozaimasu", res.Text)
	assert.Equal(t, router.ModePersonal, res.Mode)
	assert.False(t, res.ContextUsed)
	assert.Empty(t, managed.requests)

	require.Len(t, personal.requests, 1)
	assert.Equal(t, []string{"sk-user"}, personal.keys)
	assert.Equal(t, "gpt-4o-mini", personal.requests[0].Model)
	assert.Contains(t, systemPrompt(personal.requests[0]), "English")
	assert.Contains(t, systemPrompt(personal.requests[0]), "Japanese")
	assert.Equal(t, "Good morning", personal.requests[0].Messages[1].Content)
}

func TestTranslate_ContextFlowsIntoNextRequest(t *testing.T) {
	personal := &stubPersonal{reply: "first reply"}
	s := New(newWindow(), newRouter(t, router.ModePersonal, nil), personal, Config{APIKey: "k"})

	_, err := s.Translate(context.Background(), "one", "en", "de")
	require.NoError(t, err)

	personal.reply = "second reply"
	res, err := s.Translate(context.Background(), "two", "en", "de")
	require.NoError(t, err)

	assert.True(t, res.ContextUsed)
	assert.NotContains(t, systemPrompt(personal.requests[0]), "first reply")
	assert.Contains(t, systemPrompt(personal.requests[1]), "first reply")

	window := s.Window().StructuredContext()
	require.Len(t, window, 2)
	assert.Equal(t, "two", window[1].SourceText)
	assert.Equal(t, "second reply", window[1].TranslatedText)
}

func TestTranslate_PersonalErrorLeavesWindowUntouched(t *testing.T) {
	callErr := errors.New("provider down")
	s := New(newWindow(), newRouter(t, router.ModePersonal, nil), &stubPersonal{err: callErr}, Config{APIKey: "k"})

	_, err := s.Translate(context.Background(), "hello", "en", "fr")

	assert.ErrorIs(t, err, callErr)
	assert.Equal(t, 0, s.Window().WindowSize())
	assert.Equal(t, 1, s.Status().Stats.Failures)
}

func TestTranslate_NoPersonalClient(t *testing.T) {
	s := New(newWindow(), newRouter(t, router.ModePersonal, nil), nil, Config{})
	_, err := s.Translate(context.Background(), "hello", "en", "fr")
	assert.ErrorIs(t, err, ErrNoPersonalClient)
}

func TestTranslate_EmptyText(t *testing.T) {
	s := New(newWindow(), newRouter(t, router.ModePersonal, nil), &stubPersonal{}, Config{})
	_, err := s.Translate(context.Background(), "   ", "en", "fr")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestTranslate_EmptyReply(t *testing.T) {
	s := New(newWindow(), newRouter(t, router.ModePersonal, nil), &stubPersonal{reply: "  "}, Config{APIKey: "k"})
	_, err := s.Translate(context.Background(), "hello", "en", "fr")
	assert.ErrorIs(t, err, ErrEmptyTranslation)
}

// =============================================================================
// MANAGED MODE
// =============================================================================

func TestTranslate_ManagedChatPayload(t *testing.T) {
	managed := &stubManaged{resp: &router.Response{
		Success: true,
		Data:    json.RawMessage(`{"choices":[{"message":{"role":"assistant","content":"Hallo"}}]}`),
	}}
	personal := &stubPersonal{}
	s := New(newWindow(), newRouter(t, router.ModeManaged, managed), personal, Config{Model: "m"})

	res, err := s.Translate(context.Background(), "Hello", "en", "de")

	require.NoError(t, err)
	assert.Equal(t, "Hallo", res.Text)
	assert.Equal(t, router.ModeManaged, res.Mode)
	assert.Empty(t, personal.requests, "managed mode never touches the personal client")

	require.Len(t, managed.requests, 1)
	body, ok := managed.requests[0].Body.(backend.ChatRequest)
	require.True(t, ok)
	assert.Equal(t, "Hello", body.Messages[1].Content)
	assert.Equal(t, 1, s.Status().Stats.ManagedCalls)
}

func TestTranslate_ManagedTextPayload(t *testing.T) {
	managed := &stubManaged{resp: &router.Response{Success: true, Data: json.RawMessage(`{"text":"Bonjour"}`)}}
	s := New(newWindow(), newRouter(t, router.ModeManaged, managed), nil, Config{})

	res, err := s.Translate(context.Background(), "Hello", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", res.Text)
}

func TestTranslate_ManagedFailureEnvelope(t *testing.T) {
	managed := &stubManaged{resp: &router.Response{Success: false, Error: "model unavailable"}}
	s := New(newWindow(), newRouter(t, router.ModeManaged, managed), nil, Config{})

	_, err := s.Translate(context.Background(), "Hello", "en", "fr")

	var merr *ManagedError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "model unavailable", merr.Message)
	assert.EqualError(t, err, "model unavailable")
}

func TestTranslate_ManagedRejectionSurfacesBackendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":"text exceeds 5000 characters"}`))
	}))
	defer server.Close()

	managed := backend.New(server.URL, backend.WithMaxRetries(1))
	window := newWindow()
	s := New(window, newRouter(t, router.ModeManaged, managed), nil, Config{})

	_, err := s.Translate(context.Background(), "Hello", "en", "fr")

	var merr *ManagedError
	require.True(t, errors.As(err, &merr))
	assert.EqualError(t, err, "text exceeds 5000 characters")
	assert.Equal(t, 0, window.WindowSize())
}

func TestTranslate_ManagedErrorPropagates(t *testing.T) {
	managed := &stubManaged{err: router.ErrUsageLimit}
	s := New(newWindow(), newRouter(t, router.ModeManaged, managed), &stubPersonal{reply: "x"}, Config{})

	_, err := s.Translate(context.Background(), "Hello", "en", "fr")
	assert.ErrorIs(t, err, router.ErrUsageLimit)
}

// =============================================================================
// STATUS
// =============================================================================

func TestStatus(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s := New(newWindow(), newRouter(t, router.ModePersonal, nil), &stubPersonal{reply: "hola"}, Config{APIKey: "k"}, WithClock(clock))
	_, err := s.Translate(context.Background(), "hello", "en", "es")
	require.NoError(t, err)

	now = now.Add(90 * time.Second)
	st := s.Status()

	assert.Equal(t, s.ID(), st.ID)
	assert.Len(t, st.ID, 36)
	assert.Equal(t, 90*time.Second, st.Duration)
	assert.Equal(t, router.ModePersonal, st.Mode)
	assert.Equal(t, 1, st.Stats.Translations)
	assert.Equal(t, 1, st.Stats.PersonalCalls)
	assert.Equal(t, 1, st.Window.WindowSize)
	assert.Equal(t, "en-es", st.Window.LanguagePair)
}

func TestReset(t *testing.T) {
	s := New(newWindow(), newRouter(t, router.ModePersonal, nil), &stubPersonal{reply: "hola"}, Config{APIKey: "k"})
	_, err := s.Translate(context.Background(), "hello", "en", "es")
	require.NoError(t, err)

	s.Reset()
	assert.Equal(t, 0, s.Window().WindowSize())
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Japanese", languageName("ja"))
	assert.Equal(t, "the detected language", languageName("auto"))
	assert.Equal(t, "klingon-ish", languageName("klingon-ish"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m", FormatDuration(2*time.Minute))
	assert.Equal(t, "3m 5s", FormatDuration(3*time.Minute+5*time.Second))
	assert.True(t, strings.HasSuffix(FormatDuration(0), "s"))
}
