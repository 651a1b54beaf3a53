// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeranaias/translink/internal/router"
)

// Error variables for common backend failures.
var (
	// ErrNotConfigured indicates a call without a base URL.
	ErrNotConfigured = errors.New("backend URL not configured")

	// ErrMissingCredentials indicates a call without a token or API key.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrUnauthorized indicates the token or key was rejected.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrRateLimited indicates the server asked us to slow down.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates an unknown endpoint or model.
	ErrNotFound = errors.New("not found")

	// ErrResponseTooLarge indicates the body exceeded MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// APIError represents a non-2xx response that maps to no sentinel.
// Body keeps the raw response so callers can recover a structured envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

// Error returns the backend's own message when it sent one.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// Temporary reports whether retrying may help.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 && e.Status < 600
}

// errorBody covers the two error envelopes seen in the wild:
// OpenAI's {"error": {"code", "message"}} and the managed
// backend's {"success": false, "error": "...", "code": "..."}.
type errorBody struct {
	Error json.RawMessage `json:"error"`
	Code  string          `json:"code"`
}

type nestedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseErrorBody(body []byte) (code, message string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Error) == 0 {
		return "", strings.TrimSpace(string(body))
	}

	var nested nestedError
	if err := json.Unmarshal(eb.Error, &nested); err == nil && nested.Message != "" {
		return nested.Code, nested.Message
	}

	var flat string
	if err := json.Unmarshal(eb.Error, &flat); err == nil {
		return eb.Code, flat
	}
	return eb.Code, strings.TrimSpace(string(body))
}

// usageLimitCodes are error codes that mean "quota exhausted" regardless of
// the HTTP status they arrive with.
var usageLimitCodes = map[string]bool{
	"usage_limit_exceeded": true,
	"insufficient_quota":   true,
	"quota_exceeded":       true,
}

// handleErrorResponse converts an HTTP error response to a Go error.
func handleErrorResponse(status int, body []byte) error {
	code, message := parseErrorBody(body)

	if usageLimitCodes[code] {
		return fmt.Errorf("%w: %s", router.ErrUsageLimit, message)
	}

	var sentinel error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusPaymentRequired:
		sentinel = router.ErrUsageLimit
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	default:
		return &APIError{Status: status, Code: code, Message: message, Body: body}
	}

	if message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}

// failureEnvelope recovers a managed {"success": false, "error": "..."}
// envelope from a failed call. Bodies without an explicit success field,
// or with a non-string error, are not envelopes.
func failureEnvelope(err error) (*router.Response, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || len(apiErr.Body) == 0 {
		return nil, false
	}

	var head struct {
		Success *bool `json:"success"`
	}
	if json.Unmarshal(apiErr.Body, &head) != nil || head.Success == nil || *head.Success {
		return nil, false
	}

	var resp router.Response
	if json.Unmarshal(apiErr.Body, &resp) != nil {
		return nil, false
	}
	return &resp, true
}
