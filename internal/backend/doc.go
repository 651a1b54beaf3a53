// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client used for both API modes.
//
// The same Client talks to the managed backend (authenticated with the
// user's session token) and to the user's own OpenAI-compatible provider
// (authenticated with the user's API key). It handles retries with
// exponential backoff, client-side rate limiting, size-limited reads and
// the mapping of HTTP failures onto sentinel errors.
//
// # Key Types
//
//   - Client: retrying JSON-over-HTTP client
//   - APIError: non-2xx response that maps to no sentinel
//   - ChatMessage, ChatRequest, ChatResponse: OpenAI chat completion shapes
//
// # Usage
//
// Managed routing (Client implements router.BackendClient):
//
//	managed := backend.New("https://api.example.com",
//	    backend.WithRateLimit(5, 10),
//	    backend.WithLogger(logger))
//	resp, err := managed.Call(ctx, userToken, router.Request{Body: body})
//
// Personal mode:
//
//	personal := backend.New("https://api.openai.com/v1")
//	out, err := personal.Chat(ctx, apiKey, backend.ChatRequest{Model: "gpt-4o-mini", Messages: msgs})
//	text := out.Content()
//
// Error responses map to ErrUnauthorized, router.ErrUsageLimit,
// ErrRateLimited, ErrNotFound or *APIError.
package backend
