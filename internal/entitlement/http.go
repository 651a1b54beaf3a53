// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jeranaias/translink/internal/backend"
	"github.com/jeranaias/translink/internal/router"
)

// AccessPath is the entitlement endpoint relative to the service base URL.
const AccessPath = "/access"

// HTTPChecker asks one entitlement service whether a token has access.
//
// The service answers GET /access with
// {"has_access": bool, "reason": string, "usage": {"used": n, "limit": n}}.
// A rejected token (401/403) or exhausted quota is a "no", not a failure.
type HTTPChecker struct {
	client *backend.Client
}

// NewHTTPChecker creates a checker over client.
func NewHTTPChecker(client *backend.Client) *HTTPChecker {
	return &HTTPChecker{client: client}
}

// CheckAccess implements router.AccessChecker.
func (c *HTTPChecker) CheckAccess(ctx context.Context, token string) (router.AccessResult, error) {
	body, err := c.client.Do(ctx, http.MethodGet, AccessPath, token, nil)
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return router.AccessResult{Reason: "invalid or expired token"}, nil
	case errors.Is(err, router.ErrUsageLimit):
		return router.AccessResult{Reason: "usage limit reached"}, nil
	case err != nil:
		return router.AccessResult{}, fmt.Errorf("%s: %w", c.client.BaseURL(), err)
	}

	var result router.AccessResult
	if err := json.Unmarshal(body, &result); err != nil {
		return router.AccessResult{}, fmt.Errorf("%s: failed to parse access response: %w", c.client.BaseURL(), err)
	}
	return result, nil
}
