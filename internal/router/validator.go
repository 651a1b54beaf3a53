// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"fmt"
)

// Validator decides whether managed mode is usable for a token. It hides the
// shape of the entitlement backend from the router.
type Validator struct {
	checker AccessChecker
}

// NewValidator creates a validator over checker.
func NewValidator(checker AccessChecker) *Validator {
	return &Validator{checker: checker}
}

// CheckAccess checks token. An empty token is denied without any call.
// Checker failures are wrapped with ErrAccessCheckFailed.
func (v *Validator) CheckAccess(ctx context.Context, token string) (AccessResult, error) {
	if token == "" {
		return AccessResult{HasAccess: false, Reason: "no user token"}, nil
	}
	if v == nil || v.checker == nil {
		return AccessResult{}, ErrNoAccessChecker
	}

	result, err := v.checker.CheckAccess(ctx, token)
	if err != nil {
		return AccessResult{}, fmt.Errorf("%w: %w", ErrAccessCheckFailed, err)
	}
	return result, nil
}
