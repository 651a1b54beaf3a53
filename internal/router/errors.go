// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"errors"
	"fmt"
)

// Error variables for routing and mode switching.
var (
	// ErrManagedAccessDenied is matched by every denied switch to managed mode.
	ErrManagedAccessDenied = errors.New("managed mode is not available: check your subscription or usage")

	// ErrInvalidMode indicates an unknown mode name.
	ErrInvalidMode = errors.New("invalid api mode")

	// ErrNoBackend indicates managed routing without a backend client.
	ErrNoBackend = errors.New("managed backend client not configured")

	// ErrNoAccessChecker indicates validation without an entitlement checker.
	ErrNoAccessChecker = errors.New("entitlement checker not configured")

	// ErrAccessCheckFailed wraps entitlement transport or service failures.
	ErrAccessCheckFailed = errors.New("entitlement check failed")

	// ErrUsageLimit is returned by backend clients when the managed quota is
	// exhausted. It triggers the auto switch to personal mode when enabled.
	ErrUsageLimit = errors.New("managed usage limit reached")
)

// AccessDeniedError is returned by SetMode when managed access is refused.
type AccessDeniedError struct {
	// Reason is the entitlement service's explanation, if any.
	Reason string
	// Cause is set when the check itself failed rather than answered "no".
	Cause error
}

// Error implements the error interface.
func (e *AccessDeniedError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s (%v)", ErrManagedAccessDenied.Error(), e.Cause)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", ErrManagedAccessDenied.Error(), e.Reason)
	default:
		return ErrManagedAccessDenied.Error()
	}
}

// Is makes errors.Is(err, ErrManagedAccessDenied) match.
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrManagedAccessDenied
}

// Unwrap returns the underlying check failure, if any.
func (e *AccessDeniedError) Unwrap() error {
	return e.Cause
}
