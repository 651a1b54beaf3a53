// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router decides, per request, whether an AI call is served with the
// user's own credentials or by the managed backend.
//
// Two modes exist:
//
//	personal -> Route* returns (nil, nil); the caller uses its own client
//	managed  -> Route* forwards to the managed backend and returns its response
//
// # Key Types
//
//   - Router: Holds the mode and the user token, routes requests
//   - Validator: Gates the personal -> managed transition via an AccessChecker
//   - ManagedAPIConfig: The persisted mode record
//   - Request / Response: Backend-agnostic request envelope
//
// # Mode Transitions
//
// Switching to personal always succeeds; using your own credentials can never
// be blocked. Switching to managed requires the entitlement check to grant
// access. A denied switch returns *AccessDeniedError and leaves both the
// in-memory and the persisted state untouched. Every successful switch is
// written through to the ConfigStore immediately.
//
// # Error Policy
//
// Only an explicit denied switch is reported as an error by the gate.
// ValidateManagedAccess propagates entitlement transport errors;
// IsManagedModeAvailable folds them into false. Call sites rely on both.
//
// # Usage
//
//	r, _ := router.New(ctx, store, checker, backend)
//	r.SetUserToken(token)
//	if err := r.SetMode(ctx, router.ModeManaged); errors.Is(err, router.ErrManagedAccessDenied) {
//	    // show subscription status
//	}
//	resp, err := r.RouteChatRequest(ctx, router.Request{Body: body})
//	if resp == nil && err == nil {
//	    // personal mode: call the provider with the user's key
//	}
package router
