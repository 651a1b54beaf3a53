// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package entitlement answers "may this token use managed mode?".
//
// # Key Types
//
//   - HTTPChecker: asks an entitlement service over HTTP
//   - AnyOf: fans a check out to several services
//   - Func: adapts a function to router.AccessChecker
//
// # Usage
//
//	checker := entitlement.AnyOf(
//	    entitlement.NewHTTPChecker(backend.New("https://billing.example.com")),
//	    entitlement.NewHTTPChecker(backend.New("https://licensing.example.com")),
//	)
//	r, err := router.New(ctx, store, checker, managed)
package entitlement
