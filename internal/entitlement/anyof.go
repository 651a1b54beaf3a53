// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package entitlement

import (
	"context"
	"errors"
	"sync"

	"github.com/jeranaias/translink/internal/router"
)

// ErrNoCheckers is returned by an AnyOf with nothing to ask.
var ErrNoCheckers = errors.New("no entitlement services configured")

// Func adapts an ordinary function to router.AccessChecker.
type Func func(ctx context.Context, token string) (router.AccessResult, error)

// CheckAccess calls f.
func (f Func) CheckAccess(ctx context.Context, token string) (router.AccessResult, error) {
	return f(ctx, token)
}

// Allow returns a checker that grants every token. Intended for
// self-hosted managed backends that do their own authorisation.
func Allow() router.AccessChecker {
	return Func(func(context.Context, string) (router.AccessResult, error) {
		return router.AccessResult{HasAccess: true}, nil
	})
}

// anyOf grants access when at least one member grants it.
type anyOf struct {
	checkers []router.AccessChecker
}

// AnyOf queries all checkers concurrently.
//
// The first grant wins and cancels the remaining checks. With no grant, a
// denial from any member is returned as the answer; only when every member
// failed is an error returned (all failures joined).
func AnyOf(checkers ...router.AccessChecker) router.AccessChecker {
	if len(checkers) == 1 {
		return checkers[0]
	}
	return &anyOf{checkers: checkers}
}

type outcome struct {
	result router.AccessResult
	err    error
}

func (a *anyOf) CheckAccess(ctx context.Context, token string) (router.AccessResult, error) {
	if len(a.checkers) == 0 {
		return router.AccessResult{}, ErrNoCheckers
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan outcome, len(a.checkers))
	var wg sync.WaitGroup
	for _, checker := range a.checkers {
		wg.Add(1)
		go func(checker router.AccessChecker) {
			defer wg.Done()
			res, err := checker.CheckAccess(ctx, token)
			results <- outcome{result: res, err: err}
		}(checker)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var denial *router.AccessResult
	var errs []error
	for o := range results {
		switch {
		case o.err != nil:
			errs = append(errs, o.err)
		case o.result.HasAccess:
			return o.result, nil
		case denial == nil:
			r := o.result
			denial = &r
		}
	}

	if denial != nil {
		return *denial, nil
	}
	return router.AccessResult{}, errors.Join(errs...)
}
