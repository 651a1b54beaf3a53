// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"sync"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// memStore is an in-memory ConfigStore that records every write.
type memStore struct {
	mu      sync.Mutex
	current *ManagedAPIConfig
	writes  []ManagedAPIConfig
	getErr  error
	putErr  error
}

func (s *memStore) GetConfig(ctx context.Context) (StoredConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return StoredConfig{}, s.getErr
	}
	if s.current == nil {
		return StoredConfig{}, nil
	}
	cp := *s.current
	return StoredConfig{ManagedAPIConfig: &cp}, nil
}

func (s *memStore) UpdateConfig(ctx context.Context, partial StoredConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if partial.ManagedAPIConfig != nil {
		cp := *partial.ManagedAPIConfig
		s.current = &cp
		s.writes = append(s.writes, cp)
	}
	return nil
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// fakeChecker answers with a fixed result and counts calls.
type fakeChecker struct {
	mu     sync.Mutex
	result AccessResult
	err    error
	calls  int
	tokens []string
}

func (c *fakeChecker) CheckAccess(ctx context.Context, token string) (AccessResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.tokens = append(c.tokens, token)
	return c.result, c.err
}

func (c *fakeChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeBackend returns a fixed response and records requests.
type fakeBackend struct {
	mu       sync.Mutex
	resp     *Response
	err      error
	requests []Request
	tokens   []string
}

func (b *fakeBackend) Call(ctx context.Context, token string, req Request) (*Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	b.tokens = append(b.tokens, token)
	return b.resp, b.err
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func granted() *fakeChecker {
	return &fakeChecker{result: AccessResult{HasAccess: true}}
}

func refused(reason string) *fakeChecker {
	return &fakeChecker{result: AccessResult{HasAccess: false, Reason: reason}}
}
