// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/translink/internal/contextwin"
	"github.com/jeranaias/translink/internal/logging"
)

func TestWatcher_ReloadsContextSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[context]\nmax_chunks = 5\n")

	window := contextwin.NewManager(contextwin.DefaultConfig())
	changed := make(chan struct{}, 4)

	w, err := NewWatcher(path, 20*time.Millisecond, logging.Discard(), func(c *Config) {
		window.UpdateConfig(contextwin.FullUpdate(c.Context))
		changed <- struct{}{}
	})
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	writeFile(t, path, "[context]\nmax_chunks = 2\nmax_tokens = 40\n")

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire")
	}
	assert.Equal(t, 2, window.Config().MaxChunks)
	assert.Equal(t, 40, window.Config().MaxTokens)
}

func TestWatcher_SkipsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[context]\nmax_chunks = 5\n")

	changed := make(chan struct{}, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, logging.Discard(), func(*Config) {
		changed <- struct{}{}
	})
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	writeFile(t, path, "[context]\nmax_chunks = 0\n")

	select {
	case <-changed:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "")

	changed := make(chan struct{}, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, logging.Discard(), func(*Config) {
		changed <- struct{}{}
	})
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	writeFile(t, filepath.Join(dir, "history"), "hello\n")

	select {
	case <-changed:
		t.Fatal("sibling change must not trigger a reload")
	case <-time.After(300 * time.Millisecond):
	}
}
