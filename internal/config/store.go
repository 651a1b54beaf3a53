// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"sync"

	"github.com/jeranaias/translink/internal/router"
)

// FileStore persists the api mode record in the [api_mode] table of the
// TOML config file. It implements router.ConfigStore.
//
// Reads and writes go straight to disk (no env overrides), so environment
// secrets never end up in the file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store over the config file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// GetConfig returns the [api_mode] record, or a nil record when the file or
// the table does not exist.
func (s *FileStore) GetConfig(ctx context.Context) (router.StoredConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return router.StoredConfig{}, err
	}

	cfg, meta, err := decodeFile(s.path)
	if err != nil {
		return router.StoredConfig{}, err
	}
	if meta == nil || !meta.IsDefined("api_mode") {
		return router.StoredConfig{}, nil
	}

	rec := cfg.APIMode
	return router.StoredConfig{ManagedAPIConfig: &rec}, nil
}

// UpdateConfig merges the non-nil parts of partial into the file. Other
// sections are preserved.
func (s *FileStore) UpdateConfig(ctx context.Context, partial router.StoredConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	cfg, _, err := decodeFile(s.path)
	if err != nil {
		return err
	}
	if partial.ManagedAPIConfig != nil {
		cfg.APIMode = *partial.ManagedAPIConfig
	}
	return Save(cfg, s.path)
}
