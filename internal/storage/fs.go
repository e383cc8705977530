/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FSStore keeps objects as files under a root directory. Object keys use
// forward slashes and become relative paths below the root.
type FSStore struct {
	root   string
	logger zerolog.Logger
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string, logger zerolog.Logger) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FSStore{
		root:   root,
		logger: logger.With().Str("component", "storage").Logger(),
	}, nil
}

// resolve maps an object key to a path below the root, rejecting keys that
// would escape it.
func (s *FSStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("object key %q escapes storage root", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes the object, creating parent directories. A partial file left
// by a failed write is removed.
func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("write object: %w", err)
	}

	s.logger.Debug().
		Str("key", key).
		Str("path", fullPath).
		Int("bytes", len(data)).
		Msg("object stored")
	return nil
}

// Get reads the object, returning ErrNotFound for missing keys.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}
