/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage persists export snapshots as opaque objects, either on
// the local filesystem or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/config"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// New selects the object store configured by VERDANDI_STORAGE_BACKEND.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageFS:
		return NewFSStore(cfg.ExportRoot, logger)
	case config.StorageS3:
		return NewS3Store(ctx, S3Config{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			ForcePathStyle: cfg.S3ForcePathStyle,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}
