package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	infraconfig "github.com/tsafe/backend/internal/infrastructure/config"
)

// Blob store drivers accepted by NewBlobStore.
const (
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// NewBlobStore returns the store selected by cfg.Driver. The S3 bucket is
// created when missing. An empty driver means s3.
func NewBlobStore(ctx context.Context, cfg *infraconfig.StorageConfig, logger *zap.Logger) (BlobStore, error) {
	switch cfg.Driver {
	case DriverS3, "":
		store, err := NewS3BlobStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info("Using S3 blob store", zap.String("bucket", store.Bucket()))
		return store, nil
	case DriverMemory:
		logger.Warn("Using in-memory blob store; sealed payloads are lost on restart")
		return NewMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
