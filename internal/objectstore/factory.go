package objectstore

import (
	"fmt"

	"github.com/harunnryd/autopdf/internal/config"
	apperrors "github.com/harunnryd/autopdf/internal/errors"
)

// NewFromConfig builds a Store over the configured backend.
func NewFromConfig(cfg config.StorageConfig) (*Store, error) {
	var backend Backend
	switch cfg.Backend {
	case "s3", "":
		b, err := NewS3Backend(S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
		if err != nil {
			return nil, err
		}
		backend = b
	case "filesystem":
		b, err := NewFSBackend(cfg.Path, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown storage backend %q", cfg.Backend))
	}
	return New(backend), nil
}
