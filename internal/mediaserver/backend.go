package mediaserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/fruitsalade/pagemedia/internal/config"
	"github.com/fruitsalade/pagemedia/internal/storage"
	"github.com/fruitsalade/pagemedia/internal/storage/local"
	s3storage "github.com/fruitsalade/pagemedia/internal/storage/s3"
)

// OpenBackend creates the storage backend selected by cfg.StorageBackend.
func OpenBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "local":
		return local.New(local.Config{RootPath: cfg.LocalStoragePath})
	case "s3":
		endpoint := cfg.S3Endpoint
		if endpoint != "" && !strings.Contains(endpoint, "://") {
			scheme := "http://"
			if cfg.S3UseSSL {
				scheme = "https://"
			}
			endpoint = scheme + endpoint
		}
		return s3storage.New(ctx, s3storage.Config{
			Endpoint:  endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}
