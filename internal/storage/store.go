package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"avatarcast/internal/config"
)

// Store is a blob store addressed by relative keys.
type Store interface {
	// Put stores data under key and returns its URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns the address an object stored under key is served from.
	URL(key string) string
	Ping(ctx context.Context) error
	Close() error
	Backend() string
}

// ErrInvalidKey marks keys that escape the store root or are empty.
var ErrInvalidKey = errors.New("invalid storage key")

// CleanKey validates and normalizes a key.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the store root", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// Open constructs the backend selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("storage: config required")
	}
	switch cfg.Storage.Backend {
	case config.StorageFilesystem, "":
		return NewFilesystem(cfg.Storage.Root, cfg.Storage.PublicBaseURL)
	case config.StorageS3:
		return NewS3(ctx, S3Options{
			Endpoint:      cfg.Storage.S3Endpoint,
			Bucket:        cfg.Storage.S3Bucket,
			Region:        cfg.Storage.S3Region,
			AccessKey:     cfg.Storage.S3AccessKey,
			SecretKey:     cfg.Storage.S3SecretKey,
			UseSSL:        cfg.Storage.S3UseSSL,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
	case config.StorageNATS:
		return NewNATS(cfg.Storage.NATSURL, cfg.Storage.NATSBucket, cfg.Storage.PublicBaseURL)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
