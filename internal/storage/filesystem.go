package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"avatarcast/internal/config"
)

// Filesystem stores objects below a local root directory.
type Filesystem struct {
	root          string
	publicBaseURL string
}

// NewFilesystem creates the root directory if needed.
func NewFilesystem(root, publicBaseURL string) (*Filesystem, error) {
	if root == "" {
		return nil, errors.New("storage filesystem: root required")
	}
	expanded, err := config.ExpandPath(root)
	if err != nil {
		return nil, fmt.Errorf("storage filesystem: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("storage filesystem: create root: %w", err)
	}
	return &Filesystem{root: expanded, publicBaseURL: publicBaseURL}, nil
}

func (f *Filesystem) Backend() string { return config.StorageFilesystem }

// Root returns the absolute root directory.
func (f *Filesystem) Root() string { return f.root }

func (f *Filesystem) path(key string) (string, string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(f.root, filepath.FromSlash(cleaned)), nil
}

// Put writes data atomically via a temporary file in the target directory.
func (f *Filesystem) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleaned, target, err := f.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("storage filesystem: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage filesystem: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage filesystem: write %s: %w", cleaned, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage filesystem: close %s: %w", cleaned, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("storage filesystem: chmod %s: %w", cleaned, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("storage filesystem: rename %s: %w", cleaned, err)
	}
	return f.URL(cleaned), nil
}

func (f *Filesystem) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, target, err := f.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("storage filesystem: stat: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

func (f *Filesystem) URL(key string) string {
	cleaned, target, err := f.path(key)
	if err != nil {
		return ""
	}
	if f.publicBaseURL != "" {
		return joinURL(f.publicBaseURL, cleaned)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(target)}).String()
}

// Ping verifies the root is a writable directory.
func (f *Filesystem) Ping(context.Context) error {
	info, err := os.Stat(f.root)
	if err != nil {
		return fmt.Errorf("storage filesystem: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage filesystem: %s is not a directory", f.root)
	}
	probe, err := os.CreateTemp(f.root, ".ping-*")
	if err != nil {
		return fmt.Errorf("storage filesystem: root not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

func (f *Filesystem) Close() error { return nil }
