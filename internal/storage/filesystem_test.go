package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"avatarcast/internal/config"
)

func TestFilesystemPutExists(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystem(root, "")
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	ctx := context.Background()

	exists, err := store.Exists(ctx, "youtube/job-1/landscape.mp4")
	if err != nil || exists {
		t.Fatalf("expected missing object, got exists=%v err=%v", exists, err)
	}

	url, err := store.Put(ctx, "youtube/job-1/landscape.mp4", []byte("video"), "video/mp4")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "youtube/job-1/landscape.mp4") {
		t.Fatalf("unexpected url %q", url)
	}
	data, err := os.ReadFile(filepath.Join(root, "youtube", "job-1", "landscape.mp4"))
	if err != nil || string(data) != "video" {
		t.Fatalf("unexpected stored content %q err=%v", data, err)
	}
	exists, err = store.Exists(ctx, "youtube/job-1/landscape.mp4")
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got exists=%v err=%v", exists, err)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "youtube", "job-1"))
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestFilesystemPublicURL(t *testing.T) {
	store, err := NewFilesystem(t.TempDir(), "https://media.example.com/exports/")
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	if got := store.URL("tiktok/a/b.mp4"); got != "https://media.example.com/exports/tiktok/a/b.mp4" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestCleanKeyRejectsEscapes(t *testing.T) {
	for _, key := range []string{"", "  ", "/etc/passwd", "../up.mp4", "a/../../b", ".."} {
		if _, err := CleanKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("CleanKey(%q): expected invalid key, got %v", key, err)
		}
	}
	got, err := CleanKey(`youtube\job/./x.mp4`)
	if err != nil || got != "youtube/job/x.mp4" {
		t.Fatalf("unexpected clean key %q err=%v", got, err)
	}
}

func TestFilesystemPing(t *testing.T) {
	store, err := NewFilesystem(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpenSelectsFilesystem(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	store, err := Open(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if store.Backend() != config.StorageFilesystem {
		t.Fatalf("unexpected backend %q", store.Backend())
	}

	cfg.Storage.Backend = "ftp"
	if _, err := Open(context.Background(), &cfg); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
