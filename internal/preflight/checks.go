package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"avatarcast/internal/catalog"
	"avatarcast/internal/journal"
	"avatarcast/internal/services"
	"avatarcast/internal/storage"
)

const (
	providerCheckTimeout = 15 * time.Second
	storageCheckTimeout  = 5 * time.Second
)

// CheckProvider verifies the provider API is reachable and accepts the
// configured key by listing avatars once.
func CheckProvider(ctx context.Context, provider catalog.Fetcher) Result {
	const name = "Provider API"

	checkCtx, cancel := context.WithTimeout(ctx, providerCheckTimeout)
	defer cancel()

	avatars, err := provider.ListAvatars(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeProviderError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d avatars)", len(avatars))}
}

// CheckStorage pings the export storage backend.
func CheckStorage(ctx context.Context, store storage.Store) Result {
	name := fmt.Sprintf("Storage (%s)", store.Backend())

	checkCtx, cancel := context.WithTimeout(ctx, storageCheckTimeout)
	defer cancel()

	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("ping failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckJournal opens the job journal, which validates its schema version.
func CheckJournal(ctx context.Context, path string) Result {
	const name = "Job journal"

	store, err := journal.Open(ctx, path)
	if err != nil {
		if errors.Is(err, journal.ErrSchemaMismatch) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (schema mismatch; remove the file to recreate it)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeProviderError(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "API key missing"
	case errors.Is(err, context.DeadlineExceeded):
		return "health check timed out (provider unresponsive)"
	case errors.Is(err, services.ErrProviderRejected):
		return fmt.Sprintf("request rejected; check the API key (%v)", err)
	case errors.Is(err, services.ErrMalformedResponse):
		return fmt.Sprintf("unexpected response; check base_url (%v)", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (provider unreachable)"
	}
	return err.Error()
}
