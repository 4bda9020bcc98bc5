package avatarapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"avatarcast/internal/services"
)

const component = "avatarapi"

// StatusError captures a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Retryable reports whether the status code indicates a transient condition.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// RetryAfter returns the server-provided retry hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}

func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, component, operation, "request timed out", err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Retryable() {
			return services.Wrap(services.ErrTransient, component, operation, "provider unavailable", err)
		}
		return services.Wrap(services.ErrProviderRejected, component, operation, "provider rejected request", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return services.Wrap(services.ErrTransient, component, operation, "network error", err)
	}
	return services.Wrap(services.ErrTransient, component, operation, "request failed", err)
}

func malformed(operation, detail string, err error) error {
	return services.Wrap(services.ErrMalformedResponse, component, operation, detail, err)
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}

func classifyConfig(operation string) error {
	return services.Wrap(services.ErrConfiguration, component, operation, "api key required", nil)
}
