package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidReference marks a caller error naming an unknown avatar, voice, preset or job.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInvalidRequest marks a malformed request (empty script, unknown quality).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProviderRejected marks a non-retryable provider refusal at submission time.
	ErrProviderRejected = errors.New("provider rejected request")
	// ErrProviderError marks a terminal failure reported by the provider after acceptance.
	ErrProviderError = errors.New("provider error")
	// ErrMalformedResponse marks a provider response missing expected fields.
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyTerminal   = errors.New("already terminal")
	ErrConfiguration     = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether err is worth retrying after a backoff delay.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
