package ai

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrMissingCredential is returned before any network call when no API key is configured.
var ErrMissingCredential = errors.New("ai credential is not configured")

// UpstreamError describes a failed call to the model provider. StatusCode is
// zero for transport failures where no response was received. Body is the raw
// reply when it was not a JSON error envelope; otherwise it holds the
// envelope's message followed by its type and code.
type UpstreamError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("ai request failed: %v", e.Err)
	}
	status := e.Status
	if status == "" {
		status = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("ai API error: %d %s - %s", e.StatusCode, status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is reports 429 responses as ErrQuotaExceeded.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.StatusCode == http.StatusTooManyRequests
}
