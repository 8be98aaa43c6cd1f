// Package domain defines core entities, ports, and domain-specific errors.
package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels). Adapters wrap these with fmt.Errorf("op=...: %w", err)
// so callers can classify failures with errors.Is while still getting a
// readable, greppable message.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")

	// ErrTransientPlatform marks a transient platform failure for IsRetryable.
	// The platform client does not return it: 5xx responses surface as
	// *PlatformError and network errors unwrapped, and IsRetryable treats both
	// as retryable on their own.
	ErrTransientPlatform = errors.New("transient platform error")
	// ErrRateLimited covers HTTP 429 from the external platform; treated as
	// transient, and the TaskRunner waits twice its normal retry delay for it.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized is returned when a second 401 is hit after a credential
	// refresh has already been attempted once.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrCredentialRevoked is terminal for a user until re-enrollment.
	ErrCredentialRevoked = errors.New("credential revoked")
	// ErrQuotaExhausted is a clean stop signal, not a failure.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrDuplicateComment marks a dedup-insert collision; success-equivalent.
	ErrDuplicateComment = errors.New("duplicate comment")
	// ErrConfigurationInvalid marks a video with no keywords or no templates.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)

// PlatformError wraps a non-401, non-2xx response from the external platform.
type PlatformError struct {
	Status int
	Body   string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform error: status=%d body=%s", e.Status, truncate(e.Body, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
