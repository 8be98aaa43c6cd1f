package domain

import (
	"errors"
	"math"
	"time"
)

// RetryConfig controls how the TaskRunner backs off a failed ReplyTaskPayload
// dispatch (spec.md §4.J: max_retries=3, backoff 60s, doubling).
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches spec.md §4.J verbatim.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 60 * time.Second,
		Multiplier:   2.0,
	}
}

// NextDelay returns the backoff delay before retry attempt n (0-indexed).
func (c RetryConfig) NextDelay(attempt int) time.Duration {
	return time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt)))
}

// IsRetryable classifies an error per spec.md §7's taxonomy: transient
// platform errors and rate limits are retried by the TaskRunner; quota
// exhaustion, duplicate comments, invalid configuration, unauthorized and
// revoked credentials are not.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrTransientPlatform), errors.Is(err, ErrRateLimited):
		return true
	case errors.Is(err, ErrQuotaExhausted),
		errors.Is(err, ErrDuplicateComment),
		errors.Is(err, ErrConfigurationInvalid),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrCredentialRevoked),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict):
		return false
	default:
		var perr *PlatformError
		if errors.As(err, &perr) {
			return perr.Status >= 500 || perr.Status == 429
		}
		// Unknown errors (network hiccups, context deadline, ...) default to
		// retryable so transient infrastructure blips don't fail an
		// invocation outright.
		return true
	}
}
