// Package pacing implements the DelayPacer (component E): stateless helpers
// producing human-like pre-reply, post-reply, and inter-batch delays so
// automated activity doesn't read as a burst to the platform's abuse
// detection.
package pacing

import (
	"math/rand"
	"time"
)

// Pacer produces the delay/batch-size distributions named in spec.md §4.E.
// All distributions are uniform; the goal is non-deterministic pacing, not
// statistical verisimilitude.
type Pacer struct{}

// New constructs a Pacer.
func New() Pacer { return Pacer{} }

func uniformDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min))) //nolint:gosec // pacing jitter, not security-sensitive
}

// BeforeReplyDelay returns a delay in [800ms, 3500ms].
func (Pacer) BeforeReplyDelay() time.Duration {
	return uniformDuration(800*time.Millisecond, 3500*time.Millisecond)
}

// AfterReplyDelay returns a delay in [1.0s, 2.5s].
func (Pacer) AfterReplyDelay() time.Duration {
	return uniformDuration(1000*time.Millisecond, 2500*time.Millisecond)
}

// InterBatchDelay returns a delay in [90s, 180s].
func (Pacer) InterBatchDelay() time.Duration {
	return uniformDuration(90*time.Second, 180*time.Second)
}

// InterVideoDelay returns a delay in [5s, 15s], used by PeriodicDriver
// between per-video invocations (spec.md §4.I).
func (Pacer) InterVideoDelay() time.Duration {
	return uniformDuration(5*time.Second, 15*time.Second)
}

// BatchSize returns an int in [8, 15].
func (Pacer) BatchSize() int {
	return 8 + rand.Intn(8) //nolint:gosec // pacing jitter, not security-sensitive
}
