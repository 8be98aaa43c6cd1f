package taskrunner

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/oklog/ulid/v2"

	"github.com/autoreplyd/engine/internal/domain"
)

// TaskReplyVideo is the asynq task type name for one ReplyTaskPayload
// dispatch (spec.md §4.J).
const TaskReplyVideo = "reply:video"

// softTimeout and hardTimeout bound one task's execution (spec.md §5): the
// soft timeout lets the handler return a clean result before asynq force-
// cancels the context at the hard timeout.
const (
	softTimeout = 9 * time.Minute
	hardTimeout = 10 * time.Minute
)

// retryDelayFunc maps domain.RetryConfig's doubling backoff onto asynq's
// per-attempt delay hook. A rate-limited failure (domain.ErrRateLimited)
// waits twice the normal delay.
func retryDelayFunc(cfg domain.RetryConfig) asynq.RetryDelayFunc {
	return func(n int, err error, _ *asynq.Task) time.Duration {
		if errors.Is(err, domain.ErrRateLimited) {
			return 2 * cfg.NextDelay(n)
		}
		return cfg.NextDelay(n)
	}
}

// taskOptions returns the asynq.Option set every reply task is enqueued
// with, matching domain.DefaultRetryConfig (spec.md §4.J: max_retries=3,
// backoff 60s doubling). asynq.Timeout is the hard cutoff measured from
// when a worker picks the task up; the handler enforces the shorter soft
// cutoff itself so it can return a clean result before the hard kill.
func taskOptions(cfg domain.RetryConfig) []asynq.Option {
	return []asynq.Option{
		asynq.TaskID(newTaskID()),
		asynq.MaxRetry(cfg.MaxRetries),
		asynq.Timeout(hardTimeout),
		asynq.Retention(24 * time.Hour),
	}
}

// newTaskID mints a time-sortable task ID so Status lookups and any
// operator-facing task listing sort in submission order without a separate
// ORDER BY column, independent of asynq's own internal ID scheme.
func newTaskID() string {
	return ulid.Make().String()
}
