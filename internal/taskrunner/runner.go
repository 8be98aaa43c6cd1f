// Package taskrunner implements the TaskRunner (component J): asynq-backed
// submission, status lookup, and worker-side processing of
// domain.ReplyTaskPayload dispatches.
package taskrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/observability"
)

// Client submits ReplyTaskPayload work and reports on prior submissions.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	retry     domain.RetryConfig
	queue     string
}

// NewClient constructs a Client against redisOpt (already parsed, so the
// dial target is validated once at process startup).
func NewClient(redisOpt asynq.RedisConnOpt, queue string) *Client {
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		retry:     domain.DefaultRetryConfig(),
		queue:     queue,
	}
}

// Submit enqueues a reply task and returns the asynq task ID, used later by
// Status.
func (c *Client) Submit(ctx context.Context, payload domain.ReplyTaskPayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=taskrunner.submit.marshal: %w", err)
	}
	task := asynq.NewTask(TaskReplyVideo, b)
	opts := append(taskOptions(c.retry), asynq.Queue(c.queue))
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("op=taskrunner.submit.enqueue: %w", err)
	}
	return info.ID, nil
}

// TaskStatus is the operator-facing view of one dispatched task (backs the
// GET .../tasks/{task_id}/status surface).
type TaskStatus struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Retried    int       `json:"retried"`
	MaxRetry   int       `json:"max_retry"`
	LastErr    string    `json:"last_err,omitempty"`
	LastFailed time.Time `json:"last_failed,omitempty"`
}

// Status looks up a previously submitted task's current state.
func (c *Client) Status(taskID string) (TaskStatus, error) {
	info, err := c.inspector.GetTaskInfo(c.queue, taskID)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("op=taskrunner.status: %w: %w", domain.ErrNotFound, err)
	}
	return TaskStatus{
		ID:         info.ID,
		State:      info.State.String(),
		Retried:    info.Retried,
		MaxRetry:   info.MaxRetry,
		LastErr:    info.LastErr,
		LastFailed: info.LastFailedAt,
	}, nil
}

// Close releases the underlying Redis connections.
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return err
	}
	return c.inspector.Close()
}

// ReplyTaskHandler executes one ReplyTaskPayload's worth of work. Modeled
// one level above engine.Engine so the server can resolve Video/User rows
// before invoking it.
type ReplyTaskHandler interface {
	HandleReplyTask(ctx context.Context, payload domain.ReplyTaskPayload) error
}

// Server wraps an asynq.Server/ServeMux pair processing TaskReplyVideo
// tasks.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// ServerConfig configures the worker pool backing a Server.
type ServerConfig struct {
	Concurrency     int
	Queue           string
	RateLimitPerMin int
}

// rateLimitMiddleware throttles how often the wrapped handler starts a new
// task to ratePerMin, independent of Concurrency: concurrency bounds how
// many tasks run at once, this bounds how many start per minute (spec.md
// §4.J's per-task rate limit), which matters for a downstream platform API
// with its own per-minute quota regardless of how many workers are free.
func rateLimitMiddleware(ratePerMin int) asynq.MiddlewareFunc {
	limiter := rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), ratePerMin)
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("op=taskrunner.rate_limit.wait: %w", err)
			}
			return next.ProcessTask(ctx, t)
		})
	}
}

// NewServer constructs a Server that dispatches TaskReplyVideo tasks to
// handler, logging and recording per-task duration metrics.
func NewServer(redisOpt asynq.RedisConnOpt, cfg ServerConfig, handler ReplyTaskHandler, logger *slog.Logger) *Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         map[string]int{cfg.Queue: 1},
		RetryDelayFunc: retryDelayFunc(domain.DefaultRetryConfig()),
	})
	mux := asynq.NewServeMux()
	ratePerMin := cfg.RateLimitPerMin
	if ratePerMin <= 0 {
		ratePerMin = 100
	}
	mux.Use(rateLimitMiddleware(ratePerMin))

	mux.HandleFunc(TaskReplyVideo, func(ctx context.Context, t *asynq.Task) error {
		tracer := otel.Tracer("taskrunner.server")
		ctx, span := tracer.Start(ctx, "ReplyVideo")
		defer span.End()

		var payload domain.ReplyTaskPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("op=taskrunner.handle.unmarshal: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, softTimeout)
		defer cancel()

		start := time.Now()
		err := handler.HandleReplyTask(ctx, payload)
		outcome := "success"
		if err != nil {
			outcome = "failure"
			if !domain.IsRetryable(err) {
				// Non-retryable failures still complete the task rather
				// than exhausting asynq's retry budget on a result that
				// will never change.
				logger.Warn("reply task failed permanently", slog.String("video_id", payload.VideoID), slog.Any("error", err))
				observability.TaskDuration.WithLabelValues("reply_video", outcome).Observe(time.Since(start).Seconds())
				return nil
			}
		}
		observability.TaskDuration.WithLabelValues("reply_video", outcome).Observe(time.Since(start).Seconds())
		return err
	})

	return &Server{srv: srv, mux: mux, logger: logger}
}

// Run blocks, processing tasks until the process receives a shutdown
// signal.
func (s *Server) Run() error {
	if err := s.srv.Run(s.mux); err != nil {
		return fmt.Errorf("op=taskrunner.server.run: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight tasks.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// DueSelector is the subset of selector.Selector the asynq-backed scheduler
// depends on.
type DueSelector interface {
	SelectDue(ctx context.Context) ([]domain.Video, error)
}

// Scheduler periodically enqueues a reply task for every due video; it is
// the asynq-backed alternative entry point to scheduler.Driver for
// deployments that want task-queue durability and visibility (retry count,
// last error) instead of an in-process ticker.
type Scheduler struct {
	client   *Client
	selector DueSelector
	logger   *slog.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(client *Client, selector DueSelector, logger *slog.Logger) *Scheduler {
	return &Scheduler{client: client, selector: selector, logger: logger}
}

// EnqueueDue selects due videos and submits one reply task per video.
func (s *Scheduler) EnqueueDue(ctx context.Context) (int, error) {
	due, err := s.selector.SelectDue(ctx)
	if err != nil {
		return 0, fmt.Errorf("op=taskrunner.scheduler.select_due: %w", err)
	}
	submitted := 0
	for _, v := range due {
		id, err := s.client.Submit(ctx, domain.ReplyTaskPayload{VideoID: v.ID, UserID: v.UserID, Manual: false, MaxComments: scheduledFetchCap})
		if err != nil {
			s.logger.Error("failed to submit reply task", slog.String("video_id", v.ID), slog.Any("error", err))
			continue
		}
		s.logger.Info("reply task submitted", slog.String("video_id", v.ID), slog.String("task_id", id))
		submitted++
	}
	return submitted, nil
}

const scheduledFetchCap = 100
