// Command worker runs the background reply pipeline: an in-process
// PeriodicDriver tick loop plus an asynq-backed TaskRunner server for
// manually-triggered and durably-retried reply dispatches.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/autoreplyd/engine/internal/app"
	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/credential"
	"github.com/autoreplyd/engine/internal/dedup"
	"github.com/autoreplyd/engine/internal/observability"
	"github.com/autoreplyd/engine/internal/pacing"
	"github.com/autoreplyd/engine/internal/quota"
	"github.com/autoreplyd/engine/internal/repo/postgres"
	"github.com/autoreplyd/engine/internal/scheduler"
	"github.com/autoreplyd/engine/internal/selector"
	"github.com/autoreplyd/engine/internal/taskrunner"
)

const taskQueueName = "reply"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9091", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL, postgres.RoleWorker, int32(cfg.APIPoolMaxConns), int32(cfg.WorkerPoolMaxConns))
	if err != nil {
		slog.Error("database connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("redis url parse failed", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	asynqRedisOpt := asynq.RedisClientOpt{Addr: redisOpt.Addr, Password: redisOpt.Password, DB: redisOpt.DB}

	usersRepo := postgres.NewUserRepo(pool)
	videosRepo := postgres.NewVideoRepo(pool)
	repliedRepo := postgres.NewRepliedCommentRepo(pool)

	dedupStore := dedup.New(repliedRepo)
	quotaAcct := quota.New(rdb, repliedRepo, cfg)
	pacer := pacing.New()

	renderer, err := app.LoadRenderer(cfg)
	if err != nil {
		slog.Error("template seed load failed", slog.Any("error", err))
		os.Exit(1)
	}

	enc, err := credential.NewEncryptor(cfg.CredentialEncKey)
	if err != nil {
		slog.Error("credential encryptor init failed", slog.Any("error", err))
		os.Exit(1)
	}

	handler := app.NewReplyHandler(usersRepo, videosRepo, quotaAcct, dedupStore, pacer, renderer, cfg, enc)

	dueSelector := selector.New(videosRepo)

	// In-process ticker is the primary dispatch path for scheduled work: it
	// runs the engine directly, with no queue hop, which keeps the common
	// case (a handful of enrolled channels) simple and dependency-free.
	driver := scheduler.New(dueSelector, usersRepo, handler, pacer, scheduler.Config{
		TickInterval: time.Duration(cfg.TickIntervalSeconds) * time.Second,
	}, logger)
	go driver.Run(ctx)

	// The asynq server only serves manually-triggered tasks submitted by
	// cmd/server's TriggerReplyHandler; it shares the same ReplyHandler, so a
	// manual trigger gets the queue's retry/visibility guarantees without
	// duplicating the periodic sweep asynq.Scheduler would otherwise run.
	taskServer := taskrunner.NewServer(asynqRedisOpt, taskrunner.ServerConfig{
		Concurrency:     cfg.WorkerConcurrency,
		Queue:           taskQueueName,
		RateLimitPerMin: cfg.TaskRateLimitPerMin,
	}, handler, logger)

	go func() {
		slog.Info("starting task server", slog.Int("concurrency", cfg.WorkerConcurrency))
		if err := taskServer.Run(); err != nil {
			slog.Error("task server error", slog.Any("error", err))
		}
	}()

	slog.Info("worker started successfully, waiting for shutdown signal")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))

	taskServer.Shutdown()
	slog.Info("worker stopped")
}
