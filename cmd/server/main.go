// Command server runs the operator-facing HTTP API: manual reply triggers,
// task status lookup, and analytics, backed by an asynq Client that hands
// work off to cmd/worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/httpapi"
	"github.com/autoreplyd/engine/internal/observability"
	"github.com/autoreplyd/engine/internal/repo/postgres"
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

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL, postgres.RoleAPI, int32(cfg.APIPoolMaxConns), int32(cfg.WorkerPoolMaxConns))
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
	asynqRedisOpt := asynq.RedisClientOpt{Addr: redisOpt.Addr, Password: redisOpt.Password, DB: redisOpt.DB}

	videosRepo := postgres.NewVideoRepo(pool)
	repliedRepo := postgres.NewRepliedCommentRepo(pool)

	taskClient := taskrunner.NewClient(asynqRedisOpt, taskQueueName)
	defer func() {
		if err := taskClient.Close(); err != nil {
			slog.Error("failed to close task client", slog.Any("error", err))
		}
	}()

	srv := httpapi.NewServer(videosRepo, repliedRepo, taskClient, cfg)
	handler := httpapi.BuildRouter(srv, httpapi.RouterConfig{
		CORSAllowOrigins: os.Getenv("CORS_ALLOW_ORIGINS"),
		RateLimitPerMin:  120,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
