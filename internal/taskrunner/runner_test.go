package taskrunner_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/taskrunner"
)

func TestClient_SubmitAndStatus_RoundTrips(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	redisOpt := asynq.RedisClientOpt{Addr: mr.Addr()}

	client := taskrunner.NewClient(redisOpt, "replies")
	defer client.Close()

	id, err := client.Submit(context.Background(), domain.ReplyTaskPayload{VideoID: "v1", UserID: "u1", MaxComments: 100})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status, err := client.Status(id)
	require.NoError(t, err)
	require.Equal(t, id, status.ID)
}

type fakeHandler struct {
	calls chan domain.ReplyTaskPayload
}

func (f *fakeHandler) HandleReplyTask(_ context.Context, payload domain.ReplyTaskPayload) error {
	f.calls <- payload
	return nil
}

func TestServer_ProcessesSubmittedTask(t *testing.T) {
	mr := miniredis.RunT(t)
	redisOpt := asynq.RedisClientOpt{Addr: mr.Addr()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client := taskrunner.NewClient(redisOpt, "replies")
	defer client.Close()

	handler := &fakeHandler{calls: make(chan domain.ReplyTaskPayload, 1)}
	server := taskrunner.NewServer(redisOpt, taskrunner.ServerConfig{Concurrency: 1, Queue: "replies"}, handler, logger)

	go func() { _ = server.Run() }()
	defer server.Shutdown()

	_, err := client.Submit(context.Background(), domain.ReplyTaskPayload{VideoID: "v1", UserID: "u1"})
	require.NoError(t, err)

	select {
	case payload := <-handler.calls:
		require.Equal(t, "v1", payload.VideoID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task to be processed")
	}
}

type fakeSelector struct {
	due []domain.Video
}

func (f *fakeSelector) SelectDue(context.Context) ([]domain.Video, error) { return f.due, nil }

func TestScheduler_EnqueueDue_SubmitsOneTaskPerVideo(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	redisOpt := asynq.RedisClientOpt{Addr: mr.Addr()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client := taskrunner.NewClient(redisOpt, "replies")
	defer client.Close()

	sel := &fakeSelector{due: []domain.Video{{ID: "v1", UserID: "u1"}, {ID: "v2", UserID: "u1"}}}
	sched := taskrunner.NewScheduler(client, sel, logger)

	n, err := sched.EnqueueDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
