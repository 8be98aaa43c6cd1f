package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/httpapi"
	"github.com/autoreplyd/engine/internal/taskrunner"
)

type fakeVideoRepo struct {
	video domain.Video
	err   error
}

func (f *fakeVideoRepo) Get(context.Context, string) (domain.Video, error) { return f.video, f.err }
func (f *fakeVideoRepo) GetSettings(context.Context, string) (domain.VideoSettings, error) {
	return domain.VideoSettings{}, nil
}
func (f *fakeVideoRepo) Upsert(context.Context, domain.Video) (string, error) { return "", nil }
func (f *fakeVideoRepo) DueAndStamp(context.Context, time.Time) ([]domain.Video, error) {
	return nil, nil
}

type fakeRepliedRepo struct{}

func (fakeRepliedRepo) ContainsAny(context.Context, []string) (map[string]bool, error) { return nil, nil }
func (fakeRepliedRepo) Insert(context.Context, domain.RepliedComment) (bool, error)     { return true, nil }
func (fakeRepliedRepo) ListIDsForUser(context.Context, string) ([]string, error)        { return nil, nil }
func (fakeRepliedRepo) CountForUserToday(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}
func (fakeRepliedRepo) StatsForUser(context.Context, string) (domain.ReplyStats, error) {
	return domain.ReplyStats{Succeeded: 3}, nil
}
func (fakeRepliedRepo) DailyCounts(context.Context, string, int) (map[string]int64, error) {
	return map[string]int64{"2026-07-29": 3}, nil
}

type fakeTaskClient struct {
	submittedID string
	submitErr   error
	status      taskrunner.TaskStatus
	statusErr   error
}

func (f *fakeTaskClient) Submit(context.Context, domain.ReplyTaskPayload) (string, error) {
	return f.submittedID, f.submitErr
}
func (f *fakeTaskClient) Status(string) (taskrunner.TaskStatus, error) { return f.status, f.statusErr }

func TestTriggerReplyHandler_SubmitsManualTask(t *testing.T) {
	t.Parallel()
	videos := &fakeVideoRepo{video: domain.Video{ID: "v1", UserID: "u1"}}
	tasks := &fakeTaskClient{submittedID: "task-1"}
	srv := httpapi.NewServer(videos, fakeRepliedRepo{}, tasks, config.Config{ManualFetchCap: 1000})
	router := httpapi.BuildRouter(srv, httpapi.RouterConfig{RateLimitPerMin: 100})

	req := httptest.NewRequest(http.MethodPost, "/api/videos/v1/trigger-reply", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "task-1", body["task_id"])
}

func TestTriggerReplyHandler_VideoNotFound(t *testing.T) {
	t.Parallel()
	videos := &fakeVideoRepo{err: domain.ErrNotFound}
	tasks := &fakeTaskClient{}
	srv := httpapi.NewServer(videos, fakeRepliedRepo{}, tasks, config.Config{ManualFetchCap: 1000})
	router := httpapi.BuildRouter(srv, httpapi.RouterConfig{RateLimitPerMin: 100})

	req := httptest.NewRequest(http.MethodPost, "/api/videos/missing/trigger-reply", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsHandler_ReturnsStats(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer(&fakeVideoRepo{}, fakeRepliedRepo{}, &fakeTaskClient{}, config.Config{ManualFetchCap: 1000})
	router := httpapi.BuildRouter(srv, httpapi.RouterConfig{RateLimitPerMin: 100})

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/u1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"succeeded":3`)
}

func TestHealthzHandler_ReturnsOK(t *testing.T) {
	t.Parallel()
	srv := httpapi.NewServer(&fakeVideoRepo{}, fakeRepliedRepo{}, &fakeTaskClient{}, config.Config{})
	router := httpapi.BuildRouter(srv, httpapi.RouterConfig{RateLimitPerMin: 100})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
