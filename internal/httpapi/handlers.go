// Package httpapi implements the inbound HTTP surface: manual reply
// triggers, task status lookup, and operator-facing analytics.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/taskrunner"
)

// TaskClient is the subset of taskrunner.Client the API depends on.
type TaskClient interface {
	Submit(ctx context.Context, payload domain.ReplyTaskPayload) (string, error)
	Status(taskID string) (taskrunner.TaskStatus, error)
}

// Server aggregates the handler dependencies.
type Server struct {
	videos         domain.VideoRepository
	replied        domain.RepliedCommentRepository
	tasks          TaskClient
	manualFetchCap int
}

// NewServer constructs a Server.
func NewServer(videos domain.VideoRepository, replied domain.RepliedCommentRepository, tasks TaskClient, cfg config.Config) *Server {
	return &Server{videos: videos, replied: replied, tasks: tasks, manualFetchCap: cfg.ManualFetchCap}
}

// TriggerReplyHandler handles POST /api/videos/{id}/trigger-reply: submits
// a manual reply task for the named video and returns its task ID.
func (s *Server) TriggerReplyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "id")
		if videoID == "" {
			writeError(w, domain.ErrInvalidArgument)
			return
		}

		video, err := s.videos.Get(r.Context(), videoID)
		if err != nil {
			writeError(w, err)
			return
		}

		taskID, err := s.tasks.Submit(r.Context(), domain.ReplyTaskPayload{
			VideoID:     video.ID,
			UserID:      video.UserID,
			Manual:      true,
			MaxComments: s.manualFetchCap,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
	}
}

// TaskStatusHandler handles GET /api/videos/tasks/{task_id}/status.
func (s *Server) TaskStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "task_id")
		status, err := s.tasks.Status(taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// analyticsResponse is the operator-facing reply-activity summary for one
// user, backing GET /api/analytics/{user_id}.
type analyticsResponse struct {
	Stats       domain.ReplyStats `json:"stats"`
	DailyCounts map[string]int64 `json:"daily_counts"`
}

// AnalyticsHandler handles GET /api/analytics/{user_id}.
func (s *Server) AnalyticsHandler() http.HandlerFunc {
	const analyticsWindowDays = 30
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		if userID == "" {
			writeError(w, domain.ErrInvalidArgument)
			return
		}

		stats, err := s.replied.StatsForUser(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		daily, err := s.replied.DailyCounts(r.Context(), userID, analyticsWindowDays)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, analyticsResponse{Stats: stats, DailyCounts: daily})
	}
}

// HealthzHandler handles GET /healthz: a liveness probe with no
// dependency checks.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
