// Package scheduler implements the PeriodicDriver (component I): the
// in-process tick loop that feeds due videos to the ReplyEngine between
// TaskRunner dispatches.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/autoreplyd/engine/internal/domain"
)

// VideoEngine is the subset of engine.Engine the driver depends on.
type VideoEngine interface {
	Run(ctx context.Context, video domain.Video, user domain.User, cap int, maxReplies int) (domain.ReplyStats, error)
}

// InterVideoPacer is the subset of pacing.Pacer the driver depends on.
type InterVideoPacer interface {
	InterVideoDelay() time.Duration
	BatchSize() int
}

// DueSelector is the subset of selector.Selector the driver depends on.
type DueSelector interface {
	SelectDue(ctx context.Context) ([]domain.Video, error)
}

// maxReportedErrorsPerPass caps how many per-video failures a single tick
// logs individually (spec.md §7); the rest are still counted, just not
// logged one by one.
const maxReportedErrorsPerPass = 5

// Driver ticks on a fixed interval, selects due videos, and runs the reply
// engine against each in selection order.
type Driver struct {
	selector DueSelector
	users    domain.UserRepository
	engine   VideoEngine
	pacer    InterVideoPacer
	interval time.Duration
	logger   *slog.Logger
}

// Config configures a Driver.
type Config struct {
	TickInterval time.Duration
}

// New constructs a Driver.
func New(sel DueSelector, users domain.UserRepository, eng VideoEngine, pacer InterVideoPacer, cfg Config, logger *slog.Logger) *Driver {
	return &Driver{selector: sel, users: users, engine: eng, pacer: pacer, interval: cfg.TickInterval, logger: logger}
}

// Run blocks, ticking until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick runs one selection-and-dispatch pass. It never drains the entire
// backlog in one pass: each video is capped to one batch's worth of replies.
// Because last_checked_at was already stamped for this pass, the video is
// not selected again until its interval has elapsed; the due-selection after
// that picks up any remainder (spec.md §4.I).
func (d *Driver) tick(ctx context.Context) {
	due, err := d.selector.SelectDue(ctx)
	if err != nil {
		d.logger.Error("due selection failed", slog.Any("error", err))
		return
	}
	if len(due) == 0 {
		return
	}
	d.logger.Info("periodic tick starting", slog.Int("videos_due", len(due)))

	reported := 0
	for i, video := range due {
		if ctx.Err() != nil {
			return
		}

		user, err := d.users.Get(ctx, video.UserID)
		if err != nil {
			d.logReportedError("load user for due video failed", err, reported)
			reported++
			continue
		}

		batchSize := d.pacer.BatchSize()
		stats, err := d.engine.Run(ctx, video, user, scheduledFetchCap, batchSize)
		if err != nil {
			d.logReportedError("reply engine run failed", err, reported)
			reported++
			continue
		}
		d.logger.Info("video processed",
			slog.String("video_id", video.ID),
			slog.Int("matched", stats.Matched),
			slog.Int("succeeded", stats.Succeeded),
			slog.Int("failed", stats.Failed),
		)

		if i < len(due)-1 {
			select {
			case <-time.After(d.pacer.InterVideoDelay()):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Driver) logReportedError(msg string, err error, reported int) {
	if reported >= maxReportedErrorsPerPass {
		return
	}
	d.logger.Error(msg, slog.Any("error", err))
}

// scheduledFetchCap bounds each video's comment fetch during a periodic
// tick (spec.md §4.G); manual triggers use a separate, larger cap.
const scheduledFetchCap = 100
