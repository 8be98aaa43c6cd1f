package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autoreplyd/engine/internal/domain"
)

type fakeSelector struct {
	due []domain.Video
}

func (f *fakeSelector) SelectDue(context.Context) ([]domain.Video, error) { return f.due, nil }

type fakeUsers struct{}

func (fakeUsers) Get(context.Context, string) (domain.User, error) { return domain.User{ID: "u1"}, nil }
func (fakeUsers) GetByExternalIdentityID(context.Context, string) (domain.User, error) {
	return domain.User{}, nil
}
func (fakeUsers) Upsert(context.Context, domain.User) (string, error)               { return "", nil }
func (fakeUsers) UpdateCredential(context.Context, string, string, time.Time) error { return nil }
func (fakeUsers) Delete(context.Context, string) error                              { return nil }

type fakeEngine struct {
	calls int32
}

func (f *fakeEngine) Run(context.Context, domain.Video, domain.User, int, int) (domain.ReplyStats, error) {
	atomic.AddInt32(&f.calls, 1)
	return domain.ReplyStats{}, nil
}

type instantPacer struct{}

func (instantPacer) InterVideoDelay() time.Duration { return 0 }
func (instantPacer) BatchSize() int                 { return 10 }

func TestDriver_Tick_RunsEngineForEachDueVideo(t *testing.T) {
	t.Parallel()
	sel := &fakeSelector{due: []domain.Video{{ID: "v1", UserID: "u1"}, {ID: "v2", UserID: "u1"}}}
	eng := &fakeEngine{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(sel, fakeUsers{}, eng, instantPacer{}, Config{TickInterval: time.Hour}, logger)

	d.tick(context.Background())

	assert.EqualValues(t, 2, atomic.LoadInt32(&eng.calls))
}

func TestDriver_Tick_NoOpWhenNothingDue(t *testing.T) {
	t.Parallel()
	sel := &fakeSelector{}
	eng := &fakeEngine{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(sel, fakeUsers{}, eng, instantPacer{}, Config{TickInterval: time.Hour}, logger)

	d.tick(context.Background())

	assert.EqualValues(t, 0, atomic.LoadInt32(&eng.calls))
}

func TestDriver_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	sel := &fakeSelector{}
	eng := &fakeEngine{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(sel, fakeUsers{}, eng, instantPacer{}, Config{TickInterval: time.Hour}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
