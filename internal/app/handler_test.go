package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoreplyd/engine/internal/app"
	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/credential"
	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/pacing"
	"github.com/autoreplyd/engine/internal/template"
)

type fakeUsers struct {
	user domain.User
}

func (f *fakeUsers) Get(context.Context, string) (domain.User, error) { return f.user, nil }
func (f *fakeUsers) GetByExternalIdentityID(context.Context, string) (domain.User, error) {
	return f.user, nil
}
func (f *fakeUsers) Upsert(context.Context, domain.User) (string, error) { return "", nil }
func (f *fakeUsers) UpdateCredential(context.Context, string, string, time.Time) error { return nil }
func (f *fakeUsers) Delete(context.Context, string) error                             { return nil }

type fakeVideos struct {
	video domain.Video
}

func (f *fakeVideos) Get(context.Context, string) (domain.Video, error) { return f.video, nil }
func (f *fakeVideos) GetSettings(context.Context, string) (domain.VideoSettings, error) {
	return f.video.Settings, nil
}
func (f *fakeVideos) Upsert(context.Context, domain.Video) (string, error) { return "", nil }
func (f *fakeVideos) DueAndStamp(context.Context, time.Time) ([]domain.Video, error) {
	return nil, nil
}

type fakeQuota struct{}

func (fakeQuota) RemainingGlobal(context.Context) (int, error)         { return 10000, nil }
func (fakeQuota) RemainingForUser(context.Context, string) (int, error) { return 100, nil }
func (fakeQuota) CanReserve(context.Context, int, string) (bool, error) { return true, nil }
func (fakeQuota) Reserve(context.Context, int, string) error            { return nil }
func (fakeQuota) UserReplyCount(context.Context, string) (int64, error) { return 0, nil }

type fakeDedup struct{}

func (fakeDedup) ContainsAny(context.Context, []string) (map[string]bool, error) { return nil, nil }
func (fakeDedup) Insert(context.Context, domain.RepliedComment) (bool, error)     { return true, nil }
func (fakeDedup) ListIDsForUser(context.Context, string) ([]string, error)       { return nil, nil }
func (fakeDedup) CountForUserToday(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}
func (fakeDedup) StatsForUser(context.Context, string) (domain.ReplyStats, error) {
	return domain.ReplyStats{}, nil
}
func (fakeDedup) DailyCounts(context.Context, string, int) (map[string]int64, error) {
	return nil, nil
}

func newHandler(t *testing.T, user domain.User, video domain.Video) *app.ReplyHandler {
	t.Helper()
	enc, err := credential.NewEncryptor("")
	require.NoError(t, err)
	return app.NewReplyHandler(
		&fakeUsers{user: user},
		&fakeVideos{video: video},
		fakeQuota{},
		fakeDedup{},
		pacing.New(),
		noopRenderer{},
		config.Config{ReplyCost: 10, WorkerConcurrency: 2},
		enc,
	)
}

type noopRenderer struct{}

func (noopRenderer) Render(tmpl string, vars template.Vars) string { return tmpl }

func TestReplyHandler_Run_RejectsInvalidVideoSettingsWithoutNetworkCall(t *testing.T) {
	t.Parallel()
	user := domain.User{ID: "u1", AccessCredential: "access", RefreshCredential: "", CredentialExpiresAt: time.Now().Add(time.Hour)}
	video := domain.Video{ID: "v1", UserID: "u1", ExternalVideoID: "yt1", Settings: domain.VideoSettings{Enabled: true}}
	h := newHandler(t, user, video)

	_, err := h.Run(context.Background(), video, user, 100, 10)
	require.Error(t, err)
}

func TestReplyHandler_HandleReplyTask_ResolvesVideoAndUser(t *testing.T) {
	t.Parallel()
	user := domain.User{ID: "u1", AccessCredential: "access", CredentialExpiresAt: time.Now().Add(time.Hour)}
	video := domain.Video{ID: "v1", UserID: "u1", ExternalVideoID: "yt1", Settings: domain.VideoSettings{Enabled: true}}
	h := newHandler(t, user, video)

	err := h.HandleReplyTask(context.Background(), domain.ReplyTaskPayload{VideoID: "v1", UserID: "u1", MaxComments: 10})
	// The fake video has no keywords/templates, so Settings.Validate fails
	// before any network call -- this still exercises HandleReplyTask's
	// video/user resolution path end to end.
	assert.Error(t, err)
}

func TestLoadRenderer_EmptyPathReturnsBuiltinDefaults(t *testing.T) {
	t.Parallel()
	r, err := app.LoadRenderer(config.Config{})
	require.NoError(t, err)
	require.NotNil(t, r)
	out := r.Render("hi {name}", template.Vars{Name: "Sam"})
	assert.Contains(t, out, "Sam")
}
