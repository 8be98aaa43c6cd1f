// Package app wires the engine's components into the two process entry
// points (cmd/worker, cmd/server), mirroring the teacher's internal/app
// bootstrap helpers (router assembly, readiness, background sweepers).
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/credential"
	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/engine"
	"github.com/autoreplyd/engine/internal/platformclient"
	"github.com/autoreplyd/engine/internal/template"
)

// ReplyHandler resolves a ReplyTaskPayload into a video/user pair, builds
// that user's PlatformClient on top of a cached CredentialHolder, and runs
// the ReplyEngine against it. It implements taskrunner.ReplyTaskHandler.
type ReplyHandler struct {
	users   domain.UserRepository
	videos  domain.VideoRepository
	quota   domain.QuotaAccountant
	dedup   domain.RepliedCommentRepository
	pacer   engine.DelayPacer
	renderer engine.TemplateRenderer
	cfg     config.Config
	enc     *credential.Encryptor

	mu      sync.Mutex
	holders map[string]*credential.Holder
}

// NewReplyHandler constructs a ReplyHandler.
func NewReplyHandler(users domain.UserRepository, videos domain.VideoRepository, quota domain.QuotaAccountant,
	dedup domain.RepliedCommentRepository, pacer engine.DelayPacer, renderer engine.TemplateRenderer,
	cfg config.Config, enc *credential.Encryptor) *ReplyHandler {
	return &ReplyHandler{
		users: users, videos: videos, quota: quota, dedup: dedup,
		pacer: pacer, renderer: renderer, cfg: cfg, enc: enc,
		holders: make(map[string]*credential.Holder),
	}
}

// holderFor returns the cached CredentialHolder for user, constructing one
// (with its refresh credential decrypted) on first use. Caching by user ID
// is what lets credential.Holder's own refresh-coalescing actually coalesce
// across concurrent tasks for the same user.
func (h *ReplyHandler) holderFor(user domain.User) (*credential.Holder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.holders[user.ID]; ok {
		return existing, nil
	}

	refreshToken, err := h.enc.Decrypt(user.RefreshCredential)
	if err != nil {
		return nil, fmt.Errorf("op=app.reply_handler.holder_for.decrypt: %w", err)
	}

	holder := credential.New(credential.Config{
		UserID:       user.ID,
		Access:       user.AccessCredential,
		ExpiresAt:    user.CredentialExpiresAt,
		RefreshToken: refreshToken,
		TokenURL:     h.cfg.OAuthTokenURL,
		ClientID:     h.cfg.OAuthClientID,
		ClientSecret: h.cfg.OAuthClientSecret,
		Persist: func(ctx context.Context, userID, access string, expiresAt time.Time) error {
			return h.users.UpdateCredential(ctx, userID, access, expiresAt)
		},
	})
	h.holders[user.ID] = holder
	return holder, nil
}

// HandleReplyTask implements taskrunner.ReplyTaskHandler: it resolves the
// payload's video/user and delegates to Run.
func (h *ReplyHandler) HandleReplyTask(ctx context.Context, payload domain.ReplyTaskPayload) error {
	video, err := h.videos.Get(ctx, payload.VideoID)
	if err != nil {
		return fmt.Errorf("op=app.reply_handler.handle.video: %w", err)
	}
	user, err := h.users.Get(ctx, video.UserID)
	if err != nil {
		return fmt.Errorf("op=app.reply_handler.handle.user: %w", err)
	}
	_, err = h.Run(ctx, video, user, payload.MaxComments, payload.MaxComments)
	return err
}

// Run builds the calling user's PlatformClient on top of its cached
// CredentialHolder and runs the ReplyEngine against the given video. Its
// signature matches scheduler.VideoEngine, so the same ReplyHandler backs
// both the PeriodicDriver's in-process ticks and the asynq TaskRunner.
func (h *ReplyHandler) Run(ctx context.Context, video domain.Video, user domain.User, cap int, maxReplies int) (domain.ReplyStats, error) {
	holder, err := h.holderFor(user)
	if err != nil {
		return domain.ReplyStats{}, fmt.Errorf("op=app.reply_handler.run.holder: %w", err)
	}
	platform := platformclient.New(h.cfg.PlatformBaseURL, holder, h.cfg.PlatformCallTimeout, nil)
	eng := engine.New(platform, h.dedup, h.quota, h.pacer, h.renderer, h.cfg)

	stats, err := eng.Run(ctx, video, user, cap, maxReplies)
	if err != nil {
		return domain.ReplyStats{}, fmt.Errorf("op=app.reply_handler.run: %w", err)
	}
	return stats, nil
}

// LoadRenderer constructs the template.Renderer from the configured seed
// path. An unset path yields the renderer's built-in suffix pool; a seed
// file that cannot be read or parsed is returned as an error.
func LoadRenderer(cfg config.Config) (*template.Renderer, error) {
	seed, err := config.LoadSeedTemplates(cfg.TemplateSeedPath)
	if err != nil {
		return nil, fmt.Errorf("op=app.load_renderer: %w", err)
	}
	return template.New(seed), nil
}
