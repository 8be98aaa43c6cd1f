// Package engine implements the ReplyEngine (component G): the per-video
// pipeline of fetch, keyword filter, dedup filter, and bounded-concurrency
// reply loop.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoreplyd/engine/internal/config"
	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/observability"
	"github.com/autoreplyd/engine/internal/template"
)

// DelayPacer is the subset of pacing.Pacer the engine depends on.
type DelayPacer interface {
	BeforeReplyDelay() time.Duration
	AfterReplyDelay() time.Duration
	BatchSize() int
}

// TemplateRenderer is the subset of template.Renderer the engine depends on.
type TemplateRenderer interface {
	Render(tmpl string, vars template.Vars) string
}

// Engine implements the per-video reply pipeline (spec.md §4.G).
type Engine struct {
	platform domain.PlatformClient
	dedup    domain.RepliedCommentRepository
	quota    domain.QuotaAccountant
	pacer    DelayPacer
	renderer TemplateRenderer

	replyCost         int
	workerConcurrency int
}

// New constructs an Engine.
func New(platform domain.PlatformClient, dedupStore domain.RepliedCommentRepository, quota domain.QuotaAccountant,
	pacer DelayPacer, renderer TemplateRenderer, cfg config.Config) *Engine {
	return &Engine{
		platform:          platform,
		dedup:             dedupStore,
		quota:             quota,
		pacer:             pacer,
		renderer:          renderer,
		replyCost:         cfg.ReplyCost,
		workerConcurrency: cfg.WorkerConcurrency,
	}
}

const globalReserveHeadroomFloor = 100

// Run executes one ReplyEngine invocation for a video: quota preflight,
// fetch, keyword filter, dedup filter, bounded-concurrency reply loop.
// cap bounds how many comments are fetched (100 scheduled / 1000 manual per
// spec.md §4.G); maxReplies additionally bounds how many replies this
// invocation may post, so PeriodicDriver can spread a large backlog across
// ticks (spec.md §4.I).
func (e *Engine) Run(ctx context.Context, video domain.Video, user domain.User, cap int, maxReplies int) (domain.ReplyStats, error) {
	tracer := otel.Tracer("engine.reply_engine")
	ctx, span := tracer.Start(ctx, "engine.Run")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", video.ID), attribute.String("user.id", user.ID))

	if err := video.Settings.Validate(); err != nil {
		return domain.ReplyStats{}, fmt.Errorf("op=engine.run.validate: %w", err)
	}

	remainingGlobal, err := e.quota.RemainingGlobal(ctx)
	if err != nil {
		return domain.ReplyStats{}, fmt.Errorf("op=engine.run.remaining_global: %w", err)
	}
	remainingUser, err := e.quota.RemainingForUser(ctx, user.ID)
	if err != nil {
		return domain.ReplyStats{}, fmt.Errorf("op=engine.run.remaining_for_user: %w", err)
	}
	if remainingGlobal < globalReserveHeadroomFloor || remainingUser <= 0 {
		return domain.ReplyStats{}, nil
	}

	comments, err := e.platform.ListVideoComments(ctx, video.ExternalVideoID, cap)
	if err != nil {
		return domain.ReplyStats{}, fmt.Errorf("op=engine.run.fetch: %w", err)
	}
	observability.CommentsFetchedTotal.Add(float64(len(comments)))

	matched := filterByKeyword(comments, video.Settings.Keywords)

	ids := make([]string, 0, len(matched))
	for _, c := range matched {
		ids = append(ids, c.ExternalCommentID)
	}
	present, err := e.dedup.ContainsAny(ctx, ids)
	if err != nil {
		return domain.ReplyStats{}, fmt.Errorf("op=engine.run.dedup_check: %w", err)
	}
	var survivors []domain.CommentThread
	for _, c := range matched {
		if !present[c.ExternalCommentID] {
			survivors = append(survivors, c)
		}
	}

	if maxReplies > 0 && len(survivors) > maxReplies {
		survivors = survivors[:maxReplies]
	}

	stats := domain.ReplyStats{
		TotalComments: len(comments),
		Matched:       len(matched),
		New:           len(survivors),
	}
	if len(survivors) == 0 {
		return stats, nil
	}

	results := e.replyLoop(ctx, survivors, video, user)
	stats.Results = results
	for _, r := range results {
		if r.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

// filterByKeyword keeps comments whose case-folded displayed text contains
// any case-folded keyword, first-match-wins (spec.md §4.G step 3). Both
// sides are lower-cased with strings.ToLower, which handles the
// Réponse/réponse property (P4). This is per-rune lower-case mapping, not
// full Unicode case folding: multi-rune folds such as "ß" to "ss" are not
// applied.
func filterByKeyword(comments []domain.CommentThread, keywords []string) []domain.CommentThread {
	folded := make([]string, len(keywords))
	for i, k := range keywords {
		folded[i] = strings.ToLower(k)
	}

	var out []domain.CommentThread
	for _, c := range comments {
		text := strings.ToLower(c.TextDisplay)
		for i, k := range folded {
			if k != "" && strings.Contains(text, k) {
				c.MatchedKeyword = keywords[i]
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// replyLoop processes survivors under a counting semaphore cap bounding
// simultaneous outbound post_reply calls (spec.md §5). Comment submission
// order equals fetch order; completion order is arbitrary.
func (e *Engine) replyLoop(ctx context.Context, comments []domain.CommentThread, video domain.Video, user domain.User) []domain.CommentResult {
	concurrency := e.workerConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	sem := make(chan struct{}, concurrency)
	results := make([]domain.CommentResult, len(comments))
	stopSubmitting := false

	for i, c := range comments {
		if stopSubmitting {
			results[i] = domain.CommentResult{ExternalCommentID: c.ExternalCommentID, Success: false, Error: domain.ErrQuotaExhausted.Error()}
			continue
		}
		if ctx.Err() != nil {
			results[i] = domain.CommentResult{ExternalCommentID: c.ExternalCommentID, Success: false, Error: ctx.Err().Error()}
			continue
		}

		// Acquiring the slot before the CanReserve check means, at
		// concurrency=1, the check always observes the prior reply's
		// committed reservation rather than a stale read.
		sem <- struct{}{}

		canReserve, err := e.quota.CanReserve(ctx, e.replyCost, user.ID)
		if err != nil {
			<-sem
			results[i] = domain.CommentResult{ExternalCommentID: c.ExternalCommentID, Success: false, Error: err.Error()}
			continue
		}
		if !canReserve {
			<-sem
			stopSubmitting = true
			results[i] = domain.CommentResult{ExternalCommentID: c.ExternalCommentID, Success: false, Error: domain.ErrQuotaExhausted.Error()}
			continue
		}

		go func(idx int, comment domain.CommentThread) {
			defer func() { <-sem }()
			results[idx] = e.replyOne(ctx, comment, video, user)
		}(i, c)
	}

	// Fill the semaphore back to capacity: each send here only succeeds once
	// a launched goroutine's defer frees a slot, so this blocks until every
	// in-flight reply has completed.
	for i := 0; i < concurrency; i++ {
		sem <- struct{}{}
	}

	return results
}

// replyOne executes one comment's render/delay/post/dedup/reserve sequence.
// Any error is captured into the comment's own result and never propagated
// to peers (spec.md §4.G's per-comment failure isolation).
func (e *Engine) replyOne(ctx context.Context, comment domain.CommentThread, video domain.Video, user domain.User) domain.CommentResult {
	result := domain.CommentResult{ExternalCommentID: comment.ExternalCommentID}

	select {
	case <-time.After(e.pacer.BeforeReplyDelay()):
	case <-ctx.Done():
		result.Error = ctx.Err().Error()
		return result
	}

	tmpl := video.Settings.Templates[0]
	if len(video.Settings.Templates) > 1 {
		tmpl = video.Settings.Templates[pseudoIndex(comment.ExternalCommentID, len(video.Settings.Templates))]
	}
	text := e.renderer.Render(tmpl, template.Vars{Name: comment.AuthorDisplayName})

	posted, err := e.platform.PostReply(ctx, comment.ExternalCommentID, text)
	if err != nil {
		result.Error = err.Error()
		observability.RepliesFailedTotal.WithLabelValues(classifyFailure(err)).Inc()
		return result
	}
	result.Success = true
	result.ReplyText = posted.Text

	// The dedup insert is attempted regardless of post-processing errors
	// below it, per spec.md §4.G's failure semantics.
	inserted, insertErr := e.dedup.Insert(ctx, domain.RepliedComment{
		ExternalCommentID: comment.ExternalCommentID,
		VideoID:           video.ID,
		UserID:            user.ID,
		CommentText:       comment.TextDisplay,
		CommentAuthor:     comment.AuthorDisplayName,
		KeywordMatched:    comment.MatchedKeyword,
		ReplyText:         posted.Text,
	})
	if insertErr != nil {
		result.Success = false
		result.Error = insertErr.Error()
		return result
	}
	if !inserted {
		// Another writer already recorded this comment; success-equivalent
		// per spec.md §7 (DuplicateComment).
		result.Error = domain.ErrDuplicateComment.Error()
	}

	if err := e.quota.Reserve(ctx, e.replyCost, user.ID); err != nil {
		result.Success = false
		result.Error = err.Error()
		return result
	}
	observability.RepliesPostedTotal.Inc()

	select {
	case <-time.After(e.pacer.AfterReplyDelay()):
	case <-ctx.Done():
	}

	return result
}

func classifyFailure(err error) string {
	if domain.IsRetryable(err) {
		return "transient"
	}
	return "permanent"
}

// pseudoIndex deterministically distributes comments across a template pool
// without extra randomness state, so the same comment always maps to the
// same template within one run.
func pseudoIndex(id string, n int) int {
	if n <= 0 {
		return 0
	}
	var h uint32
	for i := 0; i < len(id); i++ {
		h = h*31 + uint32(id[i])
	}
	return int(h) % n
}
