package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoreplyd/engine/internal/domain"
)

// RepliedCommentRepo is the DedupStore's authoritative backing store
// (component A). external_comment_id carries a unique index so Insert is
// naturally idempotent under concurrent writers.
type RepliedCommentRepo struct{ Pool PgxPool }

// NewRepliedCommentRepo constructs a RepliedCommentRepo with the given pool.
func NewRepliedCommentRepo(p PgxPool) *RepliedCommentRepo { return &RepliedCommentRepo{Pool: p} }

// ContainsAny reports, for each given external comment id, whether a reply
// record already exists -- a single round trip via ANY($1), grounded on the
// teacher's batched existence-check pattern.
func (r *RepliedCommentRepo) ContainsAny(ctx context.Context, externalCommentIDs []string) (map[string]bool, error) {
	tracer := otel.Tracer("repo.replied_comments")
	ctx, span := tracer.Start(ctx, "replied_comments.ContainsAny")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "replied_comments"))

	out := make(map[string]bool, len(externalCommentIDs))
	for _, id := range externalCommentIDs {
		out[id] = false
	}
	if len(externalCommentIDs) == 0 {
		return out, nil
	}

	const q = `SELECT external_comment_id FROM replied_comments WHERE external_comment_id = ANY($1)`
	rows, err := r.Pool.Query(ctx, q, externalCommentIDs)
	if err != nil {
		return nil, fmt.Errorf("op=replied_comment.contains_any: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=replied_comment.contains_any.scan: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=replied_comment.contains_any.rows: %w", err)
	}
	return out, nil
}

// Insert records a posted reply. It is idempotent: concurrent inserts for the
// same external_comment_id resolve via ON CONFLICT DO NOTHING, and the
// returned inserted flag distinguishes "this call recorded it" from "another
// writer already had" so callers can tell the difference for metrics
// (spec.md P5 -- idempotent dedup insert).
func (r *RepliedCommentRepo) Insert(ctx context.Context, c domain.RepliedComment) (bool, error) {
	tracer := otel.Tracer("repo.replied_comments")
	ctx, span := tracer.Start(ctx, "replied_comments.Insert")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "replied_comments"))

	repliedAt := c.RepliedAt
	if repliedAt.IsZero() {
		repliedAt = time.Now().UTC()
	}

	const q = `INSERT INTO replied_comments
			(external_comment_id, video_id, user_id, comment_text, comment_author, keyword_matched, reply_text, replied_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (external_comment_id) DO NOTHING`

	tag, err := r.Pool.Exec(ctx, q, c.ExternalCommentID, c.VideoID, c.UserID, c.CommentText, c.CommentAuthor,
		c.KeywordMatched, c.ReplyText, repliedAt)
	if err != nil {
		return false, fmt.Errorf("op=replied_comment.insert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListIDsForUser returns every external comment id replied to across all of
// a user's videos, used to warm dedup.Store's in-memory mirror.
func (r *RepliedCommentRepo) ListIDsForUser(ctx context.Context, userID string) ([]string, error) {
	tracer := otel.Tracer("repo.replied_comments")
	ctx, span := tracer.Start(ctx, "replied_comments.ListIDsForUser")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "replied_comments"))

	const q = `SELECT external_comment_id FROM replied_comments WHERE user_id=$1 ORDER BY replied_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("op=replied_comment.list_ids_for_user: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=replied_comment.list_ids_for_user.scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountForUserToday counts replies recorded for a user on the given UTC date.
// quota.Accountant.UserReplyCount reads it as the dashboard-facing per-user
// count; the Redis counters that gate reservations are separate and are not
// rebuilt from it.
func (r *RepliedCommentRepo) CountForUserToday(ctx context.Context, userID string, today time.Time) (int64, error) {
	tracer := otel.Tracer("repo.replied_comments")
	ctx, span := tracer.Start(ctx, "replied_comments.CountForUserToday")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "replied_comments"))

	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	const q = `SELECT count(*) FROM replied_comments WHERE user_id=$1 AND replied_at >= $2 AND replied_at < $3`
	var n int64
	if err := r.Pool.QueryRow(ctx, q, userID, start, end).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=replied_comment.count_for_user_today: %w", err)
	}
	return n, nil
}

// StatsForUser aggregates reply counts for a user, supplemented from the
// original implementation's admin/operator stats surface (SPEC_FULL.md §4).
func (r *RepliedCommentRepo) StatsForUser(ctx context.Context, userID string) (domain.ReplyStats, error) {
	tracer := otel.Tracer("repo.replied_comments")
	ctx, span := tracer.Start(ctx, "replied_comments.StatsForUser")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "replied_comments"))

	const q = `SELECT count(*) FROM replied_comments WHERE user_id=$1`
	var total int64
	if err := r.Pool.QueryRow(ctx, q, userID).Scan(&total); err != nil {
		return domain.ReplyStats{}, fmt.Errorf("op=replied_comment.stats_for_user: %w", err)
	}
	return domain.ReplyStats{Succeeded: int(total)}, nil
}

// DailyCounts returns per-day reply counts for a user over the trailing
// window, for the operator-facing analytics surface (SPEC_FULL.md §4).
func (r *RepliedCommentRepo) DailyCounts(ctx context.Context, userID string, days int) (map[string]int64, error) {
	tracer := otel.Tracer("repo.replied_comments")
	ctx, span := tracer.Start(ctx, "replied_comments.DailyCounts")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "replied_comments"))

	const q = `SELECT date_trunc('day', replied_at) AS d, count(*) FROM replied_comments
		WHERE user_id=$1 AND replied_at >= now() - ($2 || ' days')::interval
		GROUP BY d ORDER BY d`
	rows, err := r.Pool.Query(ctx, q, userID, days)
	if err != nil {
		return nil, fmt.Errorf("op=replied_comment.daily_counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var d time.Time
		var n int64
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("op=replied_comment.daily_counts.scan: %w", err)
		}
		out[d.Format("2006-01-02")] = n
	}
	return out, rows.Err()
}
