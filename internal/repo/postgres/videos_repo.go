package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoreplyd/engine/internal/domain"
)

// VideoRepo implements domain.VideoRepository: VideoIndex CRUD plus the
// atomic due-selection-and-stamp operation (component H).
type VideoRepo struct{ Pool PgxPool }

// NewVideoRepo constructs a VideoRepo with the given pool.
func NewVideoRepo(p PgxPool) *VideoRepo { return &VideoRepo{Pool: p} }

// settingsRow is the JSON shape stored in the videos.settings column.
type settingsRow struct {
	Enabled         bool     `json:"enabled"`
	Keywords        []string `json:"keywords"`
	Templates       []string `json:"templates"`
	IntervalMinutes int      `json:"interval_minutes"`
}

func toSettingsRow(s domain.VideoSettings) settingsRow {
	return settingsRow{Enabled: s.Enabled, Keywords: s.Keywords, Templates: s.Templates, IntervalMinutes: s.IntervalMinutes}
}

func (s settingsRow) toDomain() domain.VideoSettings {
	return domain.VideoSettings{Enabled: s.Enabled, Keywords: s.Keywords, Templates: s.Templates, IntervalMinutes: s.IntervalMinutes}
}

// Get loads a video by internal id.
func (r *VideoRepo) Get(ctx context.Context, id string) (domain.Video, error) {
	tracer := otel.Tracer("repo.videos")
	ctx, span := tracer.Start(ctx, "videos.Get")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "videos"))

	const q = `SELECT id, user_id, external_video_id, title, description, thumbnail_url,
		published_at, view_count, comment_count, settings, last_checked_at, created_at, updated_at
		FROM videos WHERE id=$1`
	return scanVideo(r.Pool.QueryRow(ctx, q, id))
}

// GetSettings loads only the automation settings for a video.
func (r *VideoRepo) GetSettings(ctx context.Context, id string) (domain.VideoSettings, error) {
	tracer := otel.Tracer("repo.videos")
	ctx, span := tracer.Start(ctx, "videos.GetSettings")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "videos"))

	const q = `SELECT settings FROM videos WHERE id=$1`
	var raw []byte
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&raw); err != nil {
		if err == pgx.ErrNoRows {
			return domain.VideoSettings{}, fmt.Errorf("op=video.get_settings: %w", domain.ErrNotFound)
		}
		return domain.VideoSettings{}, fmt.Errorf("op=video.get_settings: %w", err)
	}
	var s settingsRow
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.VideoSettings{}, fmt.Errorf("op=video.get_settings.unmarshal: %w", err)
	}
	return s.toDomain(), nil
}

func scanVideo(row pgx.Row) (domain.Video, error) {
	var v domain.Video
	var raw []byte
	if err := row.Scan(&v.ID, &v.UserID, &v.ExternalVideoID, &v.Title, &v.Description, &v.ThumbnailURL,
		&v.PublishedAt, &v.ViewCount, &v.CommentCount, &raw, &v.LastCheckedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Video{}, fmt.Errorf("op=video.get: %w", domain.ErrNotFound)
		}
		return domain.Video{}, fmt.Errorf("op=video.get: %w", err)
	}
	var s settingsRow
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Video{}, fmt.Errorf("op=video.get.unmarshal: %w", err)
	}
	v.Settings = s.toDomain()
	return v, nil
}

// Upsert inserts a new enrolled video or updates its metadata/settings on
// conflict with (user_id, external_video_id), mirroring list_channel_videos
// sync behavior (spec.md §4.D).
func (r *VideoRepo) Upsert(ctx context.Context, v domain.Video) (string, error) {
	tracer := otel.Tracer("repo.videos")
	ctx, span := tracer.Start(ctx, "videos.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "videos"))

	id := v.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	raw, err := json.Marshal(toSettingsRow(v.Settings))
	if err != nil {
		return "", fmt.Errorf("op=video.upsert.marshal: %w", err)
	}

	const q = `INSERT INTO videos (id, user_id, external_video_id, title, description, thumbnail_url,
			published_at, view_count, comment_count, settings, last_checked_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		ON CONFLICT (user_id, external_video_id) DO UPDATE SET
			title=EXCLUDED.title, description=EXCLUDED.description, thumbnail_url=EXCLUDED.thumbnail_url,
			view_count=EXCLUDED.view_count, comment_count=EXCLUDED.comment_count,
			settings=EXCLUDED.settings, updated_at=EXCLUDED.updated_at
		RETURNING id`

	row := r.Pool.QueryRow(ctx, q, id, v.UserID, v.ExternalVideoID, v.Title, v.Description, v.ThumbnailURL,
		v.PublishedAt, v.ViewCount, v.CommentCount, raw, v.LastCheckedAt, now)
	var gotID string
	if err := row.Scan(&gotID); err != nil {
		return "", fmt.Errorf("op=video.upsert: %w", err)
	}
	return gotID, nil
}

// DueAndStamp selects enabled videos whose reply interval has elapsed and
// atomically stamps last_checked_at := now in the same statement, so two
// concurrent PeriodicDriver passes can never select the same video twice
// (spec.md §4.H, invariant I5). It uses a single UPDATE ... RETURNING guarded
// by a row lock (FOR UPDATE SKIP LOCKED via the CTE) rather than a
// SELECT-then-UPDATE pair, closing the race a read-then-write would leave
// open under concurrent schedulers.
func (r *VideoRepo) DueAndStamp(ctx context.Context, now time.Time) ([]domain.Video, error) {
	tracer := otel.Tracer("repo.videos")
	ctx, span := tracer.Start(ctx, "videos.DueAndStamp")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "videos"))

	const q = `
		WITH candidates AS (
			SELECT id FROM videos
			WHERE (settings->>'enabled')::boolean IS TRUE
			  AND (
				last_checked_at IS NULL
				OR $1 >= last_checked_at + make_interval(mins => (settings->>'interval_minutes')::int)
			  )
			ORDER BY last_checked_at ASC NULLS FIRST
			FOR UPDATE SKIP LOCKED
		)
		UPDATE videos SET last_checked_at = $1, updated_at = $1
		WHERE id IN (SELECT id FROM candidates)
		RETURNING id, user_id, external_video_id, title, description, thumbnail_url,
			published_at, view_count, comment_count, settings, last_checked_at, created_at, updated_at`

	rows, err := r.Pool.Query(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("op=video.due_and_stamp: %w", err)
	}
	defer rows.Close()

	var out []domain.Video
	for rows.Next() {
		var v domain.Video
		var raw []byte
		if err := rows.Scan(&v.ID, &v.UserID, &v.ExternalVideoID, &v.Title, &v.Description, &v.ThumbnailURL,
			&v.PublishedAt, &v.ViewCount, &v.CommentCount, &raw, &v.LastCheckedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=video.due_and_stamp.scan: %w", err)
		}
		var s settingsRow
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("op=video.due_and_stamp.unmarshal: %w", err)
		}
		v.Settings = s.toDomain()
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=video.due_and_stamp.rows: %w", err)
	}
	return out, nil
}
