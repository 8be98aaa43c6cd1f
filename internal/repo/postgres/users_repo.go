package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoreplyd/engine/internal/domain"
)

// UserRepo persists identity, credential, and quota-counter state for users.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

// Get loads a user by internal id.
func (r *UserRepo) Get(ctx context.Context, id string) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.Get")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "users"))

	const q = `SELECT id, email, external_identity_id, channel_id, channel_name, channel_thumbnail_url,
		access_credential, refresh_credential, credential_expires_at,
		daily_replies_used, quota_reset_date, created_at, updated_at
		FROM users WHERE id=$1`
	return scanUser(r.Pool.QueryRow(ctx, q, id))
}

// GetByExternalIdentityID loads a user by the identity provider's subject id.
func (r *UserRepo) GetByExternalIdentityID(ctx context.Context, externalID string) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.GetByExternalIdentityID")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "users"))

	const q = `SELECT id, email, external_identity_id, channel_id, channel_name, channel_thumbnail_url,
		access_credential, refresh_credential, credential_expires_at,
		daily_replies_used, quota_reset_date, created_at, updated_at
		FROM users WHERE external_identity_id=$1`
	return scanUser(r.Pool.QueryRow(ctx, q, externalID))
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.ExternalIdentityID, &u.ChannelID, &u.ChannelName, &u.ChannelThumbnailURL,
		&u.AccessCredential, &u.RefreshCredential, &u.CredentialExpiresAt,
		&u.DailyRepliesUsed, &u.QuotaResetDate, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, fmt.Errorf("op=user.get: %w", domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("op=user.get: %w", err)
	}
	return u, nil
}

// Upsert inserts a new user or updates identity/channel fields on conflict
// with external_identity_id, mirroring "created on first identity sync".
func (r *UserRepo) Upsert(ctx context.Context, u domain.User) (string, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "users"))

	id := u.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	const q = `INSERT INTO users (id, email, external_identity_id, channel_id, channel_name, channel_thumbnail_url,
			access_credential, refresh_credential, credential_expires_at,
			daily_replies_used, quota_reset_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11,$11)
		ON CONFLICT (external_identity_id) DO UPDATE SET
			email=EXCLUDED.email, channel_id=EXCLUDED.channel_id, channel_name=EXCLUDED.channel_name,
			channel_thumbnail_url=EXCLUDED.channel_thumbnail_url,
			access_credential=EXCLUDED.access_credential, refresh_credential=EXCLUDED.refresh_credential,
			credential_expires_at=EXCLUDED.credential_expires_at, updated_at=EXCLUDED.updated_at
		RETURNING id`

	resetDate := u.QuotaResetDate
	if resetDate.IsZero() {
		resetDate = now
	}

	row := r.Pool.QueryRow(ctx, q, id, u.Email, u.ExternalIdentityID, u.ChannelID, u.ChannelName, u.ChannelThumbnailURL,
		u.AccessCredential, u.RefreshCredential, u.CredentialExpiresAt, resetDate, now)
	var gotID string
	if err := row.Scan(&gotID); err != nil {
		return "", fmt.Errorf("op=user.upsert: %w", err)
	}
	return gotID, nil
}

// UpdateCredential persists a refreshed access credential and its expiry.
// This is the CredentialHolder.persist callback's backing implementation.
func (r *UserRepo) UpdateCredential(ctx context.Context, userID, access string, expiresAt time.Time) error {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.UpdateCredential")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "users"))

	const q = `UPDATE users SET access_credential=$2, credential_expires_at=$3, updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, userID, access, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=user.update_credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=user.update_credential: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a user; cascades to videos, replied_comments, templates.
func (r *UserRepo) Delete(ctx context.Context, userID string) error {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "users"))

	const q = `DELETE FROM users WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("op=user.delete: %w", err)
	}
	return nil
}
