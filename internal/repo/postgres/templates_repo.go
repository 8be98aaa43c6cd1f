package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/autoreplyd/engine/internal/domain"
)

// TemplateRepo implements domain.TemplateRepository, a UI convenience for
// operators to save reusable reply text outside the engine hot path.
type TemplateRepo struct{ Pool PgxPool }

// NewTemplateRepo constructs a TemplateRepo with the given pool.
func NewTemplateRepo(p PgxPool) *TemplateRepo { return &TemplateRepo{Pool: p} }

// ListForUser returns all saved templates for a user, newest first.
func (r *TemplateRepo) ListForUser(ctx context.Context, userID string) ([]domain.Template, error) {
	tracer := otel.Tracer("repo.templates")
	ctx, span := tracer.Start(ctx, "templates.ListForUser")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "templates"))

	const q = `SELECT id, user_id, text, created_at FROM templates WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("op=template.list_for_user: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.UserID, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=template.list_for_user.scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create saves a new template and returns its id.
func (r *TemplateRepo) Create(ctx context.Context, t domain.Template) (string, error) {
	tracer := otel.Tracer("repo.templates")
	ctx, span := tracer.Start(ctx, "templates.Create")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "templates"))

	id := t.ID
	if id == "" {
		id = uuid.New().String()
	}

	const q = `INSERT INTO templates (id, user_id, text, created_at) VALUES ($1,$2,$3,now()) RETURNING id`
	row := r.Pool.QueryRow(ctx, q, id, t.UserID, t.Text)
	var gotID string
	if err := row.Scan(&gotID); err != nil {
		return "", fmt.Errorf("op=template.create: %w", err)
	}
	return gotID, nil
}

// Delete removes a saved template by id.
func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	tracer := otel.Tracer("repo.templates")
	ctx, span := tracer.Start(ctx, "templates.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "templates"))

	const q = `DELETE FROM templates WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("op=template.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=template.delete: %w", domain.ErrNotFound)
	}
	return nil
}
