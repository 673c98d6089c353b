package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/unclebandit/leadflow-backend/internal/db"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.MessageTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.MessageTemplate, error)
}

type TemplateRepository struct {
	DB db.DBTX
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.MessageTemplate) error {
	query := `
        INSERT INTO message_templates (org_id, channel, name, subject, body)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, query, t.OrgID, t.Channel, t.Name, t.Subject, t.Body).Scan(&t.ID, &t.CreatedAt)
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MessageTemplate, error) {
	query := `
        SELECT id, org_id, channel, name, subject, body, created_at
        FROM message_templates WHERE id=$1
    `
	var t model.MessageTemplate
	var subject sql.NullString
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.OrgID, &t.Channel, &t.Name, &subject, &t.Body, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	if subject.Valid {
		t.Subject = &subject.String
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
