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

// LeadRepositoryInterface defines methods used by the automation services
type LeadRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Lead, error)
}

// LeadRepository is the concrete implementation
type LeadRepository struct {
	DB db.DBTX
}

// GetByID fetches a lead by ID
func (r *LeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Lead, error) {
	query := `
        SELECT id, org_id, COALESCE(first_name, ''), COALESCE(last_name, ''),
               COALESCE(email, ''), COALESCE(phone, ''), COALESCE(company, '')
        FROM leads
        WHERE id = $1
    `
	row := r.DB.QueryRowContext(ctx, query, id)

	var l model.Lead
	if err := row.Scan(&l.ID, &l.OrgID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.Company); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewLeadNotFound(id)
		}
		return nil, err
	}
	return &l, nil
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
