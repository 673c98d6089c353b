package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/leadflow-backend/internal/db"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

type UserRepositoryInterface interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

type UserRepository struct {
	DB db.DBTX
}

// GetByEmail returns nil, nil when no user has the email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, org_id, email, password_hash, role FROM users WHERE email=$1`, email,
	).Scan(&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.DB.QueryRowContext(ctx, `
        INSERT INTO users (org_id, email, password_hash, role)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, u.OrgID, u.Email, u.PasswordHash, u.Role).Scan(&u.ID)
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
