// internal/service/auth_service.go
package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/leadflow-backend/internal/auth"
	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

type AuthService struct {
	UserRepo repository.UserRepositoryInterface
	Tokens   *auth.TokenManager
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

type CreateUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin user"`
}

// Login returns ErrInvalidCredentials for an unknown email and for a wrong
// password alike.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.UserRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, in.Password) {
		logrus.WithField("email", in.Email).Warn("Failed login attempt")
		return nil, appErrors.ErrInvalidCredentials
	}

	token, err := s.Tokens.Sign(user.ID, user.OrgID, user.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, Role: user.Role}, nil
}

func (s *AuthService) CreateUser(ctx context.Context, orgID uuid.UUID, in CreateUserInput) (*model.User, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}

	existing, err := s.UserRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, appErrors.NewValidation("email already registered")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{OrgID: orgID, Email: in.Email, PasswordHash: hash, Role: in.Role}
	if err := s.UserRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("User created")
	return u, nil
}
