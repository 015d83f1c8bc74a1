package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/service/auth"
	"github.com/jparker/dispatch-api/internal/store"
)

// UserService handles registration and login for the operator accounts
// that protect the task and admin endpoints.
type UserService struct {
	db         *sql.DB
	users      store.UserStore
	jwtService auth.JWTService
	verifier   auth.PasswordVerifier
	logger     *slog.Logger
}

// NewUserService creates a UserService. db may be nil, in which case
// writes go through the store directly instead of a transaction.
func NewUserService(
	db *sql.DB,
	users store.UserStore,
	jwtService auth.JWTService,
	verifier auth.PasswordVerifier,
	logger *slog.Logger,
) (*UserService, error) {
	if users == nil {
		return nil, errors.New("user store cannot be nil")
	}
	if jwtService == nil {
		return nil, errors.New("jwt service cannot be nil")
	}
	if verifier == nil {
		return nil, errors.New("password verifier cannot be nil")
	}

	return &UserService{
		db:         db,
		users:      users,
		jwtService: jwtService,
		verifier:   verifier,
		logger:     logger.With("component", "user_service"),
	}, nil
}

// Register creates a new user account and returns it together with an
// access token. Returns store.ErrEmailExists when the email is taken.
func (s *UserService) Register(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := domain.NewUser(email, password)
	if err != nil {
		return nil, "", err
	}

	if s.db != nil {
		err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			return s.users.WithTx(tx).Create(ctx, user)
		})
	} else {
		err = s.users.Create(ctx, user)
	}
	if err != nil {
		return nil, "", err
	}

	token, err := s.jwtService.GenerateToken(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies the credentials and returns the user and a fresh
// access token. Returns auth.ErrInvalidCredentials for both unknown
// emails and wrong passwords so callers cannot probe for accounts.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, "", auth.ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		return nil, "", auth.ErrInvalidCredentials
	}

	token, err := s.jwtService.GenerateToken(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}
