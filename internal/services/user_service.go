package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dispatchly/backend/internal/auth"
	"github.com/dispatchly/backend/internal/models"
	repo "github.com/dispatchly/backend/internal/repository"
)

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      models.Role
}

type UserService struct {
	store  repo.Store
	tokens *auth.TokenManager
	log    *slog.Logger
}

func NewUserService(store repo.Store, tokens *auth.TokenManager, log *slog.Logger) *UserService {
	return &UserService{store: store, tokens: tokens, log: log.With("svc", "users")}
}

// Register creates a customer or driver account together with its wallet
// and, for drivers, an empty driver profile.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (models.User, auth.TokenPair, error) {
	if in.Role == models.RoleAdmin {
		return models.User{}, auth.TokenPair{}, fmt.Errorf("%w: role %q cannot self-register", ErrInvalidInput, in.Role)
	}
	u, err := s.create(ctx, in)
	if err != nil {
		return models.User{}, auth.TokenPair{}, err
	}
	pair, err := s.tokens.GeneratePair(u.ID, u.Role)
	if err != nil {
		return models.User{}, auth.TokenPair{}, err
	}
	s.log.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return u, pair, nil
}

func (s *UserService) create(ctx context.Context, in RegisterInput) (models.User, error) {
	if len(in.Password) < 8 {
		return models.User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	u := models.User{
		Email:     in.Email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     strings.TrimSpace(in.Phone),
		Role:      in.Role,
		IsActive:  true,
	}
	if err := u.Validate(); err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}
	u.PasswordHash = hash

	var out models.User
	err = s.store.WithTx(ctx, func(r repo.Repos) error {
		created, err := r.Users.Create(ctx, u)
		if errors.Is(err, repo.ErrConflict) {
			return ErrEmailTaken
		}
		if err != nil {
			return err
		}
		if err := r.Wallets.Create(ctx, created.ID); err != nil {
			return err
		}
		if created.Role == models.RoleDriver {
			if err := r.DriverProfiles.Create(ctx, created.ID); err != nil {
				return err
			}
		}
		out = created
		return nil
	})
	return out, err
}

func (s *UserService) Login(ctx context.Context, email, password string) (models.User, auth.TokenPair, error) {
	u, err := s.store.Repos().Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, auth.TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, auth.TokenPair{}, err
	}
	if !u.IsActive || auth.VerifyPassword(password, u.PasswordHash) != nil {
		return models.User{}, auth.TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.tokens.GeneratePair(u.ID, u.Role)
	if err != nil {
		return models.User{}, auth.TokenPair{}, err
	}
	return u, pair, nil
}

// Refresh exchanges a refresh token for a new pair. The user must still
// exist and be active; the role is re-read from the database.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return auth.TokenPair{}, ErrUnauthorized
	}
	u, err := s.store.Repos().Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return auth.TokenPair{}, ErrUnauthorized
	}
	if err != nil {
		return auth.TokenPair{}, err
	}
	if !u.IsActive {
		return auth.TokenPair{}, ErrUnauthorized
	}
	return s.tokens.GeneratePair(u.ID, u.Role)
}

func (s *UserService) Me(ctx context.Context, userID string) (models.User, error) {
	u, err := s.store.Repos().Users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, ErrUnauthorized
	}
	return u, err
}

// SeedAdmin creates the admin account if the email is not taken yet.
func (s *UserService) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.create(ctx, RegisterInput{
		Email:     email,
		Password:  password,
		FirstName: "Admin",
		Role:      models.RoleAdmin,
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil
	}
	if err == nil {
		s.log.InfoContext(ctx, "admin user seeded", "email", email)
	}
	return err
}
