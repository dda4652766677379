package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fund-admin-backend/internal/database"
)

// Service handles login and token issuance.
type Service struct {
	repo       *database.Repository
	jwtManager *JWTManager
	logger     zerolog.Logger
}

// NewService creates a new auth service
func NewService(repo *database.Repository, jwtManager *JWTManager, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		jwtManager: jwtManager,
		logger:     logger.With().Str("component", "AuthService").Logger(),
	}
}

// Login verifies credentials and returns an access token. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !VerifyPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateAccessToken(UserClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateUserLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to stamp last login")
	}

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwtManager.AccessTokenDuration().Seconds()),
		User: UserResponse{
			ID:          user.ID,
			Email:       user.Email,
			Name:        user.Name,
			Role:        user.Role,
			CreatedAt:   user.CreatedAt,
			LastLoginAt: user.LastLoginAt,
		},
	}, nil
}

// SeedAdminUser ensures an admin account exists. Intended for first boot;
// the password comes from configuration, never a hard-coded default.
func SeedAdminUser(ctx context.Context, repo *database.Repository, email, password string, logger zerolog.Logger) error {
	if email == "" || password == "" {
		return nil
	}

	existing, err := repo.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &database.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Administrator",
		Role:         database.RoleAdmin,
	}
	if err := repo.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info().Str("email", email).Msg("admin user created")
	return nil
}
