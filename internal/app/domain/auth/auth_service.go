package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vacadoc/vacadoc/internal/app/domain/subscription"
	"github.com/vacadoc/vacadoc/internal/app/middleware"
	"github.com/vacadoc/vacadoc/internal/app/models"
	"github.com/vacadoc/vacadoc/internal/pkg/config"
)

// Ensure implementation satisfies the interface
var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService defines the business logic contract.
type AuthService interface {
	Login(ctx context.Context, email, password string) (accessToken string, refreshToken string, err error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshSession(ctx context.Context, refreshToken string) (accessToken string, newRefreshToken string, err error)
	Register(ctx context.Context, username, email, password string, role models.UserRole) (string, error)
	UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	InvalidateAllUserRefreshTokens(ctx context.Context, userID string) error
	GetUserByID(ctx context.Context, userID string) (*models.UserAuth, error)
	GetUserByEmail(ctx context.Context, email string) (*models.UserAuth, error)
	GenerateTokens(ctx context.Context, user *models.UserAuth) (accessToken string, refreshToken string, err error)
	// MintAccessToken issues a short-lived token for internal calls made on
	// the user's behalf.
	MintAccessToken(ctx context.Context, userID string) (string, error)
}

// AuthServiceImpl provides the implementation for AuthService.
type AuthServiceImpl struct {
	logger *zap.Logger
	repo   AuthRepo
	subs   subscription.Service // nil-safe: placeholder provisioning is best effort
	cfg    *config.Config
}

// NewAuthService creates a new authentication service instance.
func NewAuthService(repo AuthRepo, subs subscription.Service, cfg *config.Config, logger *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{logger: logger, repo: repo, subs: subs, cfg: cfg}
}

// Login validates credentials, generates tokens, stores refresh token.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, string, error) {
	l := s.logger.With(zap.String("method", "Login"), zap.String("email", email))
	l.Debug("Attempting login")

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		l.Warn("GetUserByEmail failed", zap.String("email", email))
		// Don't reveal if user exists or password is wrong
		return "", "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthenticated)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	if err != nil {
		l.Warn("Password comparison failed", zap.String("userID", user.ID))
		return "", "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthenticated)
	}

	accessToken, refreshToken, err := s.GenerateTokens(ctx, user)
	if err != nil {
		l.Error("Failed to generate tokens", zap.String("userID", user.ID), zap.Error(err))
		return "", "", fmt.Errorf("app error generating tokens: %w", err)
	}

	refreshExpiresAt := time.Now().Add(s.getRefreshTTL())
	err = s.repo.StoreRefreshToken(ctx, user.ID, refreshToken, refreshExpiresAt)
	if err != nil {
		l.Error("Failed to store refresh token", zap.String("userID", user.ID), zap.Error(err))
		return "", "", fmt.Errorf("app error storing session: %w", err)
	}

	l.Info("Login successful")
	return accessToken, refreshToken, nil
}

// Register stores a new account. Doctors additionally get a zero-plan
// subscription row so the status endpoint has something to answer with
// before any checkout happens.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string, role models.UserRole) (string, error) {
	l := s.logger.With(zap.String("method", "Register"), zap.String("email", email))
	l.Debug("Attempting registration")

	tracer := otel.Tracer("Vacadoc")
	ctx, span := tracer.Start(ctx, "AuthService.Register", trace.WithAttributes(
		attribute.String("username", username),
		attribute.String("role", string(role)),
	))
	defer span.End()

	switch role {
	case models.RoleDoctor, models.RoleEstablishment:
	default:
		return "", fmt.Errorf("invalid role %q: %w", role, models.ErrBadRequest)
	}

	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		l.Error("Failed to hash password", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Password hashing failed")
		return "", fmt.Errorf("could not process password")
	}

	userID, err := s.repo.Register(ctx, username, email, string(hashedPasswordBytes), role)
	if err != nil {
		l.Error("Repository registration failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Repository registration failed")
		return "", fmt.Errorf("registration failed: %w", err)
	}

	if role == models.RoleDoctor && s.subs != nil {
		if err := s.subs.EnsurePlaceholder(ctx, userID); err != nil {
			// the sync path self-heals; registration still succeeds
			l.Warn("Failed to provision placeholder subscription", zap.String("userID", userID), zap.Error(err))
		}
	}

	l.Info("Registration successful", zap.String("userID", userID))
	span.SetStatus(codes.Ok, "User registered")
	return userID, nil
}

// RefreshSession validates refresh token, generates new tokens, rotates refresh token.
func (s *AuthServiceImpl) RefreshSession(ctx context.Context, refreshToken string) (string, string, error) {
	l := s.logger.With(zap.String("method", "RefreshSession"))
	l.Debug("Attempting token refresh")

	userID, err := s.repo.ValidateRefreshTokenAndGetUserID(ctx, refreshToken)
	if err != nil {
		l.Warn("Refresh token validation failed", zap.Error(err))
		return "", "", fmt.Errorf("invalid or expired refresh token: %w", err)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		l.Error("Failed to get user details after refresh token validation", zap.String("userID", userID), zap.Error(err))
		if ierr := s.repo.InvalidateRefreshToken(ctx, refreshToken); ierr != nil {
			return "", "", fmt.Errorf("invalid or expired refresh token: %w", models.ErrUnauthenticated)
		}
		return "", "", fmt.Errorf("app error retrieving user during refresh: %w", models.ErrUnauthenticated)
	}

	newAccessToken, newRefreshToken, err := s.GenerateTokens(ctx, user)
	if err != nil {
		l.Error("Failed to generate new tokens", zap.String("userID", user.ID), zap.Error(err))
		return "", "", fmt.Errorf("app error generating tokens: %w", err)
	}

	refreshExpiresAt := time.Now().Add(s.getRefreshTTL())
	err = s.repo.StoreRefreshToken(ctx, user.ID, newRefreshToken, refreshExpiresAt)
	if err != nil {
		l.Error("Failed to store new refresh token", zap.String("userID", user.ID), zap.Error(err))
		return "", "", fmt.Errorf("app error storing new session: %w", err)
	}

	// rotation: the old token must not stay usable
	err = s.repo.InvalidateRefreshToken(ctx, refreshToken)
	if err != nil {
		l.Warn("Failed to invalidate old refresh token during rotation", zap.String("userID", user.ID), zap.Error(err))
		return "", "", fmt.Errorf("failed to invalidate old refresh token: %w", err)
	}

	l.Info("Token refresh successful", zap.String("userID", user.ID))
	return newAccessToken, newRefreshToken, nil
}

// Logout invalidates the provided refresh token.
func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	l := s.logger.With(zap.String("method", "Logout"))
	l.Debug("Attempting logout by invalidating refresh token")
	err := s.repo.InvalidateRefreshToken(ctx, refreshToken)
	if err != nil {
		l.Error("Failed to invalidate refresh token", zap.Error(err))
		return fmt.Errorf("logout failed: %w", err)
	}
	l.Info("Logout successful")
	return nil
}

// UpdatePassword verifies old password, hashes new one, updates, invalidates tokens.
func (s *AuthServiceImpl) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	l := s.logger.With(zap.String("method", "UpdatePassword"), zap.String("userID", userID))
	l.Debug("Attempting password update")

	err := s.repo.VerifyPassword(ctx, userID, oldPassword)
	if err != nil {
		l.Warn("Old password verification failed", zap.Error(err))
		return fmt.Errorf("incorrect old password: %w", models.ErrUnauthenticated)
	}

	newHashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		l.Error("Failed to hash new password", zap.Error(err))
		return fmt.Errorf("could not process new password")
	}

	err = s.repo.UpdatePassword(ctx, userID, string(newHashedPasswordBytes))
	if err != nil {
		l.Error("Repository password update failed", zap.Error(err))
		return fmt.Errorf("failed to update password: %w", err)
	}

	err = s.InvalidateAllUserRefreshTokens(ctx, userID)
	if err != nil {
		l.Warn("Failed to invalidate refresh tokens after password update", zap.Error(err))
		return err
	}

	l.Info("Password updated successfully")
	return nil
}

// InvalidateAllUserRefreshTokens invalidates all active refresh tokens for a user.
func (s *AuthServiceImpl) InvalidateAllUserRefreshTokens(ctx context.Context, userID string) error {
	l := s.logger.With(zap.String("method", "InvalidateAllUserRefreshTokens"), zap.String("userID", userID))
	err := s.repo.InvalidateAllUserRefreshTokens(ctx, userID)
	if err != nil {
		l.Error("Failed to invalidate all refresh tokens", zap.Error(err))
		return fmt.Errorf("failed to invalidate tokens: %w", err)
	}
	l.Info("All refresh tokens invalidated")
	return nil
}

func (s *AuthServiceImpl) GetUserByID(ctx context.Context, userID string) (*models.UserAuth, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}

func (s *AuthServiceImpl) GetUserByEmail(ctx context.Context, email string) (*models.UserAuth, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}

// GenerateTokens mints the signed access token and an opaque refresh token.
func (s *AuthServiceImpl) GenerateTokens(ctx context.Context, user *models.UserAuth) (string, string, error) {
	accessToken, err := middleware.GenerateToken(s.jwtConfig(s.getAccessTTL()), user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("Failed to sign access token", zap.String("userID", user.ID), zap.Error(err))
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	// opaque, stored server side
	refreshToken := uuid.NewString()
	return accessToken, refreshToken, nil
}

// MintAccessToken issues a token for internal status calls made on the
// user's behalf.
func (s *AuthServiceImpl) MintAccessToken(ctx context.Context, userID string) (string, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch user for token mint: %w", err)
	}
	return middleware.GenerateToken(s.jwtConfig(s.getAccessTTL()), user.ID, user.Email, user.Role)
}

func (s *AuthServiceImpl) jwtConfig(ttl time.Duration) middleware.JWTConfig {
	return middleware.JWTConfig{
		SecretKey:       s.cfg.JWT.SecretKey,
		TokenExpiration: ttl,
		Logger:          s.logger,
	}
}

func (s *AuthServiceImpl) getAccessTTL() time.Duration {
	if s.cfg != nil && s.cfg.JWT.AccessTokenTTL > 0 {
		return s.cfg.JWT.AccessTokenTTL
	}
	s.logger.Warn("JWT AccessTokenTTL not configured, using default 15m")
	return 15 * time.Minute
}

func (s *AuthServiceImpl) getRefreshTTL() time.Duration {
	if s.cfg != nil && s.cfg.JWT.RefreshTokenTTL > 0 {
		return s.cfg.JWT.RefreshTokenTTL
	}
	s.logger.Warn("JWT RefreshTokenTTL not configured, using default 7d")
	return 7 * 24 * time.Hour
}
