package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-auth/keystone/internal/shared"
	"github.com/keystone-auth/keystone/internal/users"
)

const (
	minPasswordLength = 8
	// bcrypt only reads the first 72 bytes; longer inputs are rejected at
	// the policy boundary instead of surfacing a hashing error.
	maxPasswordLength = 72
)

// Service orchestrates registration, login and token-based identity
// resolution. It owns no state; every dependency is injected.
type Service struct {
	repo       users.Repository
	hasher     Hasher
	tokens     TokenService
	actions    *ActionTokens
	usedTokens UsedTokenStore
	sink       EventSink
	logger     *slog.Logger
}

// ServiceParams groups dependencies for building a Service.
type ServiceParams struct {
	Repo    users.Repository
	Hasher  Hasher
	Tokens  TokenService
	Actions *ActionTokens
	// UsedTokens is optional; without it reset and verification tokens are
	// replayable until expiry.
	UsedTokens UsedTokenStore
	Sink       EventSink
	Logger     *slog.Logger
}

// NewService constructs a new Service.
func NewService(p ServiceParams) *Service {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	sink := p.Sink
	if sink == nil {
		sink = NewLogSink(p.Logger)
	}
	return &Service{
		repo:       p.Repo,
		hasher:     p.Hasher,
		tokens:     p.Tokens,
		actions:    p.Actions,
		usedTokens: p.UsedTokens,
		sink:       sink,
		logger:     p.Logger,
	}
}

// Register creates a new account. The account is always created active,
// non-superuser and unverified regardless of what the caller asked for;
// privilege flags are not self-service.
func (s *Service) Register(ctx context.Context, email, password string) (*users.User, error) {
	email = users.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &users.User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: hashed,
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.sink.OnUserRegistered(ctx, user)
	return user, nil
}

// Login verifies credentials and mints an access token. Unknown email, wrong
// password and inactive account are indistinguishable from the outside.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", shared.ErrInvalidCredentials
		}
		return "", err
	}
	if !s.hasher.Verify(password, user.HashedPassword) {
		return "", shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", shared.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(user.ID, 0)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Resolve turns a bearer token into the authenticated user. Every failure
// path collapses into ErrUnauthorized.
func (s *Service) Resolve(ctx context.Context, token string) (*users.User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.Debug("token rejected", slog.String("reason", err.Error()))
		return nil, shared.ErrUnauthorized
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrUnauthorized
	}
	return user, nil
}

// ForgotPassword issues a reset token for an existing active account and
// hands it to the event sink. Unknown addresses succeed silently so the
// endpoint cannot be used to enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}
	token, err := s.actions.IssueReset(user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	s.sink.OnPasswordResetRequested(ctx, user, token)
	return nil
}

// ResetPassword consumes a reset token and replaces the account password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	claims, err := s.actions.ValidateReset(token)
	if err != nil {
		return fmt.Errorf("%w: bad reset token", shared.ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	user, err := s.repo.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: bad reset token", shared.ErrValidation)
		}
		return err
	}
	if !user.IsActive {
		return fmt.Errorf("%w: bad reset token", shared.ErrValidation)
	}
	// Consume last so a token is only burned once the reset can succeed.
	if err := s.consumeActionToken(ctx, claims); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, user.ID, hashed)
}

// RequestVerification issues a verification token for an unverified active
// account. Unknown or already verified addresses succeed silently.
func (s *Service) RequestVerification(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive || user.IsVerified {
		return nil
	}
	token, err := s.actions.IssueVerify(user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("issue verify token: %w", err)
	}
	s.sink.OnVerificationRequested(ctx, user, token)
	return nil
}

// Verify consumes a verification token and marks the account verified. The
// email in the token must still match the account, so a token issued before
// an address change is useless.
func (s *Service) Verify(ctx context.Context, token string) (*users.User, error) {
	claims, err := s.actions.ValidateVerify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: bad verification token", shared.ErrValidation)
	}
	user, err := s.repo.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: bad verification token", shared.ErrValidation)
		}
		return nil, err
	}
	if user.Email != users.NormalizeEmail(claims.Email) {
		return nil, fmt.Errorf("%w: bad verification token", shared.ErrValidation)
	}
	if user.IsVerified {
		return nil, shared.ErrAlreadyVerified
	}
	if err := s.consumeActionToken(ctx, claims); err != nil {
		return nil, err
	}
	if err := s.repo.SetVerified(ctx, user.ID, true); err != nil {
		return nil, err
	}
	user.IsVerified = true
	return user, nil
}

// ChangePassword updates the password for an authenticated user.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, hashed)
}

func (s *Service) consumeActionToken(ctx context.Context, claims *ActionClaims) error {
	if s.usedTokens == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	first, err := s.usedTokens.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return fmt.Errorf("consume action token: %w", err)
	}
	if !first {
		return fmt.Errorf("%w: token already used", shared.ErrValidation)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: invalid email", shared.ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", shared.ErrValidation, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", shared.ErrValidation, maxPasswordLength)
	}
	return nil
}
