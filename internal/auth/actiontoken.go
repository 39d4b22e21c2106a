package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Action token audiences. Reset and verification tokens are signed with a
// secret distinct from the access-token secret, so neither can stand in for
// the other even before the audience check runs.
const (
	audienceReset  = "keystone:reset"
	audienceVerify = "keystone:verify"
)

// ActionClaims binds an action token to a user and the email the account had
// at issuance time.
type ActionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ActionTokens issues and validates short-lived single-purpose tokens for
// the password-reset and email-verification flows.
type ActionTokens struct {
	secret    []byte
	resetTTL  time.Duration
	verifyTTL time.Duration
}

// NewActionTokens constructs an ActionTokens issuer.
func NewActionTokens(secret []byte, resetTTL, verifyTTL time.Duration) (*ActionTokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: action token secret must not be empty")
	}
	if resetTTL <= 0 || verifyTTL <= 0 {
		return nil, errors.New("auth: action token ttl must be positive")
	}
	return &ActionTokens{secret: secret, resetTTL: resetTTL, verifyTTL: verifyTTL}, nil
}

// IssueReset mints a password-reset token for the user.
func (a *ActionTokens) IssueReset(userID uuid.UUID, email string) (string, error) {
	return a.issue(userID, email, audienceReset, a.resetTTL)
}

// IssueVerify mints an email-verification token for the user.
func (a *ActionTokens) IssueVerify(userID uuid.UUID, email string) (string, error) {
	return a.issue(userID, email, audienceVerify, a.verifyTTL)
}

func (a *ActionTokens) issue(userID uuid.UUID, email, audience string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := ActionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign action token: %w", err)
	}
	return signed, nil
}

// ValidateReset verifies a password-reset token.
func (a *ActionTokens) ValidateReset(token string) (*ActionClaims, error) {
	return a.validate(token, audienceReset)
}

// ValidateVerify verifies an email-verification token.
func (a *ActionTokens) ValidateVerify(token string) (*ActionClaims, error) {
	return a.validate(token, audienceVerify)
}

func (a *ActionTokens) validate(tokenString, audience string) (*ActionClaims, error) {
	claims := &ActionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// UserID returns the subject as a uuid. Validate guarantees it parses.
func (c *ActionClaims) UserID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}
