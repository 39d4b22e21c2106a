package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const audienceAccess = "keystone:access"

// Token validation failures. Handlers collapse all three into a single 401,
// but the service layer keeps them distinct for logging and tests.
var (
	// ErrTokenMalformed indicates the token is not a parseable JWT.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignatureInvalid indicates the signature does not match the server secret.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired indicates the token is past its expiry instant.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers remaining claim failures (wrong audience, bad subject).
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenService mints and verifies bearer access tokens.
type TokenService interface {
	Issue(userID uuid.UUID, ttl time.Duration) (string, error)
	Validate(token string) (uuid.UUID, error)
}

// JWTService implements TokenService with HS256-signed JWTs. Tokens are
// stateless: expiry is the only invalidation mechanism.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService constructs a JWTService with the server signing secret and
// default token lifetime.
func NewJWTService(secret []byte, ttl time.Duration) (*JWTService, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	return &JWTService{secret: secret, ttl: ttl}, nil
}

// TTL returns the default token lifetime.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// Issue mints a signed token binding the user id, issuance time and expiry.
// A non-positive ttl falls back to the service default.
func (s *JWTService) Issue(userID uuid.UUID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{audienceAccess},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature, expiry and audience of a token and
// returns the user id it was issued for.
func (s *JWTService) Validate(tokenString string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audienceAccess),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, classifyTokenError(err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return userID, nil
}

// classifyTokenError maps golang-jwt parse failures onto the package's
// sentinel errors. Expiry wins over other claim errors so callers can report
// a stale-but-authentic token distinctly.
func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	default:
		return ErrTokenInvalid
	}
}

var _ TokenService = (*JWTService)(nil)
