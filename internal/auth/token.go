package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is how long an issued API token stays valid.
	DefaultTokenTTL = 24 * time.Hour

	tokenIssuer        = "feedbackflow"
	minimumSecretBytes = 16
)

var (
	ErrMissingTokenSecret = errors.New("auth: token secret must be at least 16 bytes")
	ErrInvalidToken       = errors.New("invalid_token")
)

// Claims identify the admin a token was issued to.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 API tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customizes a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(issuer *TokenIssuer) {
		if ttl > 0 {
			issuer.ttl = ttl
		}
	}
}

// WithTokenClock sets the time source used for issuing and validating.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(issuer *TokenIssuer) {
		if now != nil {
			issuer.now = now
		}
	}
}

// NewTokenIssuer creates an issuer for the given shared secret.
func NewTokenIssuer(secret string, options ...TokenOption) (*TokenIssuer, error) {
	trimmed := strings.TrimSpace(secret)
	if len(trimmed) < minimumSecretBytes {
		return nil, ErrMissingTokenSecret
	}
	issuer := &TokenIssuer{secret: []byte(trimmed), ttl: DefaultTokenTTL, now: time.Now}
	for _, option := range options {
		option(issuer)
	}
	return issuer, nil
}

// Issue returns a signed token for the admin.
func (issuer *TokenIssuer) Issue(adminID string, email string) (string, error) {
	issuedAt := issuer.now().UTC()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(issuer.ttl)),
		},
	}
	signed, signErr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(issuer.secret)
	if signErr != nil {
		return "", fmt.Errorf("auth: sign token: %w", signErr)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (issuer *TokenIssuer) Parse(rawToken string) (Claims, error) {
	var claims Claims
	token, parseErr := jwt.ParseWithClaims(
		strings.TrimSpace(rawToken),
		&claims,
		func(*jwt.Token) (any, error) { return issuer.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(issuer.now),
	)
	if parseErr != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, parseErr)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
