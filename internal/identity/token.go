package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RevocationChecker reports whether a token id was signed out.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer issues and verifies HS256 session tokens.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationChecker
	now     func() time.Time
}

// NewIssuer creates an Issuer. revoked may be nil.
func NewIssuer(secret string, ttl time.Duration, revoked RevocationChecker) *Issuer {
	return &Issuer{
		secret:  []byte(secret),
		ttl:     ttl,
		revoked: revoked,
		now:     time.Now,
	}
}

// Issue creates a new session for user.
func (i *Issuer) Issue(user *domain.User) (*domain.Session, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	tokenID := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &domain.Session{
		Token:     signed,
		TokenID:   tokenID,
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: expiresAt.Truncate(time.Second),
	}, nil
}

// Verify parses token and returns its session. Expired tokens yield
// domain.ErrTokenExpired; anything else invalid yields domain.ErrUnauthenticated.
func (i *Issuer) Verify(ctx context.Context, token string) (*domain.Session, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, domain.ErrTokenExpired
	}
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if c.Subject == "" || c.ID == "" || c.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: incomplete token", domain.ErrUnauthenticated)
	}

	if i.revoked != nil {
		revoked, err := i.revoked.IsTokenRevoked(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", domain.ErrUnauthenticated)
		}
	}

	return &domain.Session{
		Token:     token,
		TokenID:   c.ID,
		UserID:    c.Subject,
		Email:     c.Email,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
