package domain

import (
	"time"
)

// Session is an authenticated identity. Token is opaque to everyone but the issuer.
type Session struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"-"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid returns true if the session carries a user and has not expired.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.UserID == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// MagicLink is a pending passwordless sign-in. Only the token hash is stored.
type MagicLink struct {
	TokenHash string
	Email     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Expired reports whether the link can no longer be used.
func (m *MagicLink) Expired(now time.Time) bool {
	return m.UsedAt != nil || !now.Before(m.ExpiresAt)
}
