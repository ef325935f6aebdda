// Package domain contains core domain types for the career advisor.
package domain

import (
	"strings"
	"time"
)

// AuthProvider identifies how a user first authenticated.
type AuthProvider string

const (
	ProviderEmail     AuthProvider = "email"
	ProviderMagicLink AuthProvider = "magic_link"
	ProviderGoogle    AuthProvider = "google"
	ProviderGitHub    AuthProvider = "github"
)

// User represents an account that owns conversations and a profile.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Provider     AuthProvider `json:"provider"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HasPassword returns true if the user can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Profile holds the career profile and resume of a user.
type Profile struct {
	UserID     string    `json:"user_id"`
	FullName   string    `json:"full_name"`
	Headline   string    `json:"headline"`
	TargetRole string    `json:"target_role"`
	Location   string    `json:"location"`
	Skills     []string  `json:"skills"`
	ResumeText string    `json:"resume_text"`
	ResumeURL  string    `json:"resume_url,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
