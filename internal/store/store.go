// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
)

// Repository defines the interface for persisting users, conversations and
// messages. Every conversation and message operation is scoped to the owning
// user; rows owned by someone else behave as missing.
type Repository interface {
	// CreateUser inserts a new user. Returns domain.ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByEmail retrieves a user by normalized email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// CreateMagicLink stores a pending magic link.
	CreateMagicLink(ctx context.Context, link *domain.MagicLink) error

	// ConsumeMagicLink marks an unexpired, unused link as used and returns it.
	// Returns domain.ErrTokenExpired if it cannot be used.
	ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (*domain.MagicLink, error)

	// RevokeToken records a signed-out session token id until it would expire.
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error

	// IsTokenRevoked reports whether the token id was signed out.
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)

	// PurgeExpired removes revoked tokens and magic links that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// GetProfile retrieves a user's profile.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// UpsertProfile creates or replaces a user's profile.
	UpsertProfile(ctx context.Context, profile *domain.Profile) error

	// ListConversations returns the user's conversations, most recently updated first.
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)

	// GetConversation retrieves one conversation owned by userID.
	GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)

	// CreateConversation inserts a new conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// UpdateConversation applies patch and sets updated_at.
	UpdateConversation(ctx context.Context, userID, conversationID string, patch domain.ConversationPatch, updatedAt time.Time) (*domain.Conversation, error)

	// DeleteConversation removes a conversation and all its messages.
	DeleteConversation(ctx context.Context, userID, conversationID string) error

	// AddMessage appends a message, refreshes the conversation's updated_at
	// and merges the message's attachments into the conversation metadata,
	// all in one transaction.
	AddMessage(ctx context.Context, userID string, msg *domain.Message) error

	// ListMessages returns a conversation's messages in creation order.
	ListMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
