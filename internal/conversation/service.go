// Package conversation manages conversations and their message history on
// behalf of an authenticated user.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/google/uuid"
)

// Service is the conversation repository scoped to the caller's session.
type Service struct {
	repo store.Repository
	now  func() time.Time
}

// NewService creates a conversation service.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func userID(session *domain.Session) (string, error) {
	if session == nil || session.UserID == "" {
		return "", domain.ErrUnauthenticated
	}
	return session.UserID, nil
}

// List returns every conversation of the session's user, most recently
// updated first. An empty slice with a nil error means the user has none.
func (s *Service) List(ctx context.Context, session *domain.Session) ([]domain.Conversation, error) {
	uid, err := userID(session)
	if err != nil {
		return nil, err
	}
	convs, err := s.repo.ListConversations(ctx, uid)
	if err != nil {
		slog.Error("failed to list conversations", "user_id", uid, "error", err)
		return nil, err
	}
	return convs, nil
}

// FetchWithMessages returns the conversation and its full ordered history.
// Missing, deleted and foreign conversations all yield domain.ErrNotFound.
func (s *Service) FetchWithMessages(ctx context.Context, session *domain.Session, id string) (*domain.ConversationWithMessages, error) {
	uid, err := userID(session)
	if err != nil {
		return nil, err
	}

	conv, err := s.repo.GetConversation(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, uid, id)
	if err != nil {
		slog.Error("failed to list messages", "user_id", uid, "conversation_id", id, "error", err)
		return nil, err
	}
	return &domain.ConversationWithMessages{Conversation: conv, Messages: msgs}, nil
}

// Create inserts a conversation owned by the session's user.
func (s *Service) Create(ctx context.Context, session *domain.Session, title string, typ domain.ConversationType, metadata domain.ConversationMetadata) (*domain.Conversation, error) {
	uid, err := userID(session)
	if err != nil {
		return nil, err
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown conversation type %q", domain.ErrInvalidInput, typ)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = Title(typ)
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    uid,
		Title:     title,
		Type:      typ,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		slog.Error("failed to create conversation", "user_id", uid, "type", typ, "error", err)
		return nil, err
	}
	return conv, nil
}

// CreateSpecialized creates a conversation titled after typ and seeds it with
// the persona's greeting. If seeding fails the conversation is kept and
// returned together with the error.
func (s *Service) CreateSpecialized(ctx context.Context, session *domain.Session, typ domain.ConversationType, documentID, jobDescription string) (*domain.Conversation, error) {
	conv, err := s.Create(ctx, session, Title(typ), typ, domain.ConversationMetadata{
		DocumentID:     documentID,
		JobDescription: jobDescription,
	})
	if err != nil {
		return nil, err
	}

	seed := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        Greeting(typ),
		CreatedAt:      conv.CreatedAt,
	}
	if err := s.repo.AddMessage(ctx, conv.UserID, seed); err != nil {
		slog.Error("failed to seed conversation", "conversation_id", conv.ID, "error", err)
		return conv, fmt.Errorf("seed conversation %s: %w", conv.ID, err)
	}
	return conv, nil
}

// Update patches title and/or metadata and refreshes the updated timestamp.
func (s *Service) Update(ctx context.Context, session *domain.Session, id string, patch domain.ConversationPatch) (*domain.Conversation, error) {
	uid, err := userID(session)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", domain.ErrInvalidInput)
	}
	return s.repo.UpdateConversation(ctx, uid, id, patch, s.now())
}

// Delete removes the conversation and its messages.
func (s *Service) Delete(ctx context.Context, session *domain.Session, id string) error {
	uid, err := userID(session)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, uid, id); err != nil {
		return err
	}
	slog.Info("conversation deleted", "user_id", uid, "conversation_id", id)
	return nil
}
