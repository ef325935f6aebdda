// Package exchange runs one user-to-advisor message round trip.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/convlog"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/google/uuid"
)

// Service appends user messages and persists the advisor's reply.
type Service struct {
	repo       store.Repository
	completer  advisor.Completer
	transcript *convlog.Logger
	now        func() time.Time
}

// NewService creates an exchange service. transcript may be nil.
func NewService(repo store.Repository, completer advisor.Completer, transcript *convlog.Logger) *Service {
	return &Service{
		repo:       repo,
		completer:  completer,
		transcript: transcript,
		now:        time.Now,
	}
}

// SendMessage stores the user's message, asks the advisor for a reply using
// the full history and stores and returns that reply. The reply is never
// older than the user message. There is no retry; a completion failure
// leaves the user message persisted without an answer.
func (s *Service) SendMessage(ctx context.Context, session *domain.Session, conversationID, content string, attachments []string) (*domain.Message, error) {
	if session == nil || session.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return nil, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}
	uid := session.UserID

	conv, err := s.repo.GetConversation(ctx, uid, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      s.now(),
	}
	if err := s.repo.AddMessage(ctx, uid, userMsg); err != nil {
		return nil, err
	}
	s.log(conv, convlog.Event{
		Direction:   convlog.DirectionInbound,
		EventType:   convlog.EventUserMessage,
		ContentRaw:  content,
		Attachments: attachments,
	})

	history, err := s.repo.ListMessages(ctx, uid, conversationID)
	if err != nil {
		return nil, err
	}

	reply, err := s.completer.Complete(ctx, advisor.CompletionRequest{
		Messages:         advisor.HistoryFromMessages(history),
		ConversationType: conv.Type,
		Attachments:      attachments,
	})
	if err != nil {
		slog.Error("ai completion failed",
			"user_id", uid,
			"conversation_id", conversationID,
			"error", err,
		)
		s.log(conv, convlog.Event{
			Direction: convlog.DirectionOutbound,
			EventType: convlog.EventCompletionError,
			Error:     err.Error(),
		})
		return nil, err
	}

	createdAt := s.now()
	if createdAt.Before(userMsg.CreatedAt) {
		createdAt = userMsg.CreatedAt
	}
	assistantMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        reply,
		CreatedAt:      createdAt,
	}
	if err := s.repo.AddMessage(ctx, uid, assistantMsg); err != nil {
		return nil, err
	}
	s.log(conv, convlog.Event{
		Direction:  convlog.DirectionOutbound,
		EventType:  convlog.EventAssistantMessage,
		ContentRaw: reply,
	})

	return assistantMsg, nil
}

func (s *Service) log(conv *domain.Conversation, ev convlog.Event) {
	ev.UserID = conv.UserID
	ev.ConversationID = conv.ID
	ev.ConversationType = string(conv.Type)
	s.transcript.Log(ev)
}
