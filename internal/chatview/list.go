package chatview

import (
	"context"
	"slices"
	"sync"

	"github.com/ashureev/career-advisor/internal/domain"
)

// ListBackend is the server surface a ConversationList needs.
type ListBackend interface {
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// ConversationList is the view-model of the conversation sidebar.
type ConversationList struct {
	backend  ListBackend
	notifier Notifier

	mu    sync.Mutex
	items []domain.Conversation
}

// NewConversationList creates an empty list.
func NewConversationList(backend ListBackend, notifier Notifier) *ConversationList {
	return &ConversationList{backend: backend, notifier: notifier}
}

// Refresh reloads the list from the server.
func (l *ConversationList) Refresh(ctx context.Context) error {
	items, err := l.backend.ListConversations(ctx)
	if err != nil {
		l.notifier.Error("Failed to load conversations.")
		return err
	}
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
	return nil
}

// Items returns a snapshot of the list, most recently updated first.
func (l *ConversationList) Items() []domain.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

// Delete removes id and returns the conversation to show next: currentID when
// another conversation was deleted, otherwise the first remaining one, or ""
// when none are left.
func (l *ConversationList) Delete(ctx context.Context, id, currentID string) (string, error) {
	if err := l.backend.DeleteConversation(ctx, id); err != nil {
		l.notifier.Error("Failed to delete conversation.")
		return currentID, err
	}

	l.mu.Lock()
	l.items = slices.DeleteFunc(l.items, func(c domain.Conversation) bool { return c.ID == id })
	remaining := slices.Clone(l.items)
	l.mu.Unlock()

	l.notifier.Info("Conversation deleted.")

	if id != currentID {
		return currentID, nil
	}
	if len(remaining) > 0 {
		return remaining[0].ID, nil
	}
	return "", nil
}
