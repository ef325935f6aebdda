// Package chatview holds the client-side state of an open conversation,
// showing sent messages immediately and reconciling them with the server's
// answer.
package chatview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
)

// Backend is the server surface a View needs.
type Backend interface {
	Conversation(ctx context.Context, id string) (*domain.ConversationWithMessages, error)
	SendMessage(ctx context.Context, conversationID, content string, attachments []string) (*domain.Message, error)
}

// Notifier receives transient notices for the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// View is the view-model of one open conversation.
type View struct {
	backend  Backend
	notifier Notifier
	now      func() time.Time

	life   context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	conversation *domain.Conversation
	entries      []Entry
	sending      bool
	onChange     func([]Entry)
}

// New creates a View. Close must be called when the view goes away.
func New(backend Backend, notifier Notifier) *View {
	life, cancel := context.WithCancel(context.Background())
	return &View{
		backend:  backend,
		notifier: notifier,
		now:      time.Now,
		life:     life,
		cancel:   cancel,
	}
}

// OnChange registers fn to receive a snapshot after every change.
func (v *View) OnChange(fn func([]Entry)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Close cancels in-flight requests; their results are dropped.
func (v *View) Close() {
	v.cancel()
}

// scoped returns a context cancelled by either ctx or the view's lifetime.
func (v *View) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(v.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Load replaces the view's contents with the conversation's persisted history.
func (v *View) Load(ctx context.Context, conversationID string) error {
	ctx, cancel := v.scoped(ctx)
	defer cancel()

	full, err := v.backend.Conversation(ctx, conversationID)
	if v.life.Err() != nil {
		return v.life.Err()
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			v.notifier.Error("Conversation not found.")
		} else {
			v.notifier.Error("Failed to load conversation.")
		}
		slog.Debug("load conversation failed", "conversation_id", conversationID, "error", err)
		return err
	}

	entries := make([]Entry, 0, len(full.Messages))
	for _, m := range full.Messages {
		entries = append(entries, confirmed(m))
	}

	v.mu.Lock()
	v.conversation = full.Conversation
	v.entries = entries
	v.mu.Unlock()
	v.changed()
	return nil
}

// Submit sends content and reports whether an assistant reply arrived. It
// returns false without doing anything while another send is in flight.
func (v *View) Submit(ctx context.Context, content string, attachments []string) bool {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return false
	}

	v.mu.Lock()
	if v.sending || v.conversation == nil || v.life.Err() != nil {
		v.mu.Unlock()
		return false
	}
	v.sending = true
	conversationID := v.conversation.ID
	now := v.now()
	user := pending(domain.Message{
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      now,
	})
	placeholder := pending(domain.Message{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        ThinkingText,
		CreatedAt:      now,
	})
	v.entries = append(v.entries, user, placeholder)
	v.mu.Unlock()
	v.changed()

	ctx, cancel := v.scoped(ctx)
	reply, err := v.backend.SendMessage(ctx, conversationID, content, attachments)
	cancel()

	if v.life.Err() != nil {
		return false
	}

	v.mu.Lock()
	v.sending = false
	v.removeLocked(placeholder.CorrelationID)
	if err == nil {
		v.entries = append(v.entries, confirmed(*reply))
	}
	v.mu.Unlock()
	v.changed()

	if err != nil {
		slog.Debug("send message failed", "conversation_id", conversationID, "error", err)
		v.notifier.Error("Failed to get a response. Please try again.")
		return false
	}
	return true
}

func (v *View) removeLocked(correlationID string) {
	for i, e := range v.entries {
		if e.State == Pending && e.CorrelationID == correlationID {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return
		}
	}
}

// IsSending reports whether a submit is awaiting its reply.
func (v *View) IsSending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sending
}

// Conversation returns the loaded conversation, or nil.
func (v *View) Conversation() *domain.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conversation
}

// Entries returns a snapshot of the displayed entries.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Entry(nil), v.entries...)
}

func (v *View) changed() {
	v.mu.Lock()
	fn := v.onChange
	snapshot := append([]Entry(nil), v.entries...)
	v.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}
