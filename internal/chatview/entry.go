package chatview

import (
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/lithammer/shortuuid/v4"
)

// State tells whether an entry is known to the server.
type State int

const (
	// Pending entries exist only in this view, identified by CorrelationID.
	Pending State = iota
	// Confirmed entries carry a persisted message with its real ID.
	Confirmed
)

func (s State) String() string {
	if s == Confirmed {
		return "confirmed"
	}
	return "pending"
}

// ThinkingText is the content of the assistant placeholder.
const ThinkingText = "Thinking..."

// Entry is one displayed message.
type Entry struct {
	State         State
	CorrelationID string
	Message       domain.Message
}

// Key identifies the entry within a view.
func (e Entry) Key() string {
	if e.State == Confirmed {
		return e.Message.ID
	}
	return e.CorrelationID
}

// IsPlaceholder reports whether the entry is the in-flight assistant stand-in.
func (e Entry) IsPlaceholder() bool {
	return e.State == Pending && e.Message.Role == domain.RoleAssistant
}

func confirmed(m domain.Message) Entry {
	return Entry{State: Confirmed, Message: m}
}

func pending(m domain.Message) Entry {
	id := "temp-" + shortuuid.New()
	m.ID = id
	return Entry{State: Pending, CorrelationID: id, Message: m}
}
