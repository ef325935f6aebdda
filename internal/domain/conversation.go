package domain

import (
	"time"
)

// ConversationType selects the advisor persona of a conversation.
type ConversationType string

const (
	TypeGeneral       ConversationType = "general"
	TypeResume        ConversationType = "resume"
	TypeInterviewPrep ConversationType = "interview_prep"
	TypeCoverLetter   ConversationType = "cover_letter"
	TypeJobSearch     ConversationType = "job_search"
	TypeLinkedIn      ConversationType = "linkedin"
	TypeAssessment    ConversationType = "assessment"
)

// ConversationTypes lists every advisor persona in display order.
var ConversationTypes = []ConversationType{
	TypeGeneral,
	TypeResume,
	TypeInterviewPrep,
	TypeCoverLetter,
	TypeJobSearch,
	TypeLinkedIn,
	TypeAssessment,
}

// Valid returns true if t is a known conversation type.
func (t ConversationType) Valid() bool {
	for _, known := range ConversationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ConversationMetadata holds optional context attached to a conversation.
type ConversationMetadata struct {
	DocumentID     string   `json:"document_id,omitempty"`
	JobDescription string   `json:"job_description,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
}

// MergeAttachments appends urls not already present, preserving order.
func (m *ConversationMetadata) MergeAttachments(urls []string) {
	seen := make(map[string]struct{}, len(m.Attachments))
	for _, u := range m.Attachments {
		seen[u] = struct{}{}
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		m.Attachments = append(m.Attachments, u)
	}
}

// Conversation is a thread between a user and one advisor persona.
// UserID and Type are fixed at creation.
type Conversation struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Title     string               `json:"title"`
	Type      ConversationType     `json:"type"`
	Metadata  ConversationMetadata `json:"metadata"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Touch moves UpdatedAt forward to now. It never moves it back.
func (c *Conversation) Touch(now time.Time) {
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// ConversationPatch lists the fields an update may change. Nil means unchanged.
type ConversationPatch struct {
	Title    *string               `json:"title,omitempty"`
	Metadata *ConversationMetadata `json:"metadata,omitempty"`
}

// Empty returns true if the patch changes nothing but the timestamp.
func (p ConversationPatch) Empty() bool {
	return p.Title == nil && p.Metadata == nil
}

// Role is the author of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid returns true for the persisted roles. System messages are never stored.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is an immutable entry in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Attachments    []string  `json:"attachments,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationWithMessages is a conversation and its ordered history.
type ConversationWithMessages struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}
