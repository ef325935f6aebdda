// Package advisor talks to the AI completion collaborator.
package advisor

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ashureev/career-advisor/internal/config"
	"github.com/ashureev/career-advisor/internal/domain"
)

// ChatMessage is one turn of history sent for completion.
type ChatMessage struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
}

// CompletionRequest asks for the next assistant reply.
type CompletionRequest struct {
	Messages         []ChatMessage           `json:"messages"`
	ConversationType domain.ConversationType `json:"conversationType"`
	Attachments      []string                `json:"attachments,omitempty"`
}

// FileRequest asks for feedback on an uploaded document or image.
type FileRequest struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// Completer produces a single assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Analyzer produces feedback on a single file.
type Analyzer interface {
	Analyze(ctx context.Context, req FileRequest) (string, error)
}

// DocumentSource opens files uploaded to this server by their public URL.
// URLs it does not serve yield domain.ErrInvalidInput.
type DocumentSource interface {
	OpenURL(fileURL string) (io.ReadCloser, error)
}

// Provider is both a Completer and an Analyzer.
type Provider interface {
	Completer
	Analyzer
}

// HistoryFromMessages converts persisted messages into completion history.
func HistoryFromMessages(msgs []domain.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// IsImage reports whether a file is an image by content type or extension.
func IsImage(fileType, name string) bool {
	if strings.HasPrefix(fileType, "image/") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(stripQuery(name)))]
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// New returns the provider selected by cfg. Documents are read from docs
// when the provider reads them itself.
func New(cfg config.AIConfig, docs DocumentSource) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.OpenAIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIModel,
			Timeout:   cfg.RequestTimeout,
			Documents: docs,
		}), nil
	case config.ProviderRemote:
		return NewRemoteClient(cfg.RemoteURL, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("%w: ai provider %q", domain.ErrUnsupported, cfg.Provider)
	}
}
