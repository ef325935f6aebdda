package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
)

// RemoteClient calls an external AI proxy over JSON HTTP.
type RemoteClient struct {
	baseURL string
	http    *http.Client
}

// NewRemoteClient creates a client for the proxy at baseURL.
func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	return &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type chatReply struct {
	Content string `json:"content"`
	Error   string `json:"error"`
}

type analyzeReply struct {
	Analysis string `json:"analysis"`
	Error    string `json:"error"`
}

// Complete posts req to {base}/chat.
func (c *RemoteClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var reply chatReply
	if err := c.post(ctx, "/chat", req, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrCompletionFailed, reply.Error)
	}
	if strings.TrimSpace(reply.Content) == "" {
		return "", fmt.Errorf("%w: empty reply", domain.ErrCompletionFailed)
	}
	return reply.Content, nil
}

// Analyze posts req to {base}/analyze-file.
func (c *RemoteClient) Analyze(ctx context.Context, req FileRequest) (string, error) {
	var reply analyzeReply
	if err := c.post(ctx, "/analyze-file", req, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrCompletionFailed, reply.Error)
	}
	return reply.Analysis, nil
}

func (c *RemoteClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s: %s", domain.ErrCompletionFailed, path, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s reply: %w", domain.ErrCompletionFailed, path, err)
	}
	return nil
}
