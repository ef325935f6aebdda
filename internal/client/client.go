// Package client is the HTTP SDK for the career advisor API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/assessment"
	"github.com/ashureev/career-advisor/internal/blob"
	"github.com/ashureev/career-advisor/internal/domain"
)

const defaultTimeout = 2 * time.Minute

// APIError is a non-2xx response. It unwraps to the matching domain error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusBadRequest:
		return domain.ErrInvalidInput
	case e.Status == http.StatusUnauthorized:
		return domain.ErrUnauthenticated
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Status == http.StatusConflict:
		return domain.ErrConflict
	case e.Status == http.StatusUnprocessableEntity:
		return domain.ErrUnsupported
	case e.Status == http.StatusBadGateway:
		return domain.ErrCompletionFailed
	case e.Status >= http.StatusInternalServerError:
		return domain.ErrStoreUnavailable
	default:
		return nil
	}
}

// Client calls the API on behalf of the session held by a SessionProvider.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions *SessionProvider
}

// New creates a Client for baseURL.
func New(baseURL string, sessions *SessionProvider) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		sessions: sessions,
	}
}

// Sessions returns the client's session store.
func (c *Client) Sessions() *SessionProvider {
	return c.sessions
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if token := c.sessions.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", domain.ErrStoreUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		apiErr := &APIError{Status: resp.StatusCode, Message: payload.Error}
		if resp.StatusCode == http.StatusUnauthorized && req.Header.Get("Authorization") != "" && !credentialPath(req.URL.Path) {
			// The server no longer accepts the stored session.
			_ = c.sessions.Clear()
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func credentialPath(p string) bool {
	for _, suffix := range []string{"/api/auth/signin", "/api/auth/signup", "/api/auth/magic-link/verify"} {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func (c *Client) authenticate(ctx context.Context, path string, in any) (*domain.Session, error) {
	var session domain.Session
	if err := c.doJSON(ctx, http.MethodPost, path, in, &session); err != nil {
		return nil, err
	}
	if err := c.sessions.Set(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignUp creates an account and stores its session.
func (c *Client) SignUp(ctx context.Context, email, password string) (*domain.Session, error) {
	return c.authenticate(ctx, "/api/auth/signup", map[string]string{"email": email, "password": password})
}

// SignIn authenticates with a password and stores the session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	return c.authenticate(ctx, "/api/auth/signin", map[string]string{"email": email, "password": password})
}

// RequestMagicLink asks the server to mail a sign-in link.
func (c *Client) RequestMagicLink(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/magic-link", map[string]string{"email": email}, nil)
}

// VerifyMagicLink redeems a magic link token and stores the session.
func (c *Client) VerifyMagicLink(ctx context.Context, token string) (*domain.Session, error) {
	return c.authenticate(ctx, "/api/auth/magic-link/verify", map[string]string{"token": token})
}

// SignOut revokes the session on the server and clears it locally. The local
// session is cleared even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/signout", nil, nil)
	if clearErr := c.sessions.Clear(); clearErr != nil {
		return clearErr
	}
	if errors.Is(err, domain.ErrUnauthenticated) {
		return nil
	}
	return err
}

// Session returns the server's view of the current session.
func (c *Client) Session(ctx context.Context) (*domain.Session, error) {
	var s domain.Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	convs := []domain.Conversation{}
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Conversation fetches a conversation with its messages.
func (c *Client) Conversation(ctx context.Context, id string) (*domain.ConversationWithMessages, error) {
	var cwm domain.ConversationWithMessages
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil, &cwm); err != nil {
		return nil, err
	}
	return &cwm, nil
}

// CreateConversation creates a conversation seeded with the persona's greeting.
func (c *Client) CreateConversation(ctx context.Context, typ domain.ConversationType, documentID, jobDescription string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := c.doJSON(ctx, http.MethodPost, "/api/conversations", map[string]string{
		"type":           string(typ),
		"documentId":     documentID,
		"jobDescription": jobDescription,
	}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// RenameConversation changes a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.doJSON(ctx, http.MethodPatch, "/api/conversations/"+url.PathEscape(id), domain.ConversationPatch{Title: &title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id), nil, nil)
}

// SendMessage sends a user message and returns the assistant's reply.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, attachments []string) (*domain.Message, error) {
	var reply domain.Message
	err := c.doJSON(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(conversationID)+"/messages", map[string]any{
		"content":     content,
		"attachments": attachments,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// ExportConversation writes the HTML export of a conversation to w.
func (c *Client) ExportConversation(ctx context.Context, id string, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id)+"/export", nil)
	if err != nil {
		return err
	}
	return c.do(req, w)
}

// Profile returns the user's profile.
func (c *Client) Profile(ctx context.Context) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.doJSON(ctx, http.MethodGet, "/api/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile replaces the user's profile.
func (c *Client) UpdateProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.doJSON(ctx, http.MethodPut, "/api/profile", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Assessments lists the available assessments.
func (c *Client) Assessments(ctx context.Context) ([]assessment.Summary, error) {
	var out []assessment.Summary
	if err := c.doJSON(ctx, http.MethodGet, "/api/assessments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Assessment fetches an assessment without its answers.
func (c *Client) Assessment(ctx context.Context, id string) (*assessment.Assessment, error) {
	var a assessment.Assessment
	if err := c.doJSON(ctx, http.MethodGet, "/api/assessments/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Score submits answers for grading.
func (c *Client) Score(ctx context.Context, id string, answers map[string]string, elapsedSeconds int) (*assessment.Result, error) {
	var r assessment.Result
	err := c.doJSON(ctx, http.MethodPost, "/api/assessments/"+url.PathEscape(id)+"/score", map[string]any{
		"answers":        answers,
		"elapsedSeconds": elapsedSeconds,
	}, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UploadFile uploads the file at path.
func (c *Client) UploadFile(ctx context.Context, path string) (*blob.StoredFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/files", pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var stored blob.StoredFile
	if err := c.do(req, &stored); err != nil {
		_ = pr.Close()
		return nil, err
	}
	return &stored, nil
}

// AnalyzeFile asks the advisor for feedback on an uploaded file.
func (c *Client) AnalyzeFile(ctx context.Context, file advisor.FileRequest) (string, error) {
	var out struct {
		Analysis string `json:"analysis"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/ai/analyze-file", file, &out); err != nil {
		return "", err
	}
	return out.Analysis, nil
}
