package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/api"
	"github.com/ashureev/career-advisor/internal/api/apitest"
	"github.com/ashureev/career-advisor/internal/chatview"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoProvider struct{}

func (echoProvider) Complete(_ context.Context, req advisor.CompletionRequest) (string, error) {
	last := req.Messages[len(req.Messages)-1]
	return "You said: " + last.Content, nil
}

func (echoProvider) Analyze(_ context.Context, req advisor.FileRequest) (string, error) {
	return "Feedback on " + req.FileName, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return apitest.NewServer(t, echoProvider{}, apitest.Options{})
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New(baseURL, LoadSessionProvider(filepath.Join(t.TempDir(), "session.json")))
}

func TestClientChatRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	var changes int
	c.Sessions().Subscribe(func(*domain.Session) { changes++ })

	_, err := c.SignUp(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	require.NotNil(t, c.Sessions().Current())

	conv, err := c.CreateConversation(ctx, domain.TypeInterviewPrep, "", "Backend engineer")
	require.NoError(t, err)
	assert.Equal(t, "Interview Preparation", conv.Title)

	notifier := &recordingNotifier{}
	view := chatview.New(c, notifier)
	defer view.Close()

	require.NoError(t, view.Load(ctx, conv.ID))
	require.Len(t, view.Entries(), 1)

	assert.True(t, view.Submit(ctx, "Ask me about Go", nil))
	entries := view.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "You said: Ask me about Go", entries[2].Message.Content)
	assert.Equal(t, chatview.Confirmed, entries[2].State)

	require.NoError(t, view.Load(ctx, conv.ID))
	for _, e := range view.Entries() {
		assert.Equal(t, chatview.Confirmed, e.State)
	}

	renamed, err := c.RenameConversation(ctx, conv.ID, "Go interview")
	require.NoError(t, err)
	assert.Equal(t, "Go interview", renamed.Title)

	var export strings.Builder
	require.NoError(t, c.ExportConversation(ctx, conv.ID, &export))
	assert.Contains(t, export.String(), "Ask me about Go")

	list := chatview.NewConversationList(c, notifier)
	require.NoError(t, list.Refresh(ctx))
	require.Len(t, list.Items(), 1)
	next, err := list.Delete(ctx, conv.ID, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, next)

	_, err = c.Conversation(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.SignOut(ctx))
	assert.Nil(t, c.Sessions().Current())
	assert.Equal(t, 2, changes)

	_, err = c.ListConversations(ctx)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestClientWrongPasswordKeepsSession(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.SignUp(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	_, err = c.SignIn(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.NotNil(t, c.Sessions().Current())
}

func TestClientClearsRejectedSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusUnauthorized, "authentication required")
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	require.NoError(t, c.Sessions().Set(testSession(time.Hour)))

	var cleared bool
	c.Sessions().Subscribe(func(s *domain.Session) { cleared = s == nil })

	_, err := c.ListConversations(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "authentication required", apiErr.Message)
	assert.True(t, cleared)
	assert.Nil(t, c.Sessions().Current())
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url).ListConversations(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestClientUploadAndAnalyze(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()
	_, err := c.SignUp(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "resume.txt")
	require.NoError(t, os.WriteFile(path, []byte("Ada Lovelace, analyst"), 0o600))

	stored, err := c.UploadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "resume.txt", stored.Name)
	assert.True(t, strings.HasPrefix(stored.URL, srv.URL+"/files/"))

	analysis, err := c.AnalyzeFile(ctx, advisor.FileRequest{FileURL: stored.URL, FileName: stored.Name, FileType: stored.ContentType})
	require.NoError(t, err)
	assert.Equal(t, "Feedback on resume.txt", analysis)
}

func TestClientAssessmentScore(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()
	_, err := c.SignUp(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	a, err := c.Assessment(ctx, "communication")
	require.NoError(t, err)
	for _, q := range a.Questions {
		assert.Empty(t, q.CorrectOptionID)
	}

	result, err := c.Score(ctx, a.ID, map[string]string{}, 3)
	require.NoError(t, err)
	assert.Equal(t, len(a.Questions), result.TotalQuestions)
	assert.Zero(t, result.CorrectAnswers)
}
