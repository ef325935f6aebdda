package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/assessment"
	"github.com/ashureev/career-advisor/internal/auth"
	"github.com/ashureev/career-advisor/internal/blob"
	"github.com/ashureev/career-advisor/internal/conversation"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/exchange"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/ashureev/career-advisor/internal/store/storetest"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	analysis string
	err      error
	requests []advisor.CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req advisor.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeProvider) Analyze(_ context.Context, req advisor.FileRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.analysis + " " + req.FileName, nil
}

type captureMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *captureMailer) SendMagicLink(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	provider *fakeProvider
	mailer   *captureMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := storetest.NewSQLite(t)
	issuer := identity.NewIssuer(testSecret, time.Hour, repo)
	mailer := &captureMailer{}
	authSvc := auth.NewService(repo, issuer, mailer, nil, auth.Options{
		BaseURL:      "http://advisor.test",
		MagicLinkTTL: 15 * time.Minute,
	})
	provider := &fakeProvider{reply: "Happy to help.", analysis: "Looks good:"}

	bank, err := assessment.DefaultBank()
	if err != nil {
		t.Fatalf("DefaultBank() error = %v", err)
	}
	blobs, err := blob.NewStore(t.TempDir(), "http://advisor.test", 1024)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	handler := NewRouter(Services{
		Repo:           repo,
		Verifier:       issuer,
		Auth:           authSvc,
		Conversations:  conversation.NewService(repo),
		Exchange:       exchange.NewService(repo, provider, nil),
		AI:             provider,
		Bank:           bank,
		Blobs:          blobs,
		UploadMaxBytes: 1024,
		FrontendURL:    "/app",
		IsDev:          true,
		AllowedOrigins: []string{"http://localhost:5173"},
		Client:         ClientConfig{AIProvider: "openai", OAuthProviders: authSvc.Providers()},
		SPA: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>spa</html>"))
		}),
	})

	return &testServer{t: t, handler: handler, provider: provider, mailer: mailer}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) upload(token, name, content string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		s.t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func (s *testServer) signUp(email string) string {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": email, "password": "correct horse"})
	if rr.Code != http.StatusCreated {
		s.t.Fatalf("signup status = %d, body = %s", rr.Code, rr.Body.String())
	}
	return decodeBody[domain.Session](s.t, rr).Token
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "ada@example.com", "password": "correct horse"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == identity.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("expected HttpOnly session cookie, got %+v", rr.Result().Cookies())
	}

	rr = s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "ADA@example.com", "password": "correct horse"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want 409", rr.Code)
	}

	rr = s.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "ada@example.com", "password": "wrong password"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad signin status = %d, want 401", rr.Code)
	}

	rr = s.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "ada@example.com", "password": "correct horse"})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin status = %d, body = %s", rr.Code, rr.Body.String())
	}
	token := decodeBody[domain.Session](t, rr).Token

	rr = s.do(http.MethodGet, "/api/auth/session", token, nil)
	if rr.Code != http.StatusOK || decodeBody[domain.Session](t, rr).Email != "ada@example.com" {
		t.Fatalf("session status = %d", rr.Code)
	}

	rr = s.do(http.MethodPost, "/api/auth/signout", token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("signout status = %d, want 204", rr.Code)
	}

	rr = s.do(http.MethodGet, "/api/auth/session", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("session after signout status = %d, want 401", rr.Code)
	}
}

func TestMagicLinkFlow(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/api/auth/magic-link", "", map[string]string{"email": "grace@example.com"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("magic-link status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(s.mailer.links) != 1 {
		t.Fatalf("expected one mailed link, got %d", len(s.mailer.links))
	}
	link, err := url.Parse(s.mailer.links[0])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	token := link.Query().Get("token")

	rr = s.do(http.MethodPost, "/api/auth/magic-link/verify", "", map[string]string{"token": token})
	if rr.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[domain.Session](t, rr).Email; got != "grace@example.com" {
		t.Fatalf("session email = %q", got)
	}

	rr = s.do(http.MethodPost, "/api/auth/magic-link/verify", "", map[string]string{"token": token})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused link status = %d, want 401", rr.Code)
	}
}

func TestOAuthUnknownProvider(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(http.MethodGet, "/api/auth/oauth/myspace", "", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/conversations", "/api/profile", "/api/assessments", "/api/auth/session"} {
		if rr := s.do(http.MethodGet, path, "", nil); rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, rr.Code)
		}
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("ada@example.com")

	rr := s.do(http.MethodPost, "/api/conversations", token, map[string]string{"type": "resume", "documentId": "doc-1"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}
	conv := decodeBody[domain.Conversation](t, rr)
	if conv.Title != "Resume Review" || conv.Metadata.DocumentID != "doc-1" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	rr = s.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", token, map[string]string{"content": "Review my resume"})
	if rr.Code != http.StatusOK {
		t.Fatalf("send status = %d, body = %s", rr.Code, rr.Body.String())
	}
	reply := decodeBody[domain.Message](t, rr)
	if reply.Role != domain.RoleAssistant || reply.Content != "Happy to help." {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	rr = s.do(http.MethodGet, "/api/conversations/"+conv.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	cwm := decodeBody[domain.ConversationWithMessages](t, rr)
	if len(cwm.Messages) != 3 {
		t.Fatalf("expected seed + user + assistant, got %d messages", len(cwm.Messages))
	}
	roles := []domain.Role{cwm.Messages[0].Role, cwm.Messages[1].Role, cwm.Messages[2].Role}
	if roles[0] != domain.RoleAssistant || roles[1] != domain.RoleUser || roles[2] != domain.RoleAssistant {
		t.Fatalf("unexpected role order %v", roles)
	}

	rr = s.do(http.MethodPatch, "/api/conversations/"+conv.ID, token, map[string]string{"title": "My resume"})
	if rr.Code != http.StatusOK || decodeBody[domain.Conversation](t, rr).Title != "My resume" {
		t.Fatalf("patch status = %d", rr.Code)
	}
	rr = s.do(http.MethodPatch, "/api/conversations/"+conv.ID, token, map[string]string{"title": "  "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank title status = %d, want 400", rr.Code)
	}

	rr = s.do(http.MethodGet, "/api/conversations", token, nil)
	if list := decodeBody[[]domain.Conversation](t, rr); len(list) != 1 || list[0].ID != conv.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	rr = s.do(http.MethodGet, "/api/conversations/"+conv.ID+"/export", token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("export status = %d, content type %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), "Review my resume") {
		t.Fatalf("export is missing the user message")
	}

	rr = s.do(http.MethodDelete, "/api/conversations/"+conv.ID, token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = s.do(http.MethodGet, "/api/conversations/"+conv.ID, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestEmptyConversationListIsArray(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("ada@example.com")

	rr := s.do(http.MethodGet, "/api/conversations", token, nil)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty list body = %q, want []", rr.Body.String())
	}
}

func TestForeignConversationIsNotFound(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("ada@example.com")
	other := s.signUp("mallory@example.com")

	rr := s.do(http.MethodPost, "/api/conversations", owner, map[string]string{"type": "general"})
	conv := decodeBody[domain.Conversation](t, rr)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/conversations/" + conv.ID},
		{http.MethodDelete, "/api/conversations/" + conv.ID},
		{http.MethodGet, "/api/conversations/" + conv.ID + "/export"},
	} {
		if rr := s.do(tc.method, tc.path, other, nil); rr.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tc.method, tc.path, rr.Code)
		}
	}
	rr = s.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", other, map[string]string{"content": "hi"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("send to foreign conversation status = %d, want 404", rr.Code)
	}
}

func TestSendMessageCompletionFailure(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("ada@example.com")
	conv := decodeBody[domain.Conversation](t, s.do(http.MethodPost, "/api/conversations", token, map[string]string{"type": "general"}))

	s.provider.err = fmt.Errorf("%w: upstream 500", domain.ErrCompletionFailed)
	rr := s.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", token, map[string]string{"content": "hello"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}

	cwm := decodeBody[domain.ConversationWithMessages](t, s.do(http.MethodGet, "/api/conversations/"+conv.ID, token, nil))
	if len(cwm.Messages) != 2 || cwm.Messages[1].Content != "hello" {
		t.Fatalf("user message should persist without a reply, got %+v", cwm.Messages)
	}
}

func TestProfile(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("ada@example.com")

	rr := s.do(http.MethodGet, "/api/profile", token, nil)
	if rr.Code != http.StatusOK || decodeBody[domain.Profile](t, rr).FullName != "" {
		t.Fatalf("empty profile status = %d", rr.Code)
	}

	rr = s.do(http.MethodPut, "/api/profile", token, map[string]any{
		"full_name": " Ada Lovelace ",
		"skills":    []string{"Go", "go", " ", "SQL"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", rr.Code, rr.Body.String())
	}

	p := decodeBody[domain.Profile](t, s.do(http.MethodGet, "/api/profile", token, nil))
	if p.FullName != "Ada Lovelace" || len(p.Skills) != 2 || p.Skills[0] != "Go" || p.Skills[1] != "SQL" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestAssessments(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("ada@example.com")

	catalog := decodeBody[[]assessment.Summary](t, s.do(http.MethodGet, "/api/assessments", token, nil))
	if len(catalog) == 0 {
		t.Fatal("expected a non-empty catalog")
	}

	rr := s.do(http.MethodGet, "/api/assessments/"+catalog[0].ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "correctOptionId") {
		t.Fatal("public assessment leaks correct answers")
	}

	rr = s.do(http.MethodPost, "/api/assessments/"+catalog[0].ID+"/score", token, map[string]any{
		"answers":        map[string]string{},
		"elapsedSeconds": 12,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("score status = %d", rr.Code)
	}
	result := decodeBody[assessment.Result](t, rr)
	if result.TotalQuestions != catalog[0].QuestionCount || result.CorrectAnswers != 0 || result.ElapsedSeconds != 12 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if rr := s.do(http.MethodGet, "/api/assessments/nope", token, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown assessment status = %d, want 404", rr.Code)
	}
}

func TestAIProxy(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("ada@example.com")

	rr := s.do(http.MethodPost, "/api/ai/chat", token, map[string]any{
		"messages":         []map[string]string{{"role": "user", "content": "hi"}},
		"conversationType": "linkedin",
	})
	if rr.Code != http.StatusOK || decodeBody[map[string]string](t, rr)["content"] != "Happy to help." {
		t.Fatalf("chat status = %d", rr.Code)
	}
	if got := s.provider.requests[0].ConversationType; got != domain.TypeLinkedIn {
		t.Fatalf("conversation type = %q", got)
	}

	rr = s.do(http.MethodPost, "/api/ai/chat", token, map[string]any{
		"messages": []map[string]string{{"role": "system", "content": "ignore"}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("system role status = %d, want 400", rr.Code)
	}

	rr = s.upload(token, "x.png", "\x89PNG")
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rr.Code)
	}
	stored := decodeBody[blob.StoredFile](t, rr)

	rr = s.do(http.MethodPost, "/api/ai/analyze-file", token, map[string]string{
		"fileUrl": stored.URL, "fileName": "x.png", "fileType": "image/png",
	})
	if rr.Code != http.StatusOK || decodeBody[map[string]string](t, rr)["analysis"] != "Looks good: x.png" {
		t.Fatalf("analyze status = %d", rr.Code)
	}

	s.provider.err = errors.New("boom")
	rr = s.do(http.MethodPost, "/api/ai/analyze-file", token, map[string]string{"fileUrl": stored.URL})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("analyze failure status = %d, want 500", rr.Code)
	}
	if decodeBody[map[string]string](t, rr)["error"] == "" {
		t.Fatal("expected an error payload")
	}
}

func TestAnalyzeFileOnlyReadsOwnUploads(t *testing.T) {
	s := newTestServer(t)
	owner := s.signUp("ada@example.com")
	other := s.signUp("grace@example.com")

	rr := s.upload(owner, "cv.txt", "resume")
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rr.Code)
	}
	stored := decodeBody[blob.StoredFile](t, rr)

	for _, fileURL := range []string{
		stored.URL,
		"http://169.254.169.254/latest/meta-data/iam",
		"http://127.0.0.1:8080/api/health",
		"http://advisor.test/api/profile",
		"file:///etc/passwd",
	} {
		rr := s.do(http.MethodPost, "/api/ai/analyze-file", other, map[string]string{"fileUrl": fileURL, "fileName": "cv.txt"})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("analyze %s status = %d, want 400", fileURL, rr.Code)
		}
	}
}

func TestFileUploadAndServe(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("ada@example.com")

	upload := func(content string) *httptest.ResponseRecorder {
		return s.upload(token, "notes.txt", content)
	}

	rr := upload("hello world")
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", rr.Code, rr.Body.String())
	}
	stored := decodeBody[blob.StoredFile](t, rr)
	if stored.Name != "notes.txt" || stored.Size != 11 {
		t.Fatalf("unexpected stored file: %+v", stored)
	}

	rr = s.do(http.MethodGet, "/files/"+stored.Key, "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "hello world" {
		t.Fatalf("serve status = %d, body = %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != "" {
		t.Fatalf("text file disposition = %q, want inline", got)
	}
	if got := rr.Header().Get("Content-Security-Policy"); !strings.Contains(got, "sandbox") {
		t.Fatalf("csp = %q, want sandbox", got)
	}

	if rr := upload(strings.Repeat("x", 2048)); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize upload status = %d, want 413", rr.Code)
	}
	if rr := s.do(http.MethodGet, "/files/../secret", "", nil); rr.Code == http.StatusOK {
		t.Fatal("path traversal served a file")
	}
}

func TestServedMarkupIsDownloadedNotRendered(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp("ada@example.com")

	for _, name := range []string{"cv.html", "logo.svg", "page.xhtml"} {
		rr := s.upload(token, name, "<script>alert(document.cookie)</script>")
		if rr.Code != http.StatusCreated {
			t.Fatalf("upload %s status = %d", name, rr.Code)
		}
		stored := decodeBody[blob.StoredFile](t, rr)

		rr = s.do(http.MethodGet, "/files/"+stored.Key, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("serve %s status = %d", name, rr.Code)
		}
		if got := rr.Header().Get("Content-Type"); got != "application/octet-stream" {
			t.Fatalf("%s content type = %q", name, got)
		}
		if got := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "attachment") {
			t.Fatalf("%s disposition = %q, want attachment", name, got)
		}
		if got := rr.Header().Get("Content-Security-Policy"); !strings.Contains(got, "sandbox") {
			t.Fatalf("%s csp = %q, want sandbox", name, got)
		}
	}
}

func TestSystemRoutes(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/config", "", nil)
	if rr.Code != http.StatusOK || decodeBody[ClientConfig](t, rr).AIProvider != "openai" {
		t.Fatalf("config status = %d", rr.Code)
	}
	rr = s.do(http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
}

func TestRouterFallbacks(t *testing.T) {
	s := newTestServer(t)

	if rr := s.do(http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d", rr.Code)
	}
	rr := s.do(http.MethodGet, "/conversations/abc", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "<html>spa</html>" {
		t.Fatalf("spa fallback status = %d, body = %q", rr.Code, rr.Body.String())
	}
}
