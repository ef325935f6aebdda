package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeRevocations map[string]bool

func (f fakeRevocations) IsTokenRevoked(_ context.Context, id string) (bool, error) {
	return f[id], nil
}

func testUser() *domain.User {
	return &domain.User{ID: "user-1", Email: "ada@example.com"}
}

func TestIssuerRoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour, nil)

	session, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := issuer.Verify(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.UserID != "user-1" || got.Email != "ada@example.com" || got.TokenID != session.TokenID {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestIssuerRejectsExpired(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Minute, nil)
	issued := time.Now().Add(-time.Hour)
	issuer.now = func() time.Time { return issued }

	session, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.Verify(context.Background(), session.Token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestIssuerRejectsForeignSignature(t *testing.T) {
	other := NewIssuer(strings.Repeat("x", 32), time.Hour, nil)
	session, err := other.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	issuer := NewIssuer(testSecret, time.Hour, nil)
	if _, err := issuer.Verify(context.Background(), session.Token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("Verify() error = %v, want ErrUnauthenticated", err)
	}
}

func TestIssuerRejectsRevoked(t *testing.T) {
	revoked := fakeRevocations{}
	issuer := NewIssuer(testSecret, time.Hour, revoked)

	session, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	revoked[session.TokenID] = true

	if _, err := issuer.Verify(context.Background(), session.Token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("Verify() error = %v, want ErrUnauthenticated", err)
	}
}

func TestMiddlewareBearerAndCookie(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour, nil)
	session, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var seen string
	handler := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "user-1" {
		t.Fatalf("bearer: user id = %q, want user-1", seen)
	}

	seen = ""
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session.Token})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "user-1" {
		t.Fatalf("cookie: user id = %q, want user-1", seen)
	}

	seen = "unchanged"
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "" {
		t.Fatalf("invalid token should continue anonymously, got %q", seen)
	}
}

func TestRequireSession(t *testing.T) {
	handler := RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSession(req.Context(), &domain.Session{UserID: "u"}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("authenticated status = %d, want 204", rr.Code)
	}
}
