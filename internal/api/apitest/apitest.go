// Package apitest runs the HTTP API over a temporary SQLite store for tests.
package apitest

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/api"
	"github.com/ashureev/career-advisor/internal/assessment"
	"github.com/ashureev/career-advisor/internal/auth"
	"github.com/ashureev/career-advisor/internal/blob"
	"github.com/ashureev/career-advisor/internal/conversation"
	"github.com/ashureev/career-advisor/internal/exchange"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/ashureev/career-advisor/internal/store/storetest"
)

// Secret signs session tokens in test servers.
const Secret = "0123456789abcdef0123456789abcdef"

// Options tunes a test server.
type Options struct {
	Mailer         auth.Mailer
	UploadMaxBytes int64
}

// NewServer starts the full API backed by provider and closes it on cleanup.
func NewServer(t testing.TB, provider advisor.Provider, opts Options) *httptest.Server {
	t.Helper()
	if opts.UploadMaxBytes == 0 {
		opts.UploadMaxBytes = 1 << 20
	}

	repo := storetest.NewSQLite(t)
	issuer := identity.NewIssuer(Secret, time.Hour, repo)
	bank, err := assessment.DefaultBank()
	if err != nil {
		t.Fatalf("load assessment bank: %v", err)
	}

	srv := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + srv.Listener.Addr().String()

	blobs, err := blob.NewStore(t.TempDir(), baseURL, opts.UploadMaxBytes)
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	authSvc := auth.NewService(repo, issuer, opts.Mailer, nil, auth.Options{
		BaseURL:      baseURL,
		MagicLinkTTL: 15 * time.Minute,
	})

	srv.Config.Handler = api.NewRouter(api.Services{
		Repo:           repo,
		Verifier:       issuer,
		Auth:           authSvc,
		Conversations:  conversation.NewService(repo),
		Exchange:       exchange.NewService(repo, provider, nil),
		AI:             provider,
		Bank:           bank,
		Blobs:          blobs,
		UploadMaxBytes: opts.UploadMaxBytes,
		FrontendURL:    "/",
		IsDev:          true,
		Client:         api.ClientConfig{AIProvider: "test", OAuthProviders: authSvc.Providers()},
	})
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
