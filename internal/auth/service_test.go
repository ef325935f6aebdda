package auth

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *captureMailer) SendMagicLink(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[email] = link
	return nil
}

func (m *captureMailer) token(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := url.Parse(m.links[email])
	require.NoError(t, err)
	return u.Query().Get("token")
}

type fixture struct {
	svc    *Service
	repo   *store.SQLiteStore
	issuer *identity.Issuer
	mailer *captureMailer
	events []Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{
		repo:   repo,
		issuer: identity.NewIssuer(strings.Repeat("k", 32), time.Hour, repo),
		mailer: &captureMailer{},
	}
	f.svc = NewService(repo, f.issuer, f.mailer, NewEvents(), Options{
		BaseURL:      "http://advisor.test",
		MagicLinkTTL: 15 * time.Minute,
	})
	f.svc.Events().Subscribe(func(ev Event) { f.events = append(f.events, ev) })
	return f
}

func TestSignUpThenSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.SignUp(ctx, "  Ada@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", session.Email)
	assert.NotEmpty(t, session.Token)

	again, err := f.svc.SignIn(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, again.UserID)

	require.Len(t, f.events, 2)
	assert.Equal(t, EventSignedIn, f.events[0].Kind)
	assert.Equal(t, "signup", f.events[0].Method)
	assert.Equal(t, "password", f.events[1].Method)
}

func TestSignUpRejectsDuplicatesAndBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	_, err = f.svc.SignUp(ctx, "ADA@example.com", "another pass")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.SignUp(ctx, "not-an-email", "correct horse")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.SignUp(ctx, "bob@example.com", "short")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSignInFailuresAreInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	_, err = f.svc.SignIn(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.svc.SignIn(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestMagicLinkIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestMagicLink(ctx, "grace@example.com"))
	token := f.mailer.token(t, "grace@example.com")
	require.NotEmpty(t, token)

	session, err := f.svc.CompleteMagicLink(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", session.Email)

	user, err := f.repo.GetUserByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderMagicLink, user.Provider)
	assert.False(t, user.HasPassword())

	_, err = f.svc.CompleteMagicLink(ctx, token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestMagicLinkExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestMagicLink(ctx, "grace@example.com"))
	token := f.mailer.token(t, "grace@example.com")

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err := f.svc.CompleteMagicLink(ctx, token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestSignOutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.SignUp(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	_, err = f.issuer.Verify(ctx, session.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, session))

	_, err = f.issuer.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	last := f.events[len(f.events)-1]
	assert.Equal(t, EventSignedOut, last.Kind)
	assert.Equal(t, session.UserID, last.UserID)
}

func TestOAuthUnknownProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.OAuthStart("myspace", "state")
	assert.ErrorIs(t, err, domain.ErrUnsupported)

	_, err = f.svc.OAuthComplete(context.Background(), "myspace", "code")
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestOAuthStartCarriesState(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := NewService(repo, identity.NewIssuer(strings.Repeat("k", 32), time.Hour, repo), nil, nil, Options{
		Providers: []*OAuthProvider{NewGitHubProvider("client", "secret", "http://advisor.test/api/auth/oauth/github/callback")},
	})

	assert.Equal(t, []string{"github"}, svc.Providers())

	consent, err := svc.OAuthStart("github", "xyz")
	require.NoError(t, err)
	u, err := url.Parse(consent)
	require.NoError(t, err)
	assert.Equal(t, "xyz", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
}

func TestEventsUnsubscribe(t *testing.T) {
	events := NewEvents()
	var got int
	unsubscribe := events.Subscribe(func(Event) { got++ })

	events.Publish(Event{Kind: EventSignedIn})
	unsubscribe()
	unsubscribe()
	events.Publish(Event{Kind: EventSignedOut})

	assert.Equal(t, 1, got)
}

type countingPurger struct{ calls int }

func (p *countingPurger) PurgeExpired(context.Context, time.Time) (int64, error) {
	p.calls++
	return 2, nil
}

func TestJanitorSweep(t *testing.T) {
	p := &countingPurger{}
	j := NewJanitor(p, time.Minute)

	n, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, p.calls)
}
