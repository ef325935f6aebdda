// Package auth implements sign-up, sign-in and sign-out flows.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// TokenIssuer mints sessions for authenticated users.
type TokenIssuer interface {
	Issue(user *domain.User) (*domain.Session, error)
}

// Options configures a Service.
type Options struct {
	BaseURL      string
	MagicLinkTTL time.Duration
	Providers    []*OAuthProvider
}

// Service runs the authentication flows and publishes auth-state changes.
type Service struct {
	repo      store.Repository
	issuer    TokenIssuer
	mailer    Mailer
	events    *Events
	providers map[string]*OAuthProvider
	baseURL   string
	linkTTL   time.Duration
	now       func() time.Time
}

// NewService creates an auth service.
func NewService(repo store.Repository, issuer TokenIssuer, mailer Mailer, events *Events, opts Options) *Service {
	providers := make(map[string]*OAuthProvider, len(opts.Providers))
	for _, p := range opts.Providers {
		providers[string(p.Name)] = p
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	if events == nil {
		events = NewEvents()
	}
	return &Service{
		repo:      repo,
		issuer:    issuer,
		mailer:    mailer,
		events:    events,
		providers: providers,
		baseURL:   opts.BaseURL,
		linkTTL:   opts.MagicLinkTTL,
		now:       time.Now,
	}
}

// Events returns the broker that receives auth-state changes.
func (s *Service) Events() *Events {
	return s.events
}

// Providers lists the configured OAuth provider names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range []domain.AuthProvider{domain.ProviderGoogle, domain.ProviderGitHub} {
		if _, ok := s.providers[string(p)]; ok {
			names = append(names, string(p))
		}
	}
	return names
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// SignUp registers an email/password account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*domain.Session, error) {
	email = domain.NormalizeEmail(email)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid email address", domain.ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     domain.ProviderEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return s.signIn(user, "signup")
}

// SignIn authenticates an email/password account.
func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	user, err := s.repo.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.HasPassword() {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.signIn(user, "password")
}

// RequestMagicLink stores a single-use sign-in token and mails its link.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if !validEmail(email) {
		return fmt.Errorf("%w: invalid email address", domain.ErrInvalidInput)
	}

	token, err := randomToken()
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.repo.CreateMagicLink(ctx, &domain.MagicLink{
		TokenHash: hashToken(token),
		Email:     email,
		ExpiresAt: now.Add(s.linkTTL),
		CreatedAt: now,
	}); err != nil {
		return err
	}

	link := s.baseURL + "/auth/verify?token=" + url.QueryEscape(token)
	if err := s.mailer.SendMagicLink(ctx, email, link); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	return nil
}

// CompleteMagicLink redeems token, creating the account on first use.
func (s *Service) CompleteMagicLink(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrTokenExpired
	}
	link, err := s.repo.ConsumeMagicLink(ctx, hashToken(token), s.now())
	if err != nil {
		return nil, err
	}

	user, err := s.findOrCreateUser(ctx, link.Email, domain.ProviderMagicLink)
	if err != nil {
		return nil, err
	}
	return s.signIn(user, "magic_link")
}

// SignOut revokes the session token and publishes EventSignedOut.
func (s *Service) SignOut(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return domain.ErrUnauthenticated
	}
	if err := s.repo.RevokeToken(ctx, session.TokenID, session.ExpiresAt); err != nil {
		return err
	}
	s.events.Publish(Event{Kind: EventSignedOut, UserID: session.UserID, Email: session.Email, At: s.now()})
	return nil
}

// OAuthStart returns the provider's consent URL carrying state.
func (s *Service) OAuthStart(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("oauth provider %q: %w", provider, domain.ErrUnsupported)
	}
	return p.Config.AuthCodeURL(state), nil
}

// OAuthComplete exchanges code for a token and signs the provider's user in.
func (s *Service) OAuthComplete(ctx context.Context, provider, code string) (*domain.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("oauth provider %q: %w", provider, domain.ErrUnsupported)
	}

	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: oauth exchange: %v", domain.ErrInvalidCredentials, err)
	}
	email, err := p.FetchEmail(ctx, p.Config.Client(ctx, tok))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}

	user, err := s.findOrCreateUser(ctx, email, p.Name)
	if err != nil {
		return nil, err
	}
	return s.signIn(user, string(p.Name))
}

func (s *Service) findOrCreateUser(ctx context.Context, email string, provider domain.AuthProvider) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	user = &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent first sign-in.
		if errors.Is(err, domain.ErrConflict) {
			return s.repo.GetUserByEmail(ctx, email)
		}
		return nil, err
	}
	slog.Info("user created", "user_id", user.ID, "provider", provider)
	return user, nil
}

func (s *Service) signIn(user *domain.User, method string) (*domain.Session, error) {
	session, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{Kind: EventSignedIn, UserID: user.ID, Email: user.Email, Method: method, At: s.now()})
	return session, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
