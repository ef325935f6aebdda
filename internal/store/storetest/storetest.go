// Package storetest provides repositories for tests and the behaviour
// checks every repository implementation runs.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NewSQLite opens a fresh database under t.TempDir and closes it on cleanup.
func NewSQLite(t testing.TB) *store.SQLiteStore {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// NewPostgres opens databaseURL, applies migrations and empties every table,
// so point it at a throwaway database. The test is skipped when databaseURL
// is empty.
func NewPostgres(t testing.TB, databaseURL string) *store.PostgresStore {
	t.Helper()
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := store.NewPostgres(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	defer func() { _ = conn.Close(ctx) }()
	if _, err := conn.Exec(ctx, `TRUNCATE messages, conversations, profiles, revoked_tokens, magic_links, users`); err != nil {
		t.Fatalf("reset postgres tables: %v", err)
	}
	return repo
}

// SeedUser inserts a user and returns a session for it.
func SeedUser(t testing.TB, repo store.Repository, email string) *domain.Session {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:        uuid.NewString(),
		Email:     domain.NormalizeEmail(email),
		Provider:  domain.ProviderEmail,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &domain.Session{
		Token:     "test-token-" + user.ID,
		TokenID:   uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: now.Add(time.Hour),
	}
}
