package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore implements Repository using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL, applies migrations and returns the store.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	migrationsFS, err := fs.Sub(postgresMigrations, "migrations/postgres")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	if err := RunMigrations(databaseURL, migrationsFS); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPool opens and verifies a pgx connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies all pending up migrations from migrationsFS.
func RunMigrations(databaseURL string, migrationsFS fs.FS) error {
	d, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, provider, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, string(user.Provider), user.CreatedAt, user.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return fmt.Errorf("create user %s: %w", user.Email, domain.ErrConflict)
	}
	if err != nil {
		return unavailable("create user", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, userID)
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `WHERE email = $1`, domain.NormalizeEmail(email))
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	var user domain.User
	var provider string
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, provider, created_at, updated_at FROM users `+where, arg,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &provider, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	user.Provider = domain.AuthProvider(provider)
	return &user, nil
}

// CreateMagicLink stores a pending magic link.
func (s *PostgresStore) CreateMagicLink(ctx context.Context, link *domain.MagicLink) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO magic_links (token_hash, email, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		link.TokenHash, link.Email, link.ExpiresAt, link.CreatedAt,
	); err != nil {
		return unavailable("create magic link", err)
	}
	return nil
}

// ConsumeMagicLink marks a usable link as used and returns it.
func (s *PostgresStore) ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (*domain.MagicLink, error) {
	link := domain.MagicLink{TokenHash: tokenHash}
	err := s.pool.QueryRow(ctx, `
		UPDATE magic_links SET used_at = $1
		WHERE token_hash = $2 AND used_at IS NULL AND expires_at > $1
		RETURNING email, expires_at, created_at, used_at`,
		now, tokenHash,
	).Scan(&link.Email, &link.ExpiresAt, &link.CreatedAt, &link.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenExpired
	}
	if err != nil {
		return nil, unavailable("consume magic link", err)
	}
	return &link, nil
}

// RevokeToken records a signed-out token id.
func (s *PostgresStore) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2) ON CONFLICT (token_id) DO NOTHING`,
		tokenID, expiresAt,
	); err != nil {
		return unavailable("revoke token", err)
	}
	return nil
}

// IsTokenRevoked reports whether the token id was signed out.
func (s *PostgresStore) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)`, tokenID,
	).Scan(&revoked)
	if err != nil {
		return false, unavailable("check revoked token", err)
	}
	return revoked, nil
}

// PurgeExpired removes revoked tokens and magic links that can no longer matter.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, query := range []string{
		`DELETE FROM revoked_tokens WHERE expires_at <= $1`,
		`DELETE FROM magic_links WHERE expires_at <= $1`,
	} {
		tag, err := s.pool.Exec(ctx, query, now)
		if err != nil {
			return total, unavailable("purge expired", err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// GetProfile retrieves a user's profile.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, full_name, headline, target_role, location, skills, resume_text, resume_url, updated_at
		FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.FullName, &p.Headline, &p.TargetRole, &p.Location, &p.Skills, &p.ResumeText, &p.ResumeURL, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get profile", err)
	}
	return &p, nil
}

// UpsertProfile creates or replaces a user's profile.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, full_name, headline, target_role, location, skills, resume_text, resume_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			headline = EXCLUDED.headline,
			target_role = EXCLUDED.target_role,
			location = EXCLUDED.location,
			skills = EXCLUDED.skills,
			resume_text = EXCLUDED.resume_text,
			resume_url = EXCLUDED.resume_url,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.FullName, p.Headline, p.TargetRole, p.Location, nonNil(p.Skills), p.ResumeText, p.ResumeURL, p.UpdatedAt,
	)
	if err != nil {
		return unavailable("upsert profile", err)
	}
	return nil
}

type pgQueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgScanConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var convType string
	var metadata []byte
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &convType, &metadata, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	conv.Type = domain.ConversationType(convType)
	return &conv, nil
}

// pgGetConversation reads a conversation owned by userID. With lock set the
// row stays locked until the surrounding transaction ends.
func pgGetConversation(ctx context.Context, q pgQueryRower, userID, conversationID string, lock bool) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumnsPg + ` FROM conversations WHERE id = $1 AND user_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	conv, err := pgScanConversation(q.QueryRow(ctx, query, conversationID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get conversation", err)
	}
	return conv, nil
}

const conversationColumnsPg = `id, user_id, title, type, metadata, created_at, updated_at`

// ListConversations returns the user's conversations, most recently updated first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumnsPg+` FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, unavailable("query conversations", err)
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		conv, err := pgScanConversation(rows)
		if err != nil {
			return nil, unavailable("scan conversation row", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate conversations", err)
	}
	return convs, nil
}

// GetConversation retrieves one conversation owned by userID.
func (s *PostgresStore) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	return pgGetConversation(ctx, s.pool, userID, conversationID, false)
}

// CreateConversation inserts a new conversation.
func (s *PostgresStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	metadata, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (`+conversationColumnsPg+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conv.ID, conv.UserID, conv.Title, string(conv.Type), metadata, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return unavailable("create conversation", err)
	}
	return nil
}

// UpdateConversation applies patch and sets updated_at.
func (s *PostgresStore) UpdateConversation(ctx context.Context, userID, conversationID string, patch domain.ConversationPatch, updatedAt time.Time) (*domain.Conversation, error) {
	var updated *domain.Conversation
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		conv, err := pgGetConversation(ctx, tx, userID, conversationID, true)
		if err != nil {
			return err
		}
		applyPatch(conv, patch, updatedAt)

		metadata, err := json.Marshal(conv.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE conversations SET title = $1, metadata = $2, updated_at = $3 WHERE id = $4 AND user_id = $5`,
			conv.Title, metadata, conv.UpdatedAt, conversationID, userID,
		); err != nil {
			return err
		}
		updated = conv
		return nil
	})
	if err != nil {
		return nil, wrapTxErr("update conversation", err)
	}
	return updated, nil
}

// DeleteConversation removes a conversation; messages cascade via the foreign key.
func (s *PostgresStore) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, conversationID, userID)
	if err != nil {
		return unavailable("delete conversation", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	return nil
}

// AddMessage appends a message and refreshes the conversation's updated_at.
func (s *PostgresStore) AddMessage(ctx context.Context, userID string, msg *domain.Message) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		conv, err := pgGetConversation(ctx, tx, userID, msg.ConversationID, true)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, attachments, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			msg.ID, msg.ConversationID, string(msg.Role), msg.Content, nonNil(msg.Attachments), msg.CreatedAt,
		); err != nil {
			return err
		}

		conv.Metadata.MergeAttachments(msg.Attachments)
		metadata, err := json.Marshal(conv.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE conversations SET updated_at = GREATEST(updated_at, $1), metadata = $2 WHERE id = $3`,
			msg.CreatedAt, metadata, msg.ConversationID,
		)
		return err
	})
	if err != nil {
		return wrapTxErr("add message", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *PostgresStore) ListMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, attachments, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, unavailable("query messages", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.Attachments, &msg.CreatedAt); err != nil {
			return nil, unavailable("scan message row", err)
		}
		msg.Role = domain.Role(role)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate messages", err)
	}
	return msgs, nil
}
