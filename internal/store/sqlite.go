package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	busyRetries   = 3
	busyBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL for concurrent readers; foreign keys so message rows follow their
	// conversation. Transactions begin immediate so read-modify-write
	// sequences hold the write lock from their first read.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS magic_links (
		token_hash TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		used_at INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS revoked_tokens (
		token_id TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		full_name TEXT NOT NULL DEFAULT '',
		headline TEXT NOT NULL DEFAULT '',
		target_role TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		skills_json TEXT NOT NULL DEFAULT '[]',
		resume_text TEXT NOT NULL DEFAULT '',
		resume_url TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		type TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		attachments_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// exec runs a write, retrying while SQLite reports the database as busy.
func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := shared.RetryOnConflict(ctx, busyRetries, busyBaseDelay, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

// inTx runs fn in a transaction, retrying the whole transaction on busy errors.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return shared.RetryOnConflict(ctx, busyRetries, busyBaseDelay, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, email, password_hash, provider, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, string(user.Provider),
		user.CreatedAt.UnixMilli(), user.UpdatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %s: %w", user.Email, domain.ErrConflict)
	}
	if err != nil {
		return unavailable("create user", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, userID)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `WHERE email = ?`, domain.NormalizeEmail(email))
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT id, email, password_hash, provider, created_at, updated_at FROM users ` + where

	var user domain.User
	var provider string
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &provider, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("scan user row", err)
	}

	user.Provider = domain.AuthProvider(provider)
	user.CreatedAt = time.UnixMilli(createdAt)
	user.UpdatedAt = time.UnixMilli(updatedAt)
	return &user, nil
}

// CreateMagicLink stores a pending magic link.
func (s *SQLiteStore) CreateMagicLink(ctx context.Context, link *domain.MagicLink) error {
	query := `INSERT INTO magic_links (token_hash, email, expires_at, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.exec(ctx, query,
		link.TokenHash, link.Email, link.ExpiresAt.UnixMilli(), link.CreatedAt.UnixMilli(),
	); err != nil {
		return unavailable("create magic link", err)
	}
	return nil
}

// ConsumeMagicLink marks a usable link as used and returns it.
func (s *SQLiteStore) ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (*domain.MagicLink, error) {
	query := `
	UPDATE magic_links SET used_at = ?
	WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?
	RETURNING email, expires_at, created_at`

	var link domain.MagicLink
	var expiresAt, createdAt int64
	err := shared.RetryOnConflict(ctx, busyRetries, busyBaseDelay, func() error {
		return s.db.QueryRowContext(ctx, query, now.UnixMilli(), tokenHash, now.UnixMilli()).
			Scan(&link.Email, &expiresAt, &createdAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenExpired
	}
	if err != nil {
		return nil, unavailable("consume magic link", err)
	}

	used := now
	link.TokenHash = tokenHash
	link.ExpiresAt = time.UnixMilli(expiresAt)
	link.CreatedAt = time.UnixMilli(createdAt)
	link.UsedAt = &used
	return &link, nil
}

// RevokeToken records a signed-out token id.
func (s *SQLiteStore) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	query := `INSERT INTO revoked_tokens (token_id, expires_at) VALUES (?, ?) ON CONFLICT(token_id) DO NOTHING`
	if _, err := s.exec(ctx, query, tokenID, expiresAt.UnixMilli()); err != nil {
		return unavailable("revoke token", err)
	}
	return nil
}

// IsTokenRevoked reports whether the token id was signed out.
func (s *SQLiteStore) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM revoked_tokens WHERE token_id = ?`, tokenID).Scan(&n)
	if err != nil {
		return false, unavailable("check revoked token", err)
	}
	return n > 0, nil
}

// PurgeExpired removes revoked tokens and magic links that can no longer matter.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, query := range []string{
		`DELETE FROM revoked_tokens WHERE expires_at <= ?`,
		`DELETE FROM magic_links WHERE expires_at <= ?`,
	} {
		result, err := s.exec(ctx, query, now.UnixMilli())
		if err != nil {
			return total, unavailable("purge expired", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, unavailable("purge rows affected", err)
		}
		total += n
	}
	return total, nil
}

// GetProfile retrieves a user's profile.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT user_id, full_name, headline, target_role, location,
		       skills_json, resume_text, resume_url, updated_at
		FROM profiles WHERE user_id = ?`

	var p domain.Profile
	var skillsJSON string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.FullName, &p.Headline, &p.TargetRole, &p.Location,
		&skillsJSON, &p.ResumeText, &p.ResumeURL, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("scan profile", err)
	}
	if err := decodeJSON(skillsJSON, &p.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

// UpsertProfile creates or replaces a user's profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	query := `
	INSERT INTO profiles (user_id, full_name, headline, target_role, location, skills_json, resume_text, resume_url, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		full_name = excluded.full_name,
		headline = excluded.headline,
		target_role = excluded.target_role,
		location = excluded.location,
		skills_json = excluded.skills_json,
		resume_text = excluded.resume_text,
		resume_url = excluded.resume_url,
		updated_at = excluded.updated_at`

	skills, err := encodeJSON(nonNil(p.Skills))
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	if _, err := s.exec(ctx, query,
		p.UserID, p.FullName, p.Headline, p.TargetRole, p.Location,
		skills, p.ResumeText, p.ResumeURL, p.UpdatedAt.UnixMilli(),
	); err != nil {
		return unavailable("upsert profile", err)
	}
	return nil
}

const conversationColumns = `id, user_id, title, type, metadata_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var convType, metadataJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &convType, &metadataJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(metadataJSON, &conv.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	conv.Type = domain.ConversationType(convType)
	conv.CreatedAt = time.UnixMilli(createdAt)
	conv.UpdatedAt = time.UnixMilli(updatedAt)
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE user_id = ? ORDER BY updated_at DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, unavailable("query conversations", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	convs := []domain.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
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
func (s *SQLiteStore) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	return getConversation(ctx, s.db, userID, conversationID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getConversation(ctx context.Context, q queryRower, userID, conversationID string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ? AND user_id = ?`
	conv, err := scanConversation(q.QueryRowContext(ctx, query, conversationID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get conversation", err)
	}
	return conv, nil
}

// CreateConversation inserts a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	metadata, err := encodeJSON(conv.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `INSERT INTO conversations (` + conversationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.exec(ctx, query,
		conv.ID, conv.UserID, conv.Title, string(conv.Type), metadata,
		conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli(),
	); err != nil {
		return unavailable("create conversation", err)
	}
	return nil
}

// UpdateConversation applies patch and sets updated_at.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, userID, conversationID string, patch domain.ConversationPatch, updatedAt time.Time) (*domain.Conversation, error) {
	var updated *domain.Conversation
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		conv, err := getConversation(ctx, tx, userID, conversationID)
		if err != nil {
			return err
		}
		applyPatch(conv, patch, updatedAt)

		metadata, err := encodeJSON(conv.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET title = ?, metadata_json = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			conv.Title, metadata, conv.UpdatedAt.UnixMilli(), conversationID, userID,
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

// DeleteConversation removes a conversation and all its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE id = ? AND user_id = ?)`,
			conversationID, userID,
		); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ? AND user_id = ?`, conversationID, userID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return wrapTxErr("delete conversation", err)
	}
	return nil
}

// AddMessage appends a message and refreshes the conversation's updated_at.
func (s *SQLiteStore) AddMessage(ctx context.Context, userID string, msg *domain.Message) error {
	attachments, err := encodeJSON(nonNil(msg.Attachments))
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		conv, err := getConversation(ctx, tx, userID, msg.ConversationID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, attachments_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, string(msg.Role), msg.Content, attachments, msg.CreatedAt.UnixMilli(),
		); err != nil {
			return err
		}

		conv.Metadata.MergeAttachments(msg.Attachments)
		metadata, err := encodeJSON(conv.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = MAX(updated_at, ?), metadata_json = ? WHERE id = ?`,
			msg.CreatedAt.UnixMilli(), metadata, msg.ConversationID,
		)
		return err
	})
	if err != nil {
		return wrapTxErr("add message", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	query := `SELECT id, conversation_id, role, content, attachments_json, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, seq ASC`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, unavailable("query messages", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	msgs := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role, attachmentsJSON string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &attachmentsJSON, &createdAt); err != nil {
			return nil, unavailable("scan message row", err)
		}
		if err := decodeJSON(attachmentsJSON, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate messages", err)
	}
	return msgs, nil
}
