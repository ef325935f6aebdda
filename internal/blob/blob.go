// Package blob stores uploaded files on the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/google/uuid"
)

// StoredFile describes a saved upload.
type StoredFile struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("file too large")

// Store saves files under a root directory and serves them at baseURL.
type Store struct {
	root     string
	baseURL  string
	maxBytes int64
}

// NewStore creates the root directory if needed.
func NewStore(root, baseURL string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		root:     root,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}, nil
}

var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)
	extPattern   = regexp.MustCompile(`^\.[a-z0-9]{1,9}$`)
)

// Save writes r as a new file owned by owner. Keys have the form owner/uuid.ext.
func (s *Store) Save(ctx context.Context, owner, name, contentType string, r io.Reader) (*StoredFile, error) {
	if !ownerPattern.MatchString(owner) {
		return nil, fmt.Errorf("%w: invalid owner", domain.ErrInvalidInput)
	}
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(name))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := owner + "/" + uuid.NewString() + ext
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create owner dir: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(contextReader{ctx, r}, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}

	return &StoredFile{
		Key:         key,
		Name:        name,
		ContentType: contentType,
		Size:        n,
		URL:         s.baseURL + "/files/" + key,
		CreatedAt:   time.Now(),
	}, nil
}

// Open returns the file stored under key.
func (s *Store) Open(key string) (*os.File, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("file %s: %w", key, domain.ErrNotFound)
	}
	return f, err
}

// KeyFromURL returns the key of the file this store serves at rawURL.
// URLs on other hosts or outside /files/ yield domain.ErrInvalidInput.
func (s *Store) KeyFromURL(rawURL string) (string, error) {
	rest, ok := strings.CutPrefix(rawURL, s.baseURL+"/files/")
	if !ok {
		return "", fmt.Errorf("%w: not an uploaded file url", domain.ErrInvalidInput)
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if _, err := s.resolve(rest); err != nil {
		return "", err
	}
	return rest, nil
}

// OpenURL opens the uploaded file served at rawURL.
func (s *Store) OpenURL(rawURL string) (io.ReadCloser, error) {
	key, err := s.KeyFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	f, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Owner returns the owner segment of key.
func Owner(key string) string {
	owner, _, _ := strings.Cut(key, "/")
	return owner
}

func (s *Store) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean != key || strings.Count(key, "/") != 1 || !ownerPattern.MatchString(Owner(key)) {
		return "", fmt.Errorf("%w: invalid file key", domain.ErrInvalidInput)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
