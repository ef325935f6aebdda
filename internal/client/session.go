package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
)

// SessionProvider is the client-side session store. It is loaded once from
// disk and every change is persisted and broadcast to subscribers.
type SessionProvider struct {
	path string
	now  func() time.Time

	mu          sync.Mutex
	session     *domain.Session
	nextID      int
	subscribers map[int]func(*domain.Session)
}

// DefaultSessionPath returns $XDG_CONFIG_HOME/career-advisor/session.json.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "career-advisor", "session.json"), nil
}

// LoadSessionProvider reads the persisted session at path. A missing,
// unreadable or expired session file yields a signed-out provider.
func LoadSessionProvider(path string) *SessionProvider {
	p := &SessionProvider{
		path:        path,
		now:         time.Now,
		subscribers: make(map[int]func(*domain.Session)),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read session file", "path", path, "error", err)
		}
		return p
	}
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("ignoring corrupt session file", "path", path, "error", err)
		return p
	}
	if s.Token != "" && s.Valid(p.now()) {
		p.session = &s
	}
	return p
}

// Current returns the signed-in session, or nil. Expired sessions read as nil.
func (p *SessionProvider) Current() *domain.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil || !p.session.Valid(p.now()) {
		return nil
	}
	s := *p.session
	return &s
}

// Token returns the current session token, or "".
func (p *SessionProvider) Token() string {
	if s := p.Current(); s != nil {
		return s.Token
	}
	return ""
}

// Set replaces the session, persists it and notifies subscribers.
func (p *SessionProvider) Set(session *domain.Session) error {
	p.mu.Lock()
	if err := p.persistLocked(session); err != nil {
		p.mu.Unlock()
		return err
	}
	if session != nil {
		s := *session
		p.session = &s
	} else {
		p.session = nil
	}
	fns := p.snapshotLocked()
	p.mu.Unlock()

	for _, fn := range fns {
		fn(session)
	}
	return nil
}

// Clear signs out locally.
func (p *SessionProvider) Clear() error {
	return p.Set(nil)
}

// Subscribe registers fn for every session change.
func (p *SessionProvider) Subscribe(fn func(*domain.Session)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
		})
	}
}

func (p *SessionProvider) snapshotLocked() []func(*domain.Session) {
	fns := make([]func(*domain.Session), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	return fns
}

// persistLocked writes session atomically, or removes the file for nil.
func (p *SessionProvider) persistLocked(session *domain.Session) error {
	if p.path == "" {
		return nil
	}
	if session == nil {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
