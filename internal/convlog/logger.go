// Package convlog writes conversation transcripts as NDJSON files.
package convlog

import (
	"container/list"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	// MaxOpenFiles caps per-conversation handles kept open between writes.
	MaxOpenFiles  int
}

// Event is one transcript line.
type Event struct {
	Timestamp        time.Time `json:"ts"`
	UserID           string    `json:"user_id"`
	ConversationID   string    `json:"conversation_id"`
	ConversationType string    `json:"conversation_type,omitempty"`
	Direction        string    `json:"direction"`
	EventType        string    `json:"event_type"`
	ContentRaw       string    `json:"content_raw,omitempty"`
	Content          string    `json:"content,omitempty"`
	Attachments      []string  `json:"attachments,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Directions and event types used by the message exchange.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	EventUserMessage      = "user_message"
	EventAssistantMessage = "assistant_message"
	EventCompletionError  = "completion_error"
)

// Logger queues events and writes them from a single goroutine. A nil
// *Logger is valid and discards everything.
type Logger struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}

	// files and order are only touched by run, and by Close after run exits.
	files  map[string]*list.Element
	order  *list.List
	global *os.File
}

type openFile struct {
	path string
	f    *os.File
}

// New creates a Logger. When cfg.Enabled is false it returns nil.
func New(cfg Config, logger *slog.Logger) (*Logger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = 64
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &Logger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*list.Element),
		order:  list.New(),
	}

	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

// Log enqueues ev without blocking. Events are dropped when the queue is full.
func (l *Logger) Log(ev Event) {
	if l == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = cleanForReadability(ev.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"user_id", ev.UserID,
			"conversation_id", ev.ConversationID,
			"event_type", ev.EventType,
		)
	}
}

// Close drains the queue and closes all files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	select {
	case <-l.done:
	case <-time.After(5 * time.Second):
		l.logger.Warn("conversation log shutdown timeout", "queue_remaining", len(l.queue))
		return nil
	}

	var firstErr error
	for l.order.Len() > 0 {
		if err := l.evictOldest(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.global != nil {
		if err := l.global.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Logger) run() {
	defer close(l.done)
	for ev := range l.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			l.logger.Warn("failed to encode conversation log event", "error", err)
			continue
		}
		line = append(line, '\n')

		f, err := l.fileFor(ev)
		if err != nil {
			l.logger.Warn("failed to open conversation log", "error", err, "conversation_id", ev.ConversationID)
		} else if _, err := f.Write(line); err != nil {
			l.logger.Warn("failed to write conversation log", "error", err, "conversation_id", ev.ConversationID)
		}

		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *Logger) fileFor(ev Event) (*os.File, error) {
	path := filepath.Join(l.cfg.Dir, safeSegment(ev.UserID), safeSegment(ev.ConversationID)+".ndjson")
	if el, ok := l.files[path]; ok {
		l.order.MoveToFront(el)
		return el.Value.(*openFile).f, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	for l.order.Len() >= l.cfg.MaxOpenFiles {
		if err := l.evictOldest(); err != nil {
			l.logger.Warn("failed to close conversation log", "error", err)
		}
	}
	l.files[path] = l.order.PushFront(&openFile{path: path, f: f})
	return f, nil
}

// evictOldest closes the least recently written file.
func (l *Logger) evictOldest() error {
	el := l.order.Back()
	if el == nil {
		return nil
	}
	of := l.order.Remove(el).(*openFile)
	delete(l.files, of.path)
	return of.f.Close()
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeSegment(s string) string {
	s = unsafeSegment.ReplaceAllString(s, "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}

var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// cleanForReadability strips ANSI escapes and control characters.
func cleanForReadability(raw string) string {
	s := ansiSequence.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
