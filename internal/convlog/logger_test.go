package convlog

import (
	"container/list"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesPerConversationNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Direction:      DirectionInbound,
		EventType:      EventUserMessage,
		ContentRaw:     "How do I ask for a raise?",
	})

	path := filepath.Join(dir, "user-1", "conv-1.ndjson")
	line := waitForLogLine(t, path)
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "How do I ask for a raise?" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content == "" {
		t.Fatal("expected cleaned content to be populated")
	}
}

func TestLoggerGlobalFileAndClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "all.ndjson")
	logger, err := New(Config{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Log(Event{UserID: "u", ConversationID: "a", EventType: EventUserMessage, ContentRaw: "one"})
	logger.Log(Event{UserID: "u", ConversationID: "b", EventType: EventUserMessage, ContentRaw: "two"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	logger.Log(Event{UserID: "u", ConversationID: "a", ContentRaw: "after close"})

	data, err := os.ReadFile(global)
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 2 {
		t.Fatalf("global log lines = %d, want 2", n)
	}
}

func TestDisabledLoggerIsNil(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger != nil {
		t.Fatal("expected nil logger when disabled")
	}
	logger.Log(Event{ContentRaw: "ignored"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close on nil logger: %v", err)
	}
}

func TestSafeSegment(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"user-1":        "user-1",
		"../etc/passwd": "_etc_passwd",
		"":              "unknown",
		"a b":           "a_b",
	}
	for in, want := range cases {
		if got := safeSegment(in); got != want {
			t.Errorf("safeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain\x07"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if clean != "error plain" {
		t.Fatalf("unexpected clean text: %q", clean)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}

func TestLoggerCapsOpenFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{
		Enabled:      true,
		Dir:          dir,
		QueueSize:    1024,
		MaxOpenFiles: 8,
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 500; i++ {
		logger.Log(Event{UserID: "u", ConversationID: fmt.Sprintf("conv-%d", i), EventType: EventUserMessage, ContentRaw: "hi"})
	}
	logger.Log(Event{UserID: "u", ConversationID: "conv-0", EventType: EventAssistantMessage, ContentRaw: "again"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(logger.files) != 0 || logger.order.Len() != 0 {
		t.Fatalf("files left open after Close: %d", len(logger.files))
	}
	entries, err := os.ReadDir(filepath.Join(dir, "u"))
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) != 500 {
		t.Fatalf("log files = %d, want 500", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, "u", "conv-0.ndjson"))
	if err != nil {
		t.Fatalf("read reopened log: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 2 {
		t.Fatalf("reopened log lines = %d, want 2", n)
	}
}

func TestFileForEvictsLeastRecentlyWritten(t *testing.T) {
	t.Parallel()

	l := &Logger{
		cfg:    Config{Dir: t.TempDir(), MaxOpenFiles: 2},
		logger: slog.Default(),
		files:  make(map[string]*list.Element),
		order:  list.New(),
	}
	t.Cleanup(func() {
		for l.order.Len() > 0 {
			_ = l.evictOldest()
		}
	})

	open := func(conv string) {
		if _, err := l.fileFor(Event{UserID: "u", ConversationID: conv}); err != nil {
			t.Fatalf("fileFor(%s): %v", conv, err)
		}
		if len(l.files) > 2 {
			t.Fatalf("open files = %d, want <= 2", len(l.files))
		}
	}
	open("a")
	open("b")
	open("a")
	open("c")

	if _, ok := l.files[filepath.Join(l.cfg.Dir, "u", "b.ndjson")]; ok {
		t.Fatal("expected b to be evicted as least recently written")
	}
	if _, ok := l.files[filepath.Join(l.cfg.Dir, "u", "a.ndjson")]; !ok {
		t.Fatal("expected a to stay open")
	}
}
