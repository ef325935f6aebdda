package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DBDriver != DriverSQLite {
		t.Fatalf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.SessionTTL != 168*time.Hour {
		t.Fatalf("SessionTTL = %v, want 168h", cfg.SessionTTL)
	}
	if cfg.AI.RequestTimeout != 90*time.Second {
		t.Fatalf("AI.RequestTimeout = %v, want 90s", cfg.AI.RequestTimeout)
	}
	if cfg.UploadMaxBytes != 10<<20 {
		t.Fatalf("UploadMaxBytes = %d, want 10 MiB", cfg.UploadMaxBytes)
	}
	if !cfg.ConversationLog.Enabled || cfg.ConversationLog.QueueSize != 1000 {
		t.Fatalf("unexpected conversation log config: %+v", cfg.ConversationLog)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:            "8080",
			DBDriver:        DriverSQLite,
			DBPath:          "./data/advisor.db",
			JWTSecret:       strings.Repeat("s", 32),
			SessionTTL:      time.Hour,
			MagicLinkTTL:    time.Minute,
			AI:              AIConfig{Provider: ProviderOpenAI, OpenAIKey: "k", RequestTimeout: time.Second},
			UploadDir:       "./uploads",
			UploadMaxBytes:  1,
			CleanupInterval: time.Minute,
			ConversationLog: ConversationLogConfig{Dir: "./logs", QueueSize: 1, MaxOpenFiles: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, wantErr: "JWT_SECRET"},
		{name: "postgres without url", mutate: func(c *Config) { c.DBDriver = DriverPostgres }, wantErr: "DATABASE_URL"},
		{name: "unknown driver", mutate: func(c *Config) { c.DBDriver = "mysql" }, wantErr: "DB_DRIVER"},
		{name: "remote without url", mutate: func(c *Config) { c.AI.Provider = ProviderRemote }, wantErr: "AI_REMOTE_URL"},
		{name: "openai without key", mutate: func(c *Config) { c.AI.OpenAIKey = "" }, wantErr: "OPENAI_API_KEY"},
		{name: "zero queue", mutate: func(c *Config) { c.ConversationLog.QueueSize = 0 }, wantErr: "QUEUE_SIZE"},
		{name: "zero open files", mutate: func(c *Config) { c.ConversationLog.MaxOpenFiles = 0 }, wantErr: "MAX_OPEN_FILES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		c := Config{LogLevel: in}
		if got := c.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsDevelopment(t *testing.T) {
	if !(&Config{}).IsDevelopment() {
		t.Fatal("empty FRONTEND_URL should be development")
	}
	if (&Config{FrontendURL: "https://advisor.example.com"}).IsDevelopment() {
		t.Fatal("public FRONTEND_URL should not be development")
	}
}
