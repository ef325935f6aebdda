// Career Advisor API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/api"
	"github.com/ashureev/career-advisor/internal/assessment"
	"github.com/ashureev/career-advisor/internal/auth"
	"github.com/ashureev/career-advisor/internal/blob"
	"github.com/ashureev/career-advisor/internal/config"
	"github.com/ashureev/career-advisor/internal/conversation"
	"github.com/ashureev/career-advisor/internal/convlog"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/exchange"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/ashureev/career-advisor/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DBDriver, "ai_provider", cfg.AI.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	blobs, err := blob.NewStore(cfg.UploadDir, cfg.PublicBaseURL, cfg.UploadMaxBytes)
	if err != nil {
		slog.Error("Failed to initialize upload storage", "error", err)
		os.Exit(1)
	}

	provider, err := advisor.New(cfg.AI, blobs)
	if err != nil {
		slog.Error("Failed to initialize AI provider", "error", err)
		os.Exit(1)
	}

	transcript, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
		MaxOpenFiles:  cfg.ConversationLog.MaxOpenFiles,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcript.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	bank, err := assessment.DefaultBank()
	if err != nil {
		slog.Error("Failed to load assessment bank", "error", err)
		os.Exit(1)
	}

	issuer := identity.NewIssuer(cfg.JWTSecret, cfg.SessionTTL, repo)
	authSvc := auth.NewService(repo, issuer, auth.LogMailer{}, auth.NewEvents(), auth.Options{
		BaseURL:      cfg.PublicBaseURL,
		MagicLinkTTL: cfg.MagicLinkTTL,
		Providers:    oauthProviders(cfg),
	})
	unsubscribe := authSvc.Events().Subscribe(func(ev auth.Event) {
		slog.Info("Auth state changed", "event", ev.Kind, "user_id", ev.UserID, "method", ev.Method)
	})
	defer unsubscribe()

	auth.NewJanitor(repo, cfg.CleanupInterval).Start(ctx)

	router := api.NewRouter(api.Services{
		Repo:           repo,
		Verifier:       issuer,
		Auth:           authSvc,
		Conversations:  conversation.NewService(repo),
		Exchange:       exchange.NewService(repo, provider, transcript),
		AI:             provider,
		Bank:           bank,
		Blobs:          blobs,
		UploadMaxBytes: cfg.UploadMaxBytes,
		FrontendURL:    cfg.FrontendURL,
		IsDev:          cfg.IsDevelopment(),
		AllowedOrigins: allowedOrigins(cfg.FrontendURL),
		Client: api.ClientConfig{
			AIProvider:        cfg.AI.Provider,
			OAuthProviders:    authSvc.Providers(),
			ConversationTypes: conversationTypes(),
			UploadMaxBytes:    cfg.UploadMaxBytes,
		},
		SPA:            web.SPAHandler(),
		RequestLogging: true,
	})

	// Completions can take most of AI_REQUEST_TIMEOUT.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AI.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}

func oauthProviders(cfg *config.Config) []*auth.OAuthProvider {
	var providers []*auth.OAuthProvider
	callback := func(name string) string {
		return cfg.PublicBaseURL + "/api/auth/oauth/" + name + "/callback"
	}
	if cfg.OAuthEnabled("google") {
		providers = append(providers, auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, callback("google")))
	}
	if cfg.OAuthEnabled("github") {
		providers = append(providers, auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, callback("github")))
	}
	return providers
}

// allowedOrigins restricts CORS to the frontend's origin when it is hosted
// separately.
func allowedOrigins(frontendURL string) []string {
	u, err := url.Parse(frontendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []string{"*"}
	}
	return []string{u.Scheme + "://" + u.Host}
}

func conversationTypes() []domain.ConversationType {
	return append([]domain.ConversationType(nil), domain.ConversationTypes...)
}
