// Portfolio assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/portfolio/internal/api"
	"github.com/ashureev/portfolio/internal/chat"
	"github.com/ashureev/portfolio/internal/completion"
	"github.com/ashureev/portfolio/internal/config"
	"github.com/ashureev/portfolio/internal/contact"
	"github.com/ashureev/portfolio/internal/content"
	"github.com/ashureev/portfolio/internal/events"
	"github.com/ashureev/portfolio/internal/identity"
	"github.com/ashureev/portfolio/internal/middleware"
	"github.com/ashureev/portfolio/internal/store"
	"github.com/ashureev/portfolio/internal/stream"
	"github.com/ashureev/portfolio/internal/transcript"
	"github.com/ashureev/portfolio/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "completion_transport", cfg.Completion.Transport)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
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

	site, err := content.Load(cfg.ContentPath)
	if err != nil {
		slog.Warn("Failed to load site content, using defaults", "path", cfg.ContentPath, "error", err)
		site = content.Defaults()
	}
	siteStore := content.NewStore(site)
	if watcher, err := content.NewWatcher(cfg.ContentPath, siteStore, content.DefaultDebounce, logger); err != nil {
		slog.Warn("Site content hot reload disabled", "path", cfg.ContentPath, "error", err)
	} else {
		go watcher.Run(ctx)
	}

	bus := events.NewBus(logger)

	transcripts, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	completer, closeCompleter, err := newCompleter(cfg.Completion, logger)
	if err != nil {
		slog.Error("Failed to initialize completion client", "error", err)
		os.Exit(1)
	}
	defer closeCompleter()

	registry := chat.NewRegistry(chat.RegistryConfig{
		Greeting:    siteStore.Greeting,
		SearchDwell: cfg.Chat.SearchDwell,
		Completer:   completer,
		Observer:    chat.Observers{bus, transcripts},
		OnOpen: func(ctx context.Context, visitorID string) {
			if err := repo.MarkInteracted(ctx, visitorID, time.Now()); err != nil {
				slog.Warn("Failed to record chat interaction", "visitor_id", visitorID, "error", err)
			}
		},
		Logger: logger,
	})
	defer registry.CloseAll()

	contactSvc := contact.NewService(contact.Config{
		GenerateURL:    cfg.Email.GenerateURL,
		SendURL:        cfg.Email.SendURL,
		Timeout:        cfg.Email.Timeout,
		BannerDwell:    cfg.Email.BannerDwell,
		BannerCollapse: cfg.Email.BannerCollapse,
	}, repo, bus, logger)
	defer contactSvc.Close()

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	conns := stream.NewConnManager()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, siteStore)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second, func() map[string]int {
		return map[string]int{
			"chat_sessions": registry.Len(),
			"event_streams": conns.Count(),
		}
	})
	chatHandler := api.NewChatHandler(registry, limiter, cfg.Completion.Timeout)
	contactHandler := api.NewContactHandler(contactSvc, siteStore, repo)
	wsHandler := stream.NewHandler(bus, conns, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	baseHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	contactHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/events", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Websocket streams are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start background workers.
	chat.StartSweeper(ctx, registry, cfg.Chat.SessionTTL, cfg.Chat.SweepInterval)
	go limiter.Run(ctx)
	go pruneVisitors(ctx, repo, cfg.Chat.VisitorTTL)

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
	conns.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped successfully")
}

func newCompleter(cfg config.CompletionConfig, logger *slog.Logger) (chat.Completer, func(), error) {
	if cfg.Transport == config.TransportGRPC {
		grpcCfg := completion.DefaultGrpcClientConfig()
		grpcCfg.Address = cfg.Addr
		grpcCfg.RequestTimeout = cfg.Timeout

		slog.Info("Connecting to completion service via gRPC", "address", cfg.Addr)
		client, err := completion.NewGrpcClient(grpcCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}

	slog.Info("Using HTTP completion service", "url", cfg.URL)
	return completion.NewHTTPClient(cfg.URL, cfg.Timeout, logger), func() {}, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

// pruneVisitors deletes visitors who never opened the chat and have not been
// seen within ttl.
func pruneVisitors(ctx context.Context, repo store.Repository, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteStaleVisitors(ctx, ttl)
			if err != nil {
				slog.Warn("Failed to prune stale visitors", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("Stale visitors pruned", "deleted", deleted)
			}
		}
	}
}
