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
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	httpAdapter "github.com/vendora/realtime-backend/internal/adapters/primary/http"
	mw "github.com/vendora/realtime-backend/internal/adapters/primary/http/middleware"
	"github.com/vendora/realtime-backend/internal/adapters/primary/websocket"
	"github.com/vendora/realtime-backend/internal/adapters/secondary/postgres"
	"github.com/vendora/realtime-backend/internal/auth"
	"github.com/vendora/realtime-backend/internal/config"
	"github.com/vendora/realtime-backend/internal/core/services"
	"github.com/vendora/realtime-backend/internal/infrastructure/logging"
)

// sessionSweepInterval is how often expired session rows are purged.
const sessionSweepInterval = time.Hour

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	// 3. Initialize Database Pool
	ctx := context.Background()
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply database configuration
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.Session.Secret, cfg.Session.TokenTTL)
	hub := websocket.NewHub(logger)
	go hub.Run()

	// 5. Initialize Rate Limiters
	var generalRateLimiter, handshakeRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})

		handshakeRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.HandshakeRPS,
			BurstSize:         cfg.RateLimit.HandshakeBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
		})
	}

	// 6. Dependency Injection (Wiring the Hexagon)

	// Error Handler
	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Session store (Secondary Adapter)
	sessionStore := postgres.NewSessionStore(pool, cfg.Session.Secret)
	go sweepExpiredSessions(ctx, sessionStore, logger)

	// Services (Core)
	eventService := services.NewEventService(hub, logger)

	// Handlers (Primary Adapters)
	eventHandler := httpAdapter.NewEventHandler(eventService, errorHandler, logger)
	presenceHandler := httpAdapter.NewPresenceHandler(hub, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, tokenManager, sessionStore, cfg, logger)
	healthHandler := httpAdapter.NewHealthHandler(pool, hub, cfg.App.Version)

	// 7. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Apply general rate limiting if enabled
	if generalRateLimiter != nil {
		r.Use(generalRateLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	r.Get("/health", healthHandler.HandleReadiness)
	r.Get("/health/live", healthHandler.HandleLiveness)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route with stricter rate limiting
		// (session authentication is handled inside the handler)
		r.Group(func(r chi.Router) {
			if handshakeRateLimiter != nil {
				r.Use(handshakeRateLimiter.Middleware)
			}
			r.Get("/ws", wsHandler.ServeHTTP)
		})

		// Internal endpoints for platform services
		r.Group(func(r chi.Router) {
			r.Use(mw.ServiceAuth(tokenManager))
			r.Post("/events", eventHandler.HandlePublish)
			r.Get("/presence", presenceHandler.HandleList)
			r.Get("/presence/{userID}", presenceHandler.HandleCheck)
		})
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// corsOrigins converts the websocket origin allow-list into CORS origins.
// Wildcard subdomain entries keep their scheme-less form; go-chi/cors
// understands "https://*.vendora.io".
func corsOrigins(cfg *config.Config) []string {
	origins := make([]string, 0, len(cfg.WebSocket.AllowedOrigins))
	for _, origin := range cfg.WebSocket.AllowedOrigins {
		origins = append(origins, "https://"+origin)
	}
	if cfg.IsDevelopment() {
		origins = append(origins, "http://localhost:*")
	}
	return origins
}

// sweepExpiredSessions periodically purges expired session rows.
func sweepExpiredSessions(ctx context.Context, store *postgres.SessionStore, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.DeleteExpired(ctx, time.Now())
			if err != nil {
				logger.Error("session sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("purged expired sessions", "count", deleted)
			}
		}
	}
}
