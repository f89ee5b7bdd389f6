// Portfolio chat server.
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

	"github.com/ashureev/portfolio/internal/api"
	"github.com/ashureev/portfolio/internal/chat"
	"github.com/ashureev/portfolio/internal/config"
	"github.com/ashureev/portfolio/internal/identity"
	"github.com/ashureev/portfolio/internal/llm"
	"github.com/ashureev/portfolio/internal/middleware"
	"github.com/ashureev/portfolio/internal/observability"
	"github.com/ashureev/portfolio/internal/profile"
	"github.com/ashureev/portfolio/internal/ratelimit"
	"github.com/ashureev/portfolio/internal/validation"
	"github.com/ashureev/portfolio/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.LLM.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics {
		metrics = observability.NewMetrics()
	}

	limiter := ratelimit.New(
		ratelimit.WithLimit(cfg.RateLimit.RequestsPerWindow),
		ratelimit.WithWindow(cfg.RateLimit.Window),
		ratelimit.WithBurstInterval(cfg.RateLimit.BurstInterval),
		ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval),
		ratelimit.WithLogger(logger),
		ratelimit.WithSweepHook(func(_, remaining int) {
			metrics.LimiterEntries(remaining)
		}),
	)
	limiter.Start(ctx)
	defer limiter.Stop()
	slog.Info("Rate limiter started",
		"limit", cfg.RateLimit.RequestsPerWindow,
		"window", cfg.RateLimit.Window,
		"sweep_interval", cfg.RateLimit.SweepInterval)

	var profiles profile.Source = profile.Static{P: profile.Fallback()}
	if cfg.ProfilePath != "" {
		profiles = profile.NewFileSource(cfg.ProfilePath)
		if _, err := profiles.Profile(ctx); err != nil {
			slog.Warn("Profile not readable, using fallback until it is", "path", cfg.ProfilePath, "error", err)
		}
	}

	provider := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: float32(cfg.LLM.Temperature),
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Path:      cfg.ConversationLog.Path,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	validator := validation.New(validation.WithMaxLength(validation.DefaultMaxLength))

	chatHandler := chat.NewHandler(chat.Deps{
		Limiter:         limiter,
		Validator:       validator,
		Profiles:        profiles,
		Provider:        provider,
		Metrics:         metrics,
		ConversationLog: conversationLogger,
		Logger:          logger,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		AllowedOrigins:  cfg.CORSOrigins,
	})
	healthHandler := api.NewHealthHandler(profiles, provider.Model(), limiter.Len, api.ClientLimits{
		MaxMessageLength: validator.MaxLength(),
		MaxMessages:      validation.DefaultMaxMessages,
		RateLimit:        limiter.Limit(),
		RateWindowSecs:   int(cfg.RateLimit.Window / time.Second),
	})
	healthHandler.SetQuota(func(r *http.Request) ratelimit.Decision {
		return limiter.Peek(identity.ClientIdentity(r))
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	healthHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Streaming replies can outlive any fixed write deadline.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

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
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
