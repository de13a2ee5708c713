// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teamup-labs/chat-platform/internal/config"
	"github.com/teamup-labs/chat-platform/internal/feed"
	"github.com/teamup-labs/chat-platform/internal/handler"
	"github.com/teamup-labs/chat-platform/internal/middleware"
	"github.com/teamup-labs/chat-platform/internal/store"
	"github.com/teamup-labs/chat-platform/pkg/logger"
	"github.com/teamup-labs/chat-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the store
	var st store.Store
	switch cfg.StoreDriver {
	case "memory":
		st = store.NewMemoryStore()
		log.Warn("using in-memory store, data will not survive restarts")
	default:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", zap.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			log.Error("failed to ensure schema", zap.Error(err))
			os.Exit(1)
		}
		st = store.NewPostgresStore(db)
	}

	// Connect the change feed. A failed connection degrades to a
	// fetch-only deployment rather than refusing to start.
	var feedClient *feed.Client
	var publisher *feed.Publisher
	feedClient, err = feed.Connect(feed.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("change feed unavailable, running without realtime updates", zap.Error(err))
		feedClient = nil
	} else {
		defer feedClient.Close()
		publisher = feed.NewPublisher(feedClient)
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(st, feedClient)
	userHandler := handler.NewUserHandler(st, log)
	conversationHandler := handler.NewConversationHandler(st, publisher, log)
	messageHandler := handler.NewMessageHandler(st, publisher, log)
	teamHandler := handler.NewTeamHandler(st, publisher, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/me", userHandler.Me)
		r.Get("/users", userHandler.Batch)
		r.Get("/users/{id}", userHandler.Get)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Patch("/status", conversationHandler.UpdateStatus)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
		})

		r.Route("/teams/{id}", func(r chi.Router) {
			r.Get("/", teamHandler.Get)
			r.Get("/messages", teamHandler.Messages)
			r.Post("/messages", teamHandler.Send)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
