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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flocknet/messaging-platform/internal/chat"
	"github.com/flocknet/messaging-platform/internal/config"
	"github.com/flocknet/messaging-platform/internal/directory"
	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/handler"
	"github.com/flocknet/messaging-platform/internal/middleware"
	natsclient "github.com/flocknet/messaging-platform/internal/nats"
	"github.com/flocknet/messaging-platform/pkg/logger"
	"github.com/flocknet/messaging-platform/pkg/tracing"
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
		tp, err := tracing.InitTracer(ctx, "messaging-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS. The server stays up without it: committed chat
	// events and typing indicators are degraded, everything else works.
	var events chat.EventSink
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("failed to connect to NATS, event fan-out disabled", zap.Error(err))
		natsClient = nil
	} else {
		defer natsClient.Close()

		publisher := natsclient.NewEventPublisher(natsClient)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		events = publisher
	}

	// In-memory document store. Swap for a persistent docstore.Store
	// implementation in production.
	store := docstore.NewMemory()
	dir := directory.NewStoreDirectory(store)

	// Initialize services
	sessions := chat.NewSessions(store, cfg.MessageWindowSize, log)
	chatSvc := chat.NewService(store, dir, events, sessions, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	conversationHandler := handler.NewConversationHandler(chatSvc, sessions, log)
	messageHandler := handler.NewMessageHandler(chatSvc, sessions, store, log)
	streamHandler := handler.NewStreamHandler(chatSvc, sessions, messageHandler, natsClient, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)
			r.Get("/stream", streamHandler.Conversations)
			r.Get("/requests", conversationHandler.Requests)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", conversationHandler.Delete)

				// Request gate
				r.Post("/accept", conversationHandler.Accept)
				r.Post("/decline", conversationHandler.Decline)
				r.Post("/request-read", conversationHandler.MarkRequestRead)

				// Conversation-level mutations
				r.Post("/pin", conversationHandler.Pin)
				r.Post("/unpin", conversationHandler.Unpin)
				r.Post("/mute", conversationHandler.Mute)
				r.Post("/unmute", conversationHandler.Unmute)
				r.Post("/archive", conversationHandler.Archive)
				r.Post("/unarchive", conversationHandler.Unarchive)
				r.Post("/report", conversationHandler.Report)

				// Messages
				r.Get("/messages", messageHandler.Window)
				r.Post("/messages", messageHandler.Send)
				r.Post("/messages/older", messageHandler.LoadOlder)
				r.Post("/close", messageHandler.Close)
				r.Post("/read", messageHandler.MarkRead)
				r.Get("/stream", streamHandler.Messages)

				// Typing indicators
				r.Get("/typing", streamHandler.Typing)
				r.Post("/typing", streamHandler.PublishTyping)

				// Message-level operations
				r.Route("/messages/{messageID}", func(r chi.Router) {
					r.Put("/", messageHandler.Edit)
					r.Delete("/", messageHandler.Delete)
					r.Post("/star", messageHandler.Star)
					r.Post("/unstar", messageHandler.Unstar)
					r.Post("/pin", messageHandler.Pin)
					r.Post("/unpin", messageHandler.Unpin)
					r.Post("/reactions", messageHandler.React)
					r.Delete("/reactions", messageHandler.Unreact)
				})
			})
		})
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
