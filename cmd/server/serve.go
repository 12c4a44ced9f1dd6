package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/ashureev/portfolio/internal/api"
	"github.com/ashureev/portfolio/internal/chat"
	"github.com/ashureev/portfolio/internal/health"
	"github.com/ashureev/portfolio/internal/identity"
	"github.com/ashureev/portfolio/internal/metrics"
	"github.com/ashureev/portfolio/internal/middleware"
	"github.com/ashureev/portfolio/internal/monitor"
	"github.com/ashureev/portfolio/internal/render"
	"github.com/ashureev/portfolio/web"
)

const healthPingInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP, WebSocket and gRPC health servers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	indexed, err := a.catalog.LoadIndex(ctx)
	if err != nil {
		return fmt.Errorf("load similarity index: %w", err)
	}
	logger.Info("Similarity index loaded", "projects", indexed)

	// Chat session protocol.
	scheduler := chat.NewScheduler()
	defer scheduler.Stop()
	registry := chat.NewRegistry(scheduler)
	chatSvc := chat.NewService(a.gateway, registry, scheduler, chat.Config{
		HistoryLimit:           cfg.Chat.HistoryLimit,
		ReplyTimeout:           cfg.AI.ReplyTimeout,
		SuggestionAfterChat:    cfg.Chat.SuggestionAfterChat,
		SuggestionAfterContext: cfg.Chat.SuggestionAfterContext,
	}, logger)
	chatSvc.SetObserver(a.metrics)

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
		MaxOpenFiles:  cfg.ConversationLog.MaxOpenFiles,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			logger.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()
	chatSvc.SetConversationLogger(conversationLogger)

	wsHandler := chat.NewWebSocketHandler(chatSvc, registry, chat.WebSocketOptions{
		AllowedOrigin:     cfg.FrontendURL,
		IsDev:             cfg.IsDevelopment(),
		QueueSize:         cfg.Chat.QueueSize,
		MessagesPerSecond: cfg.Chat.MessagesPerSecond,
		MessageBurst:      cfg.Chat.MessageBurst,
	})

	// HTTP handlers.
	projectHandler := api.NewProjectHandler(a.catalog, render.NewMarkdown(), logger)
	chatHandler, err := api.NewChatHandler(a.gateway, a.catalog, api.ChatOptions{
		HistoryLimit: cfg.Chat.HistoryLimit,
		Sessions:     cfg.Chat.RESTSessions,
		ReplyTimeout: cfg.AI.ReplyTimeout,
	}, logger)
	if err != nil {
		return err
	}
	systemHandler := api.NewSystemHandler(a.repo, a.prober, api.SystemOptions{
		ActiveConnections: registry.Len,
		IndexedProjects:   a.catalog.IndexedCount,
	}, logger)

	admin := middleware.AdminOnly(cfg.AdminToken)
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin endpoints are disabled")
	}
	limit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	systemHandler.RegisterRoutes(r, admin)
	projectHandler.RegisterRoutes(r, admin)
	chatHandler.RegisterRoutes(r, limit, admin)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	monitor.StartUsageWorker(ctx, a.repo, cfg.UsageMonitorInterval, a.metrics)

	var healthSrv *health.Server
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			return fmt.Errorf("listen for gRPC health: %w", err)
		}
		healthSrv = health.NewServer(a.repo, healthPingInterval, logger)
		healthSrv.Watch(ctx)
		go func() {
			if err := healthSrv.Serve(lis); err != nil {
				logger.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthSrv != nil {
		healthSrv.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
