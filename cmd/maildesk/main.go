package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ormea-systems/maildesk/internal/auth"
	"github.com/ormea-systems/maildesk/internal/config"
	"github.com/ormea-systems/maildesk/internal/correspondent"
	"github.com/ormea-systems/maildesk/internal/database"
	"github.com/ormea-systems/maildesk/internal/importer"
	"github.com/ormea-systems/maildesk/internal/mail"
	"github.com/ormea-systems/maildesk/internal/ratelimit"
	"github.com/ormea-systems/maildesk/internal/reference"
	"github.com/ormea-systems/maildesk/internal/servicedir"
	"github.com/ormea-systems/maildesk/internal/stats"
	"github.com/ormea-systems/maildesk/internal/store/postgres"
	"github.com/ormea-systems/maildesk/internal/thread"
	"github.com/ormea-systems/maildesk/internal/web"
	"github.com/ormea-systems/maildesk/internal/web/handlers"
	"github.com/ormea-systems/maildesk/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Database
	db, err := postgres.NewDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Migrations
	if err := database.RunMigrations(migrations.FS, cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Stores
	userStore := postgres.NewUserStore(db)
	sessionStore := postgres.NewSessionStore(db)
	correspondentStore := postgres.NewCorrespondentStore(db)
	serviceStore := postgres.NewServiceStore(db)
	mailStore := postgres.NewMailStore(db)
	statsStore := postgres.NewStatsStore(db)

	// Services
	policy := auth.NewPolicy()
	authService := auth.NewService(userStore, sessionStore, policy, cfg.SessionMaxAge)
	correspondentService := correspondent.NewService(correspondentStore, mailStore)
	serviceDirectory := servicedir.NewService(serviceStore)
	refs := reference.NewGenerator(mailStore)
	threads := thread.NewResolver(mailStore)
	mailService := mail.NewService(mailStore, correspondentStore, serviceStore, userStore, refs, policy, threads)
	statsService := stats.NewService(statsStore)
	importService := importer.NewService(correspondentService, mailService, serviceStore, cfg.ImportDefaultServiceID)

	// Rate limiter
	limiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.SecureCookies, cfg.SessionMaxAge)
	userHandler := handlers.NewUserHandler(authService)
	serviceHandler := handlers.NewServiceHandler(serviceDirectory)
	correspondentHandler := handlers.NewCorrespondentHandler(correspondentService)
	mailHandler := handlers.NewMailHandler(mailService, cfg.MaxAttachmentBytes)
	statsHandler := handlers.NewStatsHandler(statsService)
	importHandler := handlers.NewImportHandler(importService)

	// Router
	router := web.NewRouter(web.RouterDeps{
		AuthHandler:          authHandler,
		UserHandler:          userHandler,
		ServiceHandler:       serviceHandler,
		CorrespondentHandler: correspondentHandler,
		MailHandler:          mailHandler,
		StatsHandler:         statsHandler,
		ImportHandler:        importHandler,
		AuthService:          authService,
		Limiter:              limiter,
	})

	// Session cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := sessionStore.DeleteExpiredSessions(context.Background()); err != nil {
				slog.Error("failed to clean up expired sessions", "error", err)
			}
		}
	}()

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("maildesk starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
