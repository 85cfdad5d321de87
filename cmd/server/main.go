package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contactrelay/contactrelay/internal/config"
	"github.com/contactrelay/contactrelay/internal/contact"
	"github.com/contactrelay/contactrelay/internal/email"
	"github.com/contactrelay/contactrelay/internal/handler"
	"github.com/contactrelay/contactrelay/internal/logger"
	"github.com/contactrelay/contactrelay/internal/middleware"
	"github.com/contactrelay/contactrelay/internal/ratelimit"
	"github.com/contactrelay/contactrelay/internal/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", cfg.App.Version).Msgf("starting %s", cfg.App.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Mail delivery
	dispatcher, err := email.NewDispatcherFromConfig(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mail transport")
	}
	log.Info().
		Str("transport", dispatcher.Transport().Name()).
		Str("spool_dir", cfg.Mail.SpoolDir).
		Msg("mail dispatcher initialized")

	// Rate limiter and its sweeper
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.Max, cfg.RateLimit.Window)
		sweepLog := log.WithComponent("ratelimit")
		go limiter.Run(ctx, func(removed int) {
			sweepLog.Debug().Int("removed", removed).Msg("rate limit sweep")
		})
		log.Info().
			Int("max", cfg.RateLimit.Max).
			Dur("window", cfg.RateLimit.Window).
			Msg("rate limiting enabled")
	}

	// Initialize handlers
	h := handler.New(
		log,
		cfg,
		contact.NewDecoder(cfg.Limits.MaxAttachmentBytes, cfg.Limits.AllowedExtensions),
		contact.NewComposer(cfg.Site.Name, cfg.Site.Tag, cfg.Site.DefaultSubject),
		dispatcher,
	)

	// Initialize middleware
	mw := middleware.New(limiter, log, cfg)

	// Set up router
	r := router.New(h, mw, cfg)

	// Create HTTP server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	stop()

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
