// Package main provides the entry point for the studyletter server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/mark2rocket/ag-studyletter/internal/arxiv"
	"github.com/mark2rocket/ag-studyletter/internal/config"
	"github.com/mark2rocket/ag-studyletter/internal/database"
	"github.com/mark2rocket/ag-studyletter/internal/digest"
	"github.com/mark2rocket/ag-studyletter/internal/llm"
	"github.com/mark2rocket/ag-studyletter/internal/mailer"
	"github.com/mark2rocket/ag-studyletter/internal/observability"
	"github.com/mark2rocket/ag-studyletter/internal/repository"
	"github.com/mark2rocket/ag-studyletter/internal/scheduler"
	httpserver "github.com/mark2rocket/ag-studyletter/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("studyletter server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Create metrics when enabled; nil disables instrumentation everywhere.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("studyletter")
	}

	// Create repositories.
	subsRepo := repository.NewPgSubscriptionRepository(db)
	historyRepo := repository.NewPgHistoryRepository(db)

	// Create the arXiv search client.
	searchClient := arxiv.New(arxiv.Config{
		BaseURL:    cfg.ArXiv.BaseURL,
		Timeout:    cfg.ArXiv.Timeout,
		RateLimit:  cfg.ArXiv.RateLimit,
		MaxResults: cfg.ArXiv.MaxResults,
		UserAgent:  cfg.ArXiv.UserAgent,
	}, logger, metrics)

	// Create the summarizer provider.
	summarizer, err := llm.NewSummarizer(llm.FactoryConfig{
		Provider:   cfg.LLM.Provider,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		Gemini: llm.GeminiConfig{
			APIKey:  cfg.LLM.Gemini.APIKey,
			Model:   cfg.LLM.Gemini.Model,
			BaseURL: cfg.LLM.Gemini.BaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("create summarizer: %w", err)
	}
	logger.Info().
		Str("provider", summarizer.Provider()).
		Str("model", summarizer.Model()).
		Msg("summarizer initialized")

	// Create the SMTP mailer. Fails fast when sender credentials are absent.
	smtpMailer, err := mailer.NewSMTPMailer(mailer.Config{
		Host:           cfg.SMTP.Host,
		Port:           cfg.SMTP.Port,
		SenderEmail:    cfg.SMTP.SenderEmail,
		SenderPassword: cfg.SMTP.SenderPassword,
		Timeout:        cfg.SMTP.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create mailer: %w", err)
	}

	// Create the digest pipeline.
	pipeline := digest.NewPipeline(
		searchClient,
		summarizer,
		smtpMailer,
		historyRepo,
		subsRepo,
		rate.NewLimiter(rate.Limit(cfg.Digest.SummarizeRPS), 1),
		digest.Config{
			RecencyWindow: cfg.Digest.RecencyWindow,
			MaxPapers:     cfg.Digest.MaxPapers,
			SearchResults: cfg.Digest.SearchResults,
		},
		logger,
		metrics,
	)

	// Create the weekly scheduler and register persisted subscriptions.
	weekday, err := cfg.Schedule.ParsedWeekday()
	if err != nil {
		return err
	}
	location, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(pipeline, subsRepo, scheduler.Config{
		Weekday:  weekday,
		Hour:     cfg.Schedule.Hour,
		Minute:   cfg.Schedule.Minute,
		Location: location,
	}, logger, metrics)

	if err := sched.SyncFromStore(ctx); err != nil {
		return fmt.Errorf("load subscriptions into scheduler: %w", err)
	}

	// Create the HTTP REST API server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, pipeline, subsRepo, historyRepo, sched, db, metrics, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Msg("studyletter is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown: drain HTTP first, then stop scheduled jobs.
	logger.Info().Msg("shutting down studyletter")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	sched.Stop()

	logger.Info().Msg("studyletter stopped")
	return nil
}
