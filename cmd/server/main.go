package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/topsis/internal/artifact"
	"github.com/JonMunkholm/topsis/internal/config"
	"github.com/JonMunkholm/topsis/internal/core"
	"github.com/JonMunkholm/topsis/internal/events"
	"github.com/JonMunkholm/topsis/internal/logging"
	"github.com/JonMunkholm/topsis/internal/mail"
	"github.com/JonMunkholm/topsis/internal/metrics"
	"github.com/JonMunkholm/topsis/internal/store"
	"github.com/JonMunkholm/topsis/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"history_enabled", cfg.Database.Enabled(),
		"events_enabled", cfg.Events.Enabled(),
	)
	slog.Debug("effective configuration", "config", cfg.String())

	// Validate already refused to start if credentials are required.
	sender := mail.NewSender(cfg.Mail)
	if sender.Configured() {
		slog.Info("mail delivery enabled", "from", sender.From(), "smtp_host", cfg.Mail.Host)
	} else {
		slog.Warn("EMAIL_USER or EMAIL_PASS not set; results will be computed but not emailed")
	}

	ctx := context.Background()

	artifacts, err := artifact.NewStore(cfg.Artifact.Dir)
	if err != nil {
		slog.Error("failed to prepare artifact directory", "error", err)
		os.Exit(1)
	}
	slog.Info("artifact store ready", "dir", artifacts.Dir(), "retention", cfg.Artifact.Retention)

	m := metrics.New()

	deps := core.Dependencies{
		Mailer:    sender,
		Artifacts: artifacts,
		Limiter:   core.NewCalculationLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		Metrics:   m,
	}

	var opts web.Options
	if cfg.Database.Enabled() {
		runs, err := store.NewPostgresStore(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to open run history", "error", err)
			os.Exit(1)
		}
		defer runs.Close()
		slog.Info("connected to database", "name", store.DatabaseName(cfg.Database.URL))
		deps.Recorder = runs
		opts.Runs = runs
	}

	if cfg.Events.Enabled() {
		publisher, err := events.NewNATSPublisher(ctx, cfg.Events.URL, cfg.Events.SubjectPrefix, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		deps.Publisher = publisher
	}

	service, err := core.NewService(deps, core.ServiceConfig{
		Subject:     cfg.Mail.Subject,
		EventPrefix: cfg.Events.SubjectPrefix,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	opts.Metrics = m
	opts.MailConfigured = sender.Configured()
	server := web.NewServer(cfg, service, opts)

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	janitor := core.NewJanitor(artifacts, core.JanitorConfig{
		Retention: cfg.Artifact.Retention,
		Interval:  cfg.Artifact.SweepInterval,
	}, m)
	go janitor.Run(jobCtx)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		limiter := service.Limiter()
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for calculations to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("calculations did not complete in time", "error", err)
			} else {
				slog.Info("all calculations completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		return
	}
	<-shutdownDone
	slog.Info("server stopped")
}
