package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jsvoboda/webshare_downloader/internal/cleanup"
	"github.com/jsvoboda/webshare_downloader/internal/config"
	"github.com/jsvoboda/webshare_downloader/internal/download"
	"github.com/jsvoboda/webshare_downloader/internal/http/rest"
	"github.com/jsvoboda/webshare_downloader/internal/logctx"
	"github.com/jsvoboda/webshare_downloader/internal/notifier"
	"github.com/jsvoboda/webshare_downloader/internal/storage/sqlite"
	"github.com/jsvoboda/webshare_downloader/internal/telemetry"
	"github.com/jsvoboda/webshare_downloader/internal/ws"
	"github.com/jsvoboda/webshare_downloader/web"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("webshare downloader starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && err != context.Canceled {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  "webshare_downloader",
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedDownloadRepository(database, tel)

	// =========================================================================
	// Start Webshare Client
	wsClient := ws.NewInstrumentedClient(ws.NewClient(cfg.WebshareBaseURL), tel)

	// =========================================================================
	// Start Download Registry and Manager
	registry := download.NewRegistry(cfg.TaskRetention)
	registry.StartSweeper(ctx, cfg.SweepInterval)

	manager := download.NewManager(registry, wsClient, cfg.DownloadPath, cfg.MaxParallel, repo, tel)
	defer manager.Close()

	handler := rest.NewHandler(
		wsClient,
		manager,
		registry,
		cfg.DownloadPath,
		rest.Credentials{Username: cfg.WebshareUsername, Password: cfg.WebsharePassword},
		tel,
		web.Handler(),
	)

	autoLogin(ctx, cfg, wsClient, handler)

	// =========================================================================
	// Start Notification
	setupNotifications(ctx, manager, tel, cfg)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, handler, tel, cfg)

	go func() {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("serving downloads...",
		"download_path", cfg.DownloadPath,
		"max_parallel", cfg.MaxParallel,
		"task_retention", cfg.TaskRetention.String(),
		"keep_downloaded_for", cfg.KeepDownloadedFor.String(),
	)

	// =========================================================================
	// Start Cleanup
	if cfg.KeepDownloadedFor > 0 {
		setupCleanup(ctx, repo, tel, cfg)
	}

	// =========================================================================
	// Wait for shutdown
	select {
	case err := <-serverErrors:
		tel.RecordSystemError("http_server", "serve")

		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return ctx.Err()
	}
}

// autoLogin attempts the startup login when credentials are configured and
// records the outcome for /api/status. A failure is not fatal; the operator
// can retry via /api/login once the credentials are fixed.
func autoLogin(ctx context.Context, cfg *config.Config, wsClient *ws.InstrumentedClient, handler *rest.Handler) {
	logger := logctx.LoggerFromContext(ctx)

	if !cfg.CredentialsConfigured() {
		handler.SetLoginState("not_configured", "Webshare credentials not configured")

		return
	}

	if err := wsClient.Login(ctx, cfg.WebshareUsername, cfg.WebsharePassword); err != nil {
		logger.Error("auto-login failed", "err", err)

		handler.SetLoginState("error", "Login failed: "+download.UserMessage(err))

		return
	}

	handler.SetLoginState("success", "Successfully logged in as "+cfg.WebshareUsername)
}

func setupNotifications(ctx context.Context, manager *download.Manager, tel *telemetry.Telemetry, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
	}

	notify := func(content string) {
		if notif == nil {
			return
		}

		if err := notif.Notify(content); err != nil {
			logger.Error("failed to send notification", "err", err)
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-manager.OnDownloadFinished:
				logger.Info("download finished", "download_id", rec.ID, "file_name", rec.FileName)

				tel.RecordDownload("success", rec.CompletedAt.Sub(rec.CreatedAt), rec.BytesWritten)

				notify("✅ Download finished: " + rec.FileName)
			case rec := <-manager.OnDownloadFailed:
				logger.Error("download failed", "download_id", rec.ID, "file_name", rec.FileName, "reason", rec.Error)

				tel.RecordDownload("error", rec.CompletedAt.Sub(rec.CreatedAt), rec.BytesWritten)

				notify("❌ Download failed: " + rec.FileName + " (" + rec.Error + ")")
			}
		}
	}()
}

// setupServer prepares the middleware chain and the http server.
func setupServer(ctx context.Context, handler *rest.Handler, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "webshare_downloader"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, repo cleanup.Repository, tel *telemetry.Telemetry, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		cleanupTicker := time.NewTicker(cfg.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-cleanupTicker.C:
				if err := cleanup.DeleteExpiredFiles(ctx, repo, cfg.KeepDownloadedFor); err != nil {
					logger.Error("failed to delete expired files", "err", err)

					tel.RecordSystemError("cleanup", "delete_expired")
				}
			}
		}
	}()
}
