package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/registrysync/internal/bootstrap"
	"github.com/JonMunkholm/registrysync/internal/config"
	"github.com/JonMunkholm/registrysync/internal/logging"
	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/web"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
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
		"local_store", cfg.Local.Store,
		"remote_mirror", cfg.Remote.Mirror,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	service := bootstrap.NewService(cfg, stores, metrics.New(prometheus.DefaultRegisterer))
	if err := service.Hydrate(ctx); err != nil {
		slog.Error("failed to hydrate registry", "error", err)
		os.Exit(1)
	}

	var serverOpts []web.Option
	if stores.RateStore != nil {
		serverOpts = append(serverOpts, web.WithRateLimitStore(stores.RateStore))
	}
	server := web.NewServer(service, cfg, serverOpts...)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartMirrorScheduler(jobCtx, cfg.Remote.ResyncInterval)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Imports still running hold the limiter; mirror pushes run detached.
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
		}
		if err := service.Drain(shutdownCtx); err != nil {
			slog.Warn("background work did not finish in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		stores.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
