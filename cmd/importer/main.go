// Command importer applies every export in a directory to the registry and
// exits. Imported files are moved into <dir>/Uploaded.
//
//	importer -dir ./exports -mode replace
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JonMunkholm/registrysync/internal/batchimport"
	"github.com/JonMunkholm/registrysync/internal/bootstrap"
	"github.com/JonMunkholm/registrysync/internal/config"
	"github.com/JonMunkholm/registrysync/internal/core"
	"github.com/JonMunkholm/registrysync/internal/logging"
	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/reconcile"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	dir := flag.String("dir", ".", "directory holding *.csv exports")
	modeFlag := flag.String("mode", string(reconcile.ModeMerge), "reconcile mode: merge or replace")
	fileTimeout := flag.Duration("file-timeout", batchimport.DefaultFileTimeout, "maximum time per file")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	mode, err := reconcile.ParseMode(*modeFlag)
	if err != nil {
		slog.Error("invalid -mode", "error", err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	// The HTTP rate limit store is not needed here.
	cfg.Rate.Enabled = false

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	service := bootstrap.NewService(cfg, stores, metrics.New(prometheus.NewRegistry()))
	if err := service.Hydrate(ctx); err != nil {
		slog.Error("failed to hydrate registry", "error", err)
		os.Exit(1)
	}

	runner := batchimport.New(service,
		batchimport.WithMode(mode),
		batchimport.WithFileTimeout(*fileTimeout),
		batchimport.WithLogger(slog.Default().With("component", "batchimport", "dir", *dir)),
	)
	sum, err := runner.Run(core.ContextWithSource(ctx, "cli"), *dir)
	if err != nil {
		slog.Error("import run aborted", "dir", *dir, "error", err)
	}

	// Let mirror pushes triggered by the imports finish before exiting.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout+5*time.Second)
	defer cancel()
	if err := service.Drain(drainCtx); err != nil {
		slog.Warn("mirror push did not finish before exit", "error", err)
	}

	slog.Info("import run finished",
		"dir", *dir,
		"mode", mode,
		"imported", sum.Imported,
		"failed", sum.Failed,
		"mirror_dirty", service.SyncStatus().Dirty,
	)
	if err != nil || sum.Failed > 0 {
		stores.Close()
		os.Exit(1)
	}
}
