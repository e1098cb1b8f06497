package core

// scheduler.go retries a dirty remote mirror in the background.
//
// Mirror pushes are best effort: a failed push leaves the mirror dirty until
// the next mutation. On a quiet registry that can be a long time, so the
// scheduler resyncs on an interval whenever the mirror is dirty and nothing
// is already syncing. It logs failures and keeps going.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/registrysync/internal/persist"
)

// DefaultResyncInterval is used when the configured interval is not positive.
const DefaultResyncInterval = 5 * time.Minute

// StartMirrorScheduler blocks, resyncing a dirty mirror every interval until
// ctx is cancelled. It returns at once when no mirror is configured. The
// first check happens after one interval; boot already runs a refresh.
func (s *Service) StartMirrorScheduler(ctx context.Context, interval time.Duration) {
	if !s.coord.Status().Configured {
		slog.Info("mirror scheduler disabled, no mirror configured")
		return
	}
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	slog.Info("mirror scheduler started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("mirror scheduler stopped")
			return
		case <-ticker.C:
			s.runResyncJob(ctx)
		}
	}
}

// runResyncJob performs one resync if the mirror needs it.
func (s *Service) runResyncJob(ctx context.Context) {
	status := s.coord.Status()
	if !status.Dirty || status.Syncing {
		slog.Debug("mirror resync skipped", "dirty", status.Dirty, "syncing", status.Syncing)
		return
	}

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, ResyncTimeout)
	defer cancel()

	if err := s.coord.Resync(jobCtx, false); err != nil {
		if errors.Is(err, persist.ErrNoMirror) {
			return
		}
		slog.Error("scheduled mirror resync failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Info("scheduled mirror resync completed", "duration_ms", time.Since(start).Milliseconds())
}
