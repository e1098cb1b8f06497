package bootstrap

import (
	"log/slog"

	"github.com/JonMunkholm/registrysync/internal/config"
	"github.com/JonMunkholm/registrysync/internal/core"
	"github.com/JonMunkholm/registrysync/internal/importer"
	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/persist"
	"github.com/JonMunkholm/registrysync/internal/registry"
)

// NewService builds the coordinator and service over st. The registry is not
// hydrated yet; callers run Service.Hydrate before serving.
func NewService(cfg *config.Config, st *Stores, m *metrics.Metrics) *core.Service {
	coordOpts := []persist.Option{
		persist.WithMirrorTimeout(cfg.Remote.Timeout),
		persist.WithMetrics(m),
		persist.WithLogger(slog.Default().With("component", "persist")),
	}
	if st.Remote != nil {
		coordOpts = append(coordOpts, persist.WithRemote(st.Remote))
	}
	coord := persist.New(registry.New(), st.Local, coordOpts...)

	return core.NewService(coord,
		core.WithLimiter(core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)),
		core.WithImportOptions(ImportOptions(cfg.Import)),
		core.WithSkippedSamples(cfg.Import.SkippedSamples),
		core.WithJournal(core.NewJournal(cfg.Import.JournalSize)),
		core.WithMetrics(m),
	)
}

// ImportOptions maps import settings onto the builder's options.
func ImportOptions(ic config.ImportConfig) importer.Options {
	return importer.Options{
		FallbackCharset: ic.FallbackCharset,
		MaxRows:         ic.MaxRows,
	}
}
