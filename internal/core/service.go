package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/registrysync/internal/importer"
	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/persist"
	"github.com/JonMunkholm/registrysync/internal/registry"
)

// ResyncTimeout bounds a scheduled mirror resync.
var ResyncTimeout = 30 * time.Second

// DefaultSkippedSamples is how many skipped rows an ImportResult carries.
const DefaultSkippedSamples = 20

// Service provides the registry operations used by every transport.
type Service struct {
	coord *persist.Coordinator
	reg   *registry.Registry

	limiter        *ImportLimiter
	importOpts     importer.Options
	skippedSamples int
	journal        *Journal
	metrics        *metrics.Metrics
}

type Option func(s *Service)

func WithLimiter(l *ImportLimiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

// WithImportOptions sets the aliases, charset fallback and row limit used to
// build every import.
func WithImportOptions(opts importer.Options) Option {
	return func(s *Service) {
		s.importOpts = opts
	}
}

// WithSkippedSamples caps the skipped rows returned per import.
func WithSkippedSamples(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.skippedSamples = n
		}
	}
}

func WithJournal(j *Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService wires a Service around coord. The coordinator must be hydrated
// (see Hydrate) before imports or claims succeed.
func NewService(coord *persist.Coordinator, opts ...Option) *Service {
	s := &Service{
		coord:          coord,
		reg:            coord.Registry(),
		skippedSamples: DefaultSkippedSamples,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}
	if s.journal == nil {
		s.journal = NewJournal(DefaultJournalSize)
	}
	return s
}

// Hydrate loads the registry from durable storage.
func (s *Service) Hydrate(ctx context.Context) error {
	return s.coord.Hydrate(ctx)
}

// Health is the service state reported by /healthz.
type Health struct {
	Ready    bool                 `json:"ready"`
	Members  int                  `json:"members"`
	Accounts int                  `json:"accounts"`
	Mirror   persist.MirrorStatus `json:"mirror"`
	Imports  ImportLimiterStatus  `json:"imports"`
}

func (s *Service) Health() Health {
	members, accounts := s.reg.Counts()
	return Health{
		Ready:    s.reg.Ready(),
		Members:  members,
		Accounts: accounts,
		Mirror:   s.coord.Status(),
		Imports:  s.limiter.Status(),
	}
}

// LimiterStatus returns the import limiter state.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// Drain blocks until in-flight imports finish and background mirror pushes
// settle, or ctx is done. Used on shutdown.
func (s *Service) Drain(ctx context.Context) error {
	if err := s.limiter.WaitForDrain(ctx); err != nil {
		return fmt.Errorf("wait for imports: %w", err)
	}
	if err := s.coord.Wait(ctx); err != nil {
		return fmt.Errorf("wait for mirror: %w", err)
	}
	return nil
}
