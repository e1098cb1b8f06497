package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/registrysync/internal/importer"
	"github.com/JonMunkholm/registrysync/internal/logging"
	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/persist"
	"github.com/JonMunkholm/registrysync/internal/reconcile"
	"github.com/JonMunkholm/registrysync/internal/registry"
	"github.com/google/uuid"
)

// ImportResult reports one applied import.
type ImportResult struct {
	ImportID       string                `json:"importId"`
	FileName       string                `json:"fileName"`
	Mode           reconcile.Mode        `json:"mode"`
	Message        string                `json:"message"`
	DataRows       int                   `json:"dataRows"`
	Members        int                   `json:"members"`
	Accounts       int                   `json:"accounts"`
	Transactions   int                   `json:"transactions"`
	Changes        reconcile.Summary     `json:"changes"`
	SkippedCount   int                   `json:"skippedCount"`
	SkippedSamples []importer.SkippedRow `json:"skippedSamples"`
	DurationMs     int64                 `json:"durationMs"`
}

// ImportPreview is the dry-run of an import against the live registry.
type ImportPreview struct {
	FileName string                `json:"fileName"`
	Mode     reconcile.Mode        `json:"mode"`
	File     *importer.FilePreview `json:"file"`
	Changes  reconcile.Summary     `json:"changes"`
}

// ImportFile builds data into a batch and reconciles it into the registry
// with mode. An empty mode means merge.
//
// Structural problems reject the file before anything changes. If the
// registry changed but the local snapshot could not be written, the result is
// returned together with an error wrapping persist.ErrLocalWrite.
func (s *Service) ImportFile(ctx context.Context, fileName string, data []byte, mode reconcile.Mode) (*ImportResult, error) {
	start := time.Now()
	importID := uuid.New().String()

	parsed, modeErr := reconcile.ParseMode(string(mode))
	if modeErr == nil {
		mode = parsed
	}
	logger := logging.WithFields(ctx,
		"import_id", importID,
		"file", fileName,
		"mode", mode,
	)

	var (
		result *ImportResult
		err    error
	)
	if modeErr != nil {
		err = modeErr
	} else {
		result, err = s.runImport(ctx, importID, fileName, data, mode)
	}

	elapsed := time.Since(start)
	outcome := importOutcome(err)
	s.metrics.ObserveImport(string(mode), outcome, elapsed)

	entry := JournalEntry{
		ImportID:   importID,
		FileName:   fileName,
		Mode:       mode,
		Outcome:    outcome,
		Source:     GetSourceFromContext(ctx),
		IPAddress:  GetIPAddressFromContext(ctx),
		UserAgent:  GetUserAgentFromContext(ctx),
		Client:     describeClient(GetUserAgentFromContext(ctx)),
		At:         start.UTC(),
		DurationMs: elapsed.Milliseconds(),
	}
	if result != nil {
		result.DurationMs = elapsed.Milliseconds()
		entry.Members = result.Members
		entry.Accounts = result.Accounts
		entry.SkippedCount = result.SkippedCount
		entry.Message = result.Message
	}
	if err != nil {
		entry.Error = FormatUserError(err)
	}
	s.journal.Record(entry)

	switch outcome {
	case metrics.OutcomeSuccess:
		logger.Info("import completed",
			"accounts", result.Accounts,
			"members", result.Members,
			"skipped", result.SkippedCount,
			"duration_ms", elapsed.Milliseconds(),
		)
	case metrics.OutcomeRejected:
		logger.Warn("import rejected", "error", err)
	default:
		logger.Error("import failed", "error", err)
	}
	return result, err
}

func (s *Service) runImport(ctx context.Context, importID, fileName string, data []byte, mode reconcile.Mode) (*ImportResult, error) {
	if len(data) == 0 {
		return nil, ErrNoFile
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	s.metrics.SetImportsInFlight(s.limiter.ActiveCount())
	defer func() {
		s.limiter.Release()
		s.metrics.SetImportsInFlight(s.limiter.ActiveCount())
	}()

	batch, err := importer.Build(data, s.importOpts)
	if err != nil {
		return nil, err
	}

	var summary reconcile.Summary
	_, err = s.coord.Apply(ctx, "import:"+string(mode), func(st *registry.State) error {
		var applyErr error
		summary, applyErr = reconcile.Apply(st, batch.State(), mode)
		return applyErr
	})
	if err != nil && !persist.IsLocalWriteError(err) {
		return nil, err
	}

	s.metrics.AddImportRows(batch.DataRows)
	for reason, n := range countSkipped(batch.Skipped) {
		s.metrics.AddSkippedRows(string(reason), n)
	}

	return &ImportResult{
		ImportID:       importID,
		FileName:       fileName,
		Mode:           mode,
		Message:        fmt.Sprintf("%d accounts registered", len(batch.Accounts)),
		DataRows:       batch.DataRows,
		Members:        len(batch.Members),
		Accounts:       len(batch.Accounts),
		Transactions:   batch.TransactionCount(),
		Changes:        summary,
		SkippedCount:   len(batch.Skipped),
		SkippedSamples: importer.SampleSkipped(batch.Skipped, s.skippedSamples),
	}, err
}

// Preview analyzes data and diffs it against the live registry without
// changing anything.
func (s *Service) Preview(ctx context.Context, fileName string, data []byte, mode reconcile.Mode) (*ImportPreview, error) {
	mode, err := reconcile.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if !s.reg.Ready() {
		return nil, persist.ErrNotHydrated
	}

	file, batch, err := importer.Analyze(data, s.importOpts)
	if err != nil {
		return nil, err
	}

	p := &ImportPreview{
		FileName: fileName,
		Mode:     mode,
		File:     file,
		Changes:  reconcile.Diff(s.reg.Snapshot(), batch.State(), mode),
	}
	logging.FromContext(ctx).Debug("import previewed",
		"file", fileName,
		"mode", mode,
		"accounts", file.Summary.Accounts,
		"changed", p.Changes.Changed(),
	)
	return p, nil
}

// RecentImports returns up to limit journal entries, newest first.
func (s *Service) RecentImports(limit int) []JournalEntry {
	return s.journal.Recent(limit)
}

func countSkipped(rows []importer.SkippedRow) map[importer.SkipReason]int {
	counts := make(map[importer.SkipReason]int)
	for _, r := range rows {
		counts[r.Reason]++
	}
	return counts
}

// importOutcome classifies an import error for metrics and the journal.
// Rejections are the caller's fault; failures are ours.
func importOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case importer.IsFormatError(err),
		errors.Is(err, importer.ErrEncoding),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrNoFile),
		errors.Is(err, reconcile.ErrUnknownMode),
		errors.Is(err, ErrTooManyImports),
		errors.Is(err, persist.ErrNotHydrated):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailure
	}
}
