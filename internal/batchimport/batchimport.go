// Package batchimport feeds a directory of exports through the registry
// service, one file at a time, the way an operator drops nightly exports
// into an inbox.
//
// For every *.csv file in the directory (sorted by name):
//
//  1. The file is read and imported with the configured mode
//  2. Skipped rows, if any, are written next to it as "<name> - skipped.csv"
//  3. The file is moved into <dir>/Uploaded
//
// A file that fails to import stays where it is and the run moves on.
package batchimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/registrysync/internal/core"
	"github.com/JonMunkholm/registrysync/internal/reconcile"
)

// UploadedDir is where successfully imported files are moved.
const UploadedDir = "Uploaded"

// DefaultFileTimeout bounds one file's import.
const DefaultFileTimeout = 5 * time.Minute

// Importer is the part of core.Service a run needs.
type Importer interface {
	ImportFile(ctx context.Context, fileName string, data []byte, mode reconcile.Mode) (*core.ImportResult, error)
}

// FileResult is the outcome for one file.
type FileResult struct {
	File   string
	Result *core.ImportResult
	Err    error
}

// Summary totals a run.
type Summary struct {
	Files    []FileResult
	Imported int
	Failed   int
}

// Runner imports directories.
type Runner struct {
	importer    Importer
	mode        reconcile.Mode
	fileTimeout time.Duration
	logger      *slog.Logger
}

type Option func(r *Runner)

func WithMode(mode reconcile.Mode) Option {
	return func(r *Runner) {
		r.mode = mode
	}
}

func WithFileTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.fileTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner. The default mode is merge.
func New(importer Importer, opts ...Option) *Runner {
	r := &Runner{
		importer:    importer,
		mode:        reconcile.ModeMerge,
		fileTimeout: DefaultFileTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run imports every export in dir. Per-file failures are logged and
// reported in the summary; only an unreadable directory or a cancelled ctx
// returns an error.
func (r *Runner) Run(ctx context.Context, dir string) (Summary, error) {
	var sum Summary

	files, err := listExports(dir)
	if err != nil {
		return sum, err
	}
	if len(files) == 0 {
		r.logger.Info("no exports to import", "dir", dir)
		return sum, nil
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := r.importFile(ctx, dir, name)
		sum.Files = append(sum.Files, FileResult{File: name, Result: res, Err: err})
		if err != nil {
			sum.Failed++
			r.logger.Error("import failed",
				"file", name,
				"error", err,
				"hint", core.FormatUserError(err),
			)
			continue
		}
		sum.Imported++
		r.logger.Info("import completed",
			"file", name,
			"accounts", res.Accounts,
			"members", res.Members,
			"skipped", res.SkippedCount,
		)
	}
	return sum, nil
}

func (r *Runner) importFile(ctx context.Context, dir, name string) (*core.ImportResult, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.fileTimeout)
	defer cancel()

	res, err := r.importer.ImportFile(ctx, name, data, r.mode)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return res, fmt.Errorf("import timed out after %v: %w", r.fileTimeout, err)
		}
		return res, err
	}

	if len(res.SkippedSamples) > 0 {
		if err := writeSkipped(dir, name, res); err != nil {
			return res, err
		}
	}

	uploaded := filepath.Join(dir, UploadedDir)
	if err := os.MkdirAll(uploaded, 0o755); err != nil {
		return res, fmt.Errorf("create %s directory: %w", UploadedDir, err)
	}
	if err := os.Rename(path, filepath.Join(uploaded, name)); err != nil {
		return res, fmt.Errorf("move %s: %w", name, err)
	}
	return res, nil
}

// listExports returns the *.csv files directly under dir, sorted by name.
func listExports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		if strings.HasSuffix(e.Name(), " - skipped.csv") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// SkippedFileName is the report written beside an export that had skipped rows.
func SkippedFileName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + " - skipped.csv"
}

// writeSkipped records the sampled skipped rows as line, reason, then the
// original cells.
func writeSkipped(dir, name string, res *core.ImportResult) error {
	path := filepath.Join(dir, SkippedFileName(name))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create skipped report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"line", "reason", "data"}); err != nil {
		return fmt.Errorf("write skipped report: %w", err)
	}
	for _, row := range res.SkippedSamples {
		rec := append([]string{strconv.Itoa(row.Line), string(row.Reason)}, row.Data...)
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write skipped report: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write skipped report: %w", err)
	}
	return f.Close()
}
