package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/radsort/internal/archive"
	"github.com/Veraticus/radsort/internal/cli"
	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/config"
	"github.com/Veraticus/radsort/internal/engine"
	"github.com/Veraticus/radsort/internal/model"
	"github.com/Veraticus/radsort/internal/report"
	"github.com/spf13/afero"
)

// runSortPhase sorts the source directory and writes the sort artifacts.
// Structural errors return before any summary is produced.
func runSortPhase(ctx context.Context, cfg *config.Config, out io.Writer) (report.Summary, error) {
	fs := afero.NewOsFs()
	outcomes := report.NewLog()

	sorter := engine.NewSorter(fs, cfg.EngineConfig(), outcomes, slog.Default())
	sorter.SetProgress(cli.NewProgressBar(os.Stderr, "Sorting reports"))

	runErr := sorter.Run(ctx)
	if common.IsStructural(runErr) {
		return report.Summary{}, common.NewUserError("Sort could not start", runErr)
	}

	entries := outcomes.Entries()
	summary := report.Summarize(report.PhaseSort, runID, entries)

	if cfg.Sort.SkippedReport != "" {
		saveArtifact(fs, cfg.Sort.SkippedReport, "skipped reports", func(w io.Writer) error {
			return report.WriteSkippedReport(w, entries, time.Now())
		})
	}
	if cfg.Sort.SummaryFile != "" {
		saveArtifact(fs, cfg.Sort.SummaryFile, "sort summary", summary.WriteYAML)
	}

	fmt.Fprintln(out, cli.RenderSummary(summary))
	return summary, runErr
}

// runArchivePhase archives the base directory and writes the archive
// artifacts. Any failed job makes the phase fail after all jobs finished.
func runArchivePhase(ctx context.Context, cfg *config.Config, out io.Writer) (report.Summary, error) {
	fs := afero.NewOsFs()
	outcomes := report.NewLog()

	eng := archive.New(fs, cfg.ArchiveOptions(), outcomes, slog.Default())
	eng.SetProgress(cli.NewProgressBar(os.Stderr, "Archiving folders"))

	jobs, runErr := eng.Run(ctx)
	if common.IsStructural(runErr) {
		return report.Summary{}, common.NewUserError("Archival could not start", runErr)
	}
	if runErr == nil && len(jobs) == 0 {
		slog.Info("No patient folders found to archive", "base_dir", cfg.Archive.BaseDir)
	}

	entries := outcomes.Entries()
	summary := report.Summarize(report.PhaseArchive, runID, entries)

	if cfg.Archive.MarkerReport != "" && summary.Count(model.OutcomeMissingMarker) > 0 {
		saveArtifact(fs, cfg.Archive.MarkerReport, "missing marker report", func(w io.Writer) error {
			return report.WriteMarkerReport(w, entries, time.Now())
		})
	}
	if cfg.Archive.SummaryFile != "" {
		saveArtifact(fs, cfg.Archive.SummaryFile, "archive summary", summary.WriteYAML)
	}

	fmt.Fprintln(out, cli.RenderSummary(summary))

	if runErr != nil {
		return summary, runErr
	}
	if summary.Failed > 0 {
		return summary, fmt.Errorf("%w: %d of %d", common.ErrArchiveFailures, summary.Failed, summary.Total)
	}
	return summary, nil
}

// saveArtifact writes an artifact file; a failure is logged but does not
// fail the phase.
func saveArtifact(fs afero.Fs, path, what string, write func(io.Writer) error) {
	written, err := report.SaveArtifact(fs, path, write)
	if err != nil {
		slog.Error("Failed to write "+what, "path", path, "error", err)
		return
	}
	if written {
		slog.Info("Wrote "+what, "path", path)
	}
}
