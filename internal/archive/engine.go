// Package archive zips sorted patient folders into an output directory.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/model"
	"github.com/Veraticus/radsort/internal/report"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// ArchiveExt is appended to a folder basename to name its archive.
const ArchiveExt = ".zip"

// Outcome reasons.
const (
	ReasonAlreadyArchived = "archive already exists"
	ReasonNameConflict    = "archive name shared with another folder"
	ReasonMissingMarker   = "no marker file"
	ReasonWriteError      = "archive write error"
	ReasonVerifyFailed    = "archive verification failed"
	ReasonRemoveFailed    = "source folder removal failed"
	ReasonMismatch        = "existing archive does not match folder"
)

var errVerification = errors.New(ReasonVerifyFailed)

// Options configures an archival run.
type Options struct {
	BaseDir       string
	ZippedDir     string
	MarkerExt     string
	Keywords      []string // Only folders whose name contains one of these
	Workers       int
	RemoveRetry   common.RetryOptions // Source removal after a verified archive
	Delete        bool
	RequireMarker bool
}

// DefaultOptions returns the non-destructive defaults.
func DefaultOptions() Options {
	return Options{
		Workers:   runtime.NumCPU(),
		MarkerExt: ".pdf",
		RemoveRetry: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

// Engine runs archive jobs on a bounded worker pool.
type Engine struct {
	fs       afero.Fs
	outcomes *report.Log
	logger   *slog.Logger
	progress report.Progress
	opts     Options
	doneMu   sync.Mutex
}

// New creates an archival engine. Outcomes of every job are appended to
// outcomes.
func New(fs afero.Fs, opts Options, outcomes *report.Log, logger *slog.Logger) *Engine {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if outcomes == nil {
		outcomes = report.NewLog()
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MarkerExt == "" {
		opts.MarkerExt = DefaultOptions().MarkerExt
	}
	if opts.RemoveRetry == (common.RetryOptions{}) {
		opts.RemoveRetry = DefaultOptions().RemoveRetry
	}
	return &Engine{
		fs:       fs,
		opts:     opts,
		outcomes: outcomes,
		logger:   logger,
		progress: report.NopProgress(),
	}
}

// SetProgress registers a progress sink advanced once per finished job.
func (e *Engine) SetProgress(p report.Progress) {
	if p == nil {
		p = report.NopProgress()
	}
	e.progress = p
}

// Run discovers and archives every patient folder. Job failures are recorded
// as outcomes and never stop sibling jobs; only structural errors and
// cancellation are returned. Jobs not started before cancellation stay
// pending.
func (e *Engine) Run(ctx context.Context) ([]model.ArchiveJob, error) {
	jobs, err := e.Discover()
	if err != nil {
		return nil, err
	}
	if err := e.fs.MkdirAll(e.opts.ZippedDir, 0o755); err != nil {
		return nil, fmt.Errorf("create zipped directory: %w", err)
	}

	e.logger.Info("Starting archival",
		"base_dir", e.opts.BaseDir,
		"zipped_dir", e.opts.ZippedDir,
		"folders", len(jobs),
		"workers", e.opts.Workers,
		"delete", e.opts.Delete)

	e.progress.Start(len(jobs))
	defer e.progress.Finish()

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if job.State == model.JobNameConflict {
			e.finish(job)
			continue
		}
		g.Go(func() error {
			e.process(ctx, job)
			e.finish(job)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.ArchiveJob, len(jobs))
	for i, job := range jobs {
		out[i] = *job
	}
	return out, ctx.Err()
}

// process moves a pending job to a terminal state.
func (e *Engine) process(ctx context.Context, job *model.ArchiveJob) {
	if exists, _ := afero.Exists(e.fs, job.ArchivePath); exists {
		e.checkpoint(job)
		return
	}

	if e.opts.RequireMarker {
		found, err := e.hasMarker(job.FolderPath)
		if err != nil {
			job.State, job.Err = model.JobFailed, fmt.Errorf("scan folder: %w", err)
			return
		}
		if !found {
			job.State = model.JobMissingMarker
			return
		}
	}

	size, err := e.writeArchive(job.FolderPath, job.ArchivePath)
	if err != nil {
		job.State, job.Err = model.JobFailed, err
		return
	}
	job.Size = size
	job.State = model.JobDone

	if !job.Delete {
		return
	}
	if err := e.verify(job.ArchivePath); err != nil {
		_ = e.fs.Remove(job.ArchivePath)
		job.State, job.Err = model.JobFailed, fmt.Errorf("%w: %w", errVerification, err)
		return
	}
	// A viewer can briefly hold files open after the archive is written.
	remove := func() error { return e.fs.RemoveAll(job.FolderPath) }
	if err := common.WithRetry(ctx, remove, e.opts.RemoveRetry); err != nil {
		job.Err = fmt.Errorf("%s: %w", ReasonRemoveFailed, err)
		return
	}
	job.State = model.JobDeleted
}

// checkpoint settles a job whose archive already exists. Only an archive
// holding every file of the folder counts as done; an archive left by another
// folder of the same name, or one the folder has outgrown, is reported and
// the folder is kept.
func (e *Engine) checkpoint(job *model.ArchiveJob) {
	missing, err := e.uncovered(job.ArchivePath, job.FolderPath)
	switch {
	case err != nil:
		job.State, job.Err = model.JobMismatch, err
	case len(missing) > 0:
		job.State = model.JobMismatch
		job.Err = fmt.Errorf("%d file(s) not in archive, first %s", len(missing), missing[0])
	default:
		job.State = model.JobAlreadyDone
	}
}

// finish logs a job and records its outcome.
func (e *Engine) finish(job *model.ArchiveJob) {
	o := model.Outcome{Item: job.FolderPath}
	switch job.State {
	case model.JobAlreadyDone:
		o.Kind, o.Reason = model.OutcomeAlreadyArchived, ReasonAlreadyArchived
		e.logger.Info("Archive exists, skipping", "folder", job.FolderPath, "archive", job.ArchivePath)
	case model.JobMismatch:
		o.Kind, o.Reason = model.OutcomeArchiveMismatch, ReasonMismatch
		if job.Err != nil {
			o.Detail = job.Err.Error()
		}
		e.logger.Warn("Existing archive does not match folder, skipping",
			"folder", job.FolderPath,
			"archive", job.ArchivePath,
			"detail", o.Detail)
	case model.JobNameConflict:
		o.Kind, o.Reason = model.OutcomeNameConflict, ReasonNameConflict
		o.Detail = job.Name + ArchiveExt
		e.logger.Warn("Archive name conflict, skipping", "folder", job.FolderPath, "archive", job.ArchivePath)
	case model.JobMissingMarker:
		o.Kind, o.Reason = model.OutcomeMissingMarker, ReasonMissingMarker
		o.Detail = "no " + e.opts.MarkerExt + " file"
		e.logger.Warn("Folder has no marker file, skipping", "folder", job.FolderPath, "marker", e.opts.MarkerExt)
	case model.JobDone:
		o.Kind = model.OutcomeArchived
		if job.Err != nil {
			o.Kind, o.Reason, o.Detail = model.OutcomeArchiveFailed, ReasonRemoveFailed, job.Err.Error()
			e.logger.Error("Archived but could not delete folder", "folder", job.FolderPath, "error", job.Err)
			break
		}
		e.logger.Info("Archived folder",
			"folder", job.FolderPath,
			"archive", job.ArchivePath,
			"size", humanize.Bytes(uint64(job.Size)))
	case model.JobDeleted:
		o.Kind = model.OutcomeArchivedDeleted
		e.logger.Info("Archived and deleted folder",
			"folder", job.FolderPath,
			"archive", job.ArchivePath,
			"size", humanize.Bytes(uint64(job.Size)))
	default:
		o.Kind, o.Reason = model.OutcomeArchiveFailed, ReasonWriteError
		if errors.Is(job.Err, errVerification) {
			o.Reason = ReasonVerifyFailed
		}
		if job.Err != nil {
			o.Detail = job.Err.Error()
		}
		e.logger.Error("Failed to archive folder", "folder", job.FolderPath, "error", job.Err)
	}
	e.outcomes.Append(o)

	e.doneMu.Lock()
	e.progress.Advance(o)
	e.doneMu.Unlock()
}
