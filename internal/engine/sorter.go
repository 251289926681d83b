// Package engine runs the sort phase: scan the source directory, parse each
// report name, resolve its patient folder and relocate it there.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/extract"
	"github.com/Veraticus/radsort/internal/model"
	"github.com/Veraticus/radsort/internal/parser"
	"github.com/Veraticus/radsort/internal/relocate"
	"github.com/Veraticus/radsort/internal/report"
	"github.com/Veraticus/radsort/internal/resolver"
	"github.com/spf13/afero"
)

// Mode selects the sorter variant.
type Mode string

// Sorter modes. Basic copies reports and matches on the filename only;
// advanced moves them and also reads the patient age out of the PDF.
const (
	ModeBasic    Mode = "basic"
	ModeAdvanced Mode = "advanced"
)

// ReportExt is the extension of files picked up from the source directory.
const ReportExt = ".pdf"

// Config holds configuration options for the sorter.
type Config struct {
	SourceDir      string
	DestinationDir string
	Mode           Mode
	DateRangeDays  int
	LookaheadDays  int
	FuzzyDistance  int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeBasic,
		DateRangeDays: resolver.DefaultDateRangeDays,
		LookaheadDays: resolver.DefaultLookaheadDays,
		FuzzyDistance: resolver.DefaultFuzzyDistance,
	}
}

// RelocationMode returns how reports are placed in this mode.
func (m Mode) RelocationMode() relocate.Mode {
	if m == ModeAdvanced {
		return relocate.ModeMove
	}
	return relocate.ModeCopy
}

// Sorter orchestrates the sort phase.
type Sorter struct {
	fs        afero.Fs
	outcomes  *report.Log
	logger    *slog.Logger
	ages      resolver.AgeExtractor
	resolver  Resolver
	relocator Relocator
	progress  report.Progress
	cfg       Config
}

// NewSorter creates a sorter with the given dependencies. In advanced mode
// ages are read from PDF content with pdfcpu.
func NewSorter(fs afero.Fs, cfg Config, outcomes *report.Log, logger *slog.Logger) *Sorter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if outcomes == nil {
		outcomes = report.NewLog()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeBasic
	}

	s := &Sorter{
		fs:        fs,
		cfg:       cfg,
		outcomes:  outcomes,
		logger:    logger,
		relocator: relocate.NewExecutor(fs, logger),
		progress:  report.NopProgress(),
	}
	if cfg.Mode == ModeAdvanced {
		s.ages = extract.NewPDFExtractor(fs, logger)
	}
	return s
}

// WithAgeExtractor replaces the age source used in advanced mode.
func (s *Sorter) WithAgeExtractor(ages resolver.AgeExtractor) *Sorter {
	s.ages = ages
	return s
}

// WithResolver replaces the resolver built from the destination tree.
func (s *Sorter) WithResolver(r Resolver) *Sorter {
	s.resolver = r
	return s
}

// WithRelocator replaces the filesystem relocator.
func (s *Sorter) WithRelocator(r Relocator) *Sorter {
	s.relocator = r
	return s
}

// SetProgress registers a progress sink advanced once per report.
func (s *Sorter) SetProgress(p report.Progress) {
	if p == nil {
		p = report.NopProgress()
	}
	s.progress = p
}

// Scan lists the report files in the source directory, sorted by name.
// Subdirectories are not searched.
func (s *Sorter) Scan() ([]string, error) {
	if err := common.CheckDir(s.fs, s.cfg.SourceDir); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ReportExt) {
			continue
		}
		files = append(files, filepath.Join(s.cfg.SourceDir, entry.Name()))
	}
	return files, nil
}

// Run sorts every report in the source directory. Each report is fully
// resolved and relocated before the next one starts. Per-report problems
// are recorded as outcomes; Run fails on structural errors, cancellation,
// or when any report could not be relocated.
func (s *Sorter) Run(ctx context.Context) error {
	files, err := s.Scan()
	if err != nil {
		return err
	}

	if s.resolver == nil {
		tree, err := resolver.LoadTree(s.fs, s.cfg.DestinationDir, s.logger)
		if err != nil {
			return err
		}
		opts := resolver.Options{
			DateRangeDays: s.cfg.DateRangeDays,
			LookaheadDays: s.cfg.LookaheadDays,
			FuzzyDistance: s.cfg.FuzzyDistance,
		}
		if s.cfg.Mode == ModeAdvanced {
			opts.Ages = s.ages
		}
		s.resolver = resolver.New(tree, opts, s.logger)
		s.logger.Info("Loaded destination tree",
			"root", tree.Root,
			"periods", len(tree.Periods),
			"patient_folders", tree.PatientCount())
	}

	s.logger.Info("Starting sort",
		"source", s.cfg.SourceDir,
		"destination", s.cfg.DestinationDir,
		"mode", s.cfg.Mode,
		"reports", len(files))

	s.progress.Start(len(files))
	defer s.progress.Finish()

	failures := 0
	for _, path := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		o := s.sortOne(ctx, path)
		if o.Kind.Failed() {
			failures++
		}
		s.outcomes.Append(o)
		s.progress.Advance(o)
	}

	if failures > 0 {
		return fmt.Errorf("%w: %d of %d", common.ErrRelocationFailures, failures, len(files))
	}
	return nil
}

func (s *Sorter) sortOne(ctx context.Context, path string) model.Outcome {
	name := filepath.Base(path)
	o := model.Outcome{Item: name}

	fields, err := parser.Parse(name)
	if err != nil {
		o.Kind, o.Reason, o.Detail = model.OutcomeParseFailure, parser.ReasonUnparseable, err.Error()
		var perr *parser.Error
		if errors.As(err, &perr) {
			o.Reason = perr.Reason()
		}
		s.logger.Warn("Skipping report", "file", name, "reason", o.Reason, "error", err)
		return o
	}

	rep := &model.ReportFile{Path: path, Name: name, Fields: fields}
	res := s.resolver.Resolve(ctx, rep)

	switch res.Status {
	case resolver.StatusNotFound:
		o.Kind, o.Reason, o.Detail = model.OutcomeNotFound, res.Reason, "eliminated at "+string(res.Tier)
		s.logger.Warn("Skipping report", "file", name, "reason", res.Reason, "tier", res.Tier)
		return o
	case resolver.StatusAmbiguous:
		o.Kind, o.Reason, o.Candidates = model.OutcomeAmbiguous, res.Reason, res.CandidatePaths()
		s.logger.Warn("Skipping report", "file", name, "reason", res.Reason, "candidates", o.Candidates)
		return o
	}

	folder := res.Folder()
	moved := s.relocator.Relocate(path, *folder, s.cfg.Mode.RelocationMode())
	switch moved.Status {
	case relocate.StatusRelocated:
		o.Kind, o.Detail = model.OutcomeRelocated, moved.Destination
		s.logger.Info("Relocated report",
			"file", name,
			"folder", folder.Path,
			"tier", res.Tier,
			"mode", s.cfg.Mode.RelocationMode())
	case relocate.StatusAlreadyPresent:
		o.Kind, o.Reason, o.Detail = model.OutcomeAlreadyPresent, relocate.ReasonAlreadyPresent, moved.Destination
		s.logger.Info("Report already in folder", "file", name, "folder", folder.Path)
	default:
		o.Kind, o.Reason = model.OutcomeRelocateFailed, relocate.ReasonWriteError
		if moved.Err != nil {
			o.Detail = moved.Err.Error()
		}
		s.logger.Error("Failed to relocate report", "file", name, "folder", folder.Path, "error", moved.Err)
	}
	return o
}
