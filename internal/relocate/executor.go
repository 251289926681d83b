// Package relocate copies or moves report files into patient folders.
package relocate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/radsort/internal/model"
	"github.com/spf13/afero"
)

// Outcome reasons.
const (
	ReasonWriteError     = "destination write error"
	ReasonAlreadyPresent = "target folder already contains this report"
)

// Mode selects between copying (basic) and moving (advanced) reports.
type Mode string

// Relocation modes.
const (
	ModeCopy Mode = "copy"
	ModeMove Mode = "move"
)

// Status is the result kind of a relocation.
type Status string

// Relocation statuses.
const (
	StatusRelocated      Status = "relocated"
	StatusAlreadyPresent Status = "already-present"
	StatusFailed         Status = "failed"
)

// Result describes one relocation attempt.
type Result struct {
	Err         error
	Status      Status
	Destination string
}

// Executor places report files into resolved folders.
type Executor struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewExecutor creates an executor working on fs.
func NewExecutor(fs afero.Fs, logger *slog.Logger) *Executor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{fs: fs, logger: logger}
}

// Relocate copies or moves src into folder under its original name. On
// failure the source file is left untouched and no file is left at the
// destination.
func (e *Executor) Relocate(src string, folder model.PatientFolder, mode Mode) Result {
	dest := filepath.Join(folder.Path, filepath.Base(src))

	if _, err := e.fs.Stat(dest); err == nil {
		return Result{Status: StatusAlreadyPresent, Destination: dest}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Result{Status: StatusFailed, Destination: dest, Err: err}
	}

	var err error
	switch mode {
	case ModeMove:
		err = e.move(src, dest)
	case ModeCopy:
		err = e.copy(src, dest)
	default:
		err = fmt.Errorf("unknown relocation mode %q", mode)
	}
	if err != nil {
		return Result{Status: StatusFailed, Destination: dest, Err: err}
	}

	return Result{Status: StatusRelocated, Destination: dest}
}

func (e *Executor) move(src, dest string) error {
	err := e.fs.Rename(src, dest)
	if err == nil {
		return nil
	}
	e.logger.Debug("Rename failed, falling back to copy", "file", src, "error", err)

	if err = e.copy(src, dest); err != nil {
		return err
	}
	if err = e.fs.Remove(src); err != nil {
		// The report is safely at dest; a leftover source is reported as
		// already present on the next run.
		e.logger.Warn("Copied report but could not remove source", "file", src, "error", err)
	}
	return nil
}

// copy writes to a temporary sibling and renames it into place so a partial
// file is never visible under the final name.
func (e *Executor) copy(src, dest string) (err error) {
	in, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".partial")
	out, err := e.fs.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		if err != nil {
			_ = e.fs.Remove(tmp)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("write destination: %w", err)
	}
	if err = out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync destination: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	if chErr := e.fs.Chtimes(tmp, info.ModTime(), info.ModTime()); chErr != nil {
		e.logger.Debug("Could not preserve modification time", "file", dest, "error", chErr)
	}

	if err = e.fs.Rename(tmp, dest); err != nil {
		return fmt.Errorf("finalize destination: %w", err)
	}
	return nil
}
