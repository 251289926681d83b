package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/model"
	"github.com/Veraticus/radsort/internal/report"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func exists(t *testing.T, fs afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)
	return ok
}

func baseTree(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/202405/PatientA/Report_of_PATIENTA_CHEST_02_May24.pdf", "%PDF-1.4 a")
	writeFile(t, fs, "/base/202405/PatientA/notes/intake.txt", "notes")
	return fs
}

func newEngine(fs afero.Fs, opts Options) (*Engine, *report.Log) {
	if opts.BaseDir == "" {
		opts.BaseDir = "/base"
	}
	if opts.ZippedDir == "" {
		opts.ZippedDir = "/zipped"
	}
	outcomes := report.NewLog()
	return New(fs, opts, outcomes, nil), outcomes
}

func entryNames(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	zr, err := zip.NewReader(f, info.Size())
	require.NoError(t, err)

	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	return names
}

type countingProgress struct {
	total    int
	advanced atomic.Int32
	finished bool
}

func (p *countingProgress) Start(total int) { p.total = total }
func (p *countingProgress) Advance(model.Outcome) { p.advanced.Add(1) }
func (p *countingProgress) Finish() { p.finished = true }

// failPartialFs refuses to create in-progress archives.
type failPartialFs struct {
	afero.Fs
}

func (f failPartialFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if strings.HasSuffix(name, PartialExt) {
		return nil, errors.New("no space left on device")
	}
	return f.Fs.OpenFile(name, flag, perm)
}

// failFinalizeFs refuses to rename a finished archive into place.
type failFinalizeFs struct {
	afero.Fs
}

func (failFinalizeFs) Rename(_, _ string) error {
	return errors.New("input/output error")
}

// busyRemoveFs fails the first failures RemoveAll calls.
type busyRemoveFs struct {
	afero.Fs
	failures int32
	calls    atomic.Int32
}

func (f *busyRemoveFs) RemoveAll(path string) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("device or resource busy")
	}
	return f.Fs.RemoveAll(path)
}

func TestRun_RemovalRetries(t *testing.T) {
	fastRetry := common.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	tests := []struct {
		name     string
		want     model.OutcomeKind
		failures int32
		kept     bool
	}{
		{name: "transient lock", failures: 2, want: model.OutcomeArchivedDeleted},
		{name: "persistent lock", failures: 10, want: model.OutcomeArchiveFailed, kept: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &busyRemoveFs{Fs: baseTree(t), failures: tt.failures}
			e, outcomes := newEngine(fs, Options{Delete: true, RemoveRetry: fastRetry})

			_, err := e.Run(context.Background())
			require.NoError(t, err)

			entries := outcomes.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0].Kind)
			assert.Equal(t, tt.kept, exists(t, fs, "/base/202405/PatientA"))
			assert.True(t, exists(t, fs, "/zipped/PatientA.zip"), "verified archive is kept")
			if tt.kept {
				assert.Equal(t, ReasonRemoveFailed, entries[0].Reason)
				assert.Equal(t, int32(3), fs.calls.Load())
			}
		})
	}
}

func TestRun_NonDestructive(t *testing.T) {
	fs := baseTree(t)
	e, outcomes := newEngine(fs, Options{})

	jobs, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, model.JobDone, jobs[0].State)
	assert.Equal(t, "/zipped/PatientA.zip", jobs[0].ArchivePath)
	assert.Positive(t, jobs[0].Size)
	assert.True(t, exists(t, fs, "/zipped/PatientA.zip"))
	assert.True(t, exists(t, fs, "/base/202405/PatientA"))
	assert.False(t, exists(t, fs, "/zipped/PatientA.zip"+PartialExt))

	assert.ElementsMatch(t,
		[]string{"Report_of_PATIENTA_CHEST_02_May24.pdf", "notes/", "notes/intake.txt"},
		entryNames(t, fs, "/zipped/PatientA.zip"))

	entries := outcomes.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.OutcomeArchived, entries[0].Kind)
}

func TestRun_DestructiveWithMarker(t *testing.T) {
	fs := baseTree(t)
	e, outcomes := newEngine(fs, Options{Delete: true, RequireMarker: true})

	jobs, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, model.JobDeleted, jobs[0].State)
	assert.True(t, exists(t, fs, "/zipped/PatientA.zip"))
	assert.False(t, exists(t, fs, "/base/202405/PatientA"))
	assert.Equal(t, model.OutcomeArchivedDeleted, outcomes.Entries()[0].Kind)
}

func TestRun_CheckpointRequiresMatchingArchive(t *testing.T) {
	t.Run("same name in a later period", func(t *testing.T) {
		fs := baseTree(t)
		first, _ := newEngine(fs, Options{Delete: true, RequireMarker: true})
		_, err := first.Run(context.Background())
		require.NoError(t, err)
		require.False(t, exists(t, fs, "/base/202405/PatientA"))

		writeFile(t, fs, "/base/202406/PatientA/Report_of_PATIENTA_KUB_04_Jun24.pdf", "%PDF-1.4 june")

		second, outcomes := newEngine(fs, Options{Delete: true, RequireMarker: true})
		jobs, err := second.Run(context.Background())
		require.NoError(t, err)

		require.Len(t, jobs, 1)
		assert.Equal(t, model.JobMismatch, jobs[0].State)
		entries := outcomes.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, model.OutcomeArchiveMismatch, entries[0].Kind)
		assert.Equal(t, ReasonMismatch, entries[0].Reason)
		assert.Contains(t, entries[0].Detail, "Report_of_PATIENTA_KUB_04_Jun24.pdf")
		assert.False(t, entries[0].Kind.Succeeded())
		assert.True(t, exists(t, fs, "/base/202406/PatientA"), "unarchived folder is kept")
	})

	t.Run("folder changed since archiving", func(t *testing.T) {
		fs := baseTree(t)
		first, _ := newEngine(fs, Options{})
		_, err := first.Run(context.Background())
		require.NoError(t, err)

		writeFile(t, fs, "/base/202405/PatientA/notes/intake.txt", "notes, amended")

		second, outcomes := newEngine(fs, Options{Delete: true})
		_, err = second.Run(context.Background())
		require.NoError(t, err)

		entries := outcomes.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, model.OutcomeArchiveMismatch, entries[0].Kind)
		assert.Contains(t, entries[0].Detail, "notes/intake.txt")
		assert.True(t, exists(t, fs, "/base/202405/PatientA/notes/intake.txt"))
	})
}

func TestRun_CheckpointMakesSecondRunANoOp(t *testing.T) {
	fs := baseTree(t)
	writeFile(t, fs, "/base/202406/PatientB/Report_of_PATIENTB_KUB_03_Jun24.pdf", "b")

	first, _ := newEngine(fs, Options{})
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	before, err := afero.ReadFile(fs, "/zipped/PatientA.zip")
	require.NoError(t, err)

	second, outcomes := newEngine(fs, Options{})
	jobs, err := second.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, model.JobAlreadyDone, job.State, job.FolderPath)
	}
	for _, o := range outcomes.Entries() {
		assert.Equal(t, model.OutcomeAlreadyArchived, o.Kind)
	}

	after, err := afero.ReadFile(fs, "/zipped/PatientA.zip")
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing archive is not rewritten")

	zipped, err := afero.ReadDir(fs, "/zipped")
	require.NoError(t, err)
	assert.Len(t, zipped, 2)
}

func TestRun_CompressionFailureKeepsFolder(t *testing.T) {
	tests := []struct {
		wrap func(afero.Fs) afero.Fs
		name string
	}{
		{name: "cannot create archive", wrap: func(fs afero.Fs) afero.Fs { return failPartialFs{fs} }},
		{name: "cannot finalize archive", wrap: func(fs afero.Fs) afero.Fs { return failFinalizeFs{fs} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := baseTree(t)
			e, outcomes := newEngine(tt.wrap(fs), Options{Delete: true, RequireMarker: true})

			jobs, err := e.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, jobs, 1)

			assert.Equal(t, model.JobFailed, jobs[0].State)
			assert.Error(t, jobs[0].Err)
			assert.True(t, exists(t, fs, "/base/202405/PatientA/Report_of_PATIENTA_CHEST_02_May24.pdf"))
			assert.False(t, exists(t, fs, "/zipped/PatientA.zip"))
			assert.False(t, exists(t, fs, "/zipped/PatientA.zip"+PartialExt))

			entries := outcomes.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, model.OutcomeArchiveFailed, entries[0].Kind)
			assert.Equal(t, ReasonWriteError, entries[0].Reason)
		})
	}
}

func TestRun_EmptyFolderIsNotDeleted(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/base/202405/Empty", 0o755))
	e, outcomes := newEngine(fs, Options{Delete: true})

	jobs, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobFailed, jobs[0].State)
	assert.True(t, exists(t, fs, "/base/202405/Empty"))
	assert.False(t, exists(t, fs, "/zipped/Empty.zip"), "unverified archive is removed")
	assert.Equal(t, ReasonVerifyFailed, outcomes.Entries()[0].Reason)
}

func TestRun_MissingMarker(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/202405/PatientC/scan.jpg", "jpg")
	writeFile(t, fs, "/base/202405/PatientD/REPORT.PDF", "pdf")
	e, outcomes := newEngine(fs, Options{Delete: true, RequireMarker: true})

	jobs, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, model.JobMissingMarker, jobs[0].State)
	assert.True(t, exists(t, fs, "/base/202405/PatientC"))
	assert.False(t, exists(t, fs, "/zipped/PatientC.zip"))

	assert.Equal(t, model.JobDeleted, jobs[1].State, "marker match ignores case")

	summary := report.Summarize(report.PhaseArchive, "", outcomes.Entries())
	assert.Equal(t, 1, summary.Count(model.OutcomeMissingMarker))
	assert.Equal(t, 0, summary.Failed)
}

func TestRun_NameConflict(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/202405/PatientA/a.pdf", "may")
	writeFile(t, fs, "/base/202406/PatientA/a.pdf", "june")
	writeFile(t, fs, "/base/202406/PatientB/b.pdf", "b")
	e, outcomes := newEngine(fs, Options{})

	jobs, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, model.JobNameConflict, jobs[0].State)
	assert.Equal(t, model.JobNameConflict, jobs[1].State)
	assert.Equal(t, model.JobDone, jobs[2].State)
	assert.False(t, exists(t, fs, "/zipped/PatientA.zip"))

	summary := report.Summarize(report.PhaseArchive, "", outcomes.Entries())
	assert.Equal(t, 2, summary.Count(model.OutcomeNameConflict))
}

func TestDiscover(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/202405/Ravi_Chest/a.pdf", "a")
	writeFile(t, fs, "/base/202405/Sita_KUB/b.pdf", "b")
	writeFile(t, fs, "/base/202405/.hidden/c.pdf", "c")
	writeFile(t, fs, "/base/202405/loose.pdf", "d")
	writeFile(t, fs, "/base/zipped/Old.zip", "zip")
	require.NoError(t, fs.MkdirAll("/base/zipped/Leftover", 0o755))

	tests := []struct {
		name     string
		keywords []string
		want     []string
	}{
		{name: "all folders", want: []string{"/base/202405/Ravi_Chest", "/base/202405/Sita_KUB"}},
		{name: "keyword filter", keywords: []string{"chest", "head"}, want: []string{"/base/202405/Ravi_Chest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(fs, Options{ZippedDir: "/base/zipped", Keywords: tt.keywords})
			jobs, err := e.Discover()
			require.NoError(t, err)

			var got []string
			for _, job := range jobs {
				got = append(got, job.FolderPath)
				assert.Equal(t, model.JobPending, job.State)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscover_StructuralErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/file", "x")

	e, _ := newEngine(fs, Options{BaseDir: "/missing"})
	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, common.ErrDirectoryNotFound)
	assert.True(t, common.IsStructural(err))

	e, _ = newEngine(fs, Options{BaseDir: "/file"})
	_, err = e.Discover()
	assert.ErrorIs(t, err, common.ErrNotADirectory)
}

func TestRun_ParallelJobs(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 0; i < 20; i++ {
		writeFile(t, fs, fmt.Sprintf("/base/2024%02d/Patient%02d/r.pdf", i%12+1, i), "pdf")
	}
	e, outcomes := newEngine(fs, Options{Workers: 4, Delete: true, RequireMarker: true})

	progress := &countingProgress{}
	e.SetProgress(progress)

	jobs, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, jobs, 20)
	assert.Equal(t, 20, progress.total)
	assert.Equal(t, int32(20), progress.advanced.Load())
	assert.True(t, progress.finished)
	assert.Equal(t, 20, outcomes.Len())
	for _, job := range jobs {
		assert.Equal(t, model.JobDeleted, job.State, job.FolderPath)
	}
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	fs := baseTree(t)
	e, outcomes := newEngine(fs, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobPending, jobs[0].State)
	assert.Zero(t, outcomes.Len())
}
