package archive

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/model"
	"github.com/spf13/afero"
)

// Discover lists one pending job per patient folder, base/<period>/<patient>,
// sorted by folder path. The zipped directory and hidden entries are skipped
// at both levels. Same-named folders are marked as name conflicts.
func (e *Engine) Discover() ([]*model.ArchiveJob, error) {
	if err := common.CheckDir(e.fs, e.opts.BaseDir); err != nil {
		return nil, err
	}

	periods, err := afero.ReadDir(e.fs, e.opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("read base directory: %w", err)
	}

	var jobs []*model.ArchiveJob
	for _, period := range periods {
		periodPath := filepath.Join(e.opts.BaseDir, period.Name())
		if !period.IsDir() || e.skip(periodPath, period.Name()) {
			continue
		}

		patients, err := afero.ReadDir(e.fs, periodPath)
		if err != nil {
			e.logger.Warn("Could not read period folder", "folder", periodPath, "error", err)
			continue
		}
		for _, patient := range patients {
			folder := filepath.Join(periodPath, patient.Name())
			if !patient.IsDir() || e.skip(folder, patient.Name()) || !e.matchesKeywords(patient.Name()) {
				continue
			}
			jobs = append(jobs, &model.ArchiveJob{
				FolderPath:  folder,
				ArchivePath: filepath.Join(e.opts.ZippedDir, patient.Name()+ArchiveExt),
				Name:        patient.Name(),
				State:       model.JobPending,
				Delete:      e.opts.Delete,
			})
		}
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FolderPath < jobs[j].FolderPath })
	markConflicts(jobs)
	return jobs, nil
}

func (e *Engine) skip(path, name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return filepath.Clean(path) == filepath.Clean(e.opts.ZippedDir)
}

func (e *Engine) matchesKeywords(name string) bool {
	if len(e.opts.Keywords) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, kw := range e.opts.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// markConflicts flags every job whose archive name is shared with another
// job; none of them can be archived without overwriting the other.
func markConflicts(jobs []*model.ArchiveJob) {
	byName := make(map[string][]*model.ArchiveJob)
	for _, job := range jobs {
		byName[job.Name] = append(byName[job.Name], job)
	}
	for _, group := range byName {
		if len(group) < 2 {
			continue
		}
		for _, job := range group {
			job.State = model.JobNameConflict
		}
	}
}
