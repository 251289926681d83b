// Package resolver matches parsed reports to patient folders in the
// destination tree.
package resolver

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/model"
	"github.com/spf13/afero"
)

// Tree is a snapshot of the destination layout: period folders and the
// patient folders inside them. It is read once per run.
type Tree struct {
	patients map[string][]model.PatientFolder // keyed by period path
	Root     string
	Periods  []model.PeriodFolder
}

// LoadTree scans root for period folders named YYYYMMDD or YYYYMM and lists
// the patient folders directly below each. Entries that are not period
// folders are ignored.
func LoadTree(fs afero.Fs, root string, logger *slog.Logger) (*Tree, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := common.CheckDir(fs, root); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination directory: %w", err)
	}

	tree := &Tree{
		Root:     root,
		patients: make(map[string][]model.PatientFolder),
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		period, ok := ParsePeriod(entry.Name())
		if !ok {
			logger.Debug("Ignoring non-period folder", "folder", entry.Name())
			continue
		}
		period.Path = filepath.Join(root, entry.Name())

		children, err := afero.ReadDir(fs, period.Path)
		if err != nil {
			logger.Warn("Could not list period folder", "folder", period.Path, "error", err)
			continue
		}

		var patients []model.PatientFolder
		for _, child := range children {
			if !child.IsDir() {
				continue
			}
			patients = append(patients, model.PatientFolder{
				Path:   filepath.Join(period.Path, child.Name()),
				Name:   child.Name(),
				Period: period,
			})
		}

		tree.Periods = append(tree.Periods, period)
		tree.patients[period.Path] = patients
	}

	sort.Slice(tree.Periods, func(i, j int) bool {
		return tree.Periods[i].Label < tree.Periods[j].Label
	})

	return tree, nil
}

// PeriodsBetween returns the period folders overlapping [from, to].
func (t *Tree) PeriodsBetween(from, to time.Time) []model.PeriodFolder {
	var out []model.PeriodFolder
	for _, p := range t.Periods {
		if p.Overlaps(from, to) {
			out = append(out, p)
		}
	}
	return out
}

// Patients returns the patient folders of a period.
func (t *Tree) Patients(period model.PeriodFolder) []model.PatientFolder {
	return t.patients[period.Path]
}

// PatientCount returns the number of patient folders in the tree.
func (t *Tree) PatientCount() int {
	n := 0
	for _, p := range t.patients {
		n += len(p)
	}
	return n
}

// ParsePeriod interprets a folder name as a day (YYYYMMDD) or month (YYYYMM)
// period.
func ParsePeriod(name string) (model.PeriodFolder, bool) {
	for _, r := range name {
		if r < '0' || r > '9' {
			return model.PeriodFolder{}, false
		}
	}

	switch len(name) {
	case 8:
		day, err := time.Parse("20060102", name)
		if err != nil {
			return model.PeriodFolder{}, false
		}
		return model.PeriodFolder{Label: name, Kind: model.PeriodDay, Start: day, End: day}, true
	case 6:
		month, err := time.Parse("200601", name)
		if err != nil {
			return model.PeriodFolder{}, false
		}
		return model.PeriodFolder{
			Label: name,
			Kind:  model.PeriodMonth,
			Start: month,
			End:   month.AddDate(0, 1, -1),
		}, true
	default:
		return model.PeriodFolder{}, false
	}
}
