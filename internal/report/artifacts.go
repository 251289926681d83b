package report

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/radsort/internal/model"
	"github.com/spf13/afero"
)

const (
	heavyRule = "=================================================="
	lightRule = "--------------------------------------------------"
)

// WriteSkippedReport writes the grouped skipped-reports artifact: every
// non-successful sort outcome, grouped by reason in first-seen order.
// It writes nothing when no report was skipped.
func WriteSkippedReport(w io.Writer, entries []model.Outcome, generatedAt time.Time) error {
	var order []string
	groups := make(map[string][]model.Outcome)
	for _, e := range entries {
		if e.Kind.Succeeded() {
			continue
		}
		if _, ok := groups[e.Reason]; !ok {
			order = append(order, e.Reason)
		}
		groups[e.Reason] = append(groups[e.Reason], e)
	}
	if len(order) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "--- Skipped Reports Log ---")
	fmt.Fprintf(bw, "Generated on: %s\n", generatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "%s\n\n", heavyRule)

	for _, reason := range order {
		items := groups[reason]
		fmt.Fprintf(bw, "Reason: %s (%d files)\n", reason, len(items))
		fmt.Fprintln(bw, lightRule)
		for _, e := range items {
			fmt.Fprintf(bw, "- %s\n", e.Item)
			if e.Detail != "" {
				fmt.Fprintf(bw, "    %s\n", e.Detail)
			}
			for _, c := range e.Candidates {
				fmt.Fprintf(bw, "    candidate: %s\n", c)
			}
		}
		fmt.Fprintln(bw)
	}

	return bw.Flush()
}

// WriteMarkerReport lists the folders skipped for lacking a marker file.
// It writes nothing when no folder was skipped for that reason.
func WriteMarkerReport(w io.Writer, entries []model.Outcome, generatedAt time.Time) error {
	var folders []model.Outcome
	for _, e := range entries {
		if e.Kind == model.OutcomeMissingMarker {
			folders = append(folders, e)
		}
	}
	if len(folders) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "--- Folders Skipped: Missing Marker File ---")
	fmt.Fprintf(bw, "Generated on: %s\n", generatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "%s\n\n", heavyRule)
	for _, e := range folders {
		line := "- " + e.Item
		if e.Detail != "" {
			line += " (" + strings.TrimSpace(e.Detail) + ")"
		}
		fmt.Fprintln(bw, line)
	}
	return bw.Flush()
}

// SaveArtifact writes an artifact to path through write. A writer that
// produces no output leaves no file behind.
func SaveArtifact(fs afero.Fs, path string, write func(io.Writer) error) (bool, error) {
	var sb strings.Builder
	if err := write(&sb); err != nil {
		return false, err
	}
	if sb.Len() == 0 {
		return false, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create artifact directory: %w", err)
		}
	}
	if err := afero.WriteFile(fs, path, []byte(sb.String()), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
