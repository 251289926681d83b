package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Veraticus/radsort/internal/model"
	"gopkg.in/yaml.v3"
)

// Phase names used in summaries.
const (
	PhaseSort    = "sort"
	PhaseArchive = "archive"
)

// AmbiguousDetail lists the folders an ambiguous report could belong to.
type AmbiguousDetail struct {
	Item       string   `yaml:"item"`
	Candidates []string `yaml:"candidates"`
}

// FailureDetail describes a failed item.
type FailureDetail struct {
	Item   string `yaml:"item"`
	Reason string `yaml:"reason"`
	Detail string `yaml:"detail,omitempty"`
}

// ReasonCount is one bucket of the skip-reason histogram.
type ReasonCount struct {
	Reason string `yaml:"reason"`
	Count  int    `yaml:"count"`
}

// Summary aggregates an outcome log.
type Summary struct {
	GeneratedAt time.Time                 `yaml:"generated_at"`
	ByKind      map[model.OutcomeKind]int `yaml:"by_kind"`
	Phase       string                    `yaml:"phase"`
	RunID       string                    `yaml:"run_id,omitempty"`
	SkipReasons []ReasonCount             `yaml:"skip_reasons,omitempty"`
	Ambiguous   []AmbiguousDetail         `yaml:"ambiguous,omitempty"`
	Failures    []FailureDetail           `yaml:"failures,omitempty"`
	Total       int                       `yaml:"total"`
	Succeeded   int                       `yaml:"succeeded"`
	Skipped     int                       `yaml:"skipped"`
	Failed      int                       `yaml:"failed"`
}

// Summarize builds the summary of a phase from its outcome entries. Skip
// reasons are ordered by count, then by reason.
func Summarize(phase, runID string, entries []model.Outcome) Summary {
	s := Summary{
		GeneratedAt: time.Now(),
		Phase:       phase,
		RunID:       runID,
		ByKind:      make(map[model.OutcomeKind]int),
		Total:       len(entries),
	}

	reasons := make(map[string]int)
	for _, e := range entries {
		s.ByKind[e.Kind]++
		switch {
		case e.Kind.Succeeded():
			s.Succeeded++
		case e.Kind.Failed():
			s.Failed++
			s.Failures = append(s.Failures, FailureDetail{Item: e.Item, Reason: e.Reason, Detail: e.Detail})
		default:
			s.Skipped++
			reasons[e.Reason]++
		}
		if e.Kind == model.OutcomeAmbiguous {
			s.Ambiguous = append(s.Ambiguous, AmbiguousDetail{Item: e.Item, Candidates: e.Candidates})
		}
	}

	for reason, n := range reasons {
		s.SkipReasons = append(s.SkipReasons, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(s.SkipReasons, func(i, j int) bool {
		if s.SkipReasons[i].Count != s.SkipReasons[j].Count {
			return s.SkipReasons[i].Count > s.SkipReasons[j].Count
		}
		return s.SkipReasons[i].Reason < s.SkipReasons[j].Reason
	})

	return s
}

// Count returns the number of outcomes of kind k.
func (s Summary) Count(k model.OutcomeKind) int {
	return s.ByKind[k]
}

// WriteYAML writes the machine-readable form of the summary.
func (s Summary) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return enc.Close()
}

// ReadYAML decodes a summary written by WriteYAML.
func ReadYAML(r io.Reader) (Summary, error) {
	var s Summary
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	return s, nil
}
