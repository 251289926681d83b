package resolver

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/Veraticus/radsort/internal/model"
)

// Resolution failure reasons.
const (
	ReasonNoFolderInRange = "no folder in date range"
	ReasonNoNameMatch     = "no name match"
	ReasonAmbiguous       = "ambiguous match"
)

// Default search window, in days around the report date.
const (
	DefaultDateRangeDays = 7
	DefaultLookaheadDays = 1
	DefaultFuzzyDistance = 1
)

// Status is the kind of result produced by Resolve.
type Status string

// Resolution statuses.
const (
	StatusResolved  Status = "resolved"
	StatusNotFound  Status = "not-found"
	StatusAmbiguous Status = "ambiguous"
)

// Step records how many candidates survived a tier.
type Step struct {
	Tier      model.Tier
	Remaining int
	Applied   bool // False when the tier had no data or did not narrow the set
}

// Result is the outcome of resolving one report. Match is set only when
// Status is StatusResolved; Candidates lists the tied folders of an
// ambiguous result.
type Result struct {
	Match      *model.MatchCandidate
	Status     Status
	Tier       model.Tier // Tier that decided the result
	Reason     string
	Candidates []model.PatientFolder
	Steps      []Step
}

// CandidatePaths returns the paths of the tied candidates.
func (r Result) CandidatePaths() []string {
	paths := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		paths[i] = c.Path
	}
	return paths
}

// AgeExtractor reads a patient age out of a report file.
type AgeExtractor interface {
	ExtractAge(ctx context.Context, path string) (int, bool)
}

// Options configures the search window and name matching.
type Options struct {
	Ages          AgeExtractor // Optional; enables the age tier
	DateRangeDays int          // Days before the report date to search
	LookaheadDays int          // Days after the report date to search
	FuzzyDistance int          // Maximum edit distance for fuzzy names; 0 disables it
}

// DefaultOptions returns the standard search window.
func DefaultOptions() Options {
	return Options{
		DateRangeDays: DefaultDateRangeDays,
		LookaheadDays: DefaultLookaheadDays,
		FuzzyDistance: DefaultFuzzyDistance,
	}
}

// Resolver finds the single patient folder a report belongs to.
type Resolver struct {
	tree   *Tree
	logger *slog.Logger
	opts   Options
}

// New creates a resolver over a destination tree snapshot.
func New(tree *Tree, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DateRangeDays < 0 {
		opts.DateRangeDays = 0
	}
	if opts.LookaheadDays < 0 {
		opts.LookaheadDays = 0
	}
	return &Resolver{tree: tree, opts: opts, logger: logger}
}

type candidate struct {
	folder model.PatientFolder
	name   folderName
}

// Resolve applies the tiers in order: date window, name, age, body part.
// It never picks between tied folders; more than one survivor after the
// last tier is reported as ambiguous. When the age tier runs and the report
// has no age yet, the configured extractor fills report.Age.
func (r *Resolver) Resolve(ctx context.Context, report *model.ReportFile) Result {
	fields := report.Fields
	var res Result

	// Tier 1: date window.
	date := fields.Date.Time()
	from := date.AddDate(0, 0, -r.opts.DateRangeDays)
	to := date.AddDate(0, 0, r.opts.LookaheadDays)

	var pool []candidate
	for _, period := range r.tree.PeriodsBetween(from, to) {
		for _, pf := range r.tree.Patients(period) {
			pool = append(pool, candidate{folder: pf, name: parseFolderName(pf.Name)})
		}
	}
	res.Steps = append(res.Steps, Step{Tier: model.TierDateWindow, Remaining: len(pool), Applied: true})
	if len(pool) == 0 {
		return notFound(res, model.TierDateWindow, ReasonNoFolderInRange)
	}

	// Tier 2: name, exact before fuzzy.
	nameTier := model.TierExactName
	matched := filter(pool, func(c candidate) bool { return c.name.exactMatch(fields.PatientName) })
	if len(matched) == 0 {
		nameTier = model.TierFuzzyName
		matched = filter(pool, func(c candidate) bool {
			return c.name.fuzzyMatch(fields.PatientName, r.opts.FuzzyDistance)
		})
	}
	res.Steps = append(res.Steps, Step{Tier: nameTier, Remaining: len(matched), Applied: true})
	if len(matched) == 0 {
		return notFound(res, nameTier, ReasonNoNameMatch)
	}
	if len(matched) == 1 {
		return resolved(res, report, matched[0], nameTier)
	}

	// Tier 3: age.
	if age, ok := r.reportAge(ctx, report); ok {
		narrowed := filter(matched, func(c candidate) bool { return c.name.hasAge(age) })
		applied := len(narrowed) > 0
		if applied {
			matched = narrowed
		}
		res.Steps = append(res.Steps, Step{Tier: model.TierAge, Remaining: len(matched), Applied: applied})
		if len(matched) == 1 {
			return resolved(res, report, matched[0], model.TierAge)
		}
	}

	// Tier 4: body part.
	if tokens := bodyPartTokens(fields); len(tokens) > 0 {
		best := 0
		for _, c := range matched {
			best = max(best, c.name.tokenScore(tokens))
		}
		applied := best > 0
		if applied {
			matched = filter(matched, func(c candidate) bool { return c.name.tokenScore(tokens) == best })
		}
		res.Steps = append(res.Steps, Step{Tier: model.TierBodyPart, Remaining: len(matched), Applied: applied})
		if len(matched) == 1 {
			return resolved(res, report, matched[0], model.TierBodyPart)
		}
	}

	res.Status = StatusAmbiguous
	res.Tier = res.Steps[len(res.Steps)-1].Tier
	res.Reason = ReasonAmbiguous
	for _, c := range matched {
		res.Candidates = append(res.Candidates, c.folder)
	}
	sort.Slice(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].Path < res.Candidates[j].Path
	})

	r.logger.Debug("Ambiguous folder match",
		"file", report.Name,
		"patient", fields.PatientName,
		"candidates", res.CandidatePaths())
	return res
}

func (r *Resolver) reportAge(ctx context.Context, report *model.ReportFile) (int, bool) {
	if report.Age != nil {
		return *report.Age, true
	}
	if r.opts.Ages == nil {
		return 0, false
	}
	age, ok := r.opts.Ages.ExtractAge(ctx, report.Path)
	if !ok {
		return 0, false
	}
	report.Age = &age
	return age, true
}

func notFound(res Result, tier model.Tier, reason string) Result {
	res.Status = StatusNotFound
	res.Tier = tier
	res.Reason = reason
	return res
}

func resolved(res Result, report *model.ReportFile, c candidate, tier model.Tier) Result {
	res.Status = StatusResolved
	res.Tier = tier
	res.Match = &model.MatchCandidate{Report: report, Folder: c.folder, Tier: tier}
	return res
}

// Folder returns the resolved folder, or nil when the report was not
// resolved.
func (r Result) Folder() *model.PatientFolder {
	if r.Match == nil {
		return nil
	}
	return &r.Match.Folder
}

// bodyPartTokens returns the keywords found in the descriptor, falling back
// to its plain words.
func bodyPartTokens(fields *model.ParsedFields) []string {
	if len(fields.Keywords) > 0 {
		return fields.Keywords
	}
	return strings.FieldsFunc(fields.BodyPart, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func filter(in []candidate, keep func(candidate) bool) []candidate {
	var out []candidate
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
