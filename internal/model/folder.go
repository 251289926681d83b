package model

import "time"

// PeriodKind distinguishes day-stamped from month-stamped period folders.
type PeriodKind string

// Period folder kinds.
const (
	PeriodDay   PeriodKind = "day"   // YYYYMMDD
	PeriodMonth PeriodKind = "month" // YYYYMM
)

// PeriodFolder is a top-level destination folder named by date or month.
// Period folders group patient folders and are never match targets themselves.
type PeriodFolder struct {
	Start time.Time // First day covered, midnight UTC
	End   time.Time // Last day covered, midnight UTC
	Path  string
	Label string
	Kind  PeriodKind
}

// Overlaps reports whether the period shares at least one day with [from, to].
func (p PeriodFolder) Overlaps(from, to time.Time) bool {
	return !p.End.Before(from) && !p.Start.After(to)
}

// PatientFolder is a leaf destination directory holding one patient's
// records for a period.
type PatientFolder struct {
	Path   string
	Name   string
	Period PeriodFolder
}

// Tier names the matching rule that produced or narrowed a candidate.
type Tier string

// Resolver tiers in evaluation order.
const (
	TierDateWindow Tier = "date-window"
	TierExactName  Tier = "exact-name"
	TierFuzzyName  Tier = "fuzzy-name"
	TierAge        Tier = "age"
	TierBodyPart   Tier = "body-part"
)

// MatchCandidate pairs a report with a folder it might belong to.
type MatchCandidate struct {
	Report *ReportFile
	Folder PatientFolder
	Tier   Tier
}
