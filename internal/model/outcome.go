package model

import "time"

// OutcomeKind classifies how a report or archive job ended.
type OutcomeKind string

// Sort phase outcomes.
const (
	OutcomeRelocated      OutcomeKind = "relocated"
	OutcomeParseFailure   OutcomeKind = "parse-failure"
	OutcomeNotFound       OutcomeKind = "not-found"
	OutcomeAmbiguous      OutcomeKind = "ambiguous"
	OutcomeAlreadyPresent OutcomeKind = "already-present"
	OutcomeRelocateFailed OutcomeKind = "relocation-failure"
)

// Archive phase outcomes.
const (
	OutcomeArchived        OutcomeKind = "archived"
	OutcomeArchivedDeleted OutcomeKind = "archived-deleted"
	OutcomeAlreadyArchived OutcomeKind = "already-archived"
	OutcomeArchiveFailed   OutcomeKind = "archive-failure"
	OutcomeMissingMarker   OutcomeKind = "missing-marker"
	OutcomeNameConflict    OutcomeKind = "name-conflict"
	OutcomeArchiveMismatch OutcomeKind = "archive-mismatch"
)

// Succeeded reports whether the outcome counts as a success.
func (k OutcomeKind) Succeeded() bool {
	switch k {
	case OutcomeRelocated, OutcomeArchived, OutcomeArchivedDeleted, OutcomeAlreadyArchived:
		return true
	default:
		return false
	}
}

// Failed reports whether the outcome is an error rather than a skip.
func (k OutcomeKind) Failed() bool {
	return k == OutcomeRelocateFailed || k == OutcomeArchiveFailed
}

// Outcome is one entry of the outcome log.
type Outcome struct {
	Time       time.Time
	Item       string
	Kind       OutcomeKind
	Reason     string
	Detail     string
	Candidates []string // Tied folders for ambiguous matches
}
