// Package report collects per-item outcomes and renders run summaries.
package report

import (
	"slices"
	"sync"
	"time"

	"github.com/Veraticus/radsort/internal/model"
)

// Log is an append-only outcome log. It is safe for concurrent appends from
// archive workers; entries are never modified once appended.
type Log struct {
	now     func() time.Time
	entries []model.Outcome
	mu      sync.Mutex
}

// NewLog creates an empty outcome log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append records an outcome, stamping it with the current time if unset.
func (l *Log) Append(o model.Outcome) {
	if o.Time.IsZero() {
		o.Time = l.now()
	}
	o.Candidates = slices.Clone(o.Candidates)

	l.mu.Lock()
	l.entries = append(l.entries, o)
	l.mu.Unlock()
}

// Entries returns a copy of the log in append order.
func (l *Log) Entries() []model.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Outcome, len(l.entries))
	for i, e := range l.entries {
		e.Candidates = slices.Clone(e.Candidates)
		out[i] = e
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Progress receives item updates from a running phase. Advance is never
// called concurrently.
type Progress interface {
	Start(total int)
	Advance(o model.Outcome)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int) {}
func (nopProgress) Advance(model.Outcome) {}
func (nopProgress) Finish() {}

// NopProgress returns a Progress that discards updates.
func NopProgress() Progress { return nopProgress{} }
