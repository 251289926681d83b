package model

import (
	"fmt"
	"time"
)

// ReportDate is the raw day/month/year triple parsed from a report filename.
// It is not validated against the calendar: Feb 30 is a legal value here and
// Time normalizes it the way time.Date does.
type ReportDate struct {
	Year  int
	Month int
	Day   int
}

// Time returns the date at midnight UTC.
func (d ReportDate) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

func (d ReportDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// ParsedFields holds the identity fields recovered from a report filename.
type ParsedFields struct {
	Filename    string
	PatientName string   // Uppercase, whitespace collapsed
	BodyPart    string   // Descriptor segment, uppercase, may be empty
	Keywords    []string // Known scan-type keywords found in BodyPart
	Date        ReportDate
}

// ReportFile is a loose PDF report discovered in the source directory.
type ReportFile struct {
	Fields *ParsedFields
	Age    *int // Only set by content extraction
	Path   string
	Name   string
}
