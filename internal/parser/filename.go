// Package parser extracts patient identity fields from report filenames.
package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Veraticus/radsort/internal/model"
	"golang.org/x/text/unicode/norm"
)

// ReasonUnparseable is the outcome reason recorded for every parse failure.
const ReasonUnparseable = "unparseable-filename"

// ErrorKind identifies why a filename could not be parsed.
type ErrorKind string

// Parse failure kinds.
const (
	KindTemplateMismatch ErrorKind = "template-mismatch"
	KindEmptyName        ErrorKind = "empty-name"
	KindDayOutOfRange    ErrorKind = "day-out-of-range"
	KindUnknownMonth     ErrorKind = "unknown-month"
)

// Error is returned when a filename does not fit the report template.
type Error struct {
	Filename string
	Kind     ErrorKind
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Filename, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Filename, e.Kind)
}

// Reason returns the outcome reason for the failure.
func (e *Error) Reason() string {
	return ReasonUnparseable
}

// BodyPartKeywords are the scan-type tokens recognized in the descriptor.
var BodyPartKeywords = []string{
	"BRAIN", "THORAX", "KUB", "HRCT", "NCCT", "CECT", "PNS",
	"CHEST", "ABDOMEN", "PELVIS", "NECK", "HEAD", "SPINE",
}

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var fullMonths = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// sep matches the separators tolerated around template segments.
const sep = `[ _\-]*`

var (
	// Report_of_<NAME>[_<descriptor>]_<day>_<month><yy>
	reportOfPattern = regexp.MustCompile(`(?i)^.*?report` + sep + `of[ _\-]+` +
		`([^_]+?)` + sep + `(?:_(.*?))?` + sep + `_` + sep +
		`(\d{1,2})` + sep + `_` + sep + `([a-z]+)` + sep + `(\d{4}|\d{2})$`)

	// <prefix>_<NAME>[_<descriptor>]_<day>_<month><yy>
	genericPattern = regexp.MustCompile(`(?i)^[^_]+_` + sep +
		`([^_]+?)` + sep + `(?:_(.*?))?` + sep + `_` + sep +
		`(\d{1,2})` + sep + `_` + sep + `([a-z]+)` + sep + `(\d{4}|\d{2})$`)

	reportOfPrefix  = regexp.MustCompile(`(?i)report` + sep + `of[ _\-]`)
	duplicateSuffix = regexp.MustCompile(`\s*\(\d+\)$`)
	extension       = regexp.MustCompile(`\.[A-Za-z0-9]+$`)
	nonAlnum        = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// Parse extracts the patient name, report date and body-part descriptor
// from a report filename. It never panics; every malformed input yields an
// *Error.
func Parse(filename string) (*model.ParsedFields, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSpace(base)
	if loc := extension.FindStringIndex(stem); loc != nil {
		stem = stem[:loc[0]]
	}
	stem = duplicateSuffix.ReplaceAllString(stem, "")

	m := reportOfPattern.FindStringSubmatch(stem)
	if m == nil && !reportOfPrefix.MatchString(stem) {
		m = genericPattern.FindStringSubmatch(stem)
	}
	if m == nil {
		return nil, &Error{Filename: base, Kind: KindTemplateMismatch}
	}

	name := NormalizeName(m[1])
	if name == "" {
		return nil, &Error{Filename: base, Kind: KindEmptyName}
	}

	day, err := strconv.Atoi(m[3])
	if err != nil || day < 1 || day > 31 {
		return nil, &Error{Filename: base, Kind: KindDayOutOfRange, Detail: m[3]}
	}

	month, ok := lookupMonth(m[4])
	if !ok {
		return nil, &Error{Filename: base, Kind: KindUnknownMonth, Detail: m[4]}
	}

	year, _ := strconv.Atoi(m[5])
	if len(m[5]) == 2 {
		year += 2000
	}

	bodyPart := collapseSpaces(strings.ToUpper(strings.Trim(m[2], " _-")))

	return &model.ParsedFields{
		Filename:    base,
		PatientName: name,
		BodyPart:    bodyPart,
		Keywords:    Keywords(bodyPart),
		Date:        model.ReportDate{Year: year, Month: month, Day: day},
	}, nil
}

// NormalizeName uppercases a name, turns punctuation into spaces and
// collapses whitespace. Letters outside ASCII are kept, and decomposed
// accents are composed first so both spellings of JOSÉ normalize alike.
func NormalizeName(s string) string {
	s = norm.NFC.String(strings.ToUpper(s))
	return strings.TrimSpace(nonAlnum.ReplaceAllString(s, " "))
}

// Keywords returns the known scan-type keywords present in a descriptor,
// in the order they appear.
func Keywords(descriptor string) []string {
	var found []string
	for _, word := range strings.Fields(NormalizeName(descriptor)) {
		for _, kw := range BodyPartKeywords {
			if word == kw {
				found = append(found, kw)
				break
			}
		}
	}
	return found
}

func lookupMonth(s string) (int, bool) {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return 0, false
	}
	month, ok := months[s[:3]]
	if !ok {
		return 0, false
	}
	if len(s) > 3 && !strings.HasPrefix(fullMonths[month-1], s) {
		return 0, false
	}
	return month, true
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
