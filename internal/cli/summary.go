package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/radsort/internal/model"
	"github.com/Veraticus/radsort/internal/report"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var phaseKinds = map[string][]model.OutcomeKind{
	report.PhaseSort: {
		model.OutcomeRelocated,
		model.OutcomeAlreadyPresent,
		model.OutcomeParseFailure,
		model.OutcomeNotFound,
		model.OutcomeAmbiguous,
		model.OutcomeRelocateFailed,
	},
	report.PhaseArchive: {
		model.OutcomeArchived,
		model.OutcomeArchivedDeleted,
		model.OutcomeAlreadyArchived,
		model.OutcomeMissingMarker,
		model.OutcomeNameConflict,
		model.OutcomeArchiveMismatch,
		model.OutcomeArchiveFailed,
	},
}

// RenderSummary renders the console summary of a phase.
func RenderSummary(s report.Summary) string {
	title := ReportIcon + " Sort summary"
	if s.Phase == report.PhaseArchive {
		title = ArchiveIcon + " Archive summary"
	}

	var b strings.Builder
	row := func(label string, n int, style lipgloss.Style) {
		cell := TableCellStyle.Render(fmt.Sprintf("%-24s", label))
		b.WriteString(cell + style.Render(humanize.Comma(int64(n))) + "\n")
	}

	row("Processed", s.Total, BoldStyle)
	row("Succeeded", s.Succeeded, SuccessStyle)
	row("Skipped", s.Skipped, WarningStyle)
	row("Failed", s.Failed, ErrorStyle)

	b.WriteString("\n")
	for _, kind := range phaseKinds[s.Phase] {
		if n := s.Count(kind); n > 0 {
			row("  "+string(kind), n, lipgloss.NewStyle())
		}
	}

	if len(s.SkipReasons) > 0 {
		b.WriteString("\n" + BoldStyle.Render("Skipped by reason") + "\n")
		for _, rc := range s.SkipReasons {
			row("  "+rc.Reason, rc.Count, WarningStyle)
		}
	}

	if len(s.Ambiguous) > 0 {
		b.WriteString("\n" + BoldStyle.Render("Ambiguous matches") + "\n")
		for _, a := range s.Ambiguous {
			b.WriteString("  " + a.Item + "\n")
			for _, c := range a.Candidates {
				b.WriteString(SubtleStyle.Render("    → "+c) + "\n")
			}
		}
	}

	if len(s.Failures) > 0 {
		b.WriteString("\n" + BoldStyle.Render("Failures") + "\n")
		for _, f := range s.Failures {
			line := fmt.Sprintf("%s: %s", f.Item, f.Reason)
			if f.Detail != "" {
				line += " (" + f.Detail + ")"
			}
			b.WriteString("  " + FormatError(line) + "\n")
		}
	}

	return RenderBox(title, strings.TrimRight(b.String(), "\n"))
}
