package main

import (
	"slices"

	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sortBindings = []flagBinding{
	{config.KeySourceDir, "source"},
	{config.KeyDestinationDir, "destination"},
	{config.KeyMode, "mode"},
	{config.KeyDateRangeDays, "date-range"},
	{config.KeyLookaheadDays, "lookahead"},
	{config.KeyFuzzyDistance, "fuzzy-distance"},
	{config.KeySkippedReport, "skipped-report"},
}

func sortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Relocate loose report PDFs into matching patient folders",
		Long: `Parse each report filename in the source directory, find the one patient
folder it belongs to in the destination tree, and copy (basic mode) or move
(advanced mode) it there.

Reports that cannot be parsed, have no matching folder, or match several
folders equally well are left in place and listed in the skipped report.

Examples:
  radsort sort --source ~/Downloads/reports --destination /srv/reports
  radsort sort --mode advanced --date-range 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindings := slices.Concat(sortBindings, []flagBinding{{config.KeySortSummary, "summary-file"}})
			if err := bindFlags(cmd, bindings...); err != nil {
				return err
			}
			cfg := config.Load(viper.GetViper())
			if err := cfg.ValidateSort(); err != nil {
				return common.NewUserError("Invalid sort configuration", err)
			}
			_, err := runSortPhase(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	}

	addSortFlags(cmd)
	cmd.Flags().String("summary-file", "", "write a YAML summary of the sort phase to this file")
	return cmd
}

func addSortFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("source", "s", "", "directory of loose report PDFs")
	cmd.Flags().StringP("destination", "d", "", "destination tree of period/patient folders")
	cmd.Flags().String("mode", "basic", "basic (copy, filename only) or advanced (move, reads age from PDF)")
	cmd.Flags().Int("date-range", 7, "days before the report date to search for folders")
	cmd.Flags().Int("lookahead", 1, "days after the report date to search for folders")
	cmd.Flags().Int("fuzzy-distance", 1, "maximum edit distance for fuzzy name matches (0 disables)")
	cmd.Flags().String("skipped-report", "skipped_reports.txt", "grouped list of reports that were not relocated")
}
