package main

import (
	"fmt"
	"slices"

	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sort reports, then archive patient folders",
		Long: `Run the sort phase and, only if it succeeds, the archive phase.

Both phases read the same configuration as the sort and archive commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindings := slices.Concat(sortBindings, archiveBindings, []flagBinding{
				{config.KeySortSummary, "sort-summary-file"},
				{config.KeyArchiveSummary, "archive-summary-file"},
			})
			if err := bindFlags(cmd, bindings...); err != nil {
				return err
			}
			cfg := config.Load(viper.GetViper())
			if err := cfg.ValidateSort(); err != nil {
				return common.NewUserError("Invalid sort configuration", err)
			}
			if err := cfg.ValidateArchive(); err != nil {
				return common.NewUserError("Invalid archive configuration", err)
			}

			out := cmd.OutOrStdout()
			if _, err := runSortPhase(cmd.Context(), cfg, out); err != nil {
				return fmt.Errorf("sort phase failed, archival not started: %w", err)
			}
			_, err := runArchivePhase(cmd.Context(), cfg, out)
			return err
		},
	}

	addSortFlags(cmd)
	addArchiveFlags(cmd)
	cmd.Flags().String("sort-summary-file", "", "write a YAML summary of the sort phase to this file")
	cmd.Flags().String("archive-summary-file", "", "write a YAML summary of the archive phase to this file")
	return cmd
}
