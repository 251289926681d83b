package main

import (
	"slices"

	"github.com/Veraticus/radsort/internal/common"
	"github.com/Veraticus/radsort/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var archiveBindings = []flagBinding{
	{config.KeyBaseDir, "base"},
	{config.KeyZippedDir, "zipped"},
	{config.KeyWorkers, "workers"},
	{config.KeyDelete, "delete"},
	{config.KeyRequireMarker, "require-marker"},
	{config.KeyMarkerExt, "marker-ext"},
	{config.KeyKeywords, "keywords"},
	{config.KeyMarkerReport, "marker-report"},
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Zip patient folders into the zipped directory",
		Long: `Zip every patient folder found at base/<period>/<patient> into
<zipped>/<patient>.zip. Folders whose archive already exists are skipped, so an
interrupted run can simply be repeated.

With --delete the source folder is removed once its archive has been written
and verified. Destructive runs skip folders without a marker file (.pdf by
default) unless --require-marker=false is given.

Examples:
  radsort archive --base /srv/reports --zipped /srv/zipped
  radsort archive --base /srv/reports --zipped /srv/zipped --delete --workers 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindings := slices.Concat(archiveBindings, []flagBinding{{config.KeyArchiveSummary, "summary-file"}})
			if err := bindFlags(cmd, bindings...); err != nil {
				return err
			}
			cfg := config.Load(viper.GetViper())
			if err := cfg.ValidateArchive(); err != nil {
				return common.NewUserError("Invalid archive configuration", err)
			}
			_, err := runArchivePhase(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	}

	addArchiveFlags(cmd)
	cmd.Flags().String("summary-file", "", "write a YAML summary of the archive phase to this file")
	return cmd
}

func addArchiveFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("base", "b", "", "base directory of period/patient folders")
	cmd.Flags().StringP("zipped", "z", "", "directory receiving <patient>.zip archives")
	cmd.Flags().IntP("workers", "w", 0, "concurrent archive jobs (default: number of CPUs)")
	cmd.Flags().Bool("delete", false, "delete each source folder after its archive is verified")
	cmd.Flags().Bool("require-marker", false, "only archive folders holding a marker file (default on with --delete)")
	cmd.Flags().String("marker-ext", ".pdf", "extension of the marker file")
	cmd.Flags().StringSlice("keywords", nil, "only archive folders whose name contains one of these words")
	cmd.Flags().String("marker-report", "missing_marker_folders.txt", "list of folders skipped for a missing marker")
}
