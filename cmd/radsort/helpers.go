package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagBinding ties a command flag to a configuration key.
type flagBinding struct {
	key  string
	flag string
}

// bindFlags binds the running command's flags. Binding happens at run time
// because several commands expose the same keys.
func bindFlags(cmd *cobra.Command, bindings ...flagBinding) error {
	for _, b := range bindings {
		f := cmd.Flags().Lookup(b.flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", b.flag)
		}
		if err := viper.BindPFlag(b.key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", b.flag, err)
		}
	}
	return nil
}
