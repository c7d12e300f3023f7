package main

import (
	"github.com/spf13/cobra"
)

// newCmdConfig returns a command that shows the resolved configuration.
func newCmdConfig() *cobra.Command {
	return &cobra.Command{
		Use:                "config",
		Short:              "Show the resolved configuration (file, environment and flags)",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
