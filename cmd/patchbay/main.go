package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/kompox/patchbay/adapters/drivers/engine/godot"
	_ "github.com/kompox/patchbay/adapters/drivers/engine/playcanvas"
	_ "github.com/kompox/patchbay/adapters/drivers/engine/unreal"
	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/internal/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patchbay",
		Short:   "Patchbay CLI",
		Long:    "Patchbay routes structured game-dev commands to per-workspace engine backends.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help by default when no subcommand is provided.
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Config file (env "+patchbaycfg.EnvConfig+") (default ./"+patchbaycfg.DefaultFileName+" if present)")
	cmd.PersistentFlags().String("db-url", "", "Database URL (env "+patchbaycfg.EnvDBURL+") (file:/path/to/seed.yml | sqlite:/path/to.db | postgres://)")
	cmd.PersistentFlags().String("log-format", "", "Log format (human|text|json) (env "+patchbaycfg.EnvLogFormat+")")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		l, err := logging.New(cfg.Logging.Format, level)
		if err != nil {
			return err
		}
		ctx := logging.WithLogger(c.Context(), l)
		c.SetContext(ctx)
		return nil
	}

	cmd.AddCommand(newCmdVersion())
	cmd.AddCommand(newCmdConfig())
	cmd.AddCommand(newCmdServe())
	cmd.AddCommand(newCmdCommand())
	cmd.AddCommand(newCmdEnvelope())
	cmd.AddCommand(newCmdPatch())
	cmd.AddCommand(newCmdSession())
	cmd.AddCommand(newCmdAdmin())
	return cmd
}

func main() {
	root := newRootCmd()
	root.SetContext(context.Background())
	executed, err := root.ExecuteC()
	if err != nil {
		ctx := root.Context()
		if executed != nil {
			ctx = executed.Context()
		}
		logging.FromContext(ctx).Errorf(ctx, "Failed: %s", err)
		os.Exit(1)
	}
}
