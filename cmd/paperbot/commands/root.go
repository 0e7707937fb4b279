package commands

import (
	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the paperbot CLI. Without a subcommand the bot is started.
func Execute() error {
	root := &cobra.Command{
		Use:          "paperbot",
		Short:        "Telegram storefront for question papers",
		SilenceUsage: true,
		RunE:         runBot,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (overrides CONFIG_PATH)")

	root.AddCommand(runCmd(), versionCmd())
	return root.Execute()
}
