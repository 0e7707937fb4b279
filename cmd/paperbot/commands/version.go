package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/paperbot/core/buildinfo"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date := buildinfo.Date
			if date == "" {
				date = "unknown"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "paperbot %s (commit %s, built %s)\n",
				buildinfo.Version, buildinfo.Commit, date)
			return err
		},
	}
}
