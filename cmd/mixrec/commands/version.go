package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/mixrec/cmd/mixrec/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if structured() {
			return output(cmd, build.Get())
		}
		printf(cmd, "%s\n", build.String())
		if verbose {
			info := build.Get()
			printf(cmd, "  go:     %s\n", info.Go)
			if p, err := appPaths(); err == nil {
				printf(cmd, "  config: %s\n", p.ConfigFile())
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
