package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xupit3r/tunebox/internal/system"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Tunebox v%s (%s)\n", version, system.GetPlatform())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
