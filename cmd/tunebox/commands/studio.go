package commands

import (
	"github.com/spf13/cobra"
	"github.com/xupit3r/tunebox/internal/tui"
)

var studioCmd = &cobra.Command{
	Use:   "studio",
	Short: "Open the fine-tune and chat terminal UI",
	Long: `Open a terminal UI with two views:

  Fine Tune Model   runs "tunebox finetune" and follows its progress
  Chat with Model   sends messages to a checkpoint through "tunebox chat"

Switch views with F1/F2 or ctrl+t, quit with ctrl+c.`,
	Args: cobra.NoArgs,
	RunE: runStudio,
}

func init() {
	rootCmd.AddCommand(studioCmd)
}

func runStudio(cmd *cobra.Command, args []string) error {
	c := currentConfig()

	// logs would tear the alternate screen
	setupLogging(false)

	var extra []string
	if cfgFile != "" {
		extra = append(extra, "--config", cfgFile)
	}
	runner, err := tui.NewExecRunner(c.Studio.Executable, extra...)
	if err != nil {
		return err
	}
	return tui.Run(runner, c.Studio.HistoryFile)
}
