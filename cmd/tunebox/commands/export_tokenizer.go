package commands

import (
	"github.com/spf13/cobra"
	"github.com/xupit3r/tunebox/internal/tokenizer"
)

var (
	exportBase string
	exportDest string
)

var exportTokenizerCmd = &cobra.Command{
	Use:   "export-tokenizer",
	Short: "Copy a base model's tokenizer into a fine-tuned checkpoint",
	Long: `Load the tokenizer of --base (directory, alias or hub repository) and
save it into --dest so the checkpoint there can be loaded on its own.`,
	Args: cobra.NoArgs,
	RunE: runExportTokenizer,
}

func init() {
	exportTokenizerCmd.Flags().StringVar(&exportBase, "base", "huggingFaceBaseModel", "base model the checkpoint was trained from")
	exportTokenizerCmd.Flags().StringVar(&exportDest, "dest", "/path/to/model", "fine-tuned checkpoint directory")

	rootCmd.AddCommand(exportTokenizerCmd)
}

func runExportTokenizer(cmd *cobra.Command, args []string) error {
	manager, err := newManager(currentConfig())
	if err != nil {
		return err
	}

	path, err := tokenizer.Export(cmd.Context(), manager, exportBase, exportDest)
	if err != nil {
		return err
	}
	status(cmd.OutOrStdout(), ":white_check_mark:", "Tokenizer saved to: %s", path)
	return nil
}
