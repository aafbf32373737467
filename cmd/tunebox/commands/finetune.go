package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/xupit3r/tunebox/internal/dataset"
	"github.com/xupit3r/tunebox/internal/logging"
	"github.com/xupit3r/tunebox/internal/progress"
	"github.com/xupit3r/tunebox/internal/system"
	"github.com/xupit3r/tunebox/internal/tokenizer"
	"github.com/xupit3r/tunebox/internal/trainer"
	"github.com/xupit3r/tunebox/internal/transformer"
)

const defaultOutputDir = "path/to/storing/finetuned model"

// padToken is added when a tokenizer has neither a pad nor an EOS token
const padToken = "[PAD]"

var (
	ftModel     string
	ftData      string
	ftOutputDir string
	ftDevice    string
)

var finetuneCmd = &cobra.Command{
	Use:   "finetune",
	Short: "Fine-tune a causal language model on a JSONL dataset",
	Long: `Fine-tune a base model on instruction records.

--model is a checkpoint directory, a registry alias, an org/name hub
repository or "auto". Each line of --data is a JSON object with
"instruction", "input" and "output" keys.

Progress is reported on stdout as __PROGRESS__:<percent> lines.`,
	RunE: runFinetune,
}

func init() {
	finetuneCmd.Flags().StringVar(&ftModel, "model", "", "base model directory, alias or hub repository")
	finetuneCmd.Flags().StringVar(&ftData, "data", "", "path to the JSONL training data")
	finetuneCmd.Flags().StringVar(&ftOutputDir, "output_dir", defaultOutputDir, "directory for checkpoints and the final model")
	finetuneCmd.Flags().StringVar(&ftDevice, "device", "", "compute device: auto, cpu or accelerator")
	finetuneCmd.MarkFlagRequired("model")
	finetuneCmd.MarkFlagRequired("data")
	finetuneCmd.RegisterFlagCompletionFunc("data", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"jsonl"}, cobra.ShellCompDirectiveFilterFileExt
	})
	registerDeviceCompletion(finetuneCmd)

	rootCmd.AddCommand(finetuneCmd)
}

func runFinetune(cmd *cobra.Command, args []string) error {
	c := currentConfig()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	outputDir := ftOutputDir
	if !cmd.Flags().Changed("output_dir") && c.Training.OutputDir != "" {
		outputDir = c.Training.OutputDir
	}
	trainArgs, err := trainingArguments(c.Training, outputDir)
	if err != nil {
		return err
	}

	dev, err := selectDevice(c, ftDevice)
	if err != nil {
		return err
	}

	manager, err := newManager(c)
	if err != nil {
		return fmt.Errorf("failed to initialize model manager: %w", err)
	}

	status(out, ":brain:", "Loading tokenizer: %s", ftModel)
	modelDir, err := manager.Resolve(ctx, ftModel)
	if err != nil {
		return err
	}
	tok, err := tokenizer.Load(modelDir)
	if err != nil {
		return err
	}
	status(out, ":white_check_mark:", "Tokenizer loaded.")

	if err := ensurePadToken(out, tok); err != nil {
		return err
	}

	status(out, ":brain:", "Loading model...")
	lm, err := transformer.Load(modelDir, dev)
	if err != nil {
		return err
	}
	if tok.PadID() >= 0 {
		if err := lm.ResizeTokenEmbeddings(tok.VocabSize()); err != nil {
			return err
		}
	}
	status(out, ":white_check_mark:", "Model loaded.")
	logging.Infof("Model has %d parameters on %s", lm.NumParams(), dev.Name())

	if err := system.CheckAvailable(system.TrainingBytes(int64(lm.NumParams()))); err != nil {
		logging.Warnf("Training may run out of memory: %v", err)
	}

	status(out, ":open_file_folder:", "Loading dataset...")
	status(out, ":file_folder:", "Reading JSONL file: %s", ftData)
	records, err := dataset.LoadJSONL(ftData)
	if err != nil {
		return err
	}
	status(out, ":white_check_mark:", "Loaded %d records.", len(records))

	status(out, ":test_tube:", "Tokenizing data...")
	examples, err := dataset.Tokenize(tok, records, c.Training.MaxLength)
	if err != nil {
		return err
	}
	status(out, ":white_check_mark:", "Data ready.")

	reporter := progress.NewReporter(out)
	t, err := trainer.New(lm, tok, trainArgs, examples,
		dataset.CausalLMCollator{PadID: tok.PadID()},
		trainer.WithCallbacks(progress.NewCallback(reporter)),
	)
	if err != nil {
		return err
	}

	status(out, ":rocket:", "Starting fine-tuning...")
	result, err := t.Train(ctx)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	if err := t.SaveModel(""); err != nil {
		return err
	}
	logging.Infof("Trained %d steps, loss %.4f", result.GlobalStep, result.TrainingLoss)

	status(out, ":tada:", "Fine-tuning complete.")
	status(out, ":package:", "Model saved to: %s", outputDir)
	reporter.Done()
	return nil
}

// ensurePadToken reuses EOS as the pad token, or adds [PAD] when the
// tokenizer has no EOS either.
func ensurePadToken(out io.Writer, tok *tokenizer.Tokenizer) error {
	if tok.PadID() >= 0 {
		return nil
	}
	if tok.EOSID() >= 0 {
		status(out, "", "Setting pad_token to eos_token.")
		return tok.SetPadID(tok.EOSID())
	}
	status(out, "", "Adding a new special token as pad_token: %s", padToken)
	tok.AddSpecialTokens(padToken)
	return tok.SetPadID(tok.TokenToID(padToken))
}
