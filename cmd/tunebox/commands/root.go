package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xupit3r/tunebox/internal/config"
	"github.com/xupit3r/tunebox/internal/logging"
)

const version = "0.1.0"

var (
	cfgFile string
	verbose bool
	quiet   bool

	cfg *config.Config
	// cfgErr holds the last config load failure; cfg then carries defaults
	cfgErr error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tunebox",
	Short: "Fine-tune and chat with small local language models",
	Long: `Tunebox fine-tunes small causal language models on instruction data
and chats with the resulting checkpoints, entirely on the local machine.

Training emits __PROGRESS__:<percent> lines on stdout so front-ends such as
"tunebox studio" can follow along.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgErr != nil {
			return fmt.Errorf("error loading config: %w", cfgErr)
		}
		return nil
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tunebox/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode")
}

// initConfig loads the configuration and starts logging. A load failure
// leaves defaults in place and is reported by the command's pre-run hook.
func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	setupLogging(cfg.Logging.Console && !quiet)
	if verbose {
		logging.Debugf("Config: %+v", *cfg)
	}
}

// setupLogging (re)initialises the logger. --verbose always enables the
// console and debug level.
func setupLogging(console bool) {
	c := currentConfig()
	level := c.Logging.Level
	if verbose {
		level = "debug"
		console = true
	}
	if err := logging.Init(level, c.Logging.File, console); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
	}
}

// currentConfig returns the loaded config, falling back to defaults when
// a command runs without cobra initialisation (tests).
func currentConfig() *config.Config {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return cfg
}
