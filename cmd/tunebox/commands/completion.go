package commands

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for Tunebox.

To load completions:

Bash:
  $ tunebox completion bash > ~/.local/share/bash-completion/completions/tunebox
  $ source ~/.local/share/bash-completion/completions/tunebox

Zsh:
  $ tunebox completion zsh > ~/.zsh/completion/_tunebox
  $ echo 'fpath=(~/.zsh/completion $fpath)' >> ~/.zshrc
  $ echo 'autoload -Uz compinit && compinit' >> ~/.zshrc

Fish:
  $ tunebox completion fish > ~/.config/fish/completions/tunebox.fish

PowerShell:
  PS> tunebox completion powershell | Out-String | Invoke-Expression
  # To persist, add the output to your PowerShell profile
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  runCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// registerDeviceCompletion completes the --device flag of cmd
func registerDeviceCompletion(cmd *cobra.Command) {
	cmd.RegisterFlagCompletionFunc("device", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "cpu", "accelerator"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func runCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return cmd.Root().GenBashCompletion(out)
	case "zsh":
		return cmd.Root().GenZshCompletion(out)
	case "fish":
		return cmd.Root().GenFishCompletion(out, true)
	case "powershell":
		return cmd.Root().GenPowerShellCompletionWithDesc(out)
	}
	return nil
}
