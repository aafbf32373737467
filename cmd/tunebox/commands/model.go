package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xupit3r/tunebox/internal/gguf"
	"github.com/xupit3r/tunebox/internal/model"
	"github.com/xupit3r/tunebox/internal/system"
	"github.com/xupit3r/tunebox/internal/tokenizer"
	"github.com/xupit3r/tunebox/internal/transformer"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage models",
	Long:  "Create base checkpoints and download, list and remove hub models",
}

var modelInitCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a randomly initialised base model",
	Long: `Write a fresh tunegpt checkpoint with a byte-level tokenizer to dir.
The result can be passed to "tunebox finetune --model dir".`,
	Args: cobra.ExactArgs(1),
	RunE: runModelInit,
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available or cached models",
	Long:  "List all available models in the registry or models cached locally",
	RunE:  runModelList,
}

var modelInfoCmd = &cobra.Command{
	Use:   "info [model-id]",
	Short: "Show information about a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelInfo,
}

var modelDownloadCmd = &cobra.Command{
	Use:   "download [model-id]",
	Short: "Download a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelDownload,
}

var modelRemoveCmd = &cobra.Command{
	Use:   "remove [model-id]",
	Short: "Remove a cached model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelRemove,
}

var modelPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict least recently used models over the cache size limit",
	Args:  cobra.NoArgs,
	RunE:  runModelPrune,
}

var (
	listAll    bool
	listCached bool

	initLayers  int
	initDim     int
	initHeads   int
	initContext int
	initSeed    int64
	initDType   string
)

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelInitCmd)
	modelCmd.AddCommand(modelListCmd)
	modelCmd.AddCommand(modelInfoCmd)
	modelCmd.AddCommand(modelDownloadCmd)
	modelCmd.AddCommand(modelRemoveCmd)
	modelCmd.AddCommand(modelPruneCmd)

	modelListCmd.Flags().BoolVar(&listAll, "all", false, "List all available models")
	modelListCmd.Flags().BoolVar(&listCached, "cached", false, "List only cached models")

	modelInitCmd.Flags().IntVar(&initLayers, "layers", 4, "number of transformer blocks")
	modelInitCmd.Flags().IntVar(&initDim, "dim", 128, "hidden dimension")
	modelInitCmd.Flags().IntVar(&initHeads, "heads", 4, "attention heads")
	modelInitCmd.Flags().IntVar(&initContext, "context", 512, "context length")
	modelInitCmd.Flags().Int64Var(&initSeed, "seed", 42, "initialisation seed")
	modelInitCmd.Flags().StringVar(&initDType, "dtype", "f32", "tensor type on disk: f32 or f16")

	modelDownloadCmd.ValidArgsFunction = completeModelIDs
	modelInfoCmd.ValidArgsFunction = completeModelIDs
	modelRemoveCmd.ValidArgsFunction = completeModelIDs
}

// completeModelIDs offers registry aliases with their display names
func completeModelIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, m := range model.ListAll() {
		if strings.HasPrefix(m.ID, toComplete) {
			ids = append(ids, fmt.Sprintf("%s\t%s", m.ID, m.Name))
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

func runModelInit(cmd *cobra.Command, args []string) error {
	dir := args[0]

	dtype, err := gguf.ParseGGMLType(initDType)
	if err != nil {
		return err
	}

	tok := tokenizer.NewByteLevel()
	mcfg := transformer.DefaultConfig(tok.VocabSize())
	mcfg.NumLayers = initLayers
	mcfg.HiddenDim = initDim
	mcfg.NumHeads = initHeads
	mcfg.IntermediateDim = 4 * initDim
	mcfg.ContextLength = initContext
	if initHeads > 0 {
		mcfg.HeadDim = initDim / initHeads
	}

	dev, err := selectDevice(currentConfig(), "cpu")
	if err != nil {
		return err
	}
	lm, err := transformer.NewModel(mcfg, initSeed, dev)
	if err != nil {
		return err
	}

	if err := lm.Save(dir, dtype); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	if err := tok.Save(dir); err != nil {
		return fmt.Errorf("failed to save tokenizer: %w", err)
	}

	out := cmd.OutOrStdout()
	status(out, ":white_check_mark:", "Created %s", dir)
	fmt.Fprintf(out, "   %s\n", mcfg)
	fmt.Fprintf(out, "   %d parameters, training needs ~%s RAM\n",
		lm.NumParams(), system.FormatBytes(system.TrainingBytes(int64(lm.NumParams()))))
	return nil
}

func runModelList(cmd *cobra.Command, args []string) error {
	ramInfo, err := system.GetRAMInfo()
	if err != nil {
		return fmt.Errorf("failed to get RAM info: %w", err)
	}

	fmt.Printf("System RAM: %s total, %s available\n\n",
		system.FormatBytes(ramInfo.TotalBytes),
		system.FormatBytes(ramInfo.AvailableBytes))

	manager, err := newManager(currentConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize model manager: %w", err)
	}

	if listCached {
		return listCachedModels(manager)
	}

	return listAvailableModels(manager, model.NewSelectorWithRAM(ramInfo.AvailableBytes), listAll)
}

func listAvailableModels(manager *model.Manager, selector *model.Selector, showAll bool) error {
	var models []model.ModelInfo
	for _, m := range model.SortByParams(model.ListAll()) {
		if showAll || selector.CanFit(&m) {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		fmt.Println("No models can be trained in available RAM.")
		fmt.Println("Use --all to see all models.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPARAMS\tTRAIN RAM\tCACHED\tRECOMMENDED")
	fmt.Fprintln(w, "--\t----\t------\t---------\t------\t-----------")

	for _, m := range models {
		cached := ""
		if manager.Cache.Has(m.ID) {
			cached = "✓"
		}

		recommended := ""
		if m.Recommended {
			recommended = "✓"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.Name, formatParams(m.NumParams),
			system.FormatBytes(system.TrainingBytes(m.NumParams)), cached, recommended)
	}

	w.Flush()

	if !showAll {
		fmt.Println()
		fmt.Println("Showing only models that can be trained in available RAM. Use --all to see all models.")
	}

	return nil
}

func listCachedModels(manager *model.Manager) error {
	cached := manager.Cache.List()

	if len(cached) == 0 {
		fmt.Println("No models cached.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSIZE\tDOWNLOADED\tLAST USED\tUSE COUNT")
	fmt.Fprintln(w, "--\t----\t----------\t---------\t---------")

	for _, m := range cached {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			m.ID, system.FormatBytes(m.SizeBytes),
			m.DownloadedAt.Format("2006-01-02"), m.LastUsed.Format("2006-01-02"), m.UseCount)
	}

	w.Flush()

	fmt.Printf("\nTotal cache size: %s\n", system.FormatBytes(manager.Cache.GetTotalSize()))
	return nil
}

func runModelInfo(cmd *cobra.Command, args []string) error {
	m, err := model.Lookup(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:              %s\n", m.ID)
	fmt.Printf("Name:            %s\n", m.Name)
	fmt.Printf("Repository:      %s\n", m.Repo)
	if m.NumParams > 0 {
		fmt.Printf("Parameters:      %s\n", formatParams(m.NumParams))
		fmt.Printf("Inference RAM:   %s\n", system.FormatBytes(system.InferenceBytes(m.NumParams)))
		fmt.Printf("Training RAM:    %s\n", system.FormatBytes(system.TrainingBytes(m.NumParams)))
	}
	if m.ContextWindow > 0 {
		fmt.Printf("Context Window:  %d tokens\n", m.ContextWindow)
	}
	fmt.Printf("Recommended:     %v\n", m.Recommended)
	if m.Description != "" {
		fmt.Printf("Description:     %s\n", m.Description)
	}
	if len(m.Tags) > 0 {
		fmt.Printf("Tags:            %s\n", strings.Join(m.Tags, ", "))
	}

	manager, err := newManager(currentConfig())
	if err == nil && manager.Cache.Has(m.ID) {
		cached, _ := manager.Cache.Get(m.ID)
		fmt.Printf("\nCached:          Yes\n")
		fmt.Printf("Path:            %s\n", cached.Path)
		fmt.Printf("Downloaded:      %s\n", cached.DownloadedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Last Used:       %s\n", cached.LastUsed.Format("2006-01-02 15:04:05"))
		fmt.Printf("Use Count:       %d\n", cached.UseCount)
	} else {
		fmt.Printf("\nCached:          No\n")
	}

	if m.NumParams > 0 {
		if selector, err := model.NewSelector(); err == nil {
			if selector.CanFit(m) {
				fmt.Printf("Trainable here:  Yes\n")
			} else {
				fmt.Printf("Trainable here:  No (insufficient RAM)\n")
			}
		}
	}

	return nil
}

func runModelDownload(cmd *cobra.Command, args []string) error {
	m, err := model.Lookup(args[0])
	if err != nil {
		return err
	}

	manager, err := newManager(currentConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize model manager: %w", err)
	}

	fmt.Printf("Downloading %s from %s...\n", m.Name, m.Repo)
	manager.Downloader.ProgressFunc = func(file string, downloaded, total int64, speed float64) {
		if total <= 0 {
			fmt.Printf("\r%s: %s - %.2f MB/s", file, system.FormatBytes(downloaded), speed/(1024*1024))
			return
		}
		fmt.Printf("\r%s: %.1f%% (%s / %s) - %.2f MB/s",
			file,
			float64(downloaded)/float64(total)*100,
			system.FormatBytes(downloaded),
			system.FormatBytes(total),
			speed/(1024*1024))
	}

	dir, err := manager.EnsureModel(cmd.Context(), m)
	fmt.Println() // New line after progress
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("Download complete: %s\n", dir)
	return nil
}

func runModelRemove(cmd *cobra.Command, args []string) error {
	manager, err := newManager(currentConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize model manager: %w", err)
	}

	id := args[0]
	if m, err := model.Lookup(id); err == nil {
		id = m.ID
	}
	if !manager.Cache.Has(id) {
		return fmt.Errorf("model not cached: %s", args[0])
	}

	if err := manager.Cache.Remove(id); err != nil {
		return fmt.Errorf("failed to remove model: %w", err)
	}

	fmt.Printf("Removed model: %s\n", id)
	return nil
}

func runModelPrune(cmd *cobra.Command, args []string) error {
	manager, err := newManager(currentConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize model manager: %w", err)
	}

	before := manager.Cache.GetTotalSize()
	if err := manager.Cache.Prune(); err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}
	if err := manager.Downloader.CleanupFailedDownloads(); err != nil {
		return err
	}

	fmt.Printf("Cache size: %s -> %s\n",
		system.FormatBytes(before), system.FormatBytes(manager.Cache.GetTotalSize()))
	return nil
}

// formatParams renders a parameter count as 890K or 12.6M
func formatParams(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}
