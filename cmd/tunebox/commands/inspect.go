package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xupit3r/tunebox/internal/gguf"
	"github.com/xupit3r/tunebox/internal/system"
)

var inspectTensor string

var modelInspectCmd = &cobra.Command{
	Use:   "inspect [checkpoint-dir|file.gguf]",
	Short: "Show metadata and tensors of a GGUF file",
	Long: `Print the metadata and tensor table of a GGUF file. A checkpoint
directory inspects its model.gguf.`,
	Args: cobra.ExactArgs(1),
	RunE: runModelInspect,
}

func init() {
	modelInspectCmd.Flags().StringVar(&inspectTensor, "tensor", "", "show a single tensor")
	modelCmd.AddCommand(modelInspectCmd)
}

func runModelInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "model.gguf")
	}

	gf, err := gguf.ParseGGUF(path)
	if err != nil {
		return fmt.Errorf("failed to load GGUF file: %w", err)
	}
	out := cmd.OutOrStdout()

	if inspectTensor != "" {
		info, err := gf.GetTensorInfo(inspectTensor)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Tensor: %s\n", info.Name)
		fmt.Fprintf(out, "  Type:     %s\n", info.Type)
		fmt.Fprintf(out, "  Shape:    %v\n", info.Shape())
		fmt.Fprintf(out, "  Elements: %d\n", info.Elements())
		fmt.Fprintf(out, "  Size:     %d bytes\n", info.Size)
		fmt.Fprintf(out, "  Offset:   %d\n", info.Offset)
		return nil
	}

	fmt.Fprintf(out, "File:         %s\n", gf.Path())
	fmt.Fprintf(out, "Version:      %d\n", gf.Version())
	fmt.Fprintf(out, "Architecture: %s\n", gf.GetArchitecture())
	fmt.Fprintf(out, "Metadata:     %d keys\n", gf.MetadataCount())
	fmt.Fprintf(out, "Tensors:      %d\n\n", gf.TensorCount())

	keys := make([]string, 0, len(gf.Metadata))
	for k := range gf.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, summarize(gf.Metadata[k]))
	}
	w.Flush()
	fmt.Fprintln(out)

	var total uint64
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TENSOR\tTYPE\tSHAPE\tSIZE")
	for _, name := range gf.ListTensors() {
		info, _ := gf.GetTensorInfo(name)
		total += info.Size
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", name, info.Type, info.Shape(), system.FormatBytes(int64(info.Size)))
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal tensor data: %s\n", system.FormatBytes(int64(total)))
	return nil
}

// summarize keeps vocab-sized arrays to a length
func summarize(v interface{}) string {
	if arr, ok := v.([]interface{}); ok && len(arr) > 8 {
		return fmt.Sprintf("[%d values]", len(arr))
	}
	return fmt.Sprintf("%v", v)
}
