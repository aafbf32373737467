package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/xupit3r/tunebox/internal/system"
)

var deviceFlag string

var deviceInfoCmd = &cobra.Command{
	Use:   "device",
	Short: "Show device information",
	Long: `Display the compute device chat and finetune would use, along with
memory available for training.`,
	Args: cobra.NoArgs,
	RunE: runDeviceInfo,
}

func init() {
	deviceInfoCmd.Flags().StringVar(&deviceFlag, "device", "", "compute device: auto, cpu or accelerator")
	registerDeviceCompletion(deviceInfoCmd)
	rootCmd.AddCommand(deviceInfoCmd)
}

func runDeviceInfo(cmd *cobra.Command, args []string) error {
	c := currentConfig()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  Tunebox Device Information")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out)

	preference := pick(deviceFlag, c.Device.Preference)
	fmt.Fprintf(out, "Device Preference: %s\n\n", preference)

	dev, err := selectDevice(c, deviceFlag)
	if err != nil {
		status(out, ":x:", "Device Error: %v", err)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Available devices:")
		fmt.Fprintln(out, "  • auto        - Accelerator when present, otherwise CPU")
		fmt.Fprintln(out, "  • cpu         - Force CPU mode")
		fmt.Fprintln(out, "  • accelerator - Require an accelerator backend")
		return err
	}

	status(out, ":white_check_mark:", "Device: %s", dev.Name())
	fmt.Fprintf(out, "   Type: %s\n", dev.Type())
	fmt.Fprintf(out, "   Workers: %d\n", dev.Workers())
	if feats := dev.Features(); len(feats) > 0 {
		fmt.Fprintf(out, "   Features: %v\n", feats)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "System Information:")
	fmt.Fprintf(out, "   Platform: %s\n", system.GetPlatform())
	fmt.Fprintf(out, "   CPUs: %d\n", runtime.NumCPU())
	if ram, err := system.GetRAMInfo(); err == nil {
		fmt.Fprintf(out, "   RAM: %s total, %s available\n",
			system.FormatBytes(ram.TotalBytes), system.FormatBytes(ram.AvailableBytes))
	}

	return nil
}
