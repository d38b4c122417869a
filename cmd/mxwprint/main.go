// Mxwprint prints monochrome images on MXW01-protocol BLE thermal
// printers ("cat printers").
//
// Usage:
//
//	mxwprint print image.png
//	mxwprint status
//	mxwprint version
//	mxwprint history
//
// Without --device it scans for any printer advertising the MXW01
// service. A MAC address or UUID connects directly; any other value is
// matched against advertised device names.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mxwprint/internal/logging"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mxwprint",
	Short: "MXW01 BLE thermal printer driver",
	Long: `Drives MXW01-protocol BLE thermal printers: renders an image to the
384-pixel print width, negotiates the print over the control channel and
streams the bitmap with pacing the device can keep up with.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log verbosity (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Printer MAC/UUID, or advertised name to scan for")

	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(historyCmd)
}
