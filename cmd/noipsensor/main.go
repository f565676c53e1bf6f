// Noipsensor keeps No-IP hostnames pointed at this host's public IP address
// and publishes one HomeKit contact sensor per hostname showing whether the last update succeeded.
//
// Usage:
//
//	noipsensor setup            # write a configuration file interactively
//	noipsensor check            # validate the configuration
//	noipsensor run              # run the refresh loops and the HomeKit bridge
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Travis-Britz/noip"
	"github.com/Travis-Britz/noip/internal/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "noipsensor",
	Short: "No-IP dynamic DNS updater with a HomeKit contact sensor",
	Long: `noipsensor periodically looks up this host's public IP address and sends it to No-IP.

Each configured hostname is published as a HomeKit contact sensor:
closed when No-IP confirmed the address, open otherwise.`,
	Version:       noip.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "debug", "Most verbose level any device may log at (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
