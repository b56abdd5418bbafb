package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentineld",
	Short: "Proxy harvesting, validation and serving daemon",
	Long: `sentineld harvests proxy candidates from configured sources, dedupes
and validates them, scores and tiers them into a serving pool, and serves
live pool statistics over an embedded dashboard and a Prometheus /metrics
endpoint.`,
	Version: Version,
}

// Execute runs the root command. Errors from run map to the §6/§7 exit
// code they carry; anything else (bad flags, unknown subcommand) is a
// generic configuration-class error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ee, ok := err.(*exitError); ok {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
