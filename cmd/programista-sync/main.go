package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaldziwisz/programista-core/internal/log"
	"github.com/michaldziwisz/programista-core/internal/version"
)

var (
	flagDataDir  string
	flagCacheDir string
)

// rootCmd is the base command. Every subcommand shares the directory
// overrides and the logger bootstrap.
var rootCmd = &cobra.Command{
	Use:   "programista-sync",
	Short: "Headless sync and search over the Programista schedule data plane",
	Long: `programista-sync drives the schedule data plane without a GUI: it keeps
provider packs current, prefetches TV, radio and archive schedules into the
durable cache and the local search index, and answers queries hub-first with
a local fallback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Configure(log.Config{Service: "programista-sync"})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory for settings, favorites and provider packs (overrides PROGRAMISTA_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "cache directory for the schedule cache and search index (overrides PROGRAMISTA_CACHE_DIR)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
