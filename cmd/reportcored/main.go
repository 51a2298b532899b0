// Command reportcored is the decomp-progress core's daemon: it serves
// the durable job queue (workflow-run and refresh-project workers), the
// periodic scheduler, and a handful of one-shot maintenance subcommands,
// following the teacher's single-root-command-with-subcommands CLI shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "reportcored",
	Short: "Decompilation progress report ingestion and diffing daemon",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "reportcore.db", "path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the startup config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(enqueueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
