package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/decomp-dev/reportcore/internal/store"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete orphaned reports, their join rows, and unreferenced report_units rows",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := slog.Default()

	st, err := store.Open(ctx, dbPath, store.Options{Log: log})
	if err != nil {
		return fmt.Errorf("reportcored: sweep: %w", err)
	}
	defer st.Close()

	n, err := st.SweepOrphans(ctx)
	if err != nil {
		return fmt.Errorf("reportcored: sweep: %w", err)
	}
	log.Info("reportcored: sweep complete", "deleted", n)
	return nil
}
