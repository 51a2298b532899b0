package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/decomp-dev/reportcore/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and upgrade stored reports in place",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := slog.Default()

	// store.Open already runs schema.go's CREATE TABLE statements, every
	// pending internal/store/migrations entry, and MigrateStoredReports;
	// this command exists to drive that path explicitly, outside of
	// starting the daemon.
	st, err := store.Open(ctx, dbPath, store.Options{Log: log})
	if err != nil {
		return fmt.Errorf("reportcored: migrate: %w", err)
	}
	defer st.Close()

	log.Info("reportcored: migrate complete", "db", dbPath)
	return nil
}
