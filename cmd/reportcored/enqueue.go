package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/decomp-dev/reportcore/internal/queue"
	"github.com/decomp-dev/reportcore/internal/store"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Manually push a job onto the durable queue",
}

var (
	enqueueProjectID   int64
	enqueueFullRefresh bool
)

var enqueueRefreshProjectCmd = &cobra.Command{
	Use:   "refresh-project",
	Short: "Enqueue a RefreshProjectJob for one project",
	RunE:  runEnqueueRefreshProject,
}

func init() {
	enqueueRefreshProjectCmd.Flags().Int64Var(&enqueueProjectID, "project-id", 0, "project id (the forge's repository id)")
	enqueueRefreshProjectCmd.Flags().BoolVar(&enqueueFullRefresh, "full", false, "backfill every run instead of stopping at the stored head commit")
	enqueueCmd.AddCommand(enqueueRefreshProjectCmd)
}

func runEnqueueRefreshProject(cmd *cobra.Command, args []string) error {
	if enqueueProjectID == 0 {
		return fmt.Errorf("reportcored: enqueue refresh-project: --project-id is required")
	}

	ctx := context.Background()
	log := slog.Default()

	st, err := store.Open(ctx, dbPath, store.Options{Log: log})
	if err != nil {
		return fmt.Errorf("reportcored: enqueue refresh-project: %w", err)
	}
	defer st.Close()

	if _, err := st.GetProject(ctx, enqueueProjectID); err != nil {
		return fmt.Errorf("reportcored: enqueue refresh-project: %w", err)
	}

	q, err := queue.Open(ctx, st.DB())
	if err != nil {
		return fmt.Errorf("reportcored: enqueue refresh-project: %w", err)
	}

	id, err := q.EnqueueRefreshProject(ctx, queue.RefreshProjectJob{
		RepositoryID: enqueueProjectID,
		FullRefresh:  enqueueFullRefresh,
	})
	if err != nil {
		return fmt.Errorf("reportcored: enqueue refresh-project: %w", err)
	}

	log.Info("reportcored: enqueued refresh project job", "job_id", id, "project_id", enqueueProjectID, "full", enqueueFullRefresh)
	return nil
}
