package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/decomp-dev/reportcore/internal/config"
	"github.com/decomp-dev/reportcore/internal/ghclient"
	"github.com/decomp-dev/reportcore/internal/ingest"
	"github.com/decomp-dev/reportcore/internal/queue"
	"github.com/decomp-dev/reportcore/internal/scheduler"
	"github.com/decomp-dev/reportcore/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the durable job queue workers and the periodic scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := slog.Default()

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("reportcored: load config: %w", err)
	}
	resolvedDB := dbPath
	if !cmd.Flags().Changed("db") && cfg.DatabasePath != "" {
		resolvedDB = cfg.DatabasePath
	}

	st, err := store.Open(ctx, resolvedDB, store.Options{Log: log})
	if err != nil {
		return fmt.Errorf("reportcored: open store: %w", err)
	}
	defer st.Close()

	q, err := queue.Open(ctx, st.DB())
	if err != nil {
		return fmt.Errorf("reportcored: open queue: %w", err)
	}

	runtime, err := config.NewRuntime(ctx, st)
	if err != nil {
		return fmt.Errorf("reportcored: load runtime config: %w", err)
	}

	defaultClient := ghclient.NewClient(cfg.ForgeToken)
	pool := ingest.NewClientPool(defaultClient,
		func(ctx context.Context, installationID int64) (string, error) {
			// The GitHub App installation-token exchange (JWT signing
			// against the app's private key) is an external collaborator
			// per spec §1; this core reuses the single configured token
			// for every installation until that exchange is wired in.
			return cfg.ForgeToken, nil
		},
		func(token string) ingest.ForgeClient { return ghclient.NewClient(token) },
	)

	pipeline := &ingest.Pipeline{Store: st, Pool: pool, Log: log, Runtime: runtime}

	sched := &scheduler.Scheduler{Store: st, Queue: q, Log: log}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("reportcored: start scheduler: %w", err)
	}

	refreshWorker := &queue.Worker{
		Queue:        q,
		Kind:         queue.KindRefreshProject,
		Concurrency:  int64(cfg.QueueRefreshProjectConcurrency),
		PollInterval: cfg.PollInterval,
		Handler:      pipeline.HandleRefreshProject,
		Log:          log,
	}
	runWorker := &queue.Worker{
		Queue:        q,
		Kind:         queue.KindProcessWorkflowRun,
		Concurrency:  int64(cfg.QueueWorkflowRunConcurrency),
		PollInterval: cfg.PollInterval,
		Handler:      pipeline.HandleProcessWorkflowRun,
		Log:          log,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return refreshWorker.Run(gctx) })
	g.Go(func() error { return runWorker.Run(gctx) })

	log.Info("reportcored: serving", "db", resolvedDB)
	return g.Wait()
}
