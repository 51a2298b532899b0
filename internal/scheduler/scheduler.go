// Package scheduler wires the cron expressions SPEC_FULL §4.9 names to
// github.com/robfig/cron/v3: periodic project refresh, full refresh,
// orphan sweep, and the session-expiry sweep placeholder hook.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/decomp-dev/reportcore/internal/queue"
	"github.com/decomp-dev/reportcore/internal/store"
)

// Scheduler owns the in-process cron runner. It never runs a job handler
// directly — refreshes are enqueued onto the durable queue so they share
// the worker pool's concurrency caps and retry policy.
type Scheduler struct {
	Store *store.Store
	Queue *queue.Queue
	Log   *slog.Logger

	// SessionSweep is the external session-expiry hook (§1: session
	// management is a collaborator outside this core). Nil disables the
	// cron entry entirely rather than running a no-op every minute.
	SessionSweep func(ctx context.Context) error

	cron *cron.Cron
}

func (s *Scheduler) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// Start schedules every entry and begins running them in the
// background. Cancelling ctx stops the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc("*/5 * * * *", s.refreshAll(ctx, false)); err != nil {
		return fmt.Errorf("scheduler: schedule refresh: %w", err)
	}
	if _, err := s.cron.AddFunc("0 */12 * * *", s.refreshAll(ctx, true)); err != nil {
		return fmt.Errorf("scheduler: schedule full refresh: %w", err)
	}
	if _, err := s.cron.AddFunc("0 0 * * *", s.orphanSweep(ctx)); err != nil {
		return fmt.Errorf("scheduler: schedule orphan sweep: %w", err)
	}
	if s.SessionSweep != nil {
		if _, err := s.cron.AddFunc("* * * * *", s.sessionSweep(ctx)); err != nil {
			return fmt.Errorf("scheduler: schedule session sweep: %w", err)
		}
	}

	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

// refreshAll enqueues a RefreshProjectJob for every active (non-disabled)
// project, for partial and full refreshes alike; no project is skipped,
// installed or not.
func (s *Scheduler) refreshAll(ctx context.Context, fullRefresh bool) func() {
	return func() {
		log := s.log()
		projects, err := s.Store.ListActiveProjects(ctx)
		if err != nil {
			log.Error("scheduler: list active projects failed", "error", err)
			return
		}
		for _, p := range projects {
			job := queue.RefreshProjectJob{RepositoryID: p.ID, FullRefresh: fullRefresh}
			if _, err := s.Queue.EnqueueRefreshProject(ctx, job); err != nil {
				log.Error("scheduler: enqueue refresh failed", "project_id", p.ID, "error", err)
			}
		}
	}
}

func (s *Scheduler) orphanSweep(ctx context.Context) func() {
	return func() {
		log := s.log()
		n, err := s.Store.SweepOrphans(ctx)
		if err != nil {
			log.Error("scheduler: orphan sweep failed", "error", err)
			return
		}
		log.Info("scheduler: orphan sweep complete", "deleted", n)
	}
}

func (s *Scheduler) sessionSweep(ctx context.Context) func() {
	return func() {
		if err := s.SessionSweep(ctx); err != nil {
			s.log().Error("scheduler: session sweep failed", "error", err)
		}
	}
}
