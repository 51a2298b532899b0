package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
)

// MaxAttempts bounds how many times a job is tried in total (its first run
// plus retries) before it is marked StatusFailed permanently (SPEC_FULL §4.8: "a bounded attempt count").
const MaxAttempts = 12

// backoffPolicy is the single source of truth for the retry schedule's
// constants — initial delay 1s, factor 1.25, capped at 120s — mirrored
// from the teacher's own newServerRetryBackoff (internal/storage/dolt/store.go).
// Job retries are computed deterministically from the persisted attempt
// count (attemptDelay) rather than by calling NextBackOff on a live
// *backoff.ExponentialBackOff, because a job's attempts survive process
// restarts but an in-memory BackOff's internal state does not.
func backoffPolicy() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 1.25
	bo.MaxInterval = 120 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

// attemptDelay returns the delay before retry number attempt+1, following
// backoffPolicy's parameters: attempt 0 (the retry after a job's first
// failure) waits the initial 1s.
func attemptDelay(attempt int) time.Duration {
	bo := backoffPolicy()
	d := float64(bo.InitialInterval) * math.Pow(bo.Multiplier, float64(attempt))
	if d > float64(bo.MaxInterval) {
		d = float64(bo.MaxInterval)
	}
	return time.Duration(d)
}

// Abort wraps an error to mark it non-retryable: the job worker classifies
// it terminal and the job is moved straight to StatusFailed, matching
// backoff.Permanent's "stop immediately" convention.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &abortError{err: err}
}

type abortError struct{ err error }

func (a *abortError) Error() string { return a.err.Error() }
func (a *abortError) Unwrap() error { return a.err }

func isAbort(err error) bool {
	var a *abortError
	return errors.As(err, &a)
}

// Handler processes one claimed job. Returning an Abort-wrapped error
// marks the job permanently failed; any other error schedules a retry
// per the backoff policy (up to MaxAttempts).
type Handler func(ctx context.Context, job Job) error

// Worker polls one job stream (Kind) and runs up to Concurrency handlers
// at a time, enforced by a counted semaphore rather than an advisory
// limit (SPEC_FULL §5: "hard caps enforced by a counted gate").
type Worker struct {
	Queue       *Queue
	Kind        Kind
	Concurrency int64
	PollInterval time.Duration
	Handler     Handler
	Log         *slog.Logger

	sem *semaphore.Weighted
}

// Run polls until ctx is cancelled, claiming up to Concurrency due jobs
// per tick and dispatching each to Handler on its own goroutine, gated by
// the semaphore. Run blocks until every in-flight handler has returned
// (the orderly-shutdown window described in SPEC_FULL §4.8) or the
// 30-second grace period elapses, whichever comes first.
func (w *Worker) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = slog.Default()
	}
	if w.sem == nil {
		w.sem = semaphore.NewWeighted(w.Concurrency)
	}
	if w.PollInterval == 0 {
		w.PollInterval = time.Second
	}

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.drain(log)
		case <-ticker.C:
			if err := w.pollOnce(ctx, log); err != nil {
				log.Error("queue poll failed", "kind", w.Kind, "error", err)
			}
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context, log *slog.Logger) error {
	jobs, err := w.Queue.claim(ctx, w.Kind, int(w.Concurrency))
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return nil // context cancelled mid-dispatch; drain handles the rest
		}
		go func(j Job) {
			defer w.sem.Release(1)
			w.run(ctx, j, log)
		}(job)
	}
	return nil
}

func (w *Worker) run(ctx context.Context, job Job, log *slog.Logger) {
	err := w.Handler(ctx, job)
	if err == nil {
		if derr := w.Queue.markDone(context.WithoutCancel(ctx), job.ID); derr != nil {
			log.Error("queue: mark done failed", "job_id", job.ID, "error", derr)
		}
		return
	}

	markCtx := context.WithoutCancel(ctx)
	if isAbort(err) {
		log.Warn("queue job aborted", "kind", job.Kind, "job_id", job.ID, "error", err)
		if derr := w.Queue.markFailed(markCtx, job.ID, err.Error()); derr != nil {
			log.Error("queue: mark failed failed", "job_id", job.ID, "error", derr)
		}
		return
	}

	attempts := job.Attempts + 1
	if attempts >= MaxAttempts {
		log.Error("queue job exhausted retries", "kind", job.Kind, "job_id", job.ID, "attempts", attempts, "error", err)
		if derr := w.Queue.markFailed(markCtx, job.ID, fmt.Sprintf("exhausted %d attempts: %s", attempts, err)); derr != nil {
			log.Error("queue: mark failed failed", "job_id", job.ID, "error", derr)
		}
		return
	}

	delay := attemptDelay(job.Attempts)
	log.Warn("queue job failed, retrying", "kind", job.Kind, "job_id", job.ID, "attempt", attempts, "retry_in", delay, "error", err)
	runAfter := time.Now().Add(delay).Unix()
	if derr := w.Queue.reschedule(markCtx, job.ID, attempts, runAfter, err.Error()); derr != nil {
		log.Error("queue: reschedule failed", "job_id", job.ID, "error", derr)
	}
}

// shutdownGrace is the orderly shutdown window SPEC_FULL §4.8 describes
// for the job monitor.
const shutdownGrace = 30 * time.Second

func (w *Worker) drain(log *slog.Logger) error {
	drained := make(chan struct{})
	go func() {
		_ = w.sem.Acquire(context.Background(), w.Concurrency)
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-time.After(shutdownGrace):
		log.Warn("queue worker shutdown grace period elapsed with handlers still in flight", "kind", w.Kind)
		return nil
	}
}
