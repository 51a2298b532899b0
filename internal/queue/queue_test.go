package queue

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+t.TempDir()+"/queue.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnqueueAndClaim(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	q, err := Open(ctx, db)
	require.NoError(t, err)

	id, err := q.EnqueueRefreshProject(ctx, RefreshProjectJob{RepositoryID: 42, FullRefresh: true})
	require.NoError(t, err)
	require.NotZero(t, id)

	jobs, err := q.claim(ctx, KindRefreshProject, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, StatusRunning, jobs[0].Status)

	// A second claim sees nothing: the job is already running.
	jobs, err = q.claim(ctx, KindRefreshProject, 10)
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestWorkerRetriesThenAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := openTestDB(t)
	q, err := Open(ctx, db)
	require.NoError(t, err)

	_, err = q.EnqueueProcessWorkflowRun(ctx, ProcessWorkflowRunJob{RepositoryID: 1, RunID: 2})
	require.NoError(t, err)

	var calls atomic.Int32
	w := &Worker{
		Queue:        q,
		Kind:         KindProcessWorkflowRun,
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		Handler: func(ctx context.Context, job Job) error {
			n := calls.Add(1)
			if n < 3 {
				return errors.New("transient")
			}
			return Abort(errors.New("fatal, give up"))
		},
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	// Force the retried job's run_after into the past so the next poll
	// picks it up immediately instead of waiting out the real backoff.
	for calls.Load() < 3 {
		_, _ = db.Exec(`UPDATE jobs SET run_after = 0 WHERE status = 'pending'`)
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		var status string
		err := db.QueryRow(`SELECT status FROM jobs LIMIT 1`).Scan(&status)
		return err == nil && status == string(StatusFailed)
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestAttemptDelayIsCappedAndIncreasing(t *testing.T) {
	require.Less(t, attemptDelay(0), attemptDelay(1))
	require.LessOrEqual(t, attemptDelay(100), 120*time.Second)
}
