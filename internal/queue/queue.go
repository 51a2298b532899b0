// Package queue is the durable, at-least-once job queue described in
// SPEC_FULL §4.8: two typed streams (workflow-run, refresh-project)
// backed by a single SQLite table shared with internal/store's database,
// exponential-backoff retries via github.com/cenkalti/backoff/v4, and an
// abort classification for errors that should never be retried.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Kind names one of the two durable job streams.
type Kind string

const (
	KindRefreshProject     Kind = "refresh_project"
	KindProcessWorkflowRun Kind = "workflow_run"
)

// Status is a job row's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// RefreshProjectJob is the stable, JSON-serializable payload for a
// KindRefreshProject job (SPEC_FULL §6).
type RefreshProjectJob struct {
	RepositoryID int64 `json:"repository_id"`
	FullRefresh  bool  `json:"full_refresh"`
}

// ProcessWorkflowRunJob is the stable, JSON-serializable payload for a
// KindProcessWorkflowRun job (SPEC_FULL §6).
type ProcessWorkflowRunJob struct {
	RepositoryID       int64   `json:"repository_id"`
	RunID              int64   `json:"run_id"`
	Event              string  `json:"event"`
	HeadSHA            string  `json:"head_sha"`
	HeadBranch         string  `json:"head_branch"`
	PullRequestNumbers []int64 `json:"pull_request_numbers"`
	InstallationID     *int64  `json:"installation_id,omitempty"`
}

// Job is one durable queue row.
type Job struct {
	ID        int64
	Kind      Kind
	Payload   []byte
	Status    Status
	Attempts  int
	RunAfter  int64
	LastError string
}

// Queue is the durable job store, sharing its database connection with
// internal/store (they live in the same SQLite file — see cmd/reportcored).
type Queue struct {
	db *sql.DB
}

// Open applies the queue's own schema (a single jobs table, independent
// of internal/store's numbered migrations since this is a separate
// component that may be wired into a store's database or its own) and
// returns a ready Queue.
func Open(ctx context.Context, db *sql.DB) (*Queue, error) {
	const schema = `CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		run_after INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at INTEGER NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("queue: open: create jobs table: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_jobs_kind_status_run_after ON jobs(kind, status, run_after)`); err != nil {
		return nil, fmt.Errorf("queue: open: create index: %w", err)
	}
	return &Queue{db: db}, nil
}

// EnqueueRefreshProject durably schedules a project refresh.
func (q *Queue) EnqueueRefreshProject(ctx context.Context, job RefreshProjectJob) (int64, error) {
	return q.enqueue(ctx, KindRefreshProject, job)
}

// EnqueueProcessWorkflowRun durably schedules run-completion processing.
func (q *Queue) EnqueueProcessWorkflowRun(ctx context.Context, job ProcessWorkflowRunJob) (int64, error) {
	return q.enqueue(ctx, KindProcessWorkflowRun, job)
}

func (q *Queue) enqueue(ctx context.Context, kind Kind, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("queue: enqueue %s: marshal payload: %w", kind, err)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO jobs (kind, payload, status, run_after, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(kind), string(data), string(StatusPending), time.Now().Unix(), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("queue: enqueue %s: %w", kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("queue: enqueue %s: last insert id: %w", kind, err)
	}
	return id, nil
}

// claim atomically marks up to n pending, due jobs of kind as running and
// returns them. SQLite's single-writer-connection model (internal/store
// pins MaxOpenConns(1) for the same reason) makes the select-then-update
// safe without a separate row lock.
func (q *Queue) claim(ctx context.Context, kind Kind, n int) ([]Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: claim: begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, kind, payload, status, attempts, run_after, COALESCE(last_error, '')
		FROM jobs WHERE kind = ? AND status = ? AND run_after <= ?
		ORDER BY id ASC LIMIT ?`,
		string(kind), string(StatusPending), time.Now().Unix(), n)
	if err != nil {
		return nil, fmt.Errorf("queue: claim: select: %w", err)
	}
	var jobs []Job
	for rows.Next() {
		var j Job
		var k, status string
		if err := rows.Scan(&j.ID, &k, &j.Payload, &status, &j.Attempts, &j.RunAfter, &j.LastError); err != nil {
			rows.Close()
			return nil, fmt.Errorf("queue: claim: scan: %w", err)
		}
		j.Kind, j.Status = Kind(k), Status(status)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	rows.Close()

	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(StatusRunning), j.ID); err != nil {
			return nil, fmt.Errorf("queue: claim: mark running %d: %w", j.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: claim: commit: %w", err)
	}
	return jobs, nil
}

func (q *Queue) markDone(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(StatusDone), id)
	return err
}

func (q *Queue) markFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE jobs SET status = ?, last_error = ? WHERE id = ?`, string(StatusFailed), errMsg, id)
	return err
}

func (q *Queue) reschedule(ctx context.Context, id int64, attempts int, runAfter int64, errMsg string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, run_after = ?, last_error = ? WHERE id = ?`,
		string(StatusPending), attempts, runAfter, errMsg, id)
	return err
}
