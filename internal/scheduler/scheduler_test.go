package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decomp-dev/reportcore/internal/queue"
	"github.com/decomp-dev/reportcore/internal/store"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestSched(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), store.Options{
		Log: slog.New(slog.NewTextHandler(nopWriter{}, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q, err := queue.Open(context.Background(), st.DB())
	require.NoError(t, err)

	return &Scheduler{Store: st, Queue: q, Log: slog.New(slog.NewTextHandler(nopWriter{}, nil))}, st
}

// pendingRefreshJobs decodes the payloads of the pending refresh-project
// rows in the jobs table the queue shares with the store.
func pendingRefreshJobs(t *testing.T, st *store.Store) []queue.RefreshProjectJob {
	t.Helper()
	rows, err := st.DB().Query(`SELECT payload FROM jobs WHERE kind = ? AND status = ? ORDER BY id`,
		string(queue.KindRefreshProject), string(queue.StatusPending))
	require.NoError(t, err)
	defer rows.Close()

	var out []queue.RefreshProjectJob
	for rows.Next() {
		var raw string
		require.NoError(t, rows.Scan(&raw))
		var payload queue.RefreshProjectJob
		require.NoError(t, json.Unmarshal([]byte(raw), &payload))
		out = append(out, payload)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestRefreshAllEnqueuesPartialRefreshPerProject(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSched(t)
	_, err := st.UpsertProject(ctx, 1, "owner", "repo-a")
	require.NoError(t, err)
	_, err = st.UpsertProject(ctx, 2, "owner", "repo-b")
	require.NoError(t, err)

	s.refreshAll(ctx, false)()

	jobs := pendingRefreshJobs(t, st)
	require.Len(t, jobs, 2)
	for _, payload := range jobs {
		assert.False(t, payload.FullRefresh)
	}
}

func TestRefreshAllFullRefreshSetsFlag(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSched(t)
	_, err := st.UpsertProject(ctx, 1, "owner", "repo-a")
	require.NoError(t, err)

	s.refreshAll(ctx, true)()

	jobs := pendingRefreshJobs(t, st)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].FullRefresh)
}

func TestOrphanSweepLogsDeletedCount(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSched(t)
	var buf bytes.Buffer
	s.Log = slog.New(slog.NewTextHandler(&buf, nil))
	// No orphans in a fresh store, so the sweep logs a zero count without
	// any project/report setup.
	s.orphanSweep(ctx)()
	assert.Contains(t, buf.String(), "orphan sweep complete")
	assert.Contains(t, buf.String(), "deleted=0")
}

func TestSessionSweepInvokesHookAndSwallowsError(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSched(t)
	var called bool
	s.SessionSweep = func(ctx context.Context) error {
		called = true
		return assertErr
	}
	s.sessionSweep(ctx)()
	assert.True(t, called)
}

func TestStartSkipsSessionSweepWhenHookNil(t *testing.T) {
	s, _ := newTestSched(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.NotNil(t, s.cron)
	// Four would-be entries minus the nil-hook session sweep leaves three.
	assert.Len(t, s.cron.Entries(), 3)
}

var assertErr = &sentinelErr{"scheduler test: forced failure"}

type sentinelErr struct{ msg string }

func (e *sentinelErr) Error() string { return e.msg }
