package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/decomp-dev/reportcore/internal/config"
	"github.com/decomp-dev/reportcore/internal/queue"
	"github.com/decomp-dev/reportcore/internal/store"
)

// RunFetchConcurrency bounds the in-flight run fetches a single project
// refresh may dispatch (SPEC_FULL §4.6 step 5, §5).
const RunFetchConcurrency = 10

// Pipeline wires the report store and the per-installation forge client
// pool into the two queue.Handler functions the job workers dispatch to
// (SPEC_FULL §4.6).
type Pipeline struct {
	Store *store.Store
	Pool  *ClientPool
	Log   *slog.Logger

	// Runtime is the optional SQLite-backed runtime-config overlay
	// (SPEC_FULL §1.1). When nil, processPullRequest falls back to the
	// hard-coded defaults ("description" mode, comments enabled).
	Runtime *config.Runtime
}

func (p *Pipeline) log() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

// HandleRefreshProject is a queue.Handler for queue.KindRefreshProject jobs.
func (p *Pipeline) HandleRefreshProject(ctx context.Context, job queue.Job) error {
	var payload queue.RefreshProjectJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Abort(fmt.Errorf("ingest: decode refresh project payload: %w", err))
	}
	return p.RefreshProject(ctx, payload.RepositoryID, payload.FullRefresh)
}

// HandleProcessWorkflowRun is a queue.Handler for queue.KindProcessWorkflowRun jobs.
func (p *Pipeline) HandleProcessWorkflowRun(ctx context.Context, job queue.Job) error {
	var payload queue.ProcessWorkflowRunJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Abort(fmt.Errorf("ingest: decode workflow run payload: %w", err))
	}
	return p.ProcessWorkflowRun(ctx, payload)
}
