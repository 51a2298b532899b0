package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/decomp-dev/reportcore/internal/ghclient"
	"github.com/decomp-dev/reportcore/internal/store"
)

// RefreshProject implements SPEC_FULL §4.6's refresh loop for one
// project: resync owner/name against the forge, enumerate or use the
// pinned workflow, page completed push runs on the default branch
// oldest-first, and fetch+insert any reports not already stored.
func (p *Pipeline) RefreshProject(ctx context.Context, repositoryID int64, fullRefresh bool) error {
	log := p.log()

	proj, err := p.Store.GetProject(ctx, repositoryID)
	if err != nil {
		return fmt.Errorf("ingest: refresh project %d: load: %w", repositoryID, err)
	}

	client, err := p.Pool.Get(ctx, nil)
	if err != nil {
		return fmt.Errorf("ingest: refresh project %d: client: %w", repositoryID, err)
	}

	repo, err := client.GetRepository(ctx, proj.Owner, proj.Repo)
	if err != nil {
		return fmt.Errorf("ingest: refresh project %d: get repository: %w", repositoryID, err)
	}
	if !strings.EqualFold(repo.Owner.Login, proj.Owner) || !strings.EqualFold(repo.Name, proj.Repo) {
		if err := p.Store.RenameProject(ctx, proj.ID, repo.Owner.Login, repo.Name); err != nil {
			return fmt.Errorf("ingest: refresh project %d: rename: %w", repositoryID, err)
		}
		proj.Owner, proj.Repo = repo.Owner.Login, repo.Name
	}

	workflowIDs, err := p.chooseWorkflows(ctx, client, proj)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(RunFetchConcurrency)
	var (
		mu         sync.Mutex
		newReports int
		pinnedWF   int64
		latestRun  *ghclient.WorkflowRun
	)

	for _, wfID := range workflowIDs {
		runs, err := p.collectRuns(ctx, client, proj, repo, wfID, fullRefresh)
		if err != nil {
			return err
		}
		for i := range runs {
			run := runs[i]
			if latestRun == nil || run.CreatedAt.After(latestRun.CreatedAt) {
				latestRun = &run
			}
		}

		var wg sync.WaitGroup
		errs := make([]error, len(runs))
		for i, run := range runs {
			if err := sem.Acquire(ctx, 1); err != nil {
				return ctx.Err()
			}
			wg.Add(1)
			go func(i int, run ghclient.WorkflowRun) {
				defer wg.Done()
				defer sem.Release(1)
				inserted, err := p.ingestRun(ctx, client, proj, run)
				if err != nil {
					errs[i] = err
					return
				}
				if inserted {
					mu.Lock()
					newReports++
					if pinnedWF == 0 {
						pinnedWF = wfID
					}
					mu.Unlock()
				}
			}(i, run)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}

	if proj.WorkflowID == 0 && pinnedWF != 0 {
		if err := p.Store.SetProjectWorkflow(ctx, proj.ID, pinnedWF); err != nil {
			return fmt.Errorf("ingest: refresh project %d: pin workflow: %w", repositoryID, err)
		}
	}
	if latestRun != nil {
		if err := p.Store.UpdateHeadCommit(ctx, proj.ID, latestRun.HeadSHA, latestRun.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("ingest: refresh project %d: update head commit: %w", repositoryID, err)
		}
	}

	log.Info("refresh project complete", "project_id", proj.ID, "owner", proj.Owner, "repo", proj.Repo,
		"new_reports", newReports, "full_refresh", fullRefresh)
	return nil
}

// chooseWorkflows returns the project's pinned workflow id if set, else
// every workflow file id in the repository (§4.6 step 3).
func (p *Pipeline) chooseWorkflows(ctx context.Context, client RunClient, proj *store.Project) ([]int64, error) {
	if proj.WorkflowID != 0 {
		return []int64{proj.WorkflowID}, nil
	}
	files, err := client.ListWorkflows(ctx, proj.Owner, proj.Repo)
	if err != nil {
		return nil, fmt.Errorf("ingest: refresh project %d: list workflows: %w", proj.ID, err)
	}
	ids := make([]int64, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return ids, nil
}

// collectRuns pages a workflow's completed push runs on the default
// branch oldest-first, stopping when a run's head SHA matches the
// project's stored head (unless fullRefresh) or a page comes back empty
// (§4.6 step 4).
func (p *Pipeline) collectRuns(ctx context.Context, client RunClient, proj *store.Project, repo *ghclient.Repository, workflowID int64, fullRefresh bool) ([]ghclient.WorkflowRun, error) {
	var out []ghclient.WorkflowRun
	for page := 1; ; page++ {
		runs, err := client.ListCompletedPushRuns(ctx, proj.Owner, proj.Repo, workflowID, repo.DefaultBranch, page)
		if err != nil {
			return nil, fmt.Errorf("ingest: refresh project %d: list runs workflow %d page %d: %w", proj.ID, workflowID, page, err)
		}
		if len(runs) == 0 {
			break
		}

		stop := false
		for _, run := range runs {
			if !fullRefresh && proj.HeadCommitSHA != "" && strings.EqualFold(run.HeadSHA, proj.HeadCommitSHA) {
				stop = true
				break
			}
			out = append(out, run)
		}
		if stop {
			break
		}
	}
	return out, nil
}

// ingestRun skips a run already represented by a stored report, else
// fetches and decodes its artifacts and inserts every resulting report
// (§4.6 step 5). The bool result reports whether a new report was
// inserted, for the caller's pinned-workflow bookkeeping.
func (p *Pipeline) ingestRun(ctx context.Context, client RunClient, proj *store.Project, run ghclient.WorkflowRun) (bool, error) {
	has, err := p.Store.HasReport(ctx, proj.ID, run.HeadSHA)
	if err != nil {
		return false, fmt.Errorf("ingest: refresh project %d: check existing report for %s: %w", proj.ID, run.HeadSHA, err)
	}
	if has {
		return false, nil
	}

	reports, err := FetchArtifacts(ctx, client, proj.Owner, proj.Repo, run.ID, nil)
	if err != nil {
		return false, fmt.Errorf("ingest: refresh project %d: fetch artifacts run %d: %w", proj.ID, run.ID, err)
	}

	inserted := false
	for _, vr := range reports {
		if _, err := p.Store.InsertReport(ctx, proj.ID, proj.Owner, proj.Repo, vr.Version, run.HeadSHA, run.Name, run.CreatedAt.Unix(), vr.Report); err != nil {
			return false, fmt.Errorf("ingest: refresh project %d: insert report run %d version %s: %w", proj.ID, run.ID, vr.Version, err)
		}
		inserted = true
	}
	return inserted, nil
}
