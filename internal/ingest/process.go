package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/decomp-dev/reportcore/internal/change"
	"github.com/decomp-dev/reportcore/internal/forge"
	"github.com/decomp-dev/reportcore/internal/queue"
	"github.com/decomp-dev/reportcore/internal/report"
	"github.com/decomp-dev/reportcore/internal/store"
)

// ProcessWorkflowRun implements SPEC_FULL §4.6's run-completion
// processing: push events are stored directly, pull_request(_target)
// events are diffed against the server's current base and posted back
// to the forge.
func (p *Pipeline) ProcessWorkflowRun(ctx context.Context, job queue.ProcessWorkflowRunJob) error {
	log := p.log()

	proj, err := p.Store.GetProject(ctx, job.RepositoryID)
	if err != nil {
		return fmt.Errorf("ingest: process workflow run %d: load project: %w", job.RunID, err)
	}

	client, err := p.Pool.Get(ctx, job.InstallationID)
	if err != nil {
		return fmt.Errorf("ingest: process workflow run %d: client: %w", job.RunID, err)
	}

	switch job.Event {
	case "push":
		return p.processPush(ctx, client, proj, job)
	case "pull_request", "pull_request_target":
		return p.processPullRequest(ctx, client, proj, job, log)
	default:
		log.Debug("ingest: discarding workflow run for unhandled event", "event", job.Event, "run_id", job.RunID)
		return nil
	}
}

// processPush requires the run's branch to equal the project's default
// branch, falling back to main/master when the forge surfaced none, then
// stores every fetched report (§4.6: "For push: insert each fetched
// report via the store.").
func (p *Pipeline) processPush(ctx context.Context, client ForgeClient, proj *store.Project, job queue.ProcessWorkflowRunJob) error {
	repo, err := client.GetRepository(ctx, proj.Owner, proj.Repo)
	if err != nil {
		return fmt.Errorf("ingest: process workflow run %d: get repository: %w", job.RunID, err)
	}

	var onDefaultBranch bool
	if repo.DefaultBranch != "" {
		onDefaultBranch = strings.EqualFold(job.HeadBranch, repo.DefaultBranch)
	} else {
		onDefaultBranch = strings.EqualFold(job.HeadBranch, "main") || strings.EqualFold(job.HeadBranch, "master")
	}
	if !onDefaultBranch {
		return nil
	}

	reports, err := FetchArtifacts(ctx, client, proj.Owner, proj.Repo, job.RunID, nil)
	if err != nil {
		return fmt.Errorf("ingest: process workflow run %d: fetch artifacts: %w", job.RunID, err)
	}

	now := time.Now().Unix()
	for _, vr := range reports {
		if _, err := p.Store.InsertReport(ctx, proj.ID, proj.Owner, proj.Repo, vr.Version, job.HeadSHA, "", now, vr.Report); err != nil {
			return fmt.Errorf("ingest: process workflow run %d: insert report version %s: %w", job.RunID, vr.Version, err)
		}
	}
	if len(reports) > 0 {
		if err := p.Store.UpdateHeadCommit(ctx, proj.ID, job.HeadSHA, now); err != nil {
			return fmt.Errorf("ingest: process workflow run %d: update head commit: %w", job.RunID, err)
		}
	}
	return nil
}

// processPullRequest computes the base the server currently has for the
// project (its latest stored commit, never the forge-reported base.sha —
// see DESIGN.md), collects base_versions from that commit's reports, and
// renders + places a comment on every associated PR (§4.6, §4.5).
func (p *Pipeline) processPullRequest(ctx context.Context, client ForgeClient, proj *store.Project, job queue.ProcessWorkflowRunJob, log *slog.Logger) error {
	if proj.Disabled {
		return nil
	}
	if p.Runtime != nil && p.Runtime.GetBool("pr_comments_disabled", false) {
		log.Debug("ingest: pr comments disabled via runtime config, skipping", "project_id", proj.ID, "run_id", job.RunID)
		return nil
	}

	baseSHA := proj.HeadCommitSHA
	var baseVersions []string
	if baseSHA != "" {
		var err error
		baseVersions, err = p.Store.ReportVersionsForCommit(ctx, proj.ID, baseSHA)
		if err != nil {
			return fmt.Errorf("ingest: process workflow run %d: base versions: %w", job.RunID, err)
		}
	}

	reports, err := FetchArtifacts(ctx, client, proj.Owner, proj.Repo, job.RunID, baseVersions)
	if err != nil {
		return fmt.Errorf("ingest: process workflow run %d: fetch artifacts: %w", job.RunID, err)
	}

	seen := make(map[string]bool, len(reports))
	var sections []string
	for _, vr := range reports {
		seen[strings.ToLower(vr.Version)] = true
		sections = append(sections, p.renderPRVersion(ctx, proj, baseSHA, job.HeadSHA, vr, log))
	}
	for _, bv := range baseVersions {
		if !seen[strings.ToLower(bv)] {
			sections = append(sections, change.RenderMissingReport(bv, baseSHA, job.HeadSHA))
		}
	}
	if len(sections) == 0 {
		return nil
	}
	body := change.RenderCombined(sections)

	commentMode := proj.CommentMode
	if commentMode == "" {
		commentMode = "description"
		if p.Runtime != nil {
			commentMode = p.Runtime.GetDefault("default_comment_mode", commentMode)
		}
	}
	mode := forge.Mode(commentMode)
	for _, number := range job.PullRequestNumbers {
		if _, err := forge.Place(ctx, client, mode, proj.Owner, proj.Repo, int(number), body); err != nil {
			return fmt.Errorf("ingest: process workflow run %d: place comment on pull request %d: %w", job.RunID, number, err)
		}
	}
	return nil
}

// renderPRVersion renders one version's section of the PR comment: the
// computed diff against the stored base report, or a missing-report stub
// if no base report exists for that version (or the base commit itself
// is unknown, a fresh project's first PR).
func (p *Pipeline) renderPRVersion(ctx context.Context, proj *store.Project, baseSHA, headSHA string, vr VersionedReport, log *slog.Logger) string {
	if baseSHA == "" {
		return change.RenderMissingReport(vr.Version, baseSHA, headSHA)
	}

	baseHeader, err := p.Store.GetReport(ctx, proj.Owner, proj.Repo, baseSHA, vr.Version)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("ingest: load base report failed", "project_id", proj.ID, "version", vr.Version, "error", err)
		}
		return change.RenderMissingReport(vr.Version, baseSHA, headSHA)
	}

	baseReport, err := p.fullReport(ctx, baseHeader)
	if err != nil {
		log.Error("ingest: load base report bodies failed", "project_id", proj.ID, "version", vr.Version, "error", err)
		return change.RenderMissingReport(vr.Version, baseSHA, headSHA)
	}

	changes := change.Compute(baseReport, vr.Report)
	return change.Render(changes, vr.Version, baseSHA, headSHA)
}

// fullReport reassembles a body-loaded report.Report from a store.Header,
// the "upgrade the lighter key-only shape to the full in-memory one"
// step the change engine needs (store.Header doc comment).
func (p *Pipeline) fullReport(ctx context.Context, h *store.Header) (*report.Report, error) {
	bodies, err := p.Store.LoadBodies(ctx, h.UnitKeys)
	if err != nil {
		return nil, err
	}
	units := make([]*report.ReportUnit, len(h.UnitKeys))
	for i, k := range h.UnitKeys {
		u, ok := bodies[k]
		if !ok {
			return nil, fmt.Errorf("ingest: missing unit body for key %s", k)
		}
		units[i] = u
	}
	return &report.Report{
		FormatVersion: h.FormatVersion,
		Measures:      h.Measures,
		Categories:    h.Categories,
		Units:         units,
	}, nil
}
