package store

import (
	"context"
	"database/sql"
)

// ProjectCommentMode selects where a project's report comment is placed.
type ProjectCommentMode string

const (
	CommentModeDescription ProjectCommentMode = "description"
	CommentModeComment     ProjectCommentMode = "comment"
)

// Project is a linked repository's configuration row.
type Project struct {
	ID                int64
	Owner             string
	Repo              string
	DisplayName       string
	ShortName         string
	DefaultCategoryID string
	DefaultVersion    string
	Platform          string
	WorkflowID        int64
	CommentMode       ProjectCommentMode
	HeadCommitSHA     string
	HeadCommitFetched int64
	Disabled          bool
}

// GetProject loads a project by its externally assigned id.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx, projectSelect+` WHERE id = ?`, id))
}

// GetProjectByOwnerRepo loads a project by its current owner/repo, which
// are compared case-insensitively.
func (s *Store) GetProjectByOwnerRepo(ctx context.Context, owner, repo string) (*Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx, projectSelect+` WHERE owner = ? AND repo = ?`, owner, repo))
}

const projectSelect = `SELECT id, owner, repo, display_name, short_name, default_category_id,
	default_version, platform, workflow_id, pr_comment_mode, head_commit_sha,
	head_commit_fetched_at, disabled FROM projects`

func (s *Store) scanProject(row *sql.Row) (*Project, error) {
	var (
		p                          Project
		displayName, shortName     sql.NullString
		defaultCategory, defaultV  sql.NullString
		platform, headSHA          sql.NullString
		workflowID, headFetched    sql.NullInt64
		commentMode                string
		disabled                   int
	)
	err := row.Scan(&p.ID, &p.Owner, &p.Repo, &displayName, &shortName, &defaultCategory,
		&defaultV, &platform, &workflowID, &commentMode, &headSHA, &headFetched, &disabled)
	if err != nil {
		return nil, wrapDBError("get project", err)
	}
	p.DisplayName = displayName.String
	p.ShortName = shortName.String
	p.DefaultCategoryID = defaultCategory.String
	p.DefaultVersion = defaultV.String
	p.Platform = platform.String
	p.WorkflowID = workflowID.Int64
	p.CommentMode = ProjectCommentMode(commentMode)
	p.HeadCommitSHA = headSHA.String
	p.HeadCommitFetched = headFetched.Int64
	p.Disabled = disabled != 0
	return &p, nil
}

// ListActiveProjects returns every non-disabled project, for the
// scheduler's periodic refresh fan-out.
func (s *Store) ListActiveProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, projectSelect+` WHERE disabled = 0 ORDER BY id`)
	if err != nil {
		return nil, wrapDBError("list active projects", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := s.scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, wrapDBError("list active projects", rows.Err())
}

func (s *Store) scanProjectRows(rows *sql.Rows) (*Project, error) {
	var (
		p                         Project
		displayName, shortName    sql.NullString
		defaultCategory, defaultV sql.NullString
		platform, headSHA         sql.NullString
		workflowID, headFetched   sql.NullInt64
		commentMode               string
		disabled                  int
	)
	err := rows.Scan(&p.ID, &p.Owner, &p.Repo, &displayName, &shortName, &defaultCategory,
		&defaultV, &platform, &workflowID, &commentMode, &headSHA, &headFetched, &disabled)
	if err != nil {
		return nil, wrapDBError("scan project", err)
	}
	p.DisplayName = displayName.String
	p.ShortName = shortName.String
	p.DefaultCategoryID = defaultCategory.String
	p.DefaultVersion = defaultV.String
	p.Platform = platform.String
	p.WorkflowID = workflowID.Int64
	p.CommentMode = ProjectCommentMode(commentMode)
	p.HeadCommitSHA = headSHA.String
	p.HeadCommitFetched = headFetched.Int64
	p.Disabled = disabled != 0
	return &p, nil
}

// RenameProject applies a forge-reported owner/name change. id stays the
// stable key; this is the explicit counterpart to the implicit rename
// InsertReport performs as a side effect of its project upsert.
func (s *Store) RenameProject(ctx context.Context, id int64, newOwner, newRepo string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET owner = ?, repo = ? WHERE id = ?`, newOwner, newRepo, id)
	if err != nil {
		return wrapDBErrorf(err, "rename project %d", id)
	}
	return requireRowAffected(res, "rename project")
}

// SetProjectDisabled soft-retires or reactivates a project; rows are
// never deleted by this path (deletion, and the orphan cleanup it
// triggers, is an explicit administrative action — see SweepOrphans).
func (s *Store) SetProjectDisabled(ctx context.Context, id int64, disabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET disabled = ? WHERE id = ?`, disabled, id)
	if err != nil {
		return wrapDBErrorf(err, "set project %d disabled=%v", id, disabled)
	}
	return requireRowAffected(res, "set project disabled")
}

// SetProjectWorkflow pins the GitHub Actions workflow id ingestion
// listens to for a project.
func (s *Store) SetProjectWorkflow(ctx context.Context, id, workflowID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET workflow_id = ? WHERE id = ?`, workflowID, id)
	if err != nil {
		return wrapDBErrorf(err, "set project %d workflow", id)
	}
	return requireRowAffected(res, "set project workflow")
}

// SetProjectCommentMode switches between PR-description and PR-comment
// placement for a project's report output.
func (s *Store) SetProjectCommentMode(ctx context.Context, id int64, mode ProjectCommentMode) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET pr_comment_mode = ? WHERE id = ?`, string(mode), id)
	if err != nil {
		return wrapDBErrorf(err, "set project %d comment mode", id)
	}
	return requireRowAffected(res, "set project comment mode")
}

// UpdateHeadCommit records the project's latest known default-branch
// commit. The forge's own base.sha on pull-request events is deliberately
// not trusted for this — see DESIGN.md. The callers in internal/ingest
// pass the head SHA of the latest completed default-branch push run
// (refresh) or of a push event whose branch matched the default branch.
func (s *Store) UpdateHeadCommit(ctx context.Context, id int64, sha string, fetchedAtUnix int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET head_commit_sha = ?, head_commit_fetched_at = ? WHERE id = ?`,
		sha, fetchedAtUnix, id)
	if err != nil {
		return wrapDBErrorf(err, "update project %d head commit", id)
	}
	return requireRowAffected(res, "update head commit")
}

func requireRowAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(op, err)
	}
	if n == 0 {
		return wrapDBError(op, ErrNotFound)
	}
	return nil
}
