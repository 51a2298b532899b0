package ghclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// GetRepository fetches a repository's current owner/name and default
// branch, used by the refresh loop (§4.6 step 2) to detect a forge-side
// rename.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s", owner, repo), nil)
	body, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("ghclient: get repository %s/%s: %w", owner, repo, err)
	}
	var r Repository
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("ghclient: decode repository %s/%s: %w", owner, repo, err)
	}
	return &r, nil
}

// ListWorkflows enumerates every workflow file in the repository.
func (c *Client) ListWorkflows(ctx context.Context, owner, repo string) ([]WorkflowFile, error) {
	var out []WorkflowFile
	page := 1
	for {
		params := map[string]string{"per_page": strconv.Itoa(MaxPageSize), "page": strconv.Itoa(page)}
		urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/actions/workflows", owner, repo), params)
		body, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("ghclient: list workflows %s/%s: %w", owner, repo, err)
		}
		var resp struct {
			Workflows []WorkflowFile `json:"workflows"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("ghclient: decode workflows %s/%s: %w", owner, repo, err)
		}
		out = append(out, resp.Workflows...)
		if _, ok := hasNextPage(headers); !ok || len(resp.Workflows) == 0 {
			break
		}
		page++
		if page > MaxPages {
			return nil, fmt.Errorf("ghclient: list workflows %s/%s: pagination limit exceeded", owner, repo)
		}
	}
	return out, nil
}

// ListCompletedPushRuns pages a workflow's completed, push-triggered runs
// on branch, oldest first (the refresh loop needs oldest-to-newest order
// for its head-SHA early exit — §4.6 step 4). page is 1-based; callers
// drive pagination themselves so they can stop as soon as a known head
// SHA is seen without fetching further pages.
func (c *Client) ListCompletedPushRuns(ctx context.Context, owner, repo string, workflowID int64, branch string, page int) ([]WorkflowRun, error) {
	params := map[string]string{
		"per_page": strconv.Itoa(MaxPageSize),
		"page":     strconv.Itoa(page),
		"branch":   branch,
		"event":    "push",
		"status":   "completed",
		"order":    "asc",
	}
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/actions/workflows/%d/runs", owner, repo, workflowID), params)
	body, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("ghclient: list runs %s/%s workflow %d page %d: %w", owner, repo, workflowID, page, err)
	}
	var resp struct {
		WorkflowRuns []WorkflowRun `json:"workflow_runs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ghclient: decode runs %s/%s workflow %d: %w", owner, repo, workflowID, err)
	}
	return resp.WorkflowRuns, nil
}

// ListArtifacts pages every artifact attached to a run (first page is
// usually sufficient; §4.7 callers pass the result straight to the
// version-recognition step).
func (c *Client) ListArtifacts(ctx context.Context, owner, repo string, runID int64) ([]Artifact, error) {
	var out []Artifact
	page := 1
	for {
		params := map[string]string{"per_page": strconv.Itoa(MaxPageSize), "page": strconv.Itoa(page)}
		urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/actions/runs/%d/artifacts", owner, repo, runID), params)
		body, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("ghclient: list artifacts %s/%s run %d: %w", owner, repo, runID, err)
		}
		var resp struct {
			Artifacts []Artifact `json:"artifacts"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("ghclient: decode artifacts %s/%s run %d: %w", owner, repo, runID, err)
		}
		out = append(out, resp.Artifacts...)
		if _, ok := hasNextPage(headers); !ok || len(resp.Artifacts) == 0 {
			break
		}
		page++
		if page > MaxPages {
			return nil, fmt.Errorf("ghclient: list artifacts %s/%s run %d: pagination limit exceeded", owner, repo, runID)
		}
	}
	return out, nil
}

// DownloadArtifact streams the artifact's ZIP bytes.
func (c *Client) DownloadArtifact(ctx context.Context, owner, repo string, artifactID int64) ([]byte, error) {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/actions/artifacts/%d/zip", owner, repo, artifactID), nil)
	body, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("ghclient: download artifact %s/%s #%d: %w", owner, repo, artifactID, err)
	}
	return body, nil
}
