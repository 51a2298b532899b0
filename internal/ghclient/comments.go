package ghclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/decomp-dev/reportcore/internal/forge"
)

// GetPullRequestBody fetches a pull request's current description.
func (c *Client) GetPullRequestBody(ctx context.Context, owner, repo string, number int) (string, error) {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number), nil)
	body, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("ghclient: get pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	var pr struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(body, &pr); err != nil {
		return "", fmt.Errorf("ghclient: decode pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	return pr.Body, nil
}

// UpdatePullRequestBody replaces a pull request's description.
func (c *Client) UpdatePullRequestBody(ctx context.Context, owner, repo string, number int, body string) error {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number), nil)
	_, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("ghclient: update pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// ListIssueComments returns the first page of comments on an issue or
// pull request, the granularity Place's comment-mode reconciliation needs
// (§4.5: "list comments on the PR (first page only)").
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, issueNumber int) ([]forge.Comment, error) {
	params := map[string]string{"per_page": "100"}
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, issueNumber), params)
	body, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("ghclient: list comments %s/%s#%d: %w", owner, repo, issueNumber, err)
	}
	var raw []IssueComment
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("ghclient: decode comments %s/%s#%d: %w", owner, repo, issueNumber, err)
	}
	out := make([]forge.Comment, len(raw))
	for i, c := range raw {
		out[i] = forge.Comment{ID: c.ID, Body: c.Body}
	}
	return out, nil
}

// CreateIssueComment posts a new comment.
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueNumber int, body string) error {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, issueNumber), nil)
	_, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("ghclient: create comment %s/%s#%d: %w", owner, repo, issueNumber, err)
	}
	return nil
}

// UpdateIssueComment edits an existing comment in place.
func (c *Client) UpdateIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, commentID), nil)
	_, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("ghclient: update comment %s/%s #%d: %w", owner, repo, commentID, err)
	}
	return nil
}

// DeleteIssueComment removes a stale duplicate comment.
func (c *Client) DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, commentID), nil)
	_, _, err := c.doRequest(ctx, http.MethodDelete, urlStr, nil)
	if err != nil {
		return fmt.Errorf("ghclient: delete comment %s/%s #%d: %w", owner, repo, commentID, err)
	}
	return nil
}

var _ forge.CommentClient = (*Client)(nil)
