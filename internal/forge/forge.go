// Package forge implements the two idempotent comment-placement
// protocols a project can choose between when publishing a rendered
// report diff back to a pull request: splicing a marked region into the
// PR description, or reconciling a single tracked issue comment.
package forge

import (
	"context"
	"fmt"
	"strings"
)

const (
	descriptionStartMarker = "<!-- decomp.dev report start -->"
	descriptionEndMarker   = "<!-- decomp.dev report end -->"

	// commentMarker is the substring that identifies a comment as one of
	// ours, for comment-mode reconciliation. It's the literal heading
	// prefix every rendered report begins with.
	commentMarker = "### Report for "
)

// Comment is a single PR (issue) comment, the minimal shape the
// placement protocol needs to find and reconcile its own prior output.
type Comment struct {
	ID   int64
	Body string
}

// CommentClient is the narrow surface Place needs from a forge client.
// internal/ghclient.Client satisfies it.
type CommentClient interface {
	GetPullRequestBody(ctx context.Context, owner, repo string, number int) (string, error)
	UpdatePullRequestBody(ctx context.Context, owner, repo string, number int, body string) error

	ListIssueComments(ctx context.Context, owner, repo string, issueNumber int) ([]Comment, error)
	CreateIssueComment(ctx context.Context, owner, repo string, issueNumber int, body string) error
	UpdateIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error
	DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error
}

// Mode selects where a project's report output is placed.
type Mode string

const (
	ModeDescription Mode = "description"
	ModeComment     Mode = "comment"
)

// SpliceDescription applies the description-mode update rule to a PR
// body: if both markers are already present, replace the region between
// them (inclusive); else if the body is empty, the new section becomes
// the whole body; else the new section is appended after the existing
// body, separated by a horizontal rule. Reapplying with a new section
// updates in place rather than appending again — the body's prefix
// before the markers is always preserved.
func SpliceDescription(existingBody, section string) string {
	newSection := descriptionStartMarker + "\n" + section + "\n" + descriptionEndMarker

	startIdx := strings.Index(existingBody, descriptionStartMarker)
	if startIdx >= 0 {
		rest := existingBody[startIdx:]
		if endRel := strings.Index(rest, descriptionEndMarker); endRel >= 0 {
			endIdx := startIdx + endRel + len(descriptionEndMarker)
			return existingBody[:startIdx] + newSection + existingBody[endIdx:]
		}
		// Start marker present with no matching end: treat as a foreign
		// or truncated body and append a fresh section rather than guess
		// at a splice point.
		return existingBody + "\n\n---\n\n" + newSection
	}

	trimmed := strings.TrimSpace(existingBody)
	if trimmed == "" {
		return newSection
	}
	return trimmed + "\n\n---\n\n" + newSection
}

// PlaceDescription fetches, splices, and writes back a PR's description.
func PlaceDescription(ctx context.Context, client CommentClient, owner, repo string, number int, section string) error {
	body, err := client.GetPullRequestBody(ctx, owner, repo, number)
	if err != nil {
		return fmt.Errorf("forge: get pull request %d body: %w", number, err)
	}
	newBody := SpliceDescription(body, section)
	if newBody == body {
		return nil
	}
	if err := client.UpdatePullRequestBody(ctx, owner, repo, number, newBody); err != nil {
		return fmt.Errorf("forge: update pull request %d body: %w", number, err)
	}
	return nil
}

// PlaceComment reconciles a single tracked comment on the PR: if one or
// more of our comments already exist, the first (by list order) is
// updated in place and any additional ones are deleted; otherwise a new
// comment is created. Deletion failures for stale duplicates are not
// fatal — the caller's logger should still surface them.
func PlaceComment(ctx context.Context, client CommentClient, owner, repo string, number int, body string) ([]error, error) {
	comments, err := client.ListIssueComments(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("forge: list comments on pull request %d: %w", number, err)
	}

	var ours []Comment
	for _, c := range comments {
		if strings.Contains(c.Body, commentMarker) {
			ours = append(ours, c)
		}
	}

	if len(ours) == 0 {
		if err := client.CreateIssueComment(ctx, owner, repo, number, body); err != nil {
			return nil, fmt.Errorf("forge: create comment on pull request %d: %w", number, err)
		}
		return nil, nil
	}

	if err := client.UpdateIssueComment(ctx, owner, repo, ours[0].ID, body); err != nil {
		return nil, fmt.Errorf("forge: update comment %d: %w", ours[0].ID, err)
	}

	var deleteErrs []error
	for _, c := range ours[1:] {
		if err := client.DeleteIssueComment(ctx, owner, repo, c.ID); err != nil {
			deleteErrs = append(deleteErrs, fmt.Errorf("forge: delete stale comment %d: %w", c.ID, err))
		}
	}
	return deleteErrs, nil
}

// Place dispatches to the placement protocol a project has selected.
// The returned slice holds non-fatal errors encountered deleting stale
// duplicate comments in comment mode; it is always empty in description
// mode.
func Place(ctx context.Context, client CommentClient, mode Mode, owner, repo string, number int, body string) ([]error, error) {
	if mode == ModeDescription {
		return nil, PlaceDescription(ctx, client, owner, repo, number, body)
	}
	return PlaceComment(ctx, client, owner, repo, number, body)
}
