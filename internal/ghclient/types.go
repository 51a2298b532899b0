package ghclient

import (
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) for any 404 response.
var ErrNotFound = errors.New("ghclient: not found")

// Repository is the subset of GitHub's repository object the refresh loop
// needs: its id (the project's stable key), current owner/name, and
// default branch.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// WorkflowFile is one `.github/workflows/*.yml` entry.
type WorkflowFile struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	State string `json:"state"`
}

// WorkflowRun is one execution of a workflow file.
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
	Event      string `json:"event"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	CreatedAt  time.Time `json:"created_at"`
}

// Artifact is one artifact attached to a workflow run.
type Artifact struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	ArchiveDownloadURL string    `json:"archive_download_url"`
	Expired            bool      `json:"expired"`
	CreatedAt          time.Time `json:"created_at"`
}

// IssueComment is a comment on an issue or pull request, the REST
// resource backing both (GitHub's PR "conversation" comments are issue
// comments under the hood).
type IssueComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}
