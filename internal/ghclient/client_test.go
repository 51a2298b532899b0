package ghclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListWorkflowsPaginates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "1" {
			w.Header().Set("Link", `<https://example/next>; rel="next"`)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"workflows": []WorkflowFile{{ID: 1, Name: "build"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"workflows": []WorkflowFile{{ID: 2, Name: "release"}},
		})
	}))
	defer server.Close()

	c := NewClient("tok")
	c.BaseURL = server.URL

	workflows, err := c.ListWorkflows(context.Background(), "o", "r")
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	require.Equal(t, 2, calls)
}

func TestGetRepositoryDecodesOwnerAndBranch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Repository{
			ID: 42, Name: "widget", FullName: "acme/widget", DefaultBranch: "main",
		})
	}))
	defer server.Close()

	c := NewClient("tok")
	c.BaseURL = server.URL

	repo, err := c.GetRepository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	require.Equal(t, int64(42), repo.ID)
	require.Equal(t, "main", repo.DefaultBranch)
}

func TestDoRequestRetriesOnRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(Repository{ID: 1, DefaultBranch: "main"})
	}))
	defer server.Close()

	c := NewClient("tok")
	c.BaseURL = server.URL

	repo, err := c.GetRepository(context.Background(), "o", "r")
	require.NoError(t, err)
	require.Equal(t, int64(1), repo.ID)
	require.Equal(t, 2, attempts)
}

func TestDoRequestReturnsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient("tok")
	c.BaseURL = server.URL

	_, err := c.GetRepository(context.Background(), "o", "r")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIssueCommentsRoundTrip(t *testing.T) {
	var lastBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode([]IssueComment{{ID: 7, Body: "### Report for GALE01 (a - b)"}})
		case r.Method == http.MethodPost || r.Method == http.MethodPatch:
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	c := NewClient("tok")
	c.BaseURL = server.URL

	comments, err := c.ListIssueComments(context.Background(), "o", "r", 5)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, int64(7), comments[0].ID)

	require.NoError(t, c.UpdateIssueComment(context.Background(), "o", "r", 7, "updated"))
	require.Equal(t, "updated", lastBody["body"])

	require.NoError(t, c.DeleteIssueComment(context.Background(), "o", "r", 7))
}
