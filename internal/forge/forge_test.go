package forge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpliceDescriptionNoPriorMarkers(t *testing.T) {
	out := SpliceDescription("Fixes #12", "new section")
	assert.Contains(t, out, "Fixes #12")
	assert.Contains(t, out, descriptionStartMarker)
	assert.Contains(t, out, "new section")
	assert.Contains(t, out, descriptionEndMarker)
}

func TestSpliceDescriptionEmptyBody(t *testing.T) {
	out := SpliceDescription("", "new section")
	assert.Equal(t, descriptionStartMarker+"\nnew section\n"+descriptionEndMarker, out)
}

func TestSpliceDescriptionReplacesPriorRegionInPlace(t *testing.T) {
	existing := "intro\n\n" + descriptionStartMarker + "\nold section\n" + descriptionEndMarker + "\n\noutro"
	out := SpliceDescription(existing, "new section")
	assert.Contains(t, out, "intro")
	assert.Contains(t, out, "outro")
	assert.Contains(t, out, "new section")
	assert.NotContains(t, out, "old section")
}

func TestSpliceDescriptionUnmatchedStartMarkerAppends(t *testing.T) {
	existing := "intro\n" + descriptionStartMarker + "\ntruncated"
	out := SpliceDescription(existing, "new section")
	assert.Contains(t, out, "truncated")
	assert.Contains(t, out, "new section")
}

type fakeCommentClient struct {
	body     string
	comments []Comment
	nextID   int64
	created  []string
	updated  map[int64]string
	deleted  []int64
}

func newFakeCommentClient() *fakeCommentClient {
	return &fakeCommentClient{nextID: 1, updated: map[int64]string{}}
}

func (f *fakeCommentClient) GetPullRequestBody(ctx context.Context, owner, repo string, number int) (string, error) {
	return f.body, nil
}
func (f *fakeCommentClient) UpdatePullRequestBody(ctx context.Context, owner, repo string, number int, body string) error {
	f.body = body
	return nil
}
func (f *fakeCommentClient) ListIssueComments(ctx context.Context, owner, repo string, issueNumber int) ([]Comment, error) {
	return f.comments, nil
}
func (f *fakeCommentClient) CreateIssueComment(ctx context.Context, owner, repo string, issueNumber int, body string) error {
	f.created = append(f.created, body)
	f.comments = append(f.comments, Comment{ID: f.nextID, Body: body})
	f.nextID++
	return nil
}
func (f *fakeCommentClient) UpdateIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	f.updated[commentID] = body
	return nil
}
func (f *fakeCommentClient) DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error {
	f.deleted = append(f.deleted, commentID)
	return nil
}

func TestPlaceDescriptionUpdatesOnlyWhenChanged(t *testing.T) {
	client := newFakeCommentClient()
	section := "### Report for v1\nrow"
	client.body = descriptionStartMarker + "\n" + section + "\n" + descriptionEndMarker

	unchangedBody := client.body
	require.NoError(t, PlaceDescription(context.Background(), client, "o", "r", 1, section))
	assert.Equal(t, unchangedBody, client.body)
}

func TestPlaceCommentCreatesWhenNoneExist(t *testing.T) {
	client := newFakeCommentClient()
	errs, err := PlaceComment(context.Background(), client, "o", "r", 7, "### Report for v1\nrow")
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, client.created, 1)
}

func TestPlaceCommentUpdatesExistingMatch(t *testing.T) {
	client := newFakeCommentClient()
	client.comments = []Comment{{ID: 5, Body: "### Report for v1\nold"}}
	errs, err := PlaceComment(context.Background(), client, "o", "r", 7, "### Report for v1\nnew")
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, "### Report for v1\nnew", client.updated[5])
	assert.Empty(t, client.created)
}

func TestPlaceCommentDeletesStaleDuplicates(t *testing.T) {
	client := newFakeCommentClient()
	client.comments = []Comment{
		{ID: 5, Body: "### Report for v1\nfirst"},
		{ID: 6, Body: "### Report for v1\nsecond"},
		{ID: 7, Body: "unrelated comment"},
	}
	errs, err := PlaceComment(context.Background(), client, "o", "r", 7, "### Report for v1\nnew")
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, "### Report for v1\nnew", client.updated[5])
	assert.Equal(t, []int64{6}, client.deleted)
}

func TestPlaceDispatchesByMode(t *testing.T) {
	descClient := newFakeCommentClient()
	_, err := Place(context.Background(), descClient, ModeDescription, "o", "r", 1, "### Report for v1\nrow")
	require.NoError(t, err)
	assert.Contains(t, descClient.body, descriptionStartMarker)

	commentClient := newFakeCommentClient()
	_, err = Place(context.Background(), commentClient, ModeComment, "o", "r", 1, "### Report for v1\nrow")
	require.NoError(t, err)
	assert.Len(t, commentClient.created, 1)
}
