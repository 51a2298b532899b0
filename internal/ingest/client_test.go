package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decomp-dev/reportcore/internal/forge"
)

type fakeForgeClient struct {
	fakeRunClient
	token string
}

func (f *fakeForgeClient) GetPullRequestBody(ctx context.Context, owner, repo string, number int) (string, error) {
	return "", nil
}
func (f *fakeForgeClient) UpdatePullRequestBody(ctx context.Context, owner, repo string, number int, body string) error {
	return nil
}
func (f *fakeForgeClient) ListIssueComments(ctx context.Context, owner, repo string, issueNumber int) ([]forge.Comment, error) {
	return nil, nil
}
func (f *fakeForgeClient) CreateIssueComment(ctx context.Context, owner, repo string, issueNumber int, body string) error {
	return nil
}
func (f *fakeForgeClient) UpdateIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	return nil
}
func (f *fakeForgeClient) DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error {
	return nil
}

func TestClientPoolReturnsDefaultForNilInstallation(t *testing.T) {
	def := &fakeForgeClient{token: "default"}
	pool := NewClientPool(def, nil, nil)

	c, err := pool.Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, ForgeClient(def), c)
}

func TestClientPoolMintsAndCachesPerInstallation(t *testing.T) {
	def := &fakeForgeClient{token: "default"}
	var mintCalls int
	pool := NewClientPool(def,
		func(ctx context.Context, installationID int64) (string, error) {
			mintCalls++
			return "installation-token", nil
		},
		func(token string) ForgeClient { return &fakeForgeClient{token: token} },
	)

	inst := int64(7)
	c1, err := pool.Get(context.Background(), &inst)
	require.NoError(t, err)
	c2, err := pool.Get(context.Background(), &inst)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, mintCalls)
	assert.Equal(t, "installation-token", c1.(*fakeForgeClient).token)
}
