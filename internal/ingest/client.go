// Package ingest is the discovery-and-download pipeline: the project
// refresh loop (SPEC_FULL §4.6), run-completion processing for push and
// pull-request events, and the artifact fetch/version-recognition step
// (§4.7) that feeds both.
package ingest

import (
	"context"
	"sync"

	"github.com/decomp-dev/reportcore/internal/forge"
	"github.com/decomp-dev/reportcore/internal/ghclient"
)

// RunClient is the subset of ghclient.Client the pipeline needs for
// discovering and downloading CI runs and their artifacts.
type RunClient interface {
	GetRepository(ctx context.Context, owner, repo string) (*ghclient.Repository, error)
	ListWorkflows(ctx context.Context, owner, repo string) ([]ghclient.WorkflowFile, error)
	ListCompletedPushRuns(ctx context.Context, owner, repo string, workflowID int64, branch string, page int) ([]ghclient.WorkflowRun, error)
	ListArtifacts(ctx context.Context, owner, repo string, runID int64) ([]ghclient.Artifact, error)
	DownloadArtifact(ctx context.Context, owner, repo string, artifactID int64) ([]byte, error)
}

// ForgeClient is everything the pipeline needs from a forge: run/artifact
// discovery plus the narrow comment-placement surface internal/forge
// defines. *ghclient.Client satisfies this directly.
type ForgeClient interface {
	RunClient
	forge.CommentClient
}

// TokenFunc mints (or looks up) the access token for a GitHub App
// installation. Installation auth itself — JWT signing, the
// installation-token exchange — is an external collaborator per spec §1;
// this is the seam the pipeline calls into.
type TokenFunc func(ctx context.Context, installationID int64) (string, error)

// ClientPool is the single mutex-guarded map of per-installation forge
// clients SPEC_FULL §5 describes: "on miss, the missing client is created
// while holding the lock — acceptable because installation churn is
// rare." A nil installation id (organic, non-App auth) always resolves
// to the pool's default client instead of populating the map.
type ClientPool struct {
	mu     sync.Mutex
	byInst map[int64]ForgeClient
	mint   TokenFunc
	newFn  func(token string) ForgeClient
	def    ForgeClient
}

// NewClientPool builds a pool whose default client is defaultClient, and whose
// per-installation clients are minted lazily via mint and constructed
// with newClient (normally ghclient.NewClient wrapped to satisfy
// ForgeClient).
func NewClientPool(defaultClient ForgeClient, mint TokenFunc, newClient func(token string) ForgeClient) *ClientPool {
	return &ClientPool{
		byInst: make(map[int64]ForgeClient),
		mint:   mint,
		newFn:  newClient,
		def:    defaultClient,
	}
}

// Get returns the client for installationID, minting and caching one on
// first use. A nil installationID returns the pool's default client
// without taking the lock.
func (p *ClientPool) Get(ctx context.Context, installationID *int64) (ForgeClient, error) {
	if installationID == nil {
		return p.def, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.byInst[*installationID]; ok {
		return c, nil
	}

	token, err := p.mint(ctx, *installationID)
	if err != nil {
		return nil, err
	}
	c := p.newFn(token)
	p.byInst[*installationID] = c
	return c, nil
}
