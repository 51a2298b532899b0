package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decomp-dev/reportcore/internal/ghclient"
	"github.com/decomp-dev/reportcore/internal/report"
)

var errNotImplemented = errors.New("ingest test: not implemented")

func TestAssignVersionsMatchesReportSuffix(t *testing.T) {
	mapped := assignVersions([]artifactRef{
		{ID: 1, Name: "us_report"},
		{ID: 2, Name: "eu-report-debug"},
		{ID: 3, Name: "unrelated"},
		{ID: 4, Name: "stale_report", Expired: true},
	})
	require.Len(t, mapped, 2)
	assert.Equal(t, "us", mapped[0].version)
	assert.Equal(t, "eu", mapped[1].version)
}

func TestAssignVersionsInheritsFromMapsPeer(t *testing.T) {
	mapped := assignVersions([]artifactRef{
		{ID: 1, Name: "progress.json"},
		{ID: 2, Name: "us_maps"},
	})
	require.Len(t, mapped, 1)
	assert.Equal(t, int64(1), mapped[0].artifact.ID)
	assert.Equal(t, "us", mapped[0].version)
}

func TestCoversAllBaseVersionsIsCaseInsensitive(t *testing.T) {
	mapped := []mappedArtifact{{version: "US"}, {version: "eu"}}
	assert.True(t, coversAllBaseVersions(mapped, []string{"us", "EU"}))
	assert.False(t, coversAllBaseVersions(mapped, []string{"us", "jp"}))
}

type fakeRunClient struct {
	artifacts []ghclient.Artifact
	zips      map[int64][]byte
}

func (f *fakeRunClient) GetRepository(ctx context.Context, owner, repo string) (*ghclient.Repository, error) {
	return nil, errNotImplemented
}
func (f *fakeRunClient) ListWorkflows(ctx context.Context, owner, repo string) ([]ghclient.WorkflowFile, error) {
	return nil, errNotImplemented
}
func (f *fakeRunClient) ListCompletedPushRuns(ctx context.Context, owner, repo string, workflowID int64, branch string, page int) ([]ghclient.WorkflowRun, error) {
	return nil, errNotImplemented
}
func (f *fakeRunClient) ListArtifacts(ctx context.Context, owner, repo string, runID int64) ([]ghclient.Artifact, error) {
	return f.artifacts, nil
}
func (f *fakeRunClient) DownloadArtifact(ctx context.Context, owner, repo string, artifactID int64) ([]byte, error) {
	return f.zips[artifactID], nil
}

func zipWithReport(t *testing.T, entryName string, r *report.Report) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(entryName)
	require.NoError(t, err)
	_, err = w.Write(report.Encode(r))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetchArtifactsDecodesSingleVersion(t *testing.T) {
	r := &report.Report{FormatVersion: report.CurrentFormatVersion, Units: []*report.ReportUnit{{Name: "a"}}}
	zipped := zipWithReport(t, "report.bin", r)

	client := &fakeRunClient{
		artifacts: []ghclient.Artifact{{ID: 1, Name: "us_report"}},
		zips:      map[int64][]byte{1: zipped},
	}

	out, err := FetchArtifacts(context.Background(), client, "owner", "repo", 1, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "us", out[0].Version)
	require.Len(t, out[0].Report.Units, 1)
	assert.Equal(t, "a", out[0].Report.Units[0].Name)
}

func TestFetchArtifactsSplitsCombined(t *testing.T) {
	r := &report.Report{
		FormatVersion: report.CurrentFormatVersion,
		Categories: []report.ReportCategory{
			{ID: "us:all", Measures: &report.Measures{}},
			{ID: "eu:all", Measures: &report.Measures{}},
		},
		Units: []*report.ReportUnit{
			{Name: "a", Metadata: map[string]string{"version": "us"}},
			{Name: "b", Metadata: map[string]string{"version": "eu"}},
		},
	}
	zipped := zipWithReport(t, "report.bin", r)

	client := &fakeRunClient{
		artifacts: []ghclient.Artifact{{ID: 1, Name: "combined_report"}},
		zips:      map[int64][]byte{1: zipped},
	}

	out, err := FetchArtifacts(context.Background(), client, "owner", "repo", 1, nil)
	require.NoError(t, err)
	versions := map[string]bool{}
	for _, vr := range out {
		versions[vr.Version] = true
	}
	assert.True(t, versions["us"])
	assert.True(t, versions["eu"])
}
