package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/decomp-dev/reportcore/internal/report"
)

// ArtifactDownloadConcurrency bounds in-flight artifact downloads for a
// single run (SPEC_FULL §4.7 step 4, §5).
const ArtifactDownloadConcurrency = 3

// MaxArtifactListingRetries and the 2^attempt second backoff schedule are
// exactly §4.7 step 3's retry policy, used only to wait out artifacts
// that haven't finished uploading yet when a base_versions list is known.
const MaxArtifactListingRetries = 5

// versionReportPattern recognizes "<version>_report", "<version>-report",
// or "<version>_report_<suffix>" style artifact names.
var versionReportPattern = regexp.MustCompile(`^(?P<version>[A-Za-z0-9_.\-]+)[_-]report(?:[_-].*)?$`)

// versionMapsPattern recognizes a "<version>_maps" peer artifact, used to
// infer the version of a bare "progress"/"progress.json" artifact that
// carries no version in its own name.
var versionMapsPattern = regexp.MustCompile(`^(?P<version>[A-Za-z0-9_\-]+)_maps$`)

// CombinedVersion is the sentinel artifact version that signals a
// multi-version combined report (§4.3, §4.7 step 4).
const CombinedVersion = "combined"

// mappedArtifact pairs a non-expired artifact with the version string
// assigned to it by name-recognition.
type mappedArtifact struct {
	artifact *artifactRef
	version  string
}

// artifactRef is the subset of ghclient.Artifact version assignment
// needs; defined locally so this file doesn't need to import ghclient
// just for a struct literal in tests.
type artifactRef struct {
	ID      int64
	Name    string
	Expired bool
}

// assignVersions maps every non-expired artifact to a version string per
// §4.7 step 2, dropping artifacts that match neither the report-name
// pattern nor the progress+maps-peer fallback.
func assignVersions(artifacts []artifactRef) []mappedArtifact {
	byName := make(map[string]artifactRef, len(artifacts))
	for _, a := range artifacts {
		byName[a.Name] = a
	}

	var out []mappedArtifact
	for i := range artifacts {
		a := artifacts[i]
		if a.Expired {
			continue
		}

		if m := versionReportPattern.FindStringSubmatch(a.Name); m != nil {
			out = append(out, mappedArtifact{artifact: &artifacts[i], version: m[1]})
			continue
		}

		if strings.EqualFold(a.Name, "progress") || strings.EqualFold(a.Name, "progress.json") {
			for _, peer := range artifacts {
				if peer.Expired {
					continue
				}
				if m := versionMapsPattern.FindStringSubmatch(peer.Name); m != nil {
					out = append(out, mappedArtifact{artifact: &artifacts[i], version: m[1]})
					break
				}
			}
		}
	}
	return out
}

func coversAllBaseVersions(mapped []mappedArtifact, baseVersions []string) bool {
	have := make(map[string]bool, len(mapped))
	for _, m := range mapped {
		have[strings.ToLower(m.version)] = true
	}
	for _, v := range baseVersions {
		if !have[strings.ToLower(v)] {
			return false
		}
	}
	return true
}

// VersionedReport pairs a mapped artifact version with its decoded,
// already-migrated report.
type VersionedReport struct {
	Version string
	Report  *report.Report
}

// listArtifacts adapts a RunClient's ghclient.Artifact rows into the
// local artifactRef slice this file works with, keeping the regex/retry
// logic free of a direct ghclient import.
func listArtifacts(ctx context.Context, client RunClient, owner, repo string, runID int64) ([]artifactRef, error) {
	artifacts, err := client.ListArtifacts(ctx, owner, repo, runID)
	if err != nil {
		return nil, err
	}
	refs := make([]artifactRef, len(artifacts))
	for i, a := range artifacts {
		refs[i] = artifactRef{ID: a.ID, Name: a.Name, Expired: a.Expired}
	}
	return refs, nil
}

// FetchArtifacts implements §4.7 end to end for one run: list artifacts,
// assign versions, retry listing (with the 2^attempt second backoff) if a
// known base_versions set isn't fully covered yet, then download the
// mapped artifacts with bounded parallelism, unzip each, decode and
// migrate its report payload, and split combined artifacts into their
// per-version reports.
func FetchArtifacts(ctx context.Context, client RunClient, owner, repo string, runID int64, baseVersions []string) ([]VersionedReport, error) {
	refs, err := listArtifacts(ctx, client, owner, repo, runID)
	if err != nil {
		return nil, fmt.Errorf("ingest: fetch artifacts: list: %w", err)
	}
	mapped := assignVersions(refs)

	if len(baseVersions) > 0 && !coversAllBaseVersions(mapped, baseVersions) {
		for attempt := 1; attempt <= MaxArtifactListingRetries; attempt++ {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}

			refs, err = listArtifacts(ctx, client, owner, repo, runID)
			if err != nil {
				return nil, fmt.Errorf("ingest: fetch artifacts: relist attempt %d: %w", attempt, err)
			}
			mapped = assignVersions(refs)
			if coversAllBaseVersions(mapped, baseVersions) {
				break
			}
		}
		// Proceed with whatever was found after exhausting retries — §4.7
		// step 3: "proceed with whatever was found."
	}

	sem := semaphore.NewWeighted(ArtifactDownloadConcurrency)
	type result struct {
		reports []VersionedReport
		err     error
	}
	results := make([]result, len(mapped))

	var wg sync.WaitGroup
	for i, m := range mapped {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func(i int, m mappedArtifact) {
			defer wg.Done()
			defer sem.Release(1)
			reports, err := downloadAndDecode(ctx, client, owner, repo, m)
			results[i] = result{reports: reports, err: err}
		}(i, m)
	}
	wg.Wait()

	var out []VersionedReport
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, r.reports...)
	}
	return out, nil
}

func downloadAndDecode(ctx context.Context, client RunClient, owner, repo string, m mappedArtifact) ([]VersionedReport, error) {
	data, err := client.DownloadArtifact(ctx, owner, repo, m.artifact.ID)
	if err != nil {
		return nil, fmt.Errorf("ingest: download artifact %s (%s): %w", m.artifact.Name, m.version, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("ingest: open artifact zip %s: %w", m.artifact.Name, err)
	}

	var out []VersionedReport
	for _, f := range zr.File {
		stem := strings.TrimSuffix(filepath.Base(f.Name), filepath.Ext(f.Name))
		if !strings.EqualFold(stem, "report") && !strings.EqualFold(stem, "progress") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("ingest: open zip entry %s: %w", f.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("ingest: read zip entry %s: %w", f.Name, err)
		}

		r, err := report.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("ingest: decode report %s: %w", f.Name, err)
		}
		migrated, err := report.Migrate(r)
		if err != nil {
			return nil, fmt.Errorf("ingest: migrate report %s: %w", f.Name, err)
		}

		if strings.EqualFold(m.version, CombinedVersion) {
			split, err := report.Split(migrated)
			if err != nil {
				return nil, fmt.Errorf("ingest: split combined report %s: %w", f.Name, err)
			}
			for _, vr := range split {
				out = append(out, VersionedReport{Version: vr.Version, Report: vr.Report})
			}
			continue
		}

		out = append(out, VersionedReport{Version: m.version, Report: migrated})
	}
	return out, nil
}
