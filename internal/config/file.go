// Package config is the two-tier settings model SPEC_FULL §1.1 carries
// over from the teacher's yaml_config.go/local_config.go: startup-only
// keys (database path, listen address, forge token, concurrency caps)
// live in a YAML file read once at process start, while runtime-tunable
// keys are persisted in the store's config table and can be changed
// without a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the startup-only configuration read from config.yaml. These
// are exactly the settings LoadFile's teacher counterpart classifies as
// "yaml-only keys" — values read before the database even exists, so
// they cannot live in it.
type File struct {
	// DatabasePath is where internal/store opens its SQLite file.
	DatabasePath string `yaml:"database_path"`

	// ListenAddr is the address the (external) HTTP router binds, passed
	// through unused by this core beyond configuration plumbing — see
	// SPEC_FULL §1 Non-goals.
	ListenAddr string `yaml:"listen_addr"`

	// ForgeToken authenticates internal/ghclient against the GitHub REST
	// API. Prefer the REPORTCORE_FORGE_TOKEN environment variable in
	// production; this field exists for local/dev configs.
	ForgeToken string `yaml:"forge_token"`

	// Concurrency caps, per SPEC_FULL §5. Zero means "use the spec
	// default" (10 run fetches, 3 artifact downloads). These values are
	// parsed and defaulted only: internal/ingest does not read them and
	// always uses its own constants (RunFetchConcurrency = 10,
	// ArtifactDownloadConcurrency = 3).
	RunFetchConcurrency      int `yaml:"run_fetch_concurrency"`
	ArtifactFetchConcurrency int `yaml:"artifact_fetch_concurrency"`

	// QueueWorkflowRunConcurrency and QueueRefreshProjectConcurrency size
	// the queue worker pools for each job stream (§4.8).
	QueueWorkflowRunConcurrency    int `yaml:"queue_workflow_run_concurrency"`
	QueueRefreshProjectConcurrency int `yaml:"queue_refresh_project_concurrency"`

	// PollInterval is how often idle queue workers check for due jobs.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultRunFetchConcurrency, DefaultArtifactFetchConcurrency are the hard
// caps named in SPEC_FULL §4.6/§4.7/§5.
const (
	DefaultRunFetchConcurrency      = 10
	DefaultArtifactFetchConcurrency = 3
)

// WithDefaults fills in zero-valued fields with the spec's defaults.
func (f File) WithDefaults() File {
	if f.RunFetchConcurrency == 0 {
		f.RunFetchConcurrency = DefaultRunFetchConcurrency
	}
	if f.ArtifactFetchConcurrency == 0 {
		f.ArtifactFetchConcurrency = DefaultArtifactFetchConcurrency
	}
	if f.QueueWorkflowRunConcurrency == 0 {
		f.QueueWorkflowRunConcurrency = DefaultRunFetchConcurrency
	}
	if f.QueueRefreshProjectConcurrency == 0 {
		f.QueueRefreshProjectConcurrency = 4
	}
	if f.PollInterval == 0 {
		f.PollInterval = time.Second
	}
	if f.DatabasePath == "" {
		f.DatabasePath = "reportcore.db"
	}
	return f
}

// LoadFile reads and parses path. A missing file is not an error — it
// yields a zero File with WithDefaults applied, matching the teacher's
// "return an empty config, not nil" convention for optional startup
// files. In both cases a non-empty REPORTCORE_FORGE_TOKEN overrides
// ForgeToken.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return File{ForgeToken: os.Getenv("REPORTCORE_FORGE_TOKEN")}.WithDefaults(), nil
	}
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if token := os.Getenv("REPORTCORE_FORGE_TOKEN"); token != "" {
		f.ForgeToken = token
	}
	return f.WithDefaults(), nil
}
