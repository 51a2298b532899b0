package store

import "database/sql"

// schemaStatements creates the base schema. Migrations (see migrations.go)
// only ever ADD to this; the base schema is never edited once shipped.
//
// frogress_mappings (a historical table from an earlier report format) and
// images (owned by an external image-rendering collaborator, per spec §1)
// are part of the persisted database described in §6 but are never read or
// written by this core — no migration here creates them.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY,
		owner TEXT NOT NULL COLLATE NOCASE,
		repo TEXT NOT NULL COLLATE NOCASE,
		display_name TEXT,
		short_name TEXT,
		default_category_id TEXT,
		default_version TEXT,
		platform TEXT,
		workflow_id INTEGER,
		pr_comment_mode TEXT NOT NULL DEFAULT 'description',
		head_commit_sha TEXT COLLATE NOCASE,
		head_commit_fetched_at INTEGER,
		disabled INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_owner_repo ON projects(owner, repo)`,

	`CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		version TEXT NOT NULL COLLATE NOCASE,
		commit_sha TEXT NOT NULL COLLATE NOCASE,
		message TEXT,
		timestamp INTEGER NOT NULL,
		data_version INTEGER NOT NULL,
		data BLOB NOT NULL,
		UNIQUE(project_id, version, commit_sha)
	)`,

	`CREATE TABLE IF NOT EXISTS report_units (
		id TEXT PRIMARY KEY,
		name TEXT,
		data BLOB NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS report_report_units (
		report_id INTEGER NOT NULL REFERENCES reports(id),
		report_unit_id TEXT NOT NULL REFERENCES report_units(id),
		unit_index INTEGER NOT NULL,
		PRIMARY KEY (report_id, unit_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_report_report_units_unit ON report_report_units(report_unit_id)`,

	`CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func applySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return wrapDBErrorf(err, "apply schema statement %q", stmt)
		}
	}
	return nil
}
