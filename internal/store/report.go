package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/decomp-dev/reportcore/internal/codec"
	"github.com/decomp-dev/reportcore/internal/report"
)

// UpsertProject ensures a project row exists for the given externally
// assigned id (the forge's own repository id) and returns it unchanged.
// id is the stable key; owner/repo may change across calls — that's how a
// forge-reported rename is applied (see RenameProject for the explicit
// form used outside the ingest write path).
func (s *Store) UpsertProject(ctx context.Context, id int64, owner, repo string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner, repo) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, repo = excluded.repo`,
		id, owner, repo)
	if err != nil {
		return 0, wrapDBErrorf(err, "upsert project %d (%s/%s)", id, owner, repo)
	}
	return id, nil
}

// InsertReport migrates r to the current format, stores its header and
// deduplicated unit bodies, and returns the assigned report id. projectID
// is the project's externally assigned (forge) id; owner/repo are passed
// alongside it only to key the index cache and to upsert the projects row
// (inserting it for a new id, or overwriting owner/repo on an existing
// one). Re-inserting the same
// (project, version, commit) overwrites that report's header and unit
// links; bodies already present in report_units are left alone (they may
// still be referenced by other reports).
func (s *Store) InsertReport(ctx context.Context, projectID int64, owner, repo, version, commitSHA, message string, timestampUnix int64, r *report.Report) (int64, error) {
	migrated, err := report.Migrate(r)
	if err != nil {
		return 0, fmt.Errorf("store: insert report: %w", err)
	}

	projectID, err = s.UpsertProject(ctx, projectID, owner, repo)
	if err != nil {
		return 0, err
	}

	headerData := codec.Compress(report.EncodeHeader(migrated.FormatVersion, migrated.Measures, migrated.Categories))

	keys := make([]report.UnitKey, len(migrated.Units))
	bodyData := make([][]byte, len(migrated.Units))
	for i, u := range migrated.Units {
		keys[i] = report.Key(u)
		bodyData[i] = codec.Compress(report.EncodeUnit(u))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapDBError("insert report: begin tx", err)
	}
	defer tx.Rollback()

	var reportID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO reports (project_id, version, commit_sha, message, timestamp, data_version, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, version, commit_sha) DO UPDATE SET
			message = excluded.message,
			timestamp = excluded.timestamp,
			data_version = excluded.data_version,
			data = excluded.data
		RETURNING id`,
		projectID, version, commitSHA, message, timestampUnix, migrated.FormatVersion, headerData,
	).Scan(&reportID)
	if err != nil {
		return 0, wrapDBError("insert report: upsert reports row", err)
	}

	if err := insertUnitsChunked(ctx, tx, migrated.Units, keys, bodyData); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM report_report_units WHERE report_id = ?`, reportID); err != nil {
		return 0, wrapDBError("insert report: clear join rows", err)
	}
	if err := insertJoinRowsChunked(ctx, tx, reportID, keys); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapDBError("insert report: commit", err)
	}

	s.index.put(owner, repo, commitSHA, version, &Header{
		ReportID:      reportID,
		ProjectID:     projectID,
		Version:       version,
		Commit:        commitSHA,
		Message:       message,
		TimestampUnix: timestampUnix,
		FormatVersion: migrated.FormatVersion,
		Measures:      migrated.Measures,
		Categories:    migrated.Categories,
		UnitKeys:      keys,
	})
	for i, u := range migrated.Units {
		s.bodies.put(keys[i], u, int64(len(bodyData[i])))
	}

	return reportID, nil
}

// insertUnitsChunked inserts any not-yet-present report_units rows, batched
// to stay under the SQLite bound-parameter limit. Rows are immutable and
// content-addressed, so a conflict on id means the body is already stored
// and the incoming row is simply skipped.
func insertUnitsChunked(ctx context.Context, tx *sql.Tx, units []*report.ReportUnit, keys []report.UnitKey, bodyData [][]byte) error {
	for start := 0; start < len(units); start += unitInsertChunkSize {
		end := start + unitInsertChunkSize
		if end > len(units) {
			end = len(units)
		}

		var sb strings.Builder
		sb.WriteString(`INSERT INTO report_units (id, name, data) VALUES `)
		args := make([]any, 0, (end-start)*3)
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?)")
			args = append(args, keys[i].String(), units[i].Name, bodyData[i])
		}
		sb.WriteString(` ON CONFLICT(id) DO NOTHING`)

		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return wrapDBError("insert report: insert unit chunk", err)
		}
	}
	return nil
}

// insertJoinRowsChunked records the report's unit ordering, the dense
// unit_index sequence InsertReport expects back unchanged on read.
func insertJoinRowsChunked(ctx context.Context, tx *sql.Tx, reportID int64, keys []report.UnitKey) error {
	for start := 0; start < len(keys); start += unitInsertChunkSize {
		end := start + unitInsertChunkSize
		if end > len(keys) {
			end = len(keys)
		}

		var sb strings.Builder
		sb.WriteString(`INSERT INTO report_report_units (report_id, report_unit_id, unit_index) VALUES `)
		args := make([]any, 0, (end-start)*3)
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?)")
			args = append(args, reportID, keys[i].String(), i)
		}

		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return wrapDBError("insert report: insert join chunk", err)
		}
	}
	return nil
}

// GetReport returns the header for the (owner, repo, commit, version)
// report, without loading unit bodies. Callers that need bodies pass
// Header.UnitKeys to LoadBodies.
func (s *Store) GetReport(ctx context.Context, owner, repo, commitSHA, version string) (*Header, error) {
	if h, ok := s.index.get(owner, repo, commitSHA, version); ok {
		return h, nil
	}

	var (
		reportID, projectID, timestampUnix int64
		formatVersion                      int32
		message                            sql.NullString
		headerData                         []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.project_id, r.message, r.timestamp, r.data_version, r.data
		FROM reports r
		JOIN projects p ON p.id = r.project_id
		WHERE p.owner = ? AND p.repo = ? AND r.commit_sha = ? AND r.version = ?`,
		owner, repo, commitSHA, version,
	).Scan(&reportID, &projectID, &message, &timestampUnix, &formatVersion, &headerData)
	if err != nil {
		return nil, wrapDBErrorf(err, "get report %s/%s@%s (%s)", owner, repo, commitSHA, version)
	}

	keys, err := s.loadUnitKeysForReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	raw, err := codec.Decompress(headerData)
	if err != nil {
		return nil, fmt.Errorf("store: get report: decompress header: %w", err)
	}
	_, measures, categories, err := report.DecodeHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("store: get report: decode header: %w", err)
	}

	h := &Header{
		ReportID:      reportID,
		ProjectID:     projectID,
		Version:       version,
		Commit:        commitSHA,
		Message:       message.String,
		TimestampUnix: timestampUnix,
		FormatVersion: formatVersion,
		Measures:      measures,
		Categories:    categories,
		UnitKeys:      keys,
	}
	s.index.put(owner, repo, commitSHA, version, h)
	return h, nil
}

// ReportVersionsForCommit returns every version an already-stored report
// exists for at the given commit — the "base_versions" set ProcessWorkflowRunJob
// handling collects from the project's current head commit (SPEC_FULL §4.6).
func (s *Store) ReportVersionsForCommit(ctx context.Context, projectID int64, commitSHA string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version FROM reports WHERE project_id = ? AND commit_sha = ?`, projectID, commitSHA)
	if err != nil {
		return nil, wrapDBError("report versions for commit", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, wrapDBError("report versions for commit: scan", err)
		}
		versions = append(versions, v)
	}
	return versions, wrapDBError("report versions for commit", rows.Err())
}

// HasReport reports whether a (project, commit) pair already has at
// least one stored report, the dedup check the refresh loop uses to skip
// runs it has already ingested (SPEC_FULL §4.6 step 5).
func (s *Store) HasReport(ctx context.Context, projectID int64, commitSHA string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM reports WHERE project_id = ? AND commit_sha = ?`, projectID, commitSHA,
	).Scan(&n)
	if err != nil {
		return false, wrapDBError("has report", err)
	}
	return n > 0, nil
}

// loadUnitKeysForReport streams the join table in unit_index order and
// verifies the sequence is dense and zero-based, per the store's unit
// index invariant — a gap or duplicate means the write path (or a direct
// SQL edit) left the join rows inconsistent, and the caller must not
// silently load a misordered unit vector.
func (s *Store) loadUnitKeysForReport(ctx context.Context, reportID int64) ([]report.UnitKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_unit_id, unit_index FROM report_report_units
		WHERE report_id = ? ORDER BY unit_index ASC`, reportID)
	if err != nil {
		return nil, wrapDBError("load unit keys", err)
	}
	defer rows.Close()

	var keys []report.UnitKey
	for rows.Next() {
		var idHex string
		var index int
		if err := rows.Scan(&idHex, &index); err != nil {
			return nil, wrapDBError("load unit keys: scan", err)
		}
		if index != len(keys) {
			return nil, fmt.Errorf("store: load unit keys: report %d: %w (expected index %d, got %d)",
				reportID, ErrIndexMismatch, len(keys), index)
		}
		k, err := report.ParseUnitKey(idHex)
		if err != nil {
			return nil, fmt.Errorf("store: load unit keys: %w: %s", ErrInvalidKey, idHex)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("load unit keys", err)
	}
	return keys, nil
}

// LoadBodies resolves keys to their decoded unit bodies, serving from the
// body cache where possible and chunking any remaining lookup to stay
// under the SQLite bound-parameter limit. The returned map may be shorter
// than keys if a unit id was not found in the store.
func (s *Store) LoadBodies(ctx context.Context, keys []report.UnitKey) (map[report.UnitKey]*report.ReportUnit, error) {
	out := make(map[report.UnitKey]*report.ReportUnit, len(keys))

	var missing []report.UnitKey
	for _, k := range keys {
		if u, ok := s.bodies.get(k); ok {
			out[k] = u
			continue
		}
		missing = append(missing, k)
	}

	for start := 0; start < len(missing); start += unitLookupChunkSize {
		end := start + unitLookupChunkSize
		if end > len(missing) {
			end = len(missing)
		}
		if err := s.loadBodyChunk(ctx, missing[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadBodyChunk(ctx context.Context, keys []report.UnitKey, out map[report.UnitKey]*report.ReportUnit) error {
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = k.String()
	}

	query := fmt.Sprintf(`SELECT id, data FROM report_units WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return wrapDBError("load bodies", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idHex string
		var data []byte
		if err := rows.Scan(&idHex, &data); err != nil {
			return wrapDBError("load bodies: scan", err)
		}
		k, err := report.ParseUnitKey(idHex)
		if err != nil {
			return fmt.Errorf("store: load bodies: %w: %s", ErrInvalidKey, idHex)
		}
		raw, err := codec.Decompress(data)
		if err != nil {
			return fmt.Errorf("store: load bodies: decompress %s: %w", idHex, err)
		}
		u, err := report.DecodeUnit(raw)
		if err != nil {
			return fmt.Errorf("store: load bodies: decode %s: %w", idHex, err)
		}
		out[k] = u
		s.bodies.put(k, u, int64(len(data)))
	}
	return wrapDBError("load bodies", rows.Err())
}
