package store

import (
	"context"
	"fmt"

	"github.com/decomp-dev/reportcore/internal/codec"
	"github.com/decomp-dev/reportcore/internal/report"
)

// MigrateStoredReports scans for reports whose data_version is behind
// report.CurrentFormatVersion and rewrites each in place: decode the
// header, stream-join the unit table to materialize full bodies, run
// report.Migrate, then re-persist header and units atomically. Each
// report is migrated in its own transaction, so a crash mid-pass leaves
// already-migrated reports untouched and simply resumes on restart.
//
// A report that fails to migrate is logged and left at its old version;
// the pass continues with the rest.
func (s *Store) MigrateStoredReports(ctx context.Context) error {
	type row struct {
		id            int64
		projectID     int64
		version       string
		commitSHA     string
		message       string
		timestampUnix int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, version, commit_sha, message, timestamp
		FROM reports WHERE data_version < ?`, report.CurrentFormatVersion)
	if err != nil {
		return wrapDBError("migrate stored reports: query", err)
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.projectID, &r.version, &r.commitSHA, &r.message, &r.timestampUnix); err != nil {
			rows.Close()
			return wrapDBError("migrate stored reports: scan", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return wrapDBError("migrate stored reports: query", err)
	}
	rows.Close()

	for _, r := range pending {
		if err := s.migrateOneStoredReport(ctx, r.id); err != nil {
			s.log.Error("migrate stored report failed, leaving at old version",
				"report_id", r.id, "project_id", r.projectID, "version", r.version,
				"commit", r.commitSHA, "error", err)
		}
	}
	return nil
}

func (s *Store) migrateOneStoredReport(ctx context.Context, reportID int64) error {
	var dataVersion int32
	var headerData []byte
	if err := s.db.QueryRowContext(ctx,
		`SELECT data_version, data FROM reports WHERE id = ?`, reportID,
	).Scan(&dataVersion, &headerData); err != nil {
		return wrapDBError("migrate stored report: load header", err)
	}
	if int(dataVersion) >= report.CurrentFormatVersion {
		return nil
	}

	rawHeader, err := codec.Decompress(headerData)
	if err != nil {
		return fmt.Errorf("decompress header: %w", err)
	}
	formatVersion, measures, categories, err := report.DecodeHeader(rawHeader)
	if err != nil {
		return fmt.Errorf("decode header: %w", err)
	}

	keys, err := s.loadUnitKeysForReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load unit keys: %w", err)
	}
	bodies, err := s.LoadBodies(ctx, keys)
	if err != nil {
		return fmt.Errorf("load unit bodies: %w", err)
	}

	full := &report.Report{FormatVersion: formatVersion, Measures: measures, Categories: categories}
	for _, k := range keys {
		u, ok := bodies[k]
		if !ok {
			s.log.Warn("migrate stored report: unit body missing, omitting", "report_id", reportID, "unit_key", k.String())
			continue
		}
		full.Units = append(full.Units, u)
	}

	migrated, err := report.Migrate(full)
	if err != nil {
		return fmt.Errorf("run migration: %w", err)
	}

	newHeaderData := codec.Compress(report.EncodeHeader(migrated.FormatVersion, migrated.Measures, migrated.Categories))
	newKeys := make([]report.UnitKey, len(migrated.Units))
	newBodyData := make([][]byte, len(migrated.Units))
	for i, u := range migrated.Units {
		newKeys[i] = report.Key(u)
		newBodyData[i] = codec.Compress(report.EncodeUnit(u))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("migrate stored report: begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE reports SET data_version = ?, data = ? WHERE id = ?`,
		migrated.FormatVersion, newHeaderData, reportID,
	); err != nil {
		return wrapDBError("migrate stored report: update header", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_report_units WHERE report_id = ?`, reportID); err != nil {
		return wrapDBError("migrate stored report: clear join rows", err)
	}
	if err := insertUnitsChunked(ctx, tx, migrated.Units, newKeys, newBodyData); err != nil {
		return err
	}
	if err := insertJoinRowsChunked(ctx, tx, reportID, newKeys); err != nil {
		return err
	}

	return wrapDBError("migrate stored report: commit", tx.Commit())
}
