package store

import (
	"context"
	"time"

	"github.com/decomp-dev/reportcore/internal/codec"
	"github.com/decomp-dev/reportcore/internal/report"
)

// FixUpNullUnitNames backfills report_units.name for historical rows that
// predate the column being populated on write. The read path never relies
// on this running first — GetReport/LoadBodies always fall back to the
// decoded body's own Name — but a populated column lets simple SQL queries
// (search, admin tooling) work without decoding every body.
func (s *Store) FixUpNullUnitNames(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM report_units WHERE name IS NULL OR name = ''`)
	if err != nil {
		return 0, wrapDBError("fix up null unit names: query", err)
	}

	type fix struct {
		id   string
		name string
	}
	var fixes []fix
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return 0, wrapDBError("fix up null unit names: scan", err)
		}
		raw, err := codec.Decompress(data)
		if err != nil {
			s.log.Warn("fix up null unit names: skipping undecodable body", "unit_id", id, "error", err)
			continue
		}
		u, err := report.DecodeUnit(raw)
		if err != nil {
			s.log.Warn("fix up null unit names: skipping undecodable body", "unit_id", id, "error", err)
			continue
		}
		if u.Name == "" {
			continue
		}
		fixes = append(fixes, fix{id: id, name: u.Name})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, wrapDBError("fix up null unit names: query", err)
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapDBError("fix up null unit names: begin tx", err)
	}
	defer tx.Rollback()

	for _, f := range fixes {
		if _, err := tx.ExecContext(ctx, `UPDATE report_units SET name = ? WHERE id = ?`, f.name, f.id); err != nil {
			return 0, wrapDBError("fix up null unit names: update", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, wrapDBError("fix up null unit names: commit", err)
	}
	return len(fixes), nil
}

// SweepOrphans removes rows left behind after a project or report is
// deleted directly (bypassing ON DELETE CASCADE, which this schema
// deliberately does not declare — see DESIGN.md): reports whose project
// is gone, join rows whose report is gone, and unit bodies no longer
// referenced by any join row. Runs as a single transaction with foreign
// key enforcement disabled, since the deletions are performed in an order
// that would otherwise violate the reports→projects and
// report_report_units→reports/report_units constraints mid-pass.
func (s *Store) SweepOrphans(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return 0, wrapDBError("sweep orphans: disable foreign keys", err)
	}
	defer s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapDBError("sweep orphans: begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM reports WHERE project_id NOT IN (SELECT id FROM projects)`); err != nil {
		return 0, wrapDBError("sweep orphans: delete orphan reports", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM report_report_units WHERE report_id NOT IN (SELECT id FROM reports)`); err != nil {
		return 0, wrapDBError("sweep orphans: delete orphan join rows", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM report_units WHERE id NOT IN (SELECT DISTINCT report_unit_id FROM report_report_units)`)
	if err != nil {
		return 0, wrapDBError("sweep orphans: delete orphan units", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("sweep orphans: rows affected", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sweep_state SET last_swept_at = ?, last_orphans_deleted = ? WHERE id = 1`,
		time.Now().Unix(), deleted,
	); err != nil {
		return 0, wrapDBError("sweep orphans: update sweep_state", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapDBError("sweep orphans: commit", err)
	}

	s.log.Info("orphan sweep complete", "units_deleted", deleted)
	return int(deleted), nil
}
