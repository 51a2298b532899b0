// Package migrations holds the store's additive schema migrations, one
// file per migration, numbered in application order. The base schema (see
// the store package's schema.go) is never edited once shipped — every
// change after day one lands here instead.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward-only schema change.
type Migration struct {
	Version     int
	Description string
	Apply       func(ctx context.Context, tx *sql.Tx) error
}

// All is the ordered list of migrations. Append, never reorder or edit an
// existing entry once it has shipped.
var All = []Migration{
	migration001,
	migration002,
}

// Run creates the schema_migrations tracking table if absent, then applies
// every migration in All whose version has not yet been recorded, each in
// its own transaction.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("migrations: create tracking table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("migrations: list applied: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("migrations: scan applied version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("migrations: list applied: %w", err)
	}
	rows.Close()

	for _, m := range All {
		if applied[m.Version] {
			continue
		}
		if err := applyOne(ctx, db, m); err != nil {
			return fmt.Errorf("migrations: apply %03d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.Apply(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
		m.Version, m.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}
