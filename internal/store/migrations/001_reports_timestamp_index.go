package migrations

import (
	"context"
	"database/sql"
)

// migration001 adds the index the periodic sweep and the "latest report
// per project" query rely on; the base schema didn't need it until the
// sweep's range scan was added.
var migration001 = Migration{
	Version:     1,
	Description: "add reports(project_id, timestamp) index",
	Apply: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`CREATE INDEX IF NOT EXISTS idx_reports_project_timestamp ON reports(project_id, timestamp)`)
		return err
	},
}
