package migrations

import (
	"context"
	"database/sql"
)

// migration002 adds the single-row bookkeeping table the orphan sweep uses
// to record when it last ran, so a restart doesn't immediately re-trigger
// a full sweep if the scheduler's own last-run memory was lost.
var migration002 = Migration{
	Version:     2,
	Description: "add sweep_state table",
	Apply: func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sweep_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_swept_at INTEGER NOT NULL DEFAULT 0,
			last_orphans_deleted INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO sweep_state (id, last_swept_at, last_orphans_deleted) VALUES (1, 0, 0)`)
		return err
	},
}
