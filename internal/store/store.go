// Package store is the content-addressed persistence layer: a SQLite
// database holding per-project report headers and a deduplicated pool of
// unit bodies, fronted by two in-memory caches.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/decomp-dev/reportcore/internal/store/migrations"
)

const driverName = "sqlite3"

// maxSQLiteParams is the SQLite bound-parameter limit (SQLITE_MAX_VARIABLE_NUMBER's
// conservative default). Batched statements chunk their row count to stay
// under it.
const maxSQLiteParams = 32766

// unitInsertChunkSize bounds how many report_units rows are inserted per
// statement: each row binds 3 params (id, name, data).
const unitInsertChunkSize = maxSQLiteParams / 3

// unitLookupChunkSize bounds how many ids go into a single "IN (...)"
// unit-body lookup.
const unitLookupChunkSize = maxSQLiteParams

// Store is the top-level handle. A Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	index  *indexCache
	bodies *bodyCache
	log    *slog.Logger
}

// Options configures Open.
type Options struct {
	// Log receives store diagnostics (cache evictions, sweep results). If
	// nil, slog.Default() is used.
	Log *slog.Logger

	// ReadOnly opens the database in read-only mode, for the query-side
	// deployments described in the data model's read/write split.
	ReadOnly bool
}

// Open opens (creating if absent) the SQLite database at path and applies
// any pending schema migrations. path is passed through sqliteConnString,
// so a bare filesystem path and a "file:" URI are both accepted.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	dsn := sqliteConnString(path, opts.ReadOnly)
	if dsn == "" {
		return nil, fmt.Errorf("store: open: empty database path")
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY from this process's
	// own goroutines contending with each other; busy_timeout (see
	// dsn.go) covers contention with other processes.
	if !opts.ReadOnly {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open %s: ping: %w", path, err)
	}

	if !opts.ReadOnly {
		if err := applySchema(db); err != nil {
			db.Close()
			return nil, err
		}
		if err := migrations.Run(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: open %s: %w", path, err)
		}
	}

	s := &Store{
		db:     db,
		index:  newIndexCache(log),
		bodies: newBodyCache(log),
		log:    log,
	}

	if !opts.ReadOnly {
		if err := s.MigrateStoredReports(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: open %s: %w", path, err)
		}
		if n, err := s.FixUpNullUnitNames(ctx); err != nil {
			log.Warn("fix up null unit names failed", "error", err)
		} else if n > 0 {
			log.Info("fixed up historical null unit names", "count", n)
		}
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers (the config and queue
// packages) that keep their tables in the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

var _ io.Closer = (*Store)(nil)
