package store

import (
	"context"
)

// GetConfig reads a single ambient runtime setting (e.g. a forge
// installation token cache entry, a feature flag) from the config table.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", wrapDBErrorf(err, "get config %q", key)
	}
	return value, nil
}

// SetConfig upserts a single setting.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return wrapDBErrorf(err, "set config %q", key)
	}
	return nil
}

// DeleteConfig removes a setting, if present. Deleting an absent key is
// not an error.
func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	if err != nil {
		return wrapDBErrorf(err, "delete config %q", key)
	}
	return nil
}

// AllConfig returns every stored setting, for diagnostics and for the
// config package's SQLite-backed override layer to seed its in-memory
// view at startup.
func (s *Store) AllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, wrapDBError("list config", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, wrapDBError("list config: scan", err)
		}
		out[k] = v
	}
	return out, wrapDBError("list config", rows.Err())
}
