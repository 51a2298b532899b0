package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for common store conditions, mirroring the
// wrapDBError/ErrNotFound idiom this package is modeled on.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidKey    = errors.New("invalid unit key")
	ErrIndexMismatch = errors.New("unit index sequence is not dense")
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to ErrNotFound for consistent error handling across
// callers that only ever want to check errors.Is(err, store.ErrNotFound).
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return wrapDBError(fmt.Sprintf(format, args...), err)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
