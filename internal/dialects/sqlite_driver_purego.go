//go:build !cgo_sqlite

package dialects

import (
	"errors"

	"modernc.org/sqlite"
)

// Pure-Go SQLite driver (modernc.org/sqlite), used unless the cgo_sqlite tag is set.
const sqliteDriverName = "sqlite"

func sqliteErrorCode(err error) (int, bool) {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code(), true
	}
	return 0, false
}
