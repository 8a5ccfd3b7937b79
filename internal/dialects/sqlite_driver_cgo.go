//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
package dialects

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

const sqliteDriverName = "sqlite3"

func sqliteErrorCode(err error) (int, bool) {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return int(sqliteErr.ExtendedCode), true
	}
	return 0, false
}
