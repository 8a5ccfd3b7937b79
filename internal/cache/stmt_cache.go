package cache

import "database/sql"

const (
	// DefaultStmtCacheCapacity is the default maximum number of cached prepared statements.
	DefaultStmtCacheCapacity = 1000
)

// StmtCache stores prepared statements keyed by SQL text. Statements that leave
// the cache are closed.
type StmtCache struct {
	*LRU[string, *sql.Stmt]
}

// NewStmtCache creates a new prepared statement cache with default capacity.
func NewStmtCache() *StmtCache {
	return NewStmtCacheWithCapacity(DefaultStmtCacheCapacity)
}

// NewStmtCacheWithCapacity creates a new prepared statement cache with specified capacity.
func NewStmtCacheWithCapacity(capacity int) *StmtCache {
	return &StmtCache{
		LRU: NewLRU(capacity, func(_ string, stmt *sql.Stmt) {
			_ = stmt.Close() // Best effort close.
		}),
	}
}
