package core

import (
	"context"
	"time"
)

// QueryEvent describes one executed command.
// It is passed to QueryHook callbacks for logging, metrics, or tracing.
type QueryEvent struct {
	// SQL is the statement as sent to the driver, with positional placeholders.
	SQL string
	// RawSQL is the statement with parameters inlined, for diagnostics only.
	RawSQL string
	Args   []any
	// Duration is how long the query took to execute
	Duration time.Duration
	// RowsAffected is the number of rows affected by Execute, 0 for queries.
	RowsAffected int64
	// Error is the classified error, nil on success.
	Error error
	// Operation is the SQL operation type (SELECT, INSERT, UPDATE, DELETE, UNKNOWN)
	Operation string
	// Cached reports that the result was served from the query cache.
	Cached bool
	// ConnectionID identifies the Connection that ran the command.
	ConnectionID string
}

// QueryHook is a callback invoked after each command.
//
// Example:
//
//	conn, _ := dbal.New(cfg,
//	    dbal.WithQueryHook(func(ctx context.Context, e dbal.QueryEvent) {
//	        slog.Info("query", "sql", e.RawSQL, "duration", e.Duration, "err", e.Error)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

func (c *Connection) invokeHook(ctx context.Context, event QueryEvent) {
	if c.opts.queryHook != nil {
		event.ConnectionID = c.id
		c.opts.queryHook(ctx, event)
	}
}
