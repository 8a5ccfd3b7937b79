package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"time"

	"github.com/coregx/dbal/internal/cache"
	"github.com/coregx/dbal/internal/querybuilder"
	"github.com/coregx/dbal/internal/tracer"
)

// resultCacheVersion stamps cached query results.
const resultCacheVersion = 1

// Row is one result row keyed by column name. Text values are strings.
type Row map[string]any

// Command is a SQL statement with named parameters bound to a Connection.
// Statements use :name placeholders, rewritten to the dialect's positional
// form when run. Builder shortcuts record their error in the command; it is
// returned by the next Execute or Query call.
type Command struct {
	conn          *Connection
	sql           string
	params        querybuilder.Params
	cacheDuration *time.Duration
	cacheTags     []string
	refreshTable  string
	err           error
}

// CreateCommand creates a command for sql. {{%table}} and [[column]] tokens
// are expanded.
func (c *Connection) CreateCommand(sql string, params querybuilder.Params) *Command {
	cmd := &Command{conn: c, params: querybuilder.Params{}}
	cmd.SetSQL(sql)
	cmd.BindValues(params)
	return cmd
}

// SQL returns the statement with named placeholders.
func (cmd *Command) SQL() string { return cmd.sql }

// Params returns the bound parameters.
func (cmd *Command) Params() querybuilder.Params { return cmd.params }

// Err returns the error recorded by a builder shortcut.
func (cmd *Command) Err() error { return cmd.err }

// SetSQL replaces the statement, expanding table and column tokens. Bound
// parameters are kept.
func (cmd *Command) SetSQL(sql string) *Command {
	if sql != "" {
		sql = cmd.conn.QuoteSQL(sql)
	}
	return cmd.SetRawSQL(sql)
}

// SetRawSQL replaces the statement without expanding tokens.
func (cmd *Command) SetRawSQL(sql string) *Command {
	cmd.sql = sql
	cmd.refreshTable = ""
	cmd.err = nil
	return cmd
}

// BindValue binds value to the placeholder name. The leading colon is optional.
func (cmd *Command) BindValue(name string, value any) *Command {
	if !strings.HasPrefix(name, ":") {
		name = ":" + name
	}
	cmd.params[name] = value
	return cmd
}

// BindValues binds every entry of params.
func (cmd *Command) BindValues(params querybuilder.Params) *Command {
	for name, v := range params {
		cmd.BindValue(name, v)
	}
	return cmd
}

// Cache enables result caching for this command. DefaultCacheDuration uses
// Config.QueryCacheDuration.
func (cmd *Command) Cache(duration time.Duration, tags ...string) *Command {
	if duration < 0 {
		duration = cmd.conn.cfg.QueryCacheDuration
	}
	cmd.cacheDuration = &duration
	cmd.cacheTags = tags
	return cmd
}

// NoCache disables result caching for this command, even inside Cache scopes.
func (cmd *Command) NoCache() *Command {
	d := time.Duration(-1)
	cmd.cacheDuration = &d
	return cmd
}

// RawSQL returns the statement with parameters inlined as literals. The
// result is meant for logs and error messages, not for execution.
func (cmd *Command) RawSQL() string {
	return rawSQL(cmd.sql, cmd.params, cmd.conn.Quoter(), cmd.conn.dialect.BackslashEscapes())
}

func (cmd *Command) bind() (string, []any, error) {
	return bindNamed(cmd.sql, cmd.params, cmd.conn.dialect.BackslashEscapes(), cmd.conn.dialect.Placeholder)
}

// Exec runs a statement that returns no rows on the master or the active
// transaction. An empty statement succeeds without touching the database.
func (cmd *Command) Exec(ctx context.Context) (sql.Result, error) {
	if cmd.err != nil {
		return nil, cmd.err
	}
	if cmd.sql == "" {
		return driver.RowsAffected(0), nil
	}
	query, args, err := cmd.bind()
	if err != nil {
		return nil, err
	}
	target, tx, err := cmd.conn.route(ctx, false)
	if err != nil {
		return nil, err
	}

	ctx, span := cmd.conn.opts.tracer.StartSpan(ctx, "dbal.command.execute")
	defer span.End()
	start := time.Now()

	var result sql.Result
	stmt, owned, err := target.prepare(ctx, tx, query, cmd.refreshTable == "")
	if err == nil {
		if owned {
			defer func() { _ = stmt.Close() }()
		}
		result, err = stmt.ExecContext(ctx, args...)
	}

	var affected int64
	if err == nil {
		affected, _ = result.RowsAffected()
	}
	if err = cmd.finish(ctx, span, query, args, start, affected, err); err != nil {
		return nil, err
	}

	if cmd.refreshTable != "" {
		if err := cmd.conn.Schema().RefreshTableSchema(ctx, cmd.refreshTable); err != nil {
			cmd.conn.log.Warn("failed to refresh table schema", "table", cmd.refreshTable, "error", err)
		}
	}
	return result, nil
}

// Execute runs a statement that returns no rows and reports the number of
// affected rows.
func (cmd *Command) Execute(ctx context.Context) (int64, error) {
	result, err := cmd.Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Query runs the statement and returns the open rows. Results of Query are
// never cached.
func (cmd *Command) Query(ctx context.Context) (*sql.Rows, error) {
	if cmd.err != nil {
		return nil, cmd.err
	}
	query, args, err := cmd.bind()
	if err != nil {
		return nil, err
	}
	target, tx, err := cmd.conn.route(ctx, true)
	if err != nil {
		return nil, err
	}

	ctx, span := cmd.conn.opts.tracer.StartSpan(ctx, "dbal.command.query")
	defer span.End()
	start := time.Now()

	var rows *sql.Rows
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = target.DB().QueryContext(ctx, query, args...)
	}
	if err = cmd.finish(ctx, span, query, args, start, 0, err); err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryAll returns every row of the result.
func (cmd *Command) QueryAll(ctx context.Context) ([]Row, error) {
	return fetch(ctx, cmd, "queryAll", scanAll)
}

// QueryOne returns the first row of the result, or ErrNoRows.
func (cmd *Command) QueryOne(ctx context.Context) (Row, error) {
	row, err := fetch(ctx, cmd, "queryOne", scanOne)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNoRows
	}
	return row, nil
}

// QueryScalar returns the first column of the first row, or ErrNoRows.
func (cmd *Command) QueryScalar(ctx context.Context) (any, error) {
	values, err := fetch(ctx, cmd, "queryScalar", scanFirstValues)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrNoRows
	}
	return values[0], nil
}

// QueryColumn returns the first column of every row.
func (cmd *Command) QueryColumn(ctx context.Context) ([]any, error) {
	return fetch(ctx, cmd, "queryColumn", scanColumn)
}

// fetch runs a read command through scan, serving and storing the result in
// the query cache when a cache scope or the command allows it.
func fetch[T any](ctx context.Context, cmd *Command, method string, scan func(*sql.Rows) (T, error)) (T, error) {
	var zero T
	if cmd.err != nil {
		return zero, cmd.err
	}
	conn := cmd.conn

	info, cached := conn.QueryCacheInfo(cmd.cacheDuration, cmd.cacheTags)
	var key cache.Key
	if cached {
		raw := cmd.RawSQL()
		key = cache.Key{"dbal.command", method, conn.cfg.DSN, conn.cfg.Username, raw}
		var v T
		if cache.Load(ctx, info.Cache, key, resultCacheVersion, &v) {
			conn.log.Debug("query result served from cache", "sql", raw)
			conn.invokeHook(ctx, QueryEvent{RawSQL: raw, Operation: tracer.DetectOperation(cmd.sql), Cached: true})
			return v, nil
		}
	}

	query, args, err := cmd.bind()
	if err != nil {
		return zero, err
	}
	target, tx, err := conn.route(ctx, true)
	if err != nil {
		return zero, err
	}

	ctx, span := conn.opts.tracer.StartSpan(ctx, "dbal.command.query")
	defer span.End()
	start := time.Now()

	v, err := func() (T, error) {
		stmt, owned, err := target.prepare(ctx, tx, query, true)
		if err != nil {
			return zero, err
		}
		if owned {
			defer func() { _ = stmt.Close() }()
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return zero, err
		}
		defer func() { _ = rows.Close() }()
		v, err := scan(rows)
		if err == nil {
			err = rows.Err()
		}
		return v, err
	}()
	if err = cmd.finish(ctx, span, query, args, start, 0, err); err != nil {
		return zero, err
	}

	if cached {
		if err := cache.Store(ctx, info.Cache, key, resultCacheVersion, v, info.Duration, info.Tags...); err != nil {
			conn.log.Warn("failed to cache query result", "error", err)
		}
	}
	return v, nil
}

// finish classifies err and reports the command to the logger, the span and
// the query hook.
func (cmd *Command) finish(ctx context.Context, span tracer.Span, query string, args []any, start time.Time, affected int64, err error) error {
	elapsed := time.Since(start)
	conn := cmd.conn
	raw := cmd.RawSQL()
	if err != nil {
		err = conn.convertError(err, raw)
	}

	params := conn.opts.sanitizer.FormatParams(conn.opts.sanitizer.MaskParams(cmd.sql, cmd.params))
	if err != nil {
		conn.log.Error("query execution failed",
			"sql", cmd.sql,
			"params", params,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
	} else {
		conn.log.Info("query executed",
			"sql", cmd.sql,
			"params", params,
			"duration_ms", elapsed.Milliseconds(),
			"rows_affected", affected,
		)
	}

	operation := tracer.DetectOperation(query)
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:          query,
		Args:         args,
		Duration:     elapsed,
		RowsAffected: affected,
		Error:        err,
		Database:     conn.dialect.Name(),
		Operation:    operation,
		ConnectionID: conn.id,
	})
	conn.invokeHook(ctx, QueryEvent{
		SQL:          query,
		RawSQL:       raw,
		Args:         args,
		Duration:     elapsed,
		RowsAffected: affected,
		Error:        err,
		Operation:    operation,
	})
	return err
}
