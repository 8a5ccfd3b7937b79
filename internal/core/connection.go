// Package core provides connection management for dbal: opening handles with
// master/slave failover, nested transactions, query-cache scopes and the
// Command type that binds and runs SQL produced by the query builder.
package core

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/coregx/dbal/internal/cache"
	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/dialects"
	"github.com/coregx/dbal/internal/logger"
	"github.com/coregx/dbal/internal/querybuilder"
	"github.com/coregx/dbal/internal/quoter"
	"github.com/coregx/dbal/internal/schema"
	"github.com/coregx/dbal/internal/tracer"
)

// Connection owns at most one database handle, selected directly from its DSN
// or through failover over a master pool. A Connection serves one logical unit
// of work; its state is guarded by a mutex but commands on one Connection are
// not meant to interleave.
type Connection struct {
	id         string
	cfg        Config
	opts       *options
	dialect    dialects.Dialect
	dsn        string
	classifier *dberr.Classifier
	log        logger.Logger

	mu          sync.Mutex
	db          *sql.DB
	ownsHandle  bool
	stmtCache   *cache.StmtCache
	health      *healthChecker
	master      *Connection
	masterSet   bool
	slave       *Connection
	slaveSet    bool
	forceMaster int
	transaction *Transaction
	scopes      []cacheScope
	schema      *schema.Schema
	builder     *querybuilder.QueryBuilder
}

// New creates a closed Connection. The dialect is selected by the DSN prefix,
// or by the first master's DSN when only a master pool is configured.
func New(cfg Config, opts ...Option) (*Connection, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newConnection(cfg, o)
}

func newConnection(cfg Config, o *options) (*Connection, error) {
	dsn := cfg.DSN
	if dsn == "" && len(cfg.Masters) > 0 {
		dsn = cfg.Masters[0].merge(cfg.MasterConfig).DSN
	}
	if dsn == "" {
		return nil, dberr.Configuration("connection DSN cannot be empty")
	}
	d, rest, err := dialects.ParseDSN(dsn)
	if err != nil {
		return nil, dberr.Configuration("%v", err)
	}
	if cfg.DSN == "" {
		rest = ""
	}

	id := uuid.NewString()
	return &Connection{
		id:         id,
		cfg:        cfg,
		opts:       o,
		dialect:    d,
		dsn:        rest,
		classifier: dberr.NewClassifier(cfg.ErrorCategories),
		log:        logger.With(o.logger, "connection", id),
		stmtCache:  newStmtCache(cfg.StmtCacheCapacity),
	}, nil
}

func newStmtCache(capacity int) *cache.StmtCache {
	switch {
	case capacity < 0:
		return nil
	case capacity == 0:
		return cache.NewStmtCache()
	}
	return cache.NewStmtCacheWithCapacity(capacity)
}

// ID returns the instance id used in logs and traces.
func (c *Connection) ID() string { return c.id }

// Config returns the configuration of the connection.
func (c *Connection) Config() Config { return c.cfg }

// Dialect returns the dialect selected by the DSN.
func (c *Connection) Dialect() dialects.Dialect { return c.dialect }

// DriverName returns the dialect name, e.g. "pgsql".
func (c *Connection) DriverName() string { return c.dialect.Name() }

// IsActive reports whether a handle is open.
func (c *Connection) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// DB returns the open handle, or nil when the connection is closed.
func (c *Connection) DB() *sql.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

// Open establishes the handle. It is a no-op when already open. With masters
// configured the handle is taken from the first available master.
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked(ctx)
}

func (c *Connection) openLocked(ctx context.Context) error {
	if c.db != nil {
		return nil
	}
	if c.opts.db != nil {
		c.db = c.opts.db
		c.ownsHandle = false
		return nil
	}

	if len(c.cfg.Masters) > 0 {
		m, err := c.masterLocked(ctx)
		if err != nil {
			return err
		}
		if m == nil {
			return dberr.Configuration("none of the master DB servers is available")
		}
		c.db = m.DB()
		c.ownsHandle = false
		return nil
	}
	if c.cfg.DSN == "" {
		return dberr.Configuration("connection DSN cannot be empty")
	}

	ctx, span := c.opts.tracer.StartSpan(ctx, "dbal.connection.open")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", c.dialect.Name()),
		attribute.String("dbal.connection.id", c.id),
	)

	db, err := c.connect(ctx)
	tracer.SetStatus(span, err)
	if err != nil {
		return err
	}

	c.db = db
	c.ownsHandle = true
	if c.cfg.HealthCheckInterval > 0 {
		c.health = newHealthChecker(db, c.log, c.cfg.HealthCheckInterval)
		c.health.start()
	}
	return nil
}

// connect creates, pings and initializes a handle for the configured DSN.
func (c *Connection) connect(ctx context.Context) (*sql.DB, error) {
	dsn, err := c.dialect.ConfigureDSN(c.dsn, dialects.DSNOptions{
		Username: c.cfg.Username,
		Password: c.cfg.Password,
		Charset:  c.cfg.Charset,
	})
	if err != nil {
		return nil, dberr.Configuration("invalid DSN %q: %v", c.cfg.DSN, err)
	}

	attemptCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	c.log.Info("opening DB connection", "dsn", c.cfg.DSN)
	db, err := c.opts.open(attemptCtx, c.dialect.DriverName(), dsn)
	if err != nil {
		return nil, c.classifier.Convert(err, c.dialect.SQLState(err), "")
	}
	if err := db.PingContext(attemptCtx); err != nil {
		_ = db.Close()
		return nil, c.classifier.Convert(err, c.dialect.SQLState(err), "")
	}

	c.configurePool(db)
	for _, fn := range c.opts.afterOpen {
		if err := fn(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (c *Connection) configurePool(db *sql.DB) {
	// Every connection to an in-memory SQLite database sees its own database.
	if c.dialect.Name() == "sqlite" && strings.Contains(c.dsn, ":memory:") {
		db.SetMaxOpenConns(1)
		return
	}
	if c.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.cfg.MaxOpenConns)
	}
	if c.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.cfg.MaxIdleConns)
	}
	if c.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	}
}

// Close releases the handle, the resolved master and slave, and every cached
// statement. Query-cache scopes and the transaction reference are dropped.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.health != nil {
		c.health.shutdown()
		c.health = nil
	}
	if c.stmtCache != nil {
		c.stmtCache.Clear()
	}
	if c.master != nil {
		if c.db == c.master.DB() {
			c.db = nil
		}
		errs = append(errs, c.master.Close())
	}
	c.master, c.masterSet = nil, false

	if c.db != nil {
		c.log.Debug("closing DB connection", "dsn", c.cfg.DSN)
		if c.ownsHandle {
			errs = append(errs, c.db.Close())
		}
		c.db = nil
	}

	if c.slave != nil && c.slave != c {
		errs = append(errs, c.slave.Close())
	}
	c.slave, c.slaveSet = nil, false
	c.transaction = nil
	c.scopes = nil
	return errors.Join(errs...)
}

// Clone returns a closed copy sharing configuration and options. The copy has
// its own handle, transaction, schema and master/slave state, except that a
// clone of an open "sqlite::memory:" connection shares the handle, since a new
// one would see an empty database.
func (c *Connection) Clone() *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	clone := &Connection{
		id:         id,
		log:        logger.With(c.opts.logger, "connection", id),
		cfg:        c.cfg,
		opts:       c.opts,
		dialect:    c.dialect,
		dsn:        c.dsn,
		classifier: c.classifier,
		stmtCache:  newStmtCache(c.cfg.StmtCacheCapacity),
	}
	if c.db != nil && strings.HasPrefix(c.cfg.DSN, "sqlite::memory:") {
		clone.db = c.db
		clone.ownsHandle = false
	}
	return clone
}

// Schema returns the metadata reader of this connection.
func (c *Connection) Schema() *schema.Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schema == nil {
		var sc cache.Cache
		if c.cfg.EnableSchemaCache {
			sc = c.opts.schemaCache
		}
		c.schema = schema.New(schema.Options{
			Dialect:       c.dialect,
			Quoter:        quoter.ForDialect(c.dialect, c.cfg.TablePrefix),
			DB:            c,
			DSN:           c.cfg.DSN,
			Username:      c.cfg.Username,
			Cache:         sc,
			CacheDuration: c.cfg.SchemaCacheDuration,
			CacheExclude:  c.cfg.SchemaCacheExclude,
			Logger:        c.log,

			ErrorCategories: c.cfg.ErrorCategories,
		})
	}
	return c.schema
}

// QueryBuilder returns the builder of this connection's schema.
func (c *Connection) QueryBuilder() *querybuilder.QueryBuilder {
	s := c.Schema()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.builder == nil {
		c.builder = querybuilder.New(s)
	}
	return c.builder
}

// Quoter returns the identifier quoter.
func (c *Connection) Quoter() *quoter.Quoter { return c.Schema().Quoter() }

// QuoteTableName quotes a table name for use in a query.
func (c *Connection) QuoteTableName(name string) string { return c.Quoter().QuoteTableName(name) }

// QuoteColumnName quotes a column name for use in a query.
func (c *Connection) QuoteColumnName(name string) string { return c.Quoter().QuoteColumnName(name) }

// QuoteValue quotes a string literal.
func (c *Connection) QuoteValue(s string) string { return c.Quoter().QuoteValue(s) }

// QuoteSQL expands {{%table}} and [[column]] tokens.
func (c *Connection) QuoteSQL(sql string) string { return c.Quoter().QuoteSQL(sql) }

// SupportsSavepoint reports whether nested transactions use savepoints.
func (c *Connection) SupportsSavepoint() bool {
	return !c.cfg.DisableSavepoints && c.dialect.SupportsSavepoint()
}

// QueryContext runs a read query on the active transaction, a slave or the
// master, in that order of preference. It lets Schema read metadata through
// the connection.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	target, tx, err := c.route(ctx, true)
	if err != nil {
		return nil, err
	}
	if tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return target.DB().QueryContext(ctx, query, args...)
}

// route picks where a statement runs: the active transaction, else a slave
// for reads, else the master. The returned connection is open.
func (c *Connection) route(ctx context.Context, read bool) (*Connection, *sql.Tx, error) {
	if tx := c.activeTx(); tx != nil {
		return c, tx, nil
	}
	target := c
	if read {
		s, err := c.Slave(ctx, true)
		if err != nil {
			return nil, nil, err
		}
		target = s
	}
	if err := target.Open(ctx); err != nil {
		return nil, nil, err
	}
	return target, nil, nil
}

// prepare returns a statement for query. Statements outside transactions are
// taken from the statement cache when cacheable; owned statements must be
// closed by the caller.
func (c *Connection) prepare(ctx context.Context, tx *sql.Tx, query string, cacheable bool) (stmt *sql.Stmt, owned bool, err error) {
	if tx != nil {
		stmt, err = tx.PrepareContext(ctx, query)
		return stmt, true, err
	}
	db := c.DB()
	if db == nil {
		return nil, false, dberr.Configuration("connection is not open")
	}
	if c.stmtCache == nil || !cacheable {
		stmt, err = db.PrepareContext(ctx, query)
		return stmt, true, err
	}
	if stmt, ok := c.stmtCache.Get(query); ok {
		return stmt, false, nil
	}
	stmt, err = db.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	c.stmtCache.Set(query, stmt)
	return stmt, false, nil
}

// StmtCacheStats returns the prepared statement cache counters.
func (c *Connection) StmtCacheStats() cache.Stats {
	if c.stmtCache == nil {
		return cache.Stats{}
	}
	return c.stmtCache.Stats()
}

// convertError classifies a driver error.
func (c *Connection) convertError(err error, rawSQL string) error {
	return c.classifier.Convert(err, c.dialect.SQLState(err), rawSQL)
}
