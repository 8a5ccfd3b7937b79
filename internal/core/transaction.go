package core

import (
	"context"
	"database/sql"
	"strconv"
	"sync"

	"github.com/coregx/dbal/internal/dberr"
)

// Transaction is the transaction of a Connection. Begin on an active
// transaction opens a nested level backed by a savepoint.
type Transaction struct {
	conn *Connection

	mu    sync.Mutex
	tx    *sql.Tx
	level int
}

// IsActive reports whether the transaction has been started and not yet
// committed or rolled back at its outermost level.
func (t *Transaction) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tx != nil && t.level > 0
}

// Level returns the nesting level, 0 when inactive.
func (t *Transaction) Level() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// Tx returns the underlying transaction, or nil when inactive.
func (t *Transaction) Tx() *sql.Tx {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tx
}

// Begin starts the transaction, or creates a savepoint when it is already
// active. opts only apply to the outermost level.
func (t *Transaction) Begin(ctx context.Context, opts *sql.TxOptions) error {
	if err := t.conn.Open(ctx); err != nil {
		return err
	}
	db := t.conn.DB()
	log := t.conn.log

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.level == 0 {
		log.Debug("begin transaction")
		tx, err := db.BeginTx(ctx, opts)
		if err != nil {
			return t.conn.convertError(err, "BEGIN")
		}
		t.tx = tx
		t.level = 1
		return nil
	}

	if !t.conn.SupportsSavepoint() {
		log.Info("transaction not started: nested transaction not supported")
		return dberr.NotSupported(t.conn.dialect.Name(), "nested transactions")
	}
	sp := savepointStatements(t.conn.dialect.Name(), savepointName(t.level))
	log.Debug("set savepoint", "level", t.level)
	if err := t.exec(ctx, sp.create); err != nil {
		return err
	}
	t.level++
	return nil
}

// Commit commits the outermost level or releases the current savepoint.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tx == nil || t.level == 0 {
		return ErrTransactionInactive
	}
	log := t.conn.log

	t.level--
	if t.level == 0 {
		log.Debug("commit transaction")
		err := t.tx.Commit()
		t.tx = nil
		if err != nil {
			return t.conn.convertError(err, "COMMIT")
		}
		return nil
	}

	if !t.conn.SupportsSavepoint() {
		log.Info("transaction not committed: nested transaction not supported")
		return nil
	}
	sp := savepointStatements(t.conn.dialect.Name(), savepointName(t.level))
	log.Debug("release savepoint", "level", t.level)
	return t.exec(ctx, sp.release)
}

// Rollback rolls back the outermost level or back to the current savepoint.
// It does nothing when the transaction is inactive.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tx == nil || t.level == 0 {
		return nil
	}
	log := t.conn.log

	t.level--
	if t.level == 0 {
		log.Debug("roll back transaction")
		err := t.tx.Rollback()
		t.tx = nil
		if err != nil {
			return t.conn.convertError(err, "ROLLBACK")
		}
		return nil
	}

	if !t.conn.SupportsSavepoint() {
		log.Info("transaction not rolled back: nested transaction not supported")
		return dberr.NotSupported(t.conn.dialect.Name(), "nested transaction rollback")
	}
	sp := savepointStatements(t.conn.dialect.Name(), savepointName(t.level))
	log.Debug("roll back to savepoint", "level", t.level)
	return t.exec(ctx, sp.rollback)
}

func (t *Transaction) exec(ctx context.Context, query string) error {
	if query == "" {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, query); err != nil {
		return t.conn.convertError(err, query)
	}
	return nil
}

func savepointName(level int) string {
	return "LEVEL" + strconv.Itoa(level)
}

type savepointSQL struct {
	create, release, rollback string
}

// savepointStatements returns the savepoint statements of a dialect. An empty
// release means savepoints are released with the enclosing transaction.
func savepointStatements(dialect, name string) savepointSQL {
	switch dialect {
	case "sqlsrv":
		return savepointSQL{
			create:   "SAVE TRANSACTION " + name,
			rollback: "ROLLBACK TRANSACTION " + name,
		}
	case "oci":
		return savepointSQL{
			create:   "SAVEPOINT " + name,
			rollback: "ROLLBACK TO SAVEPOINT " + name,
		}
	}
	return savepointSQL{
		create:   "SAVEPOINT " + name,
		release:  "RELEASE SAVEPOINT " + name,
		rollback: "ROLLBACK TO SAVEPOINT " + name,
	}
}

// BeginTransaction starts a transaction, reusing the active one as a nested
// level.
func (c *Connection) BeginTransaction(ctx context.Context, opts *sql.TxOptions) (*Transaction, error) {
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	t := c.transaction
	if t == nil || !t.IsActive() {
		t = &Transaction{conn: c}
		c.transaction = t
	}
	c.mu.Unlock()

	if err := t.Begin(ctx, opts); err != nil {
		return nil, err
	}
	return t, nil
}

// CurrentTransaction returns the active transaction, or nil.
func (c *Connection) CurrentTransaction() *Transaction {
	c.mu.Lock()
	t := c.transaction
	c.mu.Unlock()
	if t == nil || !t.IsActive() {
		return nil
	}
	return t
}

func (c *Connection) activeTx() *sql.Tx {
	if t := c.CurrentTransaction(); t != nil {
		return t.Tx()
	}
	return nil
}

// Transaction runs fn inside a transaction level. The level is committed when
// fn returns nil and the transaction is still active at that level; it is
// rolled back when fn fails or panics. A failing rollback is logged and never
// replaces the error of fn.
func (c *Connection) Transaction(ctx context.Context, fn func(*Connection) error, opts *sql.TxOptions) error {
	t, err := c.BeginTransaction(ctx, opts)
	if err != nil {
		return err
	}
	level := t.Level()

	defer func() {
		if r := recover(); r != nil {
			c.rollbackOnLevel(ctx, t, level)
			panic(r)
		}
	}()

	if err := fn(c); err != nil {
		c.rollbackOnLevel(ctx, t, level)
		return err
	}
	if t.IsActive() && t.Level() == level {
		return t.Commit(ctx)
	}
	return nil
}

func (c *Connection) rollbackOnLevel(ctx context.Context, t *Transaction, level int) {
	if !t.IsActive() || t.Level() != level {
		return
	}
	if err := t.Rollback(ctx); err != nil {
		c.log.Error("transaction rollback failed", "error", err)
	}
}
