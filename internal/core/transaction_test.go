package core

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbal/internal/dberr"
)

func newMockConnection(t *testing.T, dsn string, mutate ...func(*Config)) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := DefaultConfig(dsn)
	for _, fn := range mutate {
		fn(&cfg)
	}
	conn, err := New(cfg, WithDB(db))
	require.NoError(t, err)
	return conn, mock
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	conn, mock := newMockConnection(t, "sqlite::memory:")

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := conn.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	assert.True(t, tx.IsActive())
	assert.Equal(t, 1, tx.Level())
	assert.Same(t, tx, conn.CurrentTransaction())
	require.NoError(t, tx.Commit(ctx))
	assert.False(t, tx.IsActive())
	assert.Nil(t, conn.CurrentTransaction())

	tx, err = conn.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 0, tx.Level())

	assert.ErrorIs(t, tx.Commit(ctx), ErrTransactionInactive)
	assert.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_NestedSavepoints(t *testing.T) {
	ctx := context.Background()
	conn, mock := newMockConnection(t, "sqlite::memory:")

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT LEVEL1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT LEVEL2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT LEVEL2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RELEASE SAVEPOINT LEVEL1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	outer, err := conn.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	inner, err := conn.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	assert.Same(t, outer, inner)
	assert.Equal(t, 2, inner.Level())

	_, err = conn.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, outer.Level())

	require.NoError(t, outer.Rollback(ctx))
	require.NoError(t, outer.Commit(ctx))
	require.NoError(t, outer.Commit(ctx))
	assert.False(t, outer.IsActive())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_SavepointsDisabled(t *testing.T) {
	ctx := context.Background()
	conn, mock := newMockConnection(t, "sqlite::memory:", func(c *Config) { c.DisableSavepoints = true })
	assert.False(t, conn.SupportsSavepoint())

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := conn.BeginTransaction(ctx, nil)
	require.NoError(t, err)

	_, err = conn.BeginTransaction(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberr.ErrNotSupported)
	assert.Equal(t, 1, tx.Level())

	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavepointStatements(t *testing.T) {
	tests := []struct {
		dialect string
		want    savepointSQL
	}{
		{
			dialect: "pgsql",
			want: savepointSQL{
				create:   "SAVEPOINT LEVEL1",
				release:  "RELEASE SAVEPOINT LEVEL1",
				rollback: "ROLLBACK TO SAVEPOINT LEVEL1",
			},
		},
		{
			dialect: "sqlsrv",
			want: savepointSQL{
				create:   "SAVE TRANSACTION LEVEL1",
				rollback: "ROLLBACK TRANSACTION LEVEL1",
			},
		},
		{
			dialect: "oci",
			want: savepointSQL{
				create:   "SAVEPOINT LEVEL1",
				rollback: "ROLLBACK TO SAVEPOINT LEVEL1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			assert.Equal(t, tt.want, savepointStatements(tt.dialect, savepointName(1)))
		})
	}
}

func TestTransaction_SQLServerReleaseIsImplicit(t *testing.T) {
	ctx := context.Background()
	conn, mock := newMockConnection(t, "sqlsrv:server=localhost;database=app")

	mock.ExpectBegin()
	mock.ExpectExec("SAVE TRANSACTION LEVEL1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := conn.BeginTransaction(ctx, nil)
	require.NoError(t, err)
	_, err = conn.BeginTransaction(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_Transaction(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	t.Run("commits on success", func(t *testing.T) {
		conn, mock := newMockConnection(t, "sqlite::memory:")
		mock.ExpectBegin()
		mock.ExpectPrepare(`UPDATE "account" SET "balance"=?`).
			ExpectExec().WithArgs(10).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := conn.Transaction(ctx, func(c *Connection) error {
			n, err := c.CreateCommand("UPDATE {{account}} SET [[balance]]=:b", map[string]any{"b": 10}).Execute(ctx)
			assert.Equal(t, int64(2), n)
			return err
		}, nil)
		require.NoError(t, err)
		assert.Nil(t, conn.CurrentTransaction())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		conn, mock := newMockConnection(t, "sqlite::memory:")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := conn.Transaction(ctx, func(*Connection) error { return errBoom }, nil)
		assert.ErrorIs(t, err, errBoom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and repanics", func(t *testing.T) {
		conn, mock := newMockConnection(t, "sqlite::memory:")
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "kaboom", func() {
			_ = conn.Transaction(ctx, func(*Connection) error { panic("kaboom") }, nil)
		})
		assert.Nil(t, conn.CurrentTransaction())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed inner level keeps outer work", func(t *testing.T) {
		conn, mock := newMockConnection(t, "sqlite::memory:")
		mock.ExpectBegin()
		mock.ExpectExec("SAVEPOINT LEVEL1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("ROLLBACK TO SAVEPOINT LEVEL1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := conn.Transaction(ctx, func(c *Connection) error {
			inner := c.Transaction(ctx, func(*Connection) error { return errBoom }, nil)
			assert.ErrorIs(t, inner, errBoom)
			return nil
		}, nil)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("level finished inside callback is left alone", func(t *testing.T) {
		conn, mock := newMockConnection(t, "sqlite::memory:")
		mock.ExpectBegin()
		mock.ExpectCommit()

		err := conn.Transaction(ctx, func(c *Connection) error {
			return c.CurrentTransaction().Commit(ctx)
		}, nil)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		conn, mock := newMockConnection(t, "sqlite::memory:")
		mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

		called := false
		err := conn.Transaction(ctx, func(*Connection) error { called = true; return nil }, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, dberr.ErrExecution)
		assert.False(t, called)
	})
}
