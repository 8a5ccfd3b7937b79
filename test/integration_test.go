//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbal"
)

type post struct {
	ID       int64  `db:"id"`
	AuthorID int64  `db:"author_id"`
	Title    string `db:"title"`
	Views    int64  `db:"views"`
}

func TestIntegration(t *testing.T) {
	setups := map[string]func(*testing.T) *DatabaseSetup{
		"sqlite": SetupSQLiteTestDB,
		"pgsql":  SetupPostgreSQLTestDB,
		"mysql":  SetupMySQLTestDB,
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			ds := setup(t)
			t.Cleanup(ds.Close)
			CreateBlogTables(t, ds)

			t.Run("metadata", func(t *testing.T) { testMetadata(t, ds) })
			t.Run("writes", func(t *testing.T) { testWrites(t, ds) })
			t.Run("transactions", func(t *testing.T) { testTransactions(t, ds) })
			t.Run("query cache", func(t *testing.T) { testQueryCache(t, ds) })
		})
	}
}

func testMetadata(t *testing.T, ds *DatabaseSetup) {
	ctx := context.Background()
	s := ds.Conn.Schema()

	ts, err := s.GetTableSchema(ctx, "post", true)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, []string{"id"}, ts.PrimaryKey)
	assert.Equal(t, []string{"id", "author_id", "title", "views"}, ts.ColumnNames())
	assert.True(t, ts.Column("id").AutoIncrement)
	assert.False(t, ts.Column("title").AllowNull)

	if ds.Dialect != "sqlite" {
		require.Len(t, ts.ForeignKeys, 1)
		assert.Equal(t, "author", ts.ForeignKeys[0].ForeignTable)
		assert.Equal(t, []string{"author_id"}, ts.ForeignKeys[0].Columns)
	}

	indexes, err := s.GetTableIndexes(ctx, "author", true)
	require.NoError(t, err)
	var unique []string
	for _, idx := range indexes {
		if idx.IsUnique && !idx.IsPrimary {
			unique = append(unique, idx.ColumnNames...)
		}
	}
	assert.Equal(t, []string{"email"}, unique)

	names, err := s.GetTableNames(ctx, "", true)
	require.NoError(t, err)
	assert.Subset(t, names, []string{"author", "post"})

	missing, err := s.GetTableSchema(ctx, "no_such_table", true)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testWrites(t *testing.T, ds *DatabaseSetup) {
	ctx := context.Background()
	conn := ds.Conn

	_, err := conn.CreateCommand("", nil).Insert(ctx, "author", dbal.Cols("email", "ann@example.com", "name", "Ann")).Execute(ctx)
	require.NoError(t, err)

	author, err := conn.CreateCommand("SELECT [[id]] FROM {{author}} WHERE [[email]] = :email", dbal.Params{":email": "ann@example.com"}).
		QueryScalar(ctx)
	require.NoError(t, err)

	_, err = conn.CreateCommand("", nil).Insert(ctx, "author", dbal.Cols("email", "ann@example.com")).Execute(ctx)
	require.Error(t, err)
	assert.True(t, dbal.IsIntegrity(err), "duplicate email: %v", err)

	_, err = conn.CreateCommand("", nil).Upsert(ctx, "author",
		dbal.Cols("email", "ann@example.com", "name", "Annie"), true).Execute(ctx)
	require.NoError(t, err)
	name, err := conn.CreateCommand("SELECT name FROM author WHERE email = :e", dbal.Params{"e": "ann@example.com"}).QueryScalar(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Annie", asString(name))

	rows := func(yield func([]any) bool) {
		for _, title := range []string{"first", "second", "third"} {
			if !yield([]any{author, title}) {
				return
			}
		}
	}
	n, err := conn.CreateCommand("", nil).BatchInsert(ctx, "post", []string{"author_id", "title"}, rows).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = conn.CreateCommand("", nil).
		Update(ctx, "post", dbal.Cols("views", dbal.NewExp("views + 1")), dbal.In("title", []string{"first", "second"})).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var posts []post
	q := dbal.NewQuery().From("post").Where(map[string]any{"author_id": author}).AndWhere([]any{">", "views", 0}).OrderBy("id")
	require.NoError(t, conn.CreateCommand("", nil).Select(q).ScanAll(ctx, &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, "first", posts[0].Title)
	assert.Equal(t, int64(1), posts[1].Views)
}

func testTransactions(t *testing.T, ds *DatabaseSetup) {
	ctx := context.Background()
	conn := ds.Conn
	insert := func(c *dbal.Connection, email string) error {
		_, err := c.CreateCommand("", nil).Insert(ctx, "author", dbal.Cols("email", email)).Execute(ctx)
		return err
	}
	count := func() int64 {
		v, err := conn.CreateCommand("SELECT COUNT(*) FROM author WHERE email LIKE 'tx%'", nil).QueryScalar(ctx)
		require.NoError(t, err)
		return asInt(v)
	}

	err := conn.Transaction(ctx, func(c *dbal.Connection) error {
		if err := insert(c, "tx1@example.com"); err != nil {
			return err
		}
		inner := c.Transaction(ctx, func(c *dbal.Connection) error {
			if err := insert(c, "tx2@example.com"); err != nil {
				return err
			}
			return errors.New("undo inner")
		}, nil)
		assert.EqualError(t, inner, "undo inner")
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count())

	err = conn.Transaction(ctx, func(c *dbal.Connection) error {
		if err := insert(c, "tx3@example.com"); err != nil {
			return err
		}
		return insert(c, "tx1@example.com")
	}, nil)
	require.Error(t, err)
	assert.True(t, dbal.IsIntegrity(err))
	assert.Equal(t, int64(1), count())
}

func testQueryCache(t *testing.T, ds *DatabaseSetup) {
	ctx := context.Background()
	conn := ds.Conn
	count := func(c *dbal.Connection) int64 {
		v, err := c.CreateCommand("SELECT COUNT(*) FROM post", nil).QueryScalar(ctx)
		require.NoError(t, err)
		return asInt(v)
	}

	err := conn.Cache(func(c *dbal.Connection) error {
		before := count(c)
		_, err := c.CreateCommand("DELETE FROM post", nil).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, count(c))

		require.NoError(t, c.InvalidateQueryCache(ctx, "post"))
		assert.Zero(t, count(c))
		return nil
	}, dbal.DefaultCacheDuration, "post")
	require.NoError(t, err)
}

// asString normalizes driver values; MySQL returns text as []byte.
func asString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	s, _ := v.(string)
	return s
}

func asInt(v any) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case []byte:
		var n int64
		for _, c := range v {
			n = n*10 + int64(c-'0')
		}
		return n
	}
	return -1
}
