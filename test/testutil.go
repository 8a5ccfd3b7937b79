//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coregx/dbal"
)

// DatabaseSetup holds an open connection and the container serving it, if any.
type DatabaseSetup struct {
	Conn      *dbal.Connection
	Container testcontainers.Container
	Dialect   string
}

// Close releases the connection and terminates the container.
func (ds *DatabaseSetup) Close() {
	if ds.Conn != nil {
		ds.Conn.Close() //nolint:errcheck
	}
	if ds.Container != nil {
		ds.Container.Terminate(context.Background()) //nolint:errcheck
	}
}

func open(t *testing.T, dsn string) *dbal.Connection {
	t.Helper()
	cfg := dbal.DefaultConfig(dsn)
	cfg.ConnectTimeout = 10 * time.Second
	conn, err := dbal.New(cfg, dbal.WithQueryCache(dbal.NewMemoryCache()))
	require.NoError(t, err)
	require.NoError(t, conn.Open(context.Background()))
	return conn
}

// SetupPostgreSQLTestDB connects to POSTGRES_TEST_DSN, or to a PostgreSQL
// container when the variable is unset.
func SetupPostgreSQLTestDB(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		return &DatabaseSetup{Conn: open(t, "pgsql:"+dsn), Dialect: "pgsql"}
	}

	pgContainer, err := postgres.Run(
		ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for PostgreSQL integration tests: " + err.Error())
	}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return &DatabaseSetup{
		Conn:      open(t, "pgsql:"+dsn),
		Container: pgContainer,
		Dialect:   "pgsql",
	}
}

// SetupMySQLTestDB connects to MYSQL_TEST_DSN, or to a MySQL container when
// the variable is unset.
func SetupMySQLTestDB(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if dsn := os.Getenv("MYSQL_TEST_DSN"); dsn != "" {
		return &DatabaseSetup{Conn: open(t, "mysql:"+withParseTime(dsn)), Dialect: "mysql"}
	}

	mysqlContainer, err := mysql.Run(
		ctx,
		"mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("user"),
		mysql.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for MySQL integration tests: " + err.Error())
	}

	dsn, err := mysqlContainer.ConnectionString(ctx)
	require.NoError(t, err)

	return &DatabaseSetup{
		Conn:      open(t, "mysql:"+withParseTime(dsn)),
		Container: mysqlContainer,
		Dialect:   "mysql",
	}
}

// SetupSQLiteTestDB opens an in-memory SQLite database.
func SetupSQLiteTestDB(t *testing.T) *DatabaseSetup {
	return &DatabaseSetup{Conn: open(t, "sqlite::memory:"), Dialect: "sqlite"}
}

// withParseTime makes the MySQL driver return DATETIME columns as time.Time.
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=true") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// CreateBlogTables creates "author" and "post" through the dialect-neutral
// DDL builder. post.author_id references author.id except on SQLite, which
// cannot add foreign keys to an existing table.
func CreateBlogTables(t *testing.T, ds *DatabaseSetup) {
	t.Helper()
	ctx := context.Background()
	conn := ds.Conn

	_, err := conn.CreateCommand("", nil).CreateTable("author", dbal.Cols(
		"id", "pk",
		"email", "string NOT NULL",
		"name", "string",
	), "").Execute(ctx)
	require.NoError(t, err)
	_, err = conn.CreateCommand("", nil).CreateIndex("ux_author_email", "author", []string{"email"}, true).Execute(ctx)
	require.NoError(t, err)

	_, err = conn.CreateCommand("", nil).CreateTable("post", dbal.Cols(
		"id", "pk",
		"author_id", "integer NOT NULL",
		"title", "string NOT NULL",
		"views", "integer NOT NULL DEFAULT 0",
	), "").Execute(ctx)
	require.NoError(t, err)

	if ds.Dialect != "sqlite" {
		_, err = conn.CreateCommand("", nil).
			AddForeignKey("fk_post_author", "post", []string{"author_id"}, "author", []string{"id"}, "CASCADE", "").
			Execute(ctx)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		for _, table := range []string{"post", "author"} {
			conn.CreateCommand("", nil).DropTable(table).Execute(context.Background()) //nolint:errcheck
		}
	})
}
