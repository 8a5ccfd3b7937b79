package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbal"
)

// seedDatabase creates a SQLite file holding a "users" table with one row and
// returns its DSN.
func seedDatabase(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "app.db")

	conn, err := dbal.New(dbal.DefaultConfig(dsn))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.CreateCommand("", nil).CreateTable("users", dbal.Cols(
		"id", "pk",
		"name", "string NOT NULL",
		"email", "string",
	), "").Execute(ctx)
	require.NoError(t, err)
	_, err = conn.CreateCommand("", nil).Insert(ctx, "users", dbal.Cols("name", "alice")).Execute(ctx)
	require.NoError(t, err)
	return dsn
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI(t *testing.T) {
	dsn := seedDatabase(t)

	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{name: "ping", args: []string{"ping", "--dsn", dsn}, contains: []string{"ok: sqlite server 3."}},
		{name: "tables", args: []string{"tables", "--dsn", dsn}, contains: []string{"users"}},
		{
			name:     "describe",
			args:     []string{"describe", "users", "--dsn", dsn},
			contains: []string{"COLUMN", "id", "PRI", "name", "email", "YES", "NO"},
		},
		{
			name:     "select",
			args:     []string{"sql", "SELECT [[name]], [[email]] FROM {{users}}", "--dsn", dsn},
			contains: []string{"name", "alice", "NULL", "(1 row(s))"},
		},
		{
			name:     "update",
			args:     []string{"sql", "UPDATE users SET email = 'alice@example.com'", "--dsn", dsn},
			contains: []string{"1 row(s) affected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestCLI_Config(t *testing.T) {
	dsn := seedDatabase(t)
	path := filepath.Join(t.TempDir(), "dbal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dsn: "+dsn+"\n"), 0o600))

	out, err := run(t, "sql", "SELECT COUNT(*) AS n FROM users", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 row(s))")
}

func TestCLI_Errors(t *testing.T) {
	dsn := seedDatabase(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no connection", args: []string{"tables"}, wantErr: "either --config or --dsn is required"},
		{name: "missing table", args: []string{"describe", "orders", "--dsn", dsn}, wantErr: `table "orders" does not exist`},
		{name: "bad statement", args: []string{"sql", "SELECT * FROM orders", "--dsn", dsn}, wantErr: "The SQL being executed was"},
		{name: "missing config", args: []string{"ping", "--config", "/nonexistent/dbal.yaml"}, wantErr: "cannot load config"},
		{name: "unknown dialect", args: []string{"ping", "--dsn", "foo:bar"}, wantErr: `driver "foo" is not supported`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
