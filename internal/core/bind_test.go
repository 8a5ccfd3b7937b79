package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/dialects"
	"github.com/coregx/dbal/internal/querybuilder"
	"github.com/coregx/dbal/internal/quoter"
)

func TestBindNamed(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		query    string
		params   querybuilder.Params
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "postgres positional",
			dialect:  "pgsql",
			query:    `SELECT * FROM "user" WHERE "id"=:qp0 AND "name"=:qp1`,
			params:   querybuilder.Params{":qp0": 1, ":qp1": "Alice"},
			wantSQL:  `SELECT * FROM "user" WHERE "id"=$1 AND "name"=$2`,
			wantArgs: []any{1, "Alice"},
		},
		{
			name:     "mysql question marks",
			dialect:  "mysql",
			query:    "UPDATE `user` SET `name`=:name WHERE `id`=:id",
			params:   querybuilder.Params{":name": "Bob", ":id": 2},
			wantSQL:  "UPDATE `user` SET `name`=? WHERE `id`=?",
			wantArgs: []any{"Bob", 2},
		},
		{
			name:     "sqlsrv",
			dialect:  "sqlsrv",
			query:    "DELETE FROM [user] WHERE [id]=:id",
			params:   querybuilder.Params{":id": 3},
			wantSQL:  "DELETE FROM [user] WHERE [id]=@p1",
			wantArgs: []any{3},
		},
		{
			name:     "repeated name binds twice",
			dialect:  "pgsql",
			query:    "SELECT :v + :v",
			params:   querybuilder.Params{":v": 5},
			wantSQL:  "SELECT $1 + $2",
			wantArgs: []any{5, 5},
		},
		{
			name:     "quoted sections are copied",
			dialect:  "pgsql",
			query:    `SELECT ':a', "x:y", 'it''s :b' FROM t WHERE c=:c`,
			params:   querybuilder.Params{":c": 3},
			wantSQL:  `SELECT ':a', "x:y", 'it''s :b' FROM t WHERE c=$1`,
			wantArgs: []any{3},
		},
		{
			name:     "cast operator",
			dialect:  "pgsql",
			query:    "SELECT :v::int",
			params:   querybuilder.Params{":v": "5"},
			wantSQL:  "SELECT $1::int",
			wantArgs: []any{"5"},
		},
		{
			name:     "backslash escaped quote",
			dialect:  "mysql",
			query:    `SELECT 'it\'s :x', :y`,
			params:   querybuilder.Params{":y": 1},
			wantSQL:  `SELECT 'it\'s :x', ?`,
			wantArgs: []any{1},
		},
		{
			name:     "colon before digit is not a placeholder",
			dialect:  "sqlite",
			query:    "SELECT '10:30', :t, a :1",
			params:   querybuilder.Params{":t": "x"},
			wantSQL:  "SELECT '10:30', ?, a :1",
			wantArgs: []any{"x"},
		},
		{
			name:    "no params",
			dialect: "pgsql",
			query:   "SELECT 1",
			wantSQL: "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dialects.GetDialect(tt.dialect)
			sql, args, err := bindNamed(tt.query, tt.params, d.BackslashEscapes(), d.Placeholder)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBindNamed_Unbound(t *testing.T) {
	d := dialects.GetDialect("pgsql")
	_, _, err := bindNamed("SELECT :a, :b", querybuilder.Params{":a": 1}, false, d.Placeholder)

	require.Error(t, err)
	assert.ErrorIs(t, err, dberr.ErrArgument)
	assert.Contains(t, err.Error(), ":b")
}

func TestRawSQL(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	params := querybuilder.Params{
		":a": nil,
		":b": true,
		":c": 42,
		":d": "O'Reilly",
		":e": 1.5,
		":f": at,
		":g": int64(-7),
		":h": []byte("raw"),
	}
	query := "UPDATE t SET a=:a, b=:b, c=:c, d=:d, e=:e, f=:f, g=:g, h=:h WHERE x=:missing"

	tests := []struct {
		dialect string
		want    string
	}{
		{
			dialect: "mysql",
			want:    `UPDATE t SET a=NULL, b=TRUE, c=42, d='O\'Reilly', e=1.5, f='2024-01-02 03:04:05', g=-7, h='raw' WHERE x=:missing`,
		},
		{
			dialect: "sqlite",
			want:    `UPDATE t SET a=NULL, b=TRUE, c=42, d='O''Reilly', e=1.5, f='2024-01-02 03:04:05', g=-7, h='raw' WHERE x=:missing`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			d := dialects.GetDialect(tt.dialect)
			got := rawSQL(query, params, quoter.ForDialect(d, ""), d.BackslashEscapes())
			assert.Equal(t, tt.want, got)
		})
	}
}
