package quoter

import (
	"testing"

	"github.com/coregx/dbal/internal/dialects"
	"github.com/stretchr/testify/assert"
)

func pgQuoter() *Quoter {
	return ForDialect(dialects.GetDialect("pgsql"), "tbl_")
}

func TestQuoteTableName(t *testing.T) {
	q := pgQuoter()
	tests := []struct {
		in, want string
	}{
		{"user", `"user"`},
		{"public.user", `"public"."user"`},
		{`"public"."user"`, `"public"."user"`},
		{"(SELECT 1)", "(SELECT 1)"},
		{"{{%user}}", "{{%user}}"},
		{`"user"`, `"user"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, q.QuoteTableName(tt.in))
		})
	}
}

func TestQuoteColumnName(t *testing.T) {
	q := pgQuoter()
	tests := []struct {
		in, want string
	}{
		{"id", `"id"`},
		{"u.id", `"u"."id"`},
		{"public.user.id", `"public"."user"."id"`},
		{"*", "*"},
		{"u.*", `"u".*`},
		{"COUNT(*)", "COUNT(*)"},
		{"[[id]]", "[[id]]"},
		{"u.{{x}}", "{{x}}"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, q.QuoteColumnName(tt.in))
		})
	}
}

func TestQuoteSimple_MySQL(t *testing.T) {
	q := ForDialect(dialects.GetDialect("mysql"), "")
	assert.Equal(t, "`user`", q.QuoteSimpleTableName("user"))
	assert.Equal(t, "`name`", q.QuoteSimpleColumnName("name"))
	assert.Equal(t, "`name`", q.QuoteSimpleColumnName("`name`"))
}

func TestQuoteSimple_MSSQLBrackets(t *testing.T) {
	q := ForDialect(dialects.GetDialect("sqlsrv"), "")
	assert.Equal(t, "[dbo].[user]", q.QuoteTableName("dbo.user"))
	assert.Equal(t, "user", q.UnquoteSimpleTableName("[user]"))
}

func TestUnquoteRoundTrip(t *testing.T) {
	names := []string{"user", "order items", "a-b", "x.y", "Ünïcode", ""}
	for _, name := range []string{"mysql", "pgsql", "sqlite", "sqlsrv", "oci"} {
		q := ForDialect(dialects.GetDialect(name), "")
		for _, n := range names {
			assert.Equal(t, n, q.UnquoteSimpleTableName(q.QuoteSimpleTableName(n)), "%s table %q", name, n)
			assert.Equal(t, n, q.UnquoteSimpleColumnName(q.QuoteSimpleColumnName(n)), "%s column %q", name, n)
		}
	}
}

func TestQuoteValue(t *testing.T) {
	pg := pgQuoter()
	assert.Equal(t, `'it''s'`, pg.QuoteValue("it's"))
	assert.Equal(t, `'a\b'`, pg.QuoteValue(`a\b`))

	my := ForDialect(dialects.GetDialect("mysql"), "")
	assert.Equal(t, `'it\'s'`, my.QuoteValue("it's"))
	assert.Equal(t, `'a\\b\n'`, my.QuoteValue("a\\b\n"))
}

func TestQuoteValueRoundTrip(t *testing.T) {
	values := []string{
		"", "plain", "it's", "''", `back\slash`, "line\nbreak\r", "nul\x00byte",
		"ctrl\x1aZ", `"double"`, `\'`, `\\'\\`,
	}
	for _, name := range []string{"mysql", "pgsql", "sqlite"} {
		q := ForDialect(dialects.GetDialect(name), "")
		for _, v := range values {
			assert.Equal(t, v, q.UnquoteValue(q.QuoteValue(v)), "%s %q", name, v)
		}
	}
}

func TestQuoteSQL(t *testing.T) {
	q := pgQuoter()
	assert.Equal(t,
		`SELECT "name" FROM "tbl_post" WHERE "p"."id"=1`,
		q.QuoteSQL("SELECT [[name]] FROM {{%post}} WHERE [[p.id]]=1"))
	assert.Equal(t, `SELECT * FROM "user"`, q.QuoteSQL("SELECT * FROM {{user}}"))
	assert.Equal(t, `SELECT * FROM "public"."user"`, q.QuoteSQL("SELECT * FROM {{public.user}}"))
	assert.Equal(t, "SELECT 1", q.QuoteSQL("SELECT 1"))
}

func TestTableNameParts(t *testing.T) {
	q := pgQuoter()
	assert.Equal(t, []string{"public", "user"}, q.TableNameParts(`"public".user`))
	assert.Equal(t, []string{"user"}, q.TableNameParts("user"))
}
