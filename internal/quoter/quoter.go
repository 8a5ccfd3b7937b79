// Package quoter quotes and unquotes table names, column names and string
// literals for one dialect, and expands the {{table}} / [[column]] shorthand
// used in raw SQL.
package quoter

import (
	"regexp"
	"strings"

	"github.com/coregx/dbal/internal/dialects"
)

// quoteRegex matches table and column quoting syntax.
// {{table_name}} - quotes table name, a % inside is replaced with the table prefix
// [[column_name]] - quotes column name
var quoteRegex = regexp.MustCompile(`(\{\{(%?[\w\-. ]+%?)\}\}|\[\[([\w\-. ]+)\]\])`)

// Quoter quotes identifiers and values with a configurable pair of quote
// characters per identifier kind. It holds no mutable state once built.
type Quoter struct {
	tableStart, tableEnd   string
	columnStart, columnEnd string
	tablePrefix            string
	backslashEscapes       bool
}

// New creates a Quoter from explicit quote characters.
func New(tableQuote, columnQuote [2]string, tablePrefix string) *Quoter {
	return &Quoter{
		tableStart:  tableQuote[0],
		tableEnd:    tableQuote[1],
		columnStart: columnQuote[0],
		columnEnd:   columnQuote[1],
		tablePrefix: tablePrefix,
	}
}

// ForDialect creates a Quoter using a dialect's quote characters and escaping rule.
func ForDialect(d dialects.Dialect, tablePrefix string) *Quoter {
	ts, te := d.TableQuoteChars()
	cs, ce := d.ColumnQuoteChars()
	q := New([2]string{ts, te}, [2]string{cs, ce}, tablePrefix)
	q.backslashEscapes = d.BackslashEscapes()
	return q
}

// TablePrefix returns the prefix substituted for % in {{%name}} tokens.
func (q *Quoter) TablePrefix() string {
	return q.tablePrefix
}

// QuoteTableName quotes a table name. Names starting with "(" and ending with ")",
// or containing "{{", are returned unchanged; "schema.table" is quoted part by part.
func (q *Quoter) QuoteTableName(name string) string {
	if strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")") {
		return name
	}
	if strings.Contains(name, "{{") {
		return name
	}
	if !strings.Contains(name, ".") {
		return q.QuoteSimpleTableName(name)
	}

	parts := q.TableNameParts(name)
	for i, part := range parts {
		parts[i] = q.QuoteSimpleTableName(part)
	}
	return strings.Join(parts, ".")
}

// QuoteColumnName quotes a column name that may be prefixed with a table name.
// Names containing "(", "[[" or "{{" are returned unchanged.
func (q *Quoter) QuoteColumnName(name string) string {
	if strings.Contains(name, "(") || strings.Contains(name, "[[") {
		return name
	}

	prefix := ""
	if pos := strings.LastIndex(name, "."); pos >= 0 {
		prefix = q.QuoteTableName(name[:pos]) + "."
		name = name[pos+1:]
	}
	if strings.Contains(name, "{{") {
		return name
	}
	return prefix + q.QuoteSimpleColumnName(name)
}

// QuoteSimpleTableName quotes a table name without a schema prefix. Names already
// containing the start quote character are returned unchanged.
func (q *Quoter) QuoteSimpleTableName(name string) string {
	if strings.Contains(name, q.tableStart) {
		return name
	}
	return q.tableStart + name + q.tableEnd
}

// QuoteSimpleColumnName quotes a column name without a table prefix. "*" and
// names already containing the start quote character are returned unchanged.
func (q *Quoter) QuoteSimpleColumnName(name string) string {
	if name == "*" || strings.Contains(name, q.columnStart) {
		return name
	}
	return q.columnStart + name + q.columnEnd
}

// UnquoteSimpleTableName strips the quote characters of a simple table name.
func (q *Quoter) UnquoteSimpleTableName(name string) string {
	return unquote(name, q.tableStart, q.tableEnd)
}

// UnquoteSimpleColumnName strips the quote characters of a simple column name.
func (q *Quoter) UnquoteSimpleColumnName(name string) string {
	return unquote(name, q.columnStart, q.columnEnd)
}

func unquote(name, start, end string) string {
	if !strings.HasPrefix(name, start) || !strings.HasSuffix(name, end) || len(name) < len(start)+len(end) {
		return name
	}
	return name[len(start) : len(name)-len(end)]
}

// TableNameParts splits a possibly schema-qualified table name into its parts,
// stripping quote characters from each part.
func (q *Quoter) TableNameParts(name string) []string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = q.UnquoteSimpleTableName(strings.TrimSpace(part))
	}
	return parts
}

var (
	backslashEscaper = strings.NewReplacer(
		`\`, `\\`,
		"\x00", `\0`,
		"\n", `\n`,
		"\r", `\r`,
		"'", `\'`,
		`"`, `\"`,
		"\x1a", `\Z`,
	)
	backslashUnescaper = strings.NewReplacer(
		`\\`, `\`,
		`\0`, "\x00",
		`\n`, "\n",
		`\r`, "\r",
		`\'`, "'",
		`\"`, `"`,
		`\Z`, "\x1a",
	)
)

// QuoteValue quotes a string for use as a SQL literal.
func (q *Quoter) QuoteValue(s string) string {
	if q.backslashEscapes {
		return "'" + backslashEscaper.Replace(s) + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// UnquoteValue reverses QuoteValue, applying the dialect's literal unescaping rule.
func (q *Quoter) UnquoteValue(literal string) string {
	if len(literal) < 2 || literal[0] != '\'' || literal[len(literal)-1] != '\'' {
		return literal
	}
	s := literal[1 : len(literal)-1]
	if q.backslashEscapes {
		return backslashUnescaper.Replace(s)
	}
	return strings.ReplaceAll(s, "''", "'")
}

// QuoteSQL expands {{table}} and [[column]] tokens. A % inside {{...}} is replaced
// with the table prefix, so {{%post}} becomes the quoted name of "tbl_post" for
// prefix "tbl_".
func (q *Quoter) QuoteSQL(sql string) string {
	if !strings.Contains(sql, "{{") && !strings.Contains(sql, "[[") {
		return sql
	}
	return quoteRegex.ReplaceAllStringFunc(sql, func(match string) string {
		sub := quoteRegex.FindStringSubmatch(match)
		if sub[3] != "" {
			return q.QuoteColumnName(sub[3])
		}
		return q.QuoteTableName(strings.ReplaceAll(sub[2], "%", q.tablePrefix))
	})
}
