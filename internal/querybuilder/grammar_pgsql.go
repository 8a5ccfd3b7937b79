package querybuilder

import (
	"context"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/schema"
)

type pgsqlGrammar struct {
	baseGrammar
}

// ArrayExpression binds a list as a PostgreSQL ARRAY constructor.
type ArrayExpression struct {
	Values []any
	// Type is the element type the array is cast to, e.g. "integer".
	Type string
}

// Array wraps values for an ARRAY[...] constructor.
func Array(typ string, values ...any) *ArrayExpression {
	return &ArrayExpression{Values: values, Type: typ}
}

// SQLExpression marks ArrayExpression as an Expression.
func (*ArrayExpression) SQLExpression() {}

var pgsqlAlterRegex = regexp.MustCompile(`(?i)^(DROP|SET|RESET)\s+`)

func (g *pgsqlGrammar) registerBuilders(r *registry) {
	r.register(reflect.TypeOf(&ArrayExpression{}), buildArray)
}

func buildArray(b *QueryBuilder, e Expression, params Params) (string, error) {
	x := e.(*ArrayExpression)
	phs := make([]string, 0, len(x.Values))
	for _, v := range x.Values {
		ph, err := b.placeholder(v, params)
		if err != nil {
			return "", err
		}
		phs = append(phs, ph)
	}
	sql := "ARRAY[" + strings.Join(phs, ", ") + "]"
	if x.Type != "" {
		sql += "::" + x.Type + "[]"
	}
	return sql, nil
}

func (g *pgsqlGrammar) jsonPlaceholder(placeholder, typ string) string {
	if typ == "" {
		return placeholder
	}
	return placeholder + "::" + typ
}

func (g *pgsqlGrammar) supportsUpsert() bool { return true }

func (g *pgsqlGrammar) insertedValue(b *QueryBuilder, column string) Expression {
	return NewExp("EXCLUDED." + b.quoter.QuoteColumnName(column))
}

func (g *pgsqlGrammar) upsert(_ *QueryBuilder, insertSQL, _ string, unique, sets []string) string {
	return onConflict(insertSQL, unique, sets)
}

func onConflict(insertSQL string, unique, sets []string) string {
	if len(sets) == 0 {
		return insertSQL + " ON CONFLICT DO NOTHING"
	}
	return insertSQL + " ON CONFLICT (" + joinComma(unique) + ") DO UPDATE SET " + joinComma(sets)
}

func (g *pgsqlGrammar) renameTable(b *QueryBuilder, oldName, newName string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(oldName) + " RENAME TO " + b.quoter.QuoteTableName(newName)
}

func (g *pgsqlGrammar) addColumn(b *QueryBuilder, table, column, typ string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " ADD COLUMN " + b.quoter.QuoteColumnName(column) + " " + typ
}

func (g *pgsqlGrammar) alterColumn(b *QueryBuilder, table, column, typ string) (string, error) {
	prefix := "ALTER TABLE " + b.quoter.QuoteTableName(table) + " ALTER COLUMN " + b.quoter.QuoteColumnName(column)
	if pgsqlAlterRegex.MatchString(typ) {
		return prefix + " " + typ, nil
	}
	return prefix + " TYPE " + typ, nil
}

func (g *pgsqlGrammar) dropIndex(b *QueryBuilder, name, _ string) string {
	return "DROP INDEX " + b.quoter.QuoteTableName(name)
}

func (g *pgsqlGrammar) checkIntegrity(ctx context.Context, b *QueryBuilder, check bool, schemaName, table string) (string, error) {
	mode := "DISABLE"
	if check {
		mode = "ENABLE"
	}
	if schemaName == "" {
		schemaName = "public"
	}
	tables := []string{table}
	if table == "" {
		names, err := b.schema.GetTableNames(ctx, schemaName, false)
		if err != nil {
			return "", err
		}
		tables = names
	}
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		stmts = append(stmts, "ALTER TABLE "+b.quoter.QuoteTableName(schemaName+"."+t)+" "+mode+" TRIGGER ALL")
	}
	return strings.Join(stmts, "; "), nil
}

func (g *pgsqlGrammar) resetSequence(_ context.Context, b *QueryBuilder, ts *schema.TableSchema, table string, value *int64) (string, error) {
	if ts.SequenceName == "" {
		return "", dberr.Argument("table %q has no sequence", table)
	}
	var next string
	if value != nil {
		next = strconv.FormatInt(*value, 10)
	} else {
		if len(ts.PrimaryKey) == 0 {
			return "", dberr.Argument("table %q has no primary key", table)
		}
		next = "(SELECT COALESCE(MAX(" + b.quoter.QuoteColumnName(ts.PrimaryKey[0]) + "),0) FROM " +
			b.quoter.QuoteTableName(table) + ")+1"
	}
	return "SELECT SETVAL('" + b.quoter.QuoteTableName(ts.SequenceName) + "'," + next + ",false)", nil
}
