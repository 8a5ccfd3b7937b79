package querybuilder

import (
	"context"
	"strings"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/dialects"
	"github.com/coregx/dbal/internal/schema"
)

// grammar holds the SQL forms that differ between dialects. baseGrammar
// renders the common forms; each dialect embeds it and overrides what it
// spells differently.
type grammar interface {
	registerBuilders(r *registry)

	// paginate renders ORDER BY, LIMIT and OFFSET. Empty arguments are unset.
	paginate(orderBy, limit, offset, sep string) string
	expandCompositeIn() bool
	likeEscaping() (replacements map[string]string, escapeSQL string)
	jsonPlaceholder(placeholder, typ string) string
	defaultValues() string

	supportsUpsert() bool
	insertedValue(b *QueryBuilder, column string) Expression
	upsert(b *QueryBuilder, insertSQL, table string, unique, sets []string) string

	renameTable(b *QueryBuilder, oldName, newName string) string
	truncateTable(b *QueryBuilder, table string) string
	addColumn(b *QueryBuilder, table, column, typ string) string
	alterColumn(b *QueryBuilder, table, column, typ string) (string, error)
	renameColumn(b *QueryBuilder, table, oldName, newName string) string
	alterConstraints() bool
	dropPrimaryKey(b *QueryBuilder, name, table string) (string, error)
	dropForeignKey(b *QueryBuilder, name, table string) (string, error)
	dropIndex(b *QueryBuilder, name, table string) string
	dropUnique(b *QueryBuilder, name, table string) (string, error)
	dropCheck(b *QueryBuilder, name, table string) (string, error)
	commentOnColumn(b *QueryBuilder, table, column string, comment *string) (string, error)
	commentOnTable(b *QueryBuilder, table string, comment *string) (string, error)
	checkIntegrity(ctx context.Context, b *QueryBuilder, check bool, schemaName, table string) (string, error)
	resetSequence(ctx context.Context, b *QueryBuilder, ts *schema.TableSchema, table string, value *int64) (string, error)
}

func grammarFor(d dialects.Dialect) grammar {
	base := baseGrammar{name: d.Name()}
	switch d.Name() {
	case "mysql":
		return &mysqlGrammar{base}
	case "pgsql":
		return &pgsqlGrammar{base}
	case "sqlite":
		return &sqliteGrammar{base}
	case "sqlsrv":
		return &mssqlGrammar{base}
	case "oci":
		return &oracleGrammar{base}
	}
	return &base
}

var defaultLikeEscaping = map[string]string{
	"%": `\%`,
	"_": `\_`,
	`\`: `\\`,
}

type baseGrammar struct {
	name string
}

func (g *baseGrammar) registerBuilders(*registry) {}

func (g *baseGrammar) paginate(orderBy, limit, offset, sep string) string {
	var parts []string
	if orderBy != "" {
		parts = append(parts, orderBy)
	}
	var lo []string
	if limit != "" {
		lo = append(lo, "LIMIT "+limit)
	}
	if offset != "" {
		lo = append(lo, "OFFSET "+offset)
	}
	if len(lo) > 0 {
		parts = append(parts, strings.Join(lo, " "))
	}
	return strings.Join(parts, sep)
}

func (g *baseGrammar) expandCompositeIn() bool { return false }

func (g *baseGrammar) likeEscaping() (map[string]string, string) {
	return defaultLikeEscaping, ""
}

func (g *baseGrammar) jsonPlaceholder(placeholder, _ string) string { return placeholder }

func (g *baseGrammar) defaultValues() string { return " DEFAULT VALUES" }

func (g *baseGrammar) supportsUpsert() bool { return false }

func (g *baseGrammar) insertedValue(*QueryBuilder, string) Expression { return nil }

func (g *baseGrammar) upsert(_ *QueryBuilder, insertSQL, _ string, _, _ []string) string {
	return insertSQL
}

func (g *baseGrammar) renameTable(b *QueryBuilder, oldName, newName string) string {
	return "RENAME TABLE " + b.quoter.QuoteTableName(oldName) + " TO " + b.quoter.QuoteTableName(newName)
}

func (g *baseGrammar) truncateTable(b *QueryBuilder, table string) string {
	return "TRUNCATE TABLE " + b.quoter.QuoteTableName(table)
}

func (g *baseGrammar) addColumn(b *QueryBuilder, table, column, typ string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " ADD " + b.quoter.QuoteColumnName(column) + " " + typ
}

func (g *baseGrammar) alterColumn(b *QueryBuilder, table, column, typ string) (string, error) {
	c := b.quoter.QuoteColumnName(column)
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " CHANGE " + c + " " + c + " " + typ, nil
}

func (g *baseGrammar) renameColumn(b *QueryBuilder, table, oldName, newName string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " RENAME COLUMN " +
		b.quoter.QuoteColumnName(oldName) + " TO " + b.quoter.QuoteColumnName(newName)
}

func (g *baseGrammar) alterConstraints() bool { return true }

func (g *baseGrammar) dropConstraint(b *QueryBuilder, name, table string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " DROP CONSTRAINT " + b.quoter.QuoteColumnName(name)
}

func (g *baseGrammar) dropPrimaryKey(b *QueryBuilder, name, table string) (string, error) {
	return g.dropConstraint(b, name, table), nil
}

func (g *baseGrammar) dropForeignKey(b *QueryBuilder, name, table string) (string, error) {
	return g.dropConstraint(b, name, table), nil
}

func (g *baseGrammar) dropIndex(b *QueryBuilder, name, table string) string {
	return "DROP INDEX " + b.quoter.QuoteTableName(name) + " ON " + b.quoter.QuoteTableName(table)
}

func (g *baseGrammar) dropUnique(b *QueryBuilder, name, table string) (string, error) {
	return g.dropConstraint(b, name, table), nil
}

func (g *baseGrammar) dropCheck(b *QueryBuilder, name, table string) (string, error) {
	return g.dropConstraint(b, name, table), nil
}

func (g *baseGrammar) commentOnColumn(b *QueryBuilder, table, column string, comment *string) (string, error) {
	return "COMMENT ON COLUMN " + b.quoter.QuoteTableName(table) + "." + b.quoter.QuoteColumnName(column) +
		" IS " + commentLiteral(b, comment), nil
}

func (g *baseGrammar) commentOnTable(b *QueryBuilder, table string, comment *string) (string, error) {
	return "COMMENT ON TABLE " + b.quoter.QuoteTableName(table) + " IS " + commentLiteral(b, comment), nil
}

func (g *baseGrammar) checkIntegrity(context.Context, *QueryBuilder, bool, string, string) (string, error) {
	return "", dberr.NotSupported(g.name, "integrity check toggling")
}

func (g *baseGrammar) resetSequence(context.Context, *QueryBuilder, *schema.TableSchema, string, *int64) (string, error) {
	return "", dberr.NotSupported(g.name, "sequence reset")
}

func commentLiteral(b *QueryBuilder, comment *string) string {
	if comment == nil {
		return "NULL"
	}
	return b.quoter.QuoteValue(*comment)
}
