package querybuilder

import (
	"context"
	"strconv"
	"strings"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/schema"
)

type mssqlGrammar struct {
	baseGrammar
}

var mssqlLikeEscaping = map[string]string{
	"%": "[%]",
	"_": "[_]",
	"[": "[[]",
	"]": "[]]",
	`\`: `[\]`,
}

func (g *mssqlGrammar) paginate(orderBy, limit, offset, sep string) string {
	if limit == "" && offset == "" {
		return orderBy
	}
	return offsetFetch(orderBy, "ORDER BY (SELECT NULL)", limit, offset, sep)
}

// offsetFetch renders the SQL:2008 OFFSET ... FETCH form. fallbackOrder is
// used when the query has no ORDER BY and the dialect requires one.
func offsetFetch(orderBy, fallbackOrder, limit, offset, sep string) string {
	if orderBy == "" {
		orderBy = fallbackOrder
	}
	var parts []string
	if orderBy != "" {
		parts = append(parts, orderBy)
	}
	if offset == "" {
		offset = "0"
	}
	parts = append(parts, "OFFSET "+offset+" ROWS")
	if limit != "" {
		parts = append(parts, "FETCH NEXT "+limit+" ROWS ONLY")
	}
	return strings.Join(parts, sep)
}

func (g *mssqlGrammar) expandCompositeIn() bool { return true }

func (g *mssqlGrammar) likeEscaping() (map[string]string, string) {
	return mssqlLikeEscaping, ""
}

func (g *mssqlGrammar) renameTable(b *QueryBuilder, oldName, newName string) string {
	return "sp_rename " + b.quoter.QuoteTableName(oldName) + ", " + b.quoter.QuoteTableName(newName)
}

func (g *mssqlGrammar) alterColumn(b *QueryBuilder, table, column, typ string) (string, error) {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " ALTER COLUMN " + b.quoter.QuoteColumnName(column) + " " + typ, nil
}

func (g *mssqlGrammar) renameColumn(b *QueryBuilder, table, oldName, newName string) string {
	return "sp_rename " + b.quoter.QuoteValue(table+"."+oldName) + ", " + b.quoter.QuoteColumnName(newName) + ", 'COLUMN'"
}

func (g *mssqlGrammar) commentOnColumn(*QueryBuilder, string, string, *string) (string, error) {
	return "", dberr.NotSupported(g.name, "comments")
}

func (g *mssqlGrammar) commentOnTable(*QueryBuilder, string, *string) (string, error) {
	return "", dberr.NotSupported(g.name, "comments")
}

func (g *mssqlGrammar) checkIntegrity(_ context.Context, b *QueryBuilder, check bool, schemaName, table string) (string, error) {
	if table == "" {
		return "", dberr.Argument("sqlsrv integrity toggling requires a table name")
	}
	if schemaName != "" {
		table = schemaName + "." + table
	}
	if check {
		return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " WITH CHECK CHECK CONSTRAINT ALL", nil
	}
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " NOCHECK CONSTRAINT ALL", nil
}

func (g *mssqlGrammar) resetSequence(_ context.Context, b *QueryBuilder, _ *schema.TableSchema, table string, value *int64) (string, error) {
	sql := "DBCC CHECKIDENT (" + b.quoter.QuoteValue(table) + ", RESEED"
	if value != nil {
		sql += ", " + strconv.FormatInt(*value, 10)
	}
	return sql + ")", nil
}
