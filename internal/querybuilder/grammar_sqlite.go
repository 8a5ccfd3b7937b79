package querybuilder

import (
	"context"
	"strconv"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/schema"
)

type sqliteGrammar struct {
	baseGrammar
}

func (g *sqliteGrammar) paginate(orderBy, limit, offset, sep string) string {
	if limit == "" && offset != "" {
		limit = "9223372036854775807"
	}
	return g.baseGrammar.paginate(orderBy, limit, offset, sep)
}

func (g *sqliteGrammar) expandCompositeIn() bool { return true }

func (g *sqliteGrammar) likeEscaping() (map[string]string, string) {
	return defaultLikeEscaping, ` ESCAPE '\'`
}

func (g *sqliteGrammar) supportsUpsert() bool { return true }

func (g *sqliteGrammar) insertedValue(b *QueryBuilder, column string) Expression {
	return NewExp("EXCLUDED." + b.quoter.QuoteColumnName(column))
}

func (g *sqliteGrammar) upsert(_ *QueryBuilder, insertSQL, _ string, unique, sets []string) string {
	return onConflict(insertSQL, unique, sets)
}

func (g *sqliteGrammar) renameTable(b *QueryBuilder, oldName, newName string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(oldName) + " RENAME TO " + b.quoter.QuoteTableName(newName)
}

func (g *sqliteGrammar) truncateTable(b *QueryBuilder, table string) string {
	return "DELETE FROM " + b.quoter.QuoteTableName(table)
}

func (g *sqliteGrammar) alterColumn(*QueryBuilder, string, string, string) (string, error) {
	return "", dberr.NotSupported(g.name, "ALTER COLUMN")
}

func (g *sqliteGrammar) alterConstraints() bool { return false }

func (g *sqliteGrammar) dropPrimaryKey(*QueryBuilder, string, string) (string, error) {
	return "", dberr.NotSupported(g.name, "dropping a primary key")
}

func (g *sqliteGrammar) dropForeignKey(*QueryBuilder, string, string) (string, error) {
	return "", dberr.NotSupported(g.name, "dropping a foreign key")
}

func (g *sqliteGrammar) dropIndex(b *QueryBuilder, name, _ string) string {
	return "DROP INDEX " + b.quoter.QuoteTableName(name)
}

func (g *sqliteGrammar) dropUnique(*QueryBuilder, string, string) (string, error) {
	return "", dberr.NotSupported(g.name, "dropping a unique constraint")
}

func (g *sqliteGrammar) dropCheck(*QueryBuilder, string, string) (string, error) {
	return "", dberr.NotSupported(g.name, "dropping a check constraint")
}

func (g *sqliteGrammar) commentOnColumn(*QueryBuilder, string, string, *string) (string, error) {
	return "", dberr.NotSupported(g.name, "comments")
}

func (g *sqliteGrammar) commentOnTable(*QueryBuilder, string, *string) (string, error) {
	return "", dberr.NotSupported(g.name, "comments")
}

func (g *sqliteGrammar) checkIntegrity(_ context.Context, _ *QueryBuilder, check bool, _, _ string) (string, error) {
	if check {
		return "PRAGMA foreign_keys=1", nil
	}
	return "PRAGMA foreign_keys=0", nil
}

func (g *sqliteGrammar) resetSequence(_ context.Context, b *QueryBuilder, ts *schema.TableSchema, table string, value *int64) (string, error) {
	var seq string
	if value != nil {
		seq = "'" + strconv.FormatInt(*value-1, 10) + "'"
	} else {
		if len(ts.PrimaryKey) == 0 {
			return "", dberr.Argument("table %q has no primary key", table)
		}
		seq = "(SELECT MAX(" + b.quoter.QuoteColumnName(ts.PrimaryKey[0]) + ") FROM " + b.quoter.QuoteTableName(table) + ")"
	}
	return "UPDATE sqlite_sequence SET seq=" + seq + " WHERE name=" + b.quoter.QuoteValue(ts.Name), nil
}
