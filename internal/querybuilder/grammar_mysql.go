package querybuilder

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/schema"
)

type mysqlGrammar struct {
	baseGrammar
}

func (g *mysqlGrammar) paginate(orderBy, limit, offset, sep string) string {
	if limit == "" && offset != "" {
		// MySQL has no OFFSET without LIMIT.
		limit = offset + ", 18446744073709551615"
		offset = ""
	}
	return g.baseGrammar.paginate(orderBy, limit, offset, sep)
}

func (g *mysqlGrammar) jsonPlaceholder(placeholder, _ string) string {
	return "CAST(" + placeholder + " AS JSON)"
}

func (g *mysqlGrammar) defaultValues() string { return " () VALUES ()" }

func (g *mysqlGrammar) supportsUpsert() bool { return true }

func (g *mysqlGrammar) insertedValue(b *QueryBuilder, column string) Expression {
	return NewExp("VALUES(" + b.quoter.QuoteColumnName(column) + ")")
}

func (g *mysqlGrammar) upsert(b *QueryBuilder, insertSQL, table string, unique, sets []string) string {
	if len(sets) == 0 {
		// Assigning a unique column to itself leaves the conflicting row untouched.
		sets = []string{unique[0] + "=" + b.quoter.QuoteTableName(table) + "." + unique[0]}
	}
	return insertSQL + " ON DUPLICATE KEY UPDATE " + joinComma(sets)
}

func (g *mysqlGrammar) dropPrimaryKey(b *QueryBuilder, _, table string) (string, error) {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " DROP PRIMARY KEY", nil
}

func (g *mysqlGrammar) dropForeignKey(b *QueryBuilder, name, table string) (string, error) {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " DROP FOREIGN KEY " + b.quoter.QuoteColumnName(name), nil
}

func (g *mysqlGrammar) dropUnique(b *QueryBuilder, name, table string) (string, error) {
	return g.dropIndex(b, name, table), nil
}

func (g *mysqlGrammar) dropCheck(b *QueryBuilder, name, table string) (string, error) {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " DROP CHECK " + b.quoter.QuoteColumnName(name), nil
}

func (g *mysqlGrammar) commentOnColumn(*QueryBuilder, string, string, *string) (string, error) {
	return "", dberr.NotSupported(g.name, "column comments without a full column definition")
}

func (g *mysqlGrammar) commentOnTable(b *QueryBuilder, table string, comment *string) (string, error) {
	c := ""
	if comment != nil {
		c = *comment
	}
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " COMMENT " + b.quoter.QuoteValue(c), nil
}

func (g *mysqlGrammar) checkIntegrity(_ context.Context, _ *QueryBuilder, check bool, _, _ string) (string, error) {
	if check {
		return "SET FOREIGN_KEY_CHECKS = 1", nil
	}
	return "SET FOREIGN_KEY_CHECKS = 0", nil
}

func (g *mysqlGrammar) resetSequence(ctx context.Context, b *QueryBuilder, ts *schema.TableSchema, table string, value *int64) (string, error) {
	next := int64(1)
	if value != nil {
		next = *value
	} else {
		if len(ts.PrimaryKey) == 0 {
			return "", dberr.Argument("table %q has no primary key", table)
		}
		query := "SELECT MAX(" + b.quoter.QuoteColumnName(ts.PrimaryKey[0]) + ") FROM " + b.quoter.QuoteTableName(table)
		rows, err := b.schema.DB().QueryContext(ctx, query)
		if err != nil {
			return "", fmt.Errorf("read max primary key of %q: %w", table, err)
		}
		defer rows.Close()
		var maxID sql.NullInt64
		if rows.Next() {
			if err := rows.Scan(&maxID); err != nil {
				return "", fmt.Errorf("read max primary key of %q: %w", table, err)
			}
		}
		if err := rows.Err(); err != nil {
			return "", err
		}
		next = maxID.Int64 + 1
	}
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " AUTO_INCREMENT=" + strconv.FormatInt(next, 10), nil
}
