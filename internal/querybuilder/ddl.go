package querybuilder

import (
	"context"
	"regexp"
	"strings"

	"github.com/coregx/dbal/internal/dberr"
)

var (
	columnTypeSizeRegex = regexp.MustCompile(`^(\w+)\((.+?)\)(.*)$`)
	columnTypeWordRegex = regexp.MustCompile(`^(\w+)\s+`)
	parenRegex          = regexp.MustCompile(`\(.+\)`)
	leadingWordRegex    = regexp.MustCompile(`^\w+`)
)

// GetColumnType maps an abstract column type to the dialect's physical type.
// A size or trailing modifiers carry over: with MySQL, "string(32) NOT NULL"
// becomes "varchar(32) NOT NULL" and "integer unsigned" becomes
// "int(11) unsigned". Unknown types are returned unchanged.
func (b *QueryBuilder) GetColumnType(typ string) string {
	if t, ok := b.typeMap[typ]; ok {
		return t
	}
	if m := columnTypeSizeRegex.FindStringSubmatch(typ); m != nil {
		if t, ok := b.typeMap[m[1]]; ok {
			if parenRegex.MatchString(t) {
				return parenRegex.ReplaceAllLiteralString(t, "("+m[2]+")") + m[3]
			}
			return t + m[3]
		}
		return typ
	}
	if m := columnTypeWordRegex.FindStringSubmatch(typ); m != nil {
		if t, ok := b.typeMap[m[1]]; ok {
			return leadingWordRegex.ReplaceAllLiteralString(typ, t)
		}
	}
	return typ
}

// CreateTable builds a CREATE TABLE statement. Each column value is an
// abstract or physical type string; a column with a nil value is copied
// verbatim as a table constraint line, e.g. Cols("PRIMARY KEY (a, b)", nil).
func (b *QueryBuilder) CreateTable(table string, columns *Columns, options string) (string, error) {
	lines := make([]string, 0, columns.Len())
	for name, v := range columns.All() {
		switch typ := v.(type) {
		case nil:
			lines = append(lines, "\t"+name)
		case string:
			lines = append(lines, "\t"+b.quoter.QuoteColumnName(name)+" "+b.GetColumnType(typ))
		default:
			return "", dberr.Argument("column %q: type must be a string, got %T", name, v)
		}
	}
	sql := "CREATE TABLE " + b.quoter.QuoteTableName(table) + " (\n" + strings.Join(lines, ",\n") + "\n)"
	if options != "" {
		sql += " " + options
	}
	return sql, nil
}

// DropTable builds a DROP TABLE statement.
func (b *QueryBuilder) DropTable(table string) string {
	return "DROP TABLE " + b.quoter.QuoteTableName(table)
}

// RenameTable builds a statement renaming a table.
func (b *QueryBuilder) RenameTable(oldName, newName string) string {
	return b.grammar.renameTable(b, oldName, newName)
}

// TruncateTable builds a statement removing every row of a table.
func (b *QueryBuilder) TruncateTable(table string) string {
	return b.grammar.truncateTable(b, table)
}

// AddColumn builds a statement adding a column of the given (abstract) type.
func (b *QueryBuilder) AddColumn(table, column, typ string) string {
	return b.grammar.addColumn(b, table, column, b.GetColumnType(typ))
}

// DropColumn builds a statement dropping a column.
func (b *QueryBuilder) DropColumn(table, column string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " DROP COLUMN " + b.quoter.QuoteColumnName(column)
}

// RenameColumn builds a statement renaming a column.
func (b *QueryBuilder) RenameColumn(table, oldName, newName string) string {
	return b.grammar.renameColumn(b, table, oldName, newName)
}

// AlterColumn builds a statement changing the type of a column.
func (b *QueryBuilder) AlterColumn(table, column, typ string) (string, error) {
	return b.grammar.alterColumn(b, table, column, b.GetColumnType(typ))
}

// AddPrimaryKey builds a statement adding a named primary key.
func (b *QueryBuilder) AddPrimaryKey(name, table string, columns []string) (string, error) {
	if !b.grammar.alterConstraints() {
		return "", dberr.NotSupported(b.dialect.Name(), "adding a primary key to an existing table")
	}
	return b.addConstraint(name, table) + " PRIMARY KEY (" + b.columnList(columns) + ")", nil
}

// DropPrimaryKey builds a statement dropping a primary key.
func (b *QueryBuilder) DropPrimaryKey(name, table string) (string, error) {
	return b.grammar.dropPrimaryKey(b, name, table)
}

// AddForeignKey builds a statement adding a foreign key. onDelete and
// onUpdate hold the referential action (CASCADE, SET NULL...) or "".
func (b *QueryBuilder) AddForeignKey(name, table string, columns []string, refTable string, refColumns []string, onDelete, onUpdate string) (string, error) {
	if !b.grammar.alterConstraints() {
		return "", dberr.NotSupported(b.dialect.Name(), "adding a foreign key to an existing table")
	}
	sql := b.addConstraint(name, table) + " FOREIGN KEY (" + b.columnList(columns) + ")" +
		" REFERENCES " + b.quoter.QuoteTableName(refTable) + " (" + b.columnList(refColumns) + ")"
	if onDelete != "" {
		sql += " ON DELETE " + onDelete
	}
	if onUpdate != "" {
		sql += " ON UPDATE " + onUpdate
	}
	return sql, nil
}

// DropForeignKey builds a statement dropping a foreign key.
func (b *QueryBuilder) DropForeignKey(name, table string) (string, error) {
	return b.grammar.dropForeignKey(b, name, table)
}

// CreateIndex builds a CREATE [UNIQUE] INDEX statement.
func (b *QueryBuilder) CreateIndex(name, table string, columns []string, unique bool) string {
	kw := "CREATE INDEX "
	if unique {
		kw = "CREATE UNIQUE INDEX "
	}
	return kw + b.quoter.QuoteTableName(name) + " ON " + b.quoter.QuoteTableName(table) + " (" + b.columnList(columns) + ")"
}

// DropIndex builds a DROP INDEX statement.
func (b *QueryBuilder) DropIndex(name, table string) string {
	return b.grammar.dropIndex(b, name, table)
}

// AddUnique builds a statement adding a unique constraint.
func (b *QueryBuilder) AddUnique(name, table string, columns []string) (string, error) {
	if !b.grammar.alterConstraints() {
		return "", dberr.NotSupported(b.dialect.Name(), "adding a unique constraint to an existing table")
	}
	return b.addConstraint(name, table) + " UNIQUE (" + b.columnList(columns) + ")", nil
}

// DropUnique builds a statement dropping a unique constraint.
func (b *QueryBuilder) DropUnique(name, table string) (string, error) {
	return b.grammar.dropUnique(b, name, table)
}

// AddCheck builds a statement adding a check constraint.
func (b *QueryBuilder) AddCheck(name, table, expression string) (string, error) {
	if !b.grammar.alterConstraints() {
		return "", dberr.NotSupported(b.dialect.Name(), "adding a check constraint to an existing table")
	}
	return b.addConstraint(name, table) + " CHECK (" + b.quoter.QuoteSQL(expression) + ")", nil
}

// DropCheck builds a statement dropping a check constraint.
func (b *QueryBuilder) DropCheck(name, table string) (string, error) {
	return b.grammar.dropCheck(b, name, table)
}

// AddCommentOnColumn builds a statement setting a column comment.
func (b *QueryBuilder) AddCommentOnColumn(table, column, comment string) (string, error) {
	return b.grammar.commentOnColumn(b, table, column, &comment)
}

// AddCommentOnTable builds a statement setting a table comment.
func (b *QueryBuilder) AddCommentOnTable(table, comment string) (string, error) {
	return b.grammar.commentOnTable(b, table, &comment)
}

// DropCommentFromColumn builds a statement removing a column comment.
func (b *QueryBuilder) DropCommentFromColumn(table, column string) (string, error) {
	return b.grammar.commentOnColumn(b, table, column, nil)
}

// DropCommentFromTable builds a statement removing a table comment.
func (b *QueryBuilder) DropCommentFromTable(table string) (string, error) {
	return b.grammar.commentOnTable(b, table, nil)
}

// CheckIntegrity builds a statement enabling or disabling foreign key checks,
// for one table or every table of schemaName where the dialect works per table.
func (b *QueryBuilder) CheckIntegrity(ctx context.Context, check bool, schemaName, table string) (string, error) {
	return b.grammar.checkIntegrity(ctx, b, check, schemaName, table)
}

// ResetSequence builds a statement resetting the sequence or auto-increment
// counter of a table so the next generated key is value. A nil value resets it
// to follow the current maximum primary key.
func (b *QueryBuilder) ResetSequence(ctx context.Context, table string, value *int64) (string, error) {
	ts, err := b.schema.GetTableSchema(ctx, table, false)
	if err != nil {
		return "", err
	}
	if ts == nil {
		return "", dberr.Argument("table not found: %s", table)
	}
	return b.grammar.resetSequence(ctx, b, ts, table, value)
}

func (b *QueryBuilder) addConstraint(name, table string) string {
	return "ALTER TABLE " + b.quoter.QuoteTableName(table) + " ADD CONSTRAINT " + b.quoter.QuoteColumnName(name)
}

func (b *QueryBuilder) columnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if strings.Contains(c, "(") {
			quoted[i] = c
		} else {
			quoted[i] = b.quoter.QuoteColumnName(c)
		}
	}
	return joinComma(quoted)
}

func joinComma(parts []string) string {
	return strings.Join(parts, ", ")
}
