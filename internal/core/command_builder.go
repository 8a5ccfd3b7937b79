package core

import (
	"context"
	"iter"

	"github.com/coregx/dbal/internal/querybuilder"
)

// setDML installs a built data statement, merging its parameters.
func (cmd *Command) setDML(sql string, params querybuilder.Params, err error) *Command {
	if err != nil {
		cmd.err = err
		return cmd
	}
	cmd.SetRawSQL(sql)
	cmd.params = params
	return cmd
}

// setDDL installs a built schema statement. The table's cached metadata is
// refreshed after it executes.
func (cmd *Command) setDDL(table, sql string, err error) *Command {
	if err != nil {
		cmd.err = err
		return cmd
	}
	cmd.SetRawSQL(sql)
	cmd.refreshTable = table
	return cmd
}

func (cmd *Command) builder() *querybuilder.QueryBuilder { return cmd.conn.QueryBuilder() }

// Select compiles q into the command.
func (cmd *Command) Select(q *querybuilder.Query) *Command {
	return cmd.setDML(cmd.builder().Build(q, cmd.params))
}

// Insert prepares an INSERT statement. See querybuilder.QueryBuilder.Insert.
func (cmd *Command) Insert(ctx context.Context, table string, columns any) *Command {
	return cmd.setDML(cmd.builder().Insert(ctx, table, columns, cmd.params))
}

// BatchInsert prepares a multi-row INSERT statement.
func (cmd *Command) BatchInsert(ctx context.Context, table string, columns []string, rows iter.Seq[[]any]) *Command {
	return cmd.setDML(cmd.builder().BatchInsert(ctx, table, columns, rows, cmd.params))
}

// Update prepares an UPDATE statement.
func (cmd *Command) Update(ctx context.Context, table string, columns, condition any) *Command {
	return cmd.setDML(cmd.builder().Update(ctx, table, columns, condition, cmd.params))
}

// Upsert prepares an insert that updates or ignores rows hitting a unique
// constraint. See querybuilder.QueryBuilder.Upsert for updateColumns.
func (cmd *Command) Upsert(ctx context.Context, table string, insertColumns, updateColumns any) *Command {
	return cmd.setDML(cmd.builder().Upsert(ctx, table, insertColumns, updateColumns, cmd.params))
}

// Delete prepares a DELETE statement.
func (cmd *Command) Delete(table string, condition any) *Command {
	return cmd.setDML(cmd.builder().Delete(table, condition, cmd.params))
}

// CreateTable prepares a CREATE TABLE statement.
func (cmd *Command) CreateTable(table string, columns *querybuilder.Columns, options string) *Command {
	sql, err := cmd.builder().CreateTable(table, columns, options)
	return cmd.setDDL(table, sql, err)
}

// DropTable prepares a DROP TABLE statement.
func (cmd *Command) DropTable(table string) *Command {
	return cmd.setDDL(table, cmd.builder().DropTable(table), nil)
}

// RenameTable prepares a statement renaming a table.
func (cmd *Command) RenameTable(oldName, newName string) *Command {
	return cmd.setDDL(oldName, cmd.builder().RenameTable(oldName, newName), nil)
}

// TruncateTable prepares a statement deleting every row of a table.
func (cmd *Command) TruncateTable(table string) *Command {
	return cmd.setDDL(table, cmd.builder().TruncateTable(table), nil)
}

// AddColumn prepares a statement adding a column.
func (cmd *Command) AddColumn(table, column, typ string) *Command {
	return cmd.setDDL(table, cmd.builder().AddColumn(table, column, typ), nil)
}

// DropColumn prepares a statement dropping a column.
func (cmd *Command) DropColumn(table, column string) *Command {
	return cmd.setDDL(table, cmd.builder().DropColumn(table, column), nil)
}

// RenameColumn prepares a statement renaming a column.
func (cmd *Command) RenameColumn(table, oldName, newName string) *Command {
	return cmd.setDDL(table, cmd.builder().RenameColumn(table, oldName, newName), nil)
}

// AlterColumn prepares a statement changing a column's type.
func (cmd *Command) AlterColumn(table, column, typ string) *Command {
	sql, err := cmd.builder().AlterColumn(table, column, typ)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) AddPrimaryKey(name, table string, columns []string) *Command {
	sql, err := cmd.builder().AddPrimaryKey(name, table, columns)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) DropPrimaryKey(name, table string) *Command {
	sql, err := cmd.builder().DropPrimaryKey(name, table)
	return cmd.setDDL(table, sql, err)
}

// AddForeignKey prepares a statement adding a foreign key constraint.
func (cmd *Command) AddForeignKey(name, table string, columns []string, refTable string, refColumns []string, onDelete, onUpdate string) *Command {
	sql, err := cmd.builder().AddForeignKey(name, table, columns, refTable, refColumns, onDelete, onUpdate)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) DropForeignKey(name, table string) *Command {
	sql, err := cmd.builder().DropForeignKey(name, table)
	return cmd.setDDL(table, sql, err)
}

// CreateIndex prepares a CREATE [UNIQUE] INDEX statement.
func (cmd *Command) CreateIndex(name, table string, columns []string, unique bool) *Command {
	return cmd.setDDL(table, cmd.builder().CreateIndex(name, table, columns, unique), nil)
}

func (cmd *Command) DropIndex(name, table string) *Command {
	return cmd.setDDL(table, cmd.builder().DropIndex(name, table), nil)
}

func (cmd *Command) AddUnique(name, table string, columns []string) *Command {
	sql, err := cmd.builder().AddUnique(name, table, columns)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) DropUnique(name, table string) *Command {
	sql, err := cmd.builder().DropUnique(name, table)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) AddCheck(name, table, expression string) *Command {
	sql, err := cmd.builder().AddCheck(name, table, expression)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) DropCheck(name, table string) *Command {
	sql, err := cmd.builder().DropCheck(name, table)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) AddCommentOnColumn(table, column, comment string) *Command {
	sql, err := cmd.builder().AddCommentOnColumn(table, column, comment)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) AddCommentOnTable(table, comment string) *Command {
	sql, err := cmd.builder().AddCommentOnTable(table, comment)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) DropCommentFromColumn(table, column string) *Command {
	sql, err := cmd.builder().DropCommentFromColumn(table, column)
	return cmd.setDDL(table, sql, err)
}

func (cmd *Command) DropCommentFromTable(table string) *Command {
	sql, err := cmd.builder().DropCommentFromTable(table)
	return cmd.setDDL(table, sql, err)
}

// CheckIntegrity prepares a statement toggling foreign key checks.
func (cmd *Command) CheckIntegrity(ctx context.Context, check bool, schemaName, table string) *Command {
	sql, err := cmd.builder().CheckIntegrity(ctx, check, schemaName, table)
	if err != nil {
		cmd.err = err
		return cmd
	}
	return cmd.SetRawSQL(sql)
}

// ResetSequence prepares a statement resetting a table's key sequence. A nil
// value follows the current maximum key.
func (cmd *Command) ResetSequence(ctx context.Context, table string, value *int64) *Command {
	sql, err := cmd.builder().ResetSequence(ctx, table, value)
	if err != nil {
		cmd.err = err
		return cmd
	}
	return cmd.SetRawSQL(sql)
}
