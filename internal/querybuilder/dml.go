package querybuilder

import (
	"context"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/schema"
)

// Insert builds an INSERT statement. columns is *Columns or map[string]any
// (values are typecast through the table's column metadata when it is known),
// a *Query for INSERT ... SELECT, or nil for a row of default values.
//
// Example:
//
//	sql, params, err := b.Insert(ctx, "user", querybuilder.Cols("name", "Sam", "age", 30), nil)
//	// INSERT INTO "user" ("name", "age") VALUES (:qp0, :qp1)
func (b *QueryBuilder) Insert(ctx context.Context, table string, columns any, params Params) (string, Params, error) {
	out := Params{}
	out.Merge(params)
	sql, err := b.insert(ctx, table, columns, out)
	if err != nil {
		return "", nil, err
	}
	return sql, out, nil
}

func (b *QueryBuilder) insert(ctx context.Context, table string, columns any, params Params) (string, error) {
	names, placeholders, values, err := b.prepareInsertValues(ctx, table, columns, params)
	if err != nil {
		return "", err
	}
	sql := "INSERT INTO " + b.quoter.QuoteTableName(table)
	if len(names) > 0 {
		sql += " (" + strings.Join(names, ", ") + ")"
	}
	if len(placeholders) > 0 {
		return sql + " VALUES (" + strings.Join(placeholders, ", ") + ")", nil
	}
	return sql + values, nil
}

func (b *QueryBuilder) prepareInsertValues(ctx context.Context, table string, columns any, params Params) (names, placeholders []string, values string, err error) {
	if q, ok := columns.(*Query); ok {
		return b.prepareInsertSelect(q, params)
	}
	cols, ok := toColumns(columns)
	if columns != nil && !ok {
		return nil, nil, "", dberr.Argument("insert columns must be *Columns, map[string]any or *Query, got %T", columns)
	}
	if cols.Len() == 0 {
		return nil, nil, b.grammar.defaultValues(), nil
	}

	ts := b.tableSchema(ctx, table)
	for name, value := range b.normalizeColumns(table, cols).All() {
		names = append(names, b.quoter.QuoteColumnName(name))
		value = typecast(ts, name, value)
		ph, err := b.placeholder(value, params)
		if err != nil {
			return nil, nil, "", err
		}
		placeholders = append(placeholders, ph)
	}
	return names, placeholders, "", nil
}

func (b *QueryBuilder) prepareInsertSelect(q *Query, params Params) ([]string, []string, string, error) {
	selected, ok := q.selectNames()
	if !ok {
		return nil, nil, "", dberr.Argument("INSERT ... SELECT expects a query with enumerated (named) select columns")
	}
	sql, err := b.build(q, params)
	if err != nil {
		return nil, nil, "", err
	}
	names := make([]string, len(selected))
	for i, name := range selected {
		names[i] = b.quoter.QuoteColumnName(name)
	}
	return names, nil, " " + sql, nil
}

// BatchInsert builds a multi-row INSERT. rows is consumed once, lazily; empty
// rows are skipped and "" is returned when no row remains.
func (b *QueryBuilder) BatchInsert(ctx context.Context, table string, columns []string, rows iter.Seq[[]any], params Params) (string, Params, error) {
	out := Params{}
	out.Merge(params)

	ts := b.tableSchema(ctx, table)
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = b.normalizeName(table, c)
	}

	var values []string
	for row := range rows {
		if len(row) == 0 {
			continue
		}
		vs := make([]string, 0, len(row))
		for i, v := range row {
			if i < len(names) {
				v = typecast(ts, names[i], v)
			}
			if v == nil {
				vs = append(vs, "NULL")
				continue
			}
			ph, err := b.placeholder(v, out)
			if err != nil {
				return "", nil, err
			}
			vs = append(vs, ph)
		}
		values = append(values, "("+strings.Join(vs, ", ")+")")
	}
	if len(values) == 0 {
		return "", out, nil
	}

	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = b.quoter.QuoteColumnName(name)
	}
	sql := "INSERT INTO " + b.quoter.QuoteTableName(table)
	if len(quoted) > 0 {
		sql += " (" + strings.Join(quoted, ", ") + ")"
	}
	return sql + " VALUES " + strings.Join(values, ", "), out, nil
}

// Update builds an UPDATE statement for the given columns and condition.
func (b *QueryBuilder) Update(ctx context.Context, table string, columns any, condition any, params Params) (string, Params, error) {
	out := Params{}
	out.Merge(params)

	cols, ok := toColumns(columns)
	if !ok || cols.Len() == 0 {
		return "", nil, dberr.Argument("update requires at least one column")
	}
	sets, err := b.prepareUpdateSets(ctx, table, cols, out)
	if err != nil {
		return "", nil, err
	}
	sql := "UPDATE " + b.quoter.QuoteTableName(table) + " SET " + strings.Join(sets, ", ")
	where, err := b.buildWhere(condition, out)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sql += " " + where
	}
	return sql, out, nil
}

func (b *QueryBuilder) prepareUpdateSets(ctx context.Context, table string, cols *Columns, params Params) ([]string, error) {
	ts := b.tableSchema(ctx, table)
	sets := make([]string, 0, cols.Len())
	for name, value := range b.normalizeColumns(table, cols).All() {
		value = typecast(ts, name, value)
		ph, err := b.placeholder(value, params)
		if err != nil {
			return nil, err
		}
		sets = append(sets, b.quoter.QuoteColumnName(name)+"="+ph)
	}
	return sets, nil
}

// Delete builds a DELETE statement.
func (b *QueryBuilder) Delete(table string, condition any, params Params) (string, Params, error) {
	out := Params{}
	out.Merge(params)
	sql := "DELETE FROM " + b.quoter.QuoteTableName(table)
	where, err := b.buildWhere(condition, out)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sql += " " + where
	}
	return sql, out, nil
}

// Upsert builds an insert-or-update statement.
//
// The conflict target is every unique constraint of the table (primary key,
// unique indexes, unique constraints) whose columns are all present in
// insertColumns. Without such a constraint a plain INSERT is returned.
//
// updateColumns selects the update on conflict:
//   - true updates every inserted column that is not part of a matched unique
//     constraint, with the inserted value;
//   - false only ignores the conflicting row;
//   - *Columns or map[string]any sets exactly those columns.
//
// When true leaves no column to update the statement degrades to ignoring the
// conflict, as with false.
func (b *QueryBuilder) Upsert(ctx context.Context, table string, insertColumns any, updateColumns any, params Params) (string, Params, error) {
	if !b.grammar.supportsUpsert() {
		return "", nil, dberr.NotSupported(b.dialect.Name(), "upsert")
	}
	out := Params{}
	out.Merge(params)

	insertNames, err := b.insertColumnNames(table, insertColumns)
	if err != nil {
		return "", nil, err
	}
	uniqueNames, err := b.uniqueColumnNames(ctx, table, insertNames)
	if err != nil {
		return "", nil, err
	}

	insertSQL, err := b.insert(ctx, table, insertColumns, out)
	if err != nil {
		return "", nil, err
	}
	if len(uniqueNames) == 0 {
		return insertSQL, out, nil
	}

	var updates *Columns
	switch u := updateColumns.(type) {
	case bool:
		if u {
			updates = &Columns{}
			for _, name := range insertNames {
				if !slices.Contains(uniqueNames, name) {
					updates.Set(name, b.grammar.insertedValue(b, name))
				}
			}
		}
	default:
		cols, ok := toColumns(updateColumns)
		if !ok {
			return "", nil, dberr.Argument("upsert update columns must be bool, *Columns or map[string]any, got %T", updateColumns)
		}
		updates = cols
	}

	var sets []string
	if updates.Len() > 0 {
		sets, err = b.prepareUpdateSets(ctx, table, updates, out)
		if err != nil {
			return "", nil, err
		}
	}

	quotedUnique := make([]string, len(uniqueNames))
	for i, name := range uniqueNames {
		quotedUnique[i] = b.quoter.QuoteColumnName(name)
	}
	return b.grammar.upsert(b, insertSQL, table, quotedUnique, sets), out, nil
}

func (b *QueryBuilder) insertColumnNames(table string, columns any) ([]string, error) {
	if q, ok := columns.(*Query); ok {
		names, ok := q.selectNames()
		if !ok {
			return nil, dberr.Argument("INSERT ... SELECT expects a query with enumerated (named) select columns")
		}
		return names, nil
	}
	cols, ok := toColumns(columns)
	if columns != nil && !ok {
		return nil, dberr.Argument("insert columns must be *Columns, map[string]any or *Query, got %T", columns)
	}
	return b.normalizeColumns(table, cols).Names(), nil
}

// uniqueColumnNames returns the columns of every unique constraint of table
// covered by columns, in constraint order without duplicates.
func (b *QueryBuilder) uniqueColumnNames(ctx context.Context, table string, columns []string) ([]string, error) {
	if b.schema.DB() == nil {
		return nil, dberr.Configuration("upsert requires a database connection to read unique constraints of %q", table)
	}
	var constraints [][]string

	pk, err := b.schema.GetTablePrimaryKey(ctx, table, false)
	if err != nil {
		return nil, err
	}
	if pk != nil {
		constraints = append(constraints, pk.ColumnNames)
	}
	indexes, err := b.schema.GetTableIndexes(ctx, table, false)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if idx.IsUnique {
			constraints = append(constraints, idx.ColumnNames)
		}
	}
	uniques, err := b.schema.GetTableUniques(ctx, table, false)
	if err != nil {
		return nil, err
	}
	for _, u := range uniques {
		constraints = append(constraints, u.ColumnNames)
	}

	seen := make(map[string]bool, len(constraints))
	var names []string
	for _, c := range constraints {
		if len(c) == 0 {
			continue
		}
		sorted := slices.Clone(c)
		sort.Strings(sorted)
		key := strings.Join(sorted, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true

		covered := true
		for _, name := range c {
			if !slices.Contains(columns, name) {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}
		for _, name := range c {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// normalizeColumns strips a redundant qualifier naming table itself from column names.
func (b *QueryBuilder) normalizeColumns(table string, cols *Columns) *Columns {
	out := &Columns{}
	for name, value := range cols.All() {
		out.Set(b.normalizeName(table, name), value)
	}
	return out
}

func (b *QueryBuilder) normalizeName(table, name string) string {
	pos := strings.LastIndex(name, ".")
	if pos < 0 {
		return name
	}
	prefix := b.schema.GetRawTableName(name[:pos])
	target := b.schema.GetRawTableName(table)
	if !slices.Equal(b.quoter.TableNameParts(prefix), b.quoter.TableNameParts(target)) {
		return name
	}
	return b.quoter.UnquoteSimpleColumnName(name[pos+1:])
}

func typecast(ts *schema.TableSchema, name string, value any) any {
	if ts == nil {
		return value
	}
	if c := ts.Column(name); c != nil {
		return c.DBTypecast(value)
	}
	return value
}
