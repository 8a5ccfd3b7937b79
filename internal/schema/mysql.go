package schema

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/coregx/dbal/internal/dialects"
)

// mysqlLoader reads metadata through SHOW statements and information_schema.
type mysqlLoader struct{}

var mysqlCurrentTimestamp = regexp.MustCompile(`(?i)^current_timestamp(?:\((\d*)\))?$`)

func (l *mysqlLoader) FindTableNames(ctx context.Context, s *Schema, schemaName string) ([]string, error) {
	query := "SHOW TABLES"
	if schemaName != "" {
		query += " FROM " + s.Quoter().QuoteSimpleTableName(schemaName)
	}
	names, err := queryColumn(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	return names, nil
}

func (l *mysqlLoader) FindSchemaNames(ctx context.Context, s *Schema) ([]string, error) {
	const query = "SELECT schema_name FROM information_schema.schemata " +
		"WHERE schema_name NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')"
	names, err := queryColumn(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	return names, nil
}

// tableRef splits name into schema and table, and returns the schema condition
// for information_schema queries.
func (l *mysqlLoader) tableRef(s *Schema, name string) (schemaName, table, cond string, args []any) {
	parts := s.Quoter().TableNameParts(name)
	table = parts[len(parts)-1]
	if len(parts) > 1 {
		schemaName = parts[0]
		return schemaName, table, "= ?", []any{schemaName, table}
	}
	return "", table, "= DATABASE()", []any{table}
}

func (l *mysqlLoader) LoadTableSchema(ctx context.Context, s *Schema, name string) (*TableSchema, error) {
	query := "SHOW FULL COLUMNS FROM " + s.Quoter().QuoteTableName(name)
	rows, err := queryMaps(ctx, s.DB(), query)
	if err != nil {
		// ER_NO_SUCH_TABLE
		if s.Dialect().SQLState(err) == "42S02" {
			return nil, nil
		}
		return nil, s.ConvertError(err, query)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	schemaName, tableName, _, _ := l.tableRef(s, name)
	table := &TableSchema{Name: tableName, SchemaName: schemaName, FullName: name}
	for _, row := range rows {
		c := l.loadColumnSchema(s, row)
		table.Columns = append(table.Columns, c)
		if c.IsPrimaryKey {
			table.PrimaryKey = append(table.PrimaryKey, c.Name)
		}
	}

	fks, err := l.LoadTableForeignKeys(ctx, s, name)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			Name:           fk.Name,
			ForeignTable:   fk.ForeignTableName,
			Columns:        fk.ColumnNames,
			ForeignColumns: fk.ForeignColumns,
		})
	}
	return table, nil
}

func (l *mysqlLoader) loadColumnSchema(s *Schema, info map[string]any) *ColumnSchema {
	c := s.NewColumn(asString(info["field"]))
	c.AllowNull = asString(info["null"]) == "YES"
	c.IsPrimaryKey = strings.Contains(asString(info["key"]), "PRI")
	c.AutoIncrement = strings.Contains(strings.ToLower(asString(info["extra"])), "auto_increment")
	c.Comment = asString(info["comment"])
	c.DBType = asString(info["type"])
	c.Unsigned = strings.Contains(strings.ToLower(c.DBType), "unsigned")
	parseDBType(c, physicalTypes)
	c.GoType = s.GetColumnGoType(c)

	if c.IsPrimaryKey {
		return c
	}
	def, ok := info["default"]
	if !ok || def == nil {
		return c
	}
	d := asString(def)
	isBit := strings.HasPrefix(strings.ToLower(c.DBType), "bit")
	switch m := mysqlCurrentTimestamp.FindStringSubmatch(d); {
	case m != nil && (c.Type == dialects.TypeTimestamp || c.Type == dialects.TypeDateTime):
		expr := "CURRENT_TIMESTAMP"
		if m[1] != "" {
			expr += "(" + m[1] + ")"
		}
		c.DefaultValue = expr
	case isBit:
		n, _ := strconv.ParseInt(strings.Trim(d, "b'"), 2, 64)
		c.DefaultValue = c.GoTypecast(n)
	default:
		c.DefaultValue = c.GoTypecast(d)
	}
	return c
}

func (l *mysqlLoader) LoadTableForeignKeys(ctx context.Context, s *Schema, name string) ([]ForeignKeyConstraint, error) {
	_, _, cond, args := l.tableRef(s, name)
	query := `SELECT kcu.constraint_name AS name, kcu.column_name AS column_name,
    kcu.referenced_table_schema AS foreign_table_schema,
    kcu.referenced_table_name AS foreign_table_name,
    kcu.referenced_column_name AS foreign_column_name,
    rc.update_rule AS on_update, rc.delete_rule AS on_delete
FROM information_schema.key_column_usage AS kcu
JOIN information_schema.referential_constraints AS rc
    ON rc.constraint_schema = kcu.table_schema AND rc.constraint_name = kcu.constraint_name
    AND rc.table_name = kcu.table_name
WHERE kcu.table_schema ` + cond + ` AND kcu.table_name = ?
ORDER BY kcu.constraint_name, kcu.ordinal_position`
	rows, err := queryMaps(ctx, s.DB(), query, args...)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}

	var fks []ForeignKeyConstraint
	for _, r := range rows {
		n := asString(r["name"])
		if len(fks) == 0 || fks[len(fks)-1].Name != n {
			fks = append(fks, ForeignKeyConstraint{
				Constraint:        Constraint{Name: n},
				ForeignSchemaName: asString(r["foreign_table_schema"]),
				ForeignTableName:  asString(r["foreign_table_name"]),
				OnUpdate:          asString(r["on_update"]),
				OnDelete:          asString(r["on_delete"]),
			})
		}
		fk := &fks[len(fks)-1]
		fk.ColumnNames = append(fk.ColumnNames, asString(r["column_name"]))
		fk.ForeignColumns = append(fk.ForeignColumns, asString(r["foreign_column_name"]))
	}
	return fks, nil
}

// loadIndexes groups SHOW INDEX output, which is ordered by key and sequence.
func (l *mysqlLoader) loadIndexes(ctx context.Context, s *Schema, name string) ([]IndexConstraint, error) {
	query := "SHOW INDEX FROM " + s.Quoter().QuoteTableName(name)
	rows, err := queryMaps(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	var indexes []IndexConstraint
	pos := make(map[string]int)
	for _, r := range rows {
		key := asString(r["key_name"])
		i, ok := pos[key]
		if !ok {
			indexes = append(indexes, IndexConstraint{
				Constraint: Constraint{Name: key},
				IsUnique:   asInt(r["non_unique"]) == 0,
				IsPrimary:  key == "PRIMARY",
			})
			i = len(indexes) - 1
			pos[key] = i
		}
		indexes[i].ColumnNames = append(indexes[i].ColumnNames, asString(r["column_name"]))
	}
	return indexes, nil
}

func (l *mysqlLoader) LoadTablePrimaryKey(ctx context.Context, s *Schema, name string) (*Constraint, error) {
	indexes, err := l.loadIndexes(ctx, s, name)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if idx.IsPrimary {
			return &Constraint{ColumnNames: idx.ColumnNames}, nil
		}
	}
	return nil, nil
}

func (l *mysqlLoader) LoadTableIndexes(ctx context.Context, s *Schema, name string) ([]IndexConstraint, error) {
	return l.loadIndexes(ctx, s, name)
}

func (l *mysqlLoader) LoadTableUniques(ctx context.Context, s *Schema, name string) ([]Constraint, error) {
	indexes, err := l.loadIndexes(ctx, s, name)
	if err != nil {
		return nil, err
	}
	var uniques []Constraint
	for _, idx := range indexes {
		if idx.IsUnique && !idx.IsPrimary {
			uniques = append(uniques, idx.Constraint)
		}
	}
	return uniques, nil
}

// LoadTableChecks requires information_schema.check_constraints (MySQL 8.0.16+).
func (l *mysqlLoader) LoadTableChecks(ctx context.Context, s *Schema, name string) ([]CheckConstraint, error) {
	_, _, cond, args := l.tableRef(s, name)
	query := `SELECT cc.constraint_name AS name, cc.check_clause AS check_clause
FROM information_schema.check_constraints AS cc
JOIN information_schema.table_constraints AS tc
    ON tc.constraint_schema = cc.constraint_schema AND tc.constraint_name = cc.constraint_name
WHERE tc.constraint_type = 'CHECK' AND tc.table_schema ` + cond + ` AND tc.table_name = ?`
	rows, err := queryMaps(ctx, s.DB(), query, args...)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	checks := make([]CheckConstraint, 0, len(rows))
	for _, r := range rows {
		checks = append(checks, CheckConstraint{
			Constraint: Constraint{Name: asString(r["name"])},
			Expression: asString(r["check_clause"]),
		})
	}
	return checks, nil
}
