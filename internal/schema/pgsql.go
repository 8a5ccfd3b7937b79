package schema

import (
	"context"
	"regexp"
	"strings"

	"github.com/coregx/dbal/internal/dialects"
)

// pgsqlLoader reads metadata from information_schema and pg_catalog.
type pgsqlLoader struct{}

const pgsqlDefaultSchema = "public"

var pgsqlTypes = map[string]string{
	"bit":                         dialects.TypeInteger,
	"bit varying":                 dialects.TypeInteger,
	"varbit":                      dialects.TypeInteger,
	"bool":                        dialects.TypeBoolean,
	"boolean":                     dialects.TypeBoolean,
	"character":                   dialects.TypeChar,
	"char":                        dialects.TypeChar,
	"bpchar":                      dialects.TypeChar,
	"character varying":           dialects.TypeString,
	"varchar":                     dialects.TypeString,
	"text":                        dialects.TypeText,
	"bytea":                       dialects.TypeBinary,
	"real":                        dialects.TypeFloat,
	"float4":                      dialects.TypeFloat,
	"double precision":            dialects.TypeDouble,
	"float8":                      dialects.TypeDouble,
	"decimal":                     dialects.TypeDecimal,
	"numeric":                     dialects.TypeDecimal,
	"money":                       dialects.TypeMoney,
	"smallint":                    dialects.TypeSmallInt,
	"int2":                        dialects.TypeSmallInt,
	"int4":                        dialects.TypeInteger,
	"int":                         dialects.TypeInteger,
	"integer":                     dialects.TypeInteger,
	"bigint":                      dialects.TypeBigInt,
	"int8":                        dialects.TypeBigInt,
	"oid":                         dialects.TypeBigInt,
	"smallserial":                 dialects.TypeSmallInt,
	"serial2":                     dialects.TypeSmallInt,
	"serial4":                     dialects.TypeInteger,
	"serial":                      dialects.TypeInteger,
	"bigserial":                   dialects.TypeBigInt,
	"serial8":                     dialects.TypeBigInt,
	"date":                        dialects.TypeDate,
	"time":                        dialects.TypeTime,
	"timetz":                      dialects.TypeTime,
	"time without time zone":      dialects.TypeTime,
	"time with time zone":         dialects.TypeTime,
	"timestamp":                   dialects.TypeTimestamp,
	"timestamptz":                 dialects.TypeTimestamp,
	"timestamp without time zone": dialects.TypeTimestamp,
	"timestamp with time zone":    dialects.TypeTimestamp,
	"json":                        dialects.TypeJSON,
	"jsonb":                       dialects.TypeJSON,
}

var (
	pgsqlSequenceRegex = regexp.MustCompile(`nextval\('"?([\w.]+)"?'(?:::regclass)?\)`)
	pgsqlLiteralRegex  = regexp.MustCompile(`^'(.*)'::[\w ]+$`)
	pgsqlCastRegex     = regexp.MustCompile(`^\(?(-?[\d.]+)\)?(?:::[\w ]+)?$`)
)

func (l *pgsqlLoader) FindTableNames(ctx context.Context, s *Schema, schemaName string) ([]string, error) {
	if schemaName == "" {
		schemaName = pgsqlDefaultSchema
	}
	const query = `SELECT c.relname AS table_name
FROM pg_class c
INNER JOIN pg_namespace ns ON ns.oid = c.relnamespace
WHERE ns.nspname = $1 AND c.relkind IN ('r', 'v', 'm', 'f', 'p')
ORDER BY c.relname`
	names, err := queryColumn(ctx, s.DB(), query, schemaName)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	return names, nil
}

func (l *pgsqlLoader) FindSchemaNames(ctx context.Context, s *Schema) ([]string, error) {
	const query = `SELECT ns.nspname AS schema_name
FROM pg_namespace ns
WHERE ns.nspname != 'information_schema' AND ns.nspname NOT LIKE 'pg_%'
ORDER BY ns.nspname`
	names, err := queryColumn(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	return names, nil
}

func (l *pgsqlLoader) tableRef(s *Schema, name string) (schemaName, table string) {
	parts := s.Quoter().TableNameParts(name)
	if len(parts) > 1 {
		return parts[0], parts[len(parts)-1]
	}
	return pgsqlDefaultSchema, parts[0]
}

func (l *pgsqlLoader) LoadTableSchema(ctx context.Context, s *Schema, name string) (*TableSchema, error) {
	schemaName, tableName := l.tableRef(s, name)
	const query = `SELECT c.column_name, c.data_type, c.udt_name, c.is_nullable, c.column_default,
    c.character_maximum_length, c.numeric_precision, c.numeric_scale,
    col_description(format('%I.%I', c.table_schema, c.table_name)::regclass::oid, c.ordinal_position) AS column_comment
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`
	rows, err := queryMaps(ctx, s.DB(), query, schemaName, tableName)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	table := &TableSchema{Name: tableName, SchemaName: schemaName, FullName: tableName}
	if schemaName != pgsqlDefaultSchema {
		table.FullName = schemaName + "." + tableName
	}
	for _, row := range rows {
		c := l.loadColumnSchema(s, row)
		table.Columns = append(table.Columns, c)
		if m := pgsqlSequenceRegex.FindStringSubmatch(asString(row["column_default"])); m != nil {
			table.SequenceName = m[1]
		}
	}

	pk, err := l.LoadTablePrimaryKey(ctx, s, name)
	if err != nil {
		return nil, err
	}
	if pk != nil {
		for _, col := range pk.ColumnNames {
			if c := table.Column(col); c != nil {
				c.IsPrimaryKey = true
				table.PrimaryKey = append(table.PrimaryKey, col)
			}
		}
	}

	fks, err := l.LoadTableForeignKeys(ctx, s, name)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		foreign := fk.ForeignTableName
		if fk.ForeignSchemaName != "" && fk.ForeignSchemaName != pgsqlDefaultSchema {
			foreign = fk.ForeignSchemaName + "." + foreign
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			Name:           fk.Name,
			ForeignTable:   foreign,
			Columns:        fk.ColumnNames,
			ForeignColumns: fk.ForeignColumns,
		})
	}
	return table, nil
}

func (l *pgsqlLoader) loadColumnSchema(s *Schema, info map[string]any) *ColumnSchema {
	c := s.NewColumn(asString(info["column_name"]))
	c.AllowNull = asString(info["is_nullable"]) == "YES"
	c.DBType = asString(info["udt_name"])
	c.Comment = asString(info["column_comment"])
	c.Size = int(asInt(info["character_maximum_length"]))
	c.Precision = int(asInt(info["numeric_precision"]))
	c.Scale = int(asInt(info["numeric_scale"]))

	c.Type = dialects.TypeString
	if t, ok := pgsqlTypes[c.DBType]; ok {
		c.Type = t
	} else if t, ok := pgsqlTypes[asString(info["data_type"])]; ok {
		c.Type = t
	}
	c.GoType = s.GetColumnGoType(c)

	def := asString(info["column_default"])
	switch {
	case info["column_default"] == nil || strings.HasPrefix(def, "NULL::"):
	case strings.HasPrefix(def, "nextval("):
		c.AutoIncrement = true
	case c.Type == dialects.TypeBoolean && (def == "true" || def == "false"):
		c.DefaultValue = def == "true"
	case strings.EqualFold(def, "now()") || strings.EqualFold(def, "CURRENT_TIMESTAMP"):
		c.DefaultValue = "CURRENT_TIMESTAMP"
	default:
		if m := pgsqlLiteralRegex.FindStringSubmatch(def); m != nil {
			def = strings.ReplaceAll(m[1], "''", "'")
		} else if m := pgsqlCastRegex.FindStringSubmatch(def); m != nil {
			def = m[1]
		}
		c.DefaultValue = c.GoTypecast(def)
	}
	return c
}

// loadConstraints returns the rows of pg_constraint for a table, one row per
// constrained column, in key order.
func (l *pgsqlLoader) loadConstraints(ctx context.Context, s *Schema, name string, types string) ([]map[string]any, error) {
	schemaName, tableName := l.tableRef(s, name)
	query := `SELECT c.conname AS name, c.contype AS type, a.attname AS column_name,
    fns.nspname AS foreign_table_schema, fc.relname AS foreign_table_name, fa.attname AS foreign_column_name,
    c.confupdtype AS on_update, c.confdeltype AS on_delete, pg_get_constraintdef(c.oid) AS check_expr
FROM pg_constraint c
JOIN pg_class tc ON tc.oid = c.conrelid
JOIN pg_namespace tns ON tns.oid = tc.relnamespace
CROSS JOIN LATERAL unnest(c.conkey) WITH ORDINALITY AS k(attnum, ord)
JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.attnum
LEFT JOIN pg_class fc ON fc.oid = c.confrelid
LEFT JOIN pg_namespace fns ON fns.oid = fc.relnamespace
LEFT JOIN pg_attribute fa ON fa.attrelid = c.confrelid AND fa.attnum = c.confkey[k.ord]
WHERE tns.nspname = $1 AND tc.relname = $2 AND c.contype IN (` + types + `)
ORDER BY c.conname, k.ord`
	rows, err := queryMaps(ctx, s.DB(), query, schemaName, tableName)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	return rows, nil
}

var pgsqlActions = map[string]string{
	"a": "NO ACTION",
	"r": "RESTRICT",
	"c": "CASCADE",
	"n": "SET NULL",
	"d": "SET DEFAULT",
}

func (l *pgsqlLoader) LoadTablePrimaryKey(ctx context.Context, s *Schema, name string) (*Constraint, error) {
	rows, err := l.loadConstraints(ctx, s, name, "'p'")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	pk := &Constraint{Name: asString(rows[0]["name"])}
	for _, r := range rows {
		pk.ColumnNames = append(pk.ColumnNames, asString(r["column_name"]))
	}
	return pk, nil
}

func (l *pgsqlLoader) LoadTableForeignKeys(ctx context.Context, s *Schema, name string) ([]ForeignKeyConstraint, error) {
	rows, err := l.loadConstraints(ctx, s, name, "'f'")
	if err != nil {
		return nil, err
	}
	var fks []ForeignKeyConstraint
	for _, r := range rows {
		n := asString(r["name"])
		if len(fks) == 0 || fks[len(fks)-1].Name != n {
			fks = append(fks, ForeignKeyConstraint{
				Constraint:        Constraint{Name: n},
				ForeignSchemaName: asString(r["foreign_table_schema"]),
				ForeignTableName:  asString(r["foreign_table_name"]),
				OnUpdate:          pgsqlActions[asString(r["on_update"])],
				OnDelete:          pgsqlActions[asString(r["on_delete"])],
			})
		}
		fk := &fks[len(fks)-1]
		fk.ColumnNames = append(fk.ColumnNames, asString(r["column_name"]))
		fk.ForeignColumns = append(fk.ForeignColumns, asString(r["foreign_column_name"]))
	}
	return fks, nil
}

func (l *pgsqlLoader) LoadTableUniques(ctx context.Context, s *Schema, name string) ([]Constraint, error) {
	rows, err := l.loadConstraints(ctx, s, name, "'u'")
	if err != nil {
		return nil, err
	}
	var uniques []Constraint
	for _, r := range rows {
		n := asString(r["name"])
		if len(uniques) == 0 || uniques[len(uniques)-1].Name != n {
			uniques = append(uniques, Constraint{Name: n})
		}
		u := &uniques[len(uniques)-1]
		u.ColumnNames = append(u.ColumnNames, asString(r["column_name"]))
	}
	return uniques, nil
}

func (l *pgsqlLoader) LoadTableChecks(ctx context.Context, s *Schema, name string) ([]CheckConstraint, error) {
	rows, err := l.loadConstraints(ctx, s, name, "'c'")
	if err != nil {
		return nil, err
	}
	var checks []CheckConstraint
	for _, r := range rows {
		n := asString(r["name"])
		if len(checks) == 0 || checks[len(checks)-1].Name != n {
			checks = append(checks, CheckConstraint{
				Constraint: Constraint{Name: n},
				Expression: asString(r["check_expr"]),
			})
		}
		c := &checks[len(checks)-1]
		c.ColumnNames = append(c.ColumnNames, asString(r["column_name"]))
	}
	return checks, nil
}

func (l *pgsqlLoader) LoadTableIndexes(ctx context.Context, s *Schema, name string) ([]IndexConstraint, error) {
	schemaName, tableName := l.tableRef(s, name)
	const query = `SELECT ic.relname AS name, ia.attname AS column_name,
    i.indisunique AS is_unique, i.indisprimary AS is_primary
FROM pg_class tc
INNER JOIN pg_namespace tcns ON tcns.oid = tc.relnamespace
INNER JOIN pg_index i ON i.indrelid = tc.oid
INNER JOIN pg_class ic ON ic.oid = i.indexrelid
CROSS JOIN LATERAL unnest(i.indkey) WITH ORDINALITY AS k(attnum, ord)
INNER JOIN pg_attribute ia ON ia.attrelid = i.indrelid AND ia.attnum = k.attnum
WHERE tcns.nspname = $1 AND tc.relname = $2
ORDER BY i.indisprimary DESC, ic.relname, k.ord`
	rows, err := queryMaps(ctx, s.DB(), query, schemaName, tableName)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	var indexes []IndexConstraint
	for _, r := range rows {
		n := asString(r["name"])
		if len(indexes) == 0 || indexes[len(indexes)-1].Name != n {
			indexes = append(indexes, IndexConstraint{
				Constraint: Constraint{Name: n},
				IsUnique:   asBool(r["is_unique"]),
				IsPrimary:  asBool(r["is_primary"]),
			})
		}
		idx := &indexes[len(indexes)-1]
		idx.ColumnNames = append(idx.ColumnNames, asString(r["column_name"]))
	}
	return indexes, nil
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "t" || x == "true" || x == "1"
	}
	return asInt(v) != 0
}
