package schema

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/dialects"
)

// Loader discovers metadata from a live database. Loaders return a nil
// *TableSchema for tables that do not exist.
type Loader interface {
	FindTableNames(ctx context.Context, s *Schema, schemaName string) ([]string, error)
	FindSchemaNames(ctx context.Context, s *Schema) ([]string, error)
	LoadTableSchema(ctx context.Context, s *Schema, name string) (*TableSchema, error)
	LoadTablePrimaryKey(ctx context.Context, s *Schema, name string) (*Constraint, error)
	LoadTableForeignKeys(ctx context.Context, s *Schema, name string) ([]ForeignKeyConstraint, error)
	LoadTableIndexes(ctx context.Context, s *Schema, name string) ([]IndexConstraint, error)
	LoadTableUniques(ctx context.Context, s *Schema, name string) ([]Constraint, error)
	LoadTableChecks(ctx context.Context, s *Schema, name string) ([]CheckConstraint, error)
}

// LoaderFor returns the built-in loader of a dialect. Dialects without one get
// a loader that reports every operation as not supported.
func LoaderFor(d dialects.Dialect) Loader {
	switch d.Name() {
	case "sqlite":
		return &sqliteLoader{}
	case "mysql":
		return &mysqlLoader{}
	case "pgsql":
		return &pgsqlLoader{}
	}
	return &unsupportedLoader{dialect: d.Name()}
}

type unsupportedLoader struct {
	dialect string
}

func (l *unsupportedLoader) err() error {
	return dberr.NotSupported(l.dialect, "metadata discovery")
}

func (l *unsupportedLoader) FindTableNames(context.Context, *Schema, string) ([]string, error) {
	return nil, l.err()
}

func (l *unsupportedLoader) FindSchemaNames(context.Context, *Schema) ([]string, error) {
	return nil, l.err()
}

func (l *unsupportedLoader) LoadTableSchema(context.Context, *Schema, string) (*TableSchema, error) {
	return nil, l.err()
}

func (l *unsupportedLoader) LoadTablePrimaryKey(context.Context, *Schema, string) (*Constraint, error) {
	return nil, l.err()
}

func (l *unsupportedLoader) LoadTableForeignKeys(context.Context, *Schema, string) ([]ForeignKeyConstraint, error) {
	return nil, l.err()
}

func (l *unsupportedLoader) LoadTableIndexes(context.Context, *Schema, string) ([]IndexConstraint, error) {
	return nil, l.err()
}

func (l *unsupportedLoader) LoadTableUniques(context.Context, *Schema, string) ([]Constraint, error) {
	return nil, l.err()
}

func (l *unsupportedLoader) LoadTableChecks(context.Context, *Schema, string) ([]CheckConstraint, error) {
	return nil, l.err()
}

// queryMaps runs a query and returns its rows keyed by lower-cased column name.
// []byte values are returned as strings.
func queryMaps(ctx context.Context, q Querier, query string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for i, c := range cols {
		cols[i] = strings.ToLower(c)
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// queryColumn returns the first column of every row as strings.
func queryColumn(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var result []string
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result = append(result, asString(values[0]))
	}
	return result, rows.Err()
}

func queryRow(ctx context.Context, q Querier, query string, args []any, dest ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return fmt.Errorf("query returned no rows: %s", query)
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	return rows.Close()
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(asString(v)), 10, 64)
	return n
}

// physicalTypes maps lower-cased database type names to abstract types.
var physicalTypes = map[string]string{
	"tinyint":    dialects.TypeTinyInt,
	"bit":        dialects.TypeInteger,
	"smallint":   dialects.TypeSmallInt,
	"mediumint":  dialects.TypeInteger,
	"int":        dialects.TypeInteger,
	"integer":    dialects.TypeInteger,
	"bigint":     dialects.TypeBigInt,
	"float":      dialects.TypeFloat,
	"double":     dialects.TypeDouble,
	"real":       dialects.TypeFloat,
	"decimal":    dialects.TypeDecimal,
	"numeric":    dialects.TypeDecimal,
	"tinytext":   dialects.TypeText,
	"mediumtext": dialects.TypeText,
	"longtext":   dialects.TypeText,
	"longblob":   dialects.TypeBinary,
	"blob":       dialects.TypeBinary,
	"text":       dialects.TypeText,
	"varchar":    dialects.TypeString,
	"string":     dialects.TypeString,
	"char":       dialects.TypeChar,
	"datetime":   dialects.TypeDateTime,
	"year":       dialects.TypeDate,
	"date":       dialects.TypeDate,
	"time":       dialects.TypeTime,
	"timestamp":  dialects.TypeTimestamp,
	"enum":       dialects.TypeString,
	"varbinary":  dialects.TypeBinary,
	"json":       dialects.TypeJSON,
	"boolean":    dialects.TypeBoolean,
	"bool":       dialects.TypeBoolean,
}

var (
	dbTypeRegex = regexp.MustCompile(`^(\w+)(?:\(([^)]+)\))?`)
	enumRegex   = regexp.MustCompile(`'[^']*'`)
)

// parseDBType fills Type, Size, Precision, Scale and EnumValues from c.DBType.
func parseDBType(c *ColumnSchema, typeMap map[string]string) {
	c.Type = dialects.TypeString
	m := dbTypeRegex.FindStringSubmatch(c.DBType)
	if m == nil {
		return
	}
	typ := strings.ToLower(m[1])
	if abstract, ok := typeMap[typ]; ok {
		c.Type = abstract
	}
	if m[2] == "" {
		return
	}
	if typ == "enum" {
		for _, v := range enumRegex.FindAllString(m[2], -1) {
			c.EnumValues = append(c.EnumValues, strings.Trim(v, "'"))
		}
		return
	}

	values := strings.Split(m[2], ",")
	size, _ := strconv.Atoi(strings.TrimSpace(values[0]))
	c.Size, c.Precision = size, size
	if len(values) > 1 {
		c.Scale, _ = strconv.Atoi(strings.TrimSpace(values[1]))
	}
	switch {
	case size == 1 && (typ == "tinyint" || typ == "bit"):
		c.Type = dialects.TypeBoolean
	case typ == "bit" && size > 32:
		c.Type = dialects.TypeBigInt
	case typ == "bit" && size == 32:
		c.Type = dialects.TypeInteger
	}
}
