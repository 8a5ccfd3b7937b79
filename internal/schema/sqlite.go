package schema

import (
	"context"
	"sort"
	"strings"

	"github.com/coregx/dbal/internal/dialects"
)

// sqliteLoader reads metadata through PRAGMA statements and sqlite_master.
type sqliteLoader struct{}

var sqliteTypes = func() map[string]string {
	m := make(map[string]string, len(physicalTypes))
	for k, v := range physicalTypes {
		m[k] = v
	}
	m["bit"] = dialects.TypeSmallInt
	return m
}()

func (l *sqliteLoader) FindTableNames(ctx context.Context, s *Schema, _ string) ([]string, error) {
	const query = "SELECT DISTINCT tbl_name FROM sqlite_master WHERE tbl_name<>'sqlite_sequence' ORDER BY tbl_name"
	names, err := queryColumn(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	return names, nil
}

func (l *sqliteLoader) FindSchemaNames(ctx context.Context, s *Schema) ([]string, error) {
	const query = "PRAGMA database_list"
	rows, err := queryMaps(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, asString(r["name"]))
	}
	return names, nil
}

// pragma builds "PRAGMA [schema.]name('table')".
func (l *sqliteLoader) pragma(s *Schema, pragma, table string) string {
	q := s.Quoter()
	parts := q.TableNameParts(table)
	name := parts[len(parts)-1]
	if len(parts) > 1 {
		return "PRAGMA " + q.QuoteSimpleTableName(parts[0]) + "." + pragma + "(" + q.QuoteValue(name) + ")"
	}
	return "PRAGMA " + pragma + "(" + q.QuoteValue(name) + ")"
}

func (l *sqliteLoader) tableInfo(ctx context.Context, s *Schema, name string) ([]map[string]any, error) {
	query := l.pragma(s, "table_info", name)
	rows, err := queryMaps(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	return rows, nil
}

func (l *sqliteLoader) LoadTableSchema(ctx context.Context, s *Schema, name string) (*TableSchema, error) {
	info, err := l.tableInfo(ctx, s, name)
	if err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return nil, nil
	}

	table := &TableSchema{Name: name, FullName: name}
	if parts := s.Quoter().TableNameParts(name); len(parts) > 1 {
		table.SchemaName, table.Name = parts[0], parts[1]
	}
	for _, row := range info {
		c := l.loadColumnSchema(s, row)
		table.Columns = append(table.Columns, c)
		if c.IsPrimaryKey {
			table.PrimaryKey = append(table.PrimaryKey, c.Name)
		}
	}
	if len(table.PrimaryKey) == 1 {
		pk := table.Column(table.PrimaryKey[0])
		if strings.HasPrefix(pk.DBType, "int") {
			pk.AutoIncrement = true
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

func (l *sqliteLoader) loadColumnSchema(s *Schema, info map[string]any) *ColumnSchema {
	c := s.NewColumn(asString(info["name"]))
	c.AllowNull = asInt(info["notnull"]) == 0
	c.IsPrimaryKey = asInt(info["pk"]) != 0
	c.DBType = strings.ToLower(asString(info["type"]))
	c.Unsigned = strings.Contains(c.DBType, "unsigned")
	parseDBType(c, sqliteTypes)
	c.GoType = s.GetColumnGoType(c)

	if c.IsPrimaryKey {
		return c
	}
	def, ok := info["dflt_value"]
	switch d := asString(def); {
	case !ok || def == nil || d == "" || strings.EqualFold(d, "null"):
		c.DefaultValue = nil
	case c.Type == dialects.TypeTimestamp && strings.EqualFold(d, "CURRENT_TIMESTAMP"):
		c.DefaultValue = "CURRENT_TIMESTAMP"
	default:
		c.DefaultValue = c.GoTypecast(strings.Trim(d, `'"`))
	}
	return c
}

func (l *sqliteLoader) LoadTableForeignKeys(ctx context.Context, s *Schema, name string) ([]ForeignKeyConstraint, error) {
	query := l.pragma(s, "foreign_key_list", name)
	rows, err := queryMaps(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if a, b := asInt(rows[i]["id"]), asInt(rows[j]["id"]); a != b {
			return a < b
		}
		return asInt(rows[i]["seq"]) < asInt(rows[j]["seq"])
	})

	var fks []ForeignKeyConstraint
	last := int64(-1)
	for _, r := range rows {
		id := asInt(r["id"])
		if id != last || len(fks) == 0 {
			fks = append(fks, ForeignKeyConstraint{
				ForeignTableName: asString(r["table"]),
				OnDelete:         asString(r["on_delete"]),
				OnUpdate:         asString(r["on_update"]),
			})
			last = id
		}
		fk := &fks[len(fks)-1]
		fk.ColumnNames = append(fk.ColumnNames, asString(r["from"]))
		fk.ForeignColumns = append(fk.ForeignColumns, asString(r["to"]))
	}
	return fks, nil
}

type sqliteConstraints struct {
	primaryKey *Constraint
	indexes    []IndexConstraint
	uniques    []Constraint
}

func (l *sqliteLoader) loadConstraints(ctx context.Context, s *Schema, name string) (*sqliteConstraints, error) {
	query := l.pragma(s, "index_list", name)
	list, err := queryMaps(ctx, s.DB(), query)
	if err != nil {
		return nil, s.ConvertError(err, query)
	}

	result := &sqliteConstraints{}
	for _, idx := range list {
		idxName := asString(idx["name"])
		infoQuery := l.pragma(s, "index_info", idxName)
		info, err := queryMaps(ctx, s.DB(), infoQuery)
		if err != nil {
			return nil, s.ConvertError(err, infoQuery)
		}
		sort.SliceStable(info, func(i, j int) bool {
			return asInt(info[i]["seqno"]) < asInt(info[j]["seqno"])
		})
		columns := make([]string, 0, len(info))
		for _, col := range info {
			columns = append(columns, asString(col["name"]))
		}

		origin := asString(idx["origin"])
		result.indexes = append(result.indexes, IndexConstraint{
			Constraint: Constraint{Name: idxName, ColumnNames: columns},
			IsUnique:   asInt(idx["unique"]) != 0,
			IsPrimary:  origin == "pk",
		})
		switch origin {
		case "u":
			result.uniques = append(result.uniques, Constraint{Name: idxName, ColumnNames: columns})
		case "pk":
			result.primaryKey = &Constraint{ColumnNames: columns}
		}
	}

	if result.primaryKey == nil {
		// INTEGER PRIMARY KEY aliases the rowid and has no index.
		info, err := l.tableInfo(ctx, s, name)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(info, func(i, j int) bool {
			return asInt(info[i]["pk"]) < asInt(info[j]["pk"])
		})
		for _, col := range info {
			if asInt(col["pk"]) > 0 {
				if result.primaryKey == nil {
					result.primaryKey = &Constraint{}
				}
				result.primaryKey.ColumnNames = append(result.primaryKey.ColumnNames, asString(col["name"]))
			}
		}
	}
	return result, nil
}

func (l *sqliteLoader) LoadTablePrimaryKey(ctx context.Context, s *Schema, name string) (*Constraint, error) {
	c, err := l.loadConstraints(ctx, s, name)
	if err != nil {
		return nil, err
	}
	return c.primaryKey, nil
}

func (l *sqliteLoader) LoadTableIndexes(ctx context.Context, s *Schema, name string) ([]IndexConstraint, error) {
	c, err := l.loadConstraints(ctx, s, name)
	if err != nil {
		return nil, err
	}
	return c.indexes, nil
}

func (l *sqliteLoader) LoadTableUniques(ctx context.Context, s *Schema, name string) ([]Constraint, error) {
	c, err := l.loadConstraints(ctx, s, name)
	if err != nil {
		return nil, err
	}
	return c.uniques, nil
}

// LoadTableChecks extracts CHECK clauses from the table's CREATE statement.
func (l *sqliteLoader) LoadTableChecks(ctx context.Context, s *Schema, name string) ([]CheckConstraint, error) {
	const query = "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?"
	parts := s.Quoter().TableNameParts(name)
	ddl, err := queryColumn(ctx, s.DB(), query, parts[len(parts)-1])
	if err != nil {
		return nil, s.ConvertError(err, query)
	}
	if len(ddl) == 0 {
		return nil, nil
	}
	return parseSQLiteChecks(ddl[0]), nil
}

// parseSQLiteChecks scans a CREATE TABLE statement for CHECK (...) clauses,
// optionally preceded by CONSTRAINT name.
func parseSQLiteChecks(ddl string) []CheckConstraint {
	var checks []CheckConstraint
	upper := strings.ToUpper(ddl)
	for pos := 0; ; {
		i := strings.Index(upper[pos:], "CHECK")
		if i < 0 {
			break
		}
		i += pos
		pos = i + len("CHECK")
		if i > 0 && isIdentByte(upper[i-1]) || pos < len(upper) && isIdentByte(upper[pos]) {
			continue
		}

		open := strings.IndexByte(ddl[pos:], '(')
		if open < 0 || strings.TrimSpace(ddl[pos:pos+open]) != "" {
			continue
		}
		start := pos + open
		end := matchParen(ddl, start)
		if end < 0 {
			break
		}

		check := CheckConstraint{Expression: strings.TrimSpace(ddl[start+1 : end])}
		fields := strings.Fields(ddl[:i])
		if n := len(fields); n >= 2 && strings.EqualFold(fields[n-2], "CONSTRAINT") {
			check.Name = strings.Trim(fields[n-1], "\"`[]")
		}
		checks = append(checks, check)
		pos = end + 1
	}
	return checks
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// matchParen returns the index of the parenthesis closing the one at start,
// skipping quoted literals.
func matchParen(s string, start int) int {
	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
