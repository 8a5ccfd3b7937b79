package schema

import (
	"slices"

	"github.com/coregx/dbal/internal/dberr"
)

// TableSchema describes a table: its columns in discovery order and its keys.
type TableSchema struct {
	Name       string `msgpack:"name"`
	SchemaName string `msgpack:"schema"`
	// FullName includes the schema name when it differs from the default schema.
	FullName     string          `msgpack:"full_name"`
	Columns      []*ColumnSchema `msgpack:"columns"`
	PrimaryKey   []string        `msgpack:"pk"`
	ForeignKeys  []ForeignKey    `msgpack:"fks"`
	SequenceName string          `msgpack:"sequence"`
}

// ForeignKey references columns of another table. Columns[i] references
// ForeignColumns[i].
type ForeignKey struct {
	Name           string   `msgpack:"name"`
	ForeignTable   string   `msgpack:"table"`
	Columns        []string `msgpack:"columns"`
	ForeignColumns []string `msgpack:"foreign_columns"`
}

// Column returns the named column, or nil.
func (t *TableSchema) Column(name string) *ColumnSchema {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnNames returns the column names in discovery order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AddColumn appends a column, replacing an existing column of the same name in place.
func (t *TableSchema) AddColumn(c *ColumnSchema) {
	for i, existing := range t.Columns {
		if existing.Name == c.Name {
			t.Columns[i] = c
			return
		}
	}
	t.Columns = append(t.Columns, c)
}

// SetPrimaryKey replaces the primary key. Every key must name an existing column;
// nothing is modified when one does not.
func (t *TableSchema) SetPrimaryKey(keys ...string) error {
	for _, key := range keys {
		if t.Column(key) == nil {
			return dberr.Argument("primary key column %q cannot be found in table %q", key, t.Name)
		}
	}
	for _, c := range t.Columns {
		c.IsPrimaryKey = slices.Contains(keys, c.Name)
	}
	t.PrimaryKey = slices.Clone(keys)
	return nil
}

// Constraint is a named set of columns: a primary key or a unique constraint.
type Constraint struct {
	Name        string   `msgpack:"name"`
	ColumnNames []string `msgpack:"columns"`
}

// IndexConstraint describes an index.
type IndexConstraint struct {
	Constraint `msgpack:",inline"`
	IsUnique   bool `msgpack:"unique"`
	IsPrimary  bool `msgpack:"primary"`
}

// ForeignKeyConstraint describes a foreign key constraint.
type ForeignKeyConstraint struct {
	Constraint        `msgpack:",inline"`
	ForeignSchemaName string   `msgpack:"foreign_schema"`
	ForeignTableName  string   `msgpack:"foreign_table"`
	ForeignColumns    []string `msgpack:"foreign_columns"`
	OnDelete          string   `msgpack:"on_delete"`
	OnUpdate          string   `msgpack:"on_update"`
}

// CheckConstraint describes a CHECK constraint.
type CheckConstraint struct {
	Constraint `msgpack:",inline"`
	Expression string `msgpack:"expression"`
}
