// Package dialects describes the DBMS families supported by dbal: MySQL, PostgreSQL,
// SQLite, MSSQL and Oracle. A Dialect carries the facts the rest of the module needs
// about a backend: its database/sql driver, identifier quote characters, placeholder
// style, abstract column type map, and how to read a SQLSTATE from a driver error.
package dialects

import (
	"fmt"
	"maps"
	"strings"
)

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name returns the canonical DSN scheme of the dialect (mysql, pgsql, sqlite, sqlsrv, oci).
	Name() string
	// DriverName returns the database/sql driver used to open connections.
	DriverName() string
	// TableQuoteChars returns the starting and ending quote characters for table names.
	TableQuoteChars() (start, end string)
	// ColumnQuoteChars returns the starting and ending quote characters for column names.
	ColumnQuoteChars() (start, end string)
	// Placeholder returns the positional placeholder for the 1-based parameter index.
	Placeholder(index int) string
	// BackslashEscapes reports whether string literals treat backslash as an escape.
	BackslashEscapes() bool
	// SupportsSavepoint reports whether nested transactions can use savepoints.
	SupportsSavepoint() bool
	// TypeMap returns a copy of the abstract-to-physical column type map.
	TypeMap() map[string]string
	// ConfigureDSN merges credentials and charset into a driver DSN.
	ConfigureDSN(dsn string, opts DSNOptions) (string, error)
	// SQLState extracts the SQLSTATE code from a driver error, or "" when unknown.
	SQLState(err error) string
}

// DSNOptions holds connection attributes that live outside the driver DSN.
type DSNOptions struct {
	Username string
	Password string
	Charset  string
}

// Abstract column types understood by every dialect's TypeMap.
const (
	TypePK        = "pk"
	TypeUPK       = "upk"
	TypeBigPK     = "bigpk"
	TypeUBigPK    = "ubigpk"
	TypeChar      = "char"
	TypeString    = "string"
	TypeText      = "text"
	TypeTinyInt   = "tinyint"
	TypeSmallInt  = "smallint"
	TypeInteger   = "integer"
	TypeBigInt    = "bigint"
	TypeFloat     = "float"
	TypeDouble    = "double"
	TypeDecimal   = "decimal"
	TypeDateTime  = "datetime"
	TypeTimestamp = "timestamp"
	TypeTime      = "time"
	TypeDate      = "date"
	TypeBinary    = "binary"
	TypeBoolean   = "boolean"
	TypeMoney     = "money"
	TypeJSON      = "json"
)

var dialects = make(map[string]Dialect)

// RegisterDialect registers a dialect under a DSN scheme or driver name.
func RegisterDialect(name string, d Dialect) {
	dialects[name] = d
}

// Lookup retrieves a registered dialect by DSN scheme or driver name.
func Lookup(name string) (Dialect, bool) {
	d, ok := dialects[strings.ToLower(name)]
	return d, ok
}

// GetDialect retrieves a registered dialect by name, panics if not found.
func GetDialect(name string) Dialect {
	if d, ok := Lookup(name); ok {
		return d
	}
	panic("unsupported dialect: " + name)
}

// ParseDSN splits a prefixed DSN ("pgsql:host=localhost dbname=app") into the
// dialect selected by the prefix and the driver DSN that follows it.
func ParseDSN(dsn string) (Dialect, string, error) {
	scheme, rest, ok := strings.Cut(dsn, ":")
	if !ok || scheme == "" {
		return nil, "", fmt.Errorf("invalid DSN %q: missing driver prefix", dsn)
	}
	d, found := Lookup(scheme)
	if !found {
		return nil, "", fmt.Errorf("invalid DSN %q: driver %q is not supported", dsn, scheme)
	}
	return d, rest, nil
}

func cloneTypeMap(m map[string]string) map[string]string {
	return maps.Clone(m)
}
