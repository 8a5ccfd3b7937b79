package dialects

// SQLiteDialect implements SQLite-specific SQL dialect.
type SQLiteDialect struct{}

func init() {
	RegisterDialect("sqlite", &SQLiteDialect{})
	RegisterDialect("sqlite2", &SQLiteDialect{})
	RegisterDialect("sqlite3", &SQLiteDialect{})
}

var sqliteTypeMap = map[string]string{
	TypePK:        "integer PRIMARY KEY AUTOINCREMENT NOT NULL",
	TypeUPK:       "integer UNSIGNED PRIMARY KEY AUTOINCREMENT NOT NULL",
	TypeBigPK:     "integer PRIMARY KEY AUTOINCREMENT NOT NULL",
	TypeUBigPK:    "integer UNSIGNED PRIMARY KEY AUTOINCREMENT NOT NULL",
	TypeChar:      "char(1)",
	TypeString:    "varchar(255)",
	TypeText:      "text",
	TypeTinyInt:   "tinyint",
	TypeSmallInt:  "smallint",
	TypeInteger:   "integer",
	TypeBigInt:    "bigint",
	TypeFloat:     "float",
	TypeDouble:    "double",
	TypeDecimal:   "decimal(10,0)",
	TypeDateTime:  "datetime",
	TypeTimestamp: "timestamp",
	TypeTime:      "time",
	TypeDate:      "date",
	TypeBinary:    "blob",
	TypeBoolean:   "boolean",
	TypeMoney:     "decimal(19,4)",
	TypeJSON:      "text",
}

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string { return "sqlite" }

// DriverName returns the registered SQLite driver: "sqlite" (modernc.org/sqlite)
// by default, "sqlite3" (mattn/go-sqlite3) when built with the cgo_sqlite tag.
func (d *SQLiteDialect) DriverName() string { return sqliteDriverName }

// TableQuoteChars returns double quotes.
func (d *SQLiteDialect) TableQuoteChars() (string, string) { return `"`, `"` }

// ColumnQuoteChars returns double quotes.
func (d *SQLiteDialect) ColumnQuoteChars() (string, string) { return `"`, `"` }

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// BackslashEscapes returns false.
func (d *SQLiteDialect) BackslashEscapes() bool { return false }

// SupportsSavepoint returns true.
func (d *SQLiteDialect) SupportsSavepoint() bool { return true }

// TypeMap returns a copy of the SQLite column type map.
func (d *SQLiteDialect) TypeMap() map[string]string { return cloneTypeMap(sqliteTypeMap) }

// ConfigureDSN returns the file name unchanged: SQLite has no credentials and
// always stores text as UTF-8.
func (d *SQLiteDialect) ConfigureDSN(dsn string, _ DSNOptions) (string, error) {
	return dsn, nil
}

// SQLState maps SQLite result codes onto SQLSTATE classes.
func (d *SQLiteDialect) SQLState(err error) string {
	code, ok := sqliteErrorCode(err)
	if !ok {
		return ""
	}
	// Extended codes keep the primary code in the low byte.
	if code&0xff == 19 { // SQLITE_CONSTRAINT
		return "23000"
	}
	return "HY000"
}
