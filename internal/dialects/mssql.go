package dialects

import "fmt"

// MSSQLDialect implements Microsoft SQL Server conventions. dbal does not bundle
// a SQL Server driver: register one under "sqlserver" before opening a connection.
type MSSQLDialect struct{}

func init() {
	RegisterDialect("sqlsrv", &MSSQLDialect{})
	RegisterDialect("mssql", &MSSQLDialect{})
	RegisterDialect("dblib", &MSSQLDialect{})
}

var mssqlTypeMap = map[string]string{
	TypePK:        "int IDENTITY PRIMARY KEY",
	TypeUPK:       "int IDENTITY PRIMARY KEY",
	TypeBigPK:     "bigint IDENTITY PRIMARY KEY",
	TypeUBigPK:    "bigint IDENTITY PRIMARY KEY",
	TypeChar:      "nchar(1)",
	TypeString:    "nvarchar(255)",
	TypeText:      "nvarchar(max)",
	TypeTinyInt:   "tinyint",
	TypeSmallInt:  "smallint",
	TypeInteger:   "int",
	TypeBigInt:    "bigint",
	TypeFloat:     "float",
	TypeDouble:    "float",
	TypeDecimal:   "decimal(18,0)",
	TypeDateTime:  "datetime",
	TypeTimestamp: "datetime",
	TypeTime:      "time",
	TypeDate:      "date",
	TypeBinary:    "varbinary(max)",
	TypeBoolean:   "bit",
	TypeMoney:     "decimal(19,4)",
	TypeJSON:      "nvarchar(max)",
}

// Name returns "sqlsrv".
func (d *MSSQLDialect) Name() string { return "sqlsrv" }

// DriverName returns "sqlserver".
func (d *MSSQLDialect) DriverName() string { return "sqlserver" }

// TableQuoteChars returns square brackets.
func (d *MSSQLDialect) TableQuoteChars() (string, string) { return "[", "]" }

// ColumnQuoteChars returns square brackets.
func (d *MSSQLDialect) ColumnQuoteChars() (string, string) { return "[", "]" }

// Placeholder returns SQL Server placeholder format (@p1, @p2, etc.).
func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index)
}

// BackslashEscapes returns false.
func (d *MSSQLDialect) BackslashEscapes() bool { return false }

// SupportsSavepoint returns true.
func (d *MSSQLDialect) SupportsSavepoint() bool { return true }

// TypeMap returns a copy of the SQL Server column type map.
func (d *MSSQLDialect) TypeMap() map[string]string { return cloneTypeMap(mssqlTypeMap) }

// ConfigureDSN returns the DSN unchanged.
func (d *MSSQLDialect) ConfigureDSN(dsn string, _ DSNOptions) (string, error) {
	return dsn, nil
}

// SQLState returns "": no SQL Server driver is linked in.
func (d *MSSQLDialect) SQLState(_ error) string { return "" }
