package dialects

import "fmt"

// OracleDialect implements Oracle conventions. As with SQL Server, the driver is
// supplied by the application under the "oracle" name.
type OracleDialect struct{}

func init() {
	RegisterDialect("oci", &OracleDialect{})
	RegisterDialect("oracle", &OracleDialect{})
}

var oracleTypeMap = map[string]string{
	TypePK:        "NUMBER(10) NOT NULL PRIMARY KEY",
	TypeUPK:       "NUMBER(10) NOT NULL PRIMARY KEY",
	TypeBigPK:     "NUMBER(20) NOT NULL PRIMARY KEY",
	TypeUBigPK:    "NUMBER(20) NOT NULL PRIMARY KEY",
	TypeChar:      "CHAR(1)",
	TypeString:    "VARCHAR2(255)",
	TypeText:      "CLOB",
	TypeTinyInt:   "NUMBER(3)",
	TypeSmallInt:  "NUMBER(5)",
	TypeInteger:   "NUMBER(10)",
	TypeBigInt:    "NUMBER(20)",
	TypeFloat:     "NUMBER",
	TypeDouble:    "NUMBER",
	TypeDecimal:   "NUMBER",
	TypeDateTime:  "TIMESTAMP",
	TypeTimestamp: "TIMESTAMP",
	TypeTime:      "TIMESTAMP",
	TypeDate:      "DATE",
	TypeBinary:    "BLOB",
	TypeBoolean:   "NUMBER(1)",
	TypeMoney:     "NUMBER(19,4)",
	TypeJSON:      "CLOB",
}

// Name returns "oci".
func (d *OracleDialect) Name() string { return "oci" }

// DriverName returns "oracle".
func (d *OracleDialect) DriverName() string { return "oracle" }

// TableQuoteChars returns double quotes.
func (d *OracleDialect) TableQuoteChars() (string, string) { return `"`, `"` }

// ColumnQuoteChars returns double quotes.
func (d *OracleDialect) ColumnQuoteChars() (string, string) { return `"`, `"` }

// Placeholder returns Oracle placeholder format (:1, :2, etc.).
func (d *OracleDialect) Placeholder(index int) string {
	return fmt.Sprintf(":%d", index)
}

// BackslashEscapes returns false.
func (d *OracleDialect) BackslashEscapes() bool { return false }

// SupportsSavepoint returns true.
func (d *OracleDialect) SupportsSavepoint() bool { return true }

// TypeMap returns a copy of the Oracle column type map.
func (d *OracleDialect) TypeMap() map[string]string { return cloneTypeMap(oracleTypeMap) }

// ConfigureDSN returns the DSN unchanged.
func (d *OracleDialect) ConfigureDSN(dsn string, _ DSNOptions) (string, error) {
	return dsn, nil
}

// SQLState returns "": no Oracle driver is linked in.
func (d *OracleDialect) SQLState(_ error) string { return "" }
