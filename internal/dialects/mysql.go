package dialects

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQLDialect implements MySQL-specific SQL dialect.
type MySQLDialect struct{}

func init() {
	RegisterDialect("mysql", &MySQLDialect{})
	RegisterDialect("mysqli", &MySQLDialect{})
}

var mysqlTypeMap = map[string]string{
	TypePK:        "int(11) NOT NULL AUTO_INCREMENT PRIMARY KEY",
	TypeUPK:       "int(10) UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY",
	TypeBigPK:     "bigint(20) NOT NULL AUTO_INCREMENT PRIMARY KEY",
	TypeUBigPK:    "bigint(20) UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY",
	TypeChar:      "char(1)",
	TypeString:    "varchar(255)",
	TypeText:      "text",
	TypeTinyInt:   "tinyint(3)",
	TypeSmallInt:  "smallint(6)",
	TypeInteger:   "int(11)",
	TypeBigInt:    "bigint(20)",
	TypeFloat:     "float",
	TypeDouble:    "double",
	TypeDecimal:   "decimal(10,0)",
	TypeDateTime:  "datetime",
	TypeTimestamp: "timestamp",
	TypeTime:      "time",
	TypeDate:      "date",
	TypeBinary:    "blob",
	TypeBoolean:   "tinyint(1)",
	TypeMoney:     "decimal(19,4)",
	TypeJSON:      "json",
}

// Name returns "mysql".
func (d *MySQLDialect) Name() string { return "mysql" }

// DriverName returns the go-sql-driver/mysql driver name.
func (d *MySQLDialect) DriverName() string { return "mysql" }

// TableQuoteChars returns backticks.
func (d *MySQLDialect) TableQuoteChars() (string, string) { return "`", "`" }

// ColumnQuoteChars returns backticks.
func (d *MySQLDialect) ColumnQuoteChars() (string, string) { return "`", "`" }

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// BackslashEscapes returns true: MySQL treats backslash as an escape in string literals.
func (d *MySQLDialect) BackslashEscapes() bool { return true }

// SupportsSavepoint returns true.
func (d *MySQLDialect) SupportsSavepoint() bool { return true }

// TypeMap returns a copy of the MySQL column type map.
func (d *MySQLDialect) TypeMap() map[string]string { return cloneTypeMap(mysqlTypeMap) }

// ConfigureDSN sets user, password and charset on a go-sql-driver/mysql DSN
// unless the DSN already carries them.
func (d *MySQLDialect) ConfigureDSN(dsn string, opts DSNOptions) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	if cfg.User == "" {
		cfg.User = opts.Username
	}
	if cfg.Passwd == "" {
		cfg.Passwd = opts.Password
	}
	if opts.Charset != "" && !strings.Contains(dsn, "charset=") {
		if cfg.Params == nil {
			cfg.Params = make(map[string]string)
		}
		cfg.Params["charset"] = opts.Charset
	}
	return cfg.FormatDSN(), nil
}

// SQLState reads the SQLSTATE carried by a *mysql.MySQLError.
func (d *MySQLDialect) SQLState(err error) string {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return ""
	}
	if myErr.SQLState != [5]byte{} {
		return string(myErr.SQLState[:])
	}
	// Servers that omit the state still report duplicate keys and FK failures by number.
	switch myErr.Number {
	case 1062, 1451, 1452, 1048, 1216, 1217:
		return "23000"
	}
	return "HY000"
}
