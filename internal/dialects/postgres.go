package dialects

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
)

// PostgresDialect implements PostgreSQL-specific SQL dialect.
type PostgresDialect struct{}

func init() {
	RegisterDialect("pgsql", &PostgresDialect{})
	RegisterDialect("postgres", &PostgresDialect{})
	RegisterDialect("postgresql", &PostgresDialect{})
}

var postgresTypeMap = map[string]string{
	TypePK:        "serial NOT NULL PRIMARY KEY",
	TypeUPK:       "serial NOT NULL PRIMARY KEY",
	TypeBigPK:     "bigserial NOT NULL PRIMARY KEY",
	TypeUBigPK:    "bigserial NOT NULL PRIMARY KEY",
	TypeChar:      "char(1)",
	TypeString:    "varchar(255)",
	TypeText:      "text",
	TypeTinyInt:   "smallint",
	TypeSmallInt:  "smallint",
	TypeInteger:   "integer",
	TypeBigInt:    "bigint",
	TypeFloat:     "double precision",
	TypeDouble:    "double precision",
	TypeDecimal:   "numeric(10,0)",
	TypeDateTime:  "timestamp(0)",
	TypeTimestamp: "timestamp(0)",
	TypeTime:      "time(0)",
	TypeDate:      "date",
	TypeBinary:    "bytea",
	TypeBoolean:   "boolean",
	TypeMoney:     "numeric(19,4)",
	TypeJSON:      "jsonb",
}

// Name returns "pgsql".
func (d *PostgresDialect) Name() string { return "pgsql" }

// DriverName returns the lib/pq driver name.
func (d *PostgresDialect) DriverName() string { return "postgres" }

// TableQuoteChars returns double quotes.
func (d *PostgresDialect) TableQuoteChars() (string, string) { return `"`, `"` }

// ColumnQuoteChars returns double quotes.
func (d *PostgresDialect) ColumnQuoteChars() (string, string) { return `"`, `"` }

// Placeholder returns PostgreSQL placeholder format ($1, $2, etc.).
func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// BackslashEscapes returns false (standard_conforming_strings).
func (d *PostgresDialect) BackslashEscapes() bool { return false }

// SupportsSavepoint returns true.
func (d *PostgresDialect) SupportsSavepoint() bool { return true }

// TypeMap returns a copy of the PostgreSQL column type map.
func (d *PostgresDialect) TypeMap() map[string]string { return cloneTypeMap(postgresTypeMap) }

// ConfigureDSN adds user, password and client_encoding to a lib/pq DSN in
// either URL or key=value form.
func (d *PostgresDialect) ConfigureDSN(dsn string, opts DSNOptions) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		if u.User == nil && opts.Username != "" {
			if opts.Password != "" {
				u.User = url.UserPassword(opts.Username, opts.Password)
			} else {
				u.User = url.User(opts.Username)
			}
		}
		if opts.Charset != "" {
			q := u.Query()
			if q.Get("client_encoding") == "" {
				q.Set("client_encoding", opts.Charset)
				u.RawQuery = q.Encode()
			}
		}
		return u.String(), nil
	}

	parts := []string{strings.TrimSpace(dsn)}
	if opts.Username != "" && !strings.Contains(dsn, "user=") {
		parts = append(parts, "user="+pqValue(opts.Username))
	}
	if opts.Password != "" && !strings.Contains(dsn, "password=") {
		parts = append(parts, "password="+pqValue(opts.Password))
	}
	if opts.Charset != "" && !strings.Contains(dsn, "client_encoding=") {
		parts = append(parts, "client_encoding="+pqValue(opts.Charset))
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// pqValue quotes a key=value connection string value when needed.
func pqValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// SQLState reads the SQLSTATE carried by a *pq.Error.
func (d *PostgresDialect) SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
