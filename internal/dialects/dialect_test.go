package dialects

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn      string
		name     string
		driverDS string
	}{
		{"mysql:root@tcp(localhost:3306)/app", "mysql", "root@tcp(localhost:3306)/app"},
		{"pgsql:host=localhost dbname=app", "pgsql", "host=localhost dbname=app"},
		{"postgres:postgres://localhost/app", "pgsql", "postgres://localhost/app"},
		{"sqlite::memory:", "sqlite", ":memory:"},
		{"sqlsrv:sqlserver://sa@localhost", "sqlsrv", "sqlserver://sa@localhost"},
		{"oci:scott/tiger@orcl", "oci", "scott/tiger@orcl"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			d, rest, err := ParseDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
			assert.Equal(t, tt.driverDS, rest)
		})
	}
}

func TestParseDSN_Invalid(t *testing.T) {
	_, _, err := ParseDSN("no-prefix")
	assert.Error(t, err)

	_, _, err = ParseDSN("firebird:localhost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firebird")
}

func TestGetDialect_PanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { GetDialect("nope") })
	assert.NotPanics(t, func() { GetDialect("sqlite3") })
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", GetDialect("mysql").Placeholder(3))
	assert.Equal(t, "$3", GetDialect("pgsql").Placeholder(3))
	assert.Equal(t, "?", GetDialect("sqlite").Placeholder(3))
	assert.Equal(t, "@p3", GetDialect("sqlsrv").Placeholder(3))
	assert.Equal(t, ":3", GetDialect("oci").Placeholder(3))
}

func TestTypeMap_ReturnsCopy(t *testing.T) {
	d := GetDialect("pgsql")
	m := d.TypeMap()
	m[TypeString] = "changed"
	assert.Equal(t, "varchar(255)", d.TypeMap()[TypeString])
}

func TestTypeMap_CoversAbstractTypes(t *testing.T) {
	abstract := []string{
		TypePK, TypeUPK, TypeBigPK, TypeUBigPK, TypeChar, TypeString, TypeText,
		TypeTinyInt, TypeSmallInt, TypeInteger, TypeBigInt, TypeFloat, TypeDouble,
		TypeDecimal, TypeDateTime, TypeTimestamp, TypeTime, TypeDate, TypeBinary,
		TypeBoolean, TypeMoney, TypeJSON,
	}
	for _, name := range []string{"mysql", "pgsql", "sqlite", "sqlsrv", "oci"} {
		m := GetDialect(name).TypeMap()
		for _, typ := range abstract {
			assert.NotEmpty(t, m[typ], "%s: %s", name, typ)
		}
	}
}

func TestMySQL_ConfigureDSN(t *testing.T) {
	d := GetDialect("mysql")
	dsn, err := d.ConfigureDSN("tcp(localhost:3306)/app", DSNOptions{
		Username: "root",
		Password: "secret",
		Charset:  "utf8mb4",
	})
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "secret", cfg.Passwd)
	assert.Equal(t, "app", cfg.DBName)
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestPostgres_ConfigureDSN(t *testing.T) {
	d := GetDialect("pgsql")

	dsn, err := d.ConfigureDSN("host=localhost dbname=app", DSNOptions{Username: "app", Password: "p w", Charset: "UTF8"})
	require.NoError(t, err)
	assert.Equal(t, `host=localhost dbname=app user=app password='p w' client_encoding=UTF8`, dsn)

	dsn, err = d.ConfigureDSN("postgres://localhost/app?sslmode=disable", DSNOptions{Username: "app", Charset: "UTF8"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@localhost/app?client_encoding=UTF8&sslmode=disable", dsn)
}

func TestSQLState(t *testing.T) {
	pgErr := fmt.Errorf("exec: %w", &pq.Error{Code: "23505", Message: "duplicate key"})
	assert.Equal(t, "23505", GetDialect("pgsql").SQLState(pgErr))
	assert.Equal(t, "", GetDialect("pgsql").SQLState(errors.New("boom")))

	myErr := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.Equal(t, "23000", GetDialect("mysql").SQLState(myErr))

	myErr = &mysql.MySQLError{Number: 1146, SQLState: [5]byte{'4', '2', 'S', '0', '2'}}
	assert.Equal(t, "42S02", GetDialect("mysql").SQLState(myErr))

	assert.Equal(t, "", GetDialect("sqlite").SQLState(errors.New("plain")))
}
