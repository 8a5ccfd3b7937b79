package schema

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/dialects"
)

func newMockSchema(t *testing.T, dialect string) (*Schema, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	orig := intSize
	intSize = 64
	t.Cleanup(func() { intSize = orig })

	return New(Options{Dialect: dialects.GetDialect(dialect), DB: db}), mock
}

func TestMySQLLoader_LoadTableSchema(t *testing.T) {
	s, mock := newMockSchema(t, "mysql")

	columns := []string{"Field", "Type", "Collation", "Null", "Key", "Default", "Extra", "Privileges", "Comment"}
	mock.ExpectQuery(regexp.QuoteMeta("SHOW FULL COLUMNS FROM `user`")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id", "int(11) unsigned", nil, "NO", "PRI", nil, "auto_increment", "", "").
			AddRow("org_id", "int(11)", nil, "NO", "MUL", nil, "", "", "").
			AddRow("status", "tinyint(1)", nil, "NO", "", "1", "", "", "flag").
			AddRow("kind", "enum('a','b')", nil, "YES", "", "a", "", "", "").
			AddRow("updated_at", "timestamp(3)", nil, "YES", "", "CURRENT_TIMESTAMP(3)", "", "", ""))
	mock.ExpectQuery("FROM information_schema.key_column_usage").
		WithArgs("user").
		WillReturnRows(sqlmock.NewRows([]string{
			"name", "column_name", "foreign_table_schema", "foreign_table_name",
			"foreign_column_name", "on_update", "on_delete",
		}).AddRow("fk_user_org", "org_id", "app", "org", "id", "CASCADE", "RESTRICT"))

	table, err := s.GetTableSchema(context.Background(), "user", false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"id"}, table.PrimaryKey)
	id := table.Column("id")
	assert.True(t, id.AutoIncrement)
	assert.True(t, id.Unsigned)
	assert.Equal(t, dialects.TypeInteger, id.Type)
	assert.Equal(t, KindInteger, id.GoType)

	status := table.Column("status")
	assert.Equal(t, dialects.TypeBoolean, status.Type)
	assert.Equal(t, true, status.DefaultValue)
	assert.Equal(t, "flag", status.Comment)

	kind := table.Column("kind")
	assert.Equal(t, []string{"a", "b"}, kind.EnumValues)
	assert.Equal(t, "a", kind.DefaultValue)

	assert.Equal(t, "CURRENT_TIMESTAMP(3)", table.Column("updated_at").DefaultValue)

	require.Len(t, table.ForeignKeys, 1)
	assert.Equal(t, ForeignKey{
		Name:           "fk_user_org",
		ForeignTable:   "org",
		Columns:        []string{"org_id"},
		ForeignColumns: []string{"id"},
	}, table.ForeignKeys[0])
}

func TestMySQLLoader_MissingTable(t *testing.T) {
	s, mock := newMockSchema(t, "mysql")

	mock.ExpectQuery(regexp.QuoteMeta("SHOW FULL COLUMNS FROM `missing`")).
		WillReturnError(&mysql.MySQLError{Number: 1146, SQLState: [5]byte{'4', '2', 'S', '0', '2'}, Message: "Table 'app.missing' doesn't exist"})

	table, err := s.GetTableSchema(context.Background(), "missing", false)
	require.NoError(t, err)
	assert.Nil(t, table)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLLoader_Indexes(t *testing.T) {
	s, mock := newMockSchema(t, "mysql")

	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"Table", "Non_unique", "Key_name", "Seq_in_index", "Column_name"}).
			AddRow("user", int64(0), "PRIMARY", int64(1), "id").
			AddRow("user", int64(0), "uq_email", int64(1), "email").
			AddRow("user", int64(1), "idx_name", int64(1), "first").
			AddRow("user", int64(1), "idx_name", int64(2), "last")
	}
	mock.ExpectQuery(regexp.QuoteMeta("SHOW INDEX FROM `user`")).WillReturnRows(rows())
	mock.ExpectQuery(regexp.QuoteMeta("SHOW INDEX FROM `user`")).WillReturnRows(rows())

	ctx := context.Background()
	indexes, err := s.GetTableIndexes(ctx, "user", false)
	require.NoError(t, err)
	require.Len(t, indexes, 3)
	assert.True(t, indexes[0].IsPrimary)
	assert.Equal(t, []string{"first", "last"}, indexes[2].ColumnNames)

	uniques, err := s.GetTableUniques(ctx, "user", false)
	require.NoError(t, err)
	require.Len(t, uniques, 1)
	assert.Equal(t, "uq_email", uniques[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgsqlLoader_LoadTableSchema(t *testing.T) {
	s, mock := newMockSchema(t, "pgsql")

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("public", "user").
		WillReturnRows(sqlmock.NewRows([]string{
			"column_name", "data_type", "udt_name", "is_nullable", "column_default",
			"character_maximum_length", "numeric_precision", "numeric_scale", "column_comment",
		}).
			AddRow("id", "integer", "int4", "NO", "nextval('user_id_seq'::regclass)", nil, int64(32), int64(0), nil).
			AddRow("name", "character varying", "varchar", "NO", "'anon'::character varying", int64(100), nil, nil, "display name").
			AddRow("active", "boolean", "bool", "YES", "true", nil, nil, nil, nil).
			AddRow("price", "numeric", "numeric", "YES", "0.00", nil, int64(10), int64(2), nil).
			AddRow("data", "jsonb", "jsonb", "YES", nil, nil, nil, nil, nil))

	constraintColumns := []string{
		"name", "type", "column_name", "foreign_table_schema", "foreign_table_name",
		"foreign_column_name", "on_update", "on_delete", "check_expr",
	}
	mock.ExpectQuery("FROM pg_constraint").
		WithArgs("public", "user").
		WillReturnRows(sqlmock.NewRows(constraintColumns).
			AddRow("user_pkey", "p", "id", nil, nil, nil, " ", " ", "PRIMARY KEY (id)"))
	mock.ExpectQuery("FROM pg_constraint").
		WithArgs("public", "user").
		WillReturnRows(sqlmock.NewRows(constraintColumns))

	table, err := s.GetTableSchema(context.Background(), "user", false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "user_id_seq", table.SequenceName)
	assert.Equal(t, []string{"id"}, table.PrimaryKey)

	id := table.Column("id")
	assert.True(t, id.AutoIncrement)
	assert.True(t, id.IsPrimaryKey)
	assert.Nil(t, id.DefaultValue)

	name := table.Column("name")
	assert.Equal(t, dialects.TypeString, name.Type)
	assert.Equal(t, 100, name.Size)
	assert.Equal(t, "anon", name.DefaultValue)
	assert.Equal(t, "display name", name.Comment)

	assert.Equal(t, true, table.Column("active").DefaultValue)
	assert.Equal(t, "0.00", table.Column("price").DefaultValue)

	data := table.Column("data")
	assert.Equal(t, dialects.TypeJSON, data.Type)
	assert.Equal(t, KindArray, data.GoType)
}

func TestPgsqlLoader_ForeignKeys(t *testing.T) {
	s, mock := newMockSchema(t, "pgsql")

	mock.ExpectQuery("FROM pg_constraint").
		WithArgs("sales", "order").
		WillReturnRows(sqlmock.NewRows([]string{
			"name", "type", "column_name", "foreign_table_schema", "foreign_table_name",
			"foreign_column_name", "on_update", "on_delete", "check_expr",
		}).
			AddRow("order_customer_fk", "f", "customer_id", "public", "customer", "id", "a", "c", "").
			AddRow("order_customer_fk", "f", "region", "public", "customer", "region", "a", "c", ""))

	fks, err := s.GetTableForeignKeys(context.Background(), "sales.order", false)
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, []string{"customer_id", "region"}, fks[0].ColumnNames)
	assert.Equal(t, []string{"id", "region"}, fks[0].ForeignColumns)
	assert.Equal(t, "CASCADE", fks[0].OnDelete)
	assert.Equal(t, "NO ACTION", fks[0].OnUpdate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgsqlLoader_FindTableNames(t *testing.T) {
	s, mock := newMockSchema(t, "pgsql")

	mock.ExpectQuery("FROM pg_class c").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("post").AddRow("user"))

	names, err := s.GetTableNames(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"post", "user"}, names)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoaderFor(t *testing.T) {
	assert.IsType(t, &sqliteLoader{}, LoaderFor(dialects.GetDialect("sqlite3")))
	assert.IsType(t, &mysqlLoader{}, LoaderFor(dialects.GetDialect("mysqli")))
	assert.IsType(t, &pgsqlLoader{}, LoaderFor(dialects.GetDialect("postgres")))

	l := LoaderFor(dialects.GetDialect("oci"))
	_, err := l.FindTableNames(context.Background(), nil, "")
	assert.ErrorIs(t, err, dberr.ErrNotSupported)
}
