package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	driver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := datasource.ConnConfig{Dialect: "mysql", Host: "localhost", Port: 3306, User: "root", Database: "sales"}
	return newAdapter(db, cfg, datasource.PoolOptions{MaxConns: 10}), mock
}

func TestRun_SelectReturnsDataResult(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery("SELECT 1 as a").WillReturnRows(
		sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("a").OfType("BIGINT", int64(0))).
			AddRow([]byte("1")),
	)

	result, err := adapter.Run(context.Background(), "SELECT 1 as a")
	require.NoError(t, err)

	assert.Equal(t, datasource.ResultKindData, result.Kind)
	assert.Equal(t, []string{"a"}, result.Columns)
	require.Len(t, result.Rows, 1)

	out, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":[{"a":1}],"columns":["a"]}`, string(out))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_UpdateReturnsStatusRow(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("UPDATE t SET v=1 WHERE id=1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT @@warning_count").WillReturnRows(
		sqlmock.NewRows([]string{"@@warning_count"}).AddRow(int64(0)),
	)

	result, err := adapter.Run(context.Background(), "UPDATE t SET v=1 WHERE id=1")
	require.NoError(t, err)

	assert.Equal(t, datasource.ResultKindStatus, result.Kind)
	assert.Equal(t, StatusColumns, result.Columns)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	status, _ := row.Get("status")
	affected, _ := row.Get("affected_rows")
	insertID, _ := row.Get("insert_id")
	warnings, _ := row.Get("warning_count")
	message, _ := row.Get("message")
	assert.Equal(t, "Success", status)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, int64(0), insertID)
	assert.Equal(t, int64(0), warnings)
	assert.Equal(t, "Rows affected: 1", message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_InsertReportsInsertID(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("INSERT INTO t (v) VALUES (1)").WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery("SELECT @@warning_count").WillReturnRows(
		sqlmock.NewRows([]string{"@@warning_count"}).AddRow(int64(2)),
	)

	result, err := adapter.Run(context.Background(), "INSERT INTO t (v) VALUES (1);")
	require.NoError(t, err)

	insertID, _ := result.Rows[0].Get("insert_id")
	warnings, _ := result.Rows[0].Get("warning_count")
	assert.Equal(t, int64(42), insertID)
	assert.Equal(t, int64(2), warnings)
}

func TestRun_LastStatementWins(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("INSERT INTO t VALUES (1)").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT * FROM t").WillReturnRows(
		sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("id").OfType("INT", int64(0)),
			sqlmock.NewColumn("name").OfType("VARCHAR", ""),
		).AddRow([]byte("1"), []byte("alpha")).AddRow([]byte("2"), []byte("beta")),
	)
	mock.ExpectClose()

	result, err := adapter.Run(context.Background(), "INSERT INTO t VALUES (1); SELECT * FROM t")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, result.Columns)
	require.Len(t, result.Rows, 2)
	name, _ := result.Rows[1].Get("name")
	assert.Equal(t, "beta", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_SelectThenUpdateReturnsStatus(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE t SET v = 2").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("SELECT @@warning_count").WillReturnRows(
		sqlmock.NewRows([]string{"@@warning_count"}).AddRow(int64(0)),
	)
	mock.ExpectClose()

	result, err := adapter.Run(context.Background(), "SELECT 1; UPDATE t SET v = 2")
	require.NoError(t, err)

	assert.Equal(t, datasource.ResultKindStatus, result.Kind)
	affected, _ := result.Rows[0].Get("affected_rows")
	assert.Equal(t, int64(3), affected)
}

func TestRun_SessionPreludeDiscardsConnection(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec("USE other_db").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 AS a").WillReturnRows(
		sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("a").OfType("BIGINT", int64(0))).
			AddRow([]byte("1")),
	)
	mock.ExpectClose()

	_, err := adapter.Run(context.Background(), "USE other_db; SELECT 1 AS a")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "connection with a changed default database is closed")
}

func TestRun_SingleStatementReusesConnection(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT 1 AS a").WillReturnRows(
			sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("a").OfType("BIGINT", int64(0))).
				AddRow([]byte("1")),
		)
	}

	for i := 0; i < 2; i++ {
		_, err := adapter.Run(context.Background(), "SELECT 1 AS a")
		require.NoError(t, err)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_EmptyResultSetKeepsColumns(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery("SELECT id FROM t WHERE 1 = 0").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	result, err := adapter.Run(context.Background(), "SELECT id FROM t WHERE 1 = 0")
	require.NoError(t, err)

	assert.Equal(t, []string{"id"}, result.Columns)
	assert.NotNil(t, result.Rows)
	assert.Empty(t, result.Rows)
}

func TestRun_DriverErrorPropagatesUnchanged(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	driverErr := &driver.MySQLError{Number: 1146, Message: "Table 'sales.missing' doesn't exist"}
	mock.ExpectExec("UPDATE missing SET v = 1").WillReturnError(driverErr)

	_, err := adapter.Run(context.Background(), "UPDATE missing SET v = 1; UPDATE other SET v = 1")
	require.Error(t, err)

	var stmtErr *apperrors.StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Equal(t, driverErr.Error(), err.Error())

	var mysqlErr *driver.MySQLError
	require.True(t, errors.As(err, &mysqlErr))
	assert.Equal(t, uint16(1146), mysqlErr.Number)
	assert.NoError(t, mock.ExpectationsWereMet(), "statements after a failure are not executed")
}

func TestRun_EmptySQL(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	result, err := adapter.Run(context.Background(), "  -- nothing here\n")
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Empty(t, result.Columns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		dbType   string
		expected any
	}{
		{"nil", nil, "INT", nil},
		{"native int64", int64(7), "BIGINT", int64(7)},
		{"int bytes", []byte("42"), "INT", int64(42)},
		{"unsigned bigint bytes", []byte("18446744073709551615"), "UNSIGNED BIGINT", uint64(18446744073709551615)},
		{"double bytes", []byte("2.5"), "DOUBLE", 2.5},
		{"decimal stays exact", []byte("10.10"), "DECIMAL", "10.10"},
		{"varchar", []byte("hello"), "VARCHAR", "hello"},
		{"text", []byte("long"), "TEXT", "long"},
		{"json", []byte(`{"a":1}`), "JSON", `{"a":1}`},
		{"blob stays bytes", []byte{0x00, 0x01}, "BLOB", []byte{0x00, 0x01}},
		{"time", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "DATETIME", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, convertValue(tt.value, tt.dbType))
		})
	}
}

func TestBuildDSN(t *testing.T) {
	cfg := datasource.ConnConfig{
		Host:     "db.internal",
		Port:     3307,
		User:     "root",
		Password: "p@ss:w/rd",
		Database: "sales",
		Params:   map[string]string{"sslmode": "disable", "charset": "utf8mb4"},
	}

	dsn := buildDSN(cfg, datasource.PoolOptions{ConnectTimeoutSeconds: 5})
	parsed, err := driver.ParseDSN(dsn)
	require.NoError(t, err)

	assert.Equal(t, "root", parsed.User)
	assert.Equal(t, "p@ss:w/rd", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "sales", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.False(t, parsed.MultiStatements)
	assert.Equal(t, 5*time.Second, parsed.Timeout)
	assert.Equal(t, "utf8mb4", parsed.Params["charset"])
	_, hasSSLMode := parsed.Params["sslmode"]
	assert.False(t, hasSSLMode)
}

func TestBuildMigrationDSN_EnablesMultiStatements(t *testing.T) {
	cfg := datasource.ConnConfig{Host: "db.internal", User: "root", Password: "secret", Database: "notebook_system"}

	parsed, err := driver.ParseDSN(buildMigrationDSN(cfg, datasource.PoolOptions{}))
	require.NoError(t, err)
	assert.True(t, parsed.MultiStatements, "migration files hold several statements")
	assert.Equal(t, "notebook_system", parsed.DBName)
	assert.True(t, parsed.ParseTime)

	pool, err := driver.ParseDSN(buildDSN(cfg, datasource.PoolOptions{}))
	require.NoError(t, err)
	assert.False(t, pool.MultiStatements)
}

func TestBuildPythonURL_EncodesCredentials(t *testing.T) {
	cfg := datasource.ConnConfig{
		Host:     "db.internal",
		Port:     3306,
		User:     "an alyst",
		Password: "p@ss/w:rd#1",
		Database: "sales",
	}

	raw := buildPythonURL(cfg)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "mysql+pymysql", u.Scheme)
	assert.Equal(t, "an alyst", u.User.Username())
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss/w:rd#1", password)
	assert.Equal(t, "db.internal:3306", u.Host)
	assert.Equal(t, "/sales", u.Path)
	assert.NotContains(t, raw, "p@ss")
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`orders`", quoteIdentifier("orders"))
	assert.Equal(t, "`we``ird`", quoteIdentifier("we`ird"))
	assert.Equal(t, "`nb_1`.`orders`", qualified("nb_1", "orders"))
}
