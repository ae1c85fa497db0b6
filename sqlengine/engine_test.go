package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pkgz/lgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	tb "github.com/transaction/transbase-go"
)

func connectSQLite(t *testing.T) (*tb.Transbase, *Engine) {
	t.Helper()
	eng := New(WithLogger(lgr.NoOp))
	cfg := tb.Config{URL: "file:" + filepath.Join(t.TempDir(), "test.db"), User: "tbadmin"}
	client, err := tb.Connect(cfg, eng, tb.WithLogger(lgr.NoOp))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, client.Close()) })
	return client, eng
}

func TestEngine_SQLite(t *testing.T) {
	client, _ := connectSQLite(t)

	res, err := client.Query("create table cashbook (nr integer, amount double, comment text, data blob)")
	require.NoError(t, err)
	assert.Equal(t, "SCHEMA", res.QueryType.String())

	res, err = client.Query("insert into cashbook values (?, ?, ?, ?)", 1, 100.5, "deposit", []byte{0xca, 0xfe})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsTouched)
	_, err = client.Query("insert into cashbook (nr, amount) values (:nr, :amount)", map[string]any{"nr": 2, "amount": -20.25})
	require.NoError(t, err)

	res, err = client.Query("select nr, amount, comment, data from cashbook order by nr")
	require.NoError(t, err)
	require.NotNil(t, res.ResultSet)
	types := []string{}
	for _, c := range res.ResultSet.Columns() {
		types = append(types, c.TypeName())
	}
	assert.Equal(t, []string{"BIGINT", "DOUBLE", "VARCHAR", "BLOB"}, types)

	rows, err := res.ResultSet.ToArray()
	require.NoError(t, err)
	assert.Equal(t, []tb.Row{
		{"nr": int64(1), "amount": 100.5, "comment": "deposit", "data": []byte{0xca, 0xfe}},
		{"nr": int64(2), "amount": -20.25, "comment": nil, "data": nil},
	}, rows)

	res, err = client.Query("update cashbook set amount = 0")
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsTouched)
	assert.Equal(t, "UPDATE", res.QueryType.String())
}

func TestEngine_SQLiteExpressions(t *testing.T) {
	client, _ := connectSQLite(t)

	res, err := client.Query("select ? as n, ? as s, ? as f, ? as b", int64(1)<<40, "grüße", 0.5, true)
	require.NoError(t, err)
	row, err := res.ResultSet.Next()
	require.NoError(t, err)
	assert.Equal(t, tb.Row{"n": int64(1) << 40, "s": "grüße", "f": 0.5, "b": int64(1)}, row)

	off := false
	res, err = client.Query("select 42 as answer", tb.QueryOptions{TypeCast: &off})
	require.NoError(t, err)
	row, err = res.ResultSet.Next()
	require.NoError(t, err)
	assert.Equal(t, tb.Row{"answer": "42"}, row)
}

func TestEngine_SQLiteTransaction(t *testing.T) {
	client, _ := connectSQLite(t)
	_, err := client.Query("create table t (a integer)")
	require.NoError(t, err)

	require.NoError(t, client.BeginTransaction())
	_, err = client.Query("insert into t values (1)")
	require.NoError(t, err)
	v, err := client.VersionInfo()
	require.NoError(t, err)
	assert.Equal(t, ClientVersion, v.Client)
	assert.NotEmpty(t, v.Server)
	require.NoError(t, client.Rollback())

	res, err := client.Query("select count(*) as n from t")
	require.NoError(t, err)
	row, err := res.ResultSet.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0), row["n"])

	require.NoError(t, client.BeginTransaction())
	_, err = client.Query("insert into t values (2)")
	require.NoError(t, err)
	require.NoError(t, client.Commit())
	assert.Error(t, client.Commit())

	res, err = client.Query("select a from t")
	require.NoError(t, err)
	rows, err := res.ResultSet.ToArray()
	require.NoError(t, err)
	assert.Equal(t, []tb.Row{{"a": int64(2)}}, rows)
}

func TestEngine_Errors(t *testing.T) {
	client, _ := connectSQLite(t)

	_, err := client.Query("select * from missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")

	_, err = client.Query("select :a, ?", map[string]any{"a": 1})
	require.Error(t, err)

	_, err = tb.Connect(tb.Config{URL: "//localhost:2024/sample", User: "tbadmin"},
		New(WithLogger(lgr.NoOp)), tb.WithLogger(lgr.NoOp))
	assert.ErrorContains(t, err, "Invalid connection string")
}

func TestEngine_Release(t *testing.T) {
	eng := New(WithLogger(lgr.NoOp))
	s := tb.NewSession(eng, tb.WithLogger(lgr.NoOp))
	require.NoError(t, s.Connect(":memory:", "tbadmin", ""))
	require.NoError(t, s.BeginTransaction())
	require.NoError(t, s.Close())

	eng.mu.Lock()
	defer eng.mu.Unlock()
	assert.Empty(t, eng.envs)
	assert.Empty(t, eng.errs)
	assert.Empty(t, eng.conns)
	assert.Empty(t, eng.txs)
	assert.Empty(t, eng.stmts)
	assert.Empty(t, eng.rsets)
}

func TestPositional(t *testing.T) {
	eng := New(WithLogger(lgr.NoOp))
	env, _ := eng.AllocEnvironment()
	errh, _ := eng.AllocError(env)
	ch, _ := eng.AllocConnection(env, errh)
	sh, _ := eng.AllocStatement(ch, errh)
	rh, _ := eng.AllocResultSet(sh, errh)
	require.Equal(t, tb.StateSuccess, eng.Prepare(sh, "select ?, ?, ?"))

	require.Equal(t, tb.StateSuccess, eng.SetData(rh, 3, []byte("c"), tb.CChar, false))
	require.Equal(t, tb.StateSuccess, eng.SetData(rh, 1, []byte{1}, tb.CInt1, false))
	assert.Equal(t, []any{true, nil, "c"}, positional(eng.stmts[sh].params))

	assert.Equal(t, tb.StateError, eng.SetData(rh, 0, []byte("x"), tb.CChar, false))
	assert.Equal(t, "invalid parameter position 0", eng.GetError(errh).Message)
}

func TestDatabaseSQL(t *testing.T) {
	dsn := fmt.Sprintf("url='file:%s' user=tbadmin password=''", filepath.Join(t.TempDir(), "sql.db"))
	db, err := sql.Open("transbase", dsn)
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	_, err = db.Exec("create table t (a integer, b text)")
	require.NoError(t, err)
	_, err = db.Exec("insert into t values (?, ?), (?, :x)", 1, "one", 2, sql.Named("x", nil))
	assert.ErrorContains(t, err, "named and positional parameters can't be mixed")

	res, err := db.Exec("insert into t values (?, ?), (?, ?)", 1, "one", 2, nil)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var b sql.NullString
	require.NoError(t, db.QueryRow("select b from t where a = :a", sql.Named("a", 2)).Scan(&b))
	assert.False(t, b.Valid)
	require.NoError(t, db.QueryRow("select b from t where a = ?", 1).Scan(&b))
	assert.Equal(t, "one", b.String)

	_, err = db.Exec("insert into t values (?, ?)", sql.NullInt64{Int64: 3, Valid: true}, sql.NullString{})
	require.NoError(t, err)
	var nulls int
	require.NoError(t, db.QueryRow("select count(*) from t where a = 3 and b is null").Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestEngine_SQLiteWideIntegers(t *testing.T) {
	client, _ := connectSQLite(t)
	_, err := client.Query("create table t (small int, big integer)")
	require.NoError(t, err)
	_, err = client.Query("insert into t values (?, ?)", 7, int64(5000000000))
	require.NoError(t, err)

	res, err := client.Query("select small, big from t")
	require.NoError(t, err)
	row, err := res.ResultSet.Next()
	require.NoError(t, err)
	assert.Equal(t, tb.Row{"small": int64(7), "big": int64(5000000000)}, row)
}

// TestEngine_Servers runs against real postgres and mysql servers, it
// needs docker and is enabled by TRANSBASE_CONTAINER_TESTS.
func TestEngine_Servers(t *testing.T) {
	if os.Getenv("TRANSBASE_CONTAINER_TESTS") == "" {
		t.Skip("TRANSBASE_CONTAINER_TESTS is not set")
	}
	ctx := context.Background()
	pgContainer, pgURL, mysqlContainer, mysqlURL := setupTestContainers(t)
	defer func() {
		require.NoError(t, pgContainer.Terminate(ctx))
		require.NoError(t, mysqlContainer.Terminate(ctx))
	}()

	tests := []struct {
		name     string
		url      string
		user     string
		password string
		ddl      string
	}{
		{name: "postgres", url: pgURL, user: "postgres", password: "password",
			ddl: "create table cashbook (nr integer, comment varchar(100), data bytea)"},
		{name: "mysql", url: mysqlURL, user: "root", password: "password",
			ddl: "create table cashbook (nr integer, comment varchar(100), data blob)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := tb.Connect(tb.Config{URL: tt.url, User: tt.user, Password: tt.password},
				New(WithLogger(lgr.NoOp)), tb.WithLogger(lgr.NoOp))
			require.NoError(t, err)
			defer client.Close()

			v, err := client.VersionInfo()
			require.NoError(t, err)
			assert.NotEmpty(t, v.Server)

			_, err = client.Query(tt.ddl)
			require.NoError(t, err)
			res, err := client.Query("insert into cashbook values (?, ?, ?)", 1, "deposit", []byte{1, 2})
			require.NoError(t, err)
			assert.Equal(t, 1, res.RecordsTouched)

			res, err = client.Query("select nr, comment, data from cashbook where nr = :nr", map[string]any{"nr": 1})
			require.NoError(t, err)
			rows, err := res.ResultSet.ToArray()
			require.NoError(t, err)
			assert.Equal(t, []tb.Row{{"nr": int32(1), "comment": "deposit", "data": []byte{1, 2}}}, rows)

			_, err = client.Query("select * from missing")
			require.Error(t, err)
		})
	}

	_, err := tb.Connect(tb.Config{URL: pgURL, User: "postgres", Password: "wrong"},
		New(WithLogger(lgr.NoOp)), tb.WithLogger(lgr.NoOp))
	var engErr *tb.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "28P01", engErr.Record.SQLCode)
}

func setupTestContainers(t *testing.T) (pc testcontainers.Container, ps string, mc testcontainers.Container, ms string) {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env:          map[string]string{"POSTGRES_PASSWORD": "password"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err)
	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	pgURL := fmt.Sprintf("postgres://%s:%d/postgres?sslmode=disable", pgHost, pgPort.Int())

	mysqlReq := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env:          map[string]string{"MYSQL_ROOT_PASSWORD": "password", "MYSQL_DATABASE": "sample"},
		WaitingFor:   wait.ForLog("port: 3306  MySQL Community Server - GPL"),
	}
	mysqlContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: mysqlReq,
		Started:          true,
	})
	require.NoError(t, err)
	mysqlHost, err := mysqlContainer.Host(ctx)
	require.NoError(t, err)
	mysqlPort, err := mysqlContainer.MappedPort(ctx, "3306")
	require.NoError(t, err)
	mysqlURL := fmt.Sprintf("tcp(%s:%d)/sample", mysqlHost, mysqlPort.Int())

	return pgContainer, pgURL, mysqlContainer, mysqlURL
}
