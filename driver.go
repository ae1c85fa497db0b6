package transbase

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-pkgz/lgr"
)

type Rows struct {
	s       *Session
	columns []ColumnInfo
	done    bool
}

func (r *Rows) Columns() []string {
	columns := []string{}
	for _, c := range r.columns {
		columns = append(columns, c.Name)
	}

	return columns
}

// ColumnTypeDatabaseTypeName returns the SQL type name, e.g. "INTEGER".
func (r *Rows) ColumnTypeDatabaseTypeName(index int) string {
	return r.columns[index].TypeName()
}

func (r *Rows) Close() error {
	r.done = true
	return nil
}

func (r *Rows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	ok, err := r.s.Fetch()
	if err != nil {
		return err
	}
	if !ok {
		r.done = true
		return io.EOF
	}

	for i, c := range r.columns {
		v, err := r.s.GetValueCast(c.Col, c.Type, true)
		if err != nil {
			return err
		}
		switch x := v.(type) {
		case int32:
			dest[i] = int64(x)
		case float32:
			dest[i] = float64(x)
		default:
			dest[i] = v
		}
	}

	return nil
}

type execResult struct {
	rowsAffected int64
}

func (r execResult) LastInsertId() (int64, error) {
	return 0, errors.New("LastInsertId is not supported")
}

func (r execResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type Stmt struct {
	c     *Conn
	query string
}

func (s *Stmt) Close() error { return nil }

// NumInput is -1, parameters are checked by the engine.
func (s *Stmt) NumInput() int { return -1 }

func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

func (s *Stmt) ExecContext(_ context.Context, args []driver.NamedValue) (driver.Result, error) {
	qt, err := s.c.run(s.query, args)
	if err != nil {
		return nil, err
	}
	if qt.IsSelect() {
		return execResult{}, nil
	}
	touched, err := s.c.tb.s.GetResultSetAttribute(AttrRecordsTouched, 1)
	if err != nil {
		return nil, err
	}
	return execResult{rowsAffected: int64(touched)}, nil
}

func (s *Stmt) QueryContext(_ context.Context, args []driver.NamedValue) (driver.Rows, error) {
	qt, err := s.c.run(s.query, args)
	if err != nil {
		return nil, err
	}
	if !qt.IsSelect() {
		return &Rows{s: s.c.tb.s, done: true}, nil
	}
	rs, err := newResultSet(s.c.tb.s, true)
	if err != nil {
		return nil, err
	}
	return &Rows{s: s.c.tb.s, columns: rs.Columns()}, nil
}

func namedValues(args []driver.Value) []driver.NamedValue {
	res := make([]driver.NamedValue, len(args))
	for i, a := range args {
		res[i] = driver.NamedValue{Ordinal: i + 1, Value: a}
	}
	return res
}

type Tx struct {
	c *Conn
}

func (t *Tx) Commit() error   { return t.c.tb.Commit() }
func (t *Tx) Rollback() error { return t.c.tb.Rollback() }

// Conn is one session. Rows read from the session's only result set, so
// they are invalid once the next statement runs on the same Conn.
type Conn struct {
	tb *Transbase
}

func (dc *Conn) run(query string, args []driver.NamedValue) (QueryType, error) {
	s := dc.tb.s
	if len(args) == 0 {
		if err := s.ExecuteDirect(query); err != nil {
			return 0, err
		}
		return s.GetQueryType()
	}

	if err := s.Prepare(query); err != nil {
		return 0, err
	}
	for _, a := range args {
		t := Position(a.Ordinal - 1)
		if a.Name != "" {
			t = Name(a.Name)
		}
		if err := s.SetParam(t, a.Value); err != nil {
			return 0, fmt.Errorf("can't set parameter %s: %w", t, err)
		}
	}
	if err := s.Execute(); err != nil {
		return 0, err
	}
	return s.GetQueryType()
}

func (dc *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{c: dc, query: query}, nil
}

func (dc *Conn) Begin() (driver.Tx, error) {
	if err := dc.tb.BeginTransaction(); err != nil {
		return nil, err
	}
	return &Tx{c: dc}, nil
}

// CheckNamedValue accepts every value. Parameters are classified when
// bound, driver.Valuer values are resolved there.
func (dc *Conn) CheckNamedValue(*driver.NamedValue) error { return nil }

func (dc *Conn) Close() error {
	return dc.tb.Close()
}

// Driver opens sessions over engines made by NewEngine.
type Driver struct {
	NewEngine func() Engine
	Logger    lgr.L
}

// Open connects with a data source name of space separated key=value
// pairs, e.g. "url=//localhost:2024/sample user=tbadmin password=''".
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	m, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(m)
	if err != nil {
		return nil, err
	}

	opts := []Option{}
	if d.Logger != nil {
		opts = append(opts, WithLogger(d.Logger))
	}
	tb, err := Connect(cfg, d.NewEngine(), opts...)
	if err != nil {
		return nil, err
	}
	return &Conn{tb: tb}, nil
}

// Register makes engines created by newEngine available to database/sql
// under name.
func Register(name string, newEngine func() Engine) {
	sql.Register(name, &Driver{NewEngine: newEngine})
}

// ParseDSN splits a data source name into connect fields. Values may be
// single quoted to hold spaces or be empty. typecast takes true or false,
// everything else is kept as string.
func ParseDSN(dsn string) (map[string]any, error) {
	res := map[string]any{}
	rest := strings.TrimSpace(dsn)
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, configError(fmt.Sprintf("bad data source name near %q", rest))
		}
		key := strings.TrimSpace(rest[:eq])
		rest = rest[eq+1:]

		var val string
		if strings.HasPrefix(rest, "'") {
			end := strings.IndexByte(rest[1:], '\'')
			if end < 0 {
				return nil, configError(fmt.Sprintf("unterminated quote in value of %s", key))
			}
			val, rest = rest[1:end+1], rest[end+2:]
		} else {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				end = len(rest)
			}
			val, rest = rest[:end], rest[end:]
		}
		rest = strings.TrimSpace(rest)

		if key == "typecast" {
			switch val {
			case "true", "on", "1":
				res[key] = true
			case "false", "off", "0":
				res[key] = false
			default:
				return nil, configError("typecast must be a bool")
			}
			continue
		}
		res[key] = val
	}
	return res, nil
}
