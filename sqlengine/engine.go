// Package sqlengine implements the transbase engine interface on top of
// database/sql. The connection url picks the database: postgres://... for
// PostgreSQL, user@tcp(host:port)/db for MySQL, and file:..., :memory: or
// a .db/.sqlite path for SQLite. Credentials given at login are put into
// the connection string.
package sqlengine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	"github.com/petar/GoLLRB/llrb"

	tb "github.com/transaction/transbase-go"
)

// ClientVersion is reported as the engine library version.
const ClientVersion = "8.4.1-sql"

// Engine is a tb.Engine backed by database/sql drivers. Each connection
// handle holds one database connection.
type Engine struct {
	log lgr.L

	mu    sync.Mutex
	next  uintptr
	envs  map[tb.EnvHandle]*environment
	errs  map[tb.ErrHandle]*tb.ErrorRecord
	conns map[tb.ConnHandle]*conn
	txs   map[tb.TxHandle]*transaction
	stmts map[tb.StmtHandle]*stmt
	rsets map[tb.ResultSetHandle]*resultSet
}

type environment struct {
	lastErr string
}

type conn struct {
	errh   tb.ErrHandle
	driver string
	dsn    string
	db     *sqlx.DB
	active *sqlx.Tx
}

type transaction struct {
	errh tb.ErrHandle
	conn tb.ConnHandle
}

type stmt struct {
	errh   tb.ErrHandle
	conn   tb.ConnHandle
	sql    string
	params *llrb.LLRB
	named  map[string]any
}

type resultSet struct {
	errh   tb.ErrHandle
	stmt   tb.StmtHandle
	cursor *tb.Cursor
}

// param is a positional parameter kept ordered by position
type param struct {
	pos  int
	cell tb.Cell
}

func (p param) Less(than llrb.Item) bool {
	return p.pos < than.(param).pos
}

// Option customizes an Engine.
type Option func(e *Engine)

// WithLogger sets the logger, lgr.Std by default.
func WithLogger(l lgr.L) Option {
	return func(e *Engine) { e.log = l }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		log:   lgr.Std,
		envs:  map[tb.EnvHandle]*environment{},
		errs:  map[tb.ErrHandle]*tb.ErrorRecord{},
		conns: map[tb.ConnHandle]*conn{},
		txs:   map[tb.TxHandle]*transaction{},
		stmts: map[tb.StmtHandle]*stmt{},
		rsets: map[tb.ResultSetHandle]*resultSet{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func init() {
	tb.Register("transbase", func() tb.Engine { return New() })
}

func (e *Engine) handle() uintptr {
	e.next++
	return e.next
}

func (e *Engine) fail(errh tb.ErrHandle, rec tb.ErrorRecord) tb.State {
	if r, ok := e.errs[errh]; ok {
		*r = rec
	}
	return tb.StateError
}

func (e *Engine) failf(errh tb.ErrHandle, format string, args ...any) tb.State {
	return e.fail(errh, tb.ErrorRecord{Code: -1, Message: fmt.Sprintf(format, args...), SQLCode: "HY000"})
}

func (e *Engine) failErr(errh tb.ErrHandle, err error) tb.State {
	return e.fail(errh, errorRecord(err))
}

func (e *Engine) AllocEnvironment() (tb.EnvHandle, tb.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := tb.EnvHandle(e.handle())
	e.envs[h] = &environment{}
	return h, tb.StateSuccess
}

func (e *Engine) FreeEnvironment(env tb.EnvHandle) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.envs[env]; !ok {
		return tb.StateError
	}
	delete(e.envs, env)
	return tb.StateSuccess
}

func (e *Engine) EnvironmentError(env tb.EnvHandle) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if en, ok := e.envs[env]; ok {
		return en.lastErr
	}
	return "invalid environment handle"
}

func (e *Engine) AllocError(env tb.EnvHandle) (tb.ErrHandle, tb.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.envs[env]
	if !ok {
		return 0, tb.StateError
	}
	en.lastErr = ""
	h := tb.ErrHandle(e.handle())
	e.errs[h] = &tb.ErrorRecord{}
	return h, tb.StateSuccess
}

func (e *Engine) FreeError(errh tb.ErrHandle) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.errs[errh]; !ok {
		return tb.StateError
	}
	delete(e.errs, errh)
	return tb.StateSuccess
}

func (e *Engine) GetError(errh tb.ErrHandle) tb.ErrorRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.errs[errh]; ok {
		return *r
	}
	return tb.ErrorRecord{Code: -1, Message: "invalid error handle", SQLCode: "HY000"}
}

func (e *Engine) AllocConnection(_ tb.EnvHandle, errh tb.ErrHandle) (tb.ConnHandle, tb.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := tb.ConnHandle(e.handle())
	e.conns[h] = &conn{errh: errh}
	return h, tb.StateSuccess
}

func (e *Engine) FreeConnection(ch tb.ConnHandle) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[ch]
	if !ok {
		return tb.StateError
	}
	delete(e.conns, ch)
	if c.active != nil {
		if err := c.active.Rollback(); err != nil {
			e.log.Logf("[WARN] sqlengine: can't roll back open transaction, %v", err)
		}
	}
	if c.db == nil {
		return tb.StateSuccess
	}
	if err := c.db.Close(); err != nil {
		return e.failErr(c.errh, err)
	}
	e.log.Logf("[DEBUG] sqlengine: closed %s connection", c.driver)
	return tb.StateSuccess
}

// Connect picks the database driver from url. The database is opened by
// Login once the credentials are known.
func (e *Engine) Connect(ch tb.ConnHandle, url string) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[ch]
	if !ok {
		return tb.StateError
	}
	driver, err := driverName(url)
	if err != nil {
		return e.failf(c.errh, "Invalid connection string %q", url)
	}
	c.driver, c.dsn = driver, url
	return tb.StateSuccess
}

func (e *Engine) Login(ch tb.ConnHandle, user, password string) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[ch]
	if !ok {
		return tb.StateError
	}
	if c.driver == "" {
		return e.failf(c.errh, "not connected")
	}
	if c.db != nil {
		return e.failf(c.errh, "already logged in")
	}

	dsn, err := withCredentials(c.driver, c.dsn, user, password)
	if err != nil {
		return e.failErr(c.errh, err)
	}
	db, err := sqlx.Connect(c.driver, dsn)
	if err != nil {
		return e.failErr(c.errh, err)
	}
	// one session, one server connection
	db.SetMaxOpenConns(1)
	c.db = db
	e.log.Logf("[INFO] sqlengine: logged in to %s database as %q", c.driver, user)
	return tb.StateSuccess
}

func (e *Engine) ServerVersion(ch tb.ConnHandle) (string, tb.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[ch]
	if !ok {
		return "", tb.StateError
	}
	if c.db == nil {
		return "", e.failf(c.errh, "not logged in")
	}

	query := map[string]string{
		"postgres": "SHOW server_version",
		"mysql":    "SELECT VERSION()",
		"sqlite":   "SELECT sqlite_version()",
	}[c.driver]
	// the only connection may be held by a transaction
	var q sqlx.Queryer = c.db
	if c.active != nil {
		q = c.active
	}
	var v string
	if err := q.QueryRowx(query).Scan(&v); err != nil {
		return "", e.failErr(c.errh, err)
	}
	return v, tb.StateSuccess
}

func (e *Engine) ClientVersion() string { return ClientVersion }

func (e *Engine) AllocTransaction(_ tb.EnvHandle, errh tb.ErrHandle) (tb.TxHandle, tb.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := tb.TxHandle(e.handle())
	e.txs[h] = &transaction{errh: errh}
	return h, tb.StateSuccess
}

func (e *Engine) FreeTransaction(th tb.TxHandle) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.txs[th]
	if !ok {
		return tb.StateError
	}
	delete(e.txs, th)
	if c, ok := e.conns[t.conn]; ok && c.active != nil {
		err := c.active.Rollback()
		c.active = nil
		if err != nil {
			return e.failErr(t.errh, err)
		}
	}
	return tb.StateSuccess
}

func (e *Engine) BeginTransaction(th tb.TxHandle, ch tb.ConnHandle) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.txs[th]
	if !ok {
		return tb.StateError
	}
	c, ok := e.conns[ch]
	if !ok || c.db == nil {
		return e.failf(t.errh, "not logged in")
	}
	if c.active != nil {
		return e.failf(t.errh, "transaction already active")
	}
	tx, err := c.db.Beginx()
	if err != nil {
		return e.failErr(t.errh, err)
	}
	c.active, t.conn = tx, ch
	return tb.StateSuccess
}

func (e *Engine) Commit(th tb.TxHandle) tb.State {
	return e.finish(th, func(tx *sqlx.Tx) error { return tx.Commit() })
}

func (e *Engine) Rollback(th tb.TxHandle) tb.State {
	return e.finish(th, func(tx *sqlx.Tx) error { return tx.Rollback() })
}

func (e *Engine) finish(th tb.TxHandle, fn func(tx *sqlx.Tx) error) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.txs[th]
	if !ok {
		return tb.StateError
	}
	c, ok := e.conns[t.conn]
	if !ok || c.active == nil {
		return e.failf(t.errh, "no active transaction")
	}
	err := fn(c.active)
	c.active = nil
	if err != nil {
		return e.failErr(t.errh, err)
	}
	return tb.StateSuccess
}

func (e *Engine) AllocStatement(ch tb.ConnHandle, errh tb.ErrHandle) (tb.StmtHandle, tb.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := tb.StmtHandle(e.handle())
	e.stmts[h] = &stmt{errh: errh, conn: ch, params: llrb.New(), named: map[string]any{}}
	return h, tb.StateSuccess
}

func (e *Engine) FreeStatement(sh tb.StmtHandle) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.stmts[sh]; !ok {
		return tb.StateError
	}
	delete(e.stmts, sh)
	return tb.StateSuccess
}

func (e *Engine) AllocResultSet(sh tb.StmtHandle, errh tb.ErrHandle) (tb.ResultSetHandle, tb.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := tb.ResultSetHandle(e.handle())
	e.rsets[h] = &resultSet{errh: errh, stmt: sh}
	return h, tb.StateSuccess
}

func (e *Engine) FreeResultSet(rh tb.ResultSetHandle) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rsets[rh]; !ok {
		return tb.StateError
	}
	delete(e.rsets, rh)
	return tb.StateSuccess
}

func (e *Engine) Prepare(sh tb.StmtHandle, sql string) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stmts[sh]
	if !ok {
		return tb.StateError
	}
	if strings.TrimSpace(sql) == "" {
		return e.failf(s.errh, "empty statement")
	}
	s.sql = sql
	s.params = llrb.New()
	s.named = map[string]any{}
	return tb.StateSuccess
}

func (e *Engine) Execute(rh tb.ResultSetHandle) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rsets[rh]
	if !ok {
		return tb.StateError
	}
	s, ok := e.stmts[r.stmt]
	if !ok || s.sql == "" {
		return e.failf(r.errh, "no statement prepared")
	}
	return e.run(r, s.conn, s.sql, positional(s.params), s.named)
}

func (e *Engine) ExecuteDirect(rh tb.ResultSetHandle, sql string) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rsets[rh]
	if !ok {
		return tb.StateError
	}
	s, ok := e.stmts[r.stmt]
	if !ok {
		return e.failf(r.errh, "invalid statement handle")
	}
	return e.run(r, s.conn, sql, nil, nil)
}

// positional returns the values of params ordered by position, missing
// positions are bound as NULL.
func positional(params *llrb.LLRB) []any {
	res := []any{}
	params.AscendGreaterOrEqual(param{pos: 1}, func(i llrb.Item) bool {
		p := i.(param)
		for len(res) < p.pos-1 {
			res = append(res, nil)
		}
		res = append(res, p.cell.Value)
		return true
	})
	return res
}

func (e *Engine) run(r *resultSet, ch tb.ConnHandle, query string, args []any, named map[string]any) tb.State {
	c, ok := e.conns[ch]
	if !ok || c.db == nil {
		return e.failf(r.errh, "not logged in")
	}
	if len(args) > 0 && len(named) > 0 {
		return e.failf(r.errh, "named and positional parameters can't be mixed")
	}

	if len(named) > 0 {
		q, a, err := sqlx.Named(query, named)
		if err != nil {
			return e.failErr(r.errh, err)
		}
		query, args = q, a
	}
	query = sqlx.Rebind(sqlx.BindType(c.driver), query)

	var ext sqlx.Ext = c.db
	if c.active != nil {
		ext = c.active
	}

	qt := queryType(query)
	e.log.Logf("[DEBUG] sqlengine: %s %q, %d args", qt, query, len(args))
	res, err := execute(ext, qt, query, args)
	if err != nil {
		r.cursor = nil
		return e.failErr(r.errh, err)
	}
	r.cursor = tb.NewCursor(res)
	return tb.StateSuccess
}

func (e *Engine) SetData(rh tb.ResultSetHandle, position int, data []byte, ct tb.CType, isNull bool) tb.State {
	return e.setData(rh, func(s *stmt, cell tb.Cell) error {
		if position < 1 {
			return fmt.Errorf("invalid parameter position %d", position)
		}
		s.params.ReplaceOrInsert(param{pos: position, cell: cell})
		return nil
	}, data, ct, isNull)
}

func (e *Engine) SetDataByName(rh tb.ResultSetHandle, name string, data []byte, ct tb.CType, isNull bool) tb.State {
	return e.setData(rh, func(s *stmt, cell tb.Cell) error {
		s.named[name] = cell.Value
		return nil
	}, data, ct, isNull)
}

func (e *Engine) setData(rh tb.ResultSetHandle, store func(s *stmt, cell tb.Cell) error,
	data []byte, ct tb.CType, isNull bool) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rsets[rh]
	if !ok {
		return tb.StateError
	}
	s, ok := e.stmts[r.stmt]
	if !ok || s.sql == "" {
		return e.failf(r.errh, "no statement prepared")
	}
	cell, err := tb.ParamCell(data, ct, isNull)
	if err != nil {
		return e.failErr(r.errh, err)
	}
	if ct == tb.CInt1 && cell.Value != nil {
		// one byte integers are booleans on the way in
		cell.Value = cell.Value.(int64) != 0
	}
	if err := store(s, cell); err != nil {
		return e.failErr(r.errh, err)
	}
	return tb.StateSuccess
}

func (e *Engine) Fetch(rh tb.ResultSetHandle, mode tb.ScrollMode, offset int) tb.State {
	return e.withCursor(rh, func(r *resultSet) tb.State {
		found, err := r.cursor.Fetch(mode, offset)
		if err != nil {
			return e.failErr(r.errh, err)
		}
		if !found {
			return tb.StateNoDataFound
		}
		return tb.StateSuccess
	})
}

func (e *Engine) GetResultSetAttribute(rh tb.ResultSetHandle, attr tb.Attribute, col int) (v int, st tb.State) {
	st = e.withCursor(rh, func(r *resultSet) tb.State {
		var err error
		if v, err = r.cursor.Attribute(attr, col); err != nil {
			return e.failErr(r.errh, err)
		}
		return tb.StateSuccess
	})
	return v, st
}

func (e *Engine) GetResultSetStringAttribute(rh tb.ResultSetHandle, attr tb.Attribute, col, maxLen int) (v string, st tb.State) {
	st = e.withCursor(rh, func(r *resultSet) tb.State {
		var err error
		if v, err = r.cursor.StringAttribute(attr, col, maxLen); err != nil {
			return e.failErr(r.errh, err)
		}
		return tb.StateSuccess
	})
	return v, st
}

func (e *Engine) GetDataSize(rh tb.ResultSetHandle, col int, ct tb.CType) (size int, isNull bool, st tb.State) {
	st = e.withCursor(rh, func(r *resultSet) tb.State {
		var err error
		if size, isNull, err = r.cursor.DataSize(col, ct); err != nil {
			return e.failErr(r.errh, err)
		}
		return tb.StateSuccess
	})
	return size, isNull, st
}

func (e *Engine) GetDataCharLength(rh tb.ResultSetHandle, col int) (length int, isNull bool, st tb.State) {
	st = e.withCursor(rh, func(r *resultSet) tb.State {
		var err error
		if length, isNull, err = r.cursor.CharLength(col); err != nil {
			return e.failErr(r.errh, err)
		}
		return tb.StateSuccess
	})
	return length, isNull, st
}

func (e *Engine) GetData(rh tb.ResultSetHandle, col int, buf []byte, ct tb.CType) (n int, isNull bool, st tb.State) {
	st = e.withCursor(rh, func(r *resultSet) tb.State {
		var truncated bool
		var err error
		if n, isNull, truncated, err = r.cursor.GetData(col, buf, ct); err != nil {
			return e.failErr(r.errh, err)
		}
		if truncated {
			return tb.StateDataTruncated
		}
		return tb.StateSuccess
	})
	return n, isNull, st
}

func (e *Engine) withCursor(rh tb.ResultSetHandle, fn func(r *resultSet) tb.State) tb.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rsets[rh]
	if !ok {
		return tb.StateError
	}
	if r.cursor == nil {
		return e.failf(r.errh, "no statement executed")
	}
	return fn(r)
}
