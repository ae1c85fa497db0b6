package transbase

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Query is a statement as executed by MemoryEngine, with the parameters
// bound to it decoded back into cells.
type Query struct {
	SQL    string
	Params []Cell // by position, Params[0] is position 1
	Named  map[string]Cell
}

// Handler answers statements MemoryEngine has no script for.
type Handler func(q Query) (*Results, error)

// BindCall is one SetData or SetDataByName call seen by MemoryEngine.
type BindCall struct {
	Position int
	Name     string
	Data     []byte
	Type     CType
	Null     bool
}

// MemoryEngine is an in-process Engine answering statements from scripts
// registered with Script or from a Handler. It interprets no SQL. It keeps
// track of allocated handles so callers can check releases.
type MemoryEngine struct {
	User     string // accepted user, any user if empty
	Password string
	Server   string // server version
	Handler  Handler

	mu       sync.Mutex
	scripts  map[string]*Results
	failures map[string]ErrorRecord
	next     uintptr
	live     map[uintptr]string
	freed    []string
	doubles  int
	binds    []BindCall
	envErr   string
	errs     map[ErrHandle]*ErrorRecord
	conns    map[ConnHandle]*memConn
	txs      map[TxHandle]*memTx
	stmts    map[StmtHandle]*memStmt
	rsets    map[ResultSetHandle]*memResultSet
}

type memConn struct {
	errh     ErrHandle
	url      string
	loggedIn bool
}

type memTx struct {
	errh   ErrHandle
	active bool
}

type memStmt struct {
	errh   ErrHandle
	conn   ConnHandle
	sql    string
	params []Cell
	named  map[string]Cell
}

type memResultSet struct {
	errh   ErrHandle
	stmt   StmtHandle
	cursor *Cursor
}

// MemoryClientVersion is reported by MemoryEngine.ClientVersion.
const MemoryClientVersion = "8.4.1-memory"

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		Server:   "8.4.1",
		scripts:  map[string]*Results{},
		failures: map[string]ErrorRecord{},
		live:     map[uintptr]string{},
		errs:     map[ErrHandle]*ErrorRecord{},
		conns:    map[ConnHandle]*memConn{},
		txs:      map[TxHandle]*memTx{},
		stmts:    map[StmtHandle]*memStmt{},
		rsets:    map[ResultSetHandle]*memResultSet{},
	}
}

// Script registers the results returned for sql.
func (e *MemoryEngine) Script(sql string, res *Results) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[normalizeSQL(sql)] = res
}

// Fail makes every later call of op fail with rec, op is the method name,
// e.g. "Login" or "FreeStatement".
func (e *MemoryEngine) Fail(op string, rec ErrorRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = rec
}

// Live is the count of allocated and not yet freed handles.
func (e *MemoryEngine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Freed lists the kinds of released handles in release order.
func (e *MemoryEngine) Freed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.freed...)
}

// DoubleFrees counts releases of handles which were not allocated.
func (e *MemoryEngine) DoubleFrees() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doubles
}

// Binds returns the parameter bind calls seen so far.
func (e *MemoryEngine) Binds() []BindCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]BindCall(nil), e.binds...)
}

func normalizeSQL(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), ";")
}

func (e *MemoryEngine) alloc(kind string) uintptr {
	e.next++
	e.live[e.next] = kind
	return e.next
}

func (e *MemoryEngine) release(h uintptr, kind string) bool {
	if k, ok := e.live[h]; !ok || k != kind {
		e.doubles++
		return false
	}
	delete(e.live, h)
	e.freed = append(e.freed, kind)
	return true
}

// fail stores rec for errh and returns StateError.
func (e *MemoryEngine) fail(errh ErrHandle, rec ErrorRecord) State {
	if rec.Code == 0 {
		rec.Code = -1
	}
	if rec.SQLCode == "" {
		rec.SQLCode = "HY000"
	}
	if r, ok := e.errs[errh]; ok {
		*r = rec
	}
	return StateError
}

func (e *MemoryEngine) failf(errh ErrHandle, format string, args ...any) State {
	return e.fail(errh, ErrorRecord{Message: fmt.Sprintf(format, args...)})
}

// injected returns the failure registered for op, if any.
func (e *MemoryEngine) injected(op string) (ErrorRecord, bool) {
	rec, ok := e.failures[op]
	return rec, ok
}

func (e *MemoryEngine) AllocEnvironment() (EnvHandle, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.injected("AllocEnvironment"); ok {
		e.envErr = rec.Message
		return 0, StateError
	}
	return EnvHandle(e.alloc("environment")), StateSuccess
}

func (e *MemoryEngine) FreeEnvironment(env EnvHandle) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.release(uintptr(env), "environment") {
		return StateError
	}
	if rec, ok := e.injected("FreeEnvironment"); ok {
		e.envErr = rec.Message
		return StateError
	}
	return StateSuccess
}

func (e *MemoryEngine) EnvironmentError(EnvHandle) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.envErr
}

func (e *MemoryEngine) AllocError(env EnvHandle) (ErrHandle, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.live[uintptr(env)]; !ok {
		e.envErr = "invalid environment handle"
		return 0, StateError
	}
	if rec, ok := e.injected("AllocError"); ok {
		e.envErr = rec.Message
		return 0, StateError
	}
	h := ErrHandle(e.alloc("error"))
	e.errs[h] = &ErrorRecord{}
	return h, StateSuccess
}

func (e *MemoryEngine) FreeError(errh ErrHandle) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.release(uintptr(errh), "error") {
		return StateError
	}
	delete(e.errs, errh)
	if rec, ok := e.injected("FreeError"); ok {
		e.envErr = rec.Message
		return StateError
	}
	return StateSuccess
}

func (e *MemoryEngine) GetError(errh ErrHandle) ErrorRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.errs[errh]; ok {
		return *r
	}
	return ErrorRecord{Code: -1, Message: "invalid error handle", SQLCode: "HY000"}
}

func (e *MemoryEngine) AllocConnection(_ EnvHandle, errh ErrHandle) (ConnHandle, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.injected("AllocConnection"); ok {
		return 0, e.fail(errh, rec)
	}
	h := ConnHandle(e.alloc("connection"))
	e.conns[h] = &memConn{errh: errh}
	return h, StateSuccess
}

func (e *MemoryEngine) FreeConnection(conn ConnHandle) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.conns[conn]
	if !e.release(uintptr(conn), "connection") {
		return StateError
	}
	delete(e.conns, conn)
	if rec, ok := e.injected("FreeConnection"); ok && c != nil {
		return e.fail(c.errh, rec)
	}
	return StateSuccess
}

func (e *MemoryEngine) Connect(conn ConnHandle, url string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[conn]
	if !ok {
		return StateError
	}
	if rec, ok := e.injected("Connect"); ok {
		return e.fail(c.errh, rec)
	}
	if !strings.HasPrefix(url, "//") {
		return e.failf(c.errh, "Invalid connection string %q", url)
	}
	c.url = url
	return StateSuccess
}

func (e *MemoryEngine) Login(conn ConnHandle, user, password string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[conn]
	if !ok {
		return StateError
	}
	if rec, ok := e.injected("Login"); ok {
		return e.fail(c.errh, rec)
	}
	if c.url == "" {
		return e.failf(c.errh, "not connected")
	}
	if e.User != "" && (user != e.User || password != e.Password) {
		return e.fail(c.errh, ErrorRecord{Code: 1708, Message: "login failed", SQLCode: "28000"})
	}
	c.loggedIn = true
	return StateSuccess
}

func (e *MemoryEngine) ServerVersion(conn ConnHandle) (string, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[conn]
	if !ok || !c.loggedIn {
		return "", StateError
	}
	return e.Server, StateSuccess
}

func (e *MemoryEngine) ClientVersion() string { return MemoryClientVersion }

func (e *MemoryEngine) AllocTransaction(_ EnvHandle, errh ErrHandle) (TxHandle, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.injected("AllocTransaction"); ok {
		return 0, e.fail(errh, rec)
	}
	h := TxHandle(e.alloc("transaction"))
	e.txs[h] = &memTx{errh: errh}
	return h, StateSuccess
}

func (e *MemoryEngine) FreeTransaction(tx TxHandle) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.txs[tx]
	if !e.release(uintptr(tx), "transaction") {
		return StateError
	}
	delete(e.txs, tx)
	if rec, ok := e.injected("FreeTransaction"); ok && t != nil {
		return e.fail(t.errh, rec)
	}
	return StateSuccess
}

func (e *MemoryEngine) BeginTransaction(tx TxHandle, _ ConnHandle) State {
	return e.transaction(tx, "BeginTransaction", func(t *memTx) State {
		if t.active {
			return e.failf(t.errh, "transaction already active")
		}
		t.active = true
		return StateSuccess
	})
}

func (e *MemoryEngine) Commit(tx TxHandle) State {
	return e.transaction(tx, "Commit", func(t *memTx) State {
		if !t.active {
			return e.failf(t.errh, "no active transaction")
		}
		t.active = false
		return StateSuccess
	})
}

func (e *MemoryEngine) Rollback(tx TxHandle) State {
	return e.transaction(tx, "Rollback", func(t *memTx) State {
		if !t.active {
			return e.failf(t.errh, "no active transaction")
		}
		t.active = false
		return StateSuccess
	})
}

func (e *MemoryEngine) transaction(tx TxHandle, op string, fn func(t *memTx) State) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.txs[tx]
	if !ok {
		return StateError
	}
	if rec, ok := e.injected(op); ok {
		return e.fail(t.errh, rec)
	}
	return fn(t)
}

func (e *MemoryEngine) AllocStatement(conn ConnHandle, errh ErrHandle) (StmtHandle, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.injected("AllocStatement"); ok {
		return 0, e.fail(errh, rec)
	}
	h := StmtHandle(e.alloc("statement"))
	e.stmts[h] = &memStmt{errh: errh, conn: conn}
	return h, StateSuccess
}

func (e *MemoryEngine) FreeStatement(stmt StmtHandle) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stmts[stmt]
	if !e.release(uintptr(stmt), "statement") {
		return StateError
	}
	delete(e.stmts, stmt)
	if rec, ok := e.injected("FreeStatement"); ok && s != nil {
		return e.fail(s.errh, rec)
	}
	return StateSuccess
}

func (e *MemoryEngine) AllocResultSet(stmt StmtHandle, errh ErrHandle) (ResultSetHandle, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.injected("AllocResultSet"); ok {
		return 0, e.fail(errh, rec)
	}
	h := ResultSetHandle(e.alloc("resultset"))
	e.rsets[h] = &memResultSet{errh: errh, stmt: stmt}
	return h, StateSuccess
}

func (e *MemoryEngine) FreeResultSet(rs ResultSetHandle) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.rsets[rs]
	if !e.release(uintptr(rs), "resultset") {
		return StateError
	}
	delete(e.rsets, rs)
	if rec, ok := e.injected("FreeResultSet"); ok && r != nil {
		return e.fail(r.errh, rec)
	}
	return StateSuccess
}

func (e *MemoryEngine) Prepare(stmt StmtHandle, sql string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stmts[stmt]
	if !ok {
		return StateError
	}
	if rec, ok := e.injected("Prepare"); ok {
		return e.fail(s.errh, rec)
	}
	s.sql = sql
	s.params = nil
	s.named = map[string]Cell{}
	return StateSuccess
}

func (e *MemoryEngine) Execute(rs ResultSetHandle) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rsets[rs]
	if !ok {
		return StateError
	}
	if rec, ok := e.injected("Execute"); ok {
		return e.fail(r.errh, rec)
	}
	s := e.stmts[r.stmt]
	if s == nil || s.sql == "" {
		return e.failf(r.errh, "no statement prepared")
	}
	return e.run(r, Query{SQL: s.sql, Params: s.params, Named: s.named})
}

func (e *MemoryEngine) ExecuteDirect(rs ResultSetHandle, sql string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rsets[rs]
	if !ok {
		return StateError
	}
	if rec, ok := e.injected("ExecuteDirect"); ok {
		return e.fail(r.errh, rec)
	}
	return e.run(r, Query{SQL: sql, Named: map[string]Cell{}})
}

func (e *MemoryEngine) run(r *memResultSet, q Query) State {
	res, ok := e.scripts[normalizeSQL(q.SQL)]
	if !ok {
		if e.Handler == nil {
			return e.failf(r.errh, "statement is not scripted: %q", q.SQL)
		}
		var err error
		if res, err = e.Handler(q); err != nil {
			return e.failf(r.errh, "%v", err)
		}
	}
	r.cursor = NewCursor(res)
	return StateSuccess
}

func (e *MemoryEngine) SetData(rs ResultSetHandle, position int, data []byte, ct CType, isNull bool) State {
	return e.setData(rs, "SetData", BindCall{Position: position, Data: data, Type: ct, Null: isNull})
}

func (e *MemoryEngine) SetDataByName(rs ResultSetHandle, name string, data []byte, ct CType, isNull bool) State {
	return e.setData(rs, "SetDataByName", BindCall{Name: name, Data: data, Type: ct, Null: isNull})
}

func (e *MemoryEngine) setData(rs ResultSetHandle, op string, call BindCall) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rsets[rs]
	if !ok {
		return StateError
	}
	call.Data = append([]byte(nil), call.Data...)
	e.binds = append(e.binds, call)
	if rec, ok := e.injected(op); ok {
		return e.fail(r.errh, rec)
	}
	s := e.stmts[r.stmt]
	if s == nil || s.sql == "" {
		return e.failf(r.errh, "no statement prepared")
	}

	cell, err := ParamCell(call.Data, call.Type, call.Null)
	if err != nil {
		return e.failf(r.errh, "%v", err)
	}
	if call.Name != "" {
		s.named[call.Name] = cell
		return StateSuccess
	}
	if call.Position < 1 {
		return e.failf(r.errh, "invalid parameter position %d", call.Position)
	}
	for len(s.params) < call.Position {
		s.params = append(s.params, Cell{Type: SQLVarChar})
	}
	s.params[call.Position-1] = cell
	return StateSuccess
}

// ParamCell decodes bound parameter data into a cell typed after ct.
func ParamCell(data []byte, ct CType, isNull bool) (Cell, error) {
	typ := map[CType]SQLType{
		CInt1: SQLTinyInt, CInt4: SQLInteger, CInt8: SQLBigInt, CFloat: SQLFloat,
		CDouble: SQLDouble, CChar: SQLVarChar, CByte: SQLBlob,
	}[ct]
	if typ == 0 {
		return Cell{}, fmt.Errorf("unsupported c type %s", ct)
	}
	if isNull {
		return Cell{Type: typ}, nil
	}
	if size := ct.Size(); size > 0 && len(data) != size {
		return Cell{}, fmt.Errorf("%s parameter needs %d bytes, got %d", ct, size, len(data))
	}

	switch ct {
	case CInt1:
		return Cell{Type: typ, Value: int64(int8(data[0]))}, nil
	case CInt4:
		return Cell{Type: typ, Value: int64(int32(ByteOrder.Uint32(data)))}, nil
	case CInt8:
		return Cell{Type: typ, Value: int64(ByteOrder.Uint64(data))}, nil
	case CFloat:
		return Cell{Type: typ, Value: float64(math.Float32frombits(ByteOrder.Uint32(data)))}, nil
	case CDouble:
		return Cell{Type: typ, Value: math.Float64frombits(ByteOrder.Uint64(data))}, nil
	case CChar:
		return Cell{Type: typ, Value: string(data)}, nil
	default:
		return Cell{Type: typ, Value: append([]byte{}, data...)}, nil
	}
}

// EchoHandler answers every statement with one row holding the bound
// parameters, positional ones as columns p1..pN followed by named ones.
func EchoHandler(q Query) (*Results, error) {
	res := &Results{QueryType: QuerySelect}
	row := []Cell{}
	for i, p := range q.Params {
		res.Columns = append(res.Columns, ResultColumn{Name: fmt.Sprintf("p%d", i+1), Type: p.Type})
		row = append(row, p)
	}
	names := make([]string, 0, len(q.Named))
	for name := range q.Named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res.Columns = append(res.Columns, ResultColumn{Name: name, Type: q.Named[name].Type})
		row = append(row, q.Named[name])
	}
	res.Rows = [][]Cell{row}
	return res, nil
}

func (e *MemoryEngine) Fetch(rs ResultSetHandle, mode ScrollMode, offset int) State {
	return e.withCursor(rs, "Fetch", func(r *memResultSet) State {
		found, err := r.cursor.Fetch(mode, offset)
		if err != nil {
			return e.failf(r.errh, "%v", err)
		}
		if !found {
			return StateNoDataFound
		}
		return StateSuccess
	})
}

func (e *MemoryEngine) GetResultSetAttribute(rs ResultSetHandle, attr Attribute, col int) (v int, st State) {
	st = e.withCursor(rs, "GetResultSetAttribute", func(r *memResultSet) State {
		var err error
		if v, err = r.cursor.Attribute(attr, col); err != nil {
			return e.failf(r.errh, "%v", err)
		}
		return StateSuccess
	})
	return v, st
}

func (e *MemoryEngine) GetResultSetStringAttribute(rs ResultSetHandle, attr Attribute, col, maxLen int) (v string, st State) {
	st = e.withCursor(rs, "GetResultSetStringAttribute", func(r *memResultSet) State {
		var err error
		if v, err = r.cursor.StringAttribute(attr, col, maxLen); err != nil {
			return e.failf(r.errh, "%v", err)
		}
		return StateSuccess
	})
	return v, st
}

func (e *MemoryEngine) GetDataSize(rs ResultSetHandle, col int, ct CType) (size int, isNull bool, st State) {
	st = e.withCursor(rs, "GetDataSize", func(r *memResultSet) State {
		var err error
		if size, isNull, err = r.cursor.DataSize(col, ct); err != nil {
			return e.failf(r.errh, "%v", err)
		}
		return StateSuccess
	})
	return size, isNull, st
}

func (e *MemoryEngine) GetDataCharLength(rs ResultSetHandle, col int) (length int, isNull bool, st State) {
	st = e.withCursor(rs, "GetDataCharLength", func(r *memResultSet) State {
		var err error
		if length, isNull, err = r.cursor.CharLength(col); err != nil {
			return e.failf(r.errh, "%v", err)
		}
		return StateSuccess
	})
	return length, isNull, st
}

func (e *MemoryEngine) GetData(rs ResultSetHandle, col int, buf []byte, ct CType) (n int, isNull bool, st State) {
	st = e.withCursor(rs, "GetData", func(r *memResultSet) State {
		var truncated bool
		var err error
		if n, isNull, truncated, err = r.cursor.GetData(col, buf, ct); err != nil {
			return e.failf(r.errh, "%v", err)
		}
		if truncated {
			return StateDataTruncated
		}
		return StateSuccess
	})
	return n, isNull, st
}

func (e *MemoryEngine) withCursor(rs ResultSetHandle, op string, fn func(r *memResultSet) State) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rsets[rs]
	if !ok {
		return StateError
	}
	if rec, ok := e.injected(op); ok {
		return e.fail(r.errh, rec)
	}
	if r.cursor == nil {
		return e.failf(r.errh, "no statement executed")
	}
	return fn(r)
}
