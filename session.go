package transbase

import (
	"fmt"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// SessionState is the lifecycle position of a Session.
type SessionState int

const (
	SessionUninitialized SessionState = iota
	SessionConnected
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionUninitialized:
		return "uninitialized"
	case SessionConnected:
		return "connected"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Version holds the engine library and server versions.
type Version struct {
	Client string
	Server string
}

// Session owns one chain of engine handles: environment, error,
// connection, transaction, statement and result set. A Session is not safe
// for concurrent use.
type Session struct {
	eng Engine
	log lgr.L
	id  string

	env  EnvHandle
	errh ErrHandle
	conn ConnHandle
	tx   TxHandle
	stmt StmtHandle
	rs   ResultSetHandle

	status   SessionState
	last     State
	typeCast bool
}

// Option customizes a Session.
type Option func(s *Session)

// WithLogger sets the logger, lgr.Std by default.
func WithLogger(l lgr.L) Option {
	return func(s *Session) { s.log = l }
}

// WithTypeCast sets the initial type cast mode, enabled by default.
func WithTypeCast(enabled bool) Option {
	return func(s *Session) { s.typeCast = enabled }
}

// NewSession makes an unconnected session over eng.
func NewSession(eng Engine, opts ...Option) *Session {
	s := &Session{
		eng:      eng,
		log:      lgr.Std,
		id:       uuid.NewString()[:8],
		typeCast: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect allocates the handle chain, connects to url and logs in.
// On failure the handles allocated so far stay with the session until
// Close.
func (s *Session) Connect(url, user, password string) error {
	switch s.status {
	case SessionConnected:
		return ErrAlreadyConnected
	case SessionClosed:
		return ErrSessionClosed
	}
	if err := checkCredentials(url, user); err != nil {
		return err
	}

	var st State
	if s.env, st = s.eng.AllocEnvironment(); st == StateSuccess {
		s.errh, st = s.eng.AllocError(s.env)
	}
	if st != StateSuccess {
		s.last = st
		rec := ErrorRecord{}
		if s.env != 0 {
			rec.Message = s.eng.EnvironmentError(s.env)
		}
		if err := s.free(); err != nil {
			s.log.Logf("[WARN] tci %s: can't release environment, %v", s.id, err)
		}
		return &EngineError{Op: "AllocEnvironment", State: st, Record: rec}
	}

	steps := []struct {
		op string
		fn func() State
	}{
		{"AllocConnection", func() (st State) { s.conn, st = s.eng.AllocConnection(s.env, s.errh); return st }},
		{"AllocTransaction", func() (st State) { s.tx, st = s.eng.AllocTransaction(s.env, s.errh); return st }},
		{"Connect", func() State { return s.eng.Connect(s.conn, url) }},
		{"Login", func() State { return s.eng.Login(s.conn, user, password) }},
		{"AllocStatement", func() (st State) { s.stmt, st = s.eng.AllocStatement(s.conn, s.errh); return st }},
		{"AllocResultSet", func() (st State) { s.rs, st = s.eng.AllocResultSet(s.stmt, s.errh); return st }},
	}
	for _, step := range steps {
		if err := s.check(step.op, step.fn()); err != nil {
			return err
		}
	}

	s.status = SessionConnected
	s.log.Logf("[INFO] tci %s: connected to %s as %s", s.id, url, user)
	return nil
}

// Close releases every allocated handle in reverse allocation order. It
// is safe to call on a partially connected session and more than once.
// Release failures don't stop the remaining releases, they are logged and
// returned together.
func (s *Session) Close() error {
	err := s.free()
	if s.status != SessionClosed {
		s.log.Logf("[DEBUG] tci %s: closed", s.id)
	}
	s.status = SessionClosed
	return err
}

func (s *Session) free() error {
	errs := new(multierror.Error)
	release := func(op string, allocated bool, fn func() State) {
		if !allocated {
			return
		}
		if st := fn(); st != StateSuccess {
			err := s.failure(op, st)
			s.log.Logf("[WARN] tci %s: %s failed, %v", s.id, op, err)
			errs = multierror.Append(errs, err)
		}
	}

	// each handle is zeroed before its release so a failure is described
	// by the handles still alive and nothing is released twice
	rs, stmt, tx, conn, errh, env := s.rs, s.stmt, s.tx, s.conn, s.errh, s.env
	s.rs = 0
	release("FreeResultSet", rs != 0, func() State { return s.eng.FreeResultSet(rs) })
	s.stmt = 0
	release("FreeStatement", stmt != 0, func() State { return s.eng.FreeStatement(stmt) })
	s.tx = 0
	release("FreeTransaction", tx != 0, func() State { return s.eng.FreeTransaction(tx) })
	s.conn = 0
	release("FreeConnection", conn != 0, func() State { return s.eng.FreeConnection(conn) })
	s.errh = 0
	release("FreeError", errh != 0, func() State { return s.eng.FreeError(errh) })
	s.env = 0
	release("FreeEnvironment", env != 0, func() State { return s.eng.FreeEnvironment(env) })

	return errs.ErrorOrNil()
}

// check records st as the last state. Any non-zero state not listed in ok
// is turned into an EngineError carrying the error record, fetched before
// any other engine call can overwrite it.
func (s *Session) check(op string, st State, ok ...State) error {
	s.last = st
	if st == StateSuccess {
		return nil
	}
	for _, o := range ok {
		if st == o {
			return nil
		}
	}
	err := s.failure(op, st)
	s.log.Logf("[DEBUG] tci %s: %s failed with %s, code %d, sqlcode %q: %s",
		s.id, op, st, err.Record.Code, err.Record.SQLCode, err.Record.Message)
	return err
}

func (s *Session) failure(op string, st State) *EngineError {
	rec := ErrorRecord{}
	switch {
	case s.errh != 0:
		rec = s.eng.GetError(s.errh)
	case s.env != 0:
		rec.Message = s.eng.EnvironmentError(s.env)
	}
	return &EngineError{Op: op, State: st, Record: rec}
}

func (s *Session) connected() error {
	switch s.status {
	case SessionConnected:
		return nil
	case SessionClosed:
		return ErrSessionClosed
	default:
		return ErrNotConnected
	}
}

// Status reports the lifecycle state.
func (s *Session) Status() SessionState { return s.status }

// GetState returns the state of the last engine call.
func (s *Session) GetState() State { return s.last }

// ID is a short random id used to tell sessions apart in logs.
func (s *Session) ID() string { return s.id }

// SetTypeCast switches between type directed decoding and plain text.
func (s *Session) SetTypeCast(enabled bool) { s.typeCast = enabled }

// TypeCast reports the current decoding mode.
func (s *Session) TypeCast() bool { return s.typeCast }

// ExecuteDirect prepares and executes sql in one call.
func (s *Session) ExecuteDirect(sql string) error {
	if err := s.connected(); err != nil {
		return err
	}
	s.log.Logf("[DEBUG] tci %s: execute direct %q", s.id, sql)
	return s.check("ExecuteDirect", s.eng.ExecuteDirect(s.rs, sql))
}

// Prepare prepares sql for parameter binding and Execute.
func (s *Session) Prepare(sql string) error {
	if err := s.connected(); err != nil {
		return err
	}
	s.log.Logf("[DEBUG] tci %s: prepare %q", s.id, sql)
	return s.check("Prepare", s.eng.Prepare(s.stmt, sql))
}

// Execute runs the prepared statement with the bound parameters.
func (s *Session) Execute() error {
	if err := s.connected(); err != nil {
		return err
	}
	return s.check("Execute", s.eng.Execute(s.rs))
}

// SetParam binds value to the prepared statement parameter t.
func (s *Session) SetParam(t Target, value any) error {
	if err := s.connected(); err != nil {
		return err
	}
	return binder{eng: s.eng, rs: s.rs, check: s.check}.bind(t, value)
}

// Fetch moves to the next row. It returns false without error once the
// result set is exhausted, and keeps doing so on further calls.
func (s *Session) Fetch() (bool, error) {
	return s.Scroll(ScrollNext, 0)
}

// Scroll moves the cursor by mode, offset is used by the absolute and
// relative modes.
func (s *Session) Scroll(mode ScrollMode, offset int) (bool, error) {
	if err := s.connected(); err != nil {
		return false, err
	}
	st := s.eng.Fetch(s.rs, mode, offset)
	if err := s.check("Fetch", st, StateNoDataFound); err != nil {
		return false, err
	}
	return st == StateSuccess, nil
}

// GetResultSetAttribute reads a numeric attribute of column col, col is
// ignored by attributes of the whole result set.
func (s *Session) GetResultSetAttribute(key Attribute, col int) (int, error) {
	if err := s.connected(); err != nil {
		return 0, err
	}
	v, st := s.eng.GetResultSetAttribute(s.rs, key, col)
	if err := s.check("GetResultSetAttribute", st); err != nil {
		return 0, err
	}
	return v, nil
}

// GetResultSetStringAttribute reads a text attribute, at most MaxIdentSize
// bytes long and cut at a character boundary.
func (s *Session) GetResultSetStringAttribute(key Attribute, col int) (string, error) {
	if err := s.connected(); err != nil {
		return "", err
	}
	v, st := s.eng.GetResultSetStringAttribute(s.rs, key, col, MaxIdentSize)
	if err := s.check("GetResultSetStringAttribute", st); err != nil {
		return "", err
	}
	return truncateText(v, MaxIdentSize), nil
}

// GetQueryType reads the query type of the last executed statement.
func (s *Session) GetQueryType() (QueryType, error) {
	v, err := s.GetResultSetAttribute(AttrQueryType, 1)
	if err != nil {
		return 0, err
	}
	return QueryType(v), nil
}

// GetValue decodes column col (1-based) of the current row using the
// session's type cast mode. A nil value is SQL NULL.
func (s *Session) GetValue(col int, t SQLType) (any, error) {
	return s.GetValueCast(col, t, s.typeCast)
}

// GetValueCast is GetValue with an explicit type cast mode.
func (s *Session) GetValueCast(col int, t SQLType, typeCast bool) (any, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}
	return s.reader().read(col, t, typeCast)
}

// GetValueAsBuffer reads up to maxSize bytes of the column text. more is
// set when data was left over; calling again continues with the rest.
func (s *Session) GetValueAsBuffer(col, maxSize int) (data []byte, more bool, err error) {
	if err = s.connected(); err != nil {
		return nil, false, err
	}
	return s.reader().readBuffer(col, maxSize)
}

// IsNull reports whether column col of the current row is NULL.
func (s *Session) IsNull(col int) (bool, error) {
	if err := s.connected(); err != nil {
		return false, err
	}
	return s.reader().isNull(col)
}

func (s *Session) reader() reader {
	return reader{eng: s.eng, rs: s.rs, check: s.check}
}

// VersionInfo returns the engine library and server versions.
func (s *Session) VersionInfo() (Version, error) {
	if err := s.connected(); err != nil {
		return Version{}, err
	}
	server, st := s.eng.ServerVersion(s.conn)
	if err := s.check("ServerVersion", st); err != nil {
		return Version{}, err
	}
	return Version{Client: s.eng.ClientVersion(), Server: server}, nil
}

// BeginTransaction starts a transaction, statements are auto-committed
// otherwise.
func (s *Session) BeginTransaction() error {
	if err := s.connected(); err != nil {
		return err
	}
	return s.check("BeginTransaction", s.eng.BeginTransaction(s.tx, s.conn))
}

func (s *Session) Commit() error {
	if err := s.connected(); err != nil {
		return err
	}
	return s.check("Commit", s.eng.Commit(s.tx))
}

func (s *Session) Rollback() error {
	if err := s.connected(); err != nil {
		return err
	}
	return s.check("Rollback", s.eng.Rollback(s.tx))
}

func (s *Session) String() string {
	return fmt.Sprintf("tci session %s (%s)", s.id, s.status)
}
