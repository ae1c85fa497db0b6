package transbase

import (
	"fmt"
)

// Transbase is a client connected and logged in to one database.
// Always call Close when the client is not needed anymore.
//
//	tb, err := transbase.Connect(transbase.Config{URL: "//localhost:2024/sample", User: "tbadmin"}, eng)
//	res, err := tb.Query("select * from cashbook")
//	rows, err := res.ResultSet.ToArray()
//	tb.Close()
type Transbase struct {
	s *Session
}

// QueryOptions passed among the Query parameters apply to that query only.
type QueryOptions struct {
	TypeCast *bool
}

// Result of Query. ResultSet is set for statements selecting data,
// RecordsTouched for everything else.
type Result struct {
	ResultSet      *ResultSet
	RecordsTouched int
	QueryType      QueryType
}

// Connect opens a session over eng using cfg.
func Connect(cfg Config, eng Engine, opts ...Option) (*Transbase, error) {
	opts = append([]Option{WithTypeCast(cfg.TypeCastEnabled())}, opts...)
	s := NewSession(eng, opts...)
	if err := s.Connect(cfg.URL, cfg.User, cfg.Password); err != nil {
		if cerr := s.Close(); cerr != nil {
			s.log.Logf("[WARN] tci %s: can't release partial session, %v", s.id, cerr)
		}
		return nil, err
	}
	return &Transbase{s: s}, nil
}

// Session exposes the underlying session.
func (tb *Transbase) Session() *Session { return tb.s }

// Query executes sql. Parameters are given as positional values, as one
// []any of positional values or as one map[string]any of named values
// (":name" in sql). A QueryOptions value among params is taken as options.
// Without parameters the statement is executed directly.
//
// The returned ResultSet reads from the session's only result set and is
// invalid once the next statement runs.
func (tb *Transbase) Query(sql string, params ...any) (*Result, error) {
	typeCast := tb.s.TypeCast()
	args := make([]any, 0, len(params))
	for _, p := range params {
		if o, ok := p.(QueryOptions); ok {
			if o.TypeCast != nil {
				typeCast = *o.TypeCast
			}
			continue
		}
		args = append(args, p)
	}

	var named map[string]any
	if len(args) == 1 {
		switch a := args[0].(type) {
		case map[string]any:
			named, args = a, nil
		case []any:
			args = a
		}
	}

	if len(args) == 0 && len(named) == 0 {
		if err := tb.s.ExecuteDirect(sql); err != nil {
			return nil, err
		}
	} else {
		if err := tb.s.Prepare(sql); err != nil {
			return nil, err
		}
		for i, v := range args {
			if err := tb.s.SetParam(Position(i), v); err != nil {
				return nil, fmt.Errorf("can't set parameter %d: %w", i, err)
			}
		}
		for name, v := range named {
			if err := tb.s.SetParam(Name(name), v); err != nil {
				return nil, fmt.Errorf("can't set parameter %s: %w", name, err)
			}
		}
		if err := tb.s.Execute(); err != nil {
			return nil, err
		}
	}

	qt, err := tb.s.GetQueryType()
	if err != nil {
		return nil, err
	}
	if qt.IsSelect() {
		rs, err := newResultSet(tb.s, typeCast)
		if err != nil {
			return nil, err
		}
		return &Result{ResultSet: rs, QueryType: qt}, nil
	}

	touched, err := tb.s.GetResultSetAttribute(AttrRecordsTouched, 1)
	if err != nil {
		return nil, err
	}
	return &Result{RecordsTouched: touched, QueryType: qt}, nil
}

// SetTypeCast switches the decoding mode of later queries.
func (tb *Transbase) SetTypeCast(enabled bool) { tb.s.SetTypeCast(enabled) }

func (tb *Transbase) BeginTransaction() error { return tb.s.BeginTransaction() }
func (tb *Transbase) Commit() error           { return tb.s.Commit() }
func (tb *Transbase) Rollback() error         { return tb.s.Rollback() }

// VersionInfo returns client and server versions.
func (tb *Transbase) VersionInfo() (Version, error) { return tb.s.VersionInfo() }

// Close closes the connection and frees all resources.
func (tb *Transbase) Close() error { return tb.s.Close() }
