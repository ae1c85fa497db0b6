package transbase

import (
	"fmt"
)

// Target addresses a statement parameter by 0-based position or by name.
type Target struct {
	pos   int
	name  string
	named bool
}

// Position targets the parameter at 0-based position p.
func Position(p int) Target { return Target{pos: p} }

// Name targets the parameter called n, without the leading colon.
func Name(n string) Target { return Target{name: n, named: true} }

func (t Target) String() string {
	if t.named {
		return ":" + t.name
	}
	return fmt.Sprintf("#%d", t.pos)
}

// checkFunc records st for op and turns a non-zero state that is not
// listed in ok into an error.
type checkFunc func(op string, st State, ok ...State) error

type binder struct {
	eng   Engine
	rs    ResultSetHandle
	check checkFunc
}

func (b binder) bind(t Target, value any) error {
	if (t.named && t.name == "") || (!t.named && t.pos < 0) {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, t)
	}

	value, err := valuerValue(value)
	if err != nil {
		return err
	}
	c := Classify(value)
	data, isNull, err := encode(c)
	if err != nil {
		return err
	}

	if t.named {
		return b.check("SetDataByName", b.eng.SetDataByName(b.rs, t.name, data, c.CType(), isNull))
	}
	// the engine counts parameters from 1
	return b.check("SetData", b.eng.SetData(b.rs, t.pos+1, data, c.CType(), isNull))
}
