package transbase

import (
	"fmt"
	"strings"
)

// ColumnInfo describes a result column, Col is 1-based.
type ColumnInfo struct {
	Col  int
	Name string
	Type SQLType
}

// TypeName is the SQL name of the column type, e.g. "CLOB".
func (c ColumnInfo) TypeName() string { return c.Type.String() }

// Row maps column names to decoded values, nil for NULL.
type Row map[string]any

// Buffer is one chunk of a value read with ReadValueAsBuffer.
type Buffer struct {
	Data    []byte
	HasMore bool
}

// ResultSet fetches the rows of a query sequentially.
type ResultSet struct {
	s        *Session
	cols     []ColumnInfo
	typeCast bool
}

func newResultSet(s *Session, typeCast bool) (*ResultSet, error) {
	count, err := s.GetResultSetAttribute(AttrColumnCount, 1)
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{s: s, typeCast: typeCast, cols: make([]ColumnInfo, 0, count)}
	for col := 1; col <= count; col++ {
		name, err := s.GetResultSetStringAttribute(AttrColumnName, col)
		if err != nil {
			return nil, err
		}
		typ, err := s.GetResultSetAttribute(AttrColumnType, col)
		if err != nil {
			return nil, err
		}
		rs.cols = append(rs.cols, ColumnInfo{Col: col, Name: name, Type: SQLType(typ)})
	}
	return rs, nil
}

// Columns returns the column descriptions in select order.
func (rs *ResultSet) Columns() []ColumnInfo { return rs.cols }

// ColumnIndex returns the 1-based number of the column called name.
func (rs *ResultSet) ColumnIndex(name string) (int, error) {
	for _, c := range rs.cols {
		if strings.EqualFold(c.Name, name) {
			return c.Col, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrColumnDoesNotExist, name)
}

func (rs *ResultSet) column(col int) (ColumnInfo, error) {
	if col < 1 || col > len(rs.cols) {
		return ColumnInfo{}, fmt.Errorf("%w: %d", ErrColumnDoesNotExist, col)
	}
	return rs.cols[col-1], nil
}

// Fetch moves to the next row without reading it.
func (rs *ResultSet) Fetch() (bool, error) { return rs.s.Fetch() }

// HasNext is false once a fetch reported the end of data.
func (rs *ResultSet) HasNext() bool { return rs.s.GetState() == StateSuccess }

// Next fetches and decodes the next row. It returns a nil row when no
// rows are left.
func (rs *ResultSet) Next() (Row, error) {
	ok, err := rs.s.Fetch()
	if err != nil || !ok {
		return nil, err
	}

	row := make(Row, len(rs.cols))
	for _, c := range rs.cols {
		v, err := rs.s.GetValueCast(c.Col, c.Type, rs.typeCast)
		if err != nil {
			return nil, fmt.Errorf("can't read column %s: %w", c.Name, err)
		}
		row[c.Name] = v
	}
	return row, nil
}

// ToArray fetches all remaining rows.
func (rs *ResultSet) ToArray() ([]Row, error) {
	res := []Row{}
	for {
		row, err := rs.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return res, nil
		}
		res = append(res, row)
	}
}

// ReadValue decodes column col of the current row.
func (rs *ResultSet) ReadValue(col int) (any, error) {
	c, err := rs.column(col)
	if err != nil {
		return nil, err
	}
	return rs.s.GetValueCast(c.Col, c.Type, rs.typeCast)
}

// ReadValueAsString reads column col of the current row as text, nil for
// NULL.
func (rs *ResultSet) ReadValueAsString(col int) (*string, error) {
	c, err := rs.column(col)
	if err != nil {
		return nil, err
	}
	v, err := rs.s.GetValueCast(c.Col, c.Type, false)
	if err != nil || v == nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("column %s decoded to %T", c.Name, v)
	}
	return &s, nil
}

// ReadValueAsBuffer reads the next chunk of at most size bytes of column
// col. Call again while HasMore is set to get the rest.
func (rs *ResultSet) ReadValueAsBuffer(col, size int) (Buffer, error) {
	c, err := rs.column(col)
	if err != nil {
		return Buffer{}, err
	}
	data, more, err := rs.s.GetValueAsBuffer(c.Col, size)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Data: data, HasMore: more}, nil
}

// IsNull reports whether column col of the current row is NULL.
func (rs *ResultSet) IsNull(col int) (bool, error) {
	c, err := rs.column(col)
	if err != nil {
		return false, err
	}
	return rs.s.IsNull(c.Col)
}
