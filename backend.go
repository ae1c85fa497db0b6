package transbase

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Cell is a column value held by an engine for the current row. Value is
// nil for NULL, otherwise one of bool, int64, float64, string or []byte.
// Bit strings are held as strings of '0' and '1'.
type Cell struct {
	Type  SQLType
	Value any
}

// ResultColumn contains the metadata of a column
type ResultColumn struct {
	Name    string
	Type    SQLType
	NotNull bool
}

// Results is what an engine keeps for an executed statement
type Results struct {
	Columns        []ResultColumn
	Rows           [][]Cell
	RecordsTouched int
	QueryType      QueryType
}

func (c Cell) IsNull() bool { return c.Value == nil }

// framed reports whether the text form of the cell is probed with the two
// byte prefix of bit strings.
func (c Cell) framed() bool {
	switch c.Type {
	case SQLBool, SQLBit, SQLBits2, SQLBinary, SQLBlob:
		return true
	}
	return false
}

// AsText is the character representation, nil for NULL.
func (c Cell) AsText() *string {
	var s string
	switch v := c.Value.(type) {
	case nil:
		return nil
	case bool:
		s = strconv.FormatBool(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		s = v
	case []byte:
		s = hex.EncodeToString(v)
	default:
		s = fmt.Sprint(v)
	}
	return &s
}

func (c Cell) AsInt() (*int64, error) {
	var i int64
	switch v := c.Value.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			i = 1
		}
	case int64:
		i = v
	case float64:
		if !floatFitsInt64(v) {
			return nil, fmt.Errorf("%w: %v does not fit %s", ErrOverflow, v, CInt8)
		}
		i = int64(v)
	case string:
		p, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if ferr != nil {
				return nil, fmt.Errorf("can't convert %q to integer", v)
			}
			if !floatFitsInt64(f) {
				return nil, fmt.Errorf("%w: %s does not fit %s", ErrOverflow, v, CInt8)
			}
			p = int64(f)
		}
		i = p
	default:
		return nil, fmt.Errorf("can't convert %s value to integer", c.Type)
	}
	return &i, nil
}

// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
func floatFitsInt64(f float64) bool {
	return f >= math.MinInt64 && f < math.MaxInt64
}

func (c Cell) AsFloat() (*float64, error) {
	var f float64
	switch v := c.Value.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			f = 1
		}
	case int64:
		f = float64(v)
	case float64:
		f = v
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("can't convert %q to number", v)
		}
		f = p
	default:
		return nil, fmt.Errorf("can't convert %s value to number", c.Type)
	}
	return &f, nil
}

func (c Cell) AsBytes() []byte {
	switch v := c.Value.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(*c.AsText())
	}
}

// Encode renders the whole cell in the wire representation ct.
func (c Cell) Encode(ct CType) ([]byte, error) {
	if c.IsNull() {
		return nil, nil
	}
	switch ct {
	case CInt1, CInt4, CInt8:
		i, err := c.AsInt()
		if err != nil {
			return nil, err
		}
		if (ct == CInt1 && (*i < math.MinInt8 || *i > math.MaxInt8)) ||
			(ct == CInt4 && (*i < math.MinInt32 || *i > math.MaxInt32)) {
			return nil, fmt.Errorf("%w: %d does not fit %s", ErrOverflow, *i, ct)
		}
		buf := make([]byte, ct.Size())
		switch ct {
		case CInt1:
			buf[0] = byte(int8(*i))
		case CInt4:
			ByteOrder.PutUint32(buf, uint32(int32(*i)))
		default:
			ByteOrder.PutUint64(buf, uint64(*i))
		}
		return buf, nil
	case CFloat, CDouble:
		f, err := c.AsFloat()
		if err != nil {
			return nil, err
		}
		buf := make([]byte, ct.Size())
		if ct == CFloat {
			ByteOrder.PutUint32(buf, math.Float32bits(float32(*f)))
		} else {
			ByteOrder.PutUint64(buf, math.Float64bits(*f))
		}
		return buf, nil
	case CChar:
		return []byte(*c.AsText()), nil
	case CByte:
		return c.AsBytes(), nil
	}
	return nil, fmt.Errorf("unsupported c type %s", ct)
}

// Size is the byte size probe of the cell for ct.
func (c Cell) Size(ct CType) (int, error) {
	data, err := c.Encode(ct)
	if err != nil {
		return 0, err
	}
	if ct == CChar && c.framed() {
		return len(data) + 2, nil
	}
	return len(data), nil
}

// CharLength is the number of characters of the text representation.
func (c Cell) CharLength() int {
	s := c.AsText()
	if s == nil {
		return 0
	}
	return utf8.RuneCountInString(*s)
}
