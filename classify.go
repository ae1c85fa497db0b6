package transbase

import (
	"database/sql/driver"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"time"
)

// Classified is a value mapped onto exactly one wire type. The set of
// implementations is closed: Int1, Int4, Int8, Double, Char, Bytes, Null.
type Classified interface {
	CType() CType
	classified()
}

type (
	Int1   int8
	Int4   int32
	Int8   int64
	Double float64
	Char   string
	// Bytes references the caller's buffer, it is never copied.
	Bytes []byte
	// Null is bound with the null indicator set.
	Null struct{}
)

func (Int1) CType() CType   { return CInt1 }
func (Int4) CType() CType   { return CInt4 }
func (Int8) CType() CType   { return CInt8 }
func (Double) CType() CType { return CDouble }
func (Char) CType() CType   { return CChar }
func (Bytes) CType() CType  { return CByte }
func (Null) CType() CType   { return CChar }

func (Int1) classified()   {}
func (Int4) classified()   {}
func (Int8) classified()   {}
func (Double) classified() {}
func (Char) classified()   {}
func (Bytes) classified()  {}
func (Null) classified()   {}

// TimeLayout is the text form bound for time.Time parameters.
const TimeLayout = "2006-01-02 15:04:05.000"

// largest magnitude a float64 holds without losing integer precision
const maxExactFloat = 1 << 53

// Classify selects the narrowest wire type for v. It has no side effects
// beyond calling Value on a driver.Valuer. Named bool, integer and float
// types are classified by their value even when they have a String
// method, so time.Duration binds as nanoseconds.
func Classify(v any) Classified {
	switch x := v.(type) {
	case nil:
		return Null{}
	case bool:
		if x {
			return Int1(1)
		}
		return Int1(0)
	case *big.Int:
		if x == nil {
			return Null{}
		}
		if x.IsInt64() {
			return Int8(x.Int64())
		}
		return Char(x.String())
	case big.Int:
		return Classify(&x)
	case int:
		return classifyInt(int64(x))
	case int8:
		return Int4(x)
	case int16:
		return Int4(x)
	case int32:
		return Int4(x)
	case int64:
		return classifyInt(x)
	case uint:
		return classifyUint(uint64(x))
	case uint8:
		return Int4(x)
	case uint16:
		return Int4(x)
	case uint32:
		return classifyInt(int64(x))
	case uint64:
		return classifyUint(x)
	case float32:
		return classifyFloat(float64(x))
	case float64:
		return classifyFloat(x)
	case []byte:
		return Bytes(x)
	case Classified:
		return x
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null{}
	}
	if _, ok := v.(driver.Valuer); ok {
		if dv, err := valuerValue(v); err == nil {
			return Classify(dv)
		}
	}

	switch rv.Kind() {
	case reflect.Pointer:
		elem := rv.Elem().Interface()
		// text methods with pointer receivers are lost on the element
		if !hasText(elem) && hasText(v) {
			return Char(coerceString(v))
		}
		return Classify(elem)
	case reflect.Bool:
		return Classify(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return classifyInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return classifyUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return classifyFloat(rv.Float())
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Bytes(rv.Bytes())
		}
	}
	return Char(coerceString(v))
}

// valuerValue resolves v through driver.Valuer until a plain value is
// left. A nil pointer Valuer is NULL.
func valuerValue(v any) (any, error) {
	for i := 0; i < 8; i++ {
		vr, ok := v.(driver.Valuer)
		if !ok {
			return v, nil
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		dv, err := vr.Value()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		v = dv
	}
	return nil, fmt.Errorf("%w: %T resolves to another Valuer too often", ErrUnsupportedValue, v)
}

func hasText(v any) bool {
	switch v.(type) {
	case fmt.Stringer, error:
		return true
	}
	return false
}

func classifyInt(i int64) Classified {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return Int4(i)
	}
	return Int8(i)
}

func classifyUint(u uint64) Classified {
	if u > math.MaxInt64 {
		return Char(fmt.Sprintf("%d", u))
	}
	return classifyInt(int64(u))
}

func classifyFloat(f float64) Classified {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Double(f)
	}
	if f >= math.MinInt32 && f <= math.MaxInt32 {
		return Int4(int32(f))
	}
	if math.Abs(f) <= maxExactFloat {
		return Int8(int64(f))
	}
	return Double(f)
}

// coerceString is the text form of values without a dedicated wire type.
func coerceString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(TimeLayout)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprint(v)
	}
}

// encode returns the bytes handed to the engine for c.
func encode(c Classified) (data []byte, isNull bool, err error) {
	switch x := c.(type) {
	case Int1:
		return []byte{byte(x)}, false, nil
	case Int4:
		buf := make([]byte, 4)
		ByteOrder.PutUint32(buf, uint32(x))
		return buf, false, nil
	case Int8:
		buf := make([]byte, 8)
		ByteOrder.PutUint64(buf, uint64(x))
		return buf, false, nil
	case Double:
		buf := make([]byte, 8)
		ByteOrder.PutUint64(buf, math.Float64bits(float64(x)))
		return buf, false, nil
	case Char:
		return []byte(x), false, nil
	case Bytes:
		return []byte(x), false, nil
	case Null:
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("%w: %T", ErrUnsupportedValue, c)
}
