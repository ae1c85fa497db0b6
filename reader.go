package transbase

import (
	"bytes"
	"math"
)

// bit strings and binaries are probed with a textual "0b"/"0x" prefix
const bitFraming = 2

type reader struct {
	eng   Engine
	rs    ResultSetHandle
	check checkFunc
}

// read decodes column col of the current row. A nil result is SQL NULL.
func (r reader) read(col int, t SQLType, typeCast bool) (any, error) {
	if !typeCast {
		switch t {
		case SQLBool, SQLBit, SQLBits2, SQLBinary, SQLBlob:
			return r.readBits(col)
		default:
			return r.readString(col)
		}
	}

	switch t {
	case SQLBool:
		buf, isNull, err := r.readFixed(col, CInt1)
		if err != nil || isNull {
			return nil, err
		}
		return buf[0] != 0, nil
	case SQLTinyInt, SQLSmallInt, SQLInteger:
		buf, isNull, err := r.readFixed(col, CInt4)
		if err != nil || isNull {
			return nil, err
		}
		return int32(ByteOrder.Uint32(buf)), nil
	case SQLBigInt:
		buf, isNull, err := r.readFixed(col, CInt8)
		if err != nil || isNull {
			return nil, err
		}
		return int64(ByteOrder.Uint64(buf)), nil
	case SQLFloat:
		buf, isNull, err := r.readFixed(col, CFloat)
		if err != nil || isNull {
			return nil, err
		}
		return math.Float32frombits(ByteOrder.Uint32(buf)), nil
	case SQLDouble, SQLNumeric, SQLDecimal:
		buf, isNull, err := r.readFixed(col, CDouble)
		if err != nil || isNull {
			return nil, err
		}
		return math.Float64frombits(ByteOrder.Uint64(buf)), nil
	case SQLBlob, SQLBinary:
		return r.readBlob(col)
	case SQLBit, SQLBits2:
		return r.readBits(col)
	default:
		// char, varchar, clob and everything without a dedicated decode path
		return r.readString(col)
	}
}

func (r reader) readFixed(col int, ct CType) (buf []byte, isNull bool, err error) {
	buf = make([]byte, ct.Size())
	_, isNull, st := r.eng.GetData(r.rs, col, buf, ct)
	if err = r.check("GetData", st); err != nil {
		return nil, false, err
	}
	return buf, isNull, nil
}

func (r reader) readString(col int) (any, error) {
	byteSize, sizeNull, st := r.eng.GetDataSize(r.rs, col, CChar)
	if err := r.check("GetDataSize", st); err != nil {
		return nil, err
	}
	// char length and byte size differ for multi-byte text, both are needed
	charLength, lenNull, st := r.eng.GetDataCharLength(r.rs, col)
	if err := r.check("GetDataCharLength", st); err != nil {
		return nil, err
	}
	if sizeNull || lenNull {
		return nil, nil
	}
	if byteSize == 0 || charLength == 0 {
		return "", nil
	}

	buf := make([]byte, max(byteSize, charLength)+1)
	n, isNull, st := r.eng.GetData(r.rs, col, buf, CChar)
	if err := r.check("GetData", st); err != nil {
		return nil, err
	}
	if isNull {
		return nil, nil
	}
	return string(buf[:min(n, len(buf))]), nil
}

func (r reader) readBlob(col int) (any, error) {
	size, isNull, st := r.eng.GetDataSize(r.rs, col, CByte)
	if err := r.check("GetDataSize", st); err != nil {
		return nil, err
	}
	if isNull {
		return nil, nil
	}

	buf := make([]byte, size)
	_, isNull, st = r.eng.GetData(r.rs, col, buf, CByte)
	if err := r.check("GetData", st); err != nil {
		return nil, err
	}
	if isNull {
		return nil, nil
	}
	return buf, nil
}

func (r reader) readBits(col int) (any, error) {
	size, isNull, st := r.eng.GetDataSize(r.rs, col, CChar)
	if err := r.check("GetDataSize", st); err != nil {
		return nil, err
	}
	if isNull {
		return nil, nil
	}

	buf := bytes.Repeat([]byte{'0'}, max(size-bitFraming, 0))
	_, isNull, st = r.eng.GetData(r.rs, col, buf, CChar)
	if err := r.check("GetData", st); err != nil {
		return nil, err
	}
	if isNull {
		return nil, nil
	}
	return string(buf), nil
}

// readBuffer decodes at most maxSize bytes of the column text. more is
// set when the engine truncated, the next call continues from there.
func (r reader) readBuffer(col, maxSize int) (data []byte, more bool, err error) {
	if maxSize <= 0 {
		return nil, false, ErrInvalidBufferSize
	}

	buf := make([]byte, maxSize)
	n, isNull, st := r.eng.GetData(r.rs, col, buf, CChar)
	if err = r.check("GetData", st, StateDataTruncated); err != nil {
		return nil, false, err
	}
	if isNull {
		return nil, false, nil
	}
	return buf[:min(n, maxSize)], st == StateDataTruncated, nil
}

// isNull probes the null indicator without decoding the value.
func (r reader) isNull(col int) (bool, error) {
	_, isNull, st := r.eng.GetDataSize(r.rs, col, CChar)
	if err := r.check("GetDataSize", st); err != nil {
		return false, err
	}
	return isNull, nil
}
