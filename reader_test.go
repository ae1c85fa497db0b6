package transbase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// typedRow scripts one row of all column types; the second row is all NULL.
func typedRow() *Results {
	cols := []ResultColumn{
		{Name: "b", Type: SQLBool},
		{Name: "i", Type: SQLInteger},
		{Name: "l", Type: SQLBigInt},
		{Name: "f", Type: SQLFloat},
		{Name: "d", Type: SQLDouble},
		{Name: "n", Type: SQLNumeric},
		{Name: "s", Type: SQLVarChar},
		{Name: "blob", Type: SQLBlob},
		{Name: "bits", Type: SQLBit},
		{Name: "bin", Type: SQLBinary},
		{Name: "c", Type: SQLClob},
		{Name: "ts", Type: SQLTimestamp},
	}
	vals := []any{
		true, int64(42), int64(1) << 40, 1.5, 2.25, "12.5", "grüße",
		[]byte{1, 2, 3}, "0101", []byte{0xff}, strings.Repeat("x", 300), "2024-01-02 03:04:05.000",
	}

	row, nulls := []Cell{}, []Cell{}
	for i, c := range cols {
		row = append(row, Cell{Type: c.Type, Value: vals[i]})
		nulls = append(nulls, Cell{Type: c.Type})
	}
	return &Results{Columns: cols, Rows: [][]Cell{row, nulls}, QueryType: QuerySelect}
}

func typedSession(t *testing.T) (*Session, *MemoryEngine) {
	t.Helper()
	eng := NewMemoryEngine()
	eng.Script("select * from typed", typedRow())
	s := connectedSession(t, eng)
	require.NoError(t, s.ExecuteDirect("select * from typed"))
	ok, err := s.Fetch()
	require.NoError(t, err)
	require.True(t, ok)
	return s, eng
}

func TestReader_TypeCast(t *testing.T) {
	s, _ := typedSession(t)

	tests := []struct {
		col  int
		typ  SQLType
		want any
	}{
		{1, SQLBool, true},
		{2, SQLInteger, int32(42)},
		{3, SQLBigInt, int64(1) << 40},
		{4, SQLFloat, float32(1.5)},
		{5, SQLDouble, 2.25},
		{6, SQLNumeric, 12.5},
		{7, SQLVarChar, "grüße"},
		{8, SQLBlob, []byte{1, 2, 3}},
		{9, SQLBit, "0101"},
		{10, SQLBinary, []byte{0xff}},
		{11, SQLClob, strings.Repeat("x", 300)},
		{12, SQLTimestamp, "2024-01-02 03:04:05.000"},
	}

	for _, tt := range tests {
		v, err := s.GetValueCast(tt.col, tt.typ, true)
		require.NoError(t, err, "column %d", tt.col)
		assert.Equal(t, tt.want, v, "column %d", tt.col)
	}
}

func TestReader_Text(t *testing.T) {
	s, _ := typedSession(t)

	tests := []struct {
		col  int
		typ  SQLType
		want string
	}{
		{1, SQLBool, "true"},
		{2, SQLInteger, "42"},
		{3, SQLBigInt, "1099511627776"},
		{4, SQLFloat, "1.5"},
		{6, SQLNumeric, "12.5"},
		{7, SQLVarChar, "grüße"},
		{8, SQLBlob, "010203"},
		{9, SQLBit, "0101"},
		{10, SQLBinary, "ff"},
	}

	s.SetTypeCast(false)
	for _, tt := range tests {
		v, err := s.GetValue(tt.col, tt.typ)
		require.NoError(t, err, "column %d", tt.col)
		assert.Equal(t, tt.want, v, "column %d", tt.col)
	}
}

func TestReader_Null(t *testing.T) {
	s, _ := typedSession(t)
	ok, err := s.Fetch()
	require.NoError(t, err)
	require.True(t, ok)

	types := []SQLType{SQLBool, SQLInteger, SQLBigInt, SQLFloat, SQLDouble, SQLNumeric,
		SQLVarChar, SQLBlob, SQLBit, SQLBinary, SQLClob, SQLTimestamp}
	for _, typeCast := range []bool{true, false} {
		for i, typ := range types {
			v, err := s.GetValueCast(i+1, typ, typeCast)
			require.NoError(t, err, "column %d", i+1)
			assert.Nil(t, v, "column %d typecast %v", i+1, typeCast)

			isNull, err := s.IsNull(i + 1)
			require.NoError(t, err)
			assert.True(t, isNull)
		}
	}

	data, more, err := s.GetValueAsBuffer(7, 16)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.False(t, more)
}

func TestReader_IsNull(t *testing.T) {
	s, _ := typedSession(t)
	isNull, err := s.IsNull(1)
	require.NoError(t, err)
	assert.False(t, isNull)

	_, err = s.IsNull(99)
	assert.ErrorContains(t, err, "column does not exist")
}

func TestReader_BlobLengths(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"one byte", []byte{0x7f}},
		{"large", []byte(strings.Repeat("\x00\x01\x02", 1000))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewMemoryEngine()
			eng.Script("select blob", &Results{
				Columns:   []ResultColumn{{Name: "blob", Type: SQLBlob}},
				Rows:      [][]Cell{{{Type: SQLBlob, Value: tt.data}}},
				QueryType: QuerySelect,
			})
			s := connectedSession(t, eng)
			require.NoError(t, s.ExecuteDirect("select blob"))
			_, err := s.Fetch()
			require.NoError(t, err)

			v, err := s.GetValue(1, SQLBlob)
			require.NoError(t, err)
			assert.Equal(t, tt.data, v)
		})
	}
}

func TestReader_BitsFraming(t *testing.T) {
	for _, bits := range []string{"", "1", "10110", strings.Repeat("01", 64)} {
		eng := NewMemoryEngine()
		eng.Script("select bits", &Results{
			Columns:   []ResultColumn{{Name: "bits", Type: SQLBits2}},
			Rows:      [][]Cell{{{Type: SQLBits2, Value: bits}}},
			QueryType: QuerySelect,
		})
		s := connectedSession(t, eng)
		require.NoError(t, s.ExecuteDirect("select bits"))
		_, err := s.Fetch()
		require.NoError(t, err)

		size, _, st := eng.GetDataSize(s.rs, 1, CChar)
		require.Equal(t, StateSuccess, st)
		assert.Equal(t, len(bits)+bitFraming, size)

		v, err := s.GetValue(1, SQLBits2)
		require.NoError(t, err)
		assert.Equal(t, bits, v)
	}
}

func TestReader_Buffer(t *testing.T) {
	eng := NewMemoryEngine()
	eng.Script("select greeting", &Results{
		Columns:   []ResultColumn{{Name: "greeting", Type: SQLClob}},
		Rows:      [][]Cell{{{Type: SQLClob, Value: "hello world"}}},
		QueryType: QuerySelect,
	})
	s := connectedSession(t, eng)
	require.NoError(t, s.ExecuteDirect("select greeting"))
	_, err := s.Fetch()
	require.NoError(t, err)

	t.Run("chunks", func(t *testing.T) {
		chunks := []string{}
		for {
			data, more, err := s.GetValueAsBuffer(1, 5)
			require.NoError(t, err)
			chunks = append(chunks, string(data))
			if !more {
				break
			}
		}
		assert.Equal(t, []string{"hello", " worl", "d"}, chunks)
	})

	t.Run("exact size", func(t *testing.T) {
		data, more, err := s.GetValueAsBuffer(1, len("hello world"))
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
		assert.False(t, more)
	})

	t.Run("invalid size", func(t *testing.T) {
		_, _, err := s.GetValueAsBuffer(1, 0)
		assert.ErrorIs(t, err, ErrInvalidBufferSize)
	})
}

func TestReader_NoCurrentRow(t *testing.T) {
	eng := NewMemoryEngine()
	eng.Script("select greeting", &Results{
		Columns:   []ResultColumn{{Name: "greeting", Type: SQLVarChar}},
		QueryType: QuerySelect,
	})
	s := connectedSession(t, eng)
	require.NoError(t, s.ExecuteDirect("select greeting"))

	_, err := s.GetValue(1, SQLVarChar)
	assert.ErrorContains(t, err, "no current row")
	assert.Equal(t, StateError, s.GetState())
}

func TestReader_Overflow(t *testing.T) {
	eng := NewMemoryEngine()
	eng.Script("select big", &Results{
		Columns: []ResultColumn{{Name: "i", Type: SQLInteger}, {Name: "l", Type: SQLBigInt}},
		Rows: [][]Cell{
			{{Type: SQLInteger, Value: int64(5000000000)}, {Type: SQLBigInt, Value: int64(5000000000)}},
		},
		QueryType: QuerySelect,
	})
	s := connectedSession(t, eng)
	require.NoError(t, s.ExecuteDirect("select big"))
	ok, err := s.Fetch()
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.GetValue(1, SQLInteger)
	assert.ErrorContains(t, err, "numeric value out of range: 5000000000 does not fit TCI_C_INT4")
	assert.Equal(t, StateError, s.GetState())

	v, err := s.GetValue(2, SQLBigInt)
	require.NoError(t, err)
	assert.Equal(t, int64(5000000000), v)

	s.SetTypeCast(false)
	v, err = s.GetValue(1, SQLInteger)
	require.NoError(t, err)
	assert.Equal(t, "5000000000", v)
}
