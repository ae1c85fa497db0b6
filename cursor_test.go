package transbase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_Encode(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		ct   CType
		want []byte
		err  string
	}{
		{name: "bool as int1", cell: Cell{Type: SQLBool, Value: true}, ct: CInt1, want: []byte{1}},
		{name: "int as int4", cell: Cell{Type: SQLInteger, Value: int64(-1)}, ct: CInt4, want: []byte{0xff, 0xff, 0xff, 0xff}},
		{name: "text as int8", cell: Cell{Type: SQLVarChar, Value: " 258 "}, ct: CInt8, want: []byte{2, 1, 0, 0, 0, 0, 0, 0}},
		{name: "decimal text as int4", cell: Cell{Type: SQLNumeric, Value: "3.9"}, ct: CInt4, want: []byte{3, 0, 0, 0}},
		{name: "int as float", cell: Cell{Type: SQLInteger, Value: int64(1)}, ct: CFloat, want: []byte{0, 0, 0x80, 0x3f}},
		{name: "float as text", cell: Cell{Type: SQLDouble, Value: 0.5}, ct: CChar, want: []byte("0.5")},
		{name: "blob as text", cell: Cell{Type: SQLBlob, Value: []byte{0xca, 0xfe}}, ct: CChar, want: []byte("cafe")},
		{name: "text as bytes", cell: Cell{Type: SQLVarChar, Value: "ab"}, ct: CByte, want: []byte("ab")},
		{name: "null", cell: Cell{Type: SQLInteger}, ct: CInt4, want: nil},
		{name: "bad number", cell: Cell{Type: SQLVarChar, Value: "abc"}, ct: CInt4, err: `can't convert "abc" to integer`},
		{name: "int4 overflow", cell: Cell{Type: SQLInteger, Value: int64(5000000000)}, ct: CInt4, err: "numeric value out of range: 5000000000 does not fit TCI_C_INT4"},
		{name: "int4 underflow", cell: Cell{Type: SQLInteger, Value: int64(-2147483649)}, ct: CInt4, err: "numeric value out of range: -2147483649 does not fit TCI_C_INT4"},
		{name: "int1 overflow", cell: Cell{Type: SQLBool, Value: int64(300)}, ct: CInt1, err: "numeric value out of range: 300 does not fit TCI_C_INT1"},
		{name: "int4 upper bound", cell: Cell{Type: SQLInteger, Value: int64(2147483647)}, ct: CInt4, want: []byte{0xff, 0xff, 0xff, 0x7f}},
		{name: "huge float as int8", cell: Cell{Type: SQLDouble, Value: 1e19}, ct: CInt8, err: "numeric value out of range: 1e+19 does not fit TCI_C_INT8"},
		{name: "blob as number", cell: Cell{Type: SQLBlob, Value: []byte{1}}, ct: CDouble, err: "can't convert BLOB value to number"},
		{name: "unknown ctype", cell: Cell{Type: SQLInteger, Value: int64(1)}, ct: CType(42), err: "unsupported c type TCI_C(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cell.Encode(tt.ct)
			if tt.err != "" {
				assert.EqualError(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCell_Size(t *testing.T) {
	tests := []struct {
		cell Cell
		ct   CType
		want int
	}{
		{Cell{Type: SQLVarChar, Value: "grüße"}, CChar, 7},
		{Cell{Type: SQLBit, Value: "101"}, CChar, 5},
		{Cell{Type: SQLBool, Value: false}, CChar, 7},
		{Cell{Type: SQLBlob, Value: []byte{1, 2}}, CChar, 6},
		{Cell{Type: SQLBlob, Value: []byte{1, 2}}, CByte, 2},
		{Cell{Type: SQLBigInt, Value: int64(5)}, CInt8, 8},
	}

	for _, tt := range tests {
		got, err := tt.cell.Size(tt.ct)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v as %s", tt.cell.Value, tt.ct)
	}

	assert.Equal(t, 5, Cell{Type: SQLVarChar, Value: "grüße"}.CharLength())
	assert.Equal(t, 0, Cell{Type: SQLVarChar}.CharLength())
}

func TestCursor_Fetch(t *testing.T) {
	c := NewCursor(&Results{Rows: [][]Cell{{{Value: int64(1)}}, {{Value: int64(2)}}}})

	tests := []struct {
		mode   ScrollMode
		offset int
		ok     bool
		pos    int
	}{
		{ScrollPrior, 0, false, 0},
		{ScrollNext, 0, true, 1},
		{ScrollNext, 0, true, 2},
		{ScrollNext, 0, false, 3},
		{ScrollNext, 0, false, 3},
		{ScrollPrior, 0, true, 2},
		{ScrollRelative, -10, false, 0},
		{ScrollAbsolute, -1, true, 2},
		{ScrollAbsolute, 0, false, 0},
		{ScrollLast, 0, true, 2},
	}

	for i, tt := range tests {
		ok, err := c.Fetch(tt.mode, tt.offset)
		require.NoError(t, err)
		assert.Equal(t, tt.ok, ok, "step %d", i)
		assert.Equal(t, tt.pos, c.pos, "step %d", i)
	}

	_, err := c.Fetch(ScrollMode(9), 0)
	assert.EqualError(t, err, "unknown scroll mode 9")
}

func TestCursor_GetData(t *testing.T) {
	c := NewCursor(&Results{
		Columns: []ResultColumn{{Name: "a", Type: SQLVarChar}, {Name: "b", Type: SQLInteger}},
		Rows:    [][]Cell{{{Type: SQLVarChar, Value: "abcdef"}, {Type: SQLInteger, Value: int64(9)}}},
	})
	_, _, _, err := c.GetData(1, make([]byte, 4), CChar)
	assert.ErrorIs(t, err, errNoCurrentRow)

	_, err = c.Fetch(ScrollNext, 0)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, _, truncated, err := c.GetData(1, buf, CChar)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "abcd", string(buf[:n]))

	n, _, truncated, err = c.GetData(1, buf, CChar)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "ef", string(buf[:n]))

	_, _, _, err = c.GetData(2, make([]byte, 2), CInt4)
	assert.EqualError(t, err, "buffer of 2 bytes too small for TCI_C_INT4")

	_, _, _, err = c.GetData(3, buf, CChar)
	assert.ErrorIs(t, err, ErrColumnDoesNotExist)

	// moving the cursor drops partial reads
	_, _, _, err = c.GetData(1, buf, CChar)
	require.NoError(t, err)
	_, err = c.Fetch(ScrollFirst, 0)
	require.NoError(t, err)
	n, _, _, err = c.GetData(1, buf, CChar)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))
}

func TestCursor_Attributes(t *testing.T) {
	c := NewCursor(&Results{
		Columns:        []ResultColumn{{Name: "id", Type: SQLBigInt}},
		RecordsTouched: 3,
		QueryType:      QueryInsert,
	})

	tests := []struct {
		attr Attribute
		col  int
		want int
		err  string
	}{
		{attr: AttrColumnCount, want: 1},
		{attr: AttrRecordsTouched, want: 3},
		{attr: AttrQueryType, want: int(QueryInsert)},
		{attr: AttrColumnType, col: 1, want: int(SQLBigInt)},
		{attr: AttrColumnType, col: 2, err: "column does not exist: 2"},
		{attr: AttrColumnName, err: "attribute 2 is not numeric"},
	}

	for _, tt := range tests {
		got, err := c.Attribute(tt.attr, tt.col)
		if tt.err != "" {
			assert.EqualError(t, err, tt.err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	name, err := c.StringAttribute(AttrColumnName, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "i", name)
	_, err = c.StringAttribute(AttrColumnCount, 1, 10)
	assert.EqualError(t, err, "attribute 1 is not text")
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abc", 3, "abc"},
		{"abc", 2, "ab"},
		{"grüße", 3, "gr"},
		{"grüße", 4, "grü"},
		{"日本", 5, "日"},
		{"日本", 2, ""},
		{"abc", 0, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateText(tt.in, tt.n), "%q to %d", tt.in, tt.n)
	}
}

func TestCursor_NilResults(t *testing.T) {
	c := NewCursor(nil)
	ok, err := c.Fetch(ScrollNext, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotNil(t, c.Results())
}
