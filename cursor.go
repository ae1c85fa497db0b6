package transbase

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var errNoCurrentRow = errors.New("no current row")

// Cursor walks the rows of Results for an engine. It keeps the read
// offset of truncated GetData calls per column until the cursor moves.
type Cursor struct {
	res     *Results
	pos     int // 0 before the first row, len(rows)+1 after the last
	offsets map[int]int
}

func NewCursor(res *Results) *Cursor {
	if res == nil {
		res = &Results{}
	}
	return &Cursor{res: res, offsets: map[int]int{}}
}

func (c *Cursor) Results() *Results { return c.res }

// Fetch moves the cursor and reports whether it stands on a row.
func (c *Cursor) Fetch(mode ScrollMode, offset int) (bool, error) {
	n := len(c.res.Rows)
	pos := c.pos
	switch mode {
	case ScrollNext:
		pos++
	case ScrollPrior:
		pos--
	case ScrollFirst:
		pos = 1
	case ScrollLast:
		pos = n
	case ScrollAbsolute:
		pos = offset
		if offset < 0 {
			pos = n + 1 + offset
		}
	case ScrollRelative:
		pos += offset
	default:
		return false, fmt.Errorf("unknown scroll mode %d", mode)
	}

	c.pos = max(0, min(pos, n+1))
	clear(c.offsets)
	return c.pos >= 1 && c.pos <= n, nil
}

func (c *Cursor) cell(col int) (Cell, error) {
	if c.pos < 1 || c.pos > len(c.res.Rows) {
		return Cell{}, errNoCurrentRow
	}
	row := c.res.Rows[c.pos-1]
	if col < 1 || col > len(row) {
		return Cell{}, fmt.Errorf("%w: %d", ErrColumnDoesNotExist, col)
	}
	return row[col-1], nil
}

func (c *Cursor) DataSize(col int, ct CType) (size int, isNull bool, err error) {
	cell, err := c.cell(col)
	if err != nil {
		return 0, false, err
	}
	if cell.IsNull() {
		return 0, true, nil
	}
	size, err = cell.Size(ct)
	return size, false, err
}

func (c *Cursor) CharLength(col int) (length int, isNull bool, err error) {
	cell, err := c.cell(col)
	if err != nil {
		return 0, false, err
	}
	if cell.IsNull() {
		return 0, true, nil
	}
	return cell.CharLength(), false, nil
}

// GetData copies the cell into buf. Variable length representations are
// truncated to buf and continue on the next call, fixed size ones need a
// buffer of their size.
func (c *Cursor) GetData(col int, buf []byte, ct CType) (n int, isNull, truncated bool, err error) {
	cell, err := c.cell(col)
	if err != nil {
		return 0, false, false, err
	}
	if cell.IsNull() {
		return 0, true, false, nil
	}
	data, err := cell.Encode(ct)
	if err != nil {
		return 0, false, false, err
	}

	if size := ct.Size(); size > 0 {
		if len(buf) < size {
			return 0, false, false, fmt.Errorf("buffer of %d bytes too small for %s", len(buf), ct)
		}
		return copy(buf, data), false, false, nil
	}

	off := c.offsets[col]
	if off > len(data) {
		off = len(data)
	}
	n = copy(buf, data[off:])
	if off+n < len(data) {
		c.offsets[col] = off + n
		return n, false, true, nil
	}
	delete(c.offsets, col)
	return n, false, false, nil
}

func (c *Cursor) Attribute(attr Attribute, col int) (int, error) {
	switch attr {
	case AttrColumnCount:
		return len(c.res.Columns), nil
	case AttrRecordsTouched:
		return c.res.RecordsTouched, nil
	case AttrQueryType:
		return int(c.res.QueryType), nil
	case AttrColumnType:
		rc, err := c.column(col)
		if err != nil {
			return 0, err
		}
		return int(rc.Type), nil
	}
	return 0, fmt.Errorf("attribute %d is not numeric", attr)
}

func (c *Cursor) StringAttribute(attr Attribute, col, maxLen int) (string, error) {
	if attr != AttrColumnName {
		return "", fmt.Errorf("attribute %d is not text", attr)
	}
	rc, err := c.column(col)
	if err != nil {
		return "", err
	}
	return truncateText(rc.Name, maxLen), nil
}

// truncateText cuts s to at most n bytes without splitting a character.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (c *Cursor) column(col int) (ResultColumn, error) {
	if col < 1 || col > len(c.res.Columns) {
		return ResultColumn{}, fmt.Errorf("%w: %d", ErrColumnDoesNotExist, col)
	}
	return c.res.Columns[col-1], nil
}
