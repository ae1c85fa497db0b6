package sqlengine

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"

	tb "github.com/transaction/transbase-go"
)

func driverName(conn string) (string, error) {
	switch {
	case strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://"):
		return "postgres", nil
	case strings.Contains(conn, "@tcp(") || strings.HasPrefix(conn, "tcp("):
		return "mysql", nil
	case strings.HasPrefix(conn, "file:") || conn == ":memory:" ||
		strings.HasSuffix(conn, ".sqlite") || strings.HasSuffix(conn, ".db"):
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported database type in connection string")
}

// withCredentials puts user and password into dsn. sqlite has no
// credentials and an empty user keeps the ones already in dsn.
func withCredentials(driver, dsn, user, password string) (string, error) {
	if user == "" {
		return dsn, nil
	}
	switch driver {
	case "postgres":
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("can't parse postgres url: %w", err)
		}
		u.User = url.User(user)
		if password != "" {
			u.User = url.UserPassword(user, password)
		}
		return u.String(), nil
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("can't parse mysql dsn: %w", err)
		}
		cfg.User, cfg.Passwd = user, password
		return cfg.FormatDSN(), nil
	}
	return dsn, nil
}

// queryType classifies a statement by its leading keywords.
func queryType(query string) tb.QueryType {
	fields := strings.Fields(strings.TrimLeft(query, "( \t\r\n"))
	if len(fields) == 0 {
		return tb.QueryOther
	}
	kw, next := strings.ToUpper(fields[0]), ""
	if len(fields) > 1 {
		next = strings.ToUpper(fields[1])
	}

	switch kw {
	case "SELECT", "WITH", "VALUES", "TABLE", "SHOW", "EXPLAIN", "DESCRIBE", "PRAGMA":
		return tb.QuerySelect
	case "CALL":
		return tb.QueryCall
	case "INSERT":
		return tb.QueryInsert
	case "UPDATE":
		return tb.QueryUpdate
	case "DELETE":
		return tb.QueryDelete
	case "MERGE", "REPLACE", "UPSERT":
		return tb.QueryMerge
	case "CREATE":
		switch next {
		case "TABLE", "TEMP", "TEMPORARY":
			return tb.QueryCreateTable
		case "INDEX", "UNIQUE":
			return tb.QueryCreateIndex
		case "VIEW":
			return tb.QueryCreateView
		}
		return tb.QueryCreateObject
	case "ALTER":
		return tb.QueryAlter
	case "DROP":
		return tb.QueryDrop
	case "GRANT", "REVOKE":
		return tb.QueryGrant
	}
	return tb.QueryOther
}

var sqlTypes = map[string]tb.SQLType{
	"BOOL":              tb.SQLBool,
	"BOOLEAN":           tb.SQLBool,
	"TINYINT":           tb.SQLTinyInt,
	"SMALLINT":          tb.SQLSmallInt,
	"INT2":              tb.SQLSmallInt,
	"INT":               tb.SQLInteger,
	"INTEGER":           tb.SQLInteger,
	"INT4":              tb.SQLInteger,
	"MEDIUMINT":         tb.SQLInteger,
	"BIGINT":            tb.SQLBigInt,
	"INT8":              tb.SQLBigInt,
	"NUMERIC":           tb.SQLNumeric,
	"DECIMAL":           tb.SQLDecimal,
	"FLOAT":             tb.SQLFloat,
	"FLOAT4":            tb.SQLFloat,
	"REAL":              tb.SQLDouble,
	"DOUBLE":            tb.SQLDouble,
	"DOUBLE PRECISION":  tb.SQLDouble,
	"FLOAT8":            tb.SQLDouble,
	"CHAR":              tb.SQLChar,
	"CHARACTER":         tb.SQLChar,
	"BPCHAR":            tb.SQLChar,
	"VARCHAR":           tb.SQLVarChar,
	"CHARACTER VARYING": tb.SQLVarChar,
	"NVARCHAR":          tb.SQLVarChar,
	"TEXT":              tb.SQLVarChar,
	"NAME":              tb.SQLVarChar,
	"STRING":            tb.SQLString,
	"CLOB":              tb.SQLClob,
	"MEDIUMTEXT":        tb.SQLClob,
	"LONGTEXT":          tb.SQLClob,
	"BLOB":              tb.SQLBlob,
	"TINYBLOB":          tb.SQLBlob,
	"MEDIUMBLOB":        tb.SQLBlob,
	"LONGBLOB":          tb.SQLBlob,
	"BYTEA":             tb.SQLBlob,
	"BINARY":            tb.SQLBinary,
	"VARBINARY":         tb.SQLBinary,
	"BINCHAR":           tb.SQLBinary,
	"BIT":               tb.SQLBit,
	"BITS":              tb.SQLBit,
	"VARBIT":            tb.SQLBits2,
	"BITS2":             tb.SQLBits2,
	"DATE":              tb.SQLDate,
	"TIME":              tb.SQLTime,
	"TIMETZ":            tb.SQLTime,
	"TIMESTAMP":         tb.SQLTimestamp,
	"TIMESTAMPTZ":       tb.SQLTimestamp,
	"DATETIME":          tb.SQLDatetime,
	"INTERVAL":          tb.SQLInterval,
	"TIMESPAN":          tb.SQLTimespan,
}

// unsigned mysql integers take the next wider type. UNSIGNED BIGINT
// stays BIGINT, values above 2^63-1 fail to read with an overflow.
var unsignedTypes = map[string]tb.SQLType{
	"TINYINT":   tb.SQLSmallInt,
	"SMALLINT":  tb.SQLInteger,
	"MEDIUMINT": tb.SQLInteger,
	"INT":       tb.SQLBigInt,
	"INTEGER":   tb.SQLBigInt,
	"BIGINT":    tb.SQLBigInt,
}

// sqlType maps a driver's column type name. Unknown names are read as
// text, an empty name (sqlite expressions) gives 0 to be inferred from
// the values.
func sqlType(driver, name string) tb.SQLType {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		return 0
	}
	if u, ok := strings.CutPrefix(name, "UNSIGNED "); ok {
		if t, ok := unsignedTypes[u]; ok {
			return t
		}
		name = u
	}
	t, ok := sqlTypes[name]
	if !ok {
		return tb.SQLVarChar
	}
	// sqlite stores every integer in 64 bits, whatever the declared type
	if driver == "sqlite" {
		switch t {
		case tb.SQLTinyInt, tb.SQLSmallInt, tb.SQLInteger:
			return tb.SQLBigInt
		}
	}
	return t
}

func inferType(v any) tb.SQLType {
	switch v.(type) {
	case bool:
		return tb.SQLBool
	case int64:
		return tb.SQLBigInt
	case float64:
		return tb.SQLDouble
	case []byte:
		return tb.SQLBlob
	case time.Time:
		return tb.SQLTimestamp
	}
	return tb.SQLVarChar
}

// cellValue converts a scanned driver value into the value kinds a cell
// holds.
func cellValue(t tb.SQLType, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case int64:
		if t == tb.SQLBool {
			return x != 0
		}
		return x
	case float64:
		return x
	case string:
		if t == tb.SQLBlob || t == tb.SQLBinary {
			return []byte(x)
		}
		return x
	case []byte:
		switch t {
		case tb.SQLBlob, tb.SQLBinary:
			return append([]byte{}, x...)
		case tb.SQLBit, tb.SQLBits2:
			return bitString(x)
		}
		return string(x)
	case time.Time:
		return x.Format(tb.TimeLayout)
	}
	return fmt.Sprint(v)
}

// bitString returns bit columns as '0'/'1' text. Drivers send either that
// text or the packed bits.
func bitString(b []byte) string {
	if strings.Trim(string(b), "01") == "" {
		return string(b)
	}
	var sb strings.Builder
	for _, c := range b {
		fmt.Fprintf(&sb, "%08b", c)
	}
	return sb.String()
}

// execute runs query and buffers what it returns.
func execute(ext sqlx.Ext, qt tb.QueryType, query string, args []any) (*tb.Results, error) {
	if !qt.IsSelect() {
		res, err := ext.Exec(query, args...)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = 0
		}
		return &tb.Results{QueryType: qt, RecordsTouched: int(n)}, nil
	}

	rows, err := ext.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	res := &tb.Results{QueryType: qt}
	for _, ct := range types {
		nullable, ok := ct.Nullable()
		res.Columns = append(res.Columns, tb.ResultColumn{
			Name:    ct.Name(),
			Type:    sqlType(ext.DriverName(), ct.DatabaseTypeName()),
			NotNull: ok && !nullable,
		})
	}

	raw := [][]any{}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		raw = append(raw, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range res.Columns {
		if res.Columns[i].Type != 0 {
			continue
		}
		res.Columns[i].Type = tb.SQLVarChar
		for _, vals := range raw {
			if vals[i] != nil {
				res.Columns[i].Type = inferType(vals[i])
				break
			}
		}
	}

	for _, vals := range raw {
		row := make([]tb.Cell, len(vals))
		for i, v := range vals {
			t := res.Columns[i].Type
			row[i] = tb.Cell{Type: t, Value: cellValue(t, v)}
		}
		res.Rows = append(res.Rows, row)
	}
	res.RecordsTouched = len(res.Rows)
	return res, nil
}

// errorRecord keeps the server error code and SQLSTATE of driver errors.
func errorRecord(err error) tb.ErrorRecord {
	rec := tb.ErrorRecord{Code: -1, Message: err.Error(), SQLCode: "HY000"}

	var pqErr *pq.Error
	var myErr *mysql.MySQLError
	var liteErr *sqlite.Error
	switch {
	case errors.As(err, &pqErr):
		rec.Message, rec.SQLCode = pqErr.Message, string(pqErr.Code)
	case errors.As(err, &myErr):
		rec.Code, rec.Message = int(myErr.Number), myErr.Message
		if myErr.SQLState != [5]byte{} {
			rec.SQLCode = string(myErr.SQLState[:])
		}
	case errors.As(err, &liteErr):
		rec.Code = liteErr.Code()
	}
	return rec
}
