package transbase

import (
	"encoding/binary"
	"fmt"
)

// State is the status code returned by every engine call.
type State int16

const (
	// StateSuccess is returned by a call that completed.
	StateSuccess State = 0
	// StateError is returned by a failing call. Details are available
	// through the error handle until the next call.
	StateError State = -1
	// StateNoDataFound is returned by Fetch when the cursor moved past
	// the last row.
	StateNoDataFound State = 100
	// StateDataTruncated is returned by GetData when the destination was
	// too small. The next GetData on the same column continues.
	StateDataTruncated State = 1
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return "SUCCESS"
	case StateError:
		return "ERROR"
	case StateNoDataFound:
		return "NO_DATA_FOUND"
	case StateDataTruncated:
		return "DATA_TRUNCATED"
	default:
		return fmt.Sprintf("STATE(%d)", int16(s))
	}
}

// Opaque engine handles. The zero value of each means "not allocated".
type (
	EnvHandle       uintptr
	ErrHandle       uintptr
	ConnHandle      uintptr
	TxHandle        uintptr
	StmtHandle      uintptr
	ResultSetHandle uintptr
)

// CType is the wire type of a parameter slot or a decode destination.
type CType int16

const (
	CInt1 CType = iota + 1
	CInt4
	CInt8
	CFloat
	CDouble
	CChar
	CByte
)

// Size is the fixed holder size of numeric wire types, 0 for the
// variable length ones.
func (c CType) Size() int {
	switch c {
	case CInt1:
		return 1
	case CInt4, CFloat:
		return 4
	case CInt8, CDouble:
		return 8
	default:
		return 0
	}
}

func (c CType) String() string {
	switch c {
	case CInt1:
		return "TCI_C_INT1"
	case CInt4:
		return "TCI_C_INT4"
	case CInt8:
		return "TCI_C_INT8"
	case CFloat:
		return "TCI_C_FLOAT"
	case CDouble:
		return "TCI_C_DOUBLE"
	case CChar:
		return "TCI_C_CHAR"
	case CByte:
		return "TCI_C_BYTE"
	default:
		return fmt.Sprintf("TCI_C(%d)", int16(c))
	}
}

// ByteOrder is the encoding of numeric holders exchanged with an engine.
var ByteOrder = binary.LittleEndian

// SQLType is the column type code reported by the server.
type SQLType int16

const (
	SQLBool      SQLType = 1
	SQLTinyInt   SQLType = 2
	SQLSmallInt  SQLType = 3
	SQLInteger   SQLType = 4
	SQLBigInt    SQLType = 5
	SQLNumeric   SQLType = 6
	SQLDecimal   SQLType = 7
	SQLFloat     SQLType = 8
	SQLDouble    SQLType = 9
	SQLChar      SQLType = 10
	SQLVarChar   SQLType = 11
	SQLString    SQLType = 12
	SQLBinary    SQLType = 13
	SQLBit       SQLType = 14
	SQLBits2     SQLType = 15
	SQLBlob      SQLType = 16
	SQLClob      SQLType = 17
	SQLDate      SQLType = 18
	SQLTime      SQLType = 19
	SQLTimestamp SQLType = 20
	SQLDatetime  SQLType = 21
	SQLTimespan  SQLType = 22
	SQLInterval  SQLType = 23
)

var sqlTypeNames = map[SQLType]string{
	SQLBool:      "BOOL",
	SQLTinyInt:   "TINYINT",
	SQLSmallInt:  "SMALLINT",
	SQLInteger:   "INTEGER",
	SQLBigInt:    "BIGINT",
	SQLNumeric:   "NUMERIC",
	SQLDecimal:   "DECIMAL",
	SQLFloat:     "FLOAT",
	SQLDouble:    "DOUBLE",
	SQLChar:      "CHAR",
	SQLVarChar:   "VARCHAR",
	SQLString:    "STRING",
	SQLBinary:    "BINCHAR",
	SQLBit:       "BITS",
	SQLBits2:     "BITS2",
	SQLBlob:      "BLOB",
	SQLClob:      "CLOB",
	SQLDate:      "DATE",
	SQLTime:      "TIME",
	SQLTimestamp: "TIMESTAMP",
	SQLDatetime:  "DATETIME",
	SQLTimespan:  "TIMESPAN",
	SQLInterval:  "INTERVAL",
}

// String returns the type name as used in DDL, e.g. "BLOB".
func (t SQLType) String() string {
	if n, ok := sqlTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("SQLTYPE(%d)", int16(t))
}

// Attribute is a result set attribute key.
type Attribute int16

const (
	AttrColumnCount    Attribute = 1
	AttrColumnName     Attribute = 2
	AttrColumnType     Attribute = 3
	AttrRecordsTouched Attribute = 4
	AttrQueryType      Attribute = 5
)

// MaxIdentSize bounds text attributes such as column names.
const MaxIdentSize = 512

// ScrollMode selects the cursor movement of Fetch.
type ScrollMode int16

const (
	ScrollNext     ScrollMode = 1
	ScrollPrior    ScrollMode = 2
	ScrollFirst    ScrollMode = 3
	ScrollLast     ScrollMode = 4
	ScrollAbsolute ScrollMode = 5
	ScrollRelative ScrollMode = 6
)

// QueryType is the raw query type attribute of the last statement.
// Codes are grouped in classes, see IsSelect, IsUpdate and IsSchema.
type QueryType int

const (
	QuerySelect       QueryType = 1
	QuerySelectUnion  QueryType = 2
	QueryCall         QueryType = 3
	QueryInsert       QueryType = 20
	QueryUpdate       QueryType = 21
	QueryDelete       QueryType = 22
	QueryMerge        QueryType = 23
	QueryCreateTable  QueryType = 40
	QueryCreateIndex  QueryType = 41
	QueryCreateView   QueryType = 42
	QueryCreateObject QueryType = 43
	QueryAlter        QueryType = 44
	QueryDrop         QueryType = 45
	QueryGrant        QueryType = 60
	QueryOther        QueryType = 99
)

func (q QueryType) IsSelect() bool { return q >= QuerySelect && q < QueryInsert }
func (q QueryType) IsUpdate() bool { return q >= QueryInsert && q < QueryCreateTable }
func (q QueryType) IsSchema() bool { return q >= QueryCreateTable && q < QueryGrant }

// String classifies the query type into "SELECT", "UPDATE" or "SCHEMA",
// or returns the raw code for anything else.
func (q QueryType) String() string {
	switch {
	case q.IsSelect():
		return "SELECT"
	case q.IsUpdate():
		return "UPDATE"
	case q.IsSchema():
		return "SCHEMA"
	default:
		return fmt.Sprintf("%d", int(q))
	}
}

// ErrorRecord is the detailed error an engine keeps for the last failing
// call. It is only valid until the next call on the same error handle.
type ErrorRecord struct {
	Code    int
	Message string
	SQLCode string
}

// Engine is the call-level interface the session drives. Every call
// blocks until the engine answered. Implementations do not need to be
// safe for concurrent use.
type Engine interface {
	AllocEnvironment() (EnvHandle, State)
	FreeEnvironment(env EnvHandle) State
	// EnvironmentError describes the last failure of an environment level
	// call, used before an error handle exists.
	EnvironmentError(env EnvHandle) string

	AllocError(env EnvHandle) (ErrHandle, State)
	FreeError(errh ErrHandle) State
	GetError(errh ErrHandle) ErrorRecord

	AllocConnection(env EnvHandle, errh ErrHandle) (ConnHandle, State)
	FreeConnection(conn ConnHandle) State
	Connect(conn ConnHandle, url string) State
	Login(conn ConnHandle, user, password string) State
	ServerVersion(conn ConnHandle) (string, State)
	ClientVersion() string

	AllocTransaction(env EnvHandle, errh ErrHandle) (TxHandle, State)
	FreeTransaction(tx TxHandle) State
	BeginTransaction(tx TxHandle, conn ConnHandle) State
	Commit(tx TxHandle) State
	Rollback(tx TxHandle) State

	AllocStatement(conn ConnHandle, errh ErrHandle) (StmtHandle, State)
	FreeStatement(stmt StmtHandle) State
	AllocResultSet(stmt StmtHandle, errh ErrHandle) (ResultSetHandle, State)
	FreeResultSet(rs ResultSetHandle) State

	Prepare(stmt StmtHandle, sql string) State
	Execute(rs ResultSetHandle) State
	ExecuteDirect(rs ResultSetHandle, sql string) State

	// SetData binds data of type ct to the 1-based parameter position.
	// A nil data slice with isNull set binds SQL NULL.
	SetData(rs ResultSetHandle, position int, data []byte, ct CType, isNull bool) State
	SetDataByName(rs ResultSetHandle, name string, data []byte, ct CType, isNull bool) State

	Fetch(rs ResultSetHandle, mode ScrollMode, offset int) State

	GetResultSetAttribute(rs ResultSetHandle, attr Attribute, col int) (int, State)
	GetResultSetStringAttribute(rs ResultSetHandle, attr Attribute, col int, maxLen int) (string, State)

	// GetDataSize probes the byte size of the column in the representation
	// of ct. For CChar on bit and binary columns the size includes a two
	// byte textual prefix which GetData does not write.
	GetDataSize(rs ResultSetHandle, col int, ct CType) (size int, isNull bool, st State)
	GetDataCharLength(rs ResultSetHandle, col int) (length int, isNull bool, st State)
	// GetData decodes the column into buf and reports the count of bytes
	// written.
	GetData(rs ResultSetHandle, col int, buf []byte, ct CType) (n int, isNull bool, st State)
}
