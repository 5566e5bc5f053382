package native

import "fmt"

// SQLType is a native column type code.
type SQLType int

const (
	SQLVarying     SQLType = 448
	SQLText        SQLType = 452
	SQLDouble      SQLType = 480
	SQLFloat       SQLType = 482
	SQLLong        SQLType = 496
	SQLShort       SQLType = 500
	SQLTimestamp   SQLType = 510
	SQLBlob        SQLType = 520
	SQLDFloat      SQLType = 530
	SQLArray       SQLType = 540
	SQLQuad        SQLType = 550
	SQLTypeTime    SQLType = 560
	SQLTypeDate    SQLType = 570
	SQLInt64       SQLType = 580
	SQLInt128      SQLType = 32752
	SQLTimestampTZ SQLType = 32754
	SQLTimeTZ      SQLType = 32756
	SQLDec16       SQLType = 32760
	SQLDec34       SQLType = 32762
	SQLBoolean     SQLType = 32764
	SQLNull        SQLType = 32766
)

func (t SQLType) String() string {
	switch t {
	case SQLVarying:
		return "VARYING"
	case SQLText:
		return "TEXT"
	case SQLDouble:
		return "DOUBLE"
	case SQLFloat:
		return "FLOAT"
	case SQLLong:
		return "LONG"
	case SQLShort:
		return "SHORT"
	case SQLTimestamp:
		return "TIMESTAMP"
	case SQLBlob:
		return "BLOB"
	case SQLDFloat:
		return "D_FLOAT"
	case SQLArray:
		return "ARRAY"
	case SQLQuad:
		return "QUAD"
	case SQLTypeTime:
		return "TIME"
	case SQLTypeDate:
		return "DATE"
	case SQLInt64:
		return "INT64"
	case SQLInt128:
		return "INT128"
	case SQLTimestampTZ:
		return "TIMESTAMP_TZ"
	case SQLTimeTZ:
		return "TIME_TZ"
	case SQLDec16:
		return "DEC16"
	case SQLDec34:
		return "DEC34"
	case SQLBoolean:
		return "BOOLEAN"
	case SQLNull:
		return "NULL"
	}
	return fmt.Sprintf("SQLType(%d)", int(t))
}

// Result is the completion code of fetch and segment calls.
type Result int

const (
	ResultError   Result = -1
	ResultOK      Result = 0
	ResultNoData  Result = 1
	ResultSegment Result = 2
)

// MaxSegmentSize is the largest blob segment a single PutSegment accepts.
const MaxSegmentSize = 65535

// DefaultDialect is the SQL dialect used when preparing statements.
const DefaultDialect = 3
