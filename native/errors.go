package native

import (
	"fmt"
	"strings"
)

// Error is the diagnostic returned by a failed native call.
type Error struct {
	// Code is the primary engine error code (GDS code).
	Code int64
	// SQLCode is the legacy SQL error code, 0 when unknown.
	SQLCode int
	// Messages holds the formatted status vector, most significant first.
	Messages []string
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("native error %d", e.Code)
	}
	return strings.Join(e.Messages, "\n-")
}

// Errorf builds an Error with a single formatted message.
func Errorf(code int64, format string, args ...interface{}) *Error {
	return &Error{Code: code, Messages: []string{fmt.Sprintf(format, args...)}}
}

// Engine error codes used by this repository.
const (
	CodeIOError          int64 = 335544344
	CodeBadDBHandle      int64 = 335544324
	CodeBadTransHandle   int64 = 335544332
	CodeBadStmtHandle    int64 = 335544485
	CodeBadSegstrHandle  int64 = 335544328
	CodeDSQLError        int64 = 335544569
	CodeReadOnlyTrans    int64 = 335544361
	CodeNoCursor         int64 = 335544577
	CodeSegstrNoWrite    int64 = 335544322
	CodeSegstrNoRead     int64 = 335544321
	CodeLockConflict     int64 = 335544345
	CodeConvError        int64 = 335544334
	CodeStringTruncation int64 = 335544914
)
