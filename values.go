package fbdriver

import (
	"fmt"
	"time"
)

// Value is a row or parameter value. The set of implementations is closed:
// Null, Bool, Double, Text, DateTime, BlobBytes, *Blob and *BlobStream.
type Value interface {
	// Any returns the value as a plain Go value.
	Any() any
	isValue()
}

// Null is SQL NULL.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Double is a double precision value. All numeric columns decode to Double.
type Double float64

// Text is a character value.
type Text string

// DateTime is a date, time of day or timestamp value.
type DateTime struct {
	time.Time
}

// BlobBytes is raw blob content. As a parameter it is written to a new blob.
type BlobBytes []byte

func (Null) Any() any        { return nil }
func (v Bool) Any() any      { return bool(v) }
func (v Double) Any() any    { return float64(v) }
func (v Text) Any() any      { return string(v) }
func (v DateTime) Any() any  { return v.Time }
func (v BlobBytes) Any() any { return []byte(v) }

func (Null) isValue()      {}
func (Bool) isValue()      {}
func (Double) isValue()    {}
func (Text) isValue()      {}
func (DateTime) isValue()  {}
func (BlobBytes) isValue() {}

// Row is one decoded row, in column order.
type Row []Value

// Any returns the row as plain Go values.
func (r Row) Any() []any {
	out := make([]any, len(r))
	for i, v := range r {
		out[i] = v.Any()
	}
	return out
}

// ValueOf maps a Go value onto the Value variant. Values that already are a
// Value are returned unchanged; nil blob pointers map to Null.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case *Blob:
		if x == nil {
			return Null{}, nil
		}
		return x, nil
	case *BlobStream:
		if x == nil {
			return Null{}, nil
		}
		return x, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case float64:
		return Double(x), nil
	case float32:
		return Double(x), nil
	case int:
		return Double(x), nil
	case int8:
		return Double(x), nil
	case int16:
		return Double(x), nil
	case int32:
		return Double(x), nil
	case int64:
		return Double(x), nil
	case uint:
		return Double(x), nil
	case uint8:
		return Double(x), nil
	case uint16:
		return Double(x), nil
	case uint32:
		return Double(x), nil
	case uint64:
		return Double(x), nil
	case string:
		return Text(x), nil
	case time.Time:
		return DateTime{x}, nil
	case []byte:
		if x == nil {
			return Null{}, nil
		}
		return BlobBytes(x), nil
	}
	return nil, NewError(ErrorTypeUnsupportedType, fmt.Sprintf("unsupported parameter value type %T", v))
}
