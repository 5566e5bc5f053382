package loopback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomyedwab/fbdriver/internal/datetime"
	"github.com/tomyedwab/fbdriver/native"
)

const textTimestampFormat = "2006-01-02 15:04:05.0000"

// Layouts accepted when text is converted to a date or time.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"15:04:05.999999999",
	"15:04",
}

func isNullFlag(buf []byte, f native.Field) bool {
	return int16(binary.LittleEndian.Uint16(buf[f.NullOffset:])) == -1
}

// readMessage decodes an input message into SQLite arguments.
func (a *attachment) readMessage(meta native.MessageMetadata, buf []byte) ([]any, error) {
	if meta == nil {
		return nil, nil
	}
	fields := meta.Fields()
	if len(buf) < meta.MessageLength() {
		return nil, native.Errorf(native.CodeDSQLError, "message buffer of %d bytes, %d expected", len(buf), meta.MessageLength())
	}

	args := make([]any, len(fields))
	for i, f := range fields {
		if isNullFlag(buf, f) {
			continue
		}
		v, err := a.readField(f, buf[f.Offset:])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (a *attachment) readField(f native.Field, data []byte) (any, error) {
	switch f.Type {
	case native.SQLVarying:
		n := int(binary.LittleEndian.Uint16(data))
		return string(data[2 : 2+n]), nil
	case native.SQLText:
		return strings.TrimRight(string(data[:f.Length]), " "), nil
	case native.SQLShort:
		return scaled(int64(int16(binary.LittleEndian.Uint16(data))), f.Scale), nil
	case native.SQLLong:
		return scaled(int64(int32(binary.LittleEndian.Uint32(data))), f.Scale), nil
	case native.SQLInt64:
		return scaled(int64(binary.LittleEndian.Uint64(data)), f.Scale), nil
	case native.SQLFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), nil
	case native.SQLDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case native.SQLTypeDate:
		return datetime.ToTime(int32(binary.LittleEndian.Uint32(data)), 0, time.UTC).Format("2006-01-02"), nil
	case native.SQLTypeTime:
		return datetime.TimeOfDay(binary.LittleEndian.Uint32(data), time.UTC).Format("15:04:05.0000"), nil
	case native.SQLTimestamp:
		date := int32(binary.LittleEndian.Uint32(data))
		ticks := binary.LittleEndian.Uint32(data[4:])
		return datetime.ToTime(date, ticks, time.UTC).Format(textTimestampFormat), nil
	case native.SQLBoolean:
		return data[0] != 0, nil
	case native.SQLBlob:
		var id native.BlobID
		copy(id[:], data)
		return a.loadBlob(id)
	}
	return nil, native.Errorf(native.CodeDSQLError, "Data type unknown: %s", f.Type)
}

func scaled(v int64, scale int) any {
	if scale == 0 {
		return v
	}
	return float64(v) * math.Pow10(scale)
}

// writeMessage encodes a SQLite row into an output message.
func (a *attachment) writeMessage(meta native.MessageMetadata, buf []byte, values []any) error {
	fields := meta.Fields()
	if len(values) != len(fields) {
		return native.Errorf(native.CodeDSQLError, "row has %d columns, message has %d", len(values), len(fields))
	}
	if len(buf) < meta.MessageLength() {
		return native.Errorf(native.CodeDSQLError, "message buffer of %d bytes, %d expected", len(buf), meta.MessageLength())
	}

	for i, f := range fields {
		if values[i] == nil || f.Type == native.SQLNull {
			binary.LittleEndian.PutUint16(buf[f.NullOffset:], 0xFFFF)
			continue
		}
		if err := a.writeField(f, buf[f.Offset:], values[i]); err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(buf[f.NullOffset:], 0)
	}
	return nil
}

// writeNulls marks every field of an output message as null.
func writeNulls(meta native.MessageMetadata, buf []byte) {
	for _, f := range meta.Fields() {
		binary.LittleEndian.PutUint16(buf[f.NullOffset:], 0xFFFF)
	}
}

func (a *attachment) writeField(f native.Field, data []byte, v any) error {
	switch f.Type {
	case native.SQLVarying:
		text := toText(v)
		if len(text) > f.Length {
			return errTruncation(len(text), f.Length)
		}
		binary.LittleEndian.PutUint16(data, uint16(len(text)))
		copy(data[2:], text)
		return nil

	case native.SQLText:
		text := toText(v)
		if len(text) > f.Length {
			return errTruncation(len(text), f.Length)
		}
		copy(data, text)
		copy(data[len(text):f.Length], bytes.Repeat([]byte{' '}, f.Length-len(text)))
		return nil

	case native.SQLShort, native.SQLLong, native.SQLInt64:
		x, err := toFloat(v)
		if err != nil {
			return err
		}
		n := int64(math.Round(x * math.Pow10(-f.Scale)))
		switch f.Type {
		case native.SQLShort:
			binary.LittleEndian.PutUint16(data, uint16(int16(n)))
		case native.SQLLong:
			binary.LittleEndian.PutUint32(data, uint32(int32(n)))
		default:
			binary.LittleEndian.PutUint64(data, uint64(n))
		}
		return nil

	case native.SQLFloat:
		x, err := toFloat(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(data, math.Float32bits(float32(x)))
		return nil

	case native.SQLDouble:
		x, err := toFloat(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(data, math.Float64bits(x))
		return nil

	case native.SQLTypeDate, native.SQLTypeTime, native.SQLTimestamp:
		t, err := toTime(v)
		if err != nil {
			return err
		}
		date, ticks := datetime.FromTime(t)
		switch f.Type {
		case native.SQLTypeDate:
			binary.LittleEndian.PutUint32(data, uint32(date))
		case native.SQLTypeTime:
			binary.LittleEndian.PutUint32(data, ticks)
		default:
			binary.LittleEndian.PutUint32(data, uint32(date))
			binary.LittleEndian.PutUint32(data[4:], ticks)
		}
		return nil

	case native.SQLBoolean:
		b, err := toBool(v)
		if err != nil {
			return err
		}
		data[0] = 0
		if b {
			data[0] = 1
		}
		return nil

	case native.SQLBlob:
		var content []byte
		switch x := v.(type) {
		case []byte:
			content = append([]byte(nil), x...)
		default:
			content = []byte(toText(v))
		}
		id := a.storeBlob(content)
		copy(data, id[:])
		return nil
	}
	return native.Errorf(native.CodeDSQLError, "Data type unknown: %s", f.Type)
}

func errTruncation(length, limit int) error {
	return native.Errorf(native.CodeStringTruncation,
		"arithmetic exception, numeric overflow, or string truncation: string right truncation (expected length %d, actual %d)", limit, length)
}

func errConversion(v any) error {
	return native.Errorf(native.CodeConvError, "conversion error from string %q", toText(v))
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return x.Format(textTimestampFormat)
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(toText(x)), 64)
		if err != nil {
			return 0, errConversion(v)
		}
		return f, nil
	}
	return 0, errConversion(v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string, []byte:
		switch strings.ToUpper(strings.TrimSpace(toText(x))) {
		case "TRUE", "T", "1":
			return true, nil
		case "FALSE", "F", "0":
			return false, nil
		}
	}
	return false, errConversion(v)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case string, []byte:
		text := strings.TrimSpace(toText(x))
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, errConversion(v)
}
