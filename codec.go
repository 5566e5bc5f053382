package fbdriver

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/tomyedwab/fbdriver/internal/datetime"
	"github.com/tomyedwab/fbdriver/native"
)

const (
	nullFlagSize = 2
	textFormat   = "2006-01-02 15:04:05.0000"
)

// rowDecoder turns a filled message buffer into a row.
type rowDecoder func(buf []byte) (Row, error)

// rowEncoder fills a message buffer from parameter values. Blob content
// passed as raw bytes is written to new blobs under tx.
type rowEncoder func(ctx context.Context, tx *Transaction, buf []byte, values []any) error

func isNull(buf []byte, d Descriptor) bool {
	return int16(binary.LittleEndian.Uint16(buf[d.NullOffset:])) == -1
}

func newRowDecoder(att *Attachment, descs []Descriptor) rowDecoder {
	return func(buf []byte) (Row, error) {
		row := make(Row, len(descs))
		for i, d := range descs {
			if isNull(buf, d) {
				row[i] = Null{}
				continue
			}

			v, err := decodeValue(att, d, buf)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		return row, nil
	}
}

func decodeValue(att *Attachment, d Descriptor, buf []byte) (Value, error) {
	data := buf[d.Offset:]

	switch d.Type {
	case native.SQLVarying:
		n := int(binary.LittleEndian.Uint16(data))
		return Text(data[2 : 2+n]), nil

	case native.SQLDouble:
		return Double(math.Float64frombits(binary.LittleEndian.Uint64(data))), nil

	case native.SQLTypeDate:
		date := int32(binary.LittleEndian.Uint32(data))
		return DateTime{datetime.ToTime(date, 0, att.loc)}, nil

	case native.SQLTypeTime:
		return DateTime{datetime.TimeOfDay(binary.LittleEndian.Uint32(data), att.loc)}, nil

	case native.SQLTimestamp:
		date := int32(binary.LittleEndian.Uint32(data))
		ticks := binary.LittleEndian.Uint32(data[4:])
		return DateTime{datetime.ToTime(date, ticks, att.loc)}, nil

	case native.SQLBoolean:
		return Bool(data[0] != 0), nil

	case native.SQLBlob:
		blob := &Blob{attachment: att}
		copy(blob.id[:], data[:len(blob.id)])
		return blob, nil

	case native.SQLNull:
		return Null{}, nil
	}

	return nil, NewError(ErrorTypeUnsupportedType, fmt.Sprintf("unsupported column type %s (%d)", d.Type, int(d.Type)))
}

// columnWrite is the validated form of one parameter.
type columnWrite struct {
	null bool
	data []byte
	// blob holds raw content that must be written to a new blob before the
	// blob id can be stored in data.
	blob []byte
	// hasBlob distinguishes an empty raw blob from no blob at all.
	hasBlob bool
}

func newRowEncoder(att *Attachment, descs []Descriptor) rowEncoder {
	return func(ctx context.Context, tx *Transaction, buf []byte, values []any) error {
		if len(values) != len(descs) {
			return NewError(ErrorTypeParameterCountMismatch,
				fmt.Sprintf("statement has %d parameters, %d values given", len(descs), len(values)))
		}

		// Validate everything before touching buf.
		writes := make([]columnWrite, len(descs))
		for i, d := range descs {
			v, err := ValueOf(values[i])
			if err != nil {
				return err
			}
			w, err := encodeValue(att, d, v)
			if err != nil {
				return err
			}
			writes[i] = w
		}

		for i := range writes {
			if !writes[i].hasBlob {
				continue
			}
			id, err := att.writeNewBlob(ctx, tx, writes[i].blob)
			if err != nil {
				return err
			}
			writes[i].data = id[:]
		}

		for i, d := range descs {
			w := writes[i]
			if w.null {
				binary.LittleEndian.PutUint16(buf[d.NullOffset:], 0xFFFF)
				continue
			}
			binary.LittleEndian.PutUint16(buf[d.NullOffset:], 0)
			copy(buf[d.Offset:], w.data)
		}
		return nil
	}
}

func encodeValue(att *Attachment, d Descriptor, v Value) (columnWrite, error) {
	if _, ok := v.(Null); ok {
		return columnWrite{null: true}, nil
	}

	switch d.Type {
	case native.SQLVarying:
		var text []byte
		switch x := v.(type) {
		case Text:
			text = []byte(x)
		case BlobBytes:
			text = x
		case Double:
			text = []byte(strconv.FormatFloat(float64(x), 'g', -1, 64))
		case Bool:
			if x {
				text = []byte("TRUE")
			} else {
				text = []byte("FALSE")
			}
		case DateTime:
			text = []byte(x.Format(textFormat))
		default:
			return columnWrite{}, errCannotEncode(v, d)
		}
		if len(text) > d.Length {
			return columnWrite{}, NewError(ErrorTypeValueTooLong,
				fmt.Sprintf("value of %d bytes exceeds column length %d", len(text), d.Length))
		}
		data := make([]byte, 2+len(text))
		binary.LittleEndian.PutUint16(data, uint16(len(text)))
		copy(data[2:], text)
		return columnWrite{data: data}, nil

	case native.SQLDouble:
		x, ok := v.(Double)
		if !ok {
			return columnWrite{}, errCannotEncode(v, d)
		}
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, math.Float64bits(float64(x)))
		return columnWrite{data: data}, nil

	case native.SQLTypeDate, native.SQLTypeTime, native.SQLTimestamp:
		x, ok := v.(DateTime)
		if !ok {
			return columnWrite{}, errCannotEncode(v, d)
		}
		date, ticks := datetime.FromTime(x.Time)
		switch d.Type {
		case native.SQLTypeDate:
			data := make([]byte, 4)
			binary.LittleEndian.PutUint32(data, uint32(date))
			return columnWrite{data: data}, nil
		case native.SQLTypeTime:
			data := make([]byte, 4)
			binary.LittleEndian.PutUint32(data, ticks)
			return columnWrite{data: data}, nil
		}
		data := make([]byte, 8)
		binary.LittleEndian.PutUint32(data, uint32(date))
		binary.LittleEndian.PutUint32(data[4:], ticks)
		return columnWrite{data: data}, nil

	case native.SQLBoolean:
		x, ok := v.(Bool)
		if !ok {
			return columnWrite{}, errCannotEncode(v, d)
		}
		if x {
			return columnWrite{data: []byte{1}}, nil
		}
		return columnWrite{data: []byte{0}}, nil

	case native.SQLBlob:
		var blob *Blob
		switch x := v.(type) {
		case *Blob:
			blob = x
		case *BlobStream:
			blob = x.blob
		case BlobBytes:
			return columnWrite{blob: x, hasBlob: true}, nil
		case Text:
			return columnWrite{blob: []byte(x), hasBlob: true}, nil
		default:
			return columnWrite{}, errCannotEncode(v, d)
		}
		if blob.attachment != att {
			return columnWrite{}, NewError(ErrorTypeCrossSessionBlob, "blob belongs to a different attachment")
		}
		data := make([]byte, len(blob.id))
		copy(data, blob.id[:])
		return columnWrite{data: data}, nil

	case native.SQLNull:
		return columnWrite{}, nil
	}

	return columnWrite{}, NewError(ErrorTypeUnsupportedType, fmt.Sprintf("unsupported parameter type %s (%d)", d.Type, int(d.Type)))
}

func errCannotEncode(v Value, d Descriptor) *Error {
	return NewError(ErrorTypeUnsupportedType, fmt.Sprintf("cannot encode %T into %s column", v, d.Type))
}
