package loopback

import (
	"sync"

	"github.com/tomyedwab/fbdriver/native"
)

type metadata struct {
	fields []native.Field
	length int

	mu       sync.Mutex
	released bool
}

// newMetadata lays out fields in message order: each value aligned for its
// type, followed by a 2-byte null flag.
func newMetadata(fields []native.Field) *metadata {
	m := &metadata{fields: make([]native.Field, len(fields))}
	copy(m.fields, fields)

	offset := 0
	for i := range m.fields {
		size, align := storage(m.fields[i])
		offset = alignTo(offset, align)
		m.fields[i].Offset = offset
		offset += size
		offset = alignTo(offset, 2)
		m.fields[i].NullOffset = offset
		offset += 2
	}
	m.length = offset
	return m
}

func alignTo(n, align int) int {
	return (n + align - 1) / align * align
}

// storage returns the byte size and alignment of a field's value.
func storage(f native.Field) (size, align int) {
	switch f.Type {
	case native.SQLVarying:
		return f.Length + 2, 2
	case native.SQLText:
		return f.Length, 1
	case native.SQLShort:
		return 2, 2
	case native.SQLLong, native.SQLFloat, native.SQLTypeDate, native.SQLTypeTime:
		return 4, 4
	case native.SQLInt64, native.SQLDouble, native.SQLDFloat, native.SQLDec16:
		return 8, 8
	case native.SQLTimestamp, native.SQLBlob, native.SQLQuad, native.SQLArray, native.SQLTimeTZ:
		return 8, 4
	case native.SQLTimestampTZ:
		return 12, 4
	case native.SQLInt128, native.SQLDec34:
		return 16, 8
	case native.SQLBoolean:
		return 1, 1
	}
	return 0, 1
}

func (m *metadata) Fields() []native.Field {
	fields := make([]native.Field, len(m.fields))
	copy(fields, m.fields)
	return fields
}

func (m *metadata) MessageLength() int { return m.length }

func (m *metadata) Builder() (native.MetadataBuilder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return nil, native.Errorf(native.CodeBadStmtHandle, "metadata already released")
	}
	return &builder{fields: m.Fields()}, nil
}

func (m *metadata) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
	return nil
}

type builder struct {
	fields []native.Field
}

func (b *builder) field(index int) (*native.Field, error) {
	if index < 0 || index >= len(b.fields) {
		return nil, native.Errorf(native.CodeDSQLError, "metadata index %d out of range", index)
	}
	return &b.fields[index], nil
}

func (b *builder) SetType(index int, t native.SQLType) error {
	f, err := b.field(index)
	if err != nil {
		return err
	}
	f.Type = t
	return nil
}

func (b *builder) SetLength(index int, length int) error {
	f, err := b.field(index)
	if err != nil {
		return err
	}
	f.Length = length
	return nil
}

func (b *builder) SetScale(index int, scale int) error {
	f, err := b.field(index)
	if err != nil {
		return err
	}
	f.Scale = scale
	return nil
}

func (b *builder) Metadata() (native.MessageMetadata, error) {
	return newMetadata(b.fields), nil
}

func (b *builder) Release() error { return nil }
