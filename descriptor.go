package fbdriver

import "github.com/tomyedwab/fbdriver/native"

// Descriptor is the layout of one column inside a message buffer.
type Descriptor struct {
	Name       string
	Alias      string
	Type       native.SQLType
	SubType    int
	Length     int
	Scale      int
	Offset     int
	NullOffset int
}

// ColumnName returns the alias when present, the field name otherwise.
func (d Descriptor) ColumnName() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.Name
}

func createDescriptors(meta native.MessageMetadata) []Descriptor {
	fields := meta.Fields()
	descs := make([]Descriptor, len(fields))
	for i, f := range fields {
		descs[i] = Descriptor{
			Name:       f.Name,
			Alias:      f.Alias,
			Type:       f.Type,
			SubType:    f.SubType,
			Length:     f.Length,
			Scale:      f.Scale,
			Offset:     f.Offset,
			NullOffset: f.NullOffset,
		}
	}
	return descs
}

// widenedType maps native types onto the set the row codec handles. Fixed
// text becomes variable text and exact or narrow numerics become doubles.
func widenedType(t native.SQLType) (native.SQLType, bool) {
	switch t {
	case native.SQLText:
		return native.SQLVarying, true
	case native.SQLShort, native.SQLLong, native.SQLInt64, native.SQLFloat,
		native.SQLDFloat, native.SQLInt128, native.SQLDec16, native.SQLDec34:
		return native.SQLDouble, true
	case native.SQLTimestampTZ:
		return native.SQLTimestamp, true
	case native.SQLTimeTZ:
		return native.SQLTypeTime, true
	}
	return t, false
}

// fixMetadata rebuilds meta with widened column types. The original
// metadata is released; on error the caller still owns nothing new.
func fixMetadata(meta native.MessageMetadata) (native.MessageMetadata, error) {
	defer meta.Release()

	builder, err := meta.Builder()
	if err != nil {
		return nil, errNative("metadata builder", err)
	}
	defer builder.Release()

	for i, f := range meta.Fields() {
		t, changed := widenedType(f.Type)
		if !changed {
			continue
		}
		if err := builder.SetType(i, t); err != nil {
			return nil, errNative("metadata builder set type", err)
		}
		switch t {
		case native.SQLDouble:
			if err := builder.SetLength(i, 8); err != nil {
				return nil, errNative("metadata builder set length", err)
			}
			if err := builder.SetScale(i, 0); err != nil {
				return nil, errNative("metadata builder set scale", err)
			}
		case native.SQLTimestamp:
			if err := builder.SetLength(i, 8); err != nil {
				return nil, errNative("metadata builder set length", err)
			}
		case native.SQLTypeTime:
			if err := builder.SetLength(i, 4); err != nil {
				return nil, errNative("metadata builder set length", err)
			}
		}
	}

	fixed, err := builder.Metadata()
	if err != nil {
		return nil, errNative("metadata builder get metadata", err)
	}
	return fixed, nil
}
