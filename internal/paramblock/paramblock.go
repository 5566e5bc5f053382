// Package paramblock builds and reads the tag/length/value parameter blocks
// handed to the native attach, start-transaction and blob calls.
//
// A block starts with a single version byte followed by items. Most items are
// encoded as tag, one length byte and the raw value. Transaction blocks also
// carry bare flag tags with no length or value.
package paramblock

import (
	"encoding/binary"
	"fmt"
)

const maxItemLength = 255

// Builder accumulates a parameter block. The first error encountered is
// retained and reported by Bytes.
type Builder struct {
	buf []byte
	err error
}

// New starts a block with the given version tag.
func New(version byte) *Builder {
	return &Builder{buf: []byte{version}}
}

// AddTag appends a bare flag tag.
func (b *Builder) AddTag(tag byte) *Builder {
	b.buf = append(b.buf, tag)
	return b
}

// AddBytes appends tag, length byte and value.
func (b *Builder) AddBytes(tag byte, value []byte) *Builder {
	if b.err != nil {
		return b
	}
	if len(value) > maxItemLength {
		b.err = fmt.Errorf("parameter block item %d is %d bytes long, maximum is %d", tag, len(value), maxItemLength)
		return b
	}
	b.buf = append(b.buf, tag, byte(len(value)))
	b.buf = append(b.buf, value...)
	return b
}

// AddString appends a string item.
func (b *Builder) AddString(tag byte, value string) *Builder {
	return b.AddBytes(tag, []byte(value))
}

// AddInt32 appends a 4-byte little-endian integer item.
func (b *Builder) AddInt32(tag byte, value int32) *Builder {
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], uint32(value))
	return b.AddBytes(tag, v[:])
}

// Bytes returns the encoded block.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, nil
}

// Item is one decoded parameter block entry. Flag tags have a nil Value.
type Item struct {
	Tag   byte
	Value []byte
}

// Int32 interprets the item value as a little-endian integer of up to 4 bytes.
func (i Item) Int32() int32 {
	var v uint32
	for n := len(i.Value) - 1; n >= 0; n-- {
		v = v<<8 | uint32(i.Value[n])
	}
	return int32(v)
}

// Block is a decoded parameter block.
type Block struct {
	Version byte
	Items   []Item
}

// Has reports whether the block contains tag.
func (b Block) Has(tag byte) bool {
	_, ok := b.Get(tag)
	return ok
}

// Get returns the first item with the given tag.
func (b Block) Get(tag byte) (Item, bool) {
	for _, item := range b.Items {
		if item.Tag == tag {
			return item, true
		}
	}
	return Item{}, false
}

// ParseDPB decodes a connection block. Every item carries a length byte.
func ParseDPB(buf []byte) (Block, error) {
	return parse(buf, nil)
}

// ParseBPB decodes a blob block. Every item carries a length byte.
func ParseBPB(buf []byte) (Block, error) {
	return parse(buf, nil)
}

// ParseTPB decodes a transaction block, where most tags are bare flags.
func ParseTPB(buf []byte) (Block, error) {
	return parse(buf, tpbFlags)
}

func parse(buf []byte, flags map[byte]bool) (Block, error) {
	if len(buf) == 0 {
		return Block{}, nil
	}

	block := Block{Version: buf[0]}
	for pos := 1; pos < len(buf); {
		tag := buf[pos]
		pos++
		if flags[tag] {
			block.Items = append(block.Items, Item{Tag: tag})
			continue
		}
		if pos >= len(buf) {
			return Block{}, fmt.Errorf("parameter block truncated after tag %d", tag)
		}
		n := int(buf[pos])
		pos++
		if pos+n > len(buf) {
			return Block{}, fmt.Errorf("parameter block item %d needs %d bytes, %d left", tag, n, len(buf)-pos)
		}
		block.Items = append(block.Items, Item{Tag: tag, Value: buf[pos : pos+n]})
		pos += n
	}
	return block, nil
}
