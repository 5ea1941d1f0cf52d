// Package variantdict implements the self-describing tagged key/value map
// (§4.1) KDBX uses to carry KDF parameters.
//
// Grounded on gokeepasslib/v3/header.go's readVariantDictionary /
// writeTo4VariantDictionary and original_source/src/variant_dict.rs's exact
// tag constants and error taxonomy.
package variantdict

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tag identifies the wire type of a variant dictionary value.
type Tag byte

const (
	TagUint32 Tag = 0x04
	TagUint64 Tag = 0x05
	TagBool   Tag = 0x08
	TagInt32  Tag = 0x0C
	TagInt64  Tag = 0x0D
	TagString Tag = 0x18
	TagArray  Tag = 0x42
	tagEnd    Tag = 0x00
)

// SupportedMajorVersion is the only variant-dictionary major version this
// codec accepts; anything greater is rejected as unsupported.
const SupportedMajorVersion = 1

// Value is one typed entry in a Dict. Exactly one of the typed fields is
// meaningful, selected by Tag; Unknown tags retain their raw bytes.
type Value struct {
	Tag   Tag
	U32   uint32
	U64   uint64
	Bool  bool
	I32   int32
	I64   int64
	Str   string
	Bytes []byte // used for TagArray and for any Unknown tag's raw payload
}

func Uint32(v uint32) Value   { return Value{Tag: TagUint32, U32: v} }
func Uint64(v uint64) Value   { return Value{Tag: TagUint64, U64: v} }
func Bool(v bool) Value       { return Value{Tag: TagBool, Bool: v} }
func Int32(v int32) Value     { return Value{Tag: TagInt32, I32: v} }
func Int64(v int64) Value     { return Value{Tag: TagInt64, I64: v} }
func String(v string) Value   { return Value{Tag: TagString, Str: v} }
func Array(v []byte) Value    { return Value{Tag: TagArray, Bytes: v} }
func Unknown(t Tag, b []byte) Value { return Value{Tag: t, Bytes: b} }

// Dict is an ordered string-keyed map; order is preserved for stable output
// but the format itself is order-insensitive on read.
type Dict struct {
	keys   []string
	values map[string]Value
}

// New returns an empty Dict.
func New() *Dict {
	return &Dict{values: make(map[string]Value)}
}

// Set inserts or replaces the value for key, preserving first-insertion
// order.
func (d *Dict) Set(key string, v Value) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the value for key and whether it was present.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Remove deletes key from the dictionary, returning its former value.
func (d *Dict) Remove(key string) (Value, bool) {
	v, ok := d.values[key]
	if !ok {
		return Value{}, false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Keys returns the dictionary's keys in insertion order.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// InvalidSizeError reports a value whose on-disk length doesn't match its
// tag's fixed width.
type InvalidSizeError struct {
	Tag      Tag
	Expected int
	Actual   int
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("variantdict: tag 0x%02x expected %d bytes, got %d", byte(e.Tag), e.Expected, e.Actual)
}

// UnsupportedVersionError reports a major version this codec can't parse.
type UnsupportedVersionError struct{ Major byte }

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("variantdict: unsupported major version %d", e.Major)
}

// Read parses a variant dictionary from r.
func Read(r io.Reader) (*Dict, error) {
	var versionBuf [2]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return nil, fmt.Errorf("variantdict: reading version: %w", err)
	}
	major := versionBuf[1]
	if major > SupportedMajorVersion {
		return nil, &UnsupportedVersionError{Major: major}
	}

	d := New()
	for {
		var tagBuf [1]byte
		if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
			return nil, fmt.Errorf("variantdict: reading tag: %w", err)
		}
		tag := Tag(tagBuf[0])
		if tag == tagEnd {
			return d, nil
		}

		key, err := readLengthPrefixedString(r)
		if err != nil {
			return nil, fmt.Errorf("variantdict: reading key: %w", err)
		}

		valueBytes, err := readLengthPrefixedBytes(r)
		if err != nil {
			return nil, fmt.Errorf("variantdict: reading value for %q: %w", key, err)
		}

		value, err := decodeValue(tag, valueBytes)
		if err != nil {
			return nil, err
		}
		d.Set(key, value)
	}
}

func decodeValue(tag Tag, raw []byte) (Value, error) {
	switch tag {
	case TagUint32:
		if len(raw) != 4 {
			return Value{}, &InvalidSizeError{Tag: tag, Expected: 4, Actual: len(raw)}
		}
		return Uint32(binary.LittleEndian.Uint32(raw)), nil
	case TagUint64:
		if len(raw) != 8 {
			return Value{}, &InvalidSizeError{Tag: tag, Expected: 8, Actual: len(raw)}
		}
		return Uint64(binary.LittleEndian.Uint64(raw)), nil
	case TagBool:
		if len(raw) != 1 {
			return Value{}, &InvalidSizeError{Tag: tag, Expected: 1, Actual: len(raw)}
		}
		return Bool(raw[0] != 0), nil
	case TagInt32:
		if len(raw) != 4 {
			return Value{}, &InvalidSizeError{Tag: tag, Expected: 4, Actual: len(raw)}
		}
		return Int32(int32(binary.LittleEndian.Uint32(raw))), nil
	case TagInt64:
		if len(raw) != 8 {
			return Value{}, &InvalidSizeError{Tag: tag, Expected: 8, Actual: len(raw)}
		}
		return Int64(int64(binary.LittleEndian.Uint64(raw))), nil
	case TagString:
		return String(string(raw)), nil
	case TagArray:
		return Array(append([]byte(nil), raw...)), nil
	default:
		return Unknown(tag, append([]byte(nil), raw...)), nil
	}
}

func readLengthPrefixedString(r io.Reader) (string, error) {
	b, err := readLengthPrefixedBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLengthPrefixedBytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := int32(binary.LittleEndian.Uint32(lenBuf[:]))
	if length < 0 {
		return nil, fmt.Errorf("variantdict: negative length %d", length)
	}
	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Write serializes d to w: version 0x00 0x01, records in insertion order,
// terminated by a single 0 tag.
func Write(w io.Writer, d *Dict) error {
	if _, err := w.Write([]byte{0x00, 0x01}); err != nil {
		return err
	}
	for _, key := range d.Keys() {
		v := d.values[key]
		if err := writeRecord(w, key, v); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{byte(tagEnd)})
	return err
}

func writeRecord(w io.Writer, key string, v Value) error {
	if _, err := w.Write([]byte{byte(v.Tag)}); err != nil {
		return err
	}
	if err := writeLengthPrefixed(w, []byte(key)); err != nil {
		return err
	}
	return writeLengthPrefixed(w, encodeValue(v))
}

func encodeValue(v Value) []byte {
	switch v.Tag {
	case TagUint32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, v.U32)
		return buf
	case TagUint64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v.U64)
		return buf
	case TagBool:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case TagInt32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v.I32))
		return buf
	case TagInt64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v.I64))
		return buf
	case TagString:
		return []byte(v.Str)
	case TagArray:
		return v.Bytes
	default:
		return v.Bytes
	}
}

func writeLengthPrefixed(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(data) > 0 {
		_, err := w.Write(data)
		return err
	}
	return nil
}
