package chunk

import (
	"fmt"
	"strconv"
)

// DictType tags the value stored in a dict pair.
type DictType uint8

// Dict value types. The numeric values are part of the wire format.
const (
	DictBool          DictType = 0
	DictInt           DictType = 1
	DictReal          DictType = 2
	DictAsciiString   DictType = 3
	DictUnicodeString DictType = 4
)

// String returns the type name.
func (t DictType) String() string {
	switch t {
	case DictBool:
		return "Bool"
	case DictInt:
		return "Int"
	case DictReal:
		return "Real"
	case DictAsciiString:
		return "AsciiString"
	case DictUnicodeString:
		return "UnicodeString"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// DictPair is a single typed key/value entry. Only the field matching
// Type is meaningful.
type DictPair struct {
	Key    NameKey
	Type   DictType
	Bool   bool
	Int    int32
	Real   float32
	String string
}

// Dict is an ordered set of typed key/value pairs.
type Dict struct {
	pairs []DictPair
}

// NewDict returns an empty dict.
func NewDict() *Dict {
	return &Dict{}
}

// Len returns the number of pairs.
func (d *Dict) Len() int {
	return len(d.pairs)
}

// Pair returns the i-th pair in insertion order.
func (d *Dict) Pair(i int) DictPair {
	return d.pairs[i]
}

// Pairs returns a copy of all pairs in insertion order.
func (d *Dict) Pairs() []DictPair {
	out := make([]DictPair, len(d.pairs))
	copy(out, d.pairs)
	return out
}

// Get returns the pair stored under key.
func (d *Dict) Get(key NameKey) (DictPair, bool) {
	for _, p := range d.pairs {
		if p.Key == key {
			return p, true
		}
	}
	return DictPair{}, false
}

// Remove deletes the pair stored under key.
func (d *Dict) Remove(key NameKey) bool {
	for i, p := range d.pairs {
		if p.Key == key {
			d.pairs = append(d.pairs[:i], d.pairs[i+1:]...)
			return true
		}
	}
	return false
}

// set replaces an existing pair with the same key or appends a new one.
func (d *Dict) set(p DictPair) {
	for i := range d.pairs {
		if d.pairs[i].Key == p.Key {
			d.pairs[i] = p
			return
		}
	}
	d.pairs = append(d.pairs, p)
}

// SetBool stores v under key, replacing any pair with the same key.
func (d *Dict) SetBool(key NameKey, v bool) {
	d.set(DictPair{Key: key, Type: DictBool, Bool: v})
}

// SetInt stores v under key.
func (d *Dict) SetInt(key NameKey, v int32) {
	d.set(DictPair{Key: key, Type: DictInt, Int: v})
}

// SetReal stores v under key.
func (d *Dict) SetReal(key NameKey, v float32) {
	d.set(DictPair{Key: key, Type: DictReal, Real: v})
}

// SetAsciiString stores the 8-bit string v under key.
func (d *Dict) SetAsciiString(key NameKey, v string) {
	d.set(DictPair{Key: key, Type: DictAsciiString, String: v})
}

// SetUnicodeString stores v under key. It is written as UTF-16LE.
func (d *Dict) SetUnicodeString(key NameKey, v string) {
	d.set(DictPair{Key: key, Type: DictUnicodeString, String: v})
}

// Bool returns the bool stored under key. ok is false if the key is absent
// or holds another type.
func (d *Dict) Bool(key NameKey) (v bool, ok bool) {
	p, found := d.Get(key)
	if !found || p.Type != DictBool {
		return false, false
	}
	return p.Bool, true
}

// Int returns the int stored under key.
func (d *Dict) Int(key NameKey) (v int32, ok bool) {
	p, found := d.Get(key)
	if !found || p.Type != DictInt {
		return 0, false
	}
	return p.Int, true
}

// Real returns the real stored under key.
func (d *Dict) Real(key NameKey) (v float32, ok bool) {
	p, found := d.Get(key)
	if !found || p.Type != DictReal {
		return 0, false
	}
	return p.Real, true
}

// StringValue returns the ascii or unicode string stored under key.
func (d *Dict) StringValue(key NameKey) (v string, ok bool) {
	p, found := d.Get(key)
	if !found || (p.Type != DictAsciiString && p.Type != DictUnicodeString) {
		return "", false
	}
	return p.String, true
}

// maxPackedID is the largest id that fits above the 8 type bits.
const maxPackedID = 1<<24 - 1

// packKey combines a table of contents id and a value type into the single
// int written in front of every dict value and name key.
func packKey(id TypeID, t DictType) (int32, error) {
	if id == 0 || id > maxPackedID {
		return 0, fmt.Errorf("%w: id %d does not fit a packed key", ErrCorruptStream, id)
	}
	return int32(id<<8 | TypeID(t)), nil
}

// unpackKey splits a packed key into its id and type tag.
func unpackKey(v int32) (TypeID, DictType) {
	u := uint32(v)
	return TypeID(u >> 8), DictType(u & 0xFF)
}

// keyResolver maps an unpacked id back to a name.
type keyResolver func(id TypeID) (string, error)

// packedKeyFor allocates the table of contents id for key's name and packs
// it with t.
func packedKeyFor(keys NameKeys, toc *TableOfContents, key NameKey, t DictType) (int32, error) {
	name, ok := keys.KeyToName(key)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownNameKey, key)
	}
	if len(name) > maxNameLen {
		return 0, fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}
	return packKey(toc.Allocate(name), t)
}

// writeNameKey encodes key as a packed ascii-string key.
func writeNameKey(s Sink, keys NameKeys, toc *TableOfContents, key NameKey) error {
	packed, err := packedKeyFor(keys, toc, key, DictAsciiString)
	if err != nil {
		return err
	}
	return s.WriteInt(packed)
}

// readNameKey decodes a packed name key written by writeNameKey.
func readNameKey(src Source, keys NameKeys, resolve keyResolver) (NameKey, error) {
	packed, err := src.ReadInt()
	if err != nil {
		return 0, err
	}
	id, t := unpackKey(packed)
	if t != DictAsciiString {
		return 0, fmt.Errorf("%w: name key tagged %s", ErrCorruptStream, t)
	}
	name, err := resolve(id)
	if err != nil {
		return 0, err
	}
	return keys.NameToKey(name), nil
}

// writeDictPairs encodes every pair as a packed key followed by its value.
// The pair count is written by the backend before calling it.
func writeDictPairs(s Sink, keys NameKeys, toc *TableOfContents, d *Dict) error {
	for _, p := range d.pairs {
		packed, err := packedKeyFor(keys, toc, p.Key, p.Type)
		if err != nil {
			return err
		}
		if err := s.WriteInt(packed); err != nil {
			return err
		}
		switch p.Type {
		case DictBool:
			var b byte
			if p.Bool {
				b = 1
			}
			err = s.WriteByte(b)
		case DictInt:
			err = s.WriteInt(p.Int)
		case DictReal:
			err = s.WriteReal(p.Real)
		case DictAsciiString:
			err = s.WriteAsciiString(p.String)
		case DictUnicodeString:
			err = s.WriteUnicodeString(p.String)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownDictType, p.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readDictPairs decodes count pairs written by writeDictPairs.
func readDictPairs(src Source, keys NameKeys, resolve keyResolver, count int) (*Dict, error) {
	d := &Dict{pairs: make([]DictPair, 0, count)}
	for i := 0; i < count; i++ {
		packed, err := src.ReadInt()
		if err != nil {
			return nil, fmt.Errorf("dict pair %d: %w", i, err)
		}
		id, t := unpackKey(packed)
		name, err := resolve(id)
		if err != nil {
			return nil, fmt.Errorf("dict pair %d: %w", i, err)
		}
		p := DictPair{Key: keys.NameToKey(name), Type: t}
		switch t {
		case DictBool:
			var b byte
			b, err = src.ReadByte()
			p.Bool = b != 0
		case DictInt:
			p.Int, err = src.ReadInt()
		case DictReal:
			p.Real, err = src.ReadReal()
		case DictAsciiString:
			p.String, err = src.ReadAsciiString()
		case DictUnicodeString:
			p.String, err = src.ReadUnicodeString()
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownDictType, t)
		}
		if err != nil {
			return nil, fmt.Errorf("dict pair %d (%s): %w", i, name, err)
		}
		d.pairs = append(d.pairs, p)
	}
	return d, nil
}

// decimalResolver resolves ids through toc and falls back to the decimal
// id when the name is missing.
func decimalResolver(toc *TableOfContents) keyResolver {
	return func(id TypeID) (string, error) {
		if name, ok := toc.Lookup(id); ok {
			return name, nil
		}
		return strconv.FormatUint(uint64(id), 10), nil
	}
}

// strictResolver resolves ids through toc and fails on unknown ids.
func strictResolver(toc *TableOfContents) keyResolver {
	return func(id TypeID) (string, error) {
		if name, ok := toc.Lookup(id); ok {
			return name, nil
		}
		return "", fmt.Errorf("%w: key id %d not in table of contents", ErrCorruptStream, id)
	}
}
