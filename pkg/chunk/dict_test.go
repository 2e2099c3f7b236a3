package chunk

import (
	"errors"
	"testing"
)

func TestPackKey(t *testing.T) {
	packed, err := packKey(5, DictUnicodeString)
	if err != nil {
		t.Fatalf("packKey failed: %v", err)
	}
	if packed != 5<<8|4 {
		t.Errorf("expected %d, got %d", 5<<8|4, packed)
	}

	id, typ := unpackKey(packed)
	if id != 5 || typ != DictUnicodeString {
		t.Errorf("unpackKey = (%d, %s), want (5, UnicodeString)", id, typ)
	}

	// Ids above 2^23 set the sign bit of the packed int.
	id, typ = unpackKey(int32(-256 | int32(DictReal)))
	if id != 0xFFFFFF || typ != DictReal {
		t.Errorf("unpackKey of negative = (%d, %s)", id, typ)
	}

	if _, err := packKey(0, DictInt); err == nil {
		t.Error("expected error for id 0")
	}
	if _, err := packKey(maxPackedID+1, DictInt); err == nil {
		t.Error("expected error for id above 24 bits")
	}
}

func TestDict_Accessors(t *testing.T) {
	keys := NewNameKeyTable()
	x, y := keys.NameToKey("x"), keys.NameToKey("y")

	d := NewDict()
	d.SetBool(x, true)
	d.SetInt(y, 7)
	d.SetInt(y, 8)

	if d.Len() != 2 {
		t.Fatalf("expected 2 pairs, got %d", d.Len())
	}
	if v, ok := d.Int(y); !ok || v != 8 {
		t.Errorf("Int(y) = %d, %v", v, ok)
	}
	if _, ok := d.Real(y); ok {
		t.Error("expected Real(y) to report a type mismatch")
	}
	if !d.Remove(x) {
		t.Error("expected Remove(x) to succeed")
	}
	if _, ok := d.Bool(x); ok {
		t.Error("expected x removed")
	}
}

func TestDict_RoundTrip(t *testing.T) {
	writerKeys := NewNameKeyTable()
	x, y := writerKeys.NameToKey("x"), writerKeys.NameToKey("y")
	z := writerKeys.NameToKey("zeta")

	build := func(s Sink) error {
		d := NewDict()
		d.SetBool(x, true)
		d.SetInt(y, 7)
		d.SetUnicodeString(z, "Ωmega")
		return chunkWith(s, "Props", 1, func() error {
			if err := s.WriteDict(d); err != nil {
				return err
			}
			return s.WriteNameKey(z)
		})
	}

	binaryData := encodeBinary(t, build, WithNameKeys(writerKeys))
	jsonData := encodeJSON(t, build, WithNameKeys(writerKeys))

	readers := map[string]func(t *testing.T, keys NameKeys) Source{
		"binary": func(t *testing.T, keys NameKeys) Source { return openBinary(t, binaryData, WithNameKeys(keys)) },
		"json":   func(t *testing.T, keys NameKeys) Source { return openJSON(t, jsonData, WithNameKeys(keys)) },
	}

	for name, open := range readers {
		t.Run(name, func(t *testing.T) {
			// A fresh key table: names must come back through the table of
			// contents, not through shared key values.
			keys := NewNameKeyTable()
			keys.NameToKey("padding")
			src := open(t, keys)

			mustOpen(t, src, "Props")
			d, err := src.ReadDict()
			if err != nil {
				t.Fatalf("ReadDict failed: %v", err)
			}
			if d.Len() != 3 {
				t.Fatalf("expected 3 pairs, got %d", d.Len())
			}

			wantNames := []string{"x", "y", "zeta"}
			wantTypes := []DictType{DictBool, DictInt, DictUnicodeString}
			for i, p := range d.Pairs() {
				name, ok := keys.KeyToName(p.Key)
				if !ok || name != wantNames[i] {
					t.Errorf("pair %d: name %q, want %q", i, name, wantNames[i])
				}
				if p.Type != wantTypes[i] {
					t.Errorf("pair %d: type %s, want %s", i, p.Type, wantTypes[i])
				}
			}
			if v, ok := d.Bool(keys.NameToKey("x")); !ok || !v {
				t.Errorf("x = %v, %v", v, ok)
			}
			if v, ok := d.Int(keys.NameToKey("y")); !ok || v != 7 {
				t.Errorf("y = %d, %v", v, ok)
			}
			if v, ok := d.StringValue(keys.NameToKey("zeta")); !ok || v != "Ωmega" {
				t.Errorf("zeta = %q, %v", v, ok)
			}

			key, err := src.ReadNameKey()
			if err != nil {
				t.Fatalf("ReadNameKey failed: %v", err)
			}
			if name, _ := keys.KeyToName(key); name != "zeta" {
				t.Errorf("expected name key zeta, got %q", name)
			}
		})
	}
}

func TestDict_PackedTagsMatchAcrossBackends(t *testing.T) {
	keys := NewNameKeyTable()
	build := func(s Sink) error {
		d := NewDict()
		d.SetBool(keys.NameToKey("x"), true)
		d.SetInt(keys.NameToKey("y"), 7)
		return chunkWith(s, "Props", 1, func() error { return s.WriteDict(d) })
	}

	for _, b := range bothBackends(t, build, WithNameKeys(keys)) {
		t.Run(b.name, func(t *testing.T) {
			src := b.src
			mustOpen(t, src, "Props")

			// Walk the raw layout: count, then packed key + value per pair.
			var count int32
			switch r := src.(type) {
			case *BinaryReader:
				n, err := r.readLength()
				if err != nil {
					t.Fatalf("reading count: %v", err)
				}
				count = int32(n)
			default:
				n, err := src.ReadInt()
				if err != nil {
					t.Fatalf("reading count: %v", err)
				}
				count = n
			}
			if count != 2 {
				t.Fatalf("expected 2 pairs, got %d", count)
			}

			packed, _ := src.ReadInt()
			if _, typ := unpackKey(packed); typ != DictBool {
				t.Errorf("first tag %s, want Bool", typ)
			}
			if v, _ := src.ReadByte(); v != 1 {
				t.Errorf("expected bool byte 1, got %d", v)
			}
			packed, _ = src.ReadInt()
			if _, typ := unpackKey(packed); typ != DictInt {
				t.Errorf("second tag %s, want Int", typ)
			}
			if v, _ := src.ReadInt(); v != 7 {
				t.Errorf("expected 7, got %d", v)
			}
		})
	}
}

func TestDict_UnknownKey(t *testing.T) {
	w := NewBinaryWriter()
	if err := w.OpenChunk("Props", 1); err != nil {
		t.Fatalf("OpenChunk failed: %v", err)
	}
	d := NewDict()
	d.SetInt(NameKey(42), 1)
	if err := w.WriteDict(d); !errors.Is(err, ErrUnknownNameKey) {
		t.Errorf("expected ErrUnknownNameKey, got %v", err)
	}
}

func TestDict_BinaryRejectsUnknownID(t *testing.T) {
	data := encodeBinary(t, func(s Sink) error {
		return chunkWith(s, "Props", 1, func() error {
			if err := s.WriteBytes([]byte{1, 0}); err != nil { // one pair
				return err
			}
			if err := s.WriteInt(99<<8 | int32(DictInt)); err != nil {
				return err
			}
			return s.WriteInt(5)
		})
	})

	r := openBinary(t, data)
	mustOpen(t, r, "Props")
	if _, err := r.ReadDict(); !errors.Is(err, ErrCorruptStream) {
		t.Errorf("expected ErrCorruptStream, got %v", err)
	}
}
