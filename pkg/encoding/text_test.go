package encoding

import (
	"bytes"
	"errors"
	"testing"
)

func TestLatin1RoundTrip(t *testing.T) {
	raw := make([]byte, 256)
	for i := range raw {
		raw[i] = byte(i)
	}

	s := Latin1ToUTF8(raw)
	if !IsLatin1(s) {
		t.Error("decoded latin-1 should report IsLatin1")
	}

	back, err := UTF8ToLatin1(s)
	if err != nil {
		t.Fatalf("UTF8ToLatin1 failed: %v", err)
	}
	if !bytes.Equal(back, raw) {
		t.Error("latin-1 round trip lost bytes")
	}
}

func TestLatin1ToUTF8(t *testing.T) {
	if got := Latin1ToUTF8([]byte("Caf\xe9")); got != "Café" {
		t.Errorf("expected Café, got %q", got)
	}
}

func TestUTF8ToLatin1_OutOfRange(t *testing.T) {
	if _, err := UTF8ToLatin1("東京"); err == nil {
		t.Error("expected error for runes above U+00FF")
	}
	if IsLatin1("東京") {
		t.Error("IsLatin1 should be false for CJK text")
	}
}

func TestUTF16LE(t *testing.T) {
	tests := []struct {
		in    string
		units int
		data  []byte
	}{
		{"", 0, []byte{}},
		{"A", 1, []byte{'A', 0}},
		{"é", 1, []byte{0xE9, 0}},
		{"\U0001F600", 2, []byte{0x3D, 0xD8, 0x00, 0xDE}},
	}

	for _, tt := range tests {
		data, units, err := UTF8ToUTF16LE(tt.in)
		if err != nil {
			t.Fatalf("UTF8ToUTF16LE(%q) failed: %v", tt.in, err)
		}
		if units != tt.units {
			t.Errorf("%q: expected %d units, got %d", tt.in, tt.units, units)
		}
		if !bytes.Equal(data, tt.data) {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.data, data)
		}

		back, err := UTF16LEToUTF8(data)
		if err != nil {
			t.Fatalf("UTF16LEToUTF8 failed: %v", err)
		}
		if back != tt.in {
			t.Errorf("round trip: expected %q, got %q", tt.in, back)
		}
	}
}

func TestUTF16LEToUTF8_OddLength(t *testing.T) {
	if _, err := UTF16LEToUTF8([]byte{'A', 0, 'B'}); !errors.Is(err, ErrOddUTF16Length) {
		t.Errorf("expected ErrOddUTF16Length, got %v", err)
	}
}

func TestUTF16LE_UnpairedSurrogates(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"lone high", []byte{0x00, 0xD8}, "\xed\xa0\x80"},
		{"lone low", []byte{0x00, 0xDC}, "\xed\xb0\x80"},
		{"between text", []byte{'A', 0, 0xFF, 0xDB, 'B', 0}, "A\xed\xaf\xbfB"},
		{"low before high", []byte{0x00, 0xDE, 0x3D, 0xD8}, "\xed\xb8\x80\xed\xa0\xbd"},
		{"high at end", []byte{0x3D, 0xD8, 0x00, 0xDE, 0x3D, 0xD8}, "\U0001F600\xed\xa0\xbd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UTF16LEToUTF8(tt.data)
			if err != nil {
				t.Fatalf("UTF16LEToUTF8 failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}

			back, units, err := UTF8ToUTF16LE(got)
			if err != nil {
				t.Fatalf("UTF8ToUTF16LE failed: %v", err)
			}
			if units != len(tt.data)/2 {
				t.Errorf("expected %d units, got %d", len(tt.data)/2, units)
			}
			if !bytes.Equal(back, tt.data) {
				t.Errorf("expected %X, got %X", tt.data, back)
			}
		})
	}
}

func TestUTF8ToUTF16LE_InvalidBytes(t *testing.T) {
	data, units, err := UTF8ToUTF16LE("a\xffb")
	if err != nil {
		t.Fatalf("UTF8ToUTF16LE failed: %v", err)
	}
	if units != 3 {
		t.Errorf("expected 3 units, got %d", units)
	}
	if !bytes.Equal(data, []byte{'a', 0, 0xFD, 0xFF, 'b', 0}) {
		t.Errorf("invalid byte should encode as U+FFFD, got %X", data)
	}
}
