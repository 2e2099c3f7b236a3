// Package encoding provides the text encodings used by data chunk strings.
//
// Ascii chunk strings are raw 8-bit strings; they are carried through JSON as
// their Latin-1 decoding so every byte value survives. Unicode chunk strings
// are UTF-16LE on the wire. An unpaired surrogate in a UTF-16 payload is
// kept in the decoded string as its three-byte generalized UTF-8 form
// (ED A0 80 for U+D800) and encodes back to the same unit.
package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ErrOddUTF16Length is returned when a UTF-16 payload has an odd byte count.
var ErrOddUTF16Length = errors.New("utf-16 payload has odd length")

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Latin1ToUTF8 converts raw 8-bit bytes to UTF-8, mapping every byte to the
// code point of the same value.
func Latin1ToUTF8(data []byte) string {
	result, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		// ISO 8859-1 defines all 256 bytes, decoding cannot fail.
		return string(data)
	}
	return string(result)
}

// UTF8ToLatin1 converts a UTF-8 string back to raw 8-bit bytes.
// Runes above U+00FF have no Latin-1 encoding and produce an error.
func UTF8ToLatin1(s string) ([]byte, error) {
	result, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding %q as latin-1: %w", s, err)
	}
	return result, nil
}

// IsLatin1 reports whether every rune of s fits in a single Latin-1 byte.
func IsLatin1(s string) bool {
	for _, r := range s {
		if r > 0xFF {
			return false
		}
	}
	return true
}

// UTF8ToUTF16LE encodes s as UTF-16LE. The returned unit count is the
// number of 16-bit code units. Invalid UTF-8 other than an encoded
// surrogate becomes U+FFFD.
func UTF8ToUTF16LE(s string) (data []byte, units int, err error) {
	data = []byte{}
	start := 0
	for i := 0; i+3 <= len(s); {
		u, ok := surrogateAt(s, i)
		if !ok {
			i++
			continue
		}
		if data, err = appendUTF16(data, s[start:i]); err != nil {
			return nil, 0, err
		}
		data = binary.LittleEndian.AppendUint16(data, u)
		i += 3
		start = i
	}
	if data, err = appendUTF16(data, s[start:]); err != nil {
		return nil, 0, err
	}
	return data, len(data) / 2, nil
}

func appendUTF16(dst []byte, s string) ([]byte, error) {
	if s == "" {
		return dst, nil
	}
	data, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding utf-16: %w", err)
	}
	return append(dst, data...), nil
}

// surrogateAt decodes the three-byte surrogate sequence at s[i:].
func surrogateAt(s string, i int) (uint16, bool) {
	if s[i] != 0xED || s[i+1] < 0xA0 || s[i+1] > 0xBF || s[i+2] < 0x80 || s[i+2] > 0xBF {
		return 0, false
	}
	return 0xD000 | uint16(s[i+1]&0x3F)<<6 | uint16(s[i+2]&0x3F), true
}

func isSurrogate(u uint16) bool {
	return u >= 0xD800 && u <= 0xDFFF
}

func isHighSurrogate(u uint16) bool {
	return u >= 0xD800 && u <= 0xDBFF
}

// UTF16LEToUTF8 decodes a UTF-16LE payload. Unpaired surrogates are kept
// as their three-byte form, so the result may not be valid UTF-8.
func UTF16LEToUTF8(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", ErrOddUTF16Length
	}

	out := make([]byte, 0, len(data))
	start := 0
	for i := 0; i < len(data); i += 2 {
		u := binary.LittleEndian.Uint16(data[i:])
		if !isSurrogate(u) {
			continue
		}
		if isHighSurrogate(u) && i+2 < len(data) {
			if next := binary.LittleEndian.Uint16(data[i+2:]); isSurrogate(next) && !isHighSurrogate(next) {
				i += 2
				continue
			}
		}

		var err error
		if out, err = appendUTF8(out, data[start:i]); err != nil {
			return "", err
		}
		out = append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6)&0x3F, 0x80|byte(u)&0x3F)
		start = i + 2
	}
	out, err := appendUTF8(out, data[start:])
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func appendUTF8(dst, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return dst, nil
	}
	result, err := utf16LE.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding utf-16: %w", err)
	}
	return append(dst, result...), nil
}
