package chunk

import (
	"bytes"
	"testing"
)

// buildFunc writes a fixture stream through any Sink.
type buildFunc func(s Sink) error

// encodeBinary builds a binary stream.
func encodeBinary(t *testing.T, build buildFunc, opts ...Option) []byte {
	t.Helper()
	w := NewBinaryWriter(opts...)
	if err := build(w); err != nil {
		t.Fatalf("building binary stream: %v", err)
	}
	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("finishing binary stream: %v", err)
	}
	return data
}

// encodeJSON builds a JSON document.
func encodeJSON(t *testing.T, build buildFunc, opts ...Option) []byte {
	t.Helper()
	w := NewJSONWriter(opts...)
	if err := build(w); err != nil {
		t.Fatalf("building json stream: %v", err)
	}
	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("finishing json stream: %v", err)
	}
	return data
}

func openBinary(t *testing.T, data []byte, opts ...Option) *BinaryReader {
	t.Helper()
	r, err := NewBinaryReader(bytes.NewReader(data), opts...)
	if err != nil {
		t.Fatalf("NewBinaryReader failed: %v", err)
	}
	return r
}

func openJSON(t *testing.T, data []byte, opts ...Option) *JSONReader {
	t.Helper()
	r, err := NewJSONReader(data, opts...)
	if err != nil {
		t.Fatalf("NewJSONReader failed: %v", err)
	}
	return r
}

type namedSource struct {
	name string
	src  Source
}

// bothBackends builds the same fixture with both writers and returns a
// reader for each.
func bothBackends(t *testing.T, build buildFunc, opts ...Option) []namedSource {
	t.Helper()
	return []namedSource{
		{"binary", openBinary(t, encodeBinary(t, build, opts...), opts...)},
		{"json", openJSON(t, encodeJSON(t, build, opts...), opts...)},
	}
}

// chunkWith opens label, runs body and closes it again.
func chunkWith(s Sink, label string, version Version, body func() error) error {
	if err := s.OpenChunk(label, version); err != nil {
		return err
	}
	if body != nil {
		if err := body(); err != nil {
			return err
		}
	}
	return s.CloseChunk()
}

func mustOpen(t *testing.T, src Source, wantLabel string) Version {
	t.Helper()
	label, version, err := src.OpenChunk()
	if err != nil {
		t.Fatalf("OpenChunk failed: %v", err)
	}
	if label != wantLabel {
		t.Fatalf("expected chunk %q, got %q", wantLabel, label)
	}
	return version
}

func mustClose(t *testing.T, src Source) {
	t.Helper()
	if err := src.CloseChunk(); err != nil {
		t.Fatalf("CloseChunk failed: %v", err)
	}
}
