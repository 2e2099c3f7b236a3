// Package chunkio connects chunk streams to files.
package chunkio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/Faultbox/datachunk/pkg/chunk"
)

// ErrUnknownFormat is returned when a file is neither binary nor JSON.
var ErrUnknownFormat = errors.New("unknown chunk file format")

// Format is a chunk stream backend.
type Format int

const (
	FormatBinary Format = iota
	FormatJSON
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Ext returns the usual file extension of the format.
func (f Format) Ext() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".scb"
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "binary", "bin", "scb", "map":
		return FormatBinary, nil
	case "json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatForPath guesses the format from a file extension.
func FormatForPath(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return FormatJSON
	}
	return FormatBinary
}

// DetectFormat inspects the first bytes of data.
func DetectFormat(data []byte) (Format, error) {
	if chunk.IsBinaryStream(bytes.NewReader(data)) {
		return FormatBinary, nil
	}
	if trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON, nil
	}
	return 0, ErrUnknownFormat
}

// ReadSource reads a whole file and opens the matching reader.
func ReadSource(fs billy.Filesystem, name string, opts ...chunk.Option) (chunk.Source, Format, error) {
	data, err := util.ReadFile(fs, name)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", name, err)
	}
	format, err := DetectFormat(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", name, err)
	}
	src, err := OpenSource(data, format, opts...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", name, err)
	}
	return src, format, nil
}

// utf8BOM may lead a JSON document saved by an editor.
var utf8BOM = []byte("\ufeff")

// OpenSource opens an in-memory stream.
func OpenSource(data []byte, format Format, opts ...chunk.Option) (chunk.Source, error) {
	switch format {
	case FormatBinary:
		return chunk.NewBinaryReader(bytes.NewReader(data), opts...)
	case FormatJSON:
		return chunk.NewJSONReader(bytes.TrimPrefix(data, utf8BOM), opts...)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// Finisher is a Sink that can emit its finished stream.
type Finisher interface {
	chunk.Sink
	WriteTo(w io.Writer) (int64, error)
}

// SinkOptions tune NewSink.
type SinkOptions struct {
	// JSONIndent is the indent of JSON output; 0 writes a single line.
	JSONIndent int
}

// NewSink returns a writer for format.
func NewSink(format Format, so SinkOptions, opts ...chunk.Option) (Finisher, error) {
	switch format {
	case FormatBinary:
		return chunk.NewBinaryWriter(opts...), nil
	case FormatJSON:
		w := chunk.NewJSONWriter(opts...)
		w.SetIndent(so.JSONIndent)
		return w, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// Save writes the finished stream of s to name, creating parent
// directories.
func Save(fs billy.Filesystem, name string, s Finisher) (err error) {
	if dir := filepath.Dir(name); dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	f, err := fs.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", name, cerr)
		}
	}()

	if _, err := s.WriteTo(f); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
