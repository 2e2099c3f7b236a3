package convert

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/mtraver/base91"

	"github.com/Faultbox/datachunk/pkg/chunk"
)

// inlineBytesLimit is the largest byte run printed in full by TextSink.
// Longer runs are summarized by length and digest.
const inlineBytesLimit = 16

// TextSink renders a chunk stream as an indented, line-oriented listing.
// It is used for dumps and for diffing two streams independent of their
// backend.
type TextSink struct {
	w      *bufio.Writer
	keys   chunk.NameKeys
	toc    *chunk.TableOfContents
	labels []string
	err    error
}

var _ chunk.Sink = (*TextSink)(nil)

// NewTextSink returns a sink writing to w. keys translates name keys and
// dict keys back to names; it must be the table the source reader uses.
func NewTextSink(w io.Writer, keys chunk.NameKeys) *TextSink {
	if keys == nil {
		keys = chunk.NewNameKeyTable()
	}
	return &TextSink{
		w:    bufio.NewWriter(w),
		keys: keys,
		toc:  chunk.NewTableOfContents(),
	}
}

func (s *TextSink) line(format string, args ...any) error {
	if s.err != nil {
		return s.err
	}
	indent := strings.Repeat("  ", len(s.labels))
	_, s.err = fmt.Fprintf(s.w, indent+format+"\n", args...)
	return s.err
}

func (s *TextSink) value(kind string, format string, args ...any) error {
	if len(s.labels) == 0 {
		return fmt.Errorf("%w: %s outside of a chunk", chunk.ErrNoOpenChunk, kind)
	}
	return s.line(kind+" "+format, args...)
}

// AllocateID interns name.
func (s *TextSink) AllocateID(name string) chunk.TypeID {
	return s.toc.Allocate(name)
}

// Depth returns the number of open chunks.
func (s *TextSink) Depth() int {
	return len(s.labels)
}

// OpenChunk prints the chunk heading.
func (s *TextSink) OpenChunk(label string, version chunk.Version) error {
	s.toc.Allocate(label)
	if err := s.line("%s v%d {", label, version); err != nil {
		return err
	}
	s.labels = append(s.labels, label)
	return nil
}

// CloseChunk prints the closing brace.
func (s *TextSink) CloseChunk() error {
	if len(s.labels) == 0 {
		return fmt.Errorf("%w: close without open", chunk.ErrUnbalanced)
	}
	s.labels = s.labels[:len(s.labels)-1]
	return s.line("}")
}

func (s *TextSink) WriteInt(v int32) error {
	return s.value("int", "%d", v)
}

func (s *TextSink) WriteReal(v float32) error {
	return s.value("real", "%s", strconv.FormatFloat(float64(v), 'g', -1, 32))
}

func (s *TextSink) WriteByte(v byte) error {
	return s.value("byte", "%d", v)
}

func (s *TextSink) WriteAsciiString(v string) error {
	return s.value("ascii", "%q", v)
}

func (s *TextSink) WriteUnicodeString(v string) error {
	return s.value("unicode", "%q", v)
}

// WriteBytes prints short runs as hex and long runs as a digest.
func (s *TextSink) WriteBytes(p []byte) error {
	if len(p) <= inlineBytesLimit {
		return s.value("bytes", "[%d] %X", len(p), p)
	}
	return s.value("bytes", "[%d] xxh:%s", len(p), Digest(p))
}

func (s *TextSink) keyName(key chunk.NameKey) string {
	if name, ok := s.keys.KeyToName(key); ok {
		return name
	}
	return fmt.Sprintf("#%d", key)
}

func (s *TextSink) WriteNameKey(key chunk.NameKey) error {
	return s.value("namekey", "%s", s.keyName(key))
}

// WriteDict prints one line per pair.
func (s *TextSink) WriteDict(d *chunk.Dict) error {
	if err := s.value("dict", "(%d)", d.Len()); err != nil {
		return err
	}
	for _, p := range d.Pairs() {
		var v string
		switch p.Type {
		case chunk.DictBool:
			v = strconv.FormatBool(p.Bool)
		case chunk.DictInt:
			v = strconv.FormatInt(int64(p.Int), 10)
		case chunk.DictReal:
			v = strconv.FormatFloat(float64(p.Real), 'g', -1, 32)
		default:
			v = strconv.Quote(p.String)
		}
		if err := s.line("  %s:%s = %s", s.keyName(p.Key), p.Type, v); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered output. All chunks must be closed.
func (s *TextSink) Flush() error {
	if len(s.labels) > 0 {
		return fmt.Errorf("%w: %d chunk(s) still open", chunk.ErrUnbalanced, len(s.labels))
	}
	if s.err != nil {
		return s.err
	}
	return s.w.Flush()
}

// Digest returns a short base91 rendering of the xxhash of p.
func Digest(p []byte) string {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(p))
	return base91.StdEncoding.EncodeToString(sum[:])
}

// Dump renders src through a TextSink.
func Dump(w io.Writer, src chunk.Source, keys chunk.NameKeys, schema *Schema, opts Options) (Stats, error) {
	sink := NewTextSink(w, keys)
	stats, err := Convert(src, sink, schema, opts)
	if err != nil {
		return stats, err
	}
	return stats, sink.Flush()
}
