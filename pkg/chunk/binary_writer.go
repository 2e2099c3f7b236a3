package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/Faultbox/datachunk/pkg/encoding"
)

// initialBufferSize is the starting capacity of the chunk body buffer.
const initialBufferSize = 4096

// sizePlaceholder fills a chunk size field until the chunk is closed.
const sizePlaceholder = 0xFFFF

// outputFrame is an open chunk on the write side.
type outputFrame struct {
	id      TypeID
	label   string
	sizePos int // offset of the size field in buf
}

// BinaryWriter writes a binary chunk stream. Chunk bodies accumulate in
// memory; the table of contents is emitted in front of them when the
// stream is finished with Bytes or WriteTo.
type BinaryWriter struct {
	buf   []byte
	toc   *TableOfContents
	stack []outputFrame
	keys  NameKeys
	log   *zap.Logger
}

var _ Sink = (*BinaryWriter)(nil)

// NewBinaryWriter returns an empty writer.
func NewBinaryWriter(opts ...Option) *BinaryWriter {
	o := buildOptions(opts)
	return &BinaryWriter{
		buf:  make([]byte, 0, initialBufferSize),
		toc:  NewTableOfContents(),
		keys: o.keys,
		log:  o.log,
	}
}

// TOC returns the writer's table of contents.
func (w *BinaryWriter) TOC() *TableOfContents {
	return w.toc
}

// AllocateID interns name in the table of contents.
func (w *BinaryWriter) AllocateID(name string) TypeID {
	return w.toc.Allocate(name)
}

// Depth returns the number of open chunks.
func (w *BinaryWriter) Depth() int {
	return len(w.stack)
}

// OpenChunk starts a chunk. Its size field is patched by CloseChunk.
func (w *BinaryWriter) OpenChunk(label string, version Version) error {
	if len(label) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrNameTooLong, label)
	}
	id := w.toc.Allocate(label)

	w.buf = binary.LittleEndian.AppendUint32(w.buf, id)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, version)
	w.stack = append(w.stack, outputFrame{id: id, label: label, sizePos: len(w.buf)})
	w.buf = binary.LittleEndian.AppendUint32(w.buf, sizePlaceholder)
	return nil
}

// CloseChunk ends the innermost chunk and records the number of body bytes
// written since it was opened.
func (w *BinaryWriter) CloseChunk() error {
	if len(w.stack) == 0 {
		return fmt.Errorf("%w: close without open", ErrUnbalanced)
	}
	top := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	size := len(w.buf) - top.sizePos - 4
	if size > math.MaxInt32 {
		return fmt.Errorf("chunk %q: body of %d bytes exceeds size field", top.label, size)
	}
	binary.LittleEndian.PutUint32(w.buf[top.sizePos:], uint32(size))
	return nil
}

func (w *BinaryWriter) requireOpen() error {
	if len(w.stack) == 0 {
		return fmt.Errorf("%w: write outside of a chunk", ErrNoOpenChunk)
	}
	return nil
}

// WriteInt appends a 32-bit signed integer.
func (w *BinaryWriter) WriteInt(v int32) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
	return nil
}

// WriteReal appends a 32-bit float.
func (w *BinaryWriter) WriteReal(v float32) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
	return nil
}

// WriteByte appends a single byte.
func (w *BinaryWriter) WriteByte(v byte) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	w.buf = append(w.buf, v)
	return nil
}

// WriteAsciiString appends a length-prefixed 8-bit string.
func (w *BinaryWriter) WriteAsciiString(s string) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	if len(s) > maxStringLen {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// WriteUnicodeString appends a string as a unit count followed by UTF-16LE.
func (w *BinaryWriter) WriteUnicodeString(s string) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	data, units, err := encoding.UTF8ToUTF16LE(s)
	if err != nil {
		return err
	}
	if units > maxStringLen {
		return fmt.Errorf("%w: %d utf-16 units", ErrStringTooLong, units)
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(units))
	w.buf = append(w.buf, data...)
	return nil
}

// WriteBytes appends p verbatim, without a length prefix.
func (w *BinaryWriter) WriteBytes(p []byte) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	w.buf = append(w.buf, p...)
	return nil
}

// WriteNameKey appends key as a packed table of contents reference.
func (w *BinaryWriter) WriteNameKey(key NameKey) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	return writeNameKey(w, w.keys, w.toc, key)
}

// WriteDict appends a pair count followed by every packed key and value.
func (w *BinaryWriter) WriteDict(d *Dict) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	if d.Len() > maxStringLen {
		return fmt.Errorf("dict of %d pairs exceeds pair count field", d.Len())
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(d.Len()))
	return writeDictPairs(w, w.keys, w.toc, d)
}

// Bytes returns the finished stream: table of contents, then chunk data.
// All chunks must be closed.
func (w *BinaryWriter) Bytes() ([]byte, error) {
	var out bytes.Buffer
	out.Grow(w.toc.Size() + len(w.buf))
	if _, err := w.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteTo writes the finished stream to dst.
func (w *BinaryWriter) WriteTo(dst io.Writer) (int64, error) {
	if len(w.stack) > 0 {
		return 0, fmt.Errorf("%w: %d chunk(s) still open, innermost %q",
			ErrUnbalanced, len(w.stack), w.stack[len(w.stack)-1].label)
	}

	cw := &countingWriter{w: dst}
	if err := w.toc.Write(cw); err != nil {
		return cw.n, fmt.Errorf("writing table of contents: %w", err)
	}
	if _, err := cw.Write(w.buf); err != nil {
		return cw.n, fmt.Errorf("writing chunk data: %w", err)
	}

	w.log.Debug("chunk stream written",
		zap.Int("toc_entries", w.toc.Len()),
		zap.Int64("bytes", cw.n))
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
