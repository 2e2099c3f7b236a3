package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/Faultbox/datachunk/pkg/encoding"
)

// inputFrame is an open chunk on the read side.
type inputFrame struct {
	id         TypeID
	label      string
	version    Version
	chunkStart int64 // offset of the first body byte
	dataSize   uint32
	dataLeft   int64
}

// BinaryReader reads a binary chunk stream from a seekable source.
type BinaryReader struct {
	rs         io.ReadSeeker
	toc        *TableOfContents
	stack      []inputFrame
	size       int64
	pos        int64
	firstChunk int64
	registry   Registry
	keys       NameKeys
	log        *zap.Logger
	scratch    [headerSize]byte
}

var _ Source = (*BinaryReader)(nil)

// NewBinaryReader reads the table of contents from rs and positions the
// reader at the first chunk. A stream without a valid header yields an
// error wrapping ErrInvalidHeader.
func NewBinaryReader(rs io.ReadSeeker, opts ...Option) (*BinaryReader, error) {
	o := buildOptions(opts)

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("sizing stream: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding stream: %w", err)
	}

	toc := NewTableOfContents()
	if err := toc.Read(rs); err != nil {
		return nil, err
	}
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating first chunk: %w", err)
	}

	o.log.Debug("table of contents loaded",
		zap.Int("entries", toc.Len()),
		zap.Int64("first_chunk", pos),
		zap.Int64("stream_size", size))

	return &BinaryReader{
		rs:         rs,
		toc:        toc,
		size:       size,
		pos:        pos,
		firstChunk: pos,
		keys:       o.keys,
		log:        o.log,
	}, nil
}

// IsBinaryStream reports whether rs starts with the table of contents
// magic. The read position is restored.
func IsBinaryStream(rs io.ReadSeeker) bool {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return false
	}
	defer rs.Seek(start, io.SeekStart) //nolint:errcheck

	var magic [len(tocMagic)]byte
	if _, err := io.ReadFull(rs, magic[:]); err != nil {
		return false
	}
	return string(magic[:]) == tocMagic
}

// TOC returns the table of contents loaded from the stream header.
func (r *BinaryReader) TOC() *TableOfContents {
	return r.toc
}

// Offset returns the current position in the underlying stream.
func (r *BinaryReader) Offset() int64 {
	return r.pos
}

// Depth returns the number of open chunks.
func (r *BinaryReader) Depth() int {
	return len(r.stack)
}

func (r *BinaryReader) top() *inputFrame {
	if len(r.stack) == 0 {
		return nil
	}
	return &r.stack[len(r.stack)-1]
}

// ChunkLabel returns the label of the innermost open chunk.
func (r *BinaryReader) ChunkLabel() string {
	if f := r.top(); f != nil {
		return f.label
	}
	return ""
}

// ChunkVersion returns the version of the innermost open chunk.
func (r *BinaryReader) ChunkVersion() Version {
	if f := r.top(); f != nil {
		return f.version
	}
	return 0
}

// ChunkDataSize returns the body size of the innermost open chunk.
func (r *BinaryReader) ChunkDataSize() uint32 {
	if f := r.top(); f != nil {
		return f.dataSize
	}
	return 0
}

// ChunkDataLeft returns the unread body bytes of the innermost open chunk.
func (r *BinaryReader) ChunkDataLeft() int64 {
	if f := r.top(); f != nil {
		return f.dataLeft
	}
	return 0
}

// ParentLabel returns the label of the chunk enclosing the innermost open
// chunk, or "" at top level.
func (r *BinaryReader) ParentLabel() string {
	if len(r.stack) < 2 {
		return ""
	}
	return r.stack[len(r.stack)-2].label
}

// AtEndOfStream reports whether the stream is exhausted with no chunk open.
func (r *BinaryReader) AtEndOfStream() bool {
	return len(r.stack) == 0 && r.pos >= r.size
}

// AtEndOfChunk reports whether the innermost open chunk has no bytes left.
func (r *BinaryReader) AtEndOfChunk() bool {
	f := r.top()
	return f == nil || f.dataLeft <= 0
}

// decrementDataLeft charges n bytes against every open chunk.
func (r *BinaryReader) decrementDataLeft(n int64) {
	for i := range r.stack {
		r.stack[i].dataLeft -= n
	}
}

// OpenChunk reads the next chunk header at the current level and pushes
// it. It returns io.EOF when the current level has no further chunks.
func (r *BinaryReader) OpenChunk() (string, Version, error) {
	parent := r.top()
	switch {
	case parent == nil && r.pos >= r.size:
		return "", 0, io.EOF
	case parent == nil && r.size-r.pos < headerSize:
		return "", 0, fmt.Errorf("%w: %d bytes at offset %d cannot hold a chunk header",
			ErrTruncated, r.size-r.pos, r.pos)
	case parent != nil && parent.dataLeft <= 0:
		return "", 0, io.EOF
	case parent != nil && parent.dataLeft < headerSize:
		return "", 0, fmt.Errorf("%w: %d bytes left in %q cannot hold a chunk header",
			ErrCorruptStream, parent.dataLeft, parent.label)
	}

	hdr := r.scratch[:headerSize]
	if err := r.readFull(hdr); err != nil {
		return "", 0, err
	}
	r.decrementDataLeft(headerSize)

	id := binary.LittleEndian.Uint32(hdr[0:4])
	version := binary.LittleEndian.Uint16(hdr[4:6])
	dataSize := int32(binary.LittleEndian.Uint32(hdr[6:10]))

	label, ok := r.toc.Lookup(id)
	if !ok {
		return "", 0, fmt.Errorf("%w: chunk id %d at offset %d not in table of contents",
			ErrCorruptStream, id, r.pos-headerSize)
	}
	if dataSize < 0 {
		return "", 0, fmt.Errorf("%w: chunk %q has negative size %d", ErrCorruptStream, label, dataSize)
	}
	if parent != nil && int64(dataSize) > parent.dataLeft {
		return "", 0, fmt.Errorf("%w: chunk %q of %d bytes overruns %q with %d bytes left",
			ErrCorruptStream, label, dataSize, parent.label, parent.dataLeft)
	}
	if int64(dataSize) > r.size-r.pos {
		return "", 0, fmt.Errorf("%w: chunk %q of %d bytes overruns end of stream",
			ErrTruncated, label, dataSize)
	}

	r.stack = append(r.stack, inputFrame{
		id:         id,
		label:      label,
		version:    version,
		chunkStart: r.pos,
		dataSize:   uint32(dataSize),
		dataLeft:   int64(dataSize),
	})
	return label, version, nil
}

// CloseChunk skips whatever is left of the innermost chunk and pops it.
func (r *BinaryReader) CloseChunk() error {
	f := r.top()
	if f == nil {
		return fmt.Errorf("%w: close without open", ErrUnbalanced)
	}
	if left := f.dataLeft; left > 0 {
		if _, err := r.rs.Seek(left, io.SeekCurrent); err != nil {
			return fmt.Errorf("skipping %d bytes of %q: %w", left, f.label, err)
		}
		r.pos += left
		r.decrementDataLeft(left)
		r.log.Debug("skipped chunk remainder",
			zap.String("label", f.label),
			zap.Int64("bytes", left))
	}
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

// Reset closes every open chunk and rewinds to the first chunk after the
// table of contents.
func (r *BinaryReader) Reset() error {
	r.stack = r.stack[:0]
	if _, err := r.rs.Seek(r.firstChunk, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding to first chunk: %w", err)
	}
	r.pos = r.firstChunk
	return nil
}

func (r *BinaryReader) readFull(p []byte) error {
	n, err := io.ReadFull(r.rs, p)
	r.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: wanted %d bytes at offset %d", ErrTruncated, len(p), r.pos-int64(n))
		}
		return err
	}
	return nil
}

// consume reads len(p) body bytes of the innermost chunk.
func (r *BinaryReader) consume(p []byte) error {
	f := r.top()
	if f == nil {
		return fmt.Errorf("%w: read outside of a chunk", ErrNoOpenChunk)
	}
	if int64(len(p)) > f.dataLeft {
		return fmt.Errorf("%w: %q wants %d bytes, %d left",
			ErrBudgetExceeded, f.label, len(p), f.dataLeft)
	}
	if err := r.readFull(p); err != nil {
		return err
	}
	r.decrementDataLeft(int64(len(p)))
	return nil
}

// ReadInt reads a 32-bit signed integer.
func (r *BinaryReader) ReadInt() (int32, error) {
	b := r.scratch[:4]
	if err := r.consume(b); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// ReadReal reads a 32-bit float.
func (r *BinaryReader) ReadReal() (float32, error) {
	b := r.scratch[:4]
	if err := r.consume(b); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadByte reads a single byte.
func (r *BinaryReader) ReadByte() (byte, error) {
	b := r.scratch[:1]
	if err := r.consume(b); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *BinaryReader) readLength() (int, error) {
	b := r.scratch[:2]
	if err := r.consume(b); err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

// ReadAsciiString reads a length-prefixed 8-bit string.
func (r *BinaryReader) ReadAsciiString() (string, error) {
	n, err := r.readLength()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if err := r.consume(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadUnicodeString reads a UTF-16LE string prefixed by its unit count.
func (r *BinaryReader) ReadUnicodeString() (string, error) {
	n, err := r.readLength()
	if err != nil {
		return "", err
	}
	b := make([]byte, 2*n)
	if err := r.consume(b); err != nil {
		return "", err
	}
	return encoding.UTF16LEToUTF8(b)
}

// ReadBytes reads exactly n raw bytes.
func (r *BinaryReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative byte count %d", n)
	}
	b := make([]byte, n)
	if err := r.consume(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadRemainingBytes reads the unread rest of the innermost chunk.
func (r *BinaryReader) ReadRemainingBytes() ([]byte, error) {
	f := r.top()
	if f == nil {
		return nil, fmt.Errorf("%w: read outside of a chunk", ErrNoOpenChunk)
	}
	if f.dataLeft <= 0 {
		return []byte{}, nil
	}
	return r.ReadBytes(int(f.dataLeft))
}

// ReadNameKey reads a packed name key and resolves it through the table of
// contents.
func (r *BinaryReader) ReadNameKey() (NameKey, error) {
	return readNameKey(r, r.keys, strictResolver(r.toc))
}

// ReadDict reads a pair count followed by that many packed pairs.
func (r *BinaryReader) ReadDict() (*Dict, error) {
	n, err := r.readLength()
	if err != nil {
		return nil, err
	}
	return readDictPairs(r, r.keys, strictResolver(r.toc), n)
}

// RegisterParser adds a callback for chunks labeled label directly inside
// chunks labeled parentLabel ("" for top level).
func (r *BinaryReader) RegisterParser(label, parentLabel string, fn ParserFunc, userData any) error {
	return r.registry.Register(label, parentLabel, fn, userData)
}

// Parse walks the chunks at the current level and dispatches them to the
// registered parsers.
func (r *BinaryReader) Parse(userData any) error {
	return parse(r, &r.registry, userData, r.log)
}
