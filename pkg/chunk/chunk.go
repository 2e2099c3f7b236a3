// Package chunk reads and writes hierarchical, versioned data chunk streams.
//
// A stream is a sequence of labeled chunks. Each chunk carries a version and
// either nested chunks or a flat sequence of typed values. Chunk labels are
// interned in a table of contents so the same stream can carry chunks from
// unrelated subsystems. Two interchangeable backends are provided: a compact
// little-endian binary format and a structurally equivalent JSON form.
package chunk

import (
	"errors"

	"go.uber.org/zap"
)

// Version is the per-chunk format version.
type Version = uint16

// TypeID is the interned integer id of a chunk label or name key.
// Ids are 1-based; 0 is invalid.
type TypeID = uint32

// Stream errors.
var (
	ErrInvalidHeader   = errors.New("not a valid chunk stream")
	ErrBudgetExceeded  = errors.New("read past end of chunk")
	ErrUnbalanced      = errors.New("unbalanced chunk nesting")
	ErrNoOpenChunk     = errors.New("no open chunk")
	ErrCorruptStream   = errors.New("corrupt chunk stream")
	ErrTruncated       = errors.New("truncated chunk stream")
	ErrStringTooLong   = errors.New("string too long")
	ErrNameTooLong     = errors.New("name too long for table of contents")
	ErrTypeMismatch    = errors.New("value type mismatch")
	ErrFieldNotFound   = errors.New("field not found")
	ErrReservedField   = errors.New("reserved field name")
	ErrDuplicateParser = errors.New("duplicate parser registration")
	ErrUnknownDictType = errors.New("unknown dict value type")
)

const (
	// headerSize is the size of a binary chunk header: id, version, size.
	headerSize = 4 + 2 + 4

	maxStringLen = 0xFFFF
	maxNameLen   = 0xFF
)

// Info describes the chunk handed to a parser callback.
type Info struct {
	Label       string
	ParentLabel string
	Version     Version
	DataSize    uint32
}

// ParserFunc is invoked by Parse for every chunk matching a registration.
// Returning an error aborts the whole parse.
type ParserFunc func(src Source, info Info, userData any) error

// Sink is the write side shared by the binary and JSON backends.
// Values written through the positional methods read back, in order,
// through the matching Source methods on either backend.
type Sink interface {
	OpenChunk(label string, version Version) error
	CloseChunk() error
	Depth() int

	WriteInt(v int32) error
	WriteReal(v float32) error
	WriteByte(v byte) error
	WriteAsciiString(s string) error
	WriteUnicodeString(s string) error
	WriteBytes(p []byte) error
	WriteNameKey(key NameKey) error
	WriteDict(d *Dict) error

	AllocateID(name string) TypeID
}

// Source is the read side shared by the binary and JSON backends.
type Source interface {
	// OpenChunk enters the next chunk at the current level. It returns
	// io.EOF when no further chunk exists at this level.
	OpenChunk() (string, Version, error)
	CloseChunk() error
	AtEndOfStream() bool
	AtEndOfChunk() bool
	Depth() int
	ChunkLabel() string
	ChunkVersion() Version
	ChunkDataSize() uint32
	ParentLabel() string
	Reset() error

	ReadInt() (int32, error)
	ReadReal() (float32, error)
	ReadByte() (byte, error)
	ReadAsciiString() (string, error)
	ReadUnicodeString() (string, error)
	ReadBytes(n int) ([]byte, error)
	ReadRemainingBytes() ([]byte, error)
	ReadNameKey() (NameKey, error)
	ReadDict() (*Dict, error)

	RegisterParser(label, parentLabel string, fn ParserFunc, userData any) error
	Parse(userData any) error
}

// Option configures a reader or writer.
type Option func(*options)

type options struct {
	log  *zap.Logger
	keys NameKeys
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithNameKeys sets the name key service used to translate dict keys.
// Readers and writers that exchange Dicts with the caller must share it.
func WithNameKeys(k NameKeys) Option {
	return func(o *options) {
		if k != nil {
			o.keys = k
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.keys == nil {
		o.keys = NewNameKeyTable()
	}
	return o
}
