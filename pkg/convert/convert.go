// Package convert copies chunk streams between backends.
//
// Chunks whose layout is registered in a Schema are copied value by value,
// so the destination receives the same positional sequence the source
// holds. Chunks without a layout are copied as an opaque byte run, which
// preserves their body exactly when both sides are binary or when a JSON
// document was itself produced by this package.
package convert

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Faultbox/datachunk/pkg/chunk"
)

// ErrNoLayout is returned in strict mode for a chunk without a layout.
var ErrNoLayout = errors.New("no layout for chunk")

// ErrTrailingData is returned when a layout leaves part of a chunk unread.
var ErrTrailingData = errors.New("layout left chunk data unread")

// Layout copies the body of one chunk. It is called with the chunk open on
// both sides and must consume the whole body, typically ending with
// c.Children() for chunks that nest others.
type Layout func(c *Copier, version chunk.Version) error

type scope struct {
	label  string
	parent string
}

// AnyParent registers a layout for a label regardless of its parent.
const AnyParent = "*"

// Schema maps chunk scopes to layouts.
type Schema struct {
	layouts map[scope]Layout
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{layouts: make(map[scope]Layout)}
}

// Register sets the layout for label under parent. Use AnyParent to match
// every parent; an exact parent registration wins over AnyParent.
func (s *Schema) Register(label, parent string, l Layout) {
	s.layouts[scope{label, parent}] = l
}

// Lookup returns the layout for label under parent.
func (s *Schema) Lookup(label, parent string) (Layout, bool) {
	if s == nil {
		return nil, false
	}
	if l, ok := s.layouts[scope{label, parent}]; ok {
		return l, true
	}
	l, ok := s.layouts[scope{label, AnyParent}]
	return l, ok
}

// Len returns the number of registered layouts.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layouts)
}

// Options tune a conversion.
type Options struct {
	// Strict fails on chunks without a layout instead of copying them raw.
	Strict bool
	Logger *zap.Logger
}

// Stats summarizes a conversion.
type Stats struct {
	Chunks    int
	RawChunks int
}

// tocSource is implemented by both chunk readers.
type tocSource interface {
	TOC() *chunk.TableOfContents
}

// Convert copies every chunk of src to dst.
//
// The source table of contents is replayed into dst first, so chunk and
// key ids keep their values and raw copied bodies stay valid.
func Convert(src chunk.Source, dst chunk.Sink, schema *Schema, opts Options) (Stats, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if ts, ok := src.(tocSource); ok {
		for _, e := range ts.TOC().Entries() {
			if id := dst.AllocateID(e.Name); id != e.ID {
				log.Warn("table of contents id changed during conversion",
					zap.String("name", e.Name),
					zap.Uint32("source_id", e.ID),
					zap.Uint32("dest_id", id))
			}
		}
	}

	c := &Copier{
		src:    src,
		dst:    dst,
		schema: schema,
		strict: opts.Strict,
		log:    log,
	}
	if err := c.copyLevel(); err != nil {
		return c.stats, err
	}
	return c.stats, nil
}

// Copier reads values from a Source and writes them to a Sink. The first
// failure is sticky: later calls return zero values and Err reports it.
type Copier struct {
	src    chunk.Source
	dst    chunk.Sink
	schema *Schema
	strict bool
	log    *zap.Logger
	err    error
	stats  Stats
}

// Err returns the first error met by the copier.
func (c *Copier) Err() error {
	return c.err
}

func (c *Copier) fail(err error) {
	if c.err == nil && err != nil {
		c.err = err
	}
}

// Label returns the label of the chunk being copied.
func (c *Copier) Label() string {
	return c.src.ChunkLabel()
}

// AtEnd reports whether the chunk being copied has nothing left to read.
func (c *Copier) AtEnd() bool {
	return c.err != nil || c.src.AtEndOfChunk()
}

func copyValue[T any](c *Copier, read func() (T, error), write func(T) error) T {
	var zero T
	if c.err != nil {
		return zero
	}
	v, err := read()
	if err != nil {
		c.fail(fmt.Errorf("%s: %w", c.src.ChunkLabel(), err))
		return zero
	}
	if err := write(v); err != nil {
		c.fail(fmt.Errorf("%s: %w", c.src.ChunkLabel(), err))
		return zero
	}
	return v
}

// Int copies an int.
func (c *Copier) Int() int32 {
	return copyValue(c, c.src.ReadInt, c.dst.WriteInt)
}

// Real copies a real.
func (c *Copier) Real() float32 {
	return copyValue(c, c.src.ReadReal, c.dst.WriteReal)
}

// Byte copies a byte.
func (c *Copier) Byte() byte {
	return copyValue(c, c.src.ReadByte, c.dst.WriteByte)
}

// AsciiString copies an 8-bit string.
func (c *Copier) AsciiString() string {
	return copyValue(c, c.src.ReadAsciiString, c.dst.WriteAsciiString)
}

// UnicodeString copies a unicode string.
func (c *Copier) UnicodeString() string {
	return copyValue(c, c.src.ReadUnicodeString, c.dst.WriteUnicodeString)
}

// NameKey copies a name key.
func (c *Copier) NameKey() chunk.NameKey {
	return copyValue(c, c.src.ReadNameKey, c.dst.WriteNameKey)
}

// Dict copies a dict.
func (c *Copier) Dict() *chunk.Dict {
	return copyValue(c, c.src.ReadDict, c.dst.WriteDict)
}

// Bytes copies n raw bytes.
func (c *Copier) Bytes(n int) []byte {
	return copyValue(c, func() ([]byte, error) { return c.src.ReadBytes(n) }, c.dst.WriteBytes)
}

// Children copies every remaining nested chunk of the current chunk.
func (c *Copier) Children() error {
	if c.err != nil {
		return c.err
	}
	if err := c.copyLevel(); err != nil {
		c.fail(err)
	}
	return c.err
}

// copyLevel copies the chunks at the current level of src.
func (c *Copier) copyLevel() error {
	parent := ""
	if c.src.Depth() > 0 {
		parent = c.src.ChunkLabel()
	}

	for !c.src.AtEndOfStream() {
		if c.src.Depth() > 0 && c.src.AtEndOfChunk() {
			return nil
		}
		label, version, err := c.src.OpenChunk()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.dst.OpenChunk(label, version); err != nil {
			return err
		}
		if err := c.copyBody(label, parent, version); err != nil {
			return err
		}
		if err := c.src.CloseChunk(); err != nil {
			return err
		}
		if err := c.dst.CloseChunk(); err != nil {
			return err
		}
		c.stats.Chunks++
	}
	return nil
}

func (c *Copier) copyBody(label, parent string, version chunk.Version) error {
	layout, ok := c.schema.Lookup(label, parent)
	if !ok {
		if c.strict {
			return fmt.Errorf("%w: %q under %q", ErrNoLayout, label, parent)
		}
		return c.copyRaw(label)
	}

	if err := layout(c, version); err != nil {
		c.fail(err)
	}
	if c.err != nil {
		return fmt.Errorf("copying %q v%d: %w", label, version, c.err)
	}
	if !c.src.AtEndOfChunk() {
		return fmt.Errorf("%w: %q v%d", ErrTrailingData, label, version)
	}
	return nil
}

// copyRaw copies a chunk without a layout. A binary source hands over the
// whole body, nested chunks included; a JSON source hands over its hex
// items and then its children, which are converted on their own.
func (c *Copier) copyRaw(label string) error {
	c.stats.RawChunks++
	c.log.Debug("copying chunk without layout", zap.String("label", label))

	body, err := c.src.ReadRemainingBytes()
	if err != nil {
		return fmt.Errorf("copying %q raw: %w", label, err)
	}
	if len(body) > 0 {
		if err := c.dst.WriteBytes(body); err != nil {
			return err
		}
	}
	return c.copyLevel()
}
