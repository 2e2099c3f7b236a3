package chunk

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"

	"github.com/Faultbox/datachunk/pkg/encoding"
)

// jsonFrame is an open chunk on the JSON read side.
type jsonFrame struct {
	obj        map[string]any
	label      string
	version    Version
	children   []any
	items      []any
	childIndex int
	itemIndex  int
}

// JSONReader reads the JSON form of a chunk stream.
type JSONReader struct {
	chunks   []any
	next     int // next top-level chunk
	stack    []jsonFrame
	toc      *TableOfContents
	registry Registry
	keys     NameKeys
	log      *zap.Logger
}

var _ Source = (*JSONReader)(nil)

// NewJSONReader parses data and positions the reader before the first
// top-level chunk. A document that is not an object with a "chunks" array
// yields an error wrapping ErrInvalidHeader.
func NewJSONReader(data []byte, opts ...Option) (*JSONReader, error) {
	o := buildOptions(opts)

	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document is not an object", ErrInvalidHeader)
	}
	chunks, ok := root[keyChunks].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q array", ErrInvalidHeader, keyChunks)
	}

	toc := NewTableOfContents()
	if raw, present := root[keyTOC]; present {
		if err := loadJSONTOC(toc, raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
		}
	}
	toc.loaded = true

	o.log.Debug("json chunk document loaded",
		zap.Int("chunks", len(chunks)),
		zap.Int("toc_entries", toc.Len()))

	return &JSONReader{
		chunks: chunks,
		toc:    toc,
		keys:   o.keys,
		log:    o.log,
	}, nil
}

func loadJSONTOC(toc *TableOfContents, raw any) error {
	m, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%q is not an object", keyTOC)
	}
	for key, v := range m {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return fmt.Errorf("toc id %q: %w", key, err)
		}
		name, ok := v.(string)
		if !ok {
			return fmt.Errorf("toc id %q: name is %T, not a string", key, v)
		}
		if err := toc.insert(name, TypeID(id)); err != nil {
			return err
		}
	}
	return nil
}

// TOC returns the table of contents loaded from the document.
func (r *JSONReader) TOC() *TableOfContents {
	return r.toc
}

// Depth returns the number of open chunks.
func (r *JSONReader) Depth() int {
	return len(r.stack)
}

func (r *JSONReader) top() *jsonFrame {
	if len(r.stack) == 0 {
		return nil
	}
	return &r.stack[len(r.stack)-1]
}

// ChunkLabel returns the label of the innermost open chunk.
func (r *JSONReader) ChunkLabel() string {
	if f := r.top(); f != nil {
		return f.label
	}
	return ""
}

// ChunkVersion returns the version of the innermost open chunk.
func (r *JSONReader) ChunkVersion() Version {
	if f := r.top(); f != nil {
		return f.version
	}
	return 0
}

// ChunkDataSize returns the number of children and items of the innermost
// open chunk.
func (r *JSONReader) ChunkDataSize() uint32 {
	if f := r.top(); f != nil {
		return uint32(len(f.children) + len(f.items))
	}
	return 0
}

// ParentLabel returns the label of the chunk enclosing the innermost open
// chunk, or "" at top level.
func (r *JSONReader) ParentLabel() string {
	if len(r.stack) < 2 {
		return ""
	}
	return r.stack[len(r.stack)-2].label
}

// AtEndOfStream reports whether every top-level chunk was visited and no
// chunk is open.
func (r *JSONReader) AtEndOfStream() bool {
	return len(r.stack) == 0 && r.next >= len(r.chunks)
}

// AtEndOfChunk reports whether the innermost chunk has no unread children
// or items.
func (r *JSONReader) AtEndOfChunk() bool {
	f := r.top()
	return f == nil || (f.childIndex >= len(f.children) && f.itemIndex >= len(f.items))
}

// OpenChunk enters the next chunk object at the current level. It returns
// io.EOF when the current level has no further chunks.
func (r *JSONReader) OpenChunk() (string, Version, error) {
	var raw any
	if f := r.top(); f == nil {
		if r.next >= len(r.chunks) {
			return "", 0, io.EOF
		}
		raw = r.chunks[r.next]
		r.next++
	} else {
		if f.childIndex >= len(f.children) {
			return "", 0, io.EOF
		}
		raw = f.children[f.childIndex]
		f.childIndex++
	}

	frame, err := newJSONFrame(raw)
	if err != nil {
		return "", 0, err
	}
	r.stack = append(r.stack, frame)
	return frame.label, frame.version, nil
}

func newJSONFrame(raw any) (jsonFrame, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return jsonFrame{}, fmt.Errorf("%w: chunk is %T, not an object", ErrCorruptStream, raw)
	}
	label, ok := obj[keyLabel].(string)
	if !ok || label == "" {
		return jsonFrame{}, fmt.Errorf("%w: chunk without %q", ErrCorruptStream, keyLabel)
	}
	f := jsonFrame{obj: obj, label: label}

	if v, present := obj[keyVersion]; present {
		n, ok := v.(int64)
		if !ok || n < 0 || n > math.MaxUint16 {
			return jsonFrame{}, fmt.Errorf("%w: chunk %q has bad version %v", ErrCorruptStream, label, v)
		}
		f.version = Version(n)
	}
	if v, present := obj[keyChildren]; present {
		if f.children, ok = v.([]any); !ok {
			return jsonFrame{}, fmt.Errorf("%w: chunk %q: %q is not an array", ErrCorruptStream, label, keyChildren)
		}
	}
	if v, present := obj[keyItems]; present {
		if f.items, ok = v.([]any); !ok {
			return jsonFrame{}, fmt.Errorf("%w: chunk %q: %q is not an array", ErrCorruptStream, label, keyItems)
		}
	}
	return f, nil
}

// CloseChunk pops the innermost chunk. Unread children and items are
// ignored.
func (r *JSONReader) CloseChunk() error {
	f := r.top()
	if f == nil {
		return fmt.Errorf("%w: close without open", ErrUnbalanced)
	}
	if left := len(f.children) - f.childIndex + len(f.items) - f.itemIndex; left > 0 {
		r.log.Debug("skipped chunk remainder",
			zap.String("label", f.label),
			zap.Int("entries", left))
	}
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

// Reset closes every open chunk and rewinds to the first top-level chunk.
func (r *JSONReader) Reset() error {
	r.stack = r.stack[:0]
	r.next = 0
	return nil
}

// peekItem returns the next positional item of the innermost chunk without
// consuming it.
func (r *JSONReader) peekItem() (*jsonFrame, any, error) {
	f := r.top()
	if f == nil {
		return nil, nil, fmt.Errorf("%w: read outside of a chunk", ErrNoOpenChunk)
	}
	if f.itemIndex >= len(f.items) {
		return nil, nil, fmt.Errorf("%w: %q has no item %d", ErrBudgetExceeded, f.label, f.itemIndex)
	}
	return f, f.items[f.itemIndex], nil
}

// readItem converts the next item with conv and consumes it on success.
func readItem[T any](r *JSONReader, conv func(any) (T, error)) (T, error) {
	var zero T
	f, v, err := r.peekItem()
	if err != nil {
		return zero, err
	}
	out, err := conv(v)
	if err != nil {
		return zero, fmt.Errorf("%q item %d: %w", f.label, f.itemIndex, err)
	}
	f.itemIndex++
	return out, nil
}

func mismatch(want string, v any) error {
	return fmt.Errorf("%w: want %s, have %T", ErrTypeMismatch, want, v)
}

func toInt(v any) (int32, error) {
	switch n := v.(type) {
	case int64:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %d overflows int", ErrTypeMismatch, n)
		}
		return int32(n), nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %v is not an int", ErrTypeMismatch, n)
		}
		return int32(n), nil
	}
	return 0, mismatch("int", v)
}

func toReal(v any) (float32, error) {
	switch n := v.(type) {
	case float64:
		return float32(n), nil
	case int64:
		return float32(n), nil
	}
	if s, ok := tagged(v, keyRealBits); ok {
		bits, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: bad real bits %q", ErrTypeMismatch, s)
		}
		return math.Float32frombits(uint32(bits)), nil
	}
	return 0, mismatch("real", v)
}

func toByte(v any) (byte, error) {
	switch n := v.(type) {
	case int64:
		if n < 0 || n > math.MaxUint8 {
			return 0, fmt.Errorf("%w: %d overflows byte", ErrTypeMismatch, n)
		}
		return byte(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, mismatch("byte", v)
}

func toBool(v any) (bool, error) {
	switch n := v.(type) {
	case bool:
		return n, nil
	case int64:
		return n != 0, nil
	}
	return false, mismatch("bool", v)
}

func toAscii(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", mismatch("string", v)
	}
	b, err := encoding.UTF8ToLatin1(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTypeMismatch, err)
	}
	return string(b), nil
}

func toUnicode(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	if h, ok := tagged(v, keyUTF16); ok {
		data, err := decodeHex(h)
		if err != nil {
			return "", err
		}
		s, err := encoding.UTF16LEToUTF8(data)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrTypeMismatch, err)
		}
		return s, nil
	}
	return "", mismatch("string", v)
}

func toBytes(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, mismatch("hex string", v)
	}
	return decodeHex(s)
}

// ReadInt reads an int item.
func (r *JSONReader) ReadInt() (int32, error) {
	return readItem(r, toInt)
}

// ReadReal reads a real item.
func (r *JSONReader) ReadReal() (float32, error) {
	return readItem(r, toReal)
}

// ReadByte reads a byte item.
func (r *JSONReader) ReadByte() (byte, error) {
	return readItem(r, toByte)
}

// ReadAsciiString reads an 8-bit string item.
func (r *JSONReader) ReadAsciiString() (string, error) {
	return readItem(r, toAscii)
}

// ReadUnicodeString reads a unicode string item.
func (r *JSONReader) ReadUnicodeString() (string, error) {
	return readItem(r, toUnicode)
}

// ReadBytes reads a hex item that must decode to exactly n bytes.
func (r *JSONReader) ReadBytes(n int) ([]byte, error) {
	return readItem(r, func(v any) ([]byte, error) {
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) != n {
			return nil, fmt.Errorf("%w: want %d bytes, item holds %d", ErrTypeMismatch, n, len(b))
		}
		return b, nil
	})
}

// ReadRemainingBytes concatenates every unread item of the innermost chunk.
// Each of them must be a hex string.
func (r *JSONReader) ReadRemainingBytes() ([]byte, error) {
	f := r.top()
	if f == nil {
		return nil, fmt.Errorf("%w: read outside of a chunk", ErrNoOpenChunk)
	}
	out := []byte{}
	for f.itemIndex < len(f.items) {
		b, err := readItem(r, toBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// ReadNameKey reads a packed name key item. Ids missing from the document's
// table of contents resolve to their decimal form.
func (r *JSONReader) ReadNameKey() (NameKey, error) {
	return readNameKey(r, r.keys, decimalResolver(r.toc))
}

// ReadDict reads a pair count item followed by the packed pairs.
func (r *JSONReader) ReadDict() (*Dict, error) {
	n, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxStringLen {
		return nil, fmt.Errorf("%w: dict pair count %d", ErrCorruptStream, n)
	}
	return readDictPairs(r, r.keys, decimalResolver(r.toc), int(n))
}

// HasField reports whether the innermost chunk carries a named field.
func (r *JSONReader) HasField(name string) bool {
	f := r.top()
	if f == nil || isReservedField(name) {
		return false
	}
	_, ok := f.obj[name]
	return ok
}

// FieldNames returns the named fields of the innermost chunk in sorted
// order.
func (r *JSONReader) FieldNames() []string {
	f := r.top()
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.obj))
	for k := range f.obj {
		if !isReservedField(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func readField[T any](r *JSONReader, name string, conv func(any) (T, error)) (T, error) {
	var zero T
	if isReservedField(name) {
		return zero, fmt.Errorf("%w: %q", ErrReservedField, name)
	}
	f := r.top()
	if f == nil {
		return zero, fmt.Errorf("%w: read outside of a chunk", ErrNoOpenChunk)
	}
	v, ok := f.obj[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q in %q", ErrFieldNotFound, name, f.label)
	}
	out, err := conv(v)
	if err != nil {
		return zero, fmt.Errorf("field %q of %q: %w", name, f.label, err)
	}
	return out, nil
}

// ReadIntField reads the named int field of the innermost chunk.
func (r *JSONReader) ReadIntField(name string) (int32, error) {
	return readField(r, name, toInt)
}

// ReadRealField reads the named real field of the innermost chunk.
func (r *JSONReader) ReadRealField(name string) (float32, error) {
	return readField(r, name, toReal)
}

// ReadByteField reads the named byte field of the innermost chunk.
func (r *JSONReader) ReadByteField(name string) (byte, error) {
	return readField(r, name, toByte)
}

// ReadBoolField reads the named bool field of the innermost chunk.
func (r *JSONReader) ReadBoolField(name string) (bool, error) {
	return readField(r, name, toBool)
}

// ReadAsciiStringField reads the named 8-bit string field.
func (r *JSONReader) ReadAsciiStringField(name string) (string, error) {
	return readField(r, name, toAscii)
}

// ReadUnicodeStringField reads the named unicode string field.
func (r *JSONReader) ReadUnicodeStringField(name string) (string, error) {
	return readField(r, name, toUnicode)
}

// ReadBytesField reads the named hex field.
func (r *JSONReader) ReadBytesField(name string) ([]byte, error) {
	return readField(r, name, toBytes)
}

// ReadNameKeyField reads the named field as a name and returns its key.
func (r *JSONReader) ReadNameKeyField(name string) (NameKey, error) {
	s, err := readField(r, name, toUnicode)
	if err != nil {
		return 0, err
	}
	return r.keys.NameToKey(s), nil
}

// ReadDictField reads a named object field as a Dict. Pair types follow
// the JSON values: strings that fit Latin-1 become ascii strings, other
// strings unicode strings. Pairs are ordered by name.
func (r *JSONReader) ReadDictField(name string) (*Dict, error) {
	obj, err := readField(r, name, func(v any) (map[string]any, error) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch("object", v)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)

	d := NewDict()
	for _, k := range names {
		key := r.keys.NameToKey(k)
		switch v := obj[k].(type) {
		case bool:
			d.SetBool(key, v)
		case int64:
			n, err := toInt(v)
			if err != nil {
				return nil, fmt.Errorf("dict field %q pair %q: %w", name, k, err)
			}
			d.SetInt(key, n)
		case float64:
			d.SetReal(key, float32(v))
		case string:
			if encoding.IsLatin1(v) {
				b, _ := encoding.UTF8ToLatin1(v)
				d.SetAsciiString(key, string(b))
			} else {
				d.SetUnicodeString(key, v)
			}
		case map[string]any:
			if _, ok := tagged(v, keyRealBits); ok {
				f, err := toReal(v)
				if err != nil {
					return nil, fmt.Errorf("dict field %q pair %q: %w", name, k, err)
				}
				d.SetReal(key, f)
				continue
			}
			s, err := toUnicode(v)
			if err != nil {
				return nil, fmt.Errorf("dict field %q pair %q: %w", name, k, mismatch("scalar", v))
			}
			d.SetUnicodeString(key, s)
		default:
			return nil, fmt.Errorf("dict field %q pair %q: %w", name, k, mismatch("scalar", v))
		}
	}
	return d, nil
}

// RegisterParser adds a callback for chunks labeled label directly inside
// chunks labeled parentLabel ("" for top level).
func (r *JSONReader) RegisterParser(label, parentLabel string, fn ParserFunc, userData any) error {
	return r.registry.Register(label, parentLabel, fn, userData)
}

// Parse walks the chunks at the current level and dispatches them to the
// registered parsers.
func (r *JSONReader) Parse(userData any) error {
	return parse(r, &r.registry, userData, r.log)
}
