package chunk

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"

	"github.com/Faultbox/datachunk/pkg/encoding"
)

// Reserved keys of a JSON chunk object.
const (
	keyLabel    = "label"
	keyVersion  = "version"
	keyChildren = "_children"
	keyItems    = "_items"
	keyChunks   = "chunks"
	keyTOC      = "toc"
)

// Keys of the tagged objects that carry values plain JSON cannot hold:
// reals that are NaN, infinite or negative zero as their IEEE bits, and
// unicode strings with unpaired surrogates as their UTF-16LE payload.
const (
	keyRealBits = "f32"
	keyUTF16    = "utf16le"
)

// tagged returns the payload of a single-key tagged object.
func tagged(v any, key string) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

func isReservedField(name string) bool {
	switch name {
	case keyLabel, keyVersion, keyChildren, keyItems:
		return true
	}
	return false
}

// DefaultJSONIndent is the indent used by JSONWriter unless overridden.
const DefaultJSONIndent = 2

// JSONWriter builds the JSON form of a chunk stream in memory.
//
// Positional writes append to the open chunk's "_items" array and read back
// in order through JSONReader exactly like the binary backend. The named
// Write*Field methods are JSON-only.
type JSONWriter struct {
	chunks []any
	stack  []map[string]any
	toc    *TableOfContents
	keys   NameKeys
	log    *zap.Logger
	indent int
}

var _ Sink = (*JSONWriter)(nil)

// NewJSONWriter returns an empty writer.
func NewJSONWriter(opts ...Option) *JSONWriter {
	o := buildOptions(opts)
	return &JSONWriter{
		chunks: []any{},
		toc:    NewTableOfContents(),
		keys:   o.keys,
		log:    o.log,
		indent: DefaultJSONIndent,
	}
}

// SetIndent sets the indent of the emitted document. Zero emits a single
// line.
func (w *JSONWriter) SetIndent(n int) {
	if n < 0 {
		n = 0
	}
	w.indent = n
}

// TOC returns the writer's table of contents.
func (w *JSONWriter) TOC() *TableOfContents {
	return w.toc
}

// AllocateID interns name in the table of contents.
func (w *JSONWriter) AllocateID(name string) TypeID {
	return w.toc.Allocate(name)
}

// Depth returns the number of open chunks.
func (w *JSONWriter) Depth() int {
	return len(w.stack)
}

func appendArray(obj map[string]any, key string, v any) {
	arr, _ := obj[key].([]any)
	obj[key] = append(arr, v)
}

// OpenChunk appends a new chunk object to the open chunk's children, or to
// the top-level chunk list.
func (w *JSONWriter) OpenChunk(label string, version Version) error {
	if len(label) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrNameTooLong, label)
	}
	w.toc.Allocate(label)

	obj := map[string]any{
		keyLabel:   label,
		keyVersion: int64(version),
	}
	if len(w.stack) == 0 {
		w.chunks = append(w.chunks, obj)
	} else {
		appendArray(w.stack[len(w.stack)-1], keyChildren, obj)
	}
	w.stack = append(w.stack, obj)
	return nil
}

// CloseChunk ends the innermost chunk.
func (w *JSONWriter) CloseChunk() error {
	if len(w.stack) == 0 {
		return fmt.Errorf("%w: close without open", ErrUnbalanced)
	}
	w.stack = w.stack[:len(w.stack)-1]
	return nil
}

func (w *JSONWriter) current() (map[string]any, error) {
	if len(w.stack) == 0 {
		return nil, fmt.Errorf("%w: write outside of a chunk", ErrNoOpenChunk)
	}
	return w.stack[len(w.stack)-1], nil
}

func (w *JSONWriter) addItem(v any) error {
	obj, err := w.current()
	if err != nil {
		return err
	}
	appendArray(obj, keyItems, v)
	return nil
}

// realValue widens v to the float64 with the same shortest decimal form,
// so 0.1 is emitted as 0.1 rather than its float64 expansion. NaN, the
// infinities and -0 have no JSON number and are emitted as their bits.
func realValue(v float32) any {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) || (f == 0 && math.Signbit(f)) {
		return map[string]any{keyRealBits: fmt.Sprintf("%08X", math.Float32bits(v))}
	}
	f, err := strconv.ParseFloat(strconv.FormatFloat(f, 'g', -1, 32), 64)
	if err != nil {
		return float64(v)
	}
	return f
}

func asciiValue(s string) (string, error) {
	if len(s) > maxStringLen {
		return "", fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	return encoding.Latin1ToUTF8([]byte(s)), nil
}

// unicodeValue returns s as a JSON string, or as its UTF-16LE payload when
// s is not valid UTF-8 (an unpaired surrogate decoded from the binary form).
func unicodeValue(s string) (any, error) {
	data, units, err := encoding.UTF8ToUTF16LE(s)
	if err != nil {
		return nil, err
	}
	if units > maxStringLen {
		return nil, fmt.Errorf("%w: %d utf-16 units", ErrStringTooLong, units)
	}
	if !utf8.ValidString(s) {
		return map[string]any{keyUTF16: hexValue(data)}, nil
	}
	return s, nil
}

// WriteInt appends an int item.
func (w *JSONWriter) WriteInt(v int32) error {
	return w.addItem(int64(v))
}

// WriteReal appends a real item.
func (w *JSONWriter) WriteReal(v float32) error {
	return w.addItem(realValue(v))
}

// WriteByte appends a byte item.
func (w *JSONWriter) WriteByte(v byte) error {
	return w.addItem(int64(v))
}

// WriteAsciiString appends an 8-bit string item.
func (w *JSONWriter) WriteAsciiString(s string) error {
	v, err := asciiValue(s)
	if err != nil {
		return err
	}
	return w.addItem(v)
}

// WriteUnicodeString appends a unicode string item.
func (w *JSONWriter) WriteUnicodeString(s string) error {
	v, err := unicodeValue(s)
	if err != nil {
		return err
	}
	return w.addItem(v)
}

// WriteBytes appends p as a single upper-case hex item.
func (w *JSONWriter) WriteBytes(p []byte) error {
	return w.addItem(hexValue(p))
}

func hexValue(p []byte) string {
	return strings.ToUpper(hex.EncodeToString(p))
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad hex item: %w", ErrTypeMismatch, err)
	}
	return b, nil
}

// WriteNameKey appends key as a packed int item.
func (w *JSONWriter) WriteNameKey(key NameKey) error {
	if _, err := w.current(); err != nil {
		return err
	}
	return writeNameKey(w, w.keys, w.toc, key)
}

// WriteDict appends the pair count followed by every packed key and value.
func (w *JSONWriter) WriteDict(d *Dict) error {
	if _, err := w.current(); err != nil {
		return err
	}
	if d.Len() > maxStringLen {
		return fmt.Errorf("dict of %d pairs exceeds pair count field", d.Len())
	}
	if err := w.WriteInt(int32(d.Len())); err != nil {
		return err
	}
	return writeDictPairs(w, w.keys, w.toc, d)
}

func (w *JSONWriter) setField(name string, v any) error {
	if isReservedField(name) {
		return fmt.Errorf("%w: %q", ErrReservedField, name)
	}
	obj, err := w.current()
	if err != nil {
		return err
	}
	obj[name] = v
	return nil
}

// WriteIntField stores v under name on the open chunk.
func (w *JSONWriter) WriteIntField(name string, v int32) error {
	return w.setField(name, int64(v))
}

// WriteRealField stores v under name on the open chunk.
func (w *JSONWriter) WriteRealField(name string, v float32) error {
	return w.setField(name, realValue(v))
}

// WriteByteField stores v under name on the open chunk.
func (w *JSONWriter) WriteByteField(name string, v byte) error {
	return w.setField(name, int64(v))
}

// WriteBoolField stores v under name on the open chunk.
func (w *JSONWriter) WriteBoolField(name string, v bool) error {
	return w.setField(name, v)
}

// WriteAsciiStringField stores s under name on the open chunk.
func (w *JSONWriter) WriteAsciiStringField(name, s string) error {
	v, err := asciiValue(s)
	if err != nil {
		return err
	}
	return w.setField(name, v)
}

// WriteUnicodeStringField stores s under name on the open chunk.
func (w *JSONWriter) WriteUnicodeStringField(name, s string) error {
	v, err := unicodeValue(s)
	if err != nil {
		return err
	}
	return w.setField(name, v)
}

// WriteBytesField stores p as hex under name on the open chunk.
func (w *JSONWriter) WriteBytesField(name string, p []byte) error {
	return w.setField(name, hexValue(p))
}

// WriteNameKeyField stores the name of key under name on the open chunk.
func (w *JSONWriter) WriteNameKeyField(name string, key NameKey) error {
	s, ok := w.keys.KeyToName(key)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNameKey, key)
	}
	return w.setField(name, s)
}

// WriteDictField stores d under name as a plain object keyed by pair name.
func (w *JSONWriter) WriteDictField(name string, d *Dict) error {
	obj := make(map[string]any, d.Len())
	for _, p := range d.pairs {
		key, ok := w.keys.KeyToName(p.Key)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownNameKey, p.Key)
		}
		switch p.Type {
		case DictBool:
			obj[key] = p.Bool
		case DictInt:
			obj[key] = int64(p.Int)
		case DictReal:
			obj[key] = realValue(p.Real)
		case DictAsciiString:
			obj[key] = encoding.Latin1ToUTF8([]byte(p.String))
		case DictUnicodeString:
			v, err := unicodeValue(p.String)
			if err != nil {
				return err
			}
			obj[key] = v
		default:
			return fmt.Errorf("%w: %s", ErrUnknownDictType, p.Type)
		}
	}
	return w.setField(name, obj)
}

// Tree returns the document as generic JSON values.
func (w *JSONWriter) Tree() map[string]any {
	root := map[string]any{keyChunks: w.chunks}
	if w.toc.Len() > 0 {
		toc := make(map[string]any, w.toc.Len())
		for _, e := range w.toc.Entries() {
			toc[strconv.FormatUint(uint64(e.ID), 10)] = e.Name
		}
		root[keyTOC] = toc
	}
	return root
}

// Bytes returns the finished document. All chunks must be closed.
func (w *JSONWriter) Bytes() ([]byte, error) {
	if len(w.stack) > 0 {
		return nil, fmt.Errorf("%w: %d chunk(s) still open, innermost %q",
			ErrUnbalanced, len(w.stack), w.stack[len(w.stack)-1][keyLabel])
	}
	doc := oj.JSON(w.Tree(), &ojg.Options{Indent: w.indent, Sort: true})
	return []byte(doc), nil
}

// WriteTo writes the finished document to dst.
func (w *JSONWriter) WriteTo(dst io.Writer) (int64, error) {
	data, err := w.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(data)
	w.log.Debug("json chunk document written",
		zap.Int("chunks", len(w.chunks)),
		zap.Int("bytes", n))
	return int64(n), err
}
