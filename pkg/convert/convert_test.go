package convert

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/datachunk/pkg/chunk"
)

func buildFixture(t *testing.T, keys chunk.NameKeys) []byte {
	t.Helper()
	w := chunk.NewBinaryWriter(chunk.WithNameKeys(keys))

	d := chunk.NewDict()
	d.SetBool(keys.NameToKey("enabled"), true)
	d.SetInt(keys.NameToKey("count"), -3)
	d.SetReal(keys.NameToKey("scale"), 0.75)
	d.SetAsciiString(keys.NameToKey("name"), "Sk\xfdline")
	d.SetUnicodeString(keys.NameToKey("title"), "Σ map")

	require.NoError(t, w.OpenChunk("Container", 2))
	require.NoError(t, w.WriteByte(1))
	require.NoError(t, w.OpenChunk("Header", 4))
	require.NoError(t, w.WriteInt(12345))
	require.NoError(t, w.WriteAsciiString("Tournament Desert"))
	require.NoError(t, w.WriteDict(d))
	require.NoError(t, w.WriteNameKey(keys.NameToKey("title")))
	require.NoError(t, w.CloseChunk())
	require.NoError(t, w.OpenChunk("Blob", 1))
	require.NoError(t, w.WriteBytes(bytes.Repeat([]byte{0xA5, 0x00, 0x7E}, 20)))
	require.NoError(t, w.CloseChunk())
	require.NoError(t, w.CloseChunk())

	require.NoError(t, w.OpenChunk("Empty", 0))
	require.NoError(t, w.CloseChunk())

	data, err := w.Bytes()
	require.NoError(t, err)
	return data
}

func fixtureSchema() *Schema {
	s := NewSchema()
	s.Register("Container", "", func(c *Copier, _ chunk.Version) error {
		c.Byte()
		return c.Children()
	})
	s.Register("Header", AnyParent, func(c *Copier, version chunk.Version) error {
		c.Int()
		c.AsciiString()
		c.Dict()
		if version >= 4 {
			c.NameKey()
		}
		return c.Err()
	})
	return s
}

func toJSON(t *testing.T, binaryData []byte, schema *Schema) []byte {
	t.Helper()
	keys := chunk.NewNameKeyTable()
	src, err := chunk.NewBinaryReader(bytes.NewReader(binaryData), chunk.WithNameKeys(keys))
	require.NoError(t, err)
	dst := chunk.NewJSONWriter(chunk.WithNameKeys(keys))
	_, err = Convert(src, dst, schema, Options{})
	require.NoError(t, err)
	out, err := dst.Bytes()
	require.NoError(t, err)
	return out
}

func toBinary(t *testing.T, jsonData []byte, schema *Schema) []byte {
	t.Helper()
	keys := chunk.NewNameKeyTable()
	src, err := chunk.NewJSONReader(jsonData, chunk.WithNameKeys(keys))
	require.NoError(t, err)
	dst := chunk.NewBinaryWriter(chunk.WithNameKeys(keys))
	_, err = Convert(src, dst, schema, Options{})
	require.NoError(t, err)
	out, err := dst.Bytes()
	require.NoError(t, err)
	return out
}

func TestConvert_CrossBackendIdentity(t *testing.T) {
	original := buildFixture(t, chunk.NewNameKeyTable())

	t.Run("with layouts", func(t *testing.T) {
		jsonData := toJSON(t, original, fixtureSchema())
		assert.Contains(t, string(jsonData), `"Tournament Desert"`)
		assert.Equal(t, original, toBinary(t, jsonData, fixtureSchema()))
	})

	t.Run("raw only", func(t *testing.T) {
		jsonData := toJSON(t, original, nil)
		assert.NotContains(t, string(jsonData), `"Tournament Desert"`)
		assert.Equal(t, original, toBinary(t, jsonData, nil))
	})

	t.Run("layout json to raw binary", func(t *testing.T) {
		jsonData := toJSON(t, original, fixtureSchema())
		// Values written by layouts are not hex, so they need the layouts back.
		keys := chunk.NewNameKeyTable()
		src, err := chunk.NewJSONReader(jsonData, chunk.WithNameKeys(keys))
		require.NoError(t, err)
		_, err = Convert(src, chunk.NewBinaryWriter(chunk.WithNameKeys(keys)), nil, Options{})
		assert.ErrorIs(t, err, chunk.ErrTypeMismatch)
	})
}

func TestConvert_SpecialValuesCrossBackend(t *testing.T) {
	keys := chunk.NewNameKeyTable()
	w := chunk.NewBinaryWriter(chunk.WithNameKeys(keys))

	d := chunk.NewDict()
	d.SetReal(keys.NameToKey("angle"), math.Float32frombits(0x80000000))
	d.SetReal(keys.NameToKey("limit"), float32(math.Inf(-1)))
	d.SetUnicodeString(keys.NameToKey("label"), "x\xed\xa0\x80")

	require.NoError(t, w.OpenChunk("Values", 1))
	require.NoError(t, w.WriteReal(math.Float32frombits(0x7FC00000)))
	require.NoError(t, w.WriteReal(math.Float32frombits(0x80000000)))
	require.NoError(t, w.WriteUnicodeString("\xed\xb0\x80"))
	require.NoError(t, w.WriteDict(d))
	require.NoError(t, w.CloseChunk())
	original, err := w.Bytes()
	require.NoError(t, err)

	schema := NewSchema()
	schema.Register("Values", AnyParent, func(c *Copier, _ chunk.Version) error {
		c.Real()
		c.Real()
		c.UnicodeString()
		c.Dict()
		return c.Err()
	})

	jsonData := toJSON(t, original, schema)
	assert.Contains(t, string(jsonData), `"f32": "7FC00000"`)
	assert.Contains(t, string(jsonData), `"utf16le": "00DC"`)
	assert.Equal(t, original, toBinary(t, jsonData, schema))
}

func TestConvert_BinaryToBinary(t *testing.T) {
	original := buildFixture(t, chunk.NewNameKeyTable())

	keys := chunk.NewNameKeyTable()
	src, err := chunk.NewBinaryReader(bytes.NewReader(original), chunk.WithNameKeys(keys))
	require.NoError(t, err)
	dst := chunk.NewBinaryWriter(chunk.WithNameKeys(keys))

	stats, err := Convert(src, dst, fixtureSchema(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Chunks)
	assert.Equal(t, 2, stats.RawChunks)

	out, err := dst.Bytes()
	require.NoError(t, err)
	assert.Equal(t, original, out)
}

func TestConvert_Strict(t *testing.T) {
	original := buildFixture(t, chunk.NewNameKeyTable())
	keys := chunk.NewNameKeyTable()
	src, err := chunk.NewBinaryReader(bytes.NewReader(original), chunk.WithNameKeys(keys))
	require.NoError(t, err)

	_, err = Convert(src, chunk.NewJSONWriter(chunk.WithNameKeys(keys)), fixtureSchema(), Options{Strict: true})
	require.ErrorIs(t, err, ErrNoLayout)
	assert.Contains(t, err.Error(), "Blob")
}

func TestConvert_TrailingData(t *testing.T) {
	original := buildFixture(t, chunk.NewNameKeyTable())
	schema := fixtureSchema()
	schema.Register("Header", "Container", func(c *Copier, _ chunk.Version) error {
		c.Int()
		return c.Err()
	})

	keys := chunk.NewNameKeyTable()
	src, err := chunk.NewBinaryReader(bytes.NewReader(original), chunk.WithNameKeys(keys))
	require.NoError(t, err)

	_, err = Convert(src, chunk.NewBinaryWriter(chunk.WithNameKeys(keys)), schema, Options{})
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestConvert_LayoutReadsTooMuch(t *testing.T) {
	original := buildFixture(t, chunk.NewNameKeyTable())
	schema := NewSchema()
	schema.Register("Empty", "", func(c *Copier, _ chunk.Version) error {
		c.Int()
		return c.Err()
	})

	keys := chunk.NewNameKeyTable()
	src, err := chunk.NewBinaryReader(bytes.NewReader(original), chunk.WithNameKeys(keys))
	require.NoError(t, err)

	_, err = Convert(src, chunk.NewBinaryWriter(chunk.WithNameKeys(keys)), schema, Options{})
	assert.ErrorIs(t, err, chunk.ErrBudgetExceeded)
}

func TestSchema_Lookup(t *testing.T) {
	s := NewSchema()
	exact := func(*Copier, chunk.Version) error { return nil }
	wild := func(*Copier, chunk.Version) error { return nil }
	s.Register("Script", "ScriptGroup", exact)
	s.Register("Script", AnyParent, wild)

	_, ok := s.Lookup("Script", "ScriptGroup")
	assert.True(t, ok)
	_, ok = s.Lookup("Script", "ScriptList")
	assert.True(t, ok)
	_, ok = s.Lookup("Condition", "Script")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())

	var nilSchema *Schema
	_, ok = nilSchema.Lookup("Script", "")
	assert.False(t, ok)
}

func TestDump(t *testing.T) {
	keys := chunk.NewNameKeyTable()
	original := buildFixture(t, chunk.NewNameKeyTable())
	src, err := chunk.NewBinaryReader(bytes.NewReader(original), chunk.WithNameKeys(keys))
	require.NoError(t, err)

	var out strings.Builder
	_, err = Dump(&out, src, keys, fixtureSchema(), Options{})
	require.NoError(t, err)

	text := out.String()
	for _, want := range []string{
		"Container v2 {\n",
		"  byte 1\n",
		"  Header v4 {\n",
		"    int 12345\n",
		`    ascii "Tournament Desert"` + "\n",
		"    dict (5)\n",
		"      enabled:Bool = true\n",
		"      count:Int = -3\n",
		"      scale:Real = 0.75\n",
		"      title:UnicodeString = \"Σ map\"\n",
		"    namekey title\n",
		"  Blob v1 {\n",
		"    bytes [60] xxh:",
		"Empty v0 {\n}\n",
	} {
		assert.Contains(t, text, want)
	}
}

func TestDigest(t *testing.T) {
	a := Digest([]byte("chunk"))
	assert.Equal(t, a, Digest([]byte("chunk")))
	assert.NotEqual(t, a, Digest([]byte("chunks")))
	assert.NotEmpty(t, a)
}
