package chunk

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// tocMagic tags the table of contents at the start of a binary stream.
const tocMagic = "CkMp"

// TOCEntry is a single name/id mapping.
type TOCEntry struct {
	Name string
	ID   TypeID
}

// TableOfContents interns chunk labels and name keys as dense integer ids.
// It is owned by a single reader or writer for the lifetime of one stream.
type TableOfContents struct {
	byName map[string]TypeID
	byID   map[TypeID]string
	nextID TypeID
	loaded bool
}

// NewTableOfContents returns an empty table. The first allocated id is 1.
func NewTableOfContents() *TableOfContents {
	return &TableOfContents{
		byName: make(map[string]TypeID),
		byID:   make(map[TypeID]string),
		nextID: 1,
	}
}

// Allocate returns the id of name, assigning the next free id on first use.
func (t *TableOfContents) Allocate(name string) TypeID {
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := t.nextID
	t.nextID++
	t.byName[name] = id
	t.byID[id] = name
	return id
}

// ID returns the id of name, or 0 if name is unknown.
func (t *TableOfContents) ID(name string) TypeID {
	return t.byName[name]
}

// Name returns the name for id, or "" if id is unknown.
func (t *TableOfContents) Name(id TypeID) string {
	return t.byID[id]
}

// Lookup returns the name for id and whether it exists.
func (t *TableOfContents) Lookup(id TypeID) (string, bool) {
	name, ok := t.byID[id]
	return name, ok
}

// Len returns the number of entries.
func (t *TableOfContents) Len() int {
	return len(t.byID)
}

// Loaded reports whether the table was populated by a successful Read.
func (t *TableOfContents) Loaded() bool {
	return t.loaded
}

// insert records an existing mapping and keeps later allocations from
// colliding with it.
func (t *TableOfContents) insert(name string, id TypeID) error {
	if id == 0 {
		return fmt.Errorf("%w: id 0 for %q", ErrCorruptStream, name)
	}
	if prev, ok := t.byID[id]; ok && prev != name {
		return fmt.Errorf("%w: id %d maps to both %q and %q", ErrCorruptStream, id, prev, name)
	}
	if prev, ok := t.byName[name]; ok && prev != id {
		return fmt.Errorf("%w: name %q maps to both %d and %d", ErrCorruptStream, name, prev, id)
	}
	t.byName[name] = id
	t.byID[id] = name
	if id >= t.nextID {
		t.nextID = id + 1
	}
	return nil
}

// Entries returns all mappings in ascending id order.
func (t *TableOfContents) Entries() []TOCEntry {
	entries := make([]TOCEntry, 0, len(t.byID))
	for id, name := range t.byID {
		entries = append(entries, TOCEntry{Name: name, ID: id})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// reset drops all mappings.
func (t *TableOfContents) reset() {
	clear(t.byName)
	clear(t.byID)
	t.nextID = 1
	t.loaded = false
}

// Size returns the encoded size of the table in bytes.
func (t *TableOfContents) Size() int {
	n := len(tocMagic) + 4
	for name := range t.byName {
		n += 1 + len(name) + 4
	}
	return n
}

// Write emits the magic tag, the entry count and every entry.
func (t *TableOfContents) Write(w io.Writer) error {
	buf := make([]byte, 0, t.Size())
	buf = append(buf, tocMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Len()))
	for _, e := range t.Entries() {
		if len(e.Name) > maxNameLen {
			return fmt.Errorf("%w: %q", ErrNameTooLong, e.Name)
		}
		buf = append(buf, byte(len(e.Name)))
		buf = append(buf, e.Name...)
		buf = binary.LittleEndian.AppendUint32(buf, e.ID)
	}
	_, err := w.Write(buf)
	return err
}

// Read replaces the table with the one encoded at the start of r.
// On any failure the table is left empty and the error wraps
// ErrInvalidHeader.
func (t *TableOfContents) Read(r io.Reader) error {
	t.reset()
	if err := t.read(r); err != nil {
		t.reset()
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	t.loaded = true
	return nil
}

func (t *TableOfContents) read(r io.Reader) error {
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return fmt.Errorf("%w: reading header", ErrTruncated)
	}
	if string(head[:4]) != tocMagic {
		return fmt.Errorf("bad magic %q", head[:4])
	}

	count := int32(binary.LittleEndian.Uint32(head[4:]))
	if count < 0 {
		return fmt.Errorf("%w: negative entry count %d", ErrCorruptStream, count)
	}

	var scratch [maxNameLen + 4]byte
	for i := int32(0); i < count; i++ {
		if _, err := io.ReadFull(r, scratch[:1]); err != nil {
			return fmt.Errorf("%w: reading entry %d", ErrTruncated, i)
		}
		n := int(scratch[0])
		if _, err := io.ReadFull(r, scratch[:n+4]); err != nil {
			return fmt.Errorf("%w: reading entry %d", ErrTruncated, i)
		}
		name := string(scratch[:n])
		id := binary.LittleEndian.Uint32(scratch[n:])
		if err := t.insert(name, id); err != nil {
			return err
		}
	}
	return nil
}
