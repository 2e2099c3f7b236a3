package chunk

import (
	"errors"
	"sync"
)

// ErrUnknownNameKey is returned when a name key has no registered name.
var ErrUnknownNameKey = errors.New("unknown name key")

// NameKey is a process-level interned name used as a dict key.
// The zero key is invalid.
type NameKey uint32

// NameKeys translates between names and name keys. Dict keys written to a
// stream are stored by name, so the writer and the code that built the
// Dict must use the same NameKeys.
type NameKeys interface {
	NameToKey(name string) NameKey
	KeyToName(key NameKey) (string, bool)
}

// NameKeyTable is the default NameKeys implementation. It is safe for
// concurrent use.
type NameKeyTable struct {
	mu     sync.RWMutex
	byName map[string]NameKey
	names  []string
}

// NewNameKeyTable returns an empty table.
func NewNameKeyTable() *NameKeyTable {
	return &NameKeyTable{byName: make(map[string]NameKey)}
}

// NameToKey returns the key for name, creating it on first use.
func (t *NameKeyTable) NameToKey(name string) NameKey {
	t.mu.RLock()
	key, ok := t.byName[name]
	t.mu.RUnlock()
	if ok {
		return key
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if key, ok := t.byName[name]; ok {
		return key
	}
	t.names = append(t.names, name)
	key = NameKey(len(t.names))
	t.byName[name] = key
	return key
}

// KeyToName returns the name registered for key.
func (t *NameKeyTable) KeyToName(key NameKey) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if key == 0 || int(key) > len(t.names) {
		return "", false
	}
	return t.names[key-1], true
}
