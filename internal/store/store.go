package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Store is an abstract persistent key-value store used as a local cache
// for records that are expensive to recompute. The initial implementation
// uses bbolt; the interface allows swapping to another embedded engine
// without touching the rest of the codebase.
//
// Keys and values are raw byte sequences. Equality is byte-exact; no
// encoding is assumed. Fetch returns an independently owned copy, so
// callers may retain or mutate the result freely.
type Store interface {
	// Fetch returns the value stored under key. A genuine miss returns
	// ErrNotFound; any other error is an engine failure.
	Fetch(key []byte) ([]byte, error)

	// Store inserts key if absent or overwrites it in place. A failed
	// Store leaves the prior value (if any) unchanged.
	Store(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Close releases every resource held by the store, in reverse
	// acquisition order. It is best-effort: all release steps run even
	// when earlier ones report errors. Call exactly once.
	Close() error

	// Version identifies the backend engine. Static, no side effects.
	Version() string
}

// Walker is an optional extension for backends that can enumerate their
// records. Callers that need iteration type-assert for it.
type Walker interface {
	Walk(fn func(key, value []byte) error) error
}

// ErrNotFound reports a fetch miss. It is distinct from engine failures
// so callers can degrade a miss to a recompute without masking real errors.
var ErrNotFound = errors.New("key not found")

// Backend is one compiled-in store implementation.
type Backend struct {
	// Open opens or creates a store at path. On failure no resources
	// remain acquired and no handle is returned.
	Open func(path string) (Store, error)

	// Version identifies the engine without requiring an open handle.
	Version func() string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Backend)
)

// Register makes a backend selectable by name. Backends call this from
// their package init; registering the same name twice panics.
func Register(name string, b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("store: backend %q registered twice", name))
	}
	if b.Open == nil || b.Version == nil {
		panic(fmt.Sprintf("store: backend %q is incomplete", name))
	}
	registry[name] = b
}

// Open opens a store at path using the named backend.
func Open(backend, path string) (Store, error) {
	registryMu.RLock()
	b, ok := registry[backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q (have %v)", backend, Backends())
	}
	return b.Open(path)
}

// Version returns the engine identification string for the named backend.
func Version(backend string) (string, error) {
	registryMu.RLock()
	b, ok := registry[backend]
	registryMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown store backend %q (have %v)", backend, Backends())
	}
	return b.Version(), nil
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
