// Package hcache caches parsed message metadata so that reopening a
// large folder does not reparse every message. It sits on top of the
// pluggable store abstraction and treats every cache problem short of
// an engine failure as a miss.
package hcache

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"

	"lettera/internal/compress"
	"lettera/internal/logging"
	"lettera/internal/store"
)

// generation is the record schema version. Bump it when Entry changes
// incompatibly; stale records then read as misses and get rewritten.
const generation = 0x01

// KeySep joins folder and uid in record keys. Unit separator, so folder
// names containing printable characters cannot collide.
const KeySep = 0x1f

var logger = logging.For("hcache")

// Entry is the cached metadata for one message.
type Entry struct {
	MessageID string    `cbor:"mid"`
	Subject   string    `cbor:"subj,omitempty"`
	From      string    `cbor:"from,omitempty"`
	To        []string  `cbor:"to,omitempty"`
	Date      time.Time `cbor:"date,omitempty"`
	Size      int64     `cbor:"size,omitempty"`
	Read      bool      `cbor:"read,omitempty"`
	Answered  bool      `cbor:"answered,omitempty"`
	Flagged   bool      `cbor:"flagged,omitempty"`
}

// Cache wraps a store.Store with record encoding: CBOR body behind a
// one-byte generation tag, compressed by the zstd codec.
type Cache struct {
	st    store.Store
	codec *compress.Codec
}

// New builds a cache over an open store. level selects the compression
// level (0 disables compression).
func New(st store.Store, level int) (*Cache, error) {
	codec, err := compress.New(level)
	if err != nil {
		return nil, fmt.Errorf("creating value codec: %w", err)
	}
	return &Cache{st: st, codec: codec}, nil
}

// Open opens the named backend at path and builds a cache over it.
func Open(backend, path string, level int) (*Cache, error) {
	st, err := store.Open(backend, path)
	if err != nil {
		return nil, err
	}
	c, err := New(st, level)
	if err != nil {
		st.Close()
		return nil, err
	}
	return c, nil
}

// Key derives the record key for a message in a folder.
func Key(folder string, uid uint32) []byte {
	k := make([]byte, 0, len(folder)+12)
	k = append(k, folder...)
	k = append(k, KeySep)
	k = strconv.AppendUint(k, uint64(uid), 10)
	return k
}

// Get returns the cached entry, or (nil, false) on a miss. Stale or
// corrupt records are misses; engine failures are logged and degrade to
// misses rather than failing the caller, which recomputes anyway.
func (c *Cache) Get(folder string, uid uint32) (*Entry, bool) {
	raw, err := c.st.Fetch(Key(folder, uid))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		logger.Warn("cache fetch failed", "folder", folder, "uid", uid, "err", err)
		return nil, false
	}

	data, err := c.codec.Decode(raw)
	if err != nil {
		logger.Warn("undecodable cache record", "folder", folder, "uid", uid, "err", err)
		return nil, false
	}
	if len(data) == 0 || data[0] != generation {
		logger.Debug("stale cache record", "folder", folder, "uid", uid)
		return nil, false
	}

	var e Entry
	if err := cbor.Unmarshal(data[1:], &e); err != nil {
		logger.Warn("corrupt cache record", "folder", folder, "uid", uid, "err", err)
		return nil, false
	}
	return &e, true
}

// Put stores the entry for a message.
func (c *Cache) Put(folder string, uid uint32, e *Entry) error {
	body, err := cbor.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache record: %w", err)
	}
	data := make([]byte, 0, len(body)+1)
	data = append(data, generation)
	data = append(data, body...)

	val, err := c.codec.Encode(data)
	if err != nil {
		return fmt.Errorf("compressing cache record: %w", err)
	}
	return c.st.Store(Key(folder, uid), val)
}

// Delete drops the record for a message. Absent records are a no-op.
func (c *Cache) Delete(folder string, uid uint32) error {
	return c.st.Delete(Key(folder, uid))
}

// Walk visits every decodable entry. It requires a backend implementing
// store.Walker. Records of other generations are skipped.
func (c *Cache) Walk(fn func(key string, e *Entry) error) error {
	w, ok := c.st.(store.Walker)
	if !ok {
		return fmt.Errorf("backend %q does not support iteration", c.st.Version())
	}
	return w.Walk(func(key, value []byte) error {
		data, err := c.codec.Decode(value)
		if err != nil || len(data) == 0 || data[0] != generation {
			return nil
		}
		var e Entry
		if err := cbor.Unmarshal(data[1:], &e); err != nil {
			return nil
		}
		return fn(string(key), &e)
	})
}

// Version reports the underlying engine.
func (c *Cache) Version() string {
	return c.st.Version()
}

// Close releases the codec and the underlying store.
func (c *Cache) Close() error {
	c.codec.Close()
	return c.st.Close()
}
