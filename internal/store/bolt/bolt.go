package bolt

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	bolt "go.etcd.io/bbolt"

	"lettera/internal/logging"
	"lettera/internal/store"
)

// Store implements store.Store using bbolt (embedded B+ tree), guarded
// by a sidecar advisory lock so that two processes never open the same
// cache file at once.
type Store struct {
	db       *bolt.DB
	lock     *flock.Flock
	lockPath string
}

// lockSuffix derives the sidecar lock path from the store path. The lock
// file's content is irrelevant and never read; mutual exclusion rides on
// the advisory lock, not on the file's existence. A leftover lock file
// from a crashed session is harmless.
const lockSuffix = ".lock"

// createPageSize is applied only when the database file does not exist
// yet. Reopening an existing file never re-tunes its physical layout.
const createPageSize = 4096

var recordsBucket = []byte("records")

// ErrLocked reports that another session holds the store's advisory lock.
var ErrLocked = errors.New("store is locked by another session")

var logger = logging.For("store")

func init() {
	store.Register("bolt", store.Backend{
		Open: func(path string) (store.Store, error) {
			return Open(path)
		},
		Version: Version,
	})
}

// Open creates or opens a bolt-backed store at the given path.
//
// Acquisition is staged: lock file, advisory lock, then the database.
// Each acquired resource pushes a release action; if a later stage fails,
// the actions run in reverse order so the caller never observes a
// partially valid handle and nothing is released twice.
func Open(path string) (s *Store, err error) {
	if path == "" {
		return nil, errors.New("empty store path")
	}

	var undo []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}()

	lockPath := path + lockSuffix
	lk := flock.New(lockPath)
	// The artifact is removed on every unwind, locked or not; the unlock
	// action below runs before it.
	undo = append(undo, func() { os.Remove(lockPath) })

	locked, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}
	if !locked {
		logger.Debug("store busy", "path", path, "lock", lockPath)
		return nil, fmt.Errorf("opening %s: %w", path, ErrLocked)
	}
	undo = append(undo, func() { lk.Unlock() })

	var opts *bolt.Options
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		opts = &bolt.Options{PageSize: createPageSize}
	}

	db, err := bolt.Open(path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	undo = append(undo, func() { db.Close() })

	err = db.Update(func(tx *bolt.Tx) error {
		_, berr := tx.CreateBucketIfNotExists(recordsBucket)
		return berr
	})
	if err != nil {
		return nil, fmt.Errorf("creating records bucket: %w", err)
	}

	return &Store{db: db, lock: lk, lockPath: lockPath}, nil
}

func (s *Store) Fetch(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return store.ErrNotFound
		}
		v := b.Get(key)
		if v == nil {
			return store.ErrNotFound
		}
		// The slice is only valid inside the transaction.
		val = make([]byte, len(v))
		copy(val, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *Store) Store(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return fmt.Errorf("records bucket missing")
		}
		return b.Put(key, value)
	})
}

func (s *Store) Delete(key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
}

// Walk visits every record. Key and value slices are copies the callback
// may retain.
func (s *Store) Walk(fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			kc := make([]byte, len(k))
			copy(kc, k)
			vc := make([]byte, len(v))
			copy(vc, v)
			return fn(kc, vc)
		})
	})
}

// Close releases the database, the advisory lock, and the lock-file
// artifact, in that order. Every step runs even when an earlier one
// errors; the first error is returned.
func (s *Store) Close() error {
	var first error
	if err := s.db.Close(); err != nil {
		first = fmt.Errorf("closing bolt db: %w", err)
		logger.Warn("close error", "err", err)
	}
	if err := s.lock.Unlock(); err != nil && first == nil {
		first = fmt.Errorf("releasing lock: %w", err)
	}
	if err := os.Remove(s.lockPath); err != nil && !os.IsNotExist(err) && first == nil {
		first = fmt.Errorf("removing lock file: %w", err)
	}
	return first
}

func (s *Store) Version() string {
	return Version()
}

// Version identifies the engine. Callable without an open handle.
func Version() string {
	return "bbolt (go.etcd.io/bbolt)"
}
