package bolt

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lettera/internal/store"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + lockSuffix); err != nil {
		t.Fatalf("lock file should exist while open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file should exist: %v", err)
	}
	if _, err := os.Stat(path + lockSuffix); !os.IsNotExist(err) {
		t.Fatalf("lock file should be removed after close, stat err: %v", err)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("opening an empty path should fail")
	}
}

func TestOpenInvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Fatal("opening db in nonexistent dir should fail")
	}
}

func TestOpenInvalidPathNoLockFileLeft(t *testing.T) {
	// The lock file lives next to the db, so use a path whose lock file
	// is creatable but whose db open fails: a directory as the db path.
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir")
	if err := os.Mkdir(path, 0700); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("opening a directory as db should fail")
	}
	if _, err := os.Stat(path + lockSuffix); !os.IsNotExist(err) {
		t.Fatalf("failed open should unwind the lock file, stat err: %v", err)
	}
}

func TestFetchMissing(t *testing.T) {
	s := tempStore(t)
	_, err := s.Fetch([]byte("never-stored"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreFetchRoundTrip(t *testing.T) {
	s := tempStore(t)
	val := []byte("0123456789abcdefghijklmnopqrstuvwxyz!")
	if len(val) != 37 {
		t.Fatalf("test value should be 37 bytes, got %d", len(val))
	}
	if err := s.Store([]byte("msgid:1"), val); err != nil {
		t.Fatal(err)
	}
	got, err := s.Fetch([]byte("msgid:1"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, val) {
		t.Fatalf("fetched value differs: got %q", got)
	}
}

func TestFetchReturnsCopy(t *testing.T) {
	s := tempStore(t)
	if err := s.Store([]byte("k"), []byte("original")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Fetch([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	got[0] = 'X'
	again, err := s.Fetch([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != "original" {
		t.Fatal("mutating a fetched value should not affect the store")
	}
}

func TestStoreOverwrite(t *testing.T) {
	s := tempStore(t)
	if err := s.Store([]byte("k"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Store([]byte("k"), []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Fetch([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected v2 after overwrite, got %q", got)
	}
}

func TestDeleteAbsentKey(t *testing.T) {
	s := tempStore(t)
	if err := s.Delete([]byte("never-stored")); err != nil {
		t.Fatalf("deleting an absent key should succeed, got %v", err)
	}
	_, err := s.Fetch([]byte("never-stored"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after no-op delete, got %v", err)
	}
}

func TestDeleteThenReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store([]byte("msgid:1"), []byte("metadata")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete([]byte("msgid:1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// The delete must be durable across close/reopen.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen after close should succeed: %v", err)
	}
	defer s2.Close()
	_, err = s2.Fetch([]byte("msgid:1"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted key should stay absent after reopen, got %v", err)
	}
}

func TestSecondOpenFailsWhileLocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Open(path)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second open should fail with ErrLocked, got %v", err)
	}

	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("open after holder closed should succeed: %v", err)
	}
	s2.Close()
}

func TestFailedLockLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("second open should fail")
	}
	if _, err := os.Stat(path + lockSuffix); !os.IsNotExist(err) {
		t.Fatalf("failed open should not leave a lock file, stat err: %v", err)
	}

	// The holder's close tolerates the already-removed artifact.
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWalk(t *testing.T) {
	s := tempStore(t)
	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		if err := s.Store([]byte(k), []byte("val-"+k)); err != nil {
			t.Fatal(err)
		}
	}

	seen := make(map[string]string)
	err := s.Walk(func(k, v []byte) error {
		seen[string(k)] = string(v)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(seen))
	}
	for _, k := range keys {
		if seen[k] != "val-"+k {
			t.Fatalf("expected val-%s, got %q", k, seen[k])
		}
	}
}

func TestRegisteredBackend(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open("bolt", filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("opening via registry: %v", err)
	}
	defer s.Close()

	if _, ok := s.(store.Walker); !ok {
		t.Error("bolt backend should implement store.Walker")
	}
	if s.Version() == "" {
		t.Error("Version should not be empty")
	}

	v, err := store.Version("bolt")
	if err != nil {
		t.Fatal(err)
	}
	if v != s.Version() {
		t.Errorf("registry version %q differs from handle version %q", v, s.Version())
	}
}
