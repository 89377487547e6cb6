// Package checkpoints persists, per partition key, the time of the last
// successful synchronization pass.
//
// File format: one "KEY=RFC3339" line per key. Marks live in memory until
// Flush rewrites the file atomically, so a crash before Flush leaves the
// previous checkpoints in place and the partition is processed again.
package checkpoints

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Separator splits a key from its timestamp.
const Separator = "="

var (
	// ErrCorrupt is returned by Open when a line cannot be parsed.
	ErrCorrupt = errors.New("corrupt checkpoint file")
	// ErrBadKey is returned by Mark for keys that cannot be stored.
	ErrBadKey = errors.New("checkpoint key must be non-empty and contain neither '=' nor a line break")
)

// Store is a file-backed checkpoint table. It is safe for concurrent use.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string]time.Time
	dirty   bool
}

// Open loads the checkpoint file at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]time.Time)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoints %s: %w", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, Separator)
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %s:%d: %q", ErrCorrupt, path, line, text)
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrCorrupt, path, line, err)
		}
		s.entries[key] = t
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoints %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the checkpoint of key. ok is false when the key has never
// been marked; callers then fetch everything.
func (s *Store) Get(key string) (t time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok = s.entries[key]
	return t, ok
}

// Mark records t as the checkpoint of key. A checkpoint never moves
// backward: a t older than the current value is ignored.
func (s *Store) Mark(key string, t time.Time) error {
	if key == "" || strings.ContainsAny(key, Separator+"\r\n") {
		return fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	t = t.UTC().Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && !t.After(cur) {
		return nil
	}
	s.entries[key] = t
	s.dirty = true
	return nil
}

// Reset forgets the checkpoint of key so that the next pass is a full
// resynchronization.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.dirty = true
	}
}

// Keys returns the stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flush rewrites the file with the current checkpoints. The new content
// replaces the old one through a rename, never a partial write.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteString(Separator)
		buf.WriteString(s.entries[k].UTC().Format(time.RFC3339))
		buf.WriteByte('\n')
	}

	if err := writeFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write checkpoints %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
