// Package store holds one replica's key -> (value, commit timestamp) map.
package store

import (
	"sync"

	"github.com/google/btree"
)

// Entry is one stored value together with the timestamp assigned by the
// leader when it was committed.
type Entry struct {
	Value     string
	Timestamp int64
}

type item struct {
	key   string
	entry Entry
}

func lessItem(a, b item) bool { return a.key < b.key }

const degree = 32

// Store is an ordered in-memory map guarded by a single mutex. The zero
// value is not usable; call New.
type Store struct {
	mu   sync.Mutex
	tree *btree.BTreeG[item]
}

func New() *Store {
	return &Store{tree: btree.NewG[item](degree, lessItem)}
}

// Read returns the entry for key and whether it exists.
func (s *Store) Read(key string) (Entry, bool) {
	s.mu.Lock()
	it, ok := s.tree.Get(item{key: key})
	s.mu.Unlock()
	return it.entry, ok
}

// Write overwrites the entry for key unconditionally.
func (s *Store) Write(key, value string, ts int64) {
	s.mu.Lock()
	s.tree.ReplaceOrInsert(item{key: key, entry: Entry{Value: value, Timestamp: ts}})
	s.mu.Unlock()
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// Keys returns all keys in ascending order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.tree.Len())
	s.tree.Ascend(func(it item) bool {
		keys = append(keys, it.key)
		return true
	})
	return keys
}

// Snapshot copies the whole map.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Entry, s.tree.Len())
	s.tree.Ascend(func(it item) bool {
		out[it.key] = it.entry
		return true
	})
	return out
}
