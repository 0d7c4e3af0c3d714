package cache

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/iov-one/msigproxy/errors"
)

// DefaultFreeListSize is the number of released btree nodes kept for reuse.
const DefaultFreeListSize = btree.DefaultFreeListSize

// MemStore keeps entries in an ordered in-memory tree. Nothing is
// persisted. It is safe for concurrent use.
type MemStore struct {
	mu sync.RWMutex
	bt *btree.BTree
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	free := btree.NewFreeList(DefaultFreeListSize)
	return &MemStore{bt: btree.NewWithFreeList(2, free)}
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := m.bt.Get(entry{key: key})
	if res == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "key %X", key)
	}
	return clone(res.(entry).value), nil
}

func (m *MemStore) Set(key, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	m.bt.ReplaceOrInsert(entry{key: clone(key), value: clone(value)})
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Delete(key []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	m.bt.Delete(entry{key: key})
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	// Collect first, so that fn may write to the store.
	var found []entry
	m.mu.RLock()
	m.bt.AscendGreaterOrEqual(entry{key: prefix}, func(i btree.Item) bool {
		e := i.(entry)
		if !bytes.HasPrefix(e.key, prefix) {
			return false
		}
		found = append(found, e)
		return true
	})
	m.mu.RUnlock()

	for _, e := range found {
		if err := fn(clone(e.key), clone(e.value)); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bt.Len()
}

// Close releases all entries.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.bt.DeleteMin() != nil {
	}
	return nil
}

// entry is ordered by key only, so that a key-only entry can be used for
// lookups.
type entry struct {
	key   []byte
	value []byte
}

var _ btree.Item = entry{}

func (e entry) Less(item btree.Item) bool {
	return bytes.Compare(e.key, item.(entry).key) < 0
}
