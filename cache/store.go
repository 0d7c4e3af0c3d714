/*
Package cache keeps the results of slow lookups, such as group index queries,
between sessions.

A Store is a flat key value store with last write wins semantics. Entries
never expire; a newer lookup overwrites an older one. Typed values are
serialized with go-amino and kept in named buckets, see Bucket.
*/
package cache

import (
	"github.com/iov-one/msigproxy/errors"
)

// Store is a key value store. Keys and values are never modified after
// being passed in or returned.
type Store interface {
	// Get returns ErrNotFound if no value is stored under key.
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate calls fn for every key starting with prefix, in ascending
	// order. Iteration stops at the first error returned by fn.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

func validKey(key []byte) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	return nil
}

// prefixEnd returns the first key that is greater than every key starting
// with prefix, or nil if there is no such key.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
