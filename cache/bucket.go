package cache

import (
	"strings"

	"github.com/iov-one/msigproxy/errors"
	amino "github.com/tendermint/go-amino"
)

var cdc = amino.NewCodec()

// recordVersion is written with every value, so that an encoded record is
// never empty.
const recordVersion = 1

type record[T any] struct {
	Version uint32
	Value   T
}

// Bucket stores values of a single type under a name prefixed key space.
// T must be a struct that go-amino can encode.
type Bucket[T any] struct {
	name   string
	prefix []byte
	store  Store
}

// NewBucket returns a bucket called name. Names must be non empty and must
// not contain ':'.
func NewBucket[T any](store Store, name string) *Bucket[T] {
	if name == "" || strings.Contains(name, ":") {
		panic(errors.Wrapf(errors.ErrHuman, "invalid bucket name %q", name))
	}
	return &Bucket[T]{name: name, prefix: []byte(name + ":"), store: store}
}

// Name returns the name of the bucket.
func (b *Bucket[T]) Name() string {
	return b.name
}

func (b *Bucket[T]) dbKey(key string) []byte {
	return append(append([]byte(nil), b.prefix...), key...)
}

// Get loads the value stored under key. It returns false if there is none.
func (b *Bucket[T]) Get(key string) (T, bool, error) {
	var v T
	raw, err := b.store.Get(b.dbKey(key))
	switch {
	case errors.ErrNotFound.Is(err):
		return v, false, nil
	case err != nil:
		return v, false, err
	}
	var rec record[T]
	if err := cdc.UnmarshalBinaryBare(raw, &rec); err != nil {
		return v, false, errors.Wrapf(errors.ErrType, "decode %s:%s: %s", b.name, key, err)
	}
	if rec.Version != recordVersion {
		return v, false, errors.Wrapf(errors.ErrType, "%s:%s has version %d", b.name, key, rec.Version)
	}
	return rec.Value, true, nil
}

// Put stores v under key, replacing any previous value.
func (b *Bucket[T]) Put(key string, v T) error {
	if key == "" {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	raw, err := cdc.MarshalBinaryBare(record[T]{Version: recordVersion, Value: v})
	if err != nil {
		return errors.Wrapf(errors.ErrType, "encode %s:%s: %s", b.name, key, err)
	}
	return b.store.Set(b.dbKey(key), raw)
}

// Delete removes the value stored under key, if any.
func (b *Bucket[T]) Delete(key string) error {
	return b.store.Delete(b.dbKey(key))
}

// Keys returns all keys of the bucket in ascending order.
func (b *Bucket[T]) Keys() ([]string, error) {
	var keys []string
	err := b.store.Iterate(b.prefix, func(key, _ []byte) error {
		keys = append(keys, string(key[len(b.prefix):]))
		return nil
	})
	return keys, err
}
