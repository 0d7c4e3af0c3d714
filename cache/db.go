package cache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/iov-one/msigproxy/errors"
	dbm "github.com/tendermint/tendermint/libs/db"
)

// DBStore persists entries in a tendermint database.
type DBStore struct {
	db dbm.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore returns a store backed by db. The store takes ownership of db
// and closes it on Close.
func NewDBStore(db dbm.DB) *DBStore {
	return &DBStore{db: db}
}

// OpenLevelDB opens, creating if needed, a goleveldb database at dir. The
// directory name must end with ".db".
func OpenLevelDB(dir string) (*DBStore, error) {
	dir = strings.TrimSuffix(filepath.Clean(dir), string(filepath.Separator))
	if !strings.HasSuffix(dir, ".db") {
		return nil, errors.Wrapf(errors.ErrInput, "database directory %q must end with .db", dir)
	}
	parent, name := filepath.Split(strings.TrimSuffix(dir, ".db"))
	if parent == "" {
		parent = "."
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}
	db, err := dbm.NewGoLevelDB(name, parent)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInternal, "open %s: %s", dir, err)
	}
	return NewDBStore(db), nil
}

func (s *DBStore) Get(key []byte) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if !s.db.Has(key) {
		return nil, errors.Wrapf(errors.ErrNotFound, "key %X", key)
	}
	return clone(s.db.Get(key)), nil
}

func (s *DBStore) Set(key, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	s.db.Set(key, value)
	return nil
}

func (s *DBStore) Delete(key []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.db.Delete(key)
	return nil
}

func (s *DBStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	var start []byte
	if len(prefix) > 0 {
		start = prefix
	}
	it := s.db.Iterator(start, prefixEnd(prefix))
	var found []entry
	for ; it.Valid(); it.Next() {
		found = append(found, entry{key: clone(it.Key()), value: clone(it.Value())})
	}
	it.Close()

	for _, e := range found {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (s *DBStore) Close() error {
	s.db.Close()
	return nil
}
