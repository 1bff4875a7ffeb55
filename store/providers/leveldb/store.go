package leveldb

import (
	"fmt"

	uuid "github.com/kthomas/go.uuid"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDBStore persists the serialized ledger record in a leveldb database;
// an empty path opens in-memory storage, which is useful in tests
type LevelDBStore struct {
	db  *leveldb.DB
	key []byte
}

// InitLevelDBStore opens or creates a leveldb database at the given path
func InitLevelDBStore(path string, id uuid.UUID) (*LevelDBStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database at %s; %s", path, err.Error())
	}

	return &LevelDBStore{
		db:  db,
		key: []byte(fmt.Sprintf("snapshot.%s", id.String())),
	}, nil
}

// Save writes the record under the snapshot key
func (s *LevelDBStore) Save(record []byte) error {
	return s.db.Put(s.key, record, nil)
}

// Load reads the last committed record, if any
func (s *LevelDBStore) Load() ([]byte, bool, error) {
	record, err := s.db.Get(s.key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot %s; %s", string(s.key), err.Error())
	}
	return record, true, nil
}

// Close releases the underlying database handle
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
