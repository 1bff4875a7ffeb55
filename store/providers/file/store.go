package file

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the serialized ledger record as a single JSON file,
// written atomically via a temp file and rename
type FileStore struct {
	path string
}

// InitFileStore initializes a file snapshot provider at the given path
func InitFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the record durably; the containing directory is created on demand
func (s *FileStore) Save(record []byte) error {
	dir := filepath.Dir(s.path)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create snapshot directory %s; %s", dir, err.Error())
	}

	tmp := fmt.Sprintf("%s.tmp", s.path)
	err = os.WriteFile(tmp, record, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write snapshot %s; %s", tmp, err.Error())
	}

	err = os.Rename(tmp, s.path)
	if err != nil {
		return fmt.Errorf("failed to commit snapshot %s; %s", s.path, err.Error())
	}

	return nil
}

// Load reads the last committed record, if any
func (s *FileStore) Load() ([]byte, bool, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot %s; %s", s.path, err.Error())
	}
	return raw, true, nil
}
