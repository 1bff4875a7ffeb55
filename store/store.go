package store

import (
	"io"

	dbconf "github.com/kthomas/go-db-config"
	uuid "github.com/kthomas/go.uuid"

	"github.com/shieldpay/privacy/common"
	snapshotstorage "github.com/shieldpay/privacy/store/providers"
	filestore "github.com/shieldpay/privacy/store/providers/file"
	leveldbstore "github.com/shieldpay/privacy/store/providers/leveldb"
	pgstore "github.com/shieldpay/privacy/store/providers/postgres"
)

// Store describes a configured snapshot storage target for a ledger instance
type Store struct {
	ID uuid.UUID `json:"id"`

	Name     *string `json:"name"`
	Provider *string `json:"provider"`
	Path     *string `json:"path,omitempty"`

	provider snapshotstorage.SnapshotProvider
}

// InitStore initializes a store with the given provider; the path is
// interpreted by the provider (filesystem location for file and leveldb
// providers, unused for postgres). The store id is derived from the name so
// a restarted process resolves the same snapshot key
func InitStore(name, provider, path string) (*Store, error) {
	if name == "" {
		return nil, common.NewConfigurationError("failed to initialize snapshot store; no name defined")
	}

	s := &Store{
		ID:       uuid.NewV5(uuid.NamespaceOID, name),
		Name:     common.StringOrNil(name),
		Provider: common.StringOrNil(provider),
		Path:     common.StringOrNil(path),
	}

	snapshotProvider, err := s.snapshotProviderFactory()
	if err != nil {
		return nil, err
	}
	s.provider = snapshotProvider

	common.Log.Debugf("initialized %s store: %s", provider, s.ID)
	return s, nil
}

func (s *Store) snapshotProviderFactory() (snapshotstorage.SnapshotProvider, error) {
	if s.Provider == nil {
		return nil, common.NewConfigurationError("failed to initialize snapshot provider; no provider defined")
	}

	path := ""
	if s.Path != nil {
		path = *s.Path
	}

	switch *s.Provider {
	case snapshotstorage.StoreProviderFile:
		return filestore.InitFileStore(path), nil
	case snapshotstorage.StoreProviderPostgres:
		return pgstore.InitPostgresStore(dbconf.DatabaseConnection(), s.ID), nil
	case snapshotstorage.StoreProviderLevelDB:
		return leveldbstore.InitLevelDBStore(path, s.ID)
	default:
		return nil, common.NewConfigurationError("failed to initialize snapshot provider; unknown provider: %s", *s.Provider)
	}
}

// Save persists the given serialized ledger record
func (s *Store) Save(record []byte) error {
	return s.provider.Save(record)
}

// Load restores the last persisted ledger record, if any
func (s *Store) Load() ([]byte, bool, error) {
	return s.provider.Load()
}

// Close releases any resources held by the underlying provider
func (s *Store) Close() error {
	if closer, ok := s.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
