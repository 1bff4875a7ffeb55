package providers

// StoreProviderFile atomic JSON file storage provider
const StoreProviderFile = "file"

// StoreProviderPostgres postgres-backed snapshot storage provider
const StoreProviderPostgres = "postgres"

// StoreProviderLevelDB leveldb-backed snapshot storage provider
const StoreProviderLevelDB = "leveldb"

// SnapshotProvider provides a common interface to durably persist and restore
// the full serialized ledger record; Save is write-through -- it must not
// return until the record is durable or an error has occurred
type SnapshotProvider interface {
	Save(record []byte) error
	Load() (record []byte, found bool, err error)
}
