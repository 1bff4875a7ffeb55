package postgres

import (
	"fmt"

	"github.com/jinzhu/gorm"
	uuid "github.com/kthomas/go.uuid"
)

// PostgresStore persists the serialized ledger record as a single row in the
// ledger_snapshots table, keyed by store id
type PostgresStore struct {
	db *gorm.DB
	id uuid.UUID
}

// InitPostgresStore initializes a postgres snapshot provider over the given
// db connection
func InitPostgresStore(db *gorm.DB, id uuid.UUID) *PostgresStore {
	return &PostgresStore{
		db: db,
		id: id,
	}
}

// Save upserts the snapshot row for the store id
func (s *PostgresStore) Save(record []byte) error {
	db := s.db.Exec(
		"INSERT INTO ledger_snapshots (store_id, record, updated_at) VALUES (?, ?, now()) ON CONFLICT (store_id) DO UPDATE SET record = excluded.record, updated_at = now()",
		s.id,
		string(record),
	)

	errors := db.GetErrors()
	if len(errors) > 0 {
		return fmt.Errorf("failed to persist ledger snapshot %s; %s", s.id, errors[0].Error())
	}

	if db.RowsAffected == 0 {
		return fmt.Errorf("failed to persist ledger snapshot %s", s.id)
	}

	return nil
}

// Load reads the last committed snapshot row for the store id, if any
func (s *PostgresStore) Load() ([]byte, bool, error) {
	rows, err := s.db.Raw("SELECT record FROM ledger_snapshots WHERE store_id = ?", s.id).Rows()
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve ledger snapshot %s; %s", s.id, err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var record string
		err = rows.Scan(&record)
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan ledger snapshot %s; %s", s.id, err.Error())
		}
		return []byte(record), true, nil
	}

	return nil, false, nil
}
