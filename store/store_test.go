package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")

	s, err := InitStore("ledger", "file", path)
	require.NoError(t, err)

	_, found, err := s.Load()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save([]byte(`{"root":"0x0"}`)))

	record, found, err := s.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"root":"0x0"}`, string(record))

	require.NoError(t, s.Save([]byte(`{"root":"0x1"}`)))
	record, _, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, `{"root":"0x1"}`, string(record))
}

func TestLevelDBStoreRoundTrip(t *testing.T) {
	s, err := InitStore("ledger", "leveldb", "")
	require.NoError(t, err)

	_, found, err := s.Load()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save([]byte("snapshot")))

	record, found, err := s.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "snapshot", string(record))
}

func TestStoreIDStableAcrossRestarts(t *testing.T) {
	first, err := InitStore("ledger", "file", filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	second, err := InitStore("ledger", "file", filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	other, err := InitStore("archive", "file", filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestLevelDBStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots")

	s, err := InitStore("ledger", "leveldb", path)
	require.NoError(t, err)
	require.NoError(t, s.Save([]byte("snapshot")))
	require.NoError(t, s.Close())

	reopened, err := InitStore("ledger", "leveldb", path)
	require.NoError(t, err)
	defer reopened.Close()

	record, found, err := reopened.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "snapshot", string(record))
}

func TestStoreRequiresName(t *testing.T) {
	_, err := InitStore("", "file", "ledger.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name defined")
}

func TestUnknownProviderRejected(t *testing.T) {
	_, err := InitStore("ledger", "cassandra", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}
