package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(tmpDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_FileNotDirectory(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

	backend, err := OpenBackend(tmpFile, false)
	assert.Error(t, err)
	assert.Nil(t, backend)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	// Closing twice is harmless
	assert.NoError(t, backend.Close())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestWithTransaction_Commits(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	called := false
	err = backend.WithTransaction(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.True(t, core.IsTransient(mapError(badger.ErrConflict)))
	assert.ErrorIs(t, mapError(badger.ErrDBClosed), storage.ErrStorageClosed)
	assert.ErrorIs(t, mapError(badger.ErrTxnTooBig), core.ErrCapacity)
}
