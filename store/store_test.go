package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenModes(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(LoadPersistentDB, dir)
	require.Error(t, err, "loading a db that doesn't exist yet should fail")

	db, err := Open(CreatePersistentDB, dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(CreatePersistentDB, dir)
	require.Error(t, err, "creating over an existing db should fail")

	db, err = Open(LoadPersistentDB, dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenUsesFixedFileName(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(CreatePersistentDB, dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.FileExists(t, filepath.Join(dir, boltFileName))
}
