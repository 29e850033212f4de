package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbslabs/lms-core/lms/store"
)

func TestMemStoreSavesAndLoads(t *testing.T) {
	mem := &store.MemStore{}

	_, err := mem.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)

	ok := mem.Save([]byte("hello"))
	assert.True(t, ok)

	got, err := mem.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, 1, mem.SaveCount)
}

func TestMemStoreFailNextRefusesExactlyOneSave(t *testing.T) {
	mem := &store.MemStore{FailNext: true}

	assert.False(t, mem.Save([]byte("first")))
	assert.Nil(t, mem.Bytes)

	assert.True(t, mem.Save([]byte("second")))
	assert.Equal(t, []byte("second"), mem.Bytes)
}

func TestMemStoreFailAlwaysNeverSaves(t *testing.T) {
	mem := &store.MemStore{FailAlways: true}
	assert.False(t, mem.Save([]byte("x")))
	assert.False(t, mem.Save([]byte("y")))
	assert.Nil(t, mem.Bytes)
}

func TestFileKeyStoreRoundTripsAndLocksAgainstASecondOpener(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")

	s, err := store.OpenFileKeyStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = store.OpenFileKeyStore(path)
	assert.Error(t, err, "a second opener should not be able to take the lock")

	ok := s.Save([]byte("private-key-bytes"))
	assert.True(t, ok)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("private-key-bytes"), got)
}

func TestFileKeyStoreLoadOnMissingFileIsNotExist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist")

	s, err := store.OpenFileKeyStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
