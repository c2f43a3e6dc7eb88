package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key, err := store.Save("payments/exp-1.csv", []byte("id,amount\n"))
	require.NoError(t, err)
	assert.True(t, store.Exists(key))

	f, err := store.Open(key)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "id,amount\n", string(data))

	require.NoError(t, store.Delete(key))
	assert.False(t, store.Exists(key))
	require.NoError(t, store.Delete(key))
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.csv", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = store.Open("/etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLocalStorageCleanup(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("a.csv", []byte("x"))
	require.NoError(t, err)

	deleted, err := store.CleanupOlderThan(-1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, deleted)
}
