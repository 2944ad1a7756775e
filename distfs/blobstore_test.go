package distfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/storage"
)

func TestBlobStorePutGetHas(t *testing.T) {
	store := NewBlobStore(storage.NewMemDB())
	hash, err := store.Put([]byte("hello world"))
	require.NoError(t, err)
	require.True(t, store.Has(hash))

	got, err := store.Get(hash)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestBlobStorePutIsIdempotent(t *testing.T) {
	store := NewBlobStore(storage.NewMemDB())
	h1, err := store.Put([]byte("same content"))
	require.NoError(t, err)
	h2, err := store.Put([]byte("same content"))
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestBlobStoreGetMissing(t *testing.T) {
	store := NewBlobStore(storage.NewMemDB())
	_, err := store.Get([32]byte{0x01})
	require.Error(t, err)
}

func TestBlobStoreForEach(t *testing.T) {
	store := NewBlobStore(storage.NewMemDB())
	h1, err := store.Put([]byte("a"))
	require.NoError(t, err)
	h2, err := store.Put([]byte("b"))
	require.NoError(t, err)

	seen := map[[32]byte]bool{}
	require.NoError(t, store.ForEach(func(h [32]byte) bool {
		seen[h] = true
		return true
	}))
	require.True(t, seen[h1])
	require.True(t, seen[h2])
}

func TestBlobStoreDelete(t *testing.T) {
	store := NewBlobStore(storage.NewMemDB())
	hash, err := store.Put([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(hash))
	require.False(t, store.Has(hash))
}
