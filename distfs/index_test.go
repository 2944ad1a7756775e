package distfs

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/storage"
)

func TestPathIndexWriteStat(t *testing.T) {
	idx := NewPathIndex(storage.NewMemDB())
	hash := sha256.Sum256([]byte("content"))
	entry, err := idx.WriteFile("/agents/a/note.txt", hash, false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), entry.Version)

	got, ok, err := idx.Stat("/agents/a/note.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, got.BlobHash)
}

func TestPathIndexWriteFileIfMatchConflict(t *testing.T) {
	idx := NewPathIndex(storage.NewMemDB())
	hash := sha256.Sum256([]byte("v1"))
	_, err := idx.WriteFile("/f", hash, false)
	require.NoError(t, err)

	_, err = idx.WriteFileIfMatch("/f", hash, 99, false)
	require.ErrorIs(t, err, worlderrors.ErrCASConflict)

	hash2 := sha256.Sum256([]byte("v2"))
	entry, err := idx.WriteFileIfMatch("/f", hash2, 1, false)
	require.NoError(t, err)
	require.Equal(t, uint64(2), entry.Version)
}

func TestPathIndexWriteFileIfMatchRequiresAbsent(t *testing.T) {
	idx := NewPathIndex(storage.NewMemDB())
	hash := sha256.Sum256([]byte("v1"))
	_, err := idx.WriteFileIfMatch("/new", hash, 0, false)
	require.NoError(t, err)

	_, err = idx.WriteFileIfMatch("/new", hash, 0, false)
	require.ErrorIs(t, err, worlderrors.ErrCASConflict)
}

func TestPathIndexDeleteFileIfMatch(t *testing.T) {
	idx := NewPathIndex(storage.NewMemDB())
	hash := sha256.Sum256([]byte("v1"))
	entry, err := idx.WriteFile("/f", hash, false)
	require.NoError(t, err)

	require.ErrorIs(t, idx.DeleteFileIfMatch("/f", 99), worlderrors.ErrCASConflict)
	require.NoError(t, idx.DeleteFileIfMatch("/f", entry.Version))

	_, ok, err := idx.Stat("/f")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPathIndexListPrefix(t *testing.T) {
	idx := NewPathIndex(storage.NewMemDB())
	hash := sha256.Sum256([]byte("v"))
	_, err := idx.WriteFile("/agents/a/one.txt", hash, false)
	require.NoError(t, err)
	_, err = idx.WriteFile("/agents/a/two.txt", hash, false)
	require.NoError(t, err)
	_, err = idx.WriteFile("/agents/b/three.txt", hash, false)
	require.NoError(t, err)

	entries, err := idx.List("/agents/a/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "/agents/a/one.txt", entries[0].Path)
	require.Equal(t, "/agents/a/two.txt", entries[1].Path)
}

func TestPathIndexRejectsInvalidPath(t *testing.T) {
	idx := NewPathIndex(storage.NewMemDB())
	hash := sha256.Sum256([]byte("v"))
	_, err := idx.WriteFile("relative/path", hash, false)
	require.ErrorIs(t, err, worlderrors.ErrPathInvalid)

	_, err = idx.WriteFile("/../escape", hash, false)
	require.ErrorIs(t, err, worlderrors.ErrPathInvalid)
}
