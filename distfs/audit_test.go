package distfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/storage"
)

func TestFileIndexAuditFindsMissingAndOrphan(t *testing.T) {
	db := storage.NewMemDB()
	blobs := NewBlobStore(db)
	idx := NewPathIndex(db)

	referencedHash, err := blobs.Put([]byte("kept"))
	require.NoError(t, err)
	_, err = idx.WriteFile("/kept", referencedHash, false)
	require.NoError(t, err)

	orphanHash, err := blobs.Put([]byte("orphan"))
	require.NoError(t, err)

	missingHash := [32]byte{0xAA}
	_, err = idx.WriteFile("/missing", missingHash, true)
	require.NoError(t, err)

	audit, err := FileIndexAudit(blobs, idx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), audit.TotalIndexedFiles)
	require.Equal(t, uint64(1), audit.TotalPins)
	require.Contains(t, audit.MissingFileBlobHashes, missingHash)
	require.Contains(t, audit.DanglingPinHashes, missingHash)
	require.Contains(t, audit.OrphanBlobHashes, orphanHash)
	require.NotContains(t, audit.OrphanBlobHashes, referencedHash)
}

func TestOrphanGCRemovesOnlyOrphans(t *testing.T) {
	db := storage.NewMemDB()
	blobs := NewBlobStore(db)
	idx := NewPathIndex(db)

	kept, err := blobs.Put([]byte("kept"))
	require.NoError(t, err)
	_, err = idx.WriteFile("/kept", kept, false)
	require.NoError(t, err)

	orphan, err := blobs.Put([]byte("orphan"))
	require.NoError(t, err)

	audit, err := FileIndexAudit(blobs, idx)
	require.NoError(t, err)

	removed, err := OrphanGC(blobs, audit)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.True(t, blobs.Has(kept))
	require.False(t, blobs.Has(orphan))
}
