package distfs

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/storage"
)

func TestManifestExportImportRoundTrip(t *testing.T) {
	src := NewPathIndex(storage.NewMemDB())
	hash := sha256.Sum256([]byte("content"))
	_, err := src.WriteFile("/a", hash, true)
	require.NoError(t, err)

	manifest, err := src.ExportManifest()
	require.NoError(t, err)
	require.Len(t, manifest.Files, 1)

	dst := NewPathIndex(storage.NewMemDB())
	require.NoError(t, dst.ImportManifest(manifest))

	entry, ok, err := dst.Stat("/a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, entry.BlobHash)
	require.True(t, entry.Pinned)
}

func TestManifestHashDeterministic(t *testing.T) {
	hash := sha256.Sum256([]byte("content"))
	m := Manifest{Files: []FileEntry{{Path: "/a", BlobHash: hash, Version: 1}}}
	h1, err := ManifestHash(m)
	require.NoError(t, err)
	h2, err := ManifestHash(m)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	m.Files[0].Version = 2
	h3, err := ManifestHash(m)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestManifestEncodeDecodeRoundTrip(t *testing.T) {
	hash := sha256.Sum256([]byte("content"))
	m := Manifest{Files: []FileEntry{{Path: "/a", BlobHash: hash, Version: 1, Pinned: true}}}
	raw, err := EncodeManifest(m)
	require.NoError(t, err)

	got, err := DecodeManifest(raw)
	require.NoError(t, err)
	require.Equal(t, m, got)
}
