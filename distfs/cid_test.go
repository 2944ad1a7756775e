package distfs

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobCIDRoundTrip(t *testing.T) {
	hash := sha256.Sum256([]byte("dht-advertised content"))
	c, err := BlobCID(hash)
	require.NoError(t, err)

	got, err := BlobHashFromCID(c)
	require.NoError(t, err)
	require.Equal(t, hash, got)
}

func TestBlobCIDDeterministic(t *testing.T) {
	hash := sha256.Sum256([]byte("x"))
	c1, err := BlobCID(hash)
	require.NoError(t, err)
	c2, err := BlobCID(hash)
	require.NoError(t, err)
	require.True(t, c1.Equals(c2))
}
