package distfs

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// rawMulticodec is the multicodec code for an opaque byte blob, used
// instead of e.g. dag-pb since distfs blobs carry no internal DAG
// structure of their own.
const rawMulticodec = 0x55

// BlobCID wraps a blob's sha256 content hash in a CIDv1 so it can be
// advertised and looked up on the module's DHT alongside content
// published by other subsystems, using the same multihash/multicodec
// convention the rest of the content-addressing ecosystem uses.
func BlobCID(hash [32]byte) (cid.Cid, error) {
	digest, err := mh.Encode(hash[:], mh.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(rawMulticodec, mh.Multihash(digest)), nil
}

// BlobHashFromCID extracts the sha256 digest back out of a CID minted by
// BlobCID. It returns an error if c was not built from a 32-byte sha256
// digest (e.g. a CID from an unrelated DHT record).
func BlobHashFromCID(c cid.Cid) ([32]byte, error) {
	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return [32]byte{}, err
	}
	if decoded.Code != mh.SHA2_256 || len(decoded.Digest) != 32 {
		return [32]byte{}, fmt.Errorf("distfs: CID is not a 32-byte sha256 digest")
	}
	var hash [32]byte
	copy(hash[:], decoded.Digest)
	return hash, nil
}
