// Package distfs implements the content-addressed distributed file system
// from spec section 4.5: a CAS blob store, a versioned path index with
// compare-and-set semantics, canonical-CBOR manifest export/import,
// file-index audit and orphan GC, replica maintenance planning, and the
// storage-challenge sampling proof. Adapted from the teacher's
// storage/db.go key-value abstraction (Mem/LevelDB backends shared with
// consensus/store and storage/trie) and from the Sia contract-manager
// example's persisted-storage-commitment shape, generalized from
// blockchain state/trie storage to content-addressed file replication.
package distfs

import (
	"crypto/sha256"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/storage"
)

const blobKeyPrefix = "distfs/blob/"

// BlobStore is the content-addressed store: Put is idempotent (re-putting
// identical content is a no-op keyed by its own hash), Get/Has never
// reinterpret content, only move bytes.
type BlobStore struct {
	db storage.Database
}

func NewBlobStore(db storage.Database) *BlobStore {
	return &BlobStore{db: db}
}

// Put stores content under its sha256 hash and returns that hash.
func (s *BlobStore) Put(content []byte) ([32]byte, error) {
	hash := sha256.Sum256(content)
	if s.Has(hash) {
		return hash, nil
	}
	if err := s.db.Put(blobKey(hash), content); err != nil {
		return hash, err
	}
	return hash, nil
}

// Get returns the content stored under hash.
func (s *BlobStore) Get(hash [32]byte) ([]byte, error) {
	v, err := s.db.Get(blobKey(hash))
	if err != nil {
		return nil, worlderrors.ErrStorageNotFound
	}
	return v, nil
}

// Has reports whether hash is present.
func (s *BlobStore) Has(hash [32]byte) bool {
	_, err := s.db.Get(blobKey(hash))
	return err == nil
}

// Delete removes hash. Callers must only call this on blobs confirmed
// orphaned by FileIndexAudit; Delete itself does not check references.
func (s *BlobStore) Delete(hash [32]byte) error {
	return s.db.Delete(blobKey(hash))
}

// ForEach walks every stored blob hash in ascending key order.
func (s *BlobStore) ForEach(fn func(hash [32]byte) bool) error {
	return s.db.IteratePrefix([]byte(blobKeyPrefix), func(key, _ []byte) bool {
		var hash [32]byte
		copy(hash[:], key[len(blobKeyPrefix):])
		return fn(hash)
	})
}

func blobKey(hash [32]byte) []byte {
	out := make([]byte, 0, len(blobKeyPrefix)+len(hash))
	out = append(out, []byte(blobKeyPrefix)...)
	out = append(out, hash[:]...)
	return out
}
