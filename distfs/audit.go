package distfs

// Audit reports the gap between the path index, its pins, and the blob
// store, per spec section 4.5's file_index_audit operation.
type Audit struct {
	TotalIndexedFiles     uint64
	TotalPins             uint64
	MissingFileBlobHashes [][32]byte
	DanglingPinHashes     [][32]byte
	OrphanBlobHashes      [][32]byte
}

// FileIndexAudit walks the full path index and blob store once each and
// reports every inconsistency between them.
func FileIndexAudit(blobs *BlobStore, index *PathIndex) (Audit, error) {
	entries, err := index.List("")
	if err != nil {
		return Audit{}, err
	}

	var audit Audit
	referenced := make(map[[32]byte]bool, len(entries))
	for _, entry := range entries {
		audit.TotalIndexedFiles++
		referenced[entry.BlobHash] = true
		present := blobs.Has(entry.BlobHash)
		if entry.Pinned {
			audit.TotalPins++
			if !present {
				audit.DanglingPinHashes = append(audit.DanglingPinHashes, entry.BlobHash)
			}
		}
		if !present {
			audit.MissingFileBlobHashes = append(audit.MissingFileBlobHashes, entry.BlobHash)
		}
	}

	if err := blobs.ForEach(func(hash [32]byte) bool {
		if !referenced[hash] {
			audit.OrphanBlobHashes = append(audit.OrphanBlobHashes, hash)
		}
		return true
	}); err != nil {
		return Audit{}, err
	}
	return audit, nil
}

// OrphanGC removes every blob audit found unreferenced by any path-index
// entry. Pinned-but-missing blobs are reported by the audit but are not a
// GC target: there is nothing to delete for them.
func OrphanGC(blobs *BlobStore, audit Audit) (removed int, err error) {
	for _, hash := range audit.OrphanBlobHashes {
		if err := blobs.Delete(hash); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
