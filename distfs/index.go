package distfs

import (
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/storage"
)

const pathKeyPrefix = "distfs/path/"

// FileEntry is one path-index record: the blob a path currently resolves
// to, its CAS version (incremented on every write), and whether it is
// pinned against orphan GC.
type FileEntry struct {
	Path     string  `cbor:"path"`
	BlobHash [32]byte `cbor:"blob_hash"`
	Version  uint64  `cbor:"version"`
	Pinned   bool    `cbor:"pinned"`
}

// PathIndex maps file paths to blob hashes with optimistic-concurrency
// writes, mirroring the compare-and-set pattern the teacher's state trie
// uses for account updates, generalized to a flat path namespace.
type PathIndex struct {
	db storage.Database
}

func NewPathIndex(db storage.Database) *PathIndex {
	return &PathIndex{db: db}
}

func pathKey(path string) []byte {
	return append([]byte(pathKeyPrefix), []byte(path)...)
}

func validatePath(path string) error {
	if path == "" || !strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return worlderrors.ErrPathInvalid
	}
	return nil
}

// Stat returns the current entry for path, if any.
func (p *PathIndex) Stat(path string) (FileEntry, bool, error) {
	raw, err := p.db.Get(pathKey(path))
	if err != nil {
		return FileEntry{}, false, nil
	}
	var entry FileEntry
	if err := cbor.Unmarshal(raw, &entry); err != nil {
		return FileEntry{}, false, err
	}
	return entry, true, nil
}

// WriteFile unconditionally creates or overwrites path, bumping its
// version.
func (p *PathIndex) WriteFile(path string, blobHash [32]byte, pinned bool) (FileEntry, error) {
	if err := validatePath(path); err != nil {
		return FileEntry{}, err
	}
	existing, ok, err := p.Stat(path)
	if err != nil {
		return FileEntry{}, err
	}
	version := uint64(1)
	if ok {
		version = existing.Version + 1
	}
	entry := FileEntry{Path: path, BlobHash: blobHash, Version: version, Pinned: pinned}
	return entry, p.put(entry)
}

// WriteFileIfMatch writes path only if its current version equals
// expectedVersion (0 meaning "must not exist yet").
func (p *PathIndex) WriteFileIfMatch(path string, blobHash [32]byte, expectedVersion uint64, pinned bool) (FileEntry, error) {
	if err := validatePath(path); err != nil {
		return FileEntry{}, err
	}
	existing, ok, err := p.Stat(path)
	if err != nil {
		return FileEntry{}, err
	}
	if ok != (expectedVersion != 0) || (ok && existing.Version != expectedVersion) {
		return FileEntry{}, worlderrors.ErrCASConflict
	}
	entry := FileEntry{Path: path, BlobHash: blobHash, Version: expectedVersion + 1, Pinned: pinned}
	return entry, p.put(entry)
}

// DeleteFileIfMatch removes path only if its current version equals
// expectedVersion.
func (p *PathIndex) DeleteFileIfMatch(path string, expectedVersion uint64) error {
	existing, ok, err := p.Stat(path)
	if err != nil {
		return err
	}
	if !ok || existing.Version != expectedVersion {
		return worlderrors.ErrCASConflict
	}
	return p.db.Delete(pathKey(path))
}

func (p *PathIndex) put(entry FileEntry) error {
	raw, err := cbor.Marshal(entry)
	if err != nil {
		return err
	}
	return p.db.Put(pathKey(entry.Path), raw)
}

// List returns every entry whose path starts with prefix, sorted by path.
func (p *PathIndex) List(prefix string) ([]FileEntry, error) {
	var out []FileEntry
	var iterErr error
	err := p.db.IteratePrefix(pathKey(prefix), func(_, value []byte) bool {
		var entry FileEntry
		if err := cbor.Unmarshal(value, &entry); err != nil {
			iterErr = err
			return false
		}
		out = append(out, entry)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
