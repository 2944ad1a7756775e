package distfs

import (
	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"
)

// Manifest is the full path-index snapshot exchanged between replicas,
// encoded the same canonical-CBOR way as a settlement report so any two
// observers computing ManifestHash over an identical snapshot agree.
type Manifest struct {
	Files []FileEntry `cbor:"files"`
}

// ExportManifest snapshots the entire path index.
func (p *PathIndex) ExportManifest() (Manifest, error) {
	entries, err := p.List("")
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{Files: entries}, nil
}

// ImportManifest writes every entry in m into the index unconditionally,
// used to seed a fresh replica from a trusted peer's export.
func (p *PathIndex) ImportManifest(m Manifest) error {
	for _, entry := range m.Files {
		if _, err := p.WriteFile(entry.Path, entry.BlobHash, entry.Pinned); err != nil {
			return err
		}
	}
	return nil
}

func canonicalEncMode() (cbor.EncMode, error) {
	return cbor.CanonicalEncOptions().EncMode()
}

// EncodeManifest canonically encodes m for transport or hashing.
func EncodeManifest(m Manifest) ([]byte, error) {
	mode, err := canonicalEncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(m)
}

// DecodeManifest parses a canonically-encoded manifest.
func DecodeManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ManifestHash returns the blake3 digest of the canonical encoding, the
// value two replicas compare to confirm they hold identical path indexes
// without exchanging the full manifest.
func ManifestHash(m Manifest) ([32]byte, error) {
	encoded, err := EncodeManifest(m)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(encoded), nil
}
