// Package codec implements the canonical block-hash encoding from spec
// section 4.3: a deterministic CBOR encoding of BlockHashPayload, hashed
// with blake3. Every node that computes a block hash for the same header
// fields must reach byte-identical bytes before hashing, or consensus
// between honest nodes diverges on non-determinism alone.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"

	"github.com/eng-cc/agent-world/core/types"
)

var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Errorf("codec: invalid canonical cbor options: %w", err))
	}
	return mode
}()

// EncodeBlockHashPayload canonically encodes the fields a block hash
// commits to.
func EncodeBlockHashPayload(p types.BlockHashPayload) ([]byte, error) {
	return encMode.Marshal(p)
}

// HashHeader derives the block hash for h: canonical-encode the fields it
// commits to, then blake3.
func HashHeader(h types.Header) ([]byte, error) {
	payload := types.BlockHashPayload{
		Version:         1,
		WorldID:         h.WorldID,
		Height:          h.Height,
		Slot:            h.Slot,
		Epoch:           h.Epoch,
		ProposerID:      h.ProposerID,
		ParentBlockHash: h.ParentBlockHash,
	}
	encoded, err := EncodeBlockHashPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("codec: encode block hash payload: %w", err)
	}
	sum := blake3.Sum256(encoded)
	return sum[:], nil
}

// ActionRoot derives a deterministic commitment to an ordered action batch:
// canonical-encode the batch, then blake3. Unlike a Merkle root this is not
// designed for partial proofs; the invocation/replication protocols always
// fetch the full batch, so a flat digest is sufficient and simpler.
func ActionRoot(actions []types.Envelope) ([]byte, error) {
	encoded, err := encMode.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("codec: encode action batch: %w", err)
	}
	sum := blake3.Sum256(encoded)
	return sum[:], nil
}

// ExecutionStateRoot derives a deterministic commitment to a post-execution
// World snapshot's canonical bytes.
func ExecutionStateRoot(snapshotBytes []byte) []byte {
	sum := blake3.Sum256(snapshotBytes)
	return sum[:]
}
