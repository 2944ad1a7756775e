package node

import (
	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"

	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/p2p"
)

// contentHash is the blake3 digest a replication record's content_hash
// field must match, the same hash function consensus/codec uses for block
// and state roots.
func contentHash(payload []byte) []byte {
	sum := blake3.Sum256(payload)
	return sum[:]
}

// FetchCommit answers fetch-commit/1.0.0: it looks up height in this
// node's retained commit records, the record Node.Commit writes once this
// node has committed that height (see CommitRecord).
func (n *Node) FetchCommit(req p2p.FetchCommitRequest) (p2p.FetchCommitResponse, error) {
	if req.WorldID != n.worldID {
		return p2p.FetchCommitResponse{Found: false}, nil
	}
	rec, ok := n.CommitRecord(req.Height)
	if !ok {
		return p2p.FetchCommitResponse{Found: false}, nil
	}
	payload, err := encodeCommitRecord(rec)
	if err != nil {
		return p2p.FetchCommitResponse{}, err
	}
	return p2p.FetchCommitResponse{
		Found: true,
		Record: &p2p.ReplicationRecordPayload{
			WriterID:    string(n.nodeID),
			WriterEpoch: rec.Block.Header.Epoch,
			Sequence:    rec.Block.Header.Height,
			ContentHash: contentHash(payload),
			Payload:     payload,
		},
	}, nil
}

// FetchBlob answers fetch-blob/1.0.0 from this node's distfs blob store,
// if one is configured.
func (n *Node) FetchBlob(req p2p.FetchBlobRequest) (p2p.FetchBlobResponse, error) {
	if n.blobs == nil || len(req.ContentHash) != 32 {
		return p2p.FetchBlobResponse{Found: false}, nil
	}
	var hash [32]byte
	copy(hash[:], req.ContentHash)
	data, err := n.blobs.Get(hash)
	if err != nil {
		return p2p.FetchBlobResponse{Found: false}, nil
	}
	return p2p.FetchBlobResponse{Found: true, Bytes: data}, nil
}

// fetchCommitWire is the gap-sync wire form of a committed height: the
// full block (so a lagging peer can replay it) plus the execution outputs
// the original proposer bound to it.
type fetchCommitWire struct {
	Block              types.Block `cbor:"block"`
	ExecutionBlockHash []byte      `cbor:"execution_block_hash"`
	ExecutionStateRoot []byte      `cbor:"execution_state_root"`
}

func encodeCommitRecord(rec commitRecord) ([]byte, error) {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(fetchCommitWire{
		Block:              rec.Block,
		ExecutionBlockHash: rec.ExecutionBlockHash,
		ExecutionStateRoot: rec.ExecutionStateRoot,
	})
}
