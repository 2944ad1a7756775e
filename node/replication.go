package node

import (
	"bytes"
	"fmt"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/p2p"
)

// writerState is the last accepted (epoch, sequence) from one replication
// writer, the ordering fence spec section 4.4's writer-epoch guard checks
// every incoming record against.
type writerState struct {
	epoch    uint64
	sequence uint64
}

// ReplicatedEntry is one accepted replication record, kept so a peer can
// later gap-sync this node's own replication stream.
type ReplicatedEntry struct {
	WriterID    string
	WriterEpoch uint64
	Sequence    uint64
	ContentHash []byte
	Payload     []byte
}

func (n *Node) applyReplicationRecord(payload p2p.ReplicationRecordPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.writers == nil {
		n.writers = make(map[string]writerState)
	}
	prior, known := n.writers[payload.WriterID]
	if known {
		if payload.WriterEpoch < prior.epoch {
			return worlderrors.ErrWriterEpochStale
		}
		if payload.WriterEpoch == prior.epoch && payload.Sequence <= prior.sequence {
			return worlderrors.ErrSequenceOutOfOrder
		}
	}

	sum := contentHash(payload.Payload)
	if !bytes.Equal(sum, payload.ContentHash) {
		return fmt.Errorf("node: replication record content hash mismatch for writer %s", payload.WriterID)
	}

	n.writers[payload.WriterID] = writerState{epoch: payload.WriterEpoch, sequence: payload.Sequence}
	n.replicationLog = append(n.replicationLog, ReplicatedEntry{
		WriterID:    payload.WriterID,
		WriterEpoch: payload.WriterEpoch,
		Sequence:    payload.Sequence,
		ContentHash: payload.ContentHash,
		Payload:     payload.Payload,
	})
	return nil
}

// ReplicationLog returns the accepted replication records in arrival order.
func (n *Node) ReplicationLog() []ReplicatedEntry {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]ReplicatedEntry(nil), n.replicationLog...)
}
