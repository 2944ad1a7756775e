// Package node wires core/engine, mempool, consensus/pos, and p2p into a
// single running participant: it implements consensus/pos.NodeInterface so
// the agreement engine can drive this node's world execution, and
// p2p.MessageHandler/p2p.FetchProvider so gossip and gap-sync requests land
// on that same state. Adapted from the teacher's cmd/consensusd bootstrap
// shape, generalized from a transaction-block chain node to a tick-paced
// world-action node.
package node

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eng-cc/agent-world/consensus/codec"
	"github.com/eng-cc/agent-world/core/engine"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/distfs"
	"github.com/eng-cc/agent-world/mempool"
)

const defaultMempoolBudget = 500

// commitRecord is what Node retains per committed height: the executed
// block plus the execution outputs that justified committing it. It backs
// both the fetch-commit/1.0.0 responder and local epoch bookkeeping.
type commitRecord struct {
	Block              types.Block
	ExecutionBlockHash []byte
	ExecutionStateRoot []byte
}

// Node is the consensus/pos.NodeInterface implementation: a thin
// coordination layer around a core/engine.Engine and a mempool.Mempool.
type Node struct {
	mu sync.RWMutex

	worldID string
	nodeID  types.NodeID

	engine *engine.Engine
	pool   *mempool.Mempool
	clock  func() time.Time

	mempoolBudget int

	validators map[types.NodeID]uint64

	lastHead  types.Head
	lastEpoch uint64
	records   map[uint64]commitRecord

	writers        map[string]writerState
	replicationLog []ReplicatedEntry

	blobs *distfs.BlobStore

	log *slog.Logger
}

// Config bundles the dependencies and genesis facts a Node needs, kept
// separate from Node itself so callers (tests, cmd/worldnode) can assemble
// it without reaching into unexported fields.
type Config struct {
	WorldID       string
	NodeID        types.NodeID
	Engine        *engine.Engine
	Mempool       *mempool.Mempool
	Validators    map[types.NodeID]uint64
	GenesisHead   types.Head
	MempoolBudget int
	Clock         func() time.Time
	Logger        *slog.Logger
	// Blobs backs FetchBlob with this node's distfs content store. Nil
	// means this node does not serve fetch-blob/1.0.0 requests.
	Blobs *distfs.BlobStore
}

// New constructs a Node ready to back a consensus/pos.Engine.
func New(cfg Config) (*Node, error) {
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("node: world id must not be empty")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("node: engine must not be nil")
	}
	if cfg.Mempool == nil {
		return nil, fmt.Errorf("node: mempool must not be nil")
	}
	if len(cfg.Validators) == 0 {
		return nil, fmt.Errorf("node: validator set must not be empty")
	}
	budget := cfg.MempoolBudget
	if budget <= 0 {
		budget = defaultMempoolBudget
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	validators := make(map[types.NodeID]uint64, len(cfg.Validators))
	for id, stake := range cfg.Validators {
		validators[id] = stake
	}

	return &Node{
		worldID:       cfg.WorldID,
		nodeID:        cfg.NodeID,
		engine:        cfg.Engine,
		pool:          cfg.Mempool,
		clock:         clock,
		mempoolBudget: budget,
		validators:    validators,
		lastHead:      cfg.GenesisHead,
		records:       make(map[uint64]commitRecord),
		writers:       make(map[string]writerState),
		blobs:         cfg.Blobs,
		log:           log,
	}, nil
}

// Mempool returns the actions ready to fill the next proposed head.
func (n *Node) Mempool() []types.Envelope {
	return n.pool.Drain(n.mempoolBudget)
}

// BuildHeader assembles a Header atop parent, committing to actions via
// codec.ActionRoot. The caller (consensus/pos) fills in BlockHash once it
// has hashed the result.
func (n *Node) BuildHeader(height, slot, epoch uint64, proposerID types.NodeID, parent types.Head, actions []types.Envelope) (types.Header, error) {
	actionRoot, err := codec.ActionRoot(actions)
	if err != nil {
		return types.Header{}, fmt.Errorf("node: action root: %w", err)
	}
	parentHash := parent.BlockHash
	if len(parentHash) == 0 {
		parentHash = types.GenesisParentHash
	}
	return types.Header{
		WorldID:         n.worldID,
		Height:          height,
		Slot:            slot,
		Epoch:           epoch,
		ProposerID:      proposerID,
		ParentBlockHash: parentHash,
		ActionRoot:      actionRoot,
	}, nil
}

// ExecuteBlock replays block's action batch on the world engine.
func (n *Node) ExecuteBlock(block types.Block) (executionBlockHash []byte, executionStateRoot []byte, err error) {
	return n.engine.ExecuteProposedBlock(block, n.clock().UnixMilli())
}

// Commit finalizes height: records the committed head and retains the
// block/execution outputs for gap-sync and replication.
func (n *Node) Commit(block types.Block, executionBlockHash, executionStateRoot []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.lastHead = types.Head{
		WorldID:            n.worldID,
		Height:             block.Header.Height,
		BlockHash:          block.Header.BlockHash,
		ExecutionStateRoot: executionStateRoot,
	}
	n.lastEpoch = block.Header.Epoch
	n.records[block.Header.Height] = commitRecord{
		Block:              block,
		ExecutionBlockHash: executionBlockHash,
		ExecutionStateRoot: executionStateRoot,
	}
	n.log.Info("committed head", "height", block.Header.Height, "world_id", n.worldID)
	return nil
}

// ValidatorSet returns a copy of the current stake-weighted validator set.
func (n *Node) ValidatorSet() map[types.NodeID]uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[types.NodeID]uint64, len(n.validators))
	for id, stake := range n.validators {
		out[id] = stake
	}
	return out
}

// SetValidatorSet replaces the stake-weighted validator set, used when the
// reward subsystem's stake delegation/slashing changes who may propose.
func (n *Node) SetValidatorSet(validators map[types.NodeID]uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.validators = make(map[types.NodeID]uint64, len(validators))
	for id, stake := range validators {
		n.validators[id] = stake
	}
}

// Height returns the highest committed height.
func (n *Node) Height() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastHead.Height
}

// LastHead returns the most recently committed head.
func (n *Node) LastHead() types.Head {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastHead
}

// LastEpoch returns the epoch of the most recently committed head, used to
// derive the source/target epoch pair an attestation votes across.
func (n *Node) LastEpoch() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastEpoch
}

// CommitRecord returns the retained block and execution outputs for height,
// if this node has committed it.
func (n *Node) CommitRecord(height uint64) (commitRecord, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	rec, ok := n.records[height]
	return rec, ok
}
