package node

import (
	"testing"
	"time"

	"github.com/eng-cc/agent-world/consensus/pos"
	"github.com/eng-cc/agent-world/core/engine"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/crypto"
	"github.com/eng-cc/agent-world/mempool"
	"github.com/eng-cc/agent-world/p2p"
)

func newTestNode(t *testing.T, worldID string, nodeID types.NodeID, validators map[types.NodeID]uint64) *Node {
	t.Helper()
	pool := mempool.New(64)
	eng := engine.New(state.New(), pool, engine.Config{MaxActionsPerTick: 32, SnapshotEveryTicks: 100}, nil)
	n, err := New(Config{
		WorldID:     worldID,
		NodeID:      nodeID,
		Engine:      eng,
		Mempool:     pool,
		Validators:  validators,
		GenesisHead: types.Head{WorldID: worldID, Height: 0, BlockHash: types.GenesisParentHash},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestNodeBuildHeaderAndExecuteEmptyBlock(t *testing.T) {
	n := newTestNode(t, "world-1", "node-a", map[types.NodeID]uint64{"node-a": 10})

	header, err := n.BuildHeader(1, 1, 0, "node-a", n.LastHead(), nil)
	if err != nil {
		t.Fatalf("BuildHeader: %v", err)
	}
	if header.Height != 1 || header.ProposerID != "node-a" {
		t.Fatalf("unexpected header: %+v", header)
	}
	if string(header.ParentBlockHash) != string(types.GenesisParentHash) {
		t.Fatalf("expected genesis parent hash, got %x", header.ParentBlockHash)
	}

	block := types.Block{Header: header, Actions: nil}
	block.Header.BlockHash = []byte("fixed-test-hash")

	execHash, stateRoot, err := n.ExecuteBlock(block)
	if err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}
	if len(execHash) == 0 || len(stateRoot) == 0 {
		t.Fatalf("expected non-empty execution outputs")
	}

	if err := n.Commit(block, execHash, stateRoot); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n.Height() != 1 {
		t.Fatalf("expected height 1 after commit, got %d", n.Height())
	}
	if string(n.LastHead().BlockHash) != "fixed-test-hash" {
		t.Fatalf("unexpected last head: %+v", n.LastHead())
	}
}

func TestNodeValidatorSetIsCopyIsolated(t *testing.T) {
	n := newTestNode(t, "world-1", "node-a", map[types.NodeID]uint64{"node-a": 5})
	set := n.ValidatorSet()
	set["node-b"] = 99
	if _, ok := n.ValidatorSet()["node-b"]; ok {
		t.Fatalf("mutating returned validator set leaked into Node")
	}
}

func TestReplicationRecordWriterEpochGuard(t *testing.T) {
	n := newTestNode(t, "world-1", "node-a", map[types.NodeID]uint64{"node-a": 5})

	payload := p2p.ReplicationRecordPayload{WriterID: "writer-1", WriterEpoch: 2, Sequence: 1, Payload: []byte("hello")}
	payload.ContentHash = contentHash(payload.Payload)
	if err := n.applyReplicationRecord(payload); err != nil {
		t.Fatalf("first record rejected: %v", err)
	}

	stale := payload
	stale.WriterEpoch = 1
	if err := n.applyReplicationRecord(stale); err == nil {
		t.Fatal("expected stale writer epoch to be rejected")
	}

	outOfOrder := payload
	outOfOrder.Sequence = 1
	if err := n.applyReplicationRecord(outOfOrder); err == nil {
		t.Fatal("expected out-of-order sequence to be rejected")
	}

	advanced := payload
	advanced.Sequence = 2
	advanced.ContentHash = contentHash(advanced.Payload)
	if err := n.applyReplicationRecord(advanced); err != nil {
		t.Fatalf("advanced record rejected: %v", err)
	}

	if got := len(n.ReplicationLog()); got != 2 {
		t.Fatalf("expected 2 accepted records, got %d", got)
	}
}

func TestFetchCommitNotFoundBeforeCommit(t *testing.T) {
	n := newTestNode(t, "world-1", "node-a", map[types.NodeID]uint64{"node-a": 5})
	resp, err := n.FetchCommit(p2p.FetchCommitRequest{WorldID: "world-1", Height: 1})
	if err != nil {
		t.Fatalf("FetchCommit: %v", err)
	}
	if resp.Found {
		t.Fatalf("expected not found before any commit")
	}
}

// singleValidatorHarness wires one Node's consensus/pos.Engine to itself
// only, so proposing and self-attesting reaches supermajority in one step.
func singleValidatorHarness(t *testing.T) (*Node, *pos.Engine, *crypto.PrivateKey) {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	nodeID := types.NodeID("solo")
	n := newTestNode(t, "world-solo", nodeID, map[types.NodeID]uint64{nodeID: 1})
	consensus := pos.NewEngine("world-solo", nodeID, priv, n)
	consensus.BindValidator(nodeID, priv.PubKey().Bytes())
	return n, consensus, priv
}

func TestProposeIfSlotProposerCommitsWithSingleValidator(t *testing.T) {
	n, consensus, _ := singleValidatorHarness(t)

	signed, err := consensus.ProposeIfSlotProposer(1, 1, 0)
	if err != nil {
		t.Fatalf("ProposeIfSlotProposer: %v", err)
	}
	if signed.Propose.Height != 1 {
		t.Fatalf("unexpected proposal height: %d", signed.Propose.Height)
	}

	if _, err := consensus.AttestHead(1, true, 0, 0); err != nil {
		t.Fatalf("AttestHead: %v", err)
	}

	state, ok := consensus.State(1)
	if !ok || state != pos.StateCommitted {
		t.Fatalf("expected height 1 committed, got state=%v ok=%v", state, ok)
	}
	if n.Height() != 1 {
		t.Fatalf("expected node height 1, got %d", n.Height())
	}
}

func TestLoopTickProposesAndCommitsAlone(t *testing.T) {
	n, consensus, priv := singleValidatorHarness(t)
	handler := NewHandler(n, consensus)
	server := p2p.NewServer(handler, priv, p2p.ServerConfig{WorldID: "world-solo", ListenAddress: "127.0.0.1:0"})
	handler.SetServer(server)

	loop := NewLoop(n, consensus, handler, server, time.Millisecond, 10)
	loop.tick()

	if n.Height() != 1 {
		t.Fatalf("expected height 1 after one tick, got %d", n.Height())
	}
}
