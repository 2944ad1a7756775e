package pos

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/consensus/codec"
	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/crypto"
)

// fakeNode is a minimal NodeInterface backing a single in-memory chain of
// heights, enough to exercise Engine's propose/attest/commit flow without a
// real world engine.
type fakeNode struct {
	validators map[types.NodeID]uint64
	mempool    []types.Envelope
	last       types.Head
	committed  map[uint64]types.Block
}

func newFakeNode(validators map[types.NodeID]uint64) *fakeNode {
	return &fakeNode{
		validators: validators,
		last:       types.Head{WorldID: "w1", Height: 0, BlockHash: types.GenesisParentHash},
		committed:  make(map[uint64]types.Block),
	}
}

func (f *fakeNode) Mempool() []types.Envelope { return f.mempool }

func (f *fakeNode) BuildHeader(height, slot, epoch uint64, proposerID types.NodeID, parent types.Head, actions []types.Envelope) (types.Header, error) {
	root, err := codec.ActionRoot(actions)
	if err != nil {
		return types.Header{}, err
	}
	return types.Header{
		WorldID:         "w1",
		Height:          height,
		Slot:            slot,
		Epoch:           epoch,
		ProposerID:      proposerID,
		ParentBlockHash: parent.BlockHash,
		ActionRoot:      root,
	}, nil
}

func (f *fakeNode) ExecuteBlock(block types.Block) ([]byte, []byte, error) {
	execHash := append([]byte(nil), block.Header.BlockHash...)
	stateRoot := codec.ExecutionStateRoot(execHash)
	return execHash, stateRoot, nil
}

func (f *fakeNode) Commit(block types.Block, executionBlockHash, executionStateRoot []byte) error {
	f.committed[block.Header.Height] = block
	f.last = types.Head{WorldID: "w1", Height: block.Header.Height, BlockHash: block.Header.BlockHash, ExecutionStateRoot: executionStateRoot}
	return nil
}

func (f *fakeNode) ValidatorSet() map[types.NodeID]uint64 { return f.validators }
func (f *fakeNode) Height() uint64                        { return f.last.Height }
func (f *fakeNode) LastHead() types.Head                  { return f.last }

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return k
}

func TestSelectProposerDeterministicAndWeighted(t *testing.T) {
	validators := map[types.NodeID]uint64{"a": 10, "b": 90}
	parent := types.GenesisParentHash

	first, err := SelectProposer(validators, parent, 5)
	require.NoError(t, err)
	second, err := SelectProposer(validators, parent, 5)
	require.NoError(t, err)
	require.Equal(t, first, second, "same inputs must select the same proposer")

	counts := map[types.NodeID]int{}
	for h := uint64(0); h < 200; h++ {
		id, err := SelectProposer(validators, parent, h)
		require.NoError(t, err)
		counts[id]++
	}
	require.Greater(t, counts["b"], counts["a"], "heavier stake should win more often")
}

func TestSelectProposerEmptyValidatorSet(t *testing.T) {
	_, err := SelectProposer(map[types.NodeID]uint64{}, types.GenesisParentHash, 1)
	require.Error(t, err)
}

func TestProposeAttestCommitSupermajority(t *testing.T) {
	keyA := mustKey(t)
	keyB := mustKey(t)
	keyC := mustKey(t)

	validators := map[types.NodeID]uint64{"a": 34, "b": 33, "c": 33}
	node := newFakeNode(validators)

	var proposer types.NodeID
	for _, id := range []types.NodeID{"a", "b", "c"} {
		expected, err := SelectProposer(validators, node.last.BlockHash, 1)
		require.NoError(t, err)
		if expected == id {
			proposer = id
			break
		}
	}
	require.NotEmpty(t, proposer)

	keys := map[types.NodeID]*crypto.PrivateKey{"a": keyA, "b": keyB, "c": keyC}
	engines := map[types.NodeID]*Engine{}
	for _, id := range []types.NodeID{"a", "b", "c"} {
		e := NewEngine("w1", id, keys[id], node)
		for _, peer := range []types.NodeID{"a", "b", "c"} {
			e.BindValidator(peer, keys[peer].PubKey().Bytes())
		}
		engines[id] = e
	}

	proposeEngine := engines[proposer]
	signed, err := proposeEngine.ProposeIfSlotProposer(1, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, signed)

	for _, id := range []types.NodeID{"a", "b", "c"} {
		if id == proposer {
			continue
		}
		require.NoError(t, engines[id].HandlePropose(*signed))
		require.NoError(t, engines[id].ExecuteAndBindHead(1))
	}

	var votes []*SignedAttest
	for _, id := range []types.NodeID{"a", "b", "c"} {
		vote, err := engines[id].AttestHead(1, true, 0, 1)
		require.NoError(t, err)
		votes = append(votes, vote)
	}

	// AttestHead records a vote only on the engine that cast it, so the
	// other validators' votes are handed to the proposer the way gossip
	// would deliver them, stopping once it has committed.
	for _, vote := range votes {
		if vote.ValidatorID == proposer {
			continue
		}
		require.NoError(t, proposeEngine.HandleAttest(*vote))
		if st, _ := proposeEngine.State(1); st == StateCommitted {
			break
		}
	}

	state, ok := proposeEngine.State(1)
	require.True(t, ok)
	require.Equal(t, StateCommitted, state)
	require.Equal(t, uint64(1), node.last.Height)
}

func TestHandleAttestRejectsUnknownSigner(t *testing.T) {
	key := mustKey(t)
	validators := map[types.NodeID]uint64{"a": 100}
	node := newFakeNode(validators)
	e := NewEngine("w1", "a", key, node)

	signed, err := e.ProposeIfSlotProposer(1, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, signed)

	stranger := mustKey(t)
	vote := Attest{WorldID: "w1", Height: 1, BlockHash: signed.BlockHash, Approve: true, SourceEpoch: 0, TargetEpoch: 1}
	sig := stranger.Sign(attestSigningBytes(vote))
	err = e.HandleAttest(SignedAttest{
		Attest:      vote,
		ValidatorID: "ghost",
		Sig:         Signature{PublicKey: stranger.PubKey().Bytes(), Signature: sig},
	})
	require.ErrorIs(t, err, worlderrors.ErrSignerBindingUnknown)
}

func TestHandleAttestDetectsDoubleVote(t *testing.T) {
	keyA := mustKey(t)
	keyB := mustKey(t)
	validators := map[types.NodeID]uint64{"a": 60, "b": 40}
	node := newFakeNode(validators)

	e := NewEngine("w1", "a", keyA, node)
	e.BindValidator("a", keyA.PubKey().Bytes())
	e.BindValidator("b", keyB.PubKey().Bytes())

	signed, err := e.ProposeIfSlotProposer(1, 1, 0)
	if err != nil {
		// "a" was not the rotated proposer for this seed; fall back to
		// installing a head signed by "a" from a manufactured header
		// directly into the engine's head table so the double-vote path is
		// still exercised deterministically.
		header, buildErr := node.BuildHeader(1, 1, 0, "a", node.LastHead(), nil)
		require.NoError(t, buildErr)
		hash, hashErr := codec.HashHeader(header)
		require.NoError(t, hashErr)
		sig := keyA.Sign(hash)
		manual := SignedProposeHead{
			Propose:   ProposeHead{WorldID: "w1", Height: 1, Slot: 1, Epoch: 0, ProposerID: "a", ParentBlockHash: header.ParentBlockHash, ActionRoot: header.ActionRoot},
			BlockHash: hash,
			Sig:       Signature{PublicKey: keyA.PubKey().Bytes(), Signature: sig},
		}
		e.heads[1] = &headRecord{state: StatePending, propose: &manual, attestations: make(map[types.NodeID]SignedAttest)}
		signed = &manual
	}

	first, err := e.AttestHead(1, true, 0, 1)
	require.NoError(t, err)
	require.NotNil(t, first)

	otherHash := append([]byte(nil), signed.BlockHash...)
	otherHash[0] ^= 0xFF
	vote := Attest{WorldID: "w1", Height: 1, BlockHash: otherHash, Approve: true, SourceEpoch: 0, TargetEpoch: 1}
	sig := keyA.Sign(attestSigningBytes(vote))
	err = e.HandleAttest(SignedAttest{
		Attest:      vote,
		ValidatorID: "a",
		Sig:         Signature{PublicKey: keyA.PubKey().Bytes(), Signature: sig},
	})
	require.ErrorIs(t, err, worlderrors.ErrDoubleVote)
	require.Len(t, e.SlashFlags(), 1)
	require.Equal(t, "double_vote", e.SlashFlags()[0].Reason)
}
