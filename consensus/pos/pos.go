package pos

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"lukechampine.com/blake3"

	"github.com/eng-cc/agent-world/consensus/codec"
	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/crypto"
)

// DefaultSupermajorityNumerator and DefaultSupermajorityDenominator give the
// 2/3 commit threshold from spec section 4.3.
const (
	DefaultSupermajorityNumerator   = 2
	DefaultSupermajorityDenominator = 3
)

// headRecord tracks one (world_id, height)'s agreement progress.
type headRecord struct {
	state        CommitState
	propose      *SignedProposeHead
	attestations map[types.NodeID]SignedAttest
	approveStake uint64
	rejectStake  uint64

	executionBlockHash []byte
	executionStateRoot []byte
}

// Engine drives the Pending -> Attested -> Committed|Rejected state machine
// for one world. Unlike the teacher's bft.Engine, there is no round/timeout
// ladder for a single height: a height stays Pending until attestations
// arrive, and slot proposer rotation advances strictly by height rather than
// by round-on-timeout, since the world tick loop (not wall-clock rounds)
// paces proposal cadence.
type Engine struct {
	mu sync.Mutex

	worldID    string
	nodeID     types.NodeID
	priv       *crypto.PrivateKey
	node       NodeInterface
	supNum     uint64
	supDenom   uint64
	requirePeerExecHashes bool

	// validator_id -> public key, the binding every signed message is
	// checked against before its signature is trusted.
	bindings map[types.NodeID][]byte

	heads    map[uint64]*headRecord
	lastVote map[types.NodeID]Attest
	flags    []SlashFlag
}

// NewEngine constructs an Engine for worldID, signing as nodeID with priv.
func NewEngine(worldID string, nodeID types.NodeID, priv *crypto.PrivateKey, node NodeInterface) *Engine {
	return &Engine{
		worldID:  worldID,
		nodeID:   nodeID,
		priv:     priv,
		node:     node,
		supNum:   DefaultSupermajorityNumerator,
		supDenom: DefaultSupermajorityDenominator,
		bindings: make(map[types.NodeID][]byte),
		heads:    make(map[uint64]*headRecord),
		lastVote: make(map[types.NodeID]Attest),
	}
}

// SetSupermajority overrides the default 2/3 commit threshold.
func (e *Engine) SetSupermajority(numerator, denominator uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.supNum, e.supDenom = numerator, denominator
}

// SetRequirePeerExecutionHashes stores the gap-sync policy flag for
// accepting a peer's claimed execution hashes without re-executing locally.
// consensus/pos itself never takes this shortcut: tryCommitLocked always
// requires this node's own ExecuteAndBindHead to have run first. No other
// code in the repository reads the flag; it is only stored here and
// reported by RequirePeerExecutionHashes.
func (e *Engine) SetRequirePeerExecutionHashes(require bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requirePeerExecHashes = require
}

// RequirePeerExecutionHashes reports the current policy setting.
func (e *Engine) RequirePeerExecutionHashes() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requirePeerExecHashes
}

// BindValidator records id's public key so future signed messages from id
// can be verified.
func (e *Engine) BindValidator(id types.NodeID, publicKey []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[id] = append([]byte(nil), publicKey...)
}

// SlashFlags returns the double-vote/surround-vote evidence collected so
// far. Economic penalty application reads this and acts externally.
func (e *Engine) SlashFlags() []SlashFlag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SlashFlag(nil), e.flags...)
}

// SelectProposer deterministically picks the slot proposer for height from
// the current validator set, weighted by stake. The seed mixes the parent
// block hash with height so the rotation is unpredictable ahead of time but
// reproducible by every honest node computing it after the fact, the same
// property the teacher's sha256(lastCommitHash||round) seed gives BFT round
// leader selection.
func SelectProposer(validators map[types.NodeID]uint64, parentBlockHash []byte, height uint64) (types.NodeID, error) {
	if len(validators) == 0 {
		return "", fmt.Errorf("pos: empty validator set")
	}
	ids := make([]types.NodeID, 0, len(validators))
	var total uint64
	for id, stake := range validators {
		ids = append(ids, id)
		total += stake
	}
	if total == 0 {
		return "", fmt.Errorf("pos: validator set has zero total stake")
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	hasher := blake3.New(32, nil)
	hasher.Write(parentBlockHash)
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], height)
	hasher.Write(heightBuf[:])
	seed := hasher.Sum(nil)
	pick := bytesToUint64(seed) % total

	var cursor uint64
	for _, id := range ids {
		cursor += validators[id]
		if pick < cursor {
			return id, nil
		}
	}
	return ids[len(ids)-1], nil
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ProposeIfSlotProposer builds and signs a ProposeHead for height if this
// node is the expected slot proposer, drawing actions from the mempool.
func (e *Engine) ProposeIfSlotProposer(height, slot, epoch uint64) (*SignedProposeHead, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	last := e.node.LastHead()
	validators := e.node.ValidatorSet()
	expected, err := SelectProposer(validators, last.BlockHash, height)
	if err != nil {
		return nil, err
	}
	if expected != e.nodeID {
		return nil, worlderrors.ErrNotSlotProposer
	}
	if rec, ok := e.heads[height]; ok && rec.state == StateCommitted {
		return nil, worlderrors.ErrDuplicateCommit
	}

	actions := e.node.Mempool()
	header, err := e.node.BuildHeader(height, slot, epoch, e.nodeID, last, actions)
	if err != nil {
		return nil, fmt.Errorf("pos: build header: %w", err)
	}
	blockHash, err := codec.HashHeader(header)
	if err != nil {
		return nil, fmt.Errorf("pos: hash header: %w", err)
	}
	header.BlockHash = blockHash

	propose := ProposeHead{
		WorldID:         e.worldID,
		Height:          height,
		Slot:            slot,
		Epoch:           epoch,
		ProposerID:      e.nodeID,
		ParentBlockHash: header.ParentBlockHash,
		ActionRoot:      header.ActionRoot,
		Actions:         actions,
	}
	sig := e.priv.Sign(blockHash)
	signed := &SignedProposeHead{
		Propose:   propose,
		BlockHash: blockHash,
		Sig:       Signature{PublicKey: e.priv.PubKey().Bytes(), Signature: sig},
	}

	e.heads[height] = &headRecord{
		state:        StatePending,
		propose:      signed,
		attestations: make(map[types.NodeID]SignedAttest),
	}

	block := types.Block{Header: header, Actions: actions}
	execHash, stateRoot, err := e.node.ExecuteBlock(block)
	if err != nil {
		return nil, fmt.Errorf("pos: execute own proposal: %w", err)
	}
	e.heads[height].executionBlockHash = execHash
	e.heads[height].executionStateRoot = stateRoot

	return signed, nil
}

// HandlePropose ingests a peer's signed proposal: verifies signer binding,
// signature, and expected-proposer identity, then opens a Pending record.
func (e *Engine) HandlePropose(sp SignedProposeHead) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sp.Propose.WorldID != e.worldID {
		return fmt.Errorf("pos: world_id mismatch")
	}
	bound, ok := e.bindings[sp.Propose.ProposerID]
	if !ok {
		return worlderrors.ErrSignerBindingUnknown
	}
	if string(bound) != string(sp.Sig.PublicKey) {
		return worlderrors.ErrSignerBindingUnknown
	}
	pub, err := crypto.PublicKeyFromBytes(sp.Sig.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", worlderrors.ErrSignatureInvalid, err)
	}
	if !pub.Verify(sp.BlockHash, sp.Sig.Signature) {
		return worlderrors.ErrSignatureInvalid
	}

	last := e.node.LastHead()
	validators := e.node.ValidatorSet()
	expected, err := SelectProposer(validators, last.BlockHash, sp.Propose.Height)
	if err != nil {
		return err
	}
	if expected != sp.Propose.ProposerID {
		return worlderrors.ErrNotSlotProposer
	}
	if rec, ok := e.heads[sp.Propose.Height]; ok {
		if rec.state == StateCommitted || rec.state == StateRejected {
			return worlderrors.ErrStaleProposal
		}
	}

	e.heads[sp.Propose.Height] = &headRecord{
		state:        StatePending,
		propose:      &sp,
		attestations: make(map[types.NodeID]SignedAttest),
	}
	return nil
}

// ExecuteAndBindHead locally executes the pending proposal at height and
// binds the resulting execution hashes to its record, satisfying the hard
// execution-binding requirement before this node will vote to commit it.
func (e *Engine) ExecuteAndBindHead(height uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.heads[height]
	if !ok || rec.propose == nil {
		return fmt.Errorf("pos: no pending proposal at height %d", height)
	}
	if rec.executionBlockHash != nil {
		return nil
	}
	header, err := e.node.BuildHeader(rec.propose.Propose.Height, rec.propose.Propose.Slot, rec.propose.Propose.Epoch,
		rec.propose.Propose.ProposerID, e.node.LastHead(), rec.propose.Propose.Actions)
	if err != nil {
		return fmt.Errorf("pos: rebuild header for execution: %w", err)
	}
	header.BlockHash = rec.propose.BlockHash
	block := types.Block{Header: header, Actions: rec.propose.Propose.Actions}
	execHash, stateRoot, err := e.node.ExecuteBlock(block)
	if err != nil {
		return fmt.Errorf("pos: execute block: %w", err)
	}
	rec.executionBlockHash = execHash
	rec.executionStateRoot = stateRoot
	return nil
}

// AttestHead signs and returns this node's vote on height, recording it
// locally as if received from a peer.
func (e *Engine) AttestHead(height uint64, approve bool, sourceEpoch, targetEpoch uint64) (*SignedAttest, error) {
	e.mu.Lock()
	rec, ok := e.heads[height]
	if !ok || rec.propose == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("pos: no pending proposal at height %d", height)
	}
	blockHash := rec.propose.BlockHash
	e.mu.Unlock()

	vote := Attest{
		WorldID:     e.worldID,
		Height:      height,
		BlockHash:   blockHash,
		Approve:     approve,
		SourceEpoch: sourceEpoch,
		TargetEpoch: targetEpoch,
	}
	encoded := attestSigningBytes(vote)
	sig := e.priv.Sign(encoded)
	signed := SignedAttest{
		Attest:      vote,
		ValidatorID: e.nodeID,
		Sig:         Signature{PublicKey: e.priv.PubKey().Bytes(), Signature: sig},
	}
	if err := e.HandleAttest(signed); err != nil {
		return nil, err
	}
	return &signed, nil
}

// attestSigningBytes derives the bytes an Attest signature commits to.
// World id and height are length-delimited ahead of the hash/flags so no
// field can shift across the boundary and collide with another encoding.
func attestSigningBytes(a Attest) []byte {
	buf := make([]byte, 0, len(a.WorldID)+len(a.BlockHash)+32)
	buf = append(buf, []byte(a.WorldID)...)
	buf = append(buf, 0)
	var nums [24]byte
	binary.BigEndian.PutUint64(nums[0:8], a.Height)
	binary.BigEndian.PutUint64(nums[8:16], a.SourceEpoch)
	binary.BigEndian.PutUint64(nums[16:24], a.TargetEpoch)
	buf = append(buf, nums[:]...)
	if a.Approve {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, a.BlockHash...)
	return buf
}

// HandleAttest ingests a signed attestation: verifies signer binding and
// signature, checks for double-vote/surround-vote against the signer's last
// vote, then folds the stake into the record's running tally and advances
// its state.
func (e *Engine) HandleAttest(sa SignedAttest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bound, ok := e.bindings[sa.ValidatorID]
	if !ok {
		return worlderrors.ErrSignerBindingUnknown
	}
	if string(bound) != string(sa.Sig.PublicKey) {
		return worlderrors.ErrSignerBindingUnknown
	}
	pub, err := crypto.PublicKeyFromBytes(sa.Sig.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", worlderrors.ErrSignatureInvalid, err)
	}
	if !pub.Verify(attestSigningBytes(sa.Attest), sa.Sig.Signature) {
		return worlderrors.ErrSignatureInvalid
	}

	rec, ok := e.heads[sa.Attest.Height]
	if !ok || rec.propose == nil {
		return fmt.Errorf("pos: attest for unknown height %d", sa.Attest.Height)
	}
	if rec.state == StateCommitted || rec.state == StateRejected {
		return worlderrors.ErrVotingClosed
	}

	if prior, voted := e.lastVote[sa.ValidatorID]; voted {
		if prior.TargetEpoch == sa.Attest.TargetEpoch && string(prior.BlockHash) != string(sa.Attest.BlockHash) {
			e.flags = append(e.flags, SlashFlag{
				Validator: sa.ValidatorID, Reason: "double_vote", Height: sa.Attest.Height,
				Detail: fmt.Sprintf("target_epoch=%d", sa.Attest.TargetEpoch),
			})
			return worlderrors.ErrDoubleVote
		}
		if prior.SourceEpoch < sa.Attest.SourceEpoch && sa.Attest.SourceEpoch < sa.Attest.TargetEpoch && sa.Attest.TargetEpoch < prior.TargetEpoch {
			e.flags = append(e.flags, SlashFlag{
				Validator: sa.ValidatorID, Reason: "surround_vote", Height: sa.Attest.Height,
				Detail: fmt.Sprintf("source=%d target=%d is surrounded by prior source=%d target=%d",
					sa.Attest.SourceEpoch, sa.Attest.TargetEpoch, prior.SourceEpoch, prior.TargetEpoch),
			})
			return worlderrors.ErrSurroundVote
		}
	}
	e.lastVote[sa.ValidatorID] = sa.Attest

	if _, already := rec.attestations[sa.ValidatorID]; already {
		return nil
	}
	rec.attestations[sa.ValidatorID] = sa

	stake := e.node.ValidatorSet()[sa.ValidatorID]
	if sa.Attest.Approve {
		rec.approveStake += stake
	} else {
		rec.rejectStake += stake
	}
	if rec.state == StatePending {
		rec.state = StateAttested
	}

	var total uint64
	for _, s := range e.node.ValidatorSet() {
		total += s
	}
	if total == 0 {
		return nil
	}

	if rec.approveStake*e.supDenom >= total*e.supNum {
		return e.tryCommitLocked(rec)
	}
	remaining := total - rec.approveStake - rec.rejectStake
	if rec.rejectStake > 0 && (rec.approveStake+remaining)*e.supDenom < total*e.supNum {
		rec.state = StateRejected
	}
	return nil
}

// tryCommitLocked finalizes rec once supermajority approval is reached,
// enforcing the hard execution-binding requirement: a commit without local
// execution hashes is refused rather than trusted from peers.
func (e *Engine) tryCommitLocked(rec *headRecord) error {
	if rec.executionBlockHash == nil || rec.executionStateRoot == nil {
		return worlderrors.ErrMissingExecutionHash
	}

	header, err := e.node.BuildHeader(rec.propose.Propose.Height, rec.propose.Propose.Slot, rec.propose.Propose.Epoch,
		rec.propose.Propose.ProposerID, e.node.LastHead(), rec.propose.Propose.Actions)
	if err != nil {
		return fmt.Errorf("pos: rebuild header for commit: %w", err)
	}
	header.BlockHash = rec.propose.BlockHash
	block := types.Block{Header: header, Actions: rec.propose.Propose.Actions}

	if err := e.node.Commit(block, rec.executionBlockHash, rec.executionStateRoot); err != nil {
		return fmt.Errorf("pos: commit: %w", err)
	}
	rec.state = StateCommitted
	return nil
}

// State returns height's current agreement stage, or StatePending with ok
// false if nothing is known about it.
func (e *Engine) State(height uint64) (CommitState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.heads[height]
	if !ok {
		return StatePending, false
	}
	return rec.state, true
}
