// Package pos implements the PoS head-agreement state machine from spec
// section 4.3: Pending -> Attested -> Committed|Rejected per (world_id,
// height), stake-weighted proposer rotation, supermajority attestation, and
// slashing-flag detection (double-vote, surround-vote). The round/phase
// structure (propose -> collect -> commit, driven by direct method calls
// from the node rather than channels or timers) is adapted from the teacher's consensus/bft.Engine, generalized from
// secp256k1 BFT block voting to ed25519 stake-weighted head attestation.
package pos

import (
	"github.com/eng-cc/agent-world/core/types"
)

// CommitState is a (world_id, height) proposal's lifecycle stage.
type CommitState string

const (
	StatePending  CommitState = "pending"
	StateAttested CommitState = "attested"
	StateCommitted CommitState = "committed"
	StateRejected CommitState = "rejected"
)

// Signature carries an ed25519 signature alongside the signer's public key,
// so a receiver can verify without a separate key-lookup round trip.
type Signature struct {
	PublicKey []byte
	Signature []byte
}

// ProposeHead is the slot proposer's claim for one height.
type ProposeHead struct {
	WorldID         string
	Height          uint64
	Slot            uint64
	Epoch           uint64
	ProposerID      types.NodeID
	ParentBlockHash []byte
	ActionRoot      []byte
	Actions         []types.Envelope
}

// SignedProposeHead is a ProposeHead plus its proposer's signature over the
// derived block hash.
type SignedProposeHead struct {
	Propose   ProposeHead
	BlockHash []byte
	Sig       Signature
}

// Attest is one validator's vote on a proposed head.
type Attest struct {
	WorldID     string
	Height      uint64
	BlockHash   []byte
	Approve     bool
	SourceEpoch uint64
	TargetEpoch uint64
}

// SignedAttest is an Attest plus the validator's identity and signature.
type SignedAttest struct {
	Attest      Attest
	ValidatorID types.NodeID
	Sig         Signature
}

// SlashFlag records a detected double-vote or surround-vote; spec section
// 4.3 scopes this package to detection only — economic penalty application
// is an external collaborator.
type SlashFlag struct {
	Validator types.NodeID
	Reason    string // "double_vote" | "surround_vote"
	Height    uint64
	Detail    string
}

// ExecutionBridgeRecord is what the node persists to DistFS once a block
// commits locally (spec section 4.4): the binding between a committed
// height and the execution outputs that justified committing it.
type ExecutionBridgeRecord struct {
	Height            uint64
	ExecutionBlockHash []byte
	StateRoot         []byte
	SnapshotRef       string
	JournalRef        string
}
