package events

import (
	"math/big"

	"github.com/eng-cc/agent-world/core/types"
)

const (
	KindMainTokenGenesisInitialized types.EventKind = "MainTokenGenesisInitialized"
	KindMainTokenVestingClaimed     types.EventKind = "MainTokenVestingClaimed"
	KindMainTokenEpochIssuanceApplied types.EventKind = "MainTokenEpochIssuanceApplied"
	KindMainTokenFeeSettled         types.EventKind = "MainTokenFeeSettled"
	KindMainTokenPolicyUpdated      types.EventKind = "MainTokenPolicyUpdated"
)

type MainTokenGenesisInitialized struct {
	InitialSupply *big.Int
	Treasury      *big.Int
}

type MainTokenVestingClaimed struct {
	Agent        types.AgentID
	Amount       *big.Int
	VestingNonce uint64
}

// MainTokenEpochIssuanceApplied is the one explicitly-sanctioned mint path
// outside genesis; it must still satisfy total_supply = initial + issued -
// burned.
type MainTokenEpochIssuanceApplied struct {
	Epoch  uint64
	Issued *big.Int
}

type MainTokenFeeSettled struct {
	Payer  types.AgentID
	Amount *big.Int
	Burned *big.Int
}

// MainTokenPolicyUpdated records a governance-sourced policy change;
// ActivatesAtEpoch enforces the two-epoch delayed-activation rule from the
// design notes (no hidden singleton policy state).
type MainTokenPolicyUpdated struct {
	ActivatesAtEpoch uint64
	FieldsChanged    []string
}
