package state

import (
	"math/big"

	"github.com/eng-cc/agent-world/core/types"
)

// MainTokenPolicy holds the governance-tunable economic constants; never
// hardcode these in the engine or reward packages (design notes open
// question on baseline economic constants).
type MainTokenPolicy struct {
	InflationBpsMax     uint32
	WarDurationBaseTicks uint64
	WarDurationPerIntensityTicks uint64
	PointsPerCredit     uint64
	FeeBurnBps          uint32
}

// PendingPolicyUpdate models the two-epoch delayed activation rule for
// governance policy changes.
type PendingPolicyUpdate struct {
	ActivatesAtEpoch uint64
	Policy           MainTokenPolicy
}

// MainTokenLedger is the authoritative token ledger. total_supply must
// always equal initial_supply + issued - burned.
type MainTokenLedger struct {
	InitialSupply *big.Int
	Issued        *big.Int
	Burned        *big.Int
	Balances      map[types.AgentID]*big.Int
	Treasury      *big.Int
	Policy        MainTokenPolicy
	PendingPolicy *PendingPolicyUpdate
	VestingNonce  map[types.AgentID]uint64
	Initialized   bool
}

// TotalSupply computes the invariant quantity directly from the ledger's
// bookkeeping fields rather than trusting a cached total.
func (l *MainTokenLedger) TotalSupply() *big.Int {
	total := new(big.Int)
	if l.InitialSupply != nil {
		total.Add(total, l.InitialSupply)
	}
	if l.Issued != nil {
		total.Add(total, l.Issued)
	}
	if l.Burned != nil {
		total.Sub(total, l.Burned)
	}
	return total
}

func NewMainTokenLedger() *MainTokenLedger {
	return &MainTokenLedger{
		InitialSupply: big.NewInt(0),
		Issued:        big.NewInt(0),
		Burned:        big.NewInt(0),
		Balances:      make(map[types.AgentID]*big.Int),
		Treasury:      big.NewInt(0),
		VestingNonce:  make(map[types.AgentID]uint64),
	}
}
