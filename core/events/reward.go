package events

import (
	"math/big"

	"github.com/eng-cc/agent-world/core/types"
)

const (
	KindNodePointsSettlementApplied types.EventKind = "NodePointsSettlementApplied"
	KindPowerRedeemed               types.EventKind = "PowerRedeemed"
)

// NodePointsSettlementApplied records an accepted per-epoch reward
// settlement: balance updates, minted totals, and the pool budget drawn
// down.
type NodePointsSettlementApplied struct {
	Epoch               uint64
	MintedByNode        map[types.NodeID]uint64
	TotalMinted         uint64
	RemainingPoolBudget uint64
	MainTokenBridge     *big.Int
}

// PowerRedeemed records an atomic credit-to-electricity conversion.
type PowerRedeemed struct {
	Node          types.NodeID
	TargetAgent   types.AgentID
	CreditsBurned uint64
	PowerGranted  uint64
	Nonce         uint64
}
