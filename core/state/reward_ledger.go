package state

import "github.com/eng-cc/agent-world/core/types"

// RewardLedger is the authoritative per-node reward bookkeeping the World
// owns; reward.Engine computes settlements but only the World mutates this
// ledger, via ApplyNodePointsSettlementSigned / RedeemPower(Signed) events.
type RewardLedger struct {
	Balances            map[types.NodeID]uint64 // power credits
	TotalMintedCredits   uint64
	ReservePowerBudget   uint64
	NodeServicePoolBudget uint64
	SettledEpochs        map[settlementKey]struct{}
	RedeemNonces         map[types.NodeID]uint64
}

type settlementKey struct {
	Epoch uint64
	Node  types.NodeID
}

func NewRewardLedger() *RewardLedger {
	return &RewardLedger{
		Balances:      make(map[types.NodeID]uint64),
		SettledEpochs: make(map[settlementKey]struct{}),
		RedeemNonces:  make(map[types.NodeID]uint64),
	}
}

// HasSettled reports whether (epoch, node) has already been applied,
// enforcing the no-duplicate-settlement invariant.
func (r *RewardLedger) HasSettled(epoch uint64, node types.NodeID) bool {
	_, ok := r.SettledEpochs[settlementKey{Epoch: epoch, Node: node}]
	return ok
}

func (r *RewardLedger) MarkSettled(epoch uint64, node types.NodeID) {
	r.SettledEpochs[settlementKey{Epoch: epoch, Node: node}] = struct{}{}
}
