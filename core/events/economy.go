package events

import (
	"math/big"

	"github.com/eng-cc/agent-world/core/types"
)

const (
	KindEconomicContractOpened   types.EventKind = "EconomicContractOpened"
	KindEconomicContractAccepted types.EventKind = "EconomicContractAccepted"
	KindEconomicContractSettled  types.EventKind = "EconomicContractSettled"
	KindMainTokenTreasuryDistributed types.EventKind = "MainTokenTreasuryDistributed"
)

// EconomicContractOpened records a new bilateral contract awaiting acceptance.
type EconomicContractOpened struct {
	Contract types.ContractID
	Offerer  types.AgentID
	Terms    string
}

// EconomicContractAccepted records the counterparty binding to a contract.
type EconomicContractAccepted struct {
	Contract    types.ContractID
	Counterparty types.AgentID
}

// EconomicContractSettled records the final transfer that closes a contract.
type EconomicContractSettled struct {
	Contract types.ContractID
	Amount   *big.Int
}

// MainTokenTreasuryDistributed records a treasury payout to one or more
// recipients, sourced from the treasury balance (conservation preserved).
type MainTokenTreasuryDistributed struct {
	Recipients map[types.AgentID]*big.Int
}
