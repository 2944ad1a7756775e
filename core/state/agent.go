package state

import "github.com/eng-cc/agent-world/core/types"

// ResourceBag holds the fungible resources an agent or factory can hold.
// Fields are plain uint64 counts (cm-scale physical units, not tokens —
// token balances live on MainTokenLedger).
type ResourceBag struct {
	Electricity uint64
	Compound    uint64
	Data        uint64
}

// AgentState is the mutable record for one agent. It is only ever mutated
// through applied events, never written to directly by validators.
type AgentState struct {
	ID          types.AgentID
	Position    types.Position
	Resources   ResourceBag
	MemoryHandle string
	Goals       []string
	Reputation  int64
	LastNonce   uint64
	Alliance    types.AllianceID
	Retired     bool
}

// Clone returns a deep copy suitable for snapshotting or speculative
// validation.
func (a AgentState) Clone() AgentState {
	clone := a
	clone.Goals = append([]string(nil), a.Goals...)
	return clone
}
