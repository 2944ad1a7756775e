package state

import "github.com/eng-cc/agent-world/core/types"

// Alliances, wars, proposals, and crises are modeled as arenas keyed by id
// with back-reference sets, never as direct pointer graphs — this keeps the
// cyclic gameplay relations (alliance <-> members <-> wars) snapshot-safe
// and avoids aliasing across clones.

type AllianceRecord struct {
	ID      types.AllianceID
	Members map[types.AgentID]struct{}
	Wars    map[types.WarID]struct{}
}

func (a AllianceRecord) Clone() AllianceRecord {
	clone := AllianceRecord{ID: a.ID,
		Members: make(map[types.AgentID]struct{}, len(a.Members)),
		Wars:    make(map[types.WarID]struct{}, len(a.Wars)),
	}
	for k := range a.Members {
		clone.Members[k] = struct{}{}
	}
	for k := range a.Wars {
		clone.Wars[k] = struct{}{}
	}
	return clone
}

type WarRecord struct {
	ID              types.WarID
	Aggressor       types.AllianceID
	Defender        types.AllianceID
	Intensity       uint32
	DeclaredAtTick  uint64
	ConcludesAtTick uint64
	Concluded       bool
}

// ProposalRecord tracks a governance proposal's accumulated votes. Weight is
// keyed by chosen option so finalization only needs a single pass.
type ProposalRecord struct {
	ID           types.ProposalID
	Options      []string
	Votes        map[types.AgentID]string
	WeightByOption map[string]uint64
	OpenedAtTick uint64
	ClosesAtTick uint64
	QuorumWeight uint64
	PassBps      uint32
	Finalized    bool
}

func (p ProposalRecord) Clone() ProposalRecord {
	clone := p
	clone.Options = append([]string(nil), p.Options...)
	clone.Votes = make(map[types.AgentID]string, len(p.Votes))
	for k, v := range p.Votes {
		clone.Votes[k] = v
	}
	clone.WeightByOption = make(map[string]uint64, len(p.WeightByOption))
	for k, v := range p.WeightByOption {
		clone.WeightByOption[k] = v
	}
	return clone
}

type CrisisRecord struct {
	ID            types.CrisisID
	Kind          string
	SpawnedAtTick uint64
	ExpiresAtTick uint64
	Resolved      bool
}

type ContractRecord struct {
	ID           types.ContractID
	Offerer      types.AgentID
	Counterparty types.AgentID
	Terms        string
	Accepted     bool
	Settled      bool
}

type FactoryRecord struct {
	ID       types.FactoryID
	Owner    types.AgentID
	Location types.LocationID
	Queue    []RecipeJob
}

type RecipeJob struct {
	RecipeID string
	Quantity uint64
}

// AssetRecord enforces ownership exclusivity: Owner is either an AgentID or
// an AllianceID string, never both — exactly one owner at any instant.
type AssetRecord struct {
	ID    types.AssetID
	Owner string
	Kind  string
}

// MetaProgress tracks unlock counters per agent per track.
type MetaProgress struct {
	ByAgent map[types.AgentID]map[string]uint64
}
