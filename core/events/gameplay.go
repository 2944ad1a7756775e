package events

import "github.com/eng-cc/agent-world/core/types"

const (
	KindAllianceFormed    types.EventKind = "AllianceFormed"
	KindAllianceJoined    types.EventKind = "AllianceJoined"
	KindAllianceLeft      types.EventKind = "AllianceLeft"
	KindAllianceDissolved types.EventKind = "AllianceDissolved"

	KindWarDeclared types.EventKind = "WarDeclared"
	KindWarConcluded types.EventKind = "WarConcluded"

	KindGovernanceProposalOpened     types.EventKind = "GovernanceProposalOpened"
	KindGovernanceVoteCast           types.EventKind = "GovernanceVoteCast"
	KindGovernanceProposalFinalized  types.EventKind = "GovernanceProposalFinalized"

	KindCrisisSpawned  types.EventKind = "CrisisSpawned"
	KindCrisisResolved types.EventKind = "CrisisResolved"
	KindCrisisTimedOut types.EventKind = "CrisisTimedOut"

	KindMetaProgressGranted types.EventKind = "MetaProgressGranted"
)

type AllianceFormed struct {
	Alliance types.AllianceID
	Founders []types.AgentID
}

type AllianceJoined struct {
	Alliance types.AllianceID
	Member   types.AgentID
}

type AllianceLeft struct {
	Alliance types.AllianceID
	Member   types.AgentID
}

type AllianceDissolved struct {
	Alliance types.AllianceID
}

type WarDeclared struct {
	War           types.WarID
	Aggressor     types.AllianceID
	Defender      types.AllianceID
	Intensity     uint32
	ConcludesAtTick uint64
}

// WarConcluded resolves a war deterministically; Winner is empty for a draw.
type WarConcluded struct {
	War             types.WarID
	Winner          types.AllianceID
	AggressorScore  uint64
	DefenderScore   uint64
}

type GovernanceProposalOpened struct {
	Proposal types.ProposalID
	Options  []string
	ClosesAtTick uint64
	QuorumWeight uint64
	PassBps      uint32
}

type GovernanceVoteCast struct {
	Proposal types.ProposalID
	Voter    types.AgentID
	Option   string
	Weight   uint64
}

type GovernanceProposalFinalized struct {
	Proposal          types.ProposalID
	Winner            string
	Passed            bool
	TotalWeightAtFinalize uint64
}

type CrisisSpawned struct {
	Crisis    types.CrisisID
	Kind      string
	ExpiresAtTick uint64
}

type CrisisResolved struct {
	Crisis types.CrisisID
	Outcome string
}

type CrisisTimedOut struct {
	Crisis types.CrisisID
}

type MetaProgressGranted struct {
	Agent     types.AgentID
	Track     string
	Amount    uint64
}
