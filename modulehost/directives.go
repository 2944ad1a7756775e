package modulehost

import (
	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/events"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// Directive is one typed command a module's invocation output can emit
// (spec section 4.2: governance_finalize, crisis_spawn, crisis_timeout,
// war_conclude, meta_grant, ...). The host never executes a directive
// directly; it validates and translates it into a DomainEvent, or rejects
// it with ModuleDirectiveRejected.
type Directive struct {
	Kind string
	// Fields are a superset across directive kinds; only the ones relevant
	// to Kind are read by TranslateDirective.
	Crisis       types.CrisisID
	CrisisKind   string
	ExpiresAtTick uint64
	War          types.WarID
	Winner       types.AllianceID
	Proposal     types.ProposalID
	Agent        types.AgentID
	Track        string
	Amount       uint64
}

// TranslateDirective validates one directive emitted by module against
// world invariants and returns the DomainEvent it translates to, or a
// ModuleDirectiveRejected event when validation fails. It never returns a
// Go error for a rejected directive — only for a programmer-error
// condition (unrecognized directive kind).
func TranslateDirective(world *state.World, module types.ModuleID, d Directive) (types.DomainEvent, error) {
	switch d.Kind {
	case "crisis_spawn":
		if _, exists := world.Crises[d.Crisis]; exists {
			return rejectDirective(module, d.Kind, "crisis id already exists"), nil
		}
		return types.DomainEvent{Kind: events.KindCrisisSpawned, Payload: events.CrisisSpawned{
			Crisis: d.Crisis, Kind: d.CrisisKind, ExpiresAtTick: d.ExpiresAtTick,
		}}, nil

	case "crisis_timeout":
		crisis, ok := world.Crises[d.Crisis]
		if !ok || crisis.Resolved {
			return rejectDirective(module, d.Kind, "crisis unknown or already resolved"), nil
		}
		return types.DomainEvent{Kind: events.KindCrisisTimedOut, Payload: events.CrisisTimedOut{Crisis: d.Crisis}}, nil

	case "war_conclude":
		war, ok := world.Wars[d.War]
		if !ok || war.Concluded {
			return rejectDirective(module, d.Kind, "war unknown or already concluded"), nil
		}
		return types.DomainEvent{Kind: events.KindWarConcluded, Payload: events.WarConcluded{War: d.War, Winner: d.Winner}}, nil

	case "governance_finalize":
		proposal, ok := world.Proposals[d.Proposal]
		if !ok || proposal.Finalized {
			return rejectDirective(module, d.Kind, "proposal unknown or already finalized"), nil
		}
		return types.DomainEvent{Kind: events.KindGovernanceProposalFinalized, Payload: events.GovernanceProposalFinalized{
			Proposal: d.Proposal,
		}}, nil

	case "meta_grant":
		if _, ok := world.Agents[d.Agent]; !ok {
			return rejectDirective(module, d.Kind, "unknown agent"), nil
		}
		return types.DomainEvent{Kind: events.KindMetaProgressGranted, Payload: events.MetaProgressGranted{
			Agent: d.Agent, Track: d.Track, Amount: d.Amount,
		}}, nil

	default:
		return types.DomainEvent{}, worlderrors.ErrDirectiveRejected
	}
}

func rejectDirective(module types.ModuleID, directive, reason string) types.DomainEvent {
	return types.DomainEvent{Kind: events.KindModuleDirectiveRejected, Payload: events.ModuleDirectiveRejected{
		Module: module, Directive: directive, Reason: reason,
	}}
}
