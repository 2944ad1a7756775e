package engine

import (
	"fmt"
	"math/big"

	"github.com/eng-cc/agent-world/core/events"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// applyEvent mutates world in place for one already-accepted DomainEvent. It
// is a total function over the closed set of event kinds this world emits:
// an unrecognized kind is a programming error, not a runtime condition, so
// it is reported rather than silently ignored.
func applyEvent(world *state.World, ev types.DomainEvent) error {
	switch ev.Kind {
	case events.KindAgentSpawned:
		e := ev.Payload.(events.AgentSpawned)
		world.Agents[e.Agent] = &state.AgentState{ID: e.Agent, Position: e.Position}
		return nil

	case events.KindAgentRetired:
		e := ev.Payload.(events.AgentRetired)
		world.Agents[e.Agent].Retired = true
		return nil

	case events.KindAgentMoved:
		e := ev.Payload.(events.AgentMoved)
		world.Agents[e.Agent].Position = e.To
		return nil

	case events.KindAgentInteracted:
		// Interaction carries no state mutation of its own; gameplay modules
		// observe it and emit their own follow-on events.
		return nil

	case events.KindRadiationHarvested:
		e := ev.Payload.(events.RadiationHarvested)
		loc := world.Locations[e.Location]
		loc.Radiation -= e.Amount
		world.Agents[e.Agent].Resources.Electricity += e.Amount
		return nil

	case events.KindCompoundMined:
		e := ev.Payload.(events.CompoundMined)
		loc := world.Locations[e.Location]
		loc.CompoundDeposit -= e.Amount
		world.Agents[e.Agent].Resources.Compound += e.Amount
		return nil

	case events.KindCompoundRefined:
		e := ev.Payload.(events.CompoundRefined)
		agent := world.Agents[e.Agent]
		agent.Resources.Compound -= e.CompoundSpent
		agent.Resources.Data += e.DataGained
		return nil

	case events.KindFactoryBuilt:
		e := ev.Payload.(events.FactoryBuilt)
		world.Factories[e.Factory] = &state.FactoryRecord{ID: e.Factory, Owner: e.Agent, Location: e.Location}
		return nil

	case events.KindRecipeScheduled:
		e := ev.Payload.(events.RecipeScheduled)
		factory := world.Factories[e.Factory]
		factory.Queue = append(factory.Queue, state.RecipeJob{RecipeID: e.RecipeID, Quantity: e.Quantity})
		return nil

	case events.KindAllianceFormed:
		e := ev.Payload.(events.AllianceFormed)
		rec := &state.AllianceRecord{ID: e.Alliance, Members: make(map[types.AgentID]struct{}), Wars: make(map[types.WarID]struct{})}
		for _, f := range e.Founders {
			rec.Members[f] = struct{}{}
			if agent, ok := world.Agents[f]; ok {
				agent.Alliance = e.Alliance
			}
		}
		world.Alliances[e.Alliance] = rec
		return nil

	case events.KindAllianceJoined:
		e := ev.Payload.(events.AllianceJoined)
		world.Alliances[e.Alliance].Members[e.Member] = struct{}{}
		if agent, ok := world.Agents[e.Member]; ok {
			agent.Alliance = e.Alliance
		}
		return nil

	case events.KindAllianceLeft:
		e := ev.Payload.(events.AllianceLeft)
		delete(world.Alliances[e.Alliance].Members, e.Member)
		if agent, ok := world.Agents[e.Member]; ok {
			agent.Alliance = ""
		}
		return nil

	case events.KindAllianceDissolved:
		e := ev.Payload.(events.AllianceDissolved)
		for member := range world.Alliances[e.Alliance].Members {
			if agent, ok := world.Agents[member]; ok {
				agent.Alliance = ""
			}
		}
		delete(world.Alliances, e.Alliance)
		return nil

	case events.KindWarDeclared:
		e := ev.Payload.(events.WarDeclared)
		rec := &state.WarRecord{
			ID: e.War, Aggressor: e.Aggressor, Defender: e.Defender,
			Intensity: e.Intensity, DeclaredAtTick: world.Tick, ConcludesAtTick: e.ConcludesAtTick,
		}
		world.Wars[e.War] = rec
		if alliance, ok := world.Alliances[e.Aggressor]; ok {
			alliance.Wars[e.War] = struct{}{}
		}
		if alliance, ok := world.Alliances[e.Defender]; ok {
			alliance.Wars[e.War] = struct{}{}
		}
		return nil

	case events.KindWarConcluded:
		e := ev.Payload.(events.WarConcluded)
		war := world.Wars[e.War]
		war.Concluded = true
		return nil

	case events.KindGovernanceProposalOpened:
		e := ev.Payload.(events.GovernanceProposalOpened)
		world.Proposals[e.Proposal] = &state.ProposalRecord{
			ID: e.Proposal, Options: e.Options, Votes: make(map[types.AgentID]string),
			WeightByOption: make(map[string]uint64), OpenedAtTick: world.Tick,
			ClosesAtTick: e.ClosesAtTick, QuorumWeight: e.QuorumWeight, PassBps: e.PassBps,
		}
		return nil

	case events.KindGovernanceVoteCast:
		e := ev.Payload.(events.GovernanceVoteCast)
		proposal := world.Proposals[e.Proposal]
		if prior, voted := proposal.Votes[e.Voter]; voted {
			proposal.WeightByOption[prior] -= e.Weight
		}
		proposal.Votes[e.Voter] = e.Option
		proposal.WeightByOption[e.Option] += e.Weight
		return nil

	case events.KindGovernanceProposalFinalized:
		e := ev.Payload.(events.GovernanceProposalFinalized)
		world.Proposals[e.Proposal].Finalized = true
		return nil

	case events.KindCrisisSpawned:
		e := ev.Payload.(events.CrisisSpawned)
		world.Crises[e.Crisis] = &state.CrisisRecord{ID: e.Crisis, Kind: e.Kind, SpawnedAtTick: world.Tick, ExpiresAtTick: e.ExpiresAtTick}
		return nil

	case events.KindCrisisResolved:
		e := ev.Payload.(events.CrisisResolved)
		world.Crises[e.Crisis].Resolved = true
		return nil

	case events.KindCrisisTimedOut:
		e := ev.Payload.(events.CrisisTimedOut)
		world.Crises[e.Crisis].Resolved = true
		return nil

	case events.KindMetaProgressGranted:
		e := ev.Payload.(events.MetaProgressGranted)
		byTrack, ok := world.MetaProgress.ByAgent[e.Agent]
		if !ok {
			byTrack = make(map[string]uint64)
			world.MetaProgress.ByAgent[e.Agent] = byTrack
		}
		byTrack[e.Track] += e.Amount
		return nil

	case events.KindMainTokenGenesisInitialized:
		e := ev.Payload.(events.MainTokenGenesisInitialized)
		world.MainToken.InitialSupply = e.InitialSupply
		world.MainToken.Treasury = e.Treasury
		world.MainToken.Initialized = true
		return nil

	case events.KindMainTokenVestingClaimed:
		e := ev.Payload.(events.MainTokenVestingClaimed)
		bal, ok := world.MainToken.Balances[e.Agent]
		if !ok {
			bal = newZero()
			world.MainToken.Balances[e.Agent] = bal
		}
		bal.Add(bal, e.Amount)
		world.MainToken.VestingNonce[e.Agent] = e.VestingNonce
		return nil

	case events.KindMainTokenEpochIssuanceApplied:
		e := ev.Payload.(events.MainTokenEpochIssuanceApplied)
		world.MainToken.Issued.Add(world.MainToken.Issued, e.Issued)
		world.MainToken.Treasury.Add(world.MainToken.Treasury, e.Issued)
		return nil

	case events.KindMainTokenFeeSettled:
		e := ev.Payload.(events.MainTokenFeeSettled)
		bal := world.MainToken.Balances[e.Payer]
		bal.Sub(bal, e.Amount)
		world.MainToken.Burned.Add(world.MainToken.Burned, e.Burned)
		kept := newZero()
		kept.Sub(e.Amount, e.Burned)
		world.MainToken.Treasury.Add(world.MainToken.Treasury, kept)
		return nil

	case events.KindMainTokenPolicyUpdated:
		// The policy value itself is carried on the pending-update slot set
		// up by validateUpdateMainTokenPolicy when the action was validated; this
		// event only marks the change recorded, consistent with the
		// two-epoch delayed-activation design.
		return nil

	case events.KindMainTokenTreasuryDistributed:
		e := ev.Payload.(events.MainTokenTreasuryDistributed)
		for agent, amt := range e.Recipients {
			bal, ok := world.MainToken.Balances[agent]
			if !ok {
				bal = newZero()
				world.MainToken.Balances[agent] = bal
			}
			bal.Add(bal, amt)
			world.MainToken.Treasury.Sub(world.MainToken.Treasury, amt)
		}
		return nil

	case events.KindModuleArtifactCompiled, events.KindModuleRegistered, events.KindModuleActivated,
		events.KindModuleDeactivated, events.KindModuleUpgraded, events.KindModuleDirectiveRejected:
		// modulehost owns ModuleRecord mutation directly (it validates
		// against the live World under the same lock the engine holds); by
		// the time these events reach the journal the mutation already
		// happened, so apply is a no-op replay marker.
		return nil

	case events.KindNodePointsSettlementApplied:
		e := ev.Payload.(events.NodePointsSettlementApplied)
		for node, credits := range e.MintedByNode {
			world.Rewards.Balances[node] += credits
			world.Rewards.MarkSettled(e.Epoch, node)
		}
		world.Rewards.TotalMintedCredits += e.TotalMinted
		if e.MainTokenBridge != nil && e.MainTokenBridge.Sign() > 0 {
			world.MainToken.Issued.Add(world.MainToken.Issued, e.MainTokenBridge)
			world.MainToken.Treasury.Add(world.MainToken.Treasury, e.MainTokenBridge)
		}
		return nil

	case events.KindPowerRedeemed:
		e := ev.Payload.(events.PowerRedeemed)
		world.Rewards.Balances[e.Node] -= e.CreditsBurned
		world.Rewards.ReservePowerBudget -= e.PowerGranted
		world.Rewards.RedeemNonces[e.Node] = e.Nonce
		if agent, ok := world.Agents[e.TargetAgent]; ok {
			agent.Resources.Electricity += e.PowerGranted
		}
		return nil

	case events.KindEconomicContractOpened:
		e := ev.Payload.(events.EconomicContractOpened)
		world.Contracts[e.Contract] = &state.ContractRecord{ID: e.Contract, Offerer: e.Offerer, Terms: e.Terms}
		return nil

	case events.KindEconomicContractAccepted:
		e := ev.Payload.(events.EconomicContractAccepted)
		contract := world.Contracts[e.Contract]
		contract.Counterparty = e.Counterparty
		contract.Accepted = true
		return nil

	case events.KindEconomicContractSettled:
		e := ev.Payload.(events.EconomicContractSettled)
		world.Contracts[e.Contract].Settled = true
		return nil

	case types.EventActionRejected:
		return nil

	default:
		return fmt.Errorf("engine: unrecognized event kind %q", ev.Kind)
	}
}

func newZero() *big.Int { return new(big.Int) }
