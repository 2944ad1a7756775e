package engine

import (
	"github.com/eng-cc/agent-world/core/events"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// runScheduledTimers scans every tick-bound entity (proposals, wars, crises)
// for a deadline matching tick and emits + applies the corresponding
// finalize/conclude/timeout event. World is already locked by the caller
// (Step). Iteration order is the map's, but since at most one timer-derived
// event targets any given entity per tick, the result is order-independent.
func (e *Engine) runScheduledTimers(tick uint64) []types.DomainEvent {
	var out []types.DomainEvent

	for id, proposal := range e.world.Proposals {
		if proposal.Finalized || proposal.ClosesAtTick != tick {
			continue
		}
		winner, totalWeight, passed := tallyProposal(proposal)
		ev := events.GovernanceProposalFinalized{Proposal: id, Winner: winner, Passed: passed, TotalWeightAtFinalize: totalWeight}
		out = append(out, e.applyTimerEvent(tick, events.KindGovernanceProposalFinalized, ev))
	}

	for id, war := range e.world.Wars {
		if war.Concluded || war.ConcludesAtTick != tick {
			continue
		}
		aggressorScore, defenderScore := scoreWar(e, war)
		winner := war.Aggressor
		if defenderScore > aggressorScore {
			winner = war.Defender
		} else if defenderScore == aggressorScore {
			winner = ""
		}
		ev := events.WarConcluded{War: id, Winner: winner, AggressorScore: aggressorScore, DefenderScore: defenderScore}
		out = append(out, e.applyTimerEvent(tick, events.KindWarConcluded, ev))
	}

	for id, crisis := range e.world.Crises {
		if crisis.Resolved || crisis.ExpiresAtTick != tick {
			continue
		}
		ev := events.CrisisTimedOut{Crisis: id}
		out = append(out, e.applyTimerEvent(tick, events.KindCrisisTimedOut, ev))
	}

	if pending := e.world.MainToken.PendingPolicy; pending != nil && pending.ActivatesAtEpoch == tick {
		e.world.MainToken.Policy = pending.Policy
		e.world.MainToken.PendingPolicy = nil
	}

	return out
}

// applyTimerEvent wraps a payload in a DomainEvent, applies it against the
// World immediately, and returns it for the journal. Timer-derived events
// are never rejected: they are computed from already-committed state, not
// submitted by an untrusted actor.
func (e *Engine) applyTimerEvent(tick uint64, kind types.EventKind, payload any) types.DomainEvent {
	ev := types.DomainEvent{Tick: tick, Kind: kind, Payload: payload}
	if err := applyEvent(e.world, ev); err != nil {
		e.log.Error("timer event application failed", "kind", kind, "error", err)
	}
	return ev
}

// tallyProposal decides the winning option and pass/fail outcome per spec
// section 4.4: a proposal passes only if total weight cast meets quorum and
// the winning option's share of cast weight is at least PassBps.
func tallyProposal(p *state.ProposalRecord) (winner string, totalWeight uint64, passed bool) {
	for _, w := range p.WeightByOption {
		totalWeight += w
	}
	var bestOption string
	var bestWeight uint64
	for _, opt := range p.Options {
		w := p.WeightByOption[opt]
		if w > bestWeight {
			bestWeight = w
			bestOption = opt
		}
	}
	if totalWeight < p.QuorumWeight || totalWeight == 0 {
		return bestOption, totalWeight, false
	}
	passBps := uint64(p.PassBps)
	if passBps == 0 {
		passBps = 5000
	}
	passed = bestWeight*10000 >= totalWeight*passBps
	return bestOption, totalWeight, passed
}

// scoreWar computes a deterministic outcome score per side from each
// alliance's member count scaled by the war's intensity. No randomness is
// used: the same committed state always concludes the same way.
func scoreWar(e *Engine, war *state.WarRecord) (aggressorScore, defenderScore uint64) {
	if alliance, ok := e.world.Alliances[war.Aggressor]; ok {
		aggressorScore = uint64(len(alliance.Members)) * uint64(war.Intensity+1)
	}
	if alliance, ok := e.world.Alliances[war.Defender]; ok {
		defenderScore = uint64(len(alliance.Members)) * uint64(war.Intensity+1)
	}
	return aggressorScore, defenderScore
}
