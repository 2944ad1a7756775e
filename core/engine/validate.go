package engine

import (
	"encoding/binary"
	"math/big"

	"github.com/eng-cc/agent-world/core/events"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/crypto"
	"github.com/eng-cc/agent-world/modulehost"
	"github.com/eng-cc/agent-world/reward"
)

// validateAndApply validates one action against the current World and, on
// success, applies the resulting events. Validation is total and
// deterministic: no wall-clock reads beyond the explicitly passed nowMs, no
// I/O. A validation failure never mutates World; it returns an
// ActionRejected instead.
func (e *Engine) validateAndApply(env types.Envelope, nowMs int64) ([]types.DomainEvent, *types.ActionRejected) {
	action := env.Action

	agent, ok := e.world.Agents[action.Actor]
	if requiresKnownAgent(action.Kind) {
		if !ok || agent.Retired {
			return nil, reject(action, types.ReasonUnknownEntity, "unknown or retired agent")
		}
		if action.Nonce <= agent.LastNonce {
			return nil, reject(action, types.ReasonNonceReplay, "nonce must exceed last accepted")
		}
	}

	var evs []types.DomainEvent
	var rejected *types.ActionRejected

	switch action.Kind {
	case types.ActionSpawnAgent:
		evs, rejected = validateSpawnAgent(e.world, action)
	case types.ActionRetireAgent:
		evs, rejected = validateRetireAgent(e.world, action)
	case types.ActionMove:
		evs, rejected = validateMove(e.world, action)
	case types.ActionInteract:
		evs, rejected = validateInteract(e.world, action)
	case types.ActionHarvestRadiation:
		evs, rejected = validateHarvestRadiation(e.world, action)
	case types.ActionMineCompound:
		evs, rejected = validateMineCompound(e.world, action)
	case types.ActionRefineCompound:
		evs, rejected = validateRefineCompound(e.world, action)
	case types.ActionBuildFactory:
		evs, rejected = validateBuildFactory(e.world, action)
	case types.ActionScheduleRecipe:
		evs, rejected = validateScheduleRecipe(e.world, action)
	case types.ActionFormAlliance:
		evs, rejected = validateFormAlliance(e.world, action)
	case types.ActionJoinAlliance:
		evs, rejected = validateJoinAlliance(e.world, action)
	case types.ActionLeaveAlliance:
		evs, rejected = validateLeaveAlliance(e.world, action)
	case types.ActionDissolveAlliance:
		evs, rejected = validateDissolveAlliance(e.world, action)
	case types.ActionDeclareWar:
		evs, rejected = validateDeclareWar(e.world, action)
	case types.ActionOpenGovernanceProposal:
		evs, rejected = validateOpenGovernanceProposal(e.world, action)
	case types.ActionCastGovernanceVote:
		evs, rejected = validateCastGovernanceVote(e.world, action)
	case types.ActionResolveCrisis:
		evs, rejected = validateResolveCrisis(e.world, action)
	case types.ActionGrantMetaProgress:
		evs, rejected = validateGrantMetaProgress(e.world, action)
	case types.ActionDistributeMainTokenTreasury:
		evs, rejected = validateDistributeTreasury(e.world, action)
	case types.ActionCompileModuleArtifactFromSource:
		evs, rejected = validateCompileModuleArtifact(e.world, action)
	case types.ActionRegisterModule:
		evs, rejected = e.validateRegisterModule(action)
	case types.ActionActivateModule:
		evs, rejected = e.validateActivateModule(action)
	case types.ActionDeactivateModule:
		evs, rejected = e.validateDeactivateModule(action)
	case types.ActionUpgradeModule:
		evs, rejected = e.validateUpgradeModule(action)
	case types.ActionApplyNodePointsSettlementSigned:
		evs, rejected = e.validateApplyNodePointsSettlementSigned(action)
	case types.ActionRedeemPower:
		evs, rejected = e.validateRedeemPower(action, false)
	case types.ActionRedeemPowerSigned:
		evs, rejected = e.validateRedeemPower(action, true)
	case types.ActionInitializeMainTokenGenesis:
		evs, rejected = validateInitializeMainTokenGenesis(e.world, action)
	case types.ActionClaimMainTokenVesting:
		evs, rejected = validateClaimMainTokenVesting(e.world, action)
	case types.ActionApplyMainTokenEpochIssuance:
		evs, rejected = validateApplyMainTokenEpochIssuance(e.world, action)
	case types.ActionSettleMainTokenFee:
		evs, rejected = validateSettleMainTokenFee(e.world, action)
	case types.ActionUpdateMainTokenPolicy:
		evs, rejected = e.validateUpdateMainTokenPolicy(action)
	case types.ActionOpenEconomicContract:
		evs, rejected = validateOpenEconomicContract(e.world, action)
	case types.ActionAcceptEconomicContract:
		evs, rejected = validateAcceptEconomicContract(e.world, action)
	case types.ActionSettleEconomicContract:
		evs, rejected = validateSettleEconomicContract(e.world, action)
	default:
		rejected = reject(action, types.ReasonMalformed, "unrecognized action kind for direct engine validation")
	}

	if rejected != nil {
		return nil, rejected
	}

	for _, ev := range evs {
		if err := applyEvent(e.world, ev); err != nil {
			return nil, reject(action, types.ReasonMalformed, err.Error())
		}
	}

	if ok && requiresKnownAgent(action.Kind) {
		agent.LastNonce = action.Nonce
	}

	return evs, nil
}

func requiresKnownAgent(kind types.ActionKind) bool {
	switch kind {
	case types.ActionMove, types.ActionInteract, types.ActionHarvestRadiation, types.ActionMineCompound,
		types.ActionRefineCompound, types.ActionBuildFactory, types.ActionScheduleRecipe,
		types.ActionFormAlliance, types.ActionJoinAlliance, types.ActionLeaveAlliance, types.ActionDissolveAlliance,
		types.ActionCastGovernanceVote, types.ActionGrantMetaProgress, types.ActionRetireAgent,
		types.ActionCompileModuleArtifactFromSource, types.ActionRegisterModule, types.ActionUpgradeModule:
		return true
	default:
		return false
	}
}

func reject(action types.Action, reason types.RejectReason, detail string) *types.ActionRejected {
	return &types.ActionRejected{ActionKind: action.Kind, Actor: action.Actor, Reason: reason, Detail: detail}
}

func validateSpawnAgent(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(SpawnAgentPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected SpawnAgentPayload")
	}
	if _, exists := w.Agents[payload.Agent]; exists {
		return nil, reject(action, types.ReasonMalformed, "agent id already exists")
	}
	ev := events.AgentSpawned{Agent: payload.Agent, Position: payload.Position}
	return []types.DomainEvent{{Kind: events.KindAgentSpawned, Payload: ev}}, nil
}

func validateRetireAgent(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	ev := events.AgentRetired{Agent: action.Actor}
	return []types.DomainEvent{{Kind: events.KindAgentRetired, Payload: ev}}, nil
}

func validateMove(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(MovePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected MovePayload")
	}
	agent := w.Agents[action.Actor]
	ev := events.AgentMoved{Agent: action.Actor, From: agent.Position, To: payload.To}
	return []types.DomainEvent{{Kind: events.KindAgentMoved, Payload: ev}}, nil
}

func validateInteract(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(InteractPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected InteractPayload")
	}
	ev := events.AgentInteracted{Agent: action.Actor, Target: string(payload.Target), Kind: payload.Kind}
	return []types.DomainEvent{{Kind: events.KindAgentInteracted, Payload: ev}}, nil
}

func validateHarvestRadiation(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(HarvestRadiationPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected HarvestRadiationPayload")
	}
	loc, ok := w.Locations[payload.Location]
	if !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown location")
	}
	if loc.Radiation < payload.Amount {
		return nil, reject(action, types.ReasonInsufficientData, "insufficient_resource.data")
	}
	ev := events.RadiationHarvested{Agent: action.Actor, Location: payload.Location, Amount: payload.Amount}
	return []types.DomainEvent{{Kind: events.KindRadiationHarvested, Payload: ev}}, nil
}

func validateMineCompound(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(MineCompoundPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected MineCompoundPayload")
	}
	loc, ok := w.Locations[payload.Location]
	if !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown location")
	}
	if loc.CompoundDeposit < payload.Amount {
		return nil, reject(action, types.ReasonInsufficientData, "insufficient_resource.data")
	}
	ev := events.CompoundMined{Agent: action.Actor, Location: payload.Location, Amount: payload.Amount}
	return []types.DomainEvent{{Kind: events.KindCompoundMined, Payload: ev}}, nil
}

func validateRefineCompound(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(RefineCompoundPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected RefineCompoundPayload")
	}
	agent := w.Agents[action.Actor]
	if agent.Resources.Compound < payload.CompoundSpent {
		return nil, reject(action, types.ReasonInsufficientData, "insufficient_resource.data")
	}
	ev := events.CompoundRefined{Agent: action.Actor, CompoundSpent: payload.CompoundSpent, DataGained: payload.DataGained}
	return []types.DomainEvent{{Kind: events.KindCompoundRefined, Payload: ev}}, nil
}

func validateBuildFactory(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(BuildFactoryPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected BuildFactoryPayload")
	}
	if _, exists := w.Factories[payload.Factory]; exists {
		return nil, reject(action, types.ReasonMalformed, "factory id already exists")
	}
	if _, ok := w.Locations[payload.Location]; !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown location")
	}
	ev := events.FactoryBuilt{Agent: action.Actor, Location: payload.Location, Factory: payload.Factory}
	return []types.DomainEvent{{Kind: events.KindFactoryBuilt, Payload: ev}}, nil
}

func validateScheduleRecipe(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(ScheduleRecipePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected ScheduleRecipePayload")
	}
	factory, ok := w.Factories[payload.Factory]
	if !ok || factory.Owner != action.Actor {
		return nil, reject(action, types.ReasonNotOwner, "factory not owned by actor")
	}
	ev := events.RecipeScheduled{Factory: payload.Factory, RecipeID: payload.RecipeID, Quantity: payload.Quantity}
	return []types.DomainEvent{{Kind: events.KindRecipeScheduled, Payload: ev}}, nil
}

func validateFormAlliance(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(FormAlliancePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected FormAlliancePayload")
	}
	if _, exists := w.Alliances[payload.Alliance]; exists {
		return nil, reject(action, types.ReasonMalformed, "alliance id already exists")
	}
	ev := events.AllianceFormed{Alliance: payload.Alliance, Founders: payload.Founders}
	return []types.DomainEvent{{Kind: events.KindAllianceFormed, Payload: ev}}, nil
}

func validateJoinAlliance(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(JoinAlliancePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected JoinAlliancePayload")
	}
	if _, ok := w.Alliances[payload.Alliance]; !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown alliance")
	}
	ev := events.AllianceJoined{Alliance: payload.Alliance, Member: action.Actor}
	return []types.DomainEvent{{Kind: events.KindAllianceJoined, Payload: ev}}, nil
}

func validateLeaveAlliance(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(LeaveAlliancePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected LeaveAlliancePayload")
	}
	alliance, ok := w.Alliances[payload.Alliance]
	if !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown alliance")
	}
	if _, member := alliance.Members[action.Actor]; !member {
		return nil, reject(action, types.ReasonNotOwner, "actor is not a member")
	}
	ev := events.AllianceLeft{Alliance: payload.Alliance, Member: action.Actor}
	return []types.DomainEvent{{Kind: events.KindAllianceLeft, Payload: ev}}, nil
}

func validateDissolveAlliance(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(DissolveAlliancePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected DissolveAlliancePayload")
	}
	if _, ok := w.Alliances[payload.Alliance]; !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown alliance")
	}
	ev := events.AllianceDissolved{Alliance: payload.Alliance}
	return []types.DomainEvent{{Kind: events.KindAllianceDissolved, Payload: ev}}, nil
}

func validateDeclareWar(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(DeclareWarPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected DeclareWarPayload")
	}
	if _, exists := w.Wars[payload.War]; exists {
		return nil, reject(action, types.ReasonMalformed, "war id already exists")
	}
	if _, ok := w.Alliances[payload.Aggressor]; !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown aggressor alliance")
	}
	if _, ok := w.Alliances[payload.Defender]; !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown defender alliance")
	}
	// War duration formula is sourced from policy, not hardcoded, per the
	// design-notes open question on baseline economic constants.
	policy := w.MainToken.Policy
	duration := policy.WarDurationBaseTicks + policy.WarDurationPerIntensityTicks*uint64(payload.Intensity)
	if duration == 0 {
		duration = 6 + 2*uint64(payload.Intensity)
	}
	ev := events.WarDeclared{
		War: payload.War, Aggressor: payload.Aggressor, Defender: payload.Defender,
		Intensity: payload.Intensity, ConcludesAtTick: w.Tick + duration,
	}
	return []types.DomainEvent{{Kind: events.KindWarDeclared, Payload: ev}}, nil
}

func validateOpenGovernanceProposal(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(OpenGovernanceProposalPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected OpenGovernanceProposalPayload")
	}
	if _, exists := w.Proposals[payload.Proposal]; exists {
		return nil, reject(action, types.ReasonMalformed, "proposal id already exists")
	}
	if len(payload.Options) < 2 {
		return nil, reject(action, types.ReasonMalformed, "proposal requires at least two options")
	}
	ev := events.GovernanceProposalOpened{
		Proposal: payload.Proposal, Options: payload.Options,
		ClosesAtTick: w.Tick + payload.WindowTicks, QuorumWeight: payload.QuorumWeight, PassBps: payload.PassBps,
	}
	return []types.DomainEvent{{Kind: events.KindGovernanceProposalOpened, Payload: ev}}, nil
}

func validateCastGovernanceVote(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(CastGovernanceVotePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected CastGovernanceVotePayload")
	}
	proposal, ok := w.Proposals[payload.Proposal]
	if !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown proposal")
	}
	if proposal.Finalized || w.Tick >= proposal.ClosesAtTick {
		return nil, reject(action, types.ReasonVotingClosed, "voting_closed")
	}
	validOption := false
	for _, opt := range proposal.Options {
		if opt == payload.Option {
			validOption = true
			break
		}
	}
	if !validOption {
		return nil, reject(action, types.ReasonMalformed, "option not on ballot")
	}
	ev := events.GovernanceVoteCast{Proposal: payload.Proposal, Voter: action.Actor, Option: payload.Option, Weight: payload.Weight}
	return []types.DomainEvent{{Kind: events.KindGovernanceVoteCast, Payload: ev}}, nil
}

func validateResolveCrisis(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(ResolveCrisisPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected ResolveCrisisPayload")
	}
	crisis, ok := w.Crises[payload.Crisis]
	if !ok || crisis.Resolved {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown or already resolved crisis")
	}
	ev := events.CrisisResolved{Crisis: payload.Crisis, Outcome: payload.Outcome}
	return []types.DomainEvent{{Kind: events.KindCrisisResolved, Payload: ev}}, nil
}

func validateGrantMetaProgress(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(GrantMetaProgressPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected GrantMetaProgressPayload")
	}
	ev := events.MetaProgressGranted{Agent: action.Actor, Track: payload.Track, Amount: payload.Amount}
	return []types.DomainEvent{{Kind: events.KindMetaProgressGranted, Payload: ev}}, nil
}

func validateDistributeTreasury(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(DistributeMainTokenTreasuryPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected DistributeMainTokenTreasuryPayload")
	}
	total := w.MainToken.Treasury
	sum := new(big.Int)
	for _, amt := range payload.Recipients {
		sum.Add(sum, amt)
	}
	if sum.Cmp(total) > 0 {
		return nil, reject(action, types.ReasonInsufficientData, "treasury balance insufficient")
	}
	ev := events.MainTokenTreasuryDistributed{Recipients: payload.Recipients}
	return []types.DomainEvent{{Kind: events.KindMainTokenTreasuryDistributed, Payload: ev}}, nil
}

// validateCompileModuleArtifact records an artifact the external compiler
// collaborator already produced; the engine never compiles wasm itself. The
// identity_hash here is provisional (module_id is not yet bound) and is
// recomputed, module_id-bound, at RegisterModule time.
func validateCompileModuleArtifact(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(CompileModuleArtifactFromSourcePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected CompileModuleArtifactFromSourcePayload")
	}
	identity := modulehost.ComputeIdentityHash("", payload.SourceHash, payload.BuildManifestHash)
	ev := events.ModuleArtifactCompiled{SourceHash: payload.SourceHash, WasmHash: payload.WasmHash, IdentityHash: identity}
	return []types.DomainEvent{{Kind: events.KindModuleArtifactCompiled, Payload: ev}}, nil
}

// validateRegisterModule, validateActivateModule, validateDeactivateModule,
// and validateUpgradeModule all delegate to modulehost.Host, which mutates
// World directly (same shape as reward settlement in apply.go): by the time
// the resulting event reaches the journal, the mutation already happened,
// so applyEvent treats these kinds as no-ops.
func (e *Engine) validateRegisterModule(action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(RegisterModulePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected RegisterModulePayload")
	}
	evs, err := e.modules.Register(action.Actor, payload.Module, payload.Manifest, payload.WasmHash, payload.SourceHash, payload.BuildManifestHash)
	if err != nil {
		return nil, reject(action, types.ReasonModuleInvalid, err.Error())
	}
	return evs, nil
}

func (e *Engine) validateActivateModule(action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(ActivateModulePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected ActivateModulePayload")
	}
	evs, err := e.modules.Activate(payload.Module, payload.GameMode)
	if err != nil {
		return nil, reject(action, types.ReasonModuleInvalid, err.Error())
	}
	return evs, nil
}

func (e *Engine) validateDeactivateModule(action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(DeactivateModulePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected DeactivateModulePayload")
	}
	evs, err := e.modules.Deactivate(payload.Module, payload.GameMode)
	if err != nil {
		return nil, reject(action, types.ReasonModuleInvalid, err.Error())
	}
	return evs, nil
}

func (e *Engine) validateUpgradeModule(action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(UpgradeModulePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected UpgradeModulePayload")
	}
	evs, err := e.modules.Upgrade(payload.Module, payload.Manifest, payload.WasmHash, payload.SourceHash, payload.BuildManifestHash)
	if err != nil {
		return nil, reject(action, types.ReasonModuleInvalid, err.Error())
	}
	return evs, nil
}

// epochSeed derives the leader-selection entropy from the world's current
// RNG seed, since core/engine does not keep a per-height block-hash history
// the way node/consensus/pos does; the RNG seed already advances once per
// tick, which is enough entropy for a deterministic, replay-stable draw.
func (e *Engine) epochSeed() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.world.RNGSeed)
	return buf[:]
}

func (e *Engine) validateApplyNodePointsSettlementSigned(action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(ApplyNodePointsSettlementSignedPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected ApplyNodePointsSettlementSignedPayload")
	}
	ss := reward.SignedSettlement{
		Report:          payload.Report,
		SignerNodeID:    payload.SignerNodeID,
		SignerPublicKey: payload.SignerPublicKey,
		Signature:       payload.Signature,
		SettlementHash:  payload.SettlementHash,
		MainTokenBridge: payload.MainTokenBridge,
	}
	pointsPerCredit := e.world.MainToken.Policy.PointsPerCredit
	if err := reward.ValidateSignedSettlement(e.world.Rewards, e.validators, e.epochSeed(), ss, pointsPerCredit); err != nil {
		return nil, reject(action, types.ReasonDuplicateSettlement, err.Error())
	}

	minted := make(map[types.NodeID]uint64, len(payload.Report.MintRecords))
	var total uint64
	for _, rec := range payload.Report.MintRecords {
		minted[rec.Node] = rec.MintedPowerCredits
		total += rec.MintedPowerCredits
	}
	remaining := payload.Report.MainPoolBudget
	if total < remaining {
		remaining -= total
	} else {
		remaining = 0
	}
	ev := events.NodePointsSettlementApplied{
		Epoch:               payload.Report.Epoch,
		MintedByNode:        minted,
		TotalMinted:         total,
		RemainingPoolBudget: remaining,
		MainTokenBridge:     payload.MainTokenBridge,
	}
	return []types.DomainEvent{{Kind: events.KindNodePointsSettlementApplied, Payload: ev}}, nil
}

func (e *Engine) validateRedeemPower(action types.Action, signed bool) ([]types.DomainEvent, *types.ActionRejected) {
	var req reward.RedeemRequest
	if signed {
		payload, ok := action.Payload.(RedeemPowerSignedPayload)
		if !ok {
			return nil, reject(action, types.ReasonMalformed, "expected RedeemPowerSignedPayload")
		}
		pub, err := crypto.PublicKeyFromBytes(payload.NodePublicKey)
		if err != nil || !pub.Verify(redeemRequestDigest(payload.RedeemPowerPayload), payload.NodeSignature) {
			return nil, reject(action, types.ReasonUnauthorizedSigner, "node signature invalid")
		}
		req = reward.RedeemRequest{Node: payload.Node, TargetAgent: payload.TargetAgent, RedeemCredits: payload.RedeemCredits, Nonce: payload.Nonce}
	} else {
		payload, ok := action.Payload.(RedeemPowerPayload)
		if !ok {
			return nil, reject(action, types.ReasonMalformed, "expected RedeemPowerPayload")
		}
		req = reward.RedeemRequest{Node: payload.Node, TargetAgent: payload.TargetAgent, RedeemCredits: payload.RedeemCredits, Nonce: payload.Nonce}
	}

	if _, ok := e.world.Agents[req.TargetAgent]; !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown target agent")
	}

	granted, err := reward.ValidatePowerRedeem(e.world.Rewards, req, e.cfg.RedeemParams)
	if err != nil {
		return nil, reject(action, types.ReasonInsufficientPower, err.Error())
	}
	ev := events.PowerRedeemed{Node: req.Node, TargetAgent: req.TargetAgent, CreditsBurned: req.RedeemCredits, PowerGranted: granted, Nonce: req.Nonce}
	return []types.DomainEvent{{Kind: events.KindPowerRedeemed, Payload: ev}}, nil
}

// redeemRequestDigest is the message a node signs to authorize
// RedeemPowerSigned on its behalf.
func redeemRequestDigest(p RedeemPowerPayload) []byte {
	buf := make([]byte, 0, len(p.Node)+len(p.TargetAgent)+16)
	buf = append(buf, []byte(p.Node)...)
	buf = append(buf, []byte(p.TargetAgent)...)
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], p.RedeemCredits)
	buf = append(buf, amt[:]...)
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], p.Nonce)
	buf = append(buf, nonce[:]...)
	return buf
}

func validateInitializeMainTokenGenesis(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(InitializeMainTokenGenesisPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected InitializeMainTokenGenesisPayload")
	}
	if w.MainToken.Initialized {
		return nil, reject(action, types.ReasonMalformed, "main token genesis already initialized")
	}
	ev := events.MainTokenGenesisInitialized{InitialSupply: payload.InitialSupply, Treasury: payload.Treasury}
	return []types.DomainEvent{{Kind: events.KindMainTokenGenesisInitialized, Payload: ev}}, nil
}

func validateClaimMainTokenVesting(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(ClaimMainTokenVestingPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected ClaimMainTokenVestingPayload")
	}
	if !w.MainToken.Initialized {
		return nil, reject(action, types.ReasonMalformed, "main token genesis not initialized")
	}
	if payload.VestingNonce <= w.MainToken.VestingNonce[action.Actor] {
		return nil, reject(action, types.ReasonNonceReplay, "vesting nonce must exceed last accepted")
	}
	ev := events.MainTokenVestingClaimed{Agent: action.Actor, Amount: payload.Amount, VestingNonce: payload.VestingNonce}
	return []types.DomainEvent{{Kind: events.KindMainTokenVestingClaimed, Payload: ev}}, nil
}

func validateApplyMainTokenEpochIssuance(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(ApplyMainTokenEpochIssuancePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected ApplyMainTokenEpochIssuancePayload")
	}
	if w.MainToken.Policy.InflationBpsMax > 0 {
		maxIssuance := new(big.Int).Mul(w.MainToken.TotalSupply(), big.NewInt(int64(w.MainToken.Policy.InflationBpsMax)))
		maxIssuance.Div(maxIssuance, big.NewInt(10_000))
		if payload.Issued.Cmp(maxIssuance) > 0 {
			return nil, reject(action, types.ReasonInsufficientData, "issuance exceeds policy inflation cap")
		}
	}
	ev := events.MainTokenEpochIssuanceApplied{Epoch: payload.Epoch, Issued: payload.Issued}
	return []types.DomainEvent{{Kind: events.KindMainTokenEpochIssuanceApplied, Payload: ev}}, nil
}

func validateSettleMainTokenFee(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(SettleMainTokenFeePayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected SettleMainTokenFeePayload")
	}
	bal, ok := w.MainToken.Balances[action.Actor]
	if !ok || bal.Cmp(payload.Amount) < 0 {
		return nil, reject(action, types.ReasonInsufficientData, "insufficient main token balance")
	}
	if payload.Burned.Cmp(payload.Amount) > 0 {
		return nil, reject(action, types.ReasonMalformed, "burned cannot exceed amount")
	}
	ev := events.MainTokenFeeSettled{Payer: action.Actor, Amount: payload.Amount, Burned: payload.Burned}
	return []types.DomainEvent{{Kind: events.KindMainTokenFeeSettled, Payload: ev}}, nil
}

// validateUpdateMainTokenPolicy enforces the two-epoch delayed-activation
// design: a policy change is recorded now but ActivatesAtEpoch is always
// current-epoch+2, never immediate, so nodes mid-epoch never observe a
// policy flip they didn't see coming. "Epoch" here is the world tick, since
// core/engine has no coarser epoch counter of its own.
func (e *Engine) validateUpdateMainTokenPolicy(action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(UpdateMainTokenPolicyPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected UpdateMainTokenPolicyPayload")
	}
	if e.world.MainToken.PendingPolicy != nil {
		return nil, reject(action, types.ReasonMalformed, "a policy update is already pending activation")
	}
	fields := []string{"InflationBpsMax", "WarDurationBaseTicks", "WarDurationPerIntensityTicks", "PointsPerCredit", "FeeBurnBps"}
	activatesAt := e.world.Tick + 2
	ev := events.MainTokenPolicyUpdated{ActivatesAtEpoch: activatesAt, FieldsChanged: fields}
	e.world.MainToken.PendingPolicy = &state.PendingPolicyUpdate{ActivatesAtEpoch: activatesAt, Policy: payload.Policy}
	return []types.DomainEvent{{Kind: events.KindMainTokenPolicyUpdated, Payload: ev}}, nil
}

func validateOpenEconomicContract(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(OpenEconomicContractPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected OpenEconomicContractPayload")
	}
	if _, exists := w.Contracts[payload.Contract]; exists {
		return nil, reject(action, types.ReasonMalformed, "contract id already exists")
	}
	ev := events.EconomicContractOpened{Contract: payload.Contract, Offerer: action.Actor, Terms: payload.Terms}
	return []types.DomainEvent{{Kind: events.KindEconomicContractOpened, Payload: ev}}, nil
}

func validateAcceptEconomicContract(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(AcceptEconomicContractPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected AcceptEconomicContractPayload")
	}
	contract, ok := w.Contracts[payload.Contract]
	if !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown contract")
	}
	if contract.Accepted {
		return nil, reject(action, types.ReasonMalformed, "contract already accepted")
	}
	ev := events.EconomicContractAccepted{Contract: payload.Contract, Counterparty: action.Actor}
	return []types.DomainEvent{{Kind: events.KindEconomicContractAccepted, Payload: ev}}, nil
}

func validateSettleEconomicContract(w *state.World, action types.Action) ([]types.DomainEvent, *types.ActionRejected) {
	payload, ok := action.Payload.(SettleEconomicContractPayload)
	if !ok {
		return nil, reject(action, types.ReasonMalformed, "expected SettleEconomicContractPayload")
	}
	contract, ok := w.Contracts[payload.Contract]
	if !ok {
		return nil, reject(action, types.ReasonUnknownEntity, "unknown contract")
	}
	if !contract.Accepted {
		return nil, reject(action, types.ReasonMalformed, "contract not yet accepted")
	}
	if contract.Settled {
		return nil, reject(action, types.ReasonMalformed, "contract already settled")
	}
	ev := events.EconomicContractSettled{Contract: payload.Contract, Amount: payload.Amount}
	return []types.DomainEvent{{Kind: events.KindEconomicContractSettled, Payload: ev}}, nil
}
