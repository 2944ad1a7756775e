package types

// ActionKind enumerates the normative action categories from spec section
// 4.1. The set is open-ended within a category but the category tags
// themselves are closed so the engine can dispatch on them deterministically.
type ActionKind string

const (
	// Lifecycle.
	ActionSpawnAgent  ActionKind = "SpawnAgent"
	ActionRetireAgent ActionKind = "RetireAgent"

	// Movement & interaction.
	ActionMove     ActionKind = "Move"
	ActionInteract ActionKind = "Interact"

	// Resource.
	ActionHarvestRadiation ActionKind = "HarvestRadiation"
	ActionMineCompound     ActionKind = "MineCompound"
	ActionRefineCompound   ActionKind = "RefineCompound"
	ActionBuildFactory     ActionKind = "BuildFactory"
	ActionScheduleRecipe   ActionKind = "ScheduleRecipe"

	// Economy.
	ActionOpenEconomicContract   ActionKind = "OpenEconomicContract"
	ActionAcceptEconomicContract ActionKind = "AcceptEconomicContract"
	ActionSettleEconomicContract ActionKind = "SettleEconomicContract"
	ActionDistributeMainTokenTreasury ActionKind = "DistributeMainTokenTreasury"

	// Gameplay.
	ActionFormAlliance           ActionKind = "FormAlliance"
	ActionJoinAlliance           ActionKind = "JoinAlliance"
	ActionLeaveAlliance          ActionKind = "LeaveAlliance"
	ActionDissolveAlliance       ActionKind = "DissolveAlliance"
	ActionDeclareWar             ActionKind = "DeclareWar"
	ActionOpenGovernanceProposal ActionKind = "OpenGovernanceProposal"
	ActionCastGovernanceVote     ActionKind = "CastGovernanceVote"
	ActionResolveCrisis          ActionKind = "ResolveCrisis"
	ActionGrantMetaProgress      ActionKind = "GrantMetaProgress"

	// Module lifecycle.
	ActionCompileModuleArtifactFromSource ActionKind = "CompileModuleArtifactFromSource"
	ActionRegisterModule                 ActionKind = "RegisterModule"
	ActionActivateModule                 ActionKind = "ActivateModule"
	ActionDeactivateModule               ActionKind = "DeactivateModule"
	ActionUpgradeModule                  ActionKind = "UpgradeModule"

	// Reward.
	ActionApplyNodePointsSettlementSigned ActionKind = "ApplyNodePointsSettlementSigned"
	ActionRedeemPower                     ActionKind = "RedeemPower"
	ActionRedeemPowerSigned               ActionKind = "RedeemPowerSigned"

	// Main token.
	ActionInitializeMainTokenGenesis ActionKind = "InitializeMainTokenGenesis"
	ActionClaimMainTokenVesting      ActionKind = "ClaimMainTokenVesting"
	ActionApplyMainTokenEpochIssuance ActionKind = "ApplyMainTokenEpochIssuance"
	ActionSettleMainTokenFee         ActionKind = "SettleMainTokenFee"
	ActionUpdateMainTokenPolicy      ActionKind = "UpdateMainTokenPolicy"
)

// Action is the externally-submitted intent that the engine validates before
// applying. Payload is kind-specific; the engine's validators type-assert
// into the concrete payload registered for Kind.
type Action struct {
	Kind     ActionKind
	Actor    AgentID
	Nonce    uint64
	Priority int
	Payload  any
}

// Envelope carries the signed wire form of an Action, as accepted by
// submit_action. Signature is the normative string-formatted envelope from
// spec section 6 (e.g. "ed25519:v1:<pub>:<sig>").
type Envelope struct {
	Action    Action
	Signature string
}

// RejectReason is the stable, machine-readable tag attached to
// ActionRejected events per spec section 4.1 and section 7.
type RejectReason string

const (
	ReasonInsufficientData  RejectReason = "insufficient_resource.data"
	ReasonInsufficientPower RejectReason = "insufficient_resource.power"
	ReasonNonceReplay       RejectReason = "nonce_replay"
	ReasonUnauthorizedSigner RejectReason = "unauthorized_signer"
	ReasonMalformed         RejectReason = "malformed_payload"
	ReasonUnknownEntity     RejectReason = "unknown_entity"
	ReasonNotOwner          RejectReason = "not_owner"
	ReasonVotingClosed      RejectReason = "voting_closed"
	ReasonModuleInvalid     RejectReason = "module_change_invalid"
	ReasonDuplicateSettlement RejectReason = "duplicate_settlement"
)
