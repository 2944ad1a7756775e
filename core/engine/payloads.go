package engine

import (
	"math/big"

	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/reward"
)

// Action payload shapes. These are the concrete types validators type-assert
// Action.Payload into for each ActionKind; callers construct an Action with
// the matching payload before submitting.

type SpawnAgentPayload struct {
	Agent    types.AgentID
	Position types.Position
}

type RetireAgentPayload struct{}

type MovePayload struct {
	To types.Position
}

type InteractPayload struct {
	Target types.AssetID
	Kind   string
}

type HarvestRadiationPayload struct {
	Location types.LocationID
	Amount   uint64
}

type MineCompoundPayload struct {
	Location types.LocationID
	Amount   uint64
}

type RefineCompoundPayload struct {
	CompoundSpent uint64
	DataGained    uint64
}

type BuildFactoryPayload struct {
	Location types.LocationID
	Factory  types.FactoryID
}

type ScheduleRecipePayload struct {
	Factory  types.FactoryID
	RecipeID string
	Quantity uint64
}

type DeclareWarPayload struct {
	War       types.WarID
	Aggressor types.AllianceID
	Defender  types.AllianceID
	Intensity uint32
}

type OpenGovernanceProposalPayload struct {
	Proposal     types.ProposalID
	Options      []string
	WindowTicks  uint64
	QuorumWeight uint64
	PassBps      uint32
}

type CastGovernanceVotePayload struct {
	Proposal types.ProposalID
	Option   string
	Weight   uint64
}

type FormAlliancePayload struct {
	Alliance types.AllianceID
	Founders []types.AgentID
}

type JoinAlliancePayload struct {
	Alliance types.AllianceID
}

type LeaveAlliancePayload struct {
	Alliance types.AllianceID
}

type DissolveAlliancePayload struct {
	Alliance types.AllianceID
}

type ResolveCrisisPayload struct {
	Crisis  types.CrisisID
	Outcome string
}

type GrantMetaProgressPayload struct {
	Track  string
	Amount uint64
}

type DistributeMainTokenTreasuryPayload struct {
	Recipients map[types.AgentID]*big.Int
}

// CompileModuleArtifactFromSourcePayload carries hashes computed by the
// external compiler collaborator (spec section 4.2); the engine never
// compiles wasm itself, only records the result.
type CompileModuleArtifactFromSourcePayload struct {
	SourceHash        [32]byte
	WasmHash          [32]byte
	BuildManifestHash [32]byte
}

type RegisterModulePayload struct {
	Module            types.ModuleID
	Manifest          state.ModuleManifest
	WasmHash          [32]byte
	SourceHash        [32]byte
	BuildManifestHash [32]byte
}

type ActivateModulePayload struct {
	Module   types.ModuleID
	GameMode string
}

type DeactivateModulePayload struct {
	Module   types.ModuleID
	GameMode string
}

type UpgradeModulePayload struct {
	Module            types.ModuleID
	Manifest          state.ModuleManifest
	WasmHash          [32]byte
	SourceHash        [32]byte
	BuildManifestHash [32]byte
}

// ApplyNodePointsSettlementSignedPayload carries the leader-signed epoch
// settlement report from spec section 4.6; reward.ValidateSignedSettlement
// enforces every acceptance rule before it reaches applyEvent.
type ApplyNodePointsSettlementSignedPayload struct {
	Report          reward.Report
	SignerNodeID    types.NodeID
	SignerPublicKey []byte
	Signature       []byte
	SettlementHash  []byte
	MainTokenBridge *big.Int
}

// RedeemPowerPayload is the bare credit→power redemption request.
type RedeemPowerPayload struct {
	Node          types.NodeID
	TargetAgent   types.AgentID
	RedeemCredits uint64
	Nonce         uint64
}

// RedeemPowerSignedPayload adds an ed25519 proof that the node itself
// authorized the redemption, used when the submitting actor is not the
// node's own controlling identity.
type RedeemPowerSignedPayload struct {
	RedeemPowerPayload
	NodePublicKey []byte
	NodeSignature []byte
}

type InitializeMainTokenGenesisPayload struct {
	InitialSupply *big.Int
	Treasury      *big.Int
}

type ClaimMainTokenVestingPayload struct {
	Amount       *big.Int
	VestingNonce uint64
}

type ApplyMainTokenEpochIssuancePayload struct {
	Epoch  uint64
	Issued *big.Int
}

type SettleMainTokenFeePayload struct {
	Amount *big.Int
	Burned *big.Int
}

// UpdateMainTokenPolicyPayload carries a governance-approved policy change.
// It never activates immediately: ActivatesAtEpoch is fixed at CurrentEpoch+2
// by the validator, matching the two-epoch delayed-activation design.
type UpdateMainTokenPolicyPayload struct {
	Policy state.MainTokenPolicy
}

type OpenEconomicContractPayload struct {
	Contract types.ContractID
	Terms    string
}

type AcceptEconomicContractPayload struct {
	Contract types.ContractID
}

type SettleEconomicContractPayload struct {
	Contract types.ContractID
	Amount   *big.Int
}
