package reward

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/eng-cc/agent-world/consensus/pos"
	"github.com/eng-cc/agent-world/crypto"
	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// SignedSettlement is the validated shape of
// Action::ApplyNodePointsSettlementSigned{report, signer_node_id,
// mint_records[]} from spec section 4.6.
type SignedSettlement struct {
	Report          Report
	SignerNodeID    types.NodeID
	SignerPublicKey []byte
	Signature       []byte
	SettlementHash  []byte
	MainTokenBridge *big.Int // nil unless the report bridges to main-token issuance
}

// SelectEpochLeader picks the node eligible to sign an epoch's settlement,
// reusing consensus/pos's stake-weighted, seed-derived selection. It draws
// one leader per epoch; no failover candidate is selected, so
// ValidateSignedSettlement accepts a settlement signed by that leader only.
func SelectEpochLeader(validators map[types.NodeID]uint64, seed []byte, epoch uint64) (types.NodeID, error) {
	return pos.SelectProposer(validators, seed, epoch)
}

// ValidateSignedSettlement applies these checks before a settlement report may mutate core/state.RewardLedger: the signer
// is the epoch's eligible leader, settlement_hash matches the report,
// minted_power_credits never exceeds awarded_points/points_per_credit, the
// signature verifies, and (epoch, node) has not already settled.
func ValidateSignedSettlement(ledger *state.RewardLedger, validators map[types.NodeID]uint64, leaderSeed []byte, ss SignedSettlement, pointsPerCredit uint64) error {
	leader, err := SelectEpochLeader(validators, leaderSeed, ss.Report.Epoch)
	if err != nil {
		return fmt.Errorf("reward: select epoch leader: %w", err)
	}
	if ss.SignerNodeID != leader {
		return worlderrors.ErrNotSettlementSigner
	}

	wantHash, err := SettlementHash(ss.Report)
	if err != nil {
		return fmt.Errorf("reward: hash report: %w", err)
	}
	if !bytes.Equal(wantHash, ss.SettlementHash) {
		return worlderrors.ErrSettlementHashBad
	}

	pub, err := crypto.PublicKeyFromBytes(ss.SignerPublicKey)
	if err != nil {
		return fmt.Errorf("reward: signer public key: %w", err)
	}
	if !pub.Verify(ss.SettlementHash, ss.Signature) {
		return worlderrors.ErrNotSettlementSigner
	}

	if pointsPerCredit == 0 {
		pointsPerCredit = 1
	}
	for _, rec := range ss.Report.MintRecords {
		if ledger.HasSettled(ss.Report.Epoch, rec.Node) {
			return worlderrors.ErrDuplicateSettlement
		}
		if rec.MintedPowerCredits > rec.AwardedPoints/pointsPerCredit {
			return worlderrors.ErrMintOverAward
		}
	}
	return nil
}

// RedeemRequest is the validated shape of Action::RedeemPower{node_id,
// target_agent_id, redeem_credits, nonce}.
type RedeemRequest struct {
	Node          types.NodeID
	TargetAgent   types.AgentID
	RedeemCredits uint64
	Nonce         uint64
}

// RedeemParams: CreditsToPowerNumerator/Denominator express the
// deterministic credit→power conversion ratio (spec 4.6), MinRedeemUnit is
// the smallest accepted redeem_credits.
type RedeemParams struct {
	CreditsToPowerNumerator   uint64
	CreditsToPowerDenominator uint64
	MinRedeemUnit             uint64
}

// ValidatePowerRedeem checks balance, reserve budget, nonce ordering, and
// minimum-unit rules, and returns the power to grant on success. It does not
// mutate ledger; the caller applies the returned grant atomically alongside
// the nonce bump.
func ValidatePowerRedeem(ledger *state.RewardLedger, req RedeemRequest, params RedeemParams) (powerGranted uint64, err error) {
	if req.RedeemCredits < params.MinRedeemUnit {
		return 0, worlderrors.ErrRedeemBelowMinUnit
	}
	if req.Nonce <= ledger.RedeemNonces[req.Node] {
		return 0, worlderrors.ErrRedeemNonceReplay
	}
	if ledger.Balances[req.Node] < req.RedeemCredits {
		return 0, fmt.Errorf("reward: redeem %d credits exceeds balance %d", req.RedeemCredits, ledger.Balances[req.Node])
	}
	num, den := params.CreditsToPowerNumerator, params.CreditsToPowerDenominator
	if den == 0 {
		num, den = 1, 1
	}
	granted := req.RedeemCredits * num / den
	if granted > ledger.ReservePowerBudget {
		return 0, worlderrors.ErrRedeemBudgetExceeded
	}
	return granted, nil
}
