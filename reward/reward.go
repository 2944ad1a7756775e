// Package reward implements the per-epoch contribution settlement and
// credit/power redemption from spec section 4.6: contribution sampling,
// score computation, proportional point distribution with a sorted-id
// remainder, and the signed-settlement/redeem validation rules the engine
// enforces before mutating core/state.RewardLedger. Adapted from the
// teacher's native/potso engine (score accrual shape) and core/rewards
// engine (index/ledger bookkeeping), generalized from stake-weighted
// staking yield to multi-factor node contribution scoring.
package reward

import (
	"math"

	"github.com/eng-cc/agent-world/core/types"
)

// ContributionSample is one node's raw per-epoch telemetry, as defined by
// spec section 4.6. Collection itself (how these numbers are gathered) is
// out of scope for this package; it only scores and settles them.
type ContributionSample struct {
	SelfSimCompute      uint64
	DelegatedSimCompute uint64
	MaintenanceCompute  uint64
	EffectiveStorageBytes uint64
	StakedStorageBytes  uint64
	UptimeSeconds       uint64
	UptimeValidChecks   uint64
	UptimeTotalChecks   uint64
	StorageValidChecks  uint64
	StorageTotalChecks  uint64
	VerifyPassRatio     float64
	AvailabilityRatio   float64
	ExplicitPenalty     float64
}

// Params holds the governance-tunable settlement weights. Never hardcode
// these at a call site; source them from world.MainToken.Policy or an
// equivalent config so a policy change takes effect everywhere at once.
type Params struct {
	MinSelfSimCompute   uint64
	ComputeWeightM1     float64 // delegated_sim_compute multiplier
	ComputeWeightM2     float64 // maintenance_compute multiplier
	StakedCapEnabled    bool
	StakedCapRatio      float64 // rewardable = min(effective, staked*ratio)
	MinUptimeRatio      float64
	EpochDurationSeconds uint64
	ComputeWeight       float64 // main-pool weighting of compute score
	StorageWeight       float64 // main-pool weighting of storage score
	UptimeWeight        float64 // main-pool weighting of uptime score
	ReliabilityWeight   float64 // main-pool weighting of reliability score
}

// NodeScore is the per-node output of scoring one ContributionSample.
type NodeScore struct {
	Node              types.NodeID
	ObligationMet     bool
	ComputeScore      float64
	StorageScore      float64
	UptimeScore       float64
	ReliabilityScore  float64
	Total             float64
}

// ComputeNodeScore applies the spec section 4.6 settlement formula to one
// node's sample. A node that misses the self-sim-compute obligation still
// scores (for observability) but Total is forced to zero so it cannot earn
// main-pool points that epoch.
func ComputeNodeScore(node types.NodeID, s ContributionSample, p Params) NodeScore {
	out := NodeScore{Node: node, ObligationMet: s.SelfSimCompute >= p.MinSelfSimCompute}

	out.ComputeScore = (float64(s.DelegatedSimCompute)*p.ComputeWeightM1 + float64(s.MaintenanceCompute)*p.ComputeWeightM2) * s.VerifyPassRatio

	rewardable := float64(s.EffectiveStorageBytes)
	if p.StakedCapEnabled {
		cap := float64(s.StakedStorageBytes) * p.StakedCapRatio
		if cap < rewardable {
			rewardable = cap
		}
	}
	rewardableGiB := rewardable / (1 << 30)
	if rewardableGiB < 0 {
		rewardableGiB = 0
	}
	out.StorageScore = math.Sqrt(rewardableGiB) * s.AvailabilityRatio

	if s.UptimeTotalChecks > 0 {
		ratio := float64(s.UptimeValidChecks) / float64(s.UptimeTotalChecks)
		denom := 1 - p.MinUptimeRatio
		if denom <= 0 {
			out.UptimeScore = 0
		} else {
			score := (ratio - p.MinUptimeRatio) / denom
			if score < 0 {
				score = 0
			}
			out.UptimeScore = score
		}
	} else if p.EpochDurationSeconds > 0 {
		out.UptimeScore = float64(s.UptimeSeconds) / float64(p.EpochDurationSeconds)
	}

	out.ReliabilityScore = (s.VerifyPassRatio + s.AvailabilityRatio) / 2

	if !out.ObligationMet {
		out.Total = 0
		return out
	}

	total := p.ComputeWeight*out.ComputeScore + p.StorageWeight*out.StorageScore +
		p.UptimeWeight*out.UptimeScore + p.ReliabilityWeight*out.ReliabilityScore - s.ExplicitPenalty
	if total < 0 {
		total = 0
	}
	out.Total = total
	return out
}
