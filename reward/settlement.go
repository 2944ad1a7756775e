package reward

import (
	"sort"

	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"

	"github.com/eng-cc/agent-world/core/types"
)

// MintRecord is one node's share of a settled pool: the points it was
// awarded and the power credits minted against them, bounded by
// minted_power_credits ≤ awarded_points / points_per_credit (spec 4.6).
type MintRecord struct {
	Node               types.NodeID `cbor:"node"`
	AwardedPoints      uint64       `cbor:"awarded_points"`
	MintedPowerCredits uint64       `cbor:"minted_power_credits"`
}

// Report is the canonical, hashable settlement report a leader signs and
// submits inside ApplyNodePointsSettlementSigned.
type Report struct {
	Epoch             uint64       `cbor:"epoch"`
	MainPoolBudget    uint64       `cbor:"main_pool_budget"`
	StoragePoolBudget uint64       `cbor:"storage_pool_budget"`
	MintRecords       []MintRecord `cbor:"mint_records"`
}

type nodeShare struct {
	node      types.NodeID
	whole     uint64
	remainder float64
}

// DistributeProportional splits poolBudget points across scores
// proportionally to each node's total score, then hands out the points left
// over by truncation one at a time, largest fractional share first, with
// ties broken by ascending node id, so the result is reproducible by any
// observer re-deriving it.
func DistributeProportional(scores map[types.NodeID]float64, poolBudget uint64) map[types.NodeID]uint64 {
	out := make(map[types.NodeID]uint64, len(scores))
	if poolBudget == 0 || len(scores) == 0 {
		for node := range scores {
			out[node] = 0
		}
		return out
	}

	var sumScore float64
	for _, score := range scores {
		if score > 0 {
			sumScore += score
		}
	}
	if sumScore <= 0 {
		for node := range scores {
			out[node] = 0
		}
		return out
	}

	ids := make([]types.NodeID, 0, len(scores))
	for node := range scores {
		ids = append(ids, node)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	shares := make([]nodeShare, 0, len(ids))
	var distributed uint64
	for _, node := range ids {
		score := scores[node]
		if score < 0 {
			score = 0
		}
		exact := float64(poolBudget) * score / sumScore
		whole := uint64(exact)
		shares = append(shares, nodeShare{node: node, whole: whole, remainder: exact - float64(whole)})
		distributed += whole
		out[node] = whole
	}

	leftover := poolBudget - distributed
	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].remainder != shares[j].remainder {
			return shares[i].remainder > shares[j].remainder
		}
		return shares[i].node < shares[j].node
	})
	for i := uint64(0); i < leftover && i < uint64(len(shares)); i++ {
		out[shares[i].node]++
	}
	return out
}

// SettlementHash computes the canonical-CBOR + blake3 digest a signer binds
// its signature to, so ApplyNodePointsSettlementSigned validation can check
// settlement_hash against the submitted report without trusting the caller's
// own hash.
func SettlementHash(report Report) ([]byte, error) {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	encoded, err := mode.Marshal(report)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(encoded)
	return sum[:], nil
}
