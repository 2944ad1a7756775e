package reward

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/core/types"
)

func TestComputeNodeScoreObligationNotMet(t *testing.T) {
	params := Params{MinSelfSimCompute: 100, ComputeWeight: 1, StorageWeight: 1, UptimeWeight: 1, ReliabilityWeight: 1}
	sample := ContributionSample{SelfSimCompute: 50, VerifyPassRatio: 1, AvailabilityRatio: 1}
	score := ComputeNodeScore("node-a", sample, params)
	require.False(t, score.ObligationMet)
	require.Zero(t, score.Total)
}

func TestComputeNodeScoreWeightsCombine(t *testing.T) {
	params := Params{
		MinSelfSimCompute: 10,
		ComputeWeightM1:   1, ComputeWeightM2: 1,
		StakedCapEnabled: false,
		MinUptimeRatio:   0.5,
		ComputeWeight:    1, StorageWeight: 1, UptimeWeight: 1, ReliabilityWeight: 1,
	}
	sample := ContributionSample{
		SelfSimCompute: 10, DelegatedSimCompute: 100, MaintenanceCompute: 50,
		EffectiveStorageBytes: 4 << 30, VerifyPassRatio: 1, AvailabilityRatio: 1,
		UptimeValidChecks: 90, UptimeTotalChecks: 100,
	}
	score := ComputeNodeScore("node-a", sample, params)
	require.True(t, score.ObligationMet)
	require.Greater(t, score.ComputeScore, 0.0)
	require.Greater(t, score.StorageScore, 0.0)
	require.Greater(t, score.UptimeScore, 0.0)
	require.Greater(t, score.Total, 0.0)
}

func TestDistributeProportionalSortedIDRemainder(t *testing.T) {
	scores := map[types.NodeID]float64{"a": 1, "b": 1, "c": 1}
	got := DistributeProportional(scores, 10)
	var sum uint64
	for _, v := range got {
		sum += v
	}
	require.Equal(t, uint64(10), sum)
	// Equal scores split 10/3 = 3 each with 1 left over; the lowest node id
	// wins the remainder tie.
	require.Equal(t, uint64(4), got["a"])
	require.Equal(t, uint64(3), got["b"])
	require.Equal(t, uint64(3), got["c"])
}

func TestDistributeProportionalDeterministic(t *testing.T) {
	scores := map[types.NodeID]float64{"x": 2.5, "y": 7.5}
	first := DistributeProportional(scores, 101)
	second := DistributeProportional(scores, 101)
	require.Equal(t, first, second)
}

func TestDistributeProportionalZeroScoresYieldZero(t *testing.T) {
	scores := map[types.NodeID]float64{"a": 0, "b": 0}
	got := DistributeProportional(scores, 50)
	require.Zero(t, got["a"])
	require.Zero(t, got["b"])
}

func TestSettlementHashDeterministic(t *testing.T) {
	report := Report{Epoch: 1, MainPoolBudget: 100, MintRecords: []MintRecord{{Node: "a", AwardedPoints: 10, MintedPowerCredits: 5}}}
	h1, err := SettlementHash(report)
	require.NoError(t, err)
	h2, err := SettlementHash(report)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	report.Epoch = 2
	h3, err := SettlementHash(report)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
