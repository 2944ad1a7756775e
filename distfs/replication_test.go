package distfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/core/types"
)

func TestComputeReplicaMaintenancePlanRepairsUnderReplicated(t *testing.T) {
	hash := [32]byte{0x01}
	providers := []ProviderRecord{{Node: "n1", BlobHash: hash, LoadBand: 1}}
	candidates := []types.NodeID{"n1", "n2", "n3"}

	plan := ComputeReplicaMaintenancePlan(providers, 3, candidates)
	require.Len(t, plan.RepairTasks, 1)
	require.Equal(t, 2, plan.RepairTasks[0].MissingReplicas)
	require.ElementsMatch(t, []types.NodeID{"n2", "n3"}, plan.RepairTasks[0].CandidateNodes)
}

func TestComputeReplicaMaintenancePlanRebalancesLoad(t *testing.T) {
	hash := [32]byte{0x02}
	providers := []ProviderRecord{
		{Node: "busy", BlobHash: hash, LoadBand: 10},
		{Node: "idle", BlobHash: hash, LoadBand: 1},
	}
	plan := ComputeReplicaMaintenancePlan(providers, 2, nil)
	require.Empty(t, plan.RepairTasks)
	require.Len(t, plan.RebalanceTasks, 1)
	require.Equal(t, types.NodeID("busy"), plan.RebalanceTasks[0].FromNode)
	require.Equal(t, types.NodeID("idle"), plan.RebalanceTasks[0].ToNode)
}

func TestComputeReplicaMaintenancePlanDeterministic(t *testing.T) {
	providers := []ProviderRecord{
		{Node: "n1", BlobHash: [32]byte{0x01}, LoadBand: 1},
		{Node: "n2", BlobHash: [32]byte{0x02}, LoadBand: 1},
	}
	candidates := []types.NodeID{"n3"}
	first := ComputeReplicaMaintenancePlan(providers, 2, candidates)
	second := ComputeReplicaMaintenancePlan(providers, 2, candidates)
	require.Equal(t, first, second)
}

func TestComputeReplicaMaintenancePlanSkipsBalancedPairs(t *testing.T) {
	hash := [32]byte{0x03}
	providers := []ProviderRecord{
		{Node: "n1", BlobHash: hash, LoadBand: 1},
		{Node: "n2", BlobHash: hash, LoadBand: 2},
	}
	plan := ComputeReplicaMaintenancePlan(providers, 2, nil)
	require.Empty(t, plan.RebalanceTasks)
}
