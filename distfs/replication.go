package distfs

import (
	"encoding/hex"
	"sort"

	"github.com/eng-cc/agent-world/core/types"
)

// loadBandRebalanceThreshold is the minimum load-band spread between the
// busiest and least-busy holder of a blob before a rebalance task is
// worth scheduling; below it the churn cost outweighs the benefit.
const loadBandRebalanceThreshold = 3

// ProviderRecord is one DHT provider record for a blob: a node that
// claims to hold it, and that node's current load band (lower is more
// available).
type ProviderRecord struct {
	Node     types.NodeID
	BlobHash [32]byte
	LoadBand int
}

// RepairTask asks CandidateNodes to each pick up one more replica of
// BlobHash to restore it to the target replication factor.
type RepairTask struct {
	BlobHash        [32]byte
	MissingReplicas int
	CandidateNodes  []types.NodeID
}

// RebalanceTask asks FromNode to hand a copy of BlobHash's replica duty
// to ToNode because the two are unevenly loaded.
type RebalanceTask struct {
	BlobHash [32]byte
	FromNode types.NodeID
	ToNode   types.NodeID
}

// ReplicaMaintenancePlan is the output of ComputeReplicaMaintenancePlan:
// the set of repair and rebalance actions a storage coordinator should
// dispatch this round.
type ReplicaMaintenancePlan struct {
	RepairTasks    []RepairTask
	RebalanceTasks []RebalanceTask
}

// ComputeReplicaMaintenancePlan derives repair and rebalance tasks from
// the current provider records observed over the DHT. It is pure and
// deterministic: the same provider set and candidate list always yields
// the same plan, so independent nodes converge on one maintenance
// schedule without coordination.
func ComputeReplicaMaintenancePlan(providers []ProviderRecord, targetReplicas int, candidateNodes []types.NodeID) ReplicaMaintenancePlan {
	byBlob := map[[32]byte][]ProviderRecord{}
	for _, rec := range providers {
		byBlob[rec.BlobHash] = append(byBlob[rec.BlobHash], rec)
	}

	blobHashes := make([][32]byte, 0, len(byBlob))
	for h := range byBlob {
		blobHashes = append(blobHashes, h)
	}
	sort.Slice(blobHashes, func(i, j int) bool {
		return hex.EncodeToString(blobHashes[i][:]) < hex.EncodeToString(blobHashes[j][:])
	})

	var plan ReplicaMaintenancePlan
	for _, hash := range blobHashes {
		recs := byBlob[hash]

		if have := len(recs); have < targetReplicas {
			missing := targetReplicas - have
			holders := make(map[types.NodeID]bool, have)
			for _, r := range recs {
				holders[r.Node] = true
			}
			var candidates []types.NodeID
			for _, n := range candidateNodes {
				if !holders[n] {
					candidates = append(candidates, n)
				}
			}
			sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
			if len(candidates) > missing {
				candidates = candidates[:missing]
			}
			plan.RepairTasks = append(plan.RepairTasks, RepairTask{
				BlobHash: hash, MissingReplicas: missing, CandidateNodes: candidates,
			})
		}

		if len(recs) >= 2 {
			sorted := append([]ProviderRecord(nil), recs...)
			sort.Slice(sorted, func(i, j int) bool {
				if sorted[i].LoadBand != sorted[j].LoadBand {
					return sorted[i].LoadBand > sorted[j].LoadBand
				}
				return sorted[i].Node < sorted[j].Node
			})
			heaviest, lightest := sorted[0], sorted[len(sorted)-1]
			if heaviest.LoadBand-lightest.LoadBand >= loadBandRebalanceThreshold {
				plan.RebalanceTasks = append(plan.RebalanceTasks, RebalanceTask{
					BlobHash: hash, FromNode: heaviest.Node, ToNode: lightest.Node,
				})
			}
		}
	}
	return plan
}
