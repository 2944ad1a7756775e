// Package state owns the authoritative World aggregate: the single source
// of truth mutated exclusively by applying DomainEvents inside one tick.
// The shape mirrors the teacher's core/state.Manager (aggregate-of-maps
// guarded by a single mutex) generalized from chain accounts to the world's
// wider entity set.
package state

import (
	"sync"

	"github.com/eng-cc/agent-world/core/types"
)

// World is the authoritative aggregate. It exclusively owns all entities;
// modules and the consensus layer hold opaque ids into it, never pointers.
type World struct {
	mu sync.RWMutex

	Tick uint64

	Agents    map[types.AgentID]*AgentState
	Locations map[types.LocationID]*LocationState
	Assets    map[types.AssetID]*AssetRecord
	Factories map[types.FactoryID]*FactoryRecord
	Contracts map[types.ContractID]*ContractRecord
	Alliances map[types.AllianceID]*AllianceRecord
	Wars      map[types.WarID]*WarRecord
	Proposals map[types.ProposalID]*ProposalRecord
	Crises    map[types.CrisisID]*CrisisRecord
	MetaProgress MetaProgress

	Modules map[types.ModuleID]*ModuleRecord

	MainToken *MainTokenLedger
	Rewards   *RewardLedger

	RNGSeed uint64
}

// New returns an empty World ready for genesis bootstrap.
func New() *World {
	return &World{
		Agents:    make(map[types.AgentID]*AgentState),
		Locations: make(map[types.LocationID]*LocationState),
		Assets:    make(map[types.AssetID]*AssetRecord),
		Factories: make(map[types.FactoryID]*FactoryRecord),
		Contracts: make(map[types.ContractID]*ContractRecord),
		Alliances: make(map[types.AllianceID]*AllianceRecord),
		Wars:      make(map[types.WarID]*WarRecord),
		Proposals: make(map[types.ProposalID]*ProposalRecord),
		Crises:    make(map[types.CrisisID]*CrisisRecord),
		MetaProgress: MetaProgress{ByAgent: make(map[types.AgentID]map[string]uint64)},
		Modules:   make(map[types.ModuleID]*ModuleRecord),
		MainToken: NewMainTokenLedger(),
		Rewards:   NewRewardLedger(),
	}
}

// Lock/Unlock/RLock/RUnlock expose the aggregate mutex to core/engine, which
// is the only package allowed to mutate World fields directly (everything
// else only submits actions and reads snapshots).
func (w *World) Lock()    { w.mu.Lock() }
func (w *World) Unlock()  { w.mu.Unlock() }
func (w *World) RLock()   { w.mu.RLock() }
func (w *World) RUnlock() { w.mu.RUnlock() }

// AssetOwnedBy reports whether asset id exists and is currently owned by
// owner.
func (w *World) AssetOwnedBy(id types.AssetID, owner string) bool {
	rec, ok := w.Assets[id]
	return ok && rec.Owner == owner
}
