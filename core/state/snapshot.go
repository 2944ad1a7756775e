package state

import (
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/eng-cc/agent-world/core/types"
)

// SnapshotVersion tags the canonical CBOR snapshot schema. Unknown fields on
// load default to zero value (forward compatibility); new fields must have
// a usable zero value (backward compatibility), matching spec section 6.
const SnapshotVersion = 1

// Snapshot is the value-typed, serializable projection of World. It excludes
// caches that rebuild on load (none yet) and can be replayed to bit-identical
// state for every field it carries.
type Snapshot struct {
	Version uint32 `cbor:"version"`
	Tick    uint64 `cbor:"tick"`

	Agents    map[types.AgentID]AgentState       `cbor:"agents"`
	Locations map[types.LocationID]LocationState `cbor:"locations"`
	Assets    map[types.AssetID]AssetRecord      `cbor:"assets"`
	Factories map[types.FactoryID]FactoryRecord  `cbor:"factories"`
	Contracts map[types.ContractID]ContractRecord `cbor:"contracts"`
	Alliances map[types.AllianceID]AllianceRecord `cbor:"alliances"`
	Wars      map[types.WarID]WarRecord          `cbor:"wars"`
	Proposals map[types.ProposalID]ProposalRecord `cbor:"proposals"`
	Crises    map[types.CrisisID]CrisisRecord    `cbor:"crises"`

	Modules map[types.ModuleID]ModuleRecord `cbor:"modules"`

	MainTokenInitialSupply *big.Int                       `cbor:"main_token_initial_supply"`
	MainTokenIssued        *big.Int                       `cbor:"main_token_issued"`
	MainTokenBurned        *big.Int                       `cbor:"main_token_burned"`
	MainTokenBalances      map[types.AgentID]*big.Int     `cbor:"main_token_balances"`
	MainTokenTreasury      *big.Int                       `cbor:"main_token_treasury"`
	MainTokenPolicy        MainTokenPolicy                `cbor:"main_token_policy"`

	RewardBalances          map[types.NodeID]uint64 `cbor:"reward_balances"`
	RewardTotalMintedCredits uint64                 `cbor:"reward_total_minted_credits"`
	RewardPoolBudget        uint64                  `cbor:"reward_pool_budget"`

	RNGSeed uint64 `cbor:"rng_seed"`
}

// Snapshot produces a value copy of the World suitable for canonical CBOR
// encoding. Callers must hold at least a read lock.
func (w *World) Snapshot() Snapshot {
	s := Snapshot{
		Version:   SnapshotVersion,
		Tick:      w.Tick,
		Agents:    make(map[types.AgentID]AgentState, len(w.Agents)),
		Locations: make(map[types.LocationID]LocationState, len(w.Locations)),
		Assets:    make(map[types.AssetID]AssetRecord, len(w.Assets)),
		Factories: make(map[types.FactoryID]FactoryRecord, len(w.Factories)),
		Contracts: make(map[types.ContractID]ContractRecord, len(w.Contracts)),
		Alliances: make(map[types.AllianceID]AllianceRecord, len(w.Alliances)),
		Wars:      make(map[types.WarID]WarRecord, len(w.Wars)),
		Proposals: make(map[types.ProposalID]ProposalRecord, len(w.Proposals)),
		Crises:    make(map[types.CrisisID]CrisisRecord, len(w.Crises)),
		Modules:   make(map[types.ModuleID]ModuleRecord, len(w.Modules)),
		MainTokenBalances: make(map[types.AgentID]*big.Int),
		RewardBalances:    make(map[types.NodeID]uint64, len(w.Rewards.Balances)),
		RNGSeed:           w.RNGSeed,
	}
	for id, a := range w.Agents {
		s.Agents[id] = a.Clone()
	}
	for id, l := range w.Locations {
		s.Locations[id] = l.Clone()
	}
	for id, a := range w.Assets {
		s.Assets[id] = *a
	}
	for id, f := range w.Factories {
		s.Factories[id] = *f
	}
	for id, c := range w.Contracts {
		s.Contracts[id] = *c
	}
	for id, a := range w.Alliances {
		s.Alliances[id] = a.Clone()
	}
	for id, wr := range w.Wars {
		s.Wars[id] = *wr
	}
	for id, p := range w.Proposals {
		s.Proposals[id] = p.Clone()
	}
	for id, c := range w.Crises {
		s.Crises[id] = *c
	}
	for id, m := range w.Modules {
		s.Modules[id] = m.Clone()
	}
	if mt := w.MainToken; mt != nil {
		s.MainTokenInitialSupply = new(big.Int).Set(mt.InitialSupply)
		s.MainTokenIssued = new(big.Int).Set(mt.Issued)
		s.MainTokenBurned = new(big.Int).Set(mt.Burned)
		s.MainTokenTreasury = new(big.Int).Set(mt.Treasury)
		s.MainTokenPolicy = mt.Policy
		for id, bal := range mt.Balances {
			s.MainTokenBalances[id] = new(big.Int).Set(bal)
		}
	}
	if rw := w.Rewards; rw != nil {
		for id, bal := range rw.Balances {
			s.RewardBalances[id] = bal
		}
		s.RewardTotalMintedCredits = rw.TotalMintedCredits
		s.RewardPoolBudget = rw.NodeServicePoolBudget
	}
	return s
}

// EncodeCanonical serializes a Snapshot to canonical CBOR (sorted map keys,
// deterministic encoding) so the byte form is stable across nodes.
func (s Snapshot) EncodeCanonical() ([]byte, error) {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(s)
}

// DecodeSnapshot restores a Snapshot from its canonical CBOR form.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(b, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Restore rebuilds a live World from a Snapshot value. The result compares
// equal (field-for-field) to the World that produced the snapshot, per the
// round-trip law in spec section 8.
func Restore(s Snapshot) *World {
	w := New()
	w.Tick = s.Tick
	w.RNGSeed = s.RNGSeed
	for id, a := range s.Agents {
		a := a
		w.Agents[id] = &a
	}
	for id, l := range s.Locations {
		l := l
		w.Locations[id] = &l
	}
	for id, a := range s.Assets {
		a := a
		w.Assets[id] = &a
	}
	for id, f := range s.Factories {
		f := f
		w.Factories[id] = &f
	}
	for id, c := range s.Contracts {
		c := c
		w.Contracts[id] = &c
	}
	for id, a := range s.Alliances {
		a := a
		w.Alliances[id] = &a
	}
	for id, wr := range s.Wars {
		wr := wr
		w.Wars[id] = &wr
	}
	for id, p := range s.Proposals {
		p := p
		w.Proposals[id] = &p
	}
	for id, c := range s.Crises {
		c := c
		w.Crises[id] = &c
	}
	for id, m := range s.Modules {
		m := m
		w.Modules[id] = &m
	}
	if s.MainTokenInitialSupply != nil {
		w.MainToken.InitialSupply = new(big.Int).Set(s.MainTokenInitialSupply)
	}
	if s.MainTokenIssued != nil {
		w.MainToken.Issued = new(big.Int).Set(s.MainTokenIssued)
	}
	if s.MainTokenBurned != nil {
		w.MainToken.Burned = new(big.Int).Set(s.MainTokenBurned)
	}
	if s.MainTokenTreasury != nil {
		w.MainToken.Treasury = new(big.Int).Set(s.MainTokenTreasury)
	}
	w.MainToken.Policy = s.MainTokenPolicy
	for id, bal := range s.MainTokenBalances {
		w.MainToken.Balances[id] = new(big.Int).Set(bal)
	}
	for id, bal := range s.RewardBalances {
		w.Rewards.Balances[id] = bal
	}
	w.Rewards.TotalMintedCredits = s.RewardTotalMintedCredits
	w.Rewards.NodeServicePoolBudget = s.RewardPoolBudget
	return w
}
