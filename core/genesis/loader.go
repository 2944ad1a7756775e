package genesis

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// ValidatorGenesis is the consensus layer's view of the genesis validator
// set, handed off to consensus/pos's own store. Kept here rather than
// imported from consensus/pos to avoid a genesis -> consensus -> genesis
// import cycle (consensus needs genesis to seed a fresh node).
type ValidatorGenesis struct {
	NodeID types.NodeID
	PubKey []byte
	Stake  uint64
}

// BuildGenesisWorld constructs the height-0 World deterministically from a
// spec. Every collection is iterated in sorted-key order (teacher's
// BuildGenesisFromSpec pattern) so two nodes fed the same spec produce
// byte-identical snapshots regardless of map iteration order.
func BuildGenesisWorld(spec *GenesisSpec) (*state.World, []ValidatorGenesis, error) {
	if spec == nil {
		return nil, nil, fmt.Errorf("genesis: spec must not be nil")
	}
	if spec.WorldID == "" {
		return nil, nil, fmt.Errorf("genesis: worldId must not be empty")
	}

	w := state.New()

	locations := append([]LocationSpec(nil), spec.Locations...)
	sort.Slice(locations, func(i, j int) bool { return locations[i].ID < locations[j].ID })
	for _, loc := range locations {
		id := types.LocationID(loc.ID)
		if _, exists := w.Locations[id]; exists {
			return nil, nil, fmt.Errorf("genesis: duplicate location id %q", loc.ID)
		}
		w.Locations[id] = &state.LocationState{
			ID:              id,
			Position:        loc.Position.toPosition(),
			Radiation:       loc.Radiation,
			CompoundDeposit: loc.CompoundDeposit,
			Occupants:       make(map[types.AgentID]struct{}),
		}
	}

	agents := append([]AgentSpec(nil), spec.Agents...)
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	for _, a := range agents {
		id := types.AgentID(a.ID)
		if _, exists := w.Agents[id]; exists {
			return nil, nil, fmt.Errorf("genesis: duplicate agent id %q", a.ID)
		}
		w.Agents[id] = &state.AgentState{
			ID:       id,
			Position: a.Position.toPosition(),
			Goals:    append([]string(nil), a.Goals...),
		}
	}

	if err := initMainToken(w, spec.MainToken); err != nil {
		return nil, nil, err
	}

	validators := append([]ValidatorSpec(nil), spec.Validators...)
	sort.Slice(validators, func(i, j int) bool { return validators[i].NodeID < validators[j].NodeID })
	if len(validators) == 0 {
		return nil, nil, fmt.Errorf("genesis: at least one validator is required")
	}
	out := make([]ValidatorGenesis, 0, len(validators))
	for _, v := range validators {
		if v.Stake == 0 {
			return nil, nil, fmt.Errorf("genesis: validator %q must have nonzero stake", v.NodeID)
		}
		pubKey, err := decodeHexPubKey(v.PubKey)
		if err != nil {
			return nil, nil, fmt.Errorf("genesis: validator %q: %w", v.NodeID, err)
		}
		out = append(out, ValidatorGenesis{NodeID: types.NodeID(v.NodeID), PubKey: pubKey, Stake: v.Stake})
	}

	return w, out, nil
}

func initMainToken(w *state.World, spec MainTokenSpec) error {
	initial, err := parseAmount("mainToken.initialSupply", spec.InitialSupply)
	if err != nil {
		return err
	}
	treasury, err := parseAmount("mainToken.treasury", spec.Treasury)
	if err != nil {
		return err
	}

	agentIDs := make([]string, 0, len(spec.Allocations))
	for id := range spec.Allocations {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	for _, id := range agentIDs {
		amt, err := parseAmount("mainToken.allocations["+id+"]", spec.Allocations[id])
		if err != nil {
			return err
		}
		w.MainToken.Balances[types.AgentID(id)] = amt
	}

	w.MainToken.InitialSupply = initial
	w.MainToken.Treasury = treasury
	w.MainToken.Policy = state.MainTokenPolicy{
		InflationBpsMax:              spec.Policy.InflationBpsMax,
		WarDurationBaseTicks:         spec.Policy.WarDurationBaseTicks,
		WarDurationPerIntensityTicks: spec.Policy.WarDurationPerIntensityTicks,
		PointsPerCredit:              spec.Policy.PointsPerCredit,
		FeeBurnBps:                   spec.Policy.FeeBurnBps,
	}
	w.MainToken.Initialized = true
	return nil
}

func decodeHexPubKey(hexStr string) ([]byte, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("invalid hex pubKey: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("pubKey must be 32 bytes (ed25519), got %d", len(b))
	}
	return b, nil
}
