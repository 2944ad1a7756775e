// Package genesis bootstraps a fresh World from a declarative spec file:
// initial agents, locations, main-token allocation, and the validator set
// PoS consensus starts from. The shape is adapted from the teacher's
// GenesisSpec/BuildGenesisFromSpec (core/genesis/spec.go, loader.go):
// plain JSON fields, sorted-key iteration everywhere so the resulting World
// is byte-identical across nodes regardless of map iteration order.
package genesis

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// GenesisSpec is the declarative bootstrap input. Amount fields are decimal
// strings (like the teacher's Alloc map) rather than JSON numbers, since
// token amounts exceed safe float precision.
type GenesisSpec struct {
	WorldID string `json:"worldId"`

	Agents    []AgentSpec    `json:"agents"`
	Locations []LocationSpec `json:"locations"`

	MainToken  MainTokenSpec   `json:"mainToken"`
	Validators []ValidatorSpec `json:"validators"`
}

type AgentSpec struct {
	ID       string        `json:"id"`
	Position PositionSpec  `json:"position"`
	Goals    []string      `json:"goals,omitempty"`
}

type PositionSpec struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

type LocationSpec struct {
	ID              string       `json:"id"`
	Position        PositionSpec `json:"position"`
	Radiation       uint64       `json:"radiation"`
	CompoundDeposit uint64       `json:"compoundDeposit"`
}

type MainTokenSpec struct {
	InitialSupply string            `json:"initialSupply"`
	Treasury      string            `json:"treasury"`
	Allocations   map[string]string `json:"allocations,omitempty"` // agent id -> decimal amount
	Policy        PolicySpec        `json:"policy"`
}

type PolicySpec struct {
	InflationBpsMax              uint32 `json:"inflationBpsMax"`
	WarDurationBaseTicks         uint64 `json:"warDurationBaseTicks"`
	WarDurationPerIntensityTicks uint64 `json:"warDurationPerIntensityTicks"`
	PointsPerCredit              uint64 `json:"pointsPerCredit"`
	FeeBurnBps                   uint32 `json:"feeBurnBps"`
}

// ValidatorSpec is one entry in the PoS genesis validator set. PubKey is the
// hex-encoded ed25519 public key; Stake is the bonded weight used in
// supermajority computation (spec section 4.3).
type ValidatorSpec struct {
	NodeID string `json:"nodeId"`
	PubKey string `json:"pubKey"`
	Stake  uint64 `json:"stake"`
}

// Load reads and parses a GenesisSpec from a JSON file.
func Load(path string) (*GenesisSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis spec: %w", err)
	}
	defer f.Close()

	var spec GenesisSpec
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec: %w", err)
	}
	return &spec, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	amt, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid decimal amount %q", field, value)
	}
	if amt.Sign() < 0 {
		return nil, fmt.Errorf("%s: amount must not be negative", field)
	}
	return amt, nil
}

func (p PositionSpec) toPosition() types.Position {
	return types.Position{X: p.X, Y: p.Y, Z: p.Z}
}
