package genesis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/core/types"
)

func sampleSpec() *GenesisSpec {
	return &GenesisSpec{
		WorldID: "belt-test",
		Agents: []AgentSpec{
			{ID: "agent-b", Position: PositionSpec{X: 1}},
			{ID: "agent-a", Position: PositionSpec{Y: 2}},
		},
		Locations: []LocationSpec{
			{ID: "loc-1", Radiation: 1000, CompoundDeposit: 500},
		},
		MainToken: MainTokenSpec{
			InitialSupply: "1000000",
			Treasury:      "250000",
			Allocations: map[string]string{
				"agent-a": "100",
				"agent-b": "200",
			},
			Policy: PolicySpec{
				InflationBpsMax:              500,
				WarDurationBaseTicks:         6,
				WarDurationPerIntensityTicks: 2,
				PointsPerCredit:              100,
				FeeBurnBps:                   1000,
			},
		},
		Validators: []ValidatorSpec{
			{NodeID: "node-1", PubKey: "0000000000000000000000000000000000000000000000000000000000000001", Stake: 10},
		},
	}
}

func TestBuildGenesisWorldDeterministic(t *testing.T) {
	spec := sampleSpec()

	w1, validators1, err := BuildGenesisWorld(spec)
	require.NoError(t, err)
	w2, validators2, err := BuildGenesisWorld(spec)
	require.NoError(t, err)

	snap1, err := w1.Snapshot().EncodeCanonical()
	require.NoError(t, err)
	snap2, err := w2.Snapshot().EncodeCanonical()
	require.NoError(t, err)
	require.Equal(t, snap1, snap2)
	require.Equal(t, validators1, validators2)
}

func TestBuildGenesisWorldPopulatesEntities(t *testing.T) {
	w, validators, err := BuildGenesisWorld(sampleSpec())
	require.NoError(t, err)

	require.Len(t, w.Agents, 2)
	require.Len(t, w.Locations, 1)
	require.Equal(t, uint64(1000), w.Locations[types.LocationID("loc-1")].Radiation)
	require.True(t, w.MainToken.Initialized)
	require.Equal(t, "100", w.MainToken.Balances[types.AgentID("agent-a")].String())
	require.Len(t, validators, 1)
	require.Equal(t, uint64(10), validators[0].Stake)
}

func TestBuildGenesisWorldRejectsDuplicateAgent(t *testing.T) {
	spec := sampleSpec()
	spec.Agents = append(spec.Agents, AgentSpec{ID: "agent-a"})
	_, _, err := BuildGenesisWorld(spec)
	require.Error(t, err)
}

func TestBuildGenesisWorldRequiresValidator(t *testing.T) {
	spec := sampleSpec()
	spec.Validators = nil
	_, _, err := BuildGenesisWorld(spec)
	require.Error(t, err)
}
