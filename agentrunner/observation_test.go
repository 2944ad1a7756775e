package agentrunner

import (
	"testing"

	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/stretchr/testify/require"
)

func TestObserveIncludesNearbyAgentsAtSamePosition(t *testing.T) {
	world := state.New()
	pos := types.Position{X: 2, Y: 2, Z: 2}
	world.Agents["a"] = &state.AgentState{ID: "a", Position: pos}
	world.Agents["b"] = &state.AgentState{ID: "b", Position: pos}
	world.Agents["c"] = &state.AgentState{ID: "c", Position: types.Position{X: 9, Y: 9, Z: 9}}
	world.Locations["loc-1"] = &state.LocationState{ID: "loc-1", Position: pos}

	obs, ok := observe(world, "a")
	require.True(t, ok)
	require.Equal(t, types.AgentID("a"), obs.Self.ID)
	require.Len(t, obs.Nearby, 1)
	require.Equal(t, types.AgentID("b"), obs.Nearby[0].ID)
	require.True(t, obs.HasLocation)
	require.Equal(t, types.LocationID("loc-1"), obs.Location.ID)
}

func TestObserveMissingOrRetiredAgentReturnsFalse(t *testing.T) {
	world := state.New()
	world.Agents["retired"] = &state.AgentState{ID: "retired", Retired: true}

	_, ok := observe(world, "missing")
	require.False(t, ok)

	_, ok = observe(world, "retired")
	require.False(t, ok)
}
