package modulehost

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

func gameplayManifest(kind state.GameplayKind, mode string) state.ModuleManifest {
	return state.ModuleManifest{
		Role: state.ModuleRoleGameplay,
		GameplayContract: &state.GameplayABIContract{
			Kind:       kind,
			GameModes:  map[string]struct{}{mode: {}},
			MinPlayers: 1,
		},
		EntryPoints: map[string]bool{"on_tick": true},
	}
}

func TestHostRegisterRejectsRoleAbiMismatch(t *testing.T) {
	h := New(state.New())
	bad := state.ModuleManifest{Role: state.ModuleRoleSystem, GameplayContract: &state.GameplayABIContract{Kind: state.GameplayWar, GameModes: map[string]struct{}{"skirmish": {}}, MinPlayers: 1}}
	_, err := h.Register("agent-1", "mod-1", bad, [32]byte{1}, [32]byte{2}, [32]byte{3})
	require.Error(t, err)
}

func TestHostRegisterRejectsDuplicate(t *testing.T) {
	h := New(state.New())
	manifest := gameplayManifest(state.GameplayWar, "skirmish")
	_, err := h.Register("agent-1", "mod-1", manifest, [32]byte{1}, [32]byte{2}, [32]byte{3})
	require.NoError(t, err)
	_, err = h.Register("agent-1", "mod-1", manifest, [32]byte{1}, [32]byte{2}, [32]byte{3})
	require.Error(t, err)
}

func TestHostActivateEnforcesOnePerKindPerMode(t *testing.T) {
	w := state.New()
	h := New(w)
	manifestA := gameplayManifest(state.GameplayWar, "skirmish")
	manifestB := gameplayManifest(state.GameplayWar, "skirmish")

	_, err := h.Register("agent-1", "mod-a", manifestA, [32]byte{1}, [32]byte{2}, [32]byte{3})
	require.NoError(t, err)
	_, err = h.Register("agent-2", "mod-b", manifestB, [32]byte{4}, [32]byte{5}, [32]byte{6})
	require.NoError(t, err)

	_, err = h.Activate("mod-a", "skirmish")
	require.NoError(t, err)

	_, err = h.Activate("mod-b", "skirmish")
	require.Error(t, err)
}

func TestHostActivateAllowsDifferentGameModes(t *testing.T) {
	w := state.New()
	h := New(w)
	manifest := state.ModuleManifest{
		Role: state.ModuleRoleGameplay,
		GameplayContract: &state.GameplayABIContract{
			Kind:       state.GameplayWar,
			GameModes:  map[string]struct{}{"skirmish": {}, "siege": {}},
			MinPlayers: 1,
		},
	}
	other := state.ModuleManifest{
		Role: state.ModuleRoleGameplay,
		GameplayContract: &state.GameplayABIContract{
			Kind:       state.GameplayWar,
			GameModes:  map[string]struct{}{"siege": {}},
			MinPlayers: 1,
		},
	}
	_, err := h.Register("agent-1", "mod-a", manifest, [32]byte{1}, [32]byte{2}, [32]byte{3})
	require.NoError(t, err)
	_, err = h.Register("agent-2", "mod-b", other, [32]byte{4}, [32]byte{5}, [32]byte{6})
	require.NoError(t, err)

	_, err = h.Activate("mod-a", "skirmish")
	require.NoError(t, err)
	_, err = h.Activate("mod-b", "siege")
	require.NoError(t, err)
}

func TestHostDeactivateClearsStateWhenNoModesLeft(t *testing.T) {
	w := state.New()
	h := New(w)
	manifest := gameplayManifest(state.GameplayCrisis, "default")
	_, err := h.Register("agent-1", "mod-a", manifest, [32]byte{1}, [32]byte{2}, [32]byte{3})
	require.NoError(t, err)
	_, err = h.Activate("mod-a", "default")
	require.NoError(t, err)

	_, err = h.Deactivate("mod-a", "default")
	require.NoError(t, err)
	require.Equal(t, state.ModuleStateInactive, w.Modules[types.ModuleID("mod-a")].State)
}

func TestHostUpgradeRecomputesIdentity(t *testing.T) {
	w := state.New()
	h := New(w)
	manifest := gameplayManifest(state.GameplayEconomic, "default")
	_, err := h.Register("agent-1", "mod-a", manifest, [32]byte{1}, [32]byte{2}, [32]byte{3})
	require.NoError(t, err)
	before := w.Modules[types.ModuleID("mod-a")].IdentityHash

	_, err = h.Upgrade("mod-a", manifest, [32]byte{9}, [32]byte{9}, [32]byte{9})
	require.NoError(t, err)
	after := w.Modules[types.ModuleID("mod-a")].IdentityHash
	require.NotEqual(t, before, after)
}

func TestHostModeReadiness(t *testing.T) {
	w := state.New()
	h := New(w)
	warManifest := gameplayManifest(state.GameplayWar, "skirmish")
	_, err := h.Register("agent-1", "mod-war", warManifest, [32]byte{1}, [32]byte{2}, [32]byte{3})
	require.NoError(t, err)
	_, err = h.Activate("mod-war", "skirmish")
	require.NoError(t, err)

	_, missing, ready := h.ModeReadiness("skirmish", []state.GameplayKind{state.GameplayWar, state.GameplayGovernance})
	require.False(t, ready)
	require.Equal(t, []state.GameplayKind{state.GameplayGovernance}, missing)
}
