package state

import "github.com/eng-cc/agent-world/core/types"

// ModuleRole is the closed set of host-recognized module roles from spec
// section 4.2.
type ModuleRole string

const (
	ModuleRoleSystem    ModuleRole = "System"
	ModuleRolePower     ModuleRole = "Power"
	ModuleRoleEconomy   ModuleRole = "Economy"
	ModuleRoleGameplay  ModuleRole = "Gameplay"
)

// GameplayKind tags the capability a Gameplay module provides; only one
// active module per kind is allowed within a given game mode.
type GameplayKind string

const (
	GameplayWar        GameplayKind = "war"
	GameplayGovernance GameplayKind = "governance"
	GameplayCrisis     GameplayKind = "crisis"
	GameplayEconomic   GameplayKind = "economic"
	GameplayMeta       GameplayKind = "meta"
)

// GameplayABIContract is the recognized manifest option for Gameplay-role
// modules.
type GameplayABIContract struct {
	Kind       GameplayKind
	GameModes  map[string]struct{}
	MinPlayers uint32
	MaxPlayers uint32
}

// ResourceLimits bounds a module invocation's sandbox footprint.
type ResourceLimits struct {
	MaxMemoryPages   uint32
	MaxExecTimeMs    uint32
	MaxOutputBytes   uint32
}

// ModuleManifest is the recognized, versioned set of manifest fields from
// spec section 4.2.
type ModuleManifest struct {
	Role            ModuleRole
	GameplayContract *GameplayABIContract
	Limits          ResourceLimits
	Subscriptions   []string // event kinds the module wakes on
	EntryPoints     map[string]bool // init, on_tick, on_event, on_module_call, finalize
}

// ModuleActivationState is the lifecycle stage of a registered module.
type ModuleActivationState string

const (
	ModuleStateRegistered      ModuleActivationState = "registered"
	ModuleStateShadowValidated ModuleActivationState = "shadow_validated"
	ModuleStateActive          ModuleActivationState = "active"
	ModuleStateInactive        ModuleActivationState = "inactive"
)

// ModuleRecord is the authoritative record the World owns; modulehost only
// ever holds the opaque ModuleID, never a pointer into this struct.
type ModuleRecord struct {
	ID               types.ModuleID
	Owner            types.AgentID
	Manifest         ModuleManifest
	WasmHash         [32]byte
	SourceHash       [32]byte
	BuildManifestHash [32]byte
	IdentityHash     [32]byte
	State            ModuleActivationState
	ActiveGameModes  map[string]struct{}
}

func (m ModuleRecord) Clone() ModuleRecord {
	clone := m
	clone.ActiveGameModes = make(map[string]struct{}, len(m.ActiveGameModes))
	for k := range m.ActiveGameModes {
		clone.ActiveGameModes[k] = struct{}{}
	}
	return clone
}
