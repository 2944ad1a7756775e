package modulehost

import (
	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/events"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// Host governs module lifecycle transitions against a live World. Callers
// (core/engine's validators) must already hold the World's write lock; Host
// never locks on its own, matching how core/engine holds the lock for the
// whole tick rather than per-subsystem.
type Host struct {
	world *state.World
}

func New(world *state.World) *Host {
	return &Host{world: world}
}

// Register records a newly compiled artifact as a module in the
// "registered" lifecycle stage. It does not activate it for any game mode.
func (h *Host) Register(owner types.AgentID, id types.ModuleID, manifest state.ModuleManifest, wasmHash, sourceHash, buildManifestHash [32]byte) ([]types.DomainEvent, error) {
	if _, exists := h.world.Modules[id]; exists {
		return nil, worlderrors.ErrIdentityMismatch
	}
	if !roleAbiCoherent(manifest) || !gameplayContractWellFormed(manifest.GameplayContract) {
		return nil, worlderrors.ErrRoleAbiMismatch
	}
	identity := ComputeIdentityHash(id, sourceHash, buildManifestHash)
	h.world.Modules[id] = &state.ModuleRecord{
		ID: id, Owner: owner, Manifest: manifest,
		WasmHash: wasmHash, SourceHash: sourceHash, BuildManifestHash: buildManifestHash,
		IdentityHash: identity, State: state.ModuleStateRegistered,
		ActiveGameModes: make(map[string]struct{}),
	}
	return []types.DomainEvent{{Kind: events.KindModuleRegistered, Payload: events.ModuleRegistered{Module: id, Owner: owner}}}, nil
}

// ShadowValidate reruns every registration-time check against the module's
// current recorded manifest, as if about to activate it. A module must pass
// shadow validation immediately before activation (spec section 4.2).
func (h *Host) ShadowValidate(id types.ModuleID) error {
	rec, ok := h.world.Modules[id]
	if !ok {
		return worlderrors.ErrModuleNotActive
	}
	if !roleAbiCoherent(rec.Manifest) || !gameplayContractWellFormed(rec.Manifest.GameplayContract) {
		return worlderrors.ErrShadowValidationFail
	}
	return nil
}

// Activate transitions a module into the active state for one game mode,
// rejecting on activation conflict: at most one active module per
// GameplayKind within a given game_mode.
func (h *Host) Activate(id types.ModuleID, gameMode string) ([]types.DomainEvent, error) {
	rec, ok := h.world.Modules[id]
	if !ok {
		return nil, worlderrors.ErrModuleNotActive
	}
	if err := h.ShadowValidate(id); err != nil {
		return nil, err
	}
	if rec.Manifest.Role == state.ModuleRoleGameplay && rec.Manifest.GameplayContract != nil {
		if _, allowed := rec.Manifest.GameplayContract.GameModes[gameMode]; !allowed {
			return nil, worlderrors.ErrRoleAbiMismatch
		}
		kind := rec.Manifest.GameplayContract.Kind
		for otherID, other := range h.world.Modules {
			if otherID == id || other.State != state.ModuleStateActive {
				continue
			}
			if other.Manifest.GameplayContract == nil || other.Manifest.GameplayContract.Kind != kind {
				continue
			}
			if _, activeInMode := other.ActiveGameModes[gameMode]; activeInMode {
				return nil, worlderrors.ErrActivationConflict
			}
		}
	}
	rec.State = state.ModuleStateActive
	rec.ActiveGameModes[gameMode] = struct{}{}
	return []types.DomainEvent{{Kind: events.KindModuleActivated, Payload: events.ModuleActivated{Module: id, GameMode: gameMode}}}, nil
}

// Deactivate removes a module from one game mode's active set.
func (h *Host) Deactivate(id types.ModuleID, gameMode string) ([]types.DomainEvent, error) {
	rec, ok := h.world.Modules[id]
	if !ok {
		return nil, worlderrors.ErrModuleNotActive
	}
	delete(rec.ActiveGameModes, gameMode)
	if len(rec.ActiveGameModes) == 0 {
		rec.State = state.ModuleStateInactive
	}
	return []types.DomainEvent{{Kind: events.KindModuleDeactivated, Payload: events.ModuleDeactivated{Module: id}}}, nil
}

// Upgrade replaces a module's artifact hashes and recomputes identity_hash,
// re-running shadow validation against the new manifest before committing.
func (h *Host) Upgrade(id types.ModuleID, manifest state.ModuleManifest, wasmHash, sourceHash, buildManifestHash [32]byte) ([]types.DomainEvent, error) {
	rec, ok := h.world.Modules[id]
	if !ok {
		return nil, worlderrors.ErrModuleNotActive
	}
	if !roleAbiCoherent(manifest) || !gameplayContractWellFormed(manifest.GameplayContract) {
		return nil, worlderrors.ErrRoleAbiMismatch
	}
	newIdentity := ComputeIdentityHash(id, sourceHash, buildManifestHash)
	rec.Manifest = manifest
	rec.WasmHash = wasmHash
	rec.SourceHash = sourceHash
	rec.BuildManifestHash = buildManifestHash
	rec.IdentityHash = newIdentity
	return []types.DomainEvent{{Kind: events.KindModuleUpgraded, Payload: events.ModuleUpgraded{Module: id, NewIdentityHash: newIdentity}}}, nil
}

// ModeReadiness reports, for one game mode, which GameplayKinds have an
// active module and which are still missing.
func (h *Host) ModeReadiness(gameMode string, required []state.GameplayKind) (coverage map[state.GameplayKind]bool, missing []state.GameplayKind, ready bool) {
	coverage = make(map[state.GameplayKind]bool, len(required))
	for _, rec := range h.world.Modules {
		if rec.State != state.ModuleStateActive || rec.Manifest.GameplayContract == nil {
			continue
		}
		if _, active := rec.ActiveGameModes[gameMode]; !active {
			continue
		}
		coverage[rec.Manifest.GameplayContract.Kind] = true
	}
	ready = true
	for _, kind := range required {
		if !coverage[kind] {
			missing = append(missing, kind)
			ready = false
		}
	}
	return coverage, missing, ready
}
