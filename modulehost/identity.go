// Package modulehost governs the lifecycle and sandboxed invocation of
// third-party WASM gameplay/economy/power modules. Registration and
// activation follow the upsert shape of the teacher's native/pos.Registry
// (register -> validate -> activate, rejecting conflicting state),
// generalized from merchant/device sponsorship records to module
// manifests; module transitions carry no nonce.
package modulehost

import (
	"lukechampine.com/blake3"

	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// ComputeIdentityHash derives identity_hash = H(module_id : source_hash :
// build_manifest_hash) per spec section 4.2. Identity equivalence, not
// byte-identical artifacts, is what governance and cross-platform
// activation compare.
func ComputeIdentityHash(moduleID types.ModuleID, sourceHash, buildManifestHash [32]byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(moduleID))
	h.Write([]byte{':'})
	h.Write(sourceHash[:])
	h.Write([]byte{':'})
	h.Write(buildManifestHash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// roleAbiCoherent enforces spec section 4.2: non-Gameplay roles must not
// carry a gameplay ABI contract, and Gameplay must.
func roleAbiCoherent(m state.ModuleManifest) bool {
	hasContract := m.GameplayContract != nil
	isGameplay := m.Role == state.ModuleRoleGameplay
	return hasContract == isGameplay
}

// gameplayContractWellFormed validates the nested gameplay ABI contract
// fields when present.
func gameplayContractWellFormed(c *state.GameplayABIContract) bool {
	if c == nil {
		return true
	}
	if len(c.GameModes) == 0 {
		return false
	}
	if c.MinPlayers < 1 {
		return false
	}
	if c.MaxPlayers != 0 && c.MaxPlayers < c.MinPlayers {
		return false
	}
	return true
}
