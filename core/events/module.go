package events

import "github.com/eng-cc/agent-world/core/types"

const (
	KindModuleArtifactCompiled  types.EventKind = "ModuleArtifactCompiled"
	KindModuleRegistered        types.EventKind = "ModuleRegistered"
	KindModuleActivated         types.EventKind = "ModuleActivated"
	KindModuleDeactivated       types.EventKind = "ModuleDeactivated"
	KindModuleUpgraded          types.EventKind = "ModuleUpgraded"
	KindModuleDirectiveRejected types.EventKind = "ModuleDirectiveRejected"
)

type ModuleArtifactCompiled struct {
	SourceHash     [32]byte
	WasmHash       [32]byte
	IdentityHash   [32]byte
}

type ModuleRegistered struct {
	Module types.ModuleID
	Owner  types.AgentID
}

type ModuleActivated struct {
	Module   types.ModuleID
	GameMode string
}

type ModuleDeactivated struct {
	Module types.ModuleID
}

type ModuleUpgraded struct {
	Module          types.ModuleID
	NewIdentityHash [32]byte
}

// ModuleDirectiveRejected records a module's output directive that failed
// host validation against world invariants.
type ModuleDirectiveRejected struct {
	Module    types.ModuleID
	Directive string
	Reason    string
}
