package events

import "github.com/eng-cc/agent-world/core/types"

const (
	KindAgentSpawned    types.EventKind = "AgentSpawned"
	KindAgentRetired    types.EventKind = "AgentRetired"
	KindAgentMoved      types.EventKind = "AgentMoved"
	KindAgentInteracted types.EventKind = "AgentInteracted"
)

// AgentSpawned introduces a new agent into the World, either at bootstrap or
// via the SpawnAgent action.
type AgentSpawned struct {
	Agent    types.AgentID
	Position types.Position
}

// AgentRetired marks an agent permanently inactive; its entity record is
// kept (ids are never reused) but it can no longer submit actions.
type AgentRetired struct {
	Agent types.AgentID
}

// AgentMoved records a successful Move action.
type AgentMoved struct {
	Agent types.AgentID
	From  types.Position
	To    types.Position
}

// AgentInteracted records a successful Interact action against a target
// entity (agent, location, or asset — Target carries the raw id string).
type AgentInteracted struct {
	Agent  types.AgentID
	Target string
	Kind   string
}
