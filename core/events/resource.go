package events

import "github.com/eng-cc/agent-world/core/types"

const (
	KindRadiationHarvested types.EventKind = "RadiationHarvested"
	KindCompoundMined      types.EventKind = "CompoundMined"
	KindCompoundRefined    types.EventKind = "CompoundRefined"
	KindFactoryBuilt       types.EventKind = "FactoryBuilt"
	KindRecipeScheduled    types.EventKind = "RecipeScheduled"
)

// RadiationHarvested reduces a location's radiation deposit and credits the
// agent's electricity resource. The negative delta at the location sources
// the positive delta at the agent, satisfying resource conservation.
type RadiationHarvested struct {
	Agent    types.AgentID
	Location types.LocationID
	Amount   uint64
}

// CompoundMined reduces a location's compound deposit and credits the
// agent's raw compound resource.
type CompoundMined struct {
	Agent    types.AgentID
	Location types.LocationID
	Amount   uint64
}

// CompoundRefined converts compound into refined data at a fixed yield; the
// conversion itself never creates resources, it only reshapes them.
type CompoundRefined struct {
	Agent         types.AgentID
	CompoundSpent uint64
	DataGained    uint64
}

// FactoryBuilt records a new factory entity owned by Agent at Location.
type FactoryBuilt struct {
	Agent    types.AgentID
	Location types.LocationID
	Factory  types.FactoryID
}

// RecipeScheduled records a factory's production queue entry.
type RecipeScheduled struct {
	Factory  types.FactoryID
	RecipeID string
	Quantity uint64
}
