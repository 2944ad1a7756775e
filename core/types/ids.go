package types

// Identifiers are plain strings: globally unique within a world, assigned by
// the bootstrap loader or a lifecycle-creating action. Keeping them as
// strings (rather than fixed-size arrays) matches the world's open-ended
// entity namespace (agents, locations, modules, nodes, alliances, wars,
// proposals, crises all share the same id shape).
type (
	AgentID     string
	LocationID  string
	ModuleID    string
	NodeID      string
	AssetID     string
	AllianceID  string
	WarID       string
	ProposalID  string
	CrisisID    string
	ContractID  string
	FactoryID   string
)

// Position coordinates are in centimeters per spec section 3 ("1 cm units").
type Position struct {
	X, Y, Z int64
}
