package state

import "github.com/eng-cc/agent-world/core/types"

// LocationState is the mutable record for one asteroid-belt location: its
// resource deposits, occupancy, and structural condition.
type LocationState struct {
	ID             types.LocationID
	Position       types.Position
	Radiation      uint64
	CompoundDeposit uint64
	Occupants      map[types.AgentID]struct{}
	Damage         uint64
	Shell          uint64
}

func (l LocationState) Clone() LocationState {
	clone := l
	clone.Occupants = make(map[types.AgentID]struct{}, len(l.Occupants))
	for k := range l.Occupants {
		clone.Occupants[k] = struct{}{}
	}
	return clone
}
