// Package agentrunner drives the decide/observe loop for agents hosted
// outside the world engine itself: it snapshots what one agent can see,
// hands that observation to a cooperative decider, and queues whatever
// action comes back. It never mutates World directly and never blocks a
// tick on a slow decider, mirroring the separation in spec section 5
// ("networking ... run on separate worker threads; they communicate with
// the world thread only by enqueuing actions ... into bounded queues").
package agentrunner

import (
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
)

// Observation is the read-only view of the world a Decider receives for one
// agent on one tick. It is a value copy: nothing in it aliases World's
// internal maps, so a Decider running on its own goroutine can hold it
// past the tick that produced it without a lock.
type Observation struct {
	Tick  uint64
	Self  state.AgentState
	Nonce uint64

	// Nearby holds every other live agent sharing Self's location, for
	// deciders that reason about interaction partners.
	Nearby []state.AgentState

	// Location is the LocationState Self currently occupies, if any.
	Location state.LocationState
	HasLocation bool
}

// observe builds an Observation for agentID from world under a read lock.
// Callers must hold no lock on world; observe takes and releases one.
func observe(world *state.World, agentID types.AgentID) (Observation, bool) {
	world.RLock()
	defer world.RUnlock()

	self, ok := world.Agents[agentID]
	if !ok || self.Retired {
		return Observation{}, false
	}

	obs := Observation{
		Tick:  world.Tick,
		Self:  self.Clone(),
		Nonce: self.LastNonce,
	}

	for id, other := range world.Agents {
		if id == agentID || other.Retired {
			continue
		}
		if other.Position == self.Position {
			obs.Nearby = append(obs.Nearby, other.Clone())
		}
	}

	for _, loc := range world.Locations {
		if loc.Position == self.Position {
			obs.Location, obs.HasLocation = loc.Clone(), true
			break
		}
	}

	return obs, true
}
