package agentrunner

import (
	"context"

	"github.com/eng-cc/agent-world/core/types"
)

// Decision is what a Decider returns for one Observation. Act is false when
// the agent has nothing to do this tick; Runtime never submits an empty
// action to avoid wasting a mempool slot.
type Decision struct {
	Act    bool
	Action types.Action
}

// Decider decides the next action for one agent given an Observation. It
// must not block on anything but ctx cancellation — callers running an LLM
// or other high-latency decision process belong on their own goroutine
// (see Runtime.Tick), not inside Decider itself.
type Decider interface {
	Decide(ctx context.Context, obs Observation) (Decision, error)
}

// DeciderFunc adapts a plain function to the Decider interface.
type DeciderFunc func(ctx context.Context, obs Observation) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, obs Observation) (Decision, error) {
	return f(ctx, obs)
}
