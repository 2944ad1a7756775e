package agentrunner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eng-cc/agent-world/core/engine"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/observability/metrics"
)

// DefaultDecideTimeout bounds how long Runtime waits on one Decider.Decide
// call before abandoning it for that tick. A Decider that exceeds this
// still runs to completion on its own goroutine; Runtime simply stops
// caring about the result.
const DefaultDecideTimeout = 2 * time.Second

// Runtime drives the cooperative decide/observe loop described in spec
// section 5: Tick never blocks on a Decider. It dispatches one goroutine
// per registered agent, bounded by a worker pool, and submits whatever
// Decision comes back straight into the engine's mempool — the world tick
// itself only ever sees the queue, never a Decider directly.
type Runtime struct {
	eng *engine.Engine
	log *slog.Logger

	decideTimeout time.Duration
	sem           chan struct{}

	mu       sync.RWMutex
	deciders map[types.AgentID]Decider

	nonceMu   sync.Mutex
	lastNonce map[types.AgentID]uint64
}

// NewRuntime constructs a Runtime backed by eng. workers bounds how many
// Decide calls may run concurrently; decideTimeout bounds each one
// individually. A zero decideTimeout uses DefaultDecideTimeout.
func NewRuntime(eng *engine.Engine, log *slog.Logger, workers int, decideTimeout time.Duration) *Runtime {
	if workers <= 0 {
		workers = 1
	}
	if decideTimeout <= 0 {
		decideTimeout = DefaultDecideTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{
		eng:           eng,
		log:           log,
		decideTimeout: decideTimeout,
		sem:           make(chan struct{}, workers),
		deciders:      make(map[types.AgentID]Decider),
		lastNonce:     make(map[types.AgentID]uint64),
	}
}

// Register binds a Decider to an agent. Re-registering replaces the prior
// Decider; it does not reset the agent's tracked nonce.
func (r *Runtime) Register(agentID types.AgentID, decider Decider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deciders[agentID] = decider
}

// Unregister removes an agent's Decider. Tick no longer dispatches for it.
func (r *Runtime) Unregister(agentID types.AgentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deciders, agentID)
}

// Registered reports how many agents currently have a bound Decider.
func (r *Runtime) Registered() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deciders)
}

// Tick fans out one decide/observe round over every registered agent and
// returns immediately; it never waits on the goroutines it starts. Results
// land in the engine's mempool asynchronously, whenever each Decide call
// returns within its timeout; that may be after one or more later ticks.
func (r *Runtime) Tick(ctx context.Context, tick uint64) {
	r.mu.RLock()
	snapshot := make(map[types.AgentID]Decider, len(r.deciders))
	for id, d := range r.deciders {
		snapshot[id] = d
	}
	r.mu.RUnlock()

	world := r.eng.World()
	for id, decider := range snapshot {
		select {
		case r.sem <- struct{}{}:
			go r.run(ctx, id, decider, world, tick)
		default:
			metrics.AgentRunner().IncDispatchDropped()
			r.log.Warn("agentrunner dispatch dropped: worker pool saturated", "agent_id", string(id), "tick", tick)
		}
	}
}

func (r *Runtime) run(ctx context.Context, id types.AgentID, decider Decider, world *state.World, tick uint64) {
	defer func() { <-r.sem }()

	obs, ok := observe(world, id)
	if !ok {
		return
	}

	decideCtx, cancel := context.WithTimeout(ctx, r.decideTimeout)
	defer cancel()

	start := time.Now()
	decision, err := decider.Decide(decideCtx, obs)
	metrics.AgentRunner().ObserveDecideLatencySeconds(time.Since(start).Seconds())
	if err == nil && decideCtx.Err() != nil {
		err = decideCtx.Err()
	}

	if err != nil {
		metrics.AgentRunner().IncDecideError(classifyDecideError(err))
		r.log.Warn("agentrunner decide failed", "agent_id", string(id), "tick", tick, "err", err)
		return
	}
	if !decision.Act {
		metrics.AgentRunner().IncDecision("idle")
		return
	}

	action := decision.Action
	action.Actor = id
	action.Nonce = r.nextNonce(id, obs.Nonce)

	if err := r.eng.SubmitAction(types.Envelope{Action: action}); err != nil {
		metrics.AgentRunner().IncDecision("rejected")
		r.log.Debug("agentrunner submit failed", "agent_id", string(id), "tick", tick, "err", err)
		return
	}
	r.commitNonce(id, action.Nonce)
	metrics.AgentRunner().IncDecision("submitted")
}

func (r *Runtime) nextNonce(id types.AgentID, observedLast uint64) uint64 {
	r.nonceMu.Lock()
	defer r.nonceMu.Unlock()
	prev := r.lastNonce[id]
	if observedLast > prev {
		prev = observedLast
	}
	return prev + 1
}

func (r *Runtime) commitNonce(id types.AgentID, nonce uint64) {
	r.nonceMu.Lock()
	defer r.nonceMu.Unlock()
	if nonce > r.lastNonce[id] {
		r.lastNonce[id] = nonce
	}
}

func classifyDecideError(err error) string {
	if err == context.DeadlineExceeded {
		return "timeout"
	}
	if err == context.Canceled {
		return "canceled"
	}
	return "decider"
}
