// Package engine implements the tick-driven world state machine from spec
// section 4.1: submit_action, step, snapshot, apply_journal. The round
// structure is adapted from the teacher's consensus/bft.Engine.runRound
// (drain -> process -> apply -> advance), repurposed from BFT voting rounds
// to world ticks.
package engine

import (
	"log/slog"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/mempool"
	"github.com/eng-cc/agent-world/modulehost"
	"github.com/eng-cc/agent-world/reward"
)

// Config bounds one tick's work and the snapshot cadence, plus the
// reward-subsystem inputs (validator stake, for epoch-leader selection) and
// tunables that validate.go's reward/main-token validators need.
type Config struct {
	MaxActionsPerTick  int
	SnapshotEveryTicks uint64
	Validators         map[types.NodeID]uint64
	RewardParams       reward.Params
	RedeemParams       reward.RedeemParams
}

// TickReport summarises one step() call for the caller (node loop, tests).
type TickReport struct {
	Tick          uint64
	EventsApplied []types.DomainEvent
	Rejected      []types.ActionRejected
	SnapshotTaken bool
}

// Journal is the append-only sequence of (tick, events) pairs persisted by
// the node; the engine appends to it every tick.
type Journal struct {
	Entries []JournalEntry
}

type JournalEntry struct {
	Tick   uint64
	Events []types.DomainEvent
}

// Engine owns one World and drives its tick transitions. It never suspends:
// all blocking I/O happens on the node's worker threads before events reach
// the engine's queues, per spec section 5.
type Engine struct {
	cfg     Config
	world   *state.World
	pool    *mempool.Mempool
	journal *Journal
	log     *slog.Logger
	rng     *rngState
	modules *modulehost.Host

	validators map[types.NodeID]uint64
}

// New constructs an Engine around an existing World (freshly bootstrapped or
// restored from a snapshot).
func New(world *state.World, pool *mempool.Mempool, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	validators := make(map[types.NodeID]uint64, len(cfg.Validators))
	for id, stake := range cfg.Validators {
		validators[id] = stake
	}

	return &Engine{
		cfg:        cfg,
		world:      world,
		pool:       pool,
		journal:    &Journal{},
		log:        log.With("component", "world-engine"),
		rng:        newRNGState(world.RNGSeed),
		modules:    modulehost.New(world),
		validators: validators,
	}
}

// SetValidators replaces the stake-weighted validator set used to derive
// reward-settlement epoch leaders, mirroring node.Node.SetValidatorSet.
func (e *Engine) SetValidators(validators map[types.NodeID]uint64) {
	e.world.Lock()
	defer e.world.Unlock()
	e.validators = make(map[types.NodeID]uint64, len(validators))
	for id, stake := range validators {
		e.validators[id] = stake
	}
}

// World exposes the underlying aggregate for read-only inspection (viewer,
// tests). Mutation outside Step is forbidden.
func (e *Engine) World() *state.World { return e.world }

// SubmitAction queues an action envelope into the mempool. It performs only
// the static checks spec section 4.1 requires before a queue slot is spent:
// malformed payload and duplicate/replayed nonce against the last value the
// engine has observed committed. Everything else is deferred to Step.
func (e *Engine) SubmitAction(env types.Envelope) error {
	if env.Action.Kind == "" {
		return worlderrors.ErrMalformedAction
	}
	if requiresKnownAgent(env.Action.Kind) {
		e.world.RLock()
		agent, ok := e.world.Agents[env.Action.Actor]
		replay := ok && env.Action.Nonce <= agent.LastNonce
		e.world.RUnlock()
		if replay {
			return worlderrors.ErrNonceReplay
		}
	}
	return e.pool.Submit(env)
}

// Step performs exactly one tick transition: drain up to the configured
// budget, validate and apply each action in dequeue order, run scheduled
// timers, advance the RNG and tick counter, and optionally snapshot.
func (e *Engine) Step(nowMs int64) TickReport {
	report := TickReport{Tick: e.world.Tick + 1}

	e.world.Lock()
	defer e.world.Unlock()

	batch := e.pool.Drain(e.cfg.MaxActionsPerTick)
	for _, env := range batch {
		evs, rejected := e.validateAndApply(env, nowMs)
		if rejected != nil {
			report.Rejected = append(report.Rejected, *rejected)
			evs = []types.DomainEvent{{Tick: report.Tick, Kind: types.EventActionRejected, Payload: *rejected}}
		}
		for i := range evs {
			evs[i].Tick = report.Tick
		}
		report.EventsApplied = append(report.EventsApplied, evs...)
	}

	timerEvents := e.runScheduledTimers(report.Tick)
	report.EventsApplied = append(report.EventsApplied, timerEvents...)

	if err := e.world.AssertInvariants(); err != nil {
		e.log.Error("invariant violation, halting tick", "error", err, "tick", report.Tick)
		panic(err)
	}

	e.world.Tick = report.Tick
	e.rng.Advance()
	e.world.RNGSeed = e.rng.Seed()

	e.journal.Entries = append(e.journal.Entries, JournalEntry{Tick: report.Tick, Events: report.EventsApplied})

	if e.cfg.SnapshotEveryTicks > 0 && report.Tick%e.cfg.SnapshotEveryTicks == 0 {
		report.SnapshotTaken = true
	}

	return report
}

// Snapshot produces a serializable value of the current World.
func (e *Engine) Snapshot() state.Snapshot {
	e.world.RLock()
	defer e.world.RUnlock()
	return e.world.Snapshot()
}

// ApplyJournal replays journal entries on top of the engine's current World,
// applying events directly (bypassing validation, since they were already
// accepted once) to reach a later state deterministically.
func (e *Engine) ApplyJournal(entries []JournalEntry) error {
	e.world.Lock()
	defer e.world.Unlock()
	for _, entry := range entries {
		for _, ev := range entry.Events {
			if ev.Kind == types.EventActionRejected {
				continue
			}
			if err := applyEvent(e.world, ev); err != nil {
				return err
			}
		}
		e.world.Tick = entry.Tick
	}
	return nil
}

