package engine

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"

	"github.com/eng-cc/agent-world/consensus/codec"
	"github.com/eng-cc/agent-world/core/types"
)

// ExecuteProposedBlock replays a proposer-supplied action batch on top of the
// current World, the same validate-then-apply path Step uses for its own
// mempool-drained batch, except the batch comes from block.Actions rather
// than the local queue. It is how consensus/pos's NodeInterface.ExecuteBlock
// hook is satisfied: both the proposer (immediately after building its own
// proposal) and every attesting peer (before voting to approve it) call this
// with the identical action batch, so execution only ever diverges on a real
// non-determinism bug rather than on mempool ordering differences.
//
// The returned executionBlockHash commits to the header's identity plus the
// events that batch produced; executionStateRoot commits to the resulting
// World snapshot. Both are compared across nodes out-of-band (gap-sync,
// challenge probes) to catch execution mismatches per spec section 4.3.
func (e *Engine) ExecuteProposedBlock(block types.Block, nowMs int64) (executionBlockHash []byte, executionStateRoot []byte, err error) {
	e.world.Lock()
	defer e.world.Unlock()

	if block.Header.Height != e.world.Tick+1 {
		return nil, nil, fmt.Errorf("engine: execute block height %d does not follow current tick %d", block.Header.Height, e.world.Tick)
	}

	tick := block.Header.Height
	var applied []types.DomainEvent
	for _, env := range block.Actions {
		evs, rejected := e.validateAndApply(env, nowMs)
		if rejected != nil {
			evs = []types.DomainEvent{{Tick: tick, Kind: types.EventActionRejected, Payload: *rejected}}
		}
		for i := range evs {
			evs[i].Tick = tick
		}
		applied = append(applied, evs...)
	}

	timerEvents := e.runScheduledTimers(tick)
	applied = append(applied, timerEvents...)

	if ierr := e.world.AssertInvariants(); ierr != nil {
		e.log.Error("invariant violation, halting execution", "error", ierr, "height", tick)
		panic(ierr)
	}

	e.world.Tick = tick
	e.rng.Advance()
	e.world.RNGSeed = e.rng.Seed()

	e.journal.Entries = append(e.journal.Entries, JournalEntry{Tick: tick, Events: applied})

	snap := e.world.Snapshot()
	snapBytes, err := snap.EncodeCanonical()
	if err != nil {
		return nil, nil, fmt.Errorf("engine: encode snapshot for execution binding: %w", err)
	}
	stateRoot := codec.ExecutionStateRoot(snapBytes)

	execHash, err := executionHash(block.Header.BlockHash, applied)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: encode execution trace: %w", err)
	}

	return execHash, stateRoot, nil
}

// executionHash binds a proposal's block hash to the ordered event trace its
// execution produced, so two nodes that executed the same batch but reached
// different outcomes (the property a consensus execution-mismatch detects)
// disagree on this hash rather than silently committing divergent state.
func executionHash(blockHash []byte, events []types.DomainEvent) ([]byte, error) {
	type tracePayload struct {
		BlockHash []byte              `cbor:"block_hash"`
		Events    []types.DomainEvent `cbor:"events"`
	}
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	encoded, err := mode.Marshal(tracePayload{BlockHash: blockHash, Events: events})
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(encoded)
	return sum[:], nil
}

// Height reports the highest applied tick. It satisfies the node-facing
// Height() verb consensus/pos.NodeInterface requires, alongside Step/Snapshot
// above.
func (e *Engine) Height() uint64 {
	e.world.RLock()
	defer e.world.RUnlock()
	return e.world.Tick
}
