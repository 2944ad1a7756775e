package main

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/eng-cc/agent-world/core/engine"
	"github.com/eng-cc/agent-world/core/state"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/storage"
)

// worldStateKey and headKey hold the most recently persisted World snapshot
// and the consensus head it corresponds to. They are written together so a
// restart never resumes a world tick count that disagrees with the block
// height consensus/pos believes it last committed.
var (
	worldStateKey = []byte("worldnode/state/snapshot")
	headKey       = []byte("worldnode/state/head")
)

// persistedHead is the CBOR-encoded form of types.Head; it is not put
// through the canonical encoder because it is never hashed, only stored.
type persistedHead struct {
	WorldID            string `cbor:"world_id"`
	Height             uint64 `cbor:"height"`
	BlockHash          []byte `cbor:"block_hash"`
	ExecutionStateRoot []byte `cbor:"execution_state_root"`
}

// saveWorldState persists eng's current World snapshot and the head the
// node last committed. Called on a fixed cadence from the
// snapshot-persistence loop in main and once more at shutdown.
func saveWorldState(db storage.Database, eng *engine.Engine, head types.Head) error {
	snap := eng.Snapshot()
	encoded, err := snap.EncodeCanonical()
	if err != nil {
		return fmt.Errorf("encode world snapshot: %w", err)
	}
	if err := db.Put(worldStateKey, encoded); err != nil {
		return fmt.Errorf("persist world snapshot: %w", err)
	}
	headBytes, err := cbor.Marshal(persistedHead{
		WorldID:            head.WorldID,
		Height:             head.Height,
		BlockHash:          head.BlockHash,
		ExecutionStateRoot: head.ExecutionStateRoot,
	})
	if err != nil {
		return fmt.Errorf("encode head: %w", err)
	}
	if err := db.Put(headKey, headBytes); err != nil {
		return fmt.Errorf("persist head: %w", err)
	}
	return nil
}

// loadWorldState returns a previously persisted World and head. ok is false
// if this database has never had a snapshot written to it, treating any
// read error as absence (the convention distfs.BlobStore and
// consensus/store.LoadValidators follow).
func loadWorldState(db storage.Database) (world *state.World, head types.Head, ok bool, err error) {
	rawSnapshot, getErr := db.Get(worldStateKey)
	if getErr != nil {
		return nil, types.Head{}, false, nil
	}
	snap, err := state.DecodeSnapshot(rawSnapshot)
	if err != nil {
		return nil, types.Head{}, false, fmt.Errorf("decode world snapshot: %w", err)
	}
	rawHead, getErr := db.Get(headKey)
	if getErr != nil {
		return nil, types.Head{}, false, fmt.Errorf("world snapshot present without a recorded head")
	}
	var ph persistedHead
	if err := cbor.Unmarshal(rawHead, &ph); err != nil {
		return nil, types.Head{}, false, fmt.Errorf("decode head: %w", err)
	}
	return state.Restore(snap), types.Head{
		WorldID:            ph.WorldID,
		Height:             ph.Height,
		BlockHash:          ph.BlockHash,
		ExecutionStateRoot: ph.ExecutionStateRoot,
	}, true, nil
}
