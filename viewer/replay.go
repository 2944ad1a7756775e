package viewer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// journalTick is one (tick, events) entry of a replay journal file. It
// mirrors core/engine.JournalEntry but is decoded straight into the wire
// EventMessage shape: replay never reconstructs a World, it only re-plays
// previously recorded wire frames.
type journalTick struct {
	Tick   uint64            `json:"tick"`
	Events []json.RawMessage `json:"events"`
}

// Replayer drives offline playback from a snapshot.json + journal.json pair
// spec section 6 requires the viewer server support alongside live mode.
// Pacing is controlled by ControlMessages the same way a live connection's
// play/pause/step requests would be, so a client cannot tell the two modes
// apart at the protocol level.
type Replayer struct {
	log    *slog.Logger
	server *Server

	snapshot SnapshotMessage
	entries  []journalTick

	mu      sync.Mutex
	cursor  int
	playing bool

	tickInterval time.Duration
}

// LoadReplay reads a snapshot.json + journal.json pair from disk. Both are
// plain JSON exports of the viewer wire messages (SnapshotMessage and a
// journalTick array), distinct from the node's own canonical-CBOR
// persistence: the viewer protocol is normatively JSON (spec section 6), so
// a replay file is simply a recording of frames, not a re-derivation from
// internal World state.
func LoadReplay(snapshotPath, journalPath string, server *Server, log *slog.Logger, tickInterval time.Duration) (*Replayer, error) {
	if log == nil {
		log = slog.Default()
	}
	if tickInterval <= 0 {
		tickInterval = 200 * time.Millisecond
	}

	snapRaw, err := os.ReadFile(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("viewer: read snapshot file: %w", err)
	}
	var snap SnapshotMessage
	if err := json.Unmarshal(snapRaw, &snap); err != nil {
		return nil, fmt.Errorf("viewer: decode snapshot file: %w", err)
	}

	journalRaw, err := os.ReadFile(journalPath)
	if err != nil {
		return nil, fmt.Errorf("viewer: read journal file: %w", err)
	}
	var entries []journalTick
	if err := json.Unmarshal(journalRaw, &entries); err != nil {
		return nil, fmt.Errorf("viewer: decode journal file: %w", err)
	}

	return &Replayer{
		log:          log,
		server:       server,
		snapshot:     snap,
		entries:      entries,
		tickInterval: tickInterval,
	}, nil
}

// PublishSnapshot broadcasts the loaded initial snapshot once. Callers
// typically do this right after the server starts accepting connections,
// before Run begins advancing the journal.
func (r *Replayer) PublishSnapshot() {
	f, err := newFrame(FrameSnapshot, r.snapshot)
	if err != nil {
		r.log.Warn("viewer: encode replay snapshot", "err", err)
		return
	}
	r.server.Publish(f)
}

// Run advances the journal on tickInterval while playing, until stop is
// closed. Reaching the end of the journal pauses playback; Run itself keeps
// running until stop is closed.
func (r *Replayer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			playing := r.playing
			r.mu.Unlock()
			if playing {
				r.advance(1)
			}
		}
	}
}

// Control applies a ControlMessage from any connected viewer. Play/Pause
// toggle automatic advancement; Step advances immediately regardless of
// play state; Focus is ignored, since replay has no camera state of its
// own to adjust.
func (r *Replayer) Control(msg ControlMessage) {
	switch msg.Kind {
	case ControlPlay:
		r.mu.Lock()
		r.playing = true
		r.mu.Unlock()
	case ControlPause:
		r.mu.Lock()
		r.playing = false
		r.mu.Unlock()
	case ControlStep:
		steps := msg.Ticks
		if steps == 0 {
			steps = 1
		}
		r.advance(int(steps))
	case ControlFocus:
		// No server-side camera state; clients interpret Focus locally.
	}
}

// advance publishes the next n journal entries as Event frames, stopping
// early if the journal is exhausted.
func (r *Replayer) advance(n int) {
	r.mu.Lock()
	start := r.cursor
	end := start + n
	if end > len(r.entries) {
		end = len(r.entries)
	}
	r.cursor = end
	exhausted := r.cursor >= len(r.entries)
	if exhausted {
		r.playing = false
	}
	batch := r.entries[start:end]
	r.mu.Unlock()

	for _, jt := range batch {
		for _, ev := range jt.Events {
			f, err := newFrame(FrameEvent, EventMessage{Tick: jt.Tick, Event: ev})
			if err != nil {
				r.log.Warn("viewer: encode replay event", "err", err)
				continue
			}
			r.server.Publish(f)
		}
	}
}

// AtEnd reports whether the journal has been fully replayed.
func (r *Replayer) AtEnd() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor >= len(r.entries)
}
