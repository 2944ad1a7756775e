// Package viewer implements the snapshot/journal streaming server spec
// section 6 describes: length-prefixed JSON frames over TCP or WebSocket,
// live or offline-replay. The 3D rendering client itself is out of scope
// (spec.md's non-goals name it explicitly); this package only owns the wire
// protocol and the server side of it.
package viewer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// FrameType tags the payload carried by a Frame, matching the four message
// kinds spec section 6 names.
type FrameType string

const (
	FrameHelloAck  FrameType = "HelloAck"
	FrameSnapshot  FrameType = "Snapshot"
	FrameEvent     FrameType = "Event"
	FrameControl   FrameType = "Control"
)

// maxFrameBytes bounds a single frame so a malformed length prefix cannot
// make a reader allocate unbounded memory.
const maxFrameBytes = 64 << 20

// Frame is the wire envelope: a type tag plus its JSON-encoded payload.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HelloAck is sent once, immediately after a client connects.
type HelloAck struct {
	WorldID       string `json:"world_id"`
	Tick          uint64 `json:"tick"`
	SchemaVersion uint32 `json:"schema_version"`
}

// SnapshotMessage carries a full world snapshot, JSON-encoded for wire
// transport (the node's own on-disk persistence stays canonical CBOR;
// this is a point-in-time export for display, never read back into World).
type SnapshotMessage struct {
	Tick    uint64          `json:"tick"`
	Payload json.RawMessage `json:"payload"`
}

// EventMessage carries one DomainEvent at the tick it was emitted.
type EventMessage struct {
	Tick  uint64          `json:"tick"`
	Event json.RawMessage `json:"event"`
}

// ControlKind enumerates the client-to-server control verbs spec section 6
// lists ("play|pause|step|focus|...").
type ControlKind string

const (
	ControlPlay  ControlKind = "play"
	ControlPause ControlKind = "pause"
	ControlStep  ControlKind = "step"
	ControlFocus ControlKind = "focus"
)

// ControlMessage is sent client-to-server to drive live playback speed or
// offline-replay pacing.
type ControlMessage struct {
	Kind  ControlKind `json:"kind"`
	Ticks uint64      `json:"ticks,omitempty"`  // for Step: how many ticks to advance
	Focus string      `json:"focus,omitempty"`  // for Focus: an entity id to center on
}

// NewSnapshotFrame builds a Snapshot Frame around an already-encoded world
// payload, for callers (such as cmd/worldnode) that marshal their own
// engine-specific snapshot type rather than SnapshotMessage's generic shape.
func NewSnapshotFrame(tick uint64, payload json.RawMessage) (Frame, error) {
	return newFrame(FrameSnapshot, SnapshotMessage{Tick: tick, Payload: payload})
}

func newFrame(t FrameType, v any) (Frame, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("viewer: encode %s payload: %w", t, err)
	}
	return Frame{Type: t, Payload: body}, nil
}

// WriteFrame writes f to w as a 4-byte big-endian length prefix followed by
// its JSON encoding, the length-prefixed framing spec section 6 requires
// for the raw-TCP transport.
func WriteFrame(w io.Writer, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("viewer: encode frame: %w", err)
	}
	if len(body) > maxFrameBytes {
		return fmt.Errorf("viewer: frame too large (%d bytes)", len(body))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("viewer: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("viewer: write frame body: %w", err)
	}
	return nil
}

// unmarshalPayload decodes f.Payload into v.
func unmarshalPayload(f Frame, v any) error {
	return json.Unmarshal(f.Payload, v)
}

// ReadFrame reads one length-prefixed Frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameBytes {
		return Frame{}, fmt.Errorf("viewer: frame too large (%d bytes)", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("viewer: read frame body: %w", err)
	}
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return Frame{}, fmt.Errorf("viewer: decode frame: %w", err)
	}
	return f, nil
}
