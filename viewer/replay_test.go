package viewer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeReplayFixture(t *testing.T) (snapshotPath, journalPath string) {
	t.Helper()
	dir := t.TempDir()

	snapshotPath = filepath.Join(dir, "snapshot.json")
	snapBytes, err := json.Marshal(SnapshotMessage{Tick: 0, Payload: json.RawMessage(`{"agents":{}}`)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(snapshotPath, snapBytes, 0o644))

	journalPath = filepath.Join(dir, "journal.json")
	entries := []journalTick{
		{Tick: 1, Events: []json.RawMessage{json.RawMessage(`{"kind":"AgentSpawned"}`)}},
		{Tick: 2, Events: []json.RawMessage{json.RawMessage(`{"kind":"AgentMoved"}`)}},
	}
	journalBytes, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(journalPath, journalBytes, 0o644))
	return snapshotPath, journalPath
}

func TestReplayerStepAdvancesAndPublishes(t *testing.T) {
	snapshotPath, journalPath := writeReplayFixture(t)
	hub := NewHub(nil)
	server := NewServer(hub, nil, "test-world", 1)
	sub := hub.Subscribe()

	replayer, err := LoadReplay(snapshotPath, journalPath, server, nil, time.Millisecond)
	require.NoError(t, err)
	require.False(t, replayer.AtEnd())

	replayer.Control(ControlMessage{Kind: ControlStep, Ticks: 1})
	f := <-sub
	require.Equal(t, FrameEvent, f.Type)
	require.False(t, replayer.AtEnd())

	replayer.Control(ControlMessage{Kind: ControlStep, Ticks: 1})
	<-sub
	require.True(t, replayer.AtEnd())
}

func TestReplayerPlayDrivesAutomaticAdvance(t *testing.T) {
	snapshotPath, journalPath := writeReplayFixture(t)
	hub := NewHub(nil)
	server := NewServer(hub, nil, "test-world", 1)
	sub := hub.Subscribe()

	replayer, err := LoadReplay(snapshotPath, journalPath, server, nil, 5*time.Millisecond)
	require.NoError(t, err)

	stop := make(chan struct{})
	defer close(stop)
	go replayer.Run(stop)

	replayer.Control(ControlMessage{Kind: ControlPlay})
	require.Eventually(t, func() bool { return replayer.AtEnd() }, time.Second, 5*time.Millisecond)

	drained := 0
	for {
		select {
		case <-sub:
			drained++
		default:
			require.Equal(t, 2, drained)
			return
		}
	}
}
