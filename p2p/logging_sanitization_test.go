package p2p

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/eng-cc/agent-world/observability/logging"
)

func TestConnManagerRedactsSeedIdentifiers(t *testing.T) {
	buf := &bytes.Buffer{}
	dir := t.TempDir()
	store, err := NewPeerstore(dir+"/peers.db", time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("create peerstore: %v", err)
	}
	defer store.Close()

	cm := &connManager{
		store:  store,
		now:    time.Now,
		logger: slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{})),
	}

	if logging.IsAllowlisted("seed_id") {
		t.Fatalf("seed_id should not be allowlisted: %v", logging.RedactionAllowlist())
	}

	// seedXYZ was never Put into the store, so RecordFail fails and the
	// failure path logs the seed identifier, which must come out redacted.
	cm.markFailure(seedEndpoint{NodeID: "seedXYZ"})

	if buf.Len() == 0 {
		t.Fatalf("expected log entry for failed seed record")
	}
	raw := buf.Bytes()
	if bytes.Contains(raw, []byte("seedXYZ")) {
		t.Fatalf("log output leaked seed identifier: %s", raw)
	}

	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	value, ok := entry["seed_id"].(string)
	if !ok {
		t.Fatalf("expected string seed_id attribute, got %T", entry["seed_id"])
	}
	if value != logging.RedactedValue {
		t.Fatalf("expected redacted seed identifier, got %q", value)
	}
}

func TestServerRedactsPeerLogs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))

	cfg := baseConfig("world-redact")
	server := NewServer(noopHandler{}, mustKey(t), cfg)
	server.logger = logger

	peer := &Peer{id: "peerXYZ", remoteAddr: "1.2.3.4:5555", inbound: true, server: server}
	server.mu.Lock()
	server.peers[peer.id] = peer
	server.mu.Unlock()

	server.removePeer(peer, false, errors.New("boom"))

	if buf.Len() == 0 {
		t.Fatalf("expected log entry for peer removal")
	}

	raw := buf.Bytes()
	if bytes.Contains(raw, []byte("peerXYZ")) {
		t.Fatalf("log output leaked peer identifier: %s", raw)
	}

	var entry map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&entry); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}
	if value, ok := entry["peer_id"].(string); !ok || value != logging.RedactedValue {
		t.Fatalf("expected redacted peer_id, got %v", entry["peer_id"])
	}
}

func TestParseSeedListRedactsLoggedValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))

	_ = parseSeedList([]string{"invalid-seed-entry"}, logger)

	if buf.Len() == 0 {
		t.Fatalf("expected log entry for invalid seed")
	}

	raw := buf.Bytes()
	if bytes.Contains(raw, []byte("invalid-seed-entry")) {
		t.Fatalf("log output leaked seed endpoint: %s", raw)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	if value, ok := entry["seed"].(string); !ok || value != logging.RedactedValue {
		t.Fatalf("expected redacted seed attribute, got %v", entry["seed"])
	}
}
