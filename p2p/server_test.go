package p2p

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eng-cc/agent-world/crypto"
)

type noopHandler struct{}

func (noopHandler) HandleMessage(msg *Message) error { return nil }

type handlerFunc func(*Message) error

func (f handlerFunc) HandleMessage(msg *Message) error { return f(msg) }

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func baseConfig(worldID string) ServerConfig {
	return ServerConfig{
		WorldID:          worldID,
		ListenAddress:    "127.0.0.1:0",
		ClientVersion:    "test/1.0",
		MaxPeers:         8,
		MaxOutbound:      8,
		ReadTimeout:      250 * time.Millisecond,
		WriteTimeout:     250 * time.Millisecond,
		MaxMessageBytes:  1 << 20,
		RatePerPeer:      2,
		RateBurst:        4,
		BanScore:         20,
		GreyScore:        10,
		HandshakeTimeout: time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition never became true")
	}
}

func TestPeerRateLimitDisconnect(t *testing.T) {
	handler := noopHandler{}
	cfg := baseConfig("world-rate")
	cfg.RatePerPeer = 1
	cfg.RateBurst = 1
	cfg.BanDuration = 100 * time.Millisecond

	server := NewServer(handler, mustKey(t), cfg)
	remote := NewServer(handler, mustKey(t), cfg)

	left, right := net.Pipe()
	defer right.Close()

	go server.handleInbound(left)

	reader := bufio.NewReader(right)
	if _, err := reader.ReadBytes('\n'); err != nil {
		t.Fatalf("read local handshake: %v", err)
	}
	payload, err := remote.buildHandshake()
	if err != nil {
		t.Fatalf("build handshake: %v", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal handshake: %v", err)
	}
	if _, err := right.Write(append(data, '\n')); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	waitFor(t, func() bool {
		server.mu.RLock()
		_, ok := server.peers[remote.nodeID]
		server.mu.RUnlock()
		return ok
	})

	msgData, err := json.Marshal(&Message{Type: MsgTypeCommit, Payload: []byte("spam")})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := right.Write(append(msgData, '\n')); err != nil {
			break
		}
	}

	waitFor(t, func() bool {
		server.mu.RLock()
		_, ok := server.peers[remote.nodeID]
		server.mu.RUnlock()
		return !ok
	})
}

func TestServerConnectAndBroadcast(t *testing.T) {
	var mu sync.Mutex
	var received []byte
	handlerB := handlerFunc(func(msg *Message) error {
		mu.Lock()
		received = msg.Payload
		mu.Unlock()
		return nil
	})

	cfg := baseConfig("world-a")
	serverA := NewServer(noopHandler{}, mustKey(t), cfg)
	serverB := NewServer(handlerB, mustKey(t), cfg)

	lnA, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lnA.Close()
	go func() {
		for {
			conn, err := lnA.Accept()
			if err != nil {
				return
			}
			go serverA.handleInbound(conn)
		}
	}()

	if err := serverB.Connect(lnA.Addr().String()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, func() bool {
		serverA.mu.RLock()
		defer serverA.mu.RUnlock()
		return len(serverA.peers) == 1
	})

	msg, err := NewCommitMessage(CommitPayload{WorldID: "world-a", Height: 1})
	if err != nil {
		t.Fatalf("build commit message: %v", err)
	}
	if err := serverA.Broadcast(msg); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	})
}

func TestHandshakeRejectsWorldMismatch(t *testing.T) {
	cfg := baseConfig("world-one")
	serverA := NewServer(noopHandler{}, mustKey(t), cfg)

	otherCfg := baseConfig("world-two")
	serverB := NewServer(noopHandler{}, mustKey(t), otherCfg)

	lnA, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lnA.Close()
	go func() {
		conn, err := lnA.Accept()
		if err != nil {
			return
		}
		serverA.handleInbound(conn)
	}()

	if err := serverB.Connect(lnA.Addr().String()); err == nil {
		t.Fatal("expected handshake to fail on world ID mismatch")
	}
}

func TestSeedDialerRecordsFailures(t *testing.T) {
	cfg := baseConfig("world-seed")
	cfg.Seeds = []string{"0xdeadbeef@127.0.0.1:1"}

	server := NewServer(noopHandler{}, mustKey(t), cfg)

	dir := t.TempDir()
	store, err := NewPeerstore(filepath.Join(dir, "peers.db"), 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("create peerstore: %v", err)
	}
	defer store.Close()
	server.SetPeerstore(store)

	server.startConnManager()
	defer server.connMgr.stop()

	waitFor(t, func() bool {
		rec, ok := store.ByNodeID("0xdeadbeef")
		return ok && rec.Fails > 0
	})
}

func TestSeedDialerSuccessResetsFails(t *testing.T) {
	cfg := baseConfig("world-seed-ok")
	remote := NewServer(noopHandler{}, mustKey(t), cfg)

	lnRemote, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lnRemote.Close()
	go func() {
		for {
			conn, err := lnRemote.Accept()
			if err != nil {
				return
			}
			go remote.handleInbound(conn)
		}
	}()

	cfg.Seeds = []string{remote.nodeID + "@" + lnRemote.Addr().String()}
	server := NewServer(noopHandler{}, mustKey(t), cfg)

	dir := t.TempDir()
	store, err := NewPeerstore(filepath.Join(dir, "peers.db"), 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("create peerstore: %v", err)
	}
	defer store.Close()
	server.SetPeerstore(store)

	server.startConnManager()
	defer server.connMgr.stop()

	waitFor(t, func() bool {
		rec, ok := store.ByNodeID(remote.nodeID)
		return ok && rec.Fails == 0 && !rec.LastSeen.IsZero()
	})
}
