package p2p

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestPexCandidatesExcludesSelfAndBanned(t *testing.T) {
	now := time.Now()
	server := NewServer(noopHandler{}, mustKey(t), baseConfig("world-pex"))
	store := newTestPeerstore(t)
	server.SetPeerstore(store)
	server.now = func() time.Time { return now }

	if err := store.Put(PeerstoreEntry{Addr: "10.0.0.2:26656", NodeID: "0xdead", LastSeen: now}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(PeerstoreEntry{Addr: "10.0.0.3:26656", NodeID: "0xbanned", LastSeen: now}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.SetBan("0xbanned", now.Add(time.Hour)); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if err := store.Put(PeerstoreEntry{Addr: "10.0.0.4:26656", NodeID: server.nodeID, LastSeen: now}); err != nil {
		t.Fatalf("put self: %v", err)
	}

	candidates := server.pexCandidates(8)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].NodeID != "0xdead" {
		t.Fatalf("unexpected candidate: %+v", candidates[0])
	}
}

func TestPexHandleRequestSendsAddresses(t *testing.T) {
	now := time.Now()
	server := NewServer(noopHandler{}, mustKey(t), baseConfig("world-pex-req"))
	store := newTestPeerstore(t)
	server.SetPeerstore(store)
	server.now = func() time.Time { return now }
	if err := store.Put(PeerstoreEntry{Addr: "10.0.0.2:26656", NodeID: "0xdead", LastSeen: now}); err != nil {
		t.Fatalf("put: %v", err)
	}

	left, right := net.Pipe()
	defer right.Close()
	peer := newPeer("0xbeef", "test/1.0", left, bufio.NewReader(left), server, false, false, "")
	go peer.writeLoop()
	defer peer.terminate(false, nil)

	if err := server.handlePexRequest(peer, PexRequestPayload{Limit: 8, Token: "tok"}); err != nil {
		t.Fatalf("handlePexRequest: %v", err)
	}

	reader := bufio.NewReader(right)
	right.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read pex response: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Type != MsgTypePexAddresses {
		t.Fatalf("expected pex addresses message, got type %d", msg.Type)
	}
	var payload PexAddressesPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Addresses) != 1 || payload.Addresses[0].NodeID != "0xdead" {
		t.Fatalf("unexpected addresses: %+v", payload.Addresses)
	}
}

func TestPexHandleAddressesMergesIntoPeerstore(t *testing.T) {
	server := NewServer(noopHandler{}, mustKey(t), baseConfig("world-pex-merge"))
	store := newTestPeerstore(t)
	server.SetPeerstore(store)

	now := time.Now()
	server.handlePexAddresses(nil, PexAddressesPayload{
		Addresses: []PexAddress{
			{NodeID: "0xfeed", Addr: "10.1.0.5:26656", LastSeen: now},
			{NodeID: server.nodeID, Addr: "10.1.0.6:26656", LastSeen: now},
			{NodeID: "", Addr: "10.1.0.7:26656", LastSeen: now},
		},
	})

	if _, ok := store.ByNodeID("0xfeed"); !ok {
		t.Fatal("expected discovered peer to be stored")
	}
	if _, ok := store.ByNodeID(server.nodeID); ok {
		t.Fatal("self address should not be stored")
	}
}
