package p2p

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"testing"
	"time"
)

type writeResult struct {
	n   int
	err error
}

func TestPeerReadLoopRejectsOversizedLine(t *testing.T) {
	handler := noopHandler{}
	cfg := baseConfig("world-oversized")
	cfg.MaxMessageBytes = 128
	cfg.RatePerPeer = 1000
	cfg.RateBurst = 1000
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.PingInterval = -1

	server := NewServer(handler, mustKey(t), cfg)

	left, right := net.Pipe()
	defer right.Close()

	peer := newPeer("peer-oversized", cfg.ClientVersion, left, bufio.NewReader(left), server, false, false, "")
	server.mu.Lock()
	server.peers[peer.id] = peer
	server.mu.Unlock()

	done := make(chan struct{})
	go func() {
		peer.readLoop()
		close(done)
	}()

	payload := bytes.Repeat([]byte{'x'}, 8192)
	results := make(chan writeResult, 1)
	go func() {
		total := 0
		chunk := 512
		for total < len(payload) {
			end := total + chunk
			if end > len(payload) {
				end = len(payload)
			}
			n, err := right.Write(payload[total:end])
			total += n
			if err != nil {
				results <- writeResult{n: total, err: err}
				return
			}
		}
		results <- writeResult{n: total, err: nil}
	}()

	select {
	case <-peer.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not close after oversized message")
	}

	var res writeResult
	select {
	case res = <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not finish")
	}

	if res.err == nil {
		t.Fatal("expected writer to fail after protocol violation")
	}
	if res.n >= len(payload) {
		t.Fatalf("writer sent entire payload (%d bytes) despite limit", res.n)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read loop did not exit")
	}

	if score := server.reputation.Score(peer.id, time.Now()); score >= 0 {
		t.Fatalf("expected negative score after protocol violation, got %d", score)
	}
}

func TestPeerPingPongUpdatesLatency(t *testing.T) {
	handler := noopHandler{}
	cfg := baseConfig("world-ping")
	cfg.RatePerPeer = 1000
	cfg.RateBurst = 1000
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.PingInterval = -1

	server := NewServer(handler, mustKey(t), cfg)

	left, right := net.Pipe()
	defer right.Close()

	peer := newPeer("peer-ping", cfg.ClientVersion, left, bufio.NewReader(left), server, false, false, "")
	server.mu.Lock()
	server.peers[peer.id] = peer
	server.mu.Unlock()

	go peer.readLoop()
	go peer.writeLoop()
	defer peer.terminate(false, nil)

	reader := bufio.NewReader(right)
	pingMsg, err := NewPingMessage(42, time.Now())
	if err != nil {
		t.Fatalf("build ping: %v", err)
	}
	data, err := json.Marshal(pingMsg)
	if err != nil {
		t.Fatalf("marshal ping: %v", err)
	}
	if _, err := right.Write(append(data, '\n')); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	right.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("expected pong reply: %v", err)
	}
	var reply Message
	if err := json.Unmarshal(line, &reply); err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if reply.Type != MsgTypePong {
		t.Fatalf("expected pong, got type %d", reply.Type)
	}

	// The latency sample is folded in after the pong is queued, so poll.
	deadline := time.Now().Add(time.Second)
	for server.reputation.Snapshot(time.Now())[peer.id].LatencyMS <= 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected peer latency to be recorded after ping")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
