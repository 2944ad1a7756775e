package p2p

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/eng-cc/agent-world/crypto"
	"github.com/eng-cc/agent-world/observability/logging"
)

const (
	handshakeTimeout   = 5 * time.Second
	outboundQueueSize  = 64
	handshakeNonceSize = 24

	slowPenalty            = 3
	greylistRateMultiplier = 0.25
	ipRateMultiplier       = 4.0
	maxDialBackoff         = 5 * time.Minute
	maxPexAddresses        = 32

	defaultReadTimeout    = 90 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultMaxMessageSize = 1 << 20 // 1 MiB
	defaultPingInterval   = 30 * time.Second
	defaultRatePerPeer    = 32.0
	defaultRateBurst      = 64.0
)

var errQueueFull = errors.New("peer outbound queue full")

// ServerConfig holds the dial, listen, and policy knobs for a Server. Every
// field a connection manager or peer loop reads lives here so the two never
// need a side channel.
type ServerConfig struct {
	WorldID       string
	ListenAddress string
	ClientVersion string

	Seeds           []string
	Bootnodes       []string
	PersistentPeers []string

	MinPeers      int
	OutboundPeers int
	MaxPeers      int
	MaxOutbound   int

	DialBackoff    time.Duration
	MaxDialBackoff time.Duration

	PingInterval    time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int

	RatePerPeer float64
	RateBurst   float64

	BanScore         int
	GreyScore        int
	BanDuration      time.Duration
	GreylistDuration time.Duration

	HandshakeTimeout time.Duration
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = defaultMaxMessageSize
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.RatePerPeer <= 0 {
		c.RatePerPeer = defaultRatePerPeer
	}
	if c.RateBurst <= 0 {
		c.RateBurst = defaultRateBurst
	}
	if c.MaxPeers <= 0 {
		c.MaxPeers = 64
	}
	if c.MaxOutbound <= 0 {
		c.MaxOutbound = c.MaxPeers / 2
	}
	if c.DialBackoff <= 0 {
		c.DialBackoff = time.Second
	}
	if c.MaxDialBackoff <= 0 {
		c.MaxDialBackoff = maxDialBackoff
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = handshakeTimeout
	}
	return c
}

// PeerRecord is the bookkeeping kept per connected peer beyond what the
// reputation manager tracks: the last time any traffic (data or keepalive)
// was seen from it.
type PeerRecord struct {
	LastSeen time.Time
}

// Server coordinates peer connections, gossip dissemination, and the
// handshake/reputation/rate-limit policy every connection is subject to.
type Server struct {
	cfg     ServerConfig
	handler MessageHandler
	privKey *crypto.PrivateKey
	nodeID  string

	seeds      []seedEndpoint
	peerstore  *Peerstore
	reputation *ReputationManager
	nonces     *nonceGuard
	metrics    *networkMetrics
	now        func() time.Time

	mu      sync.RWMutex
	peers   map[string]*Peer
	byAddr  map[string]*Peer
	records map[string]*PeerRecord

	dialMu      sync.Mutex
	pendingDial map[string]struct{}
	backoff     map[string]time.Duration
	persistent  map[string]struct{}

	outboundCount int

	ratePerPeer float64
	rateBurst   float64

	globalLimiter *tokenBucket
	ipLimiter     *ipRateLimiter

	connMgr *connManager
	logger  *slog.Logger

	fetchMu       sync.RWMutex
	fetchProvider FetchProvider
}

// NewServer builds a Server ready to Start() listening and accept Connect()
// calls. The node's identity is derived from privKey the same way
// deriveNodeIDFromPub does for Identity.
func NewServer(handler MessageHandler, privKey *crypto.PrivateKey, cfg ServerConfig) *Server {
	cfg = cfg.withDefaults()
	persistent := make(map[string]struct{}, len(cfg.PersistentPeers))
	for _, addr := range cfg.PersistentPeers {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			persistent[addr] = struct{}{}
		}
	}
	logger := slog.Default()
	s := &Server{
		cfg:         cfg,
		handler:     handler,
		privKey:     privKey,
		nodeID:      deriveNodeIDFromPub(privKey.PubKey()),
		seeds:       parseSeedList(cfg.Seeds, logger),
		reputation:  NewReputationManager(ReputationConfig{GreyScore: cfg.GreyScore, BanScore: cfg.BanScore, BanDuration: cfg.BanDuration, GreylistDuration: cfg.GreylistDuration}),
		nonces:      newNonceGuard(cfg.HandshakeTimeout * 4),
		metrics:     newNetworkMetrics(),
		now:         time.Now,
		peers:       make(map[string]*Peer),
		byAddr:      make(map[string]*Peer),
		records:     make(map[string]*PeerRecord),
		pendingDial: make(map[string]struct{}),
		backoff:     make(map[string]time.Duration),
		persistent:  persistent,
		ratePerPeer: cfg.RatePerPeer,
		rateBurst:   cfg.RateBurst,
		logger:      logger,
	}
	s.globalLimiter = newTokenBucket(cfg.RatePerPeer*float64(cfg.MaxPeers), cfg.RateBurst*float64(cfg.MaxPeers))
	s.ipLimiter = newIPRateLimiter(cfg.RatePerPeer*ipRateMultiplier, cfg.RateBurst*ipRateMultiplier)
	return s
}

// SetPeerstore attaches a persistent peer registry; dialing and reconnection
// bookkeeping is a no-op until one is set.
func (s *Server) SetPeerstore(store *Peerstore) {
	s.peerstore = store
}

// Start begins listening for inbound peers and negotiating handshakes. It
// blocks until the listener fails.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	s.logger.Info("p2p server listening", "addr", s.cfg.ListenAddress, logging.MaskField("node_id", s.nodeID))
	s.startDialers()
	s.startConnManager()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleInbound(conn)
	}
}

func (s *Server) startConnManager() {
	s.connMgr = newConnManager(s)
	s.connMgr.start()
}

func (s *Server) handleInbound(conn net.Conn) {
	if err := s.initPeer(conn, "", false); err != nil {
		s.logger.Warn("p2p inbound connection rejected", logging.MaskField("remote", conn.RemoteAddr().String()), "err", err)
		conn.Close()
	}
}

func (s *Server) initPeer(conn net.Conn, dialAddr string, forcePersistent bool) error {
	reader := bufio.NewReader(conn)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	defer cancel()

	remote, err := s.performHandshake(ctx, conn, reader)
	if err != nil {
		return err
	}
	if remote.NodeID == s.nodeID {
		return fmt.Errorf("self connection not allowed")
	}
	if s.isBanned(remote.NodeID) {
		return fmt.Errorf("peer %s is currently banned", remote.NodeID)
	}

	inbound := dialAddr == ""
	persistent := forcePersistent || s.isPersistent(dialAddr)
	peer := newPeer(remote.NodeID, remote.ClientVersion, conn, reader, s, inbound, persistent, dialAddr)
	if err := s.registerPeer(peer); err != nil {
		return err
	}
	if dialAddr != "" && s.peerstore != nil {
		if _, err := s.peerstore.RecordSuccess(remote.NodeID, s.now()); err != nil {
			s.logger.Warn("record dial success failed", logging.MaskField("peer_id", peer.id), "err", err)
		}
	}
	s.logger.Info("p2p peer connected", logging.MaskField("peer_id", peer.id), logging.MaskField("peer_address", peer.remoteAddr), "inbound", inbound)
	peer.start()
	return nil
}

// Connect dials a remote peer and establishes a secure session.
func (s *Server) Connect(addr string) error {
	dialer := &net.Dialer{Timeout: s.cfg.HandshakeTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		s.markDialFailure(addr)
		return err
	}
	if err := s.initPeer(conn, addr, false); err != nil {
		conn.Close()
		s.markDialFailure(addr)
		return fmt.Errorf("handshake with %s failed: %w", addr, err)
	}
	return nil
}

// Broadcast sends a message to every connected peer, disconnecting any whose
// outbound queue is saturated.
func (s *Server) Broadcast(msg *Message) error {
	s.mu.RLock()
	peers := make([]*Peer, 0, len(s.peers))
	for _, peer := range s.peers {
		peers = append(peers, peer)
	}
	s.mu.RUnlock()

	var errs []error
	for _, peer := range peers {
		if err := peer.Enqueue(msg); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", peer.id, err))
			peer.terminate(false, err)
		}
	}
	return errors.Join(errs...)
}

// SendTo enqueues a message for exactly one connected peer, used by the
// fetch-commit/1.0.0 and fetch-blob/1.0.0 request/response protocols where a
// reply must go back to the requester rather than the whole mesh.
func (s *Server) SendTo(peerID string, msg *Message) error {
	s.mu.RLock()
	peer, ok := s.peers[peerID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("p2p: peer %s not connected", peerID)
	}
	if err := peer.Enqueue(msg); err != nil {
		peer.terminate(false, err)
		return fmt.Errorf("peer %s: %w", peerID, err)
	}
	return nil
}

// --- handshake -------------------------------------------------------------

type handshakeMessage struct {
	WorldID       string `json:"world_id"`
	NodeID        string `json:"node_id"`
	PubKey        []byte `json:"pub_key"`
	Nonce         []byte `json:"nonce"`
	Signature     []byte `json:"signature"`
	ClientVersion string `json:"client_version"`
}

func (s *Server) performHandshake(ctx context.Context, conn net.Conn, reader *bufio.Reader) (*handshakeMessage, error) {
	local, err := s.buildHandshake()
	if err != nil {
		return nil, fmt.Errorf("prepare handshake: %w", err)
	}
	if err := writeFrame(ctx, conn, local); err != nil {
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	payload, err := readFrame(ctx, conn, reader)
	if err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty handshake from peer")
	}

	var remote handshakeMessage
	if err := json.Unmarshal(payload, &remote); err != nil {
		return nil, fmt.Errorf("decode handshake: %w", err)
	}
	if err := s.verifyHandshake(&remote); err != nil {
		s.metrics.recordHandshake("rejected")
		return nil, err
	}
	s.metrics.recordHandshake("accepted")
	return &remote, nil
}

func (s *Server) buildHandshake() (*handshakeMessage, error) {
	nonce := make([]byte, handshakeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate handshake nonce: %w", err)
	}
	digest := handshakeDigest(s.cfg.WorldID, nonce)
	sig := s.privKey.Sign(digest)
	return &handshakeMessage{
		WorldID:       s.cfg.WorldID,
		NodeID:        s.nodeID,
		PubKey:        s.privKey.PubKey().Bytes(),
		Nonce:         nonce,
		Signature:     sig,
		ClientVersion: s.cfg.ClientVersion,
	}, nil
}

func handshakeDigest(worldID string, nonce []byte) []byte {
	buf := make([]byte, 0, len(worldID)+len(nonce)+4)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(worldID)))
	buf = append(buf, length[:]...)
	buf = append(buf, worldID...)
	buf = append(buf, nonce...)
	return buf
}

func (s *Server) verifyHandshake(msg *handshakeMessage) error {
	if len(msg.Nonce) != handshakeNonceSize {
		return fmt.Errorf("invalid handshake nonce length: %d", len(msg.Nonce))
	}
	if len(msg.PubKey) == 0 {
		return fmt.Errorf("handshake missing public key")
	}
	pub, err := crypto.PublicKeyFromBytes(msg.PubKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	expectedNodeID := deriveNodeIDFromPub(pub)
	if msg.NodeID != expectedNodeID {
		return fmt.Errorf("node ID mismatch: claimed %s expected %s", msg.NodeID, expectedNodeID)
	}
	if msg.WorldID != s.cfg.WorldID {
		return fmt.Errorf("world ID mismatch: remote %q local %q", msg.WorldID, s.cfg.WorldID)
	}
	digest := handshakeDigest(msg.WorldID, msg.Nonce)
	if !pub.Verify(digest, msg.Signature) {
		return fmt.Errorf("invalid handshake signature")
	}
	if !s.nonces.Remember(msg.NodeID, hex.EncodeToString(msg.Nonce), s.now()) {
		return fmt.Errorf("handshake nonce replay detected")
	}
	return nil
}

func writeFrame(ctx context.Context, conn net.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer conn.SetWriteDeadline(time.Time{})
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

func readFrame(ctx context.Context, conn net.Conn, reader *bufio.Reader) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	line, err := reader.ReadBytes('\n')
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return nil, err
	}
	return bytes.TrimSpace(line), nil
}

// --- peer bookkeeping -------------------------------------------------------

func (s *Server) registerPeer(peer *Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.peers[peer.id]; exists {
		return fmt.Errorf("peer %s already connected", peer.id)
	}
	s.peers[peer.id] = peer
	if peer.dialAddr != "" {
		s.byAddr[peer.dialAddr] = peer
	}
	if !peer.inbound {
		s.outboundCount++
	}
	s.records[peer.id] = &PeerRecord{LastSeen: s.now()}
	return nil
}

func (s *Server) removePeer(peer *Peer, ban bool, reason error) {
	s.mu.Lock()
	if current, ok := s.peers[peer.id]; ok && current == peer {
		delete(s.peers, peer.id)
		if peer.dialAddr != "" {
			delete(s.byAddr, peer.dialAddr)
		}
		if !peer.inbound && s.outboundCount > 0 {
			s.outboundCount--
		}
	}
	s.mu.Unlock()
	s.metrics.removePeer(peer.id)

	if ban {
		s.reputation.SetBan(peer.id, s.now().Add(s.cfg.BanDuration), s.now())
		s.logger.Warn("p2p peer disconnected and banned", logging.MaskField("peer_id", peer.id), "reason", reason)
		return
	}
	if reason != nil {
		s.logger.Info("p2p peer disconnected", logging.MaskField("peer_id", peer.id), "reason", reason)
	} else {
		s.logger.Info("p2p peer disconnected", logging.MaskField("peer_id", peer.id))
	}
}

func (s *Server) isBanned(id string) bool {
	return s.reputation.IsBanned(id, s.now())
}

func (s *Server) adjustScore(id string, delta int) {
	s.reputation.Adjust(id, delta, s.now(), s.isPersistentPeer(id))
}

func (s *Server) isPersistentPeer(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	peer := s.peers[id]
	return peer != nil && peer.persistent
}

func (s *Server) touchPeer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[id]
	if rec == nil {
		rec = &PeerRecord{}
		s.records[id] = rec
	}
	rec.LastSeen = s.now()
}

func (s *Server) observeLatency(id string, d time.Duration) {
	status := s.reputation.ObserveLatency(id, d, s.now())
	s.metrics.observePeerStatus(id, status)
}

func (s *Server) recordGossip(direction string, msgType byte) {
	s.metrics.recordGossip(direction, msgType)
}

func (s *Server) recordValidMessage(id string) {
	status := s.reputation.MarkUseful(id, s.now())
	s.metrics.observePeerStatus(id, status)
}

func (s *Server) handleProtocolViolation(peer *Peer, err error) {
	status := s.reputation.PenalizeMalformed(peer.id, s.now(), peer.persistent)
	s.logger.Warn("p2p protocol violation", logging.MaskField("peer_id", peer.id), "err", err, "score", status.Score)
	peer.terminate(status.Banned, err)
}

func (s *Server) handleRateLimit(peer *Peer, global bool) {
	scope := "peer"
	if global {
		scope = "global"
	}
	status := s.reputation.PenalizeSpam(peer.id, s.now(), peer.persistent)
	s.logger.Warn("p2p rate limit exceeded", logging.MaskField("peer_id", peer.id), "scope", scope, "score", status.Score)
	peer.setGreylisted(status.Greylisted)
	peer.terminate(status.Banned, fmt.Errorf("rate limit exceeded (%s)", scope))
}

func (s *Server) allowIP(addr string, now time.Time) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return s.ipLimiter.allow(host, now)
}

func (s *Server) allowGlobal(now time.Time) bool {
	return s.globalLimiter.allow(now)
}

// --- peer exchange -----------------------------------------------------------

func (s *Server) handlePexRequest(peer *Peer, req PexRequestPayload) error {
	limit := req.Limit
	if limit <= 0 || limit > maxPexAddresses {
		limit = maxPexAddresses
	}
	payload := PexAddressesPayload{Token: req.Token, Addresses: s.pexCandidates(limit)}
	msg, err := NewPexAddressesMessage(payload)
	if err != nil {
		return err
	}
	return peer.Enqueue(msg)
}

func (s *Server) pexCandidates(limit int) []PexAddress {
	if s.peerstore == nil {
		return nil
	}
	entries := s.peerstore.Snapshot()
	now := s.now()
	out := make([]PexAddress, 0, limit)
	for _, e := range entries {
		if len(out) >= limit {
			break
		}
		if e.Addr == "" || e.NodeID == "" || e.NodeID == s.nodeID {
			continue
		}
		if e.BannedUntil.After(now) {
			continue
		}
		out = append(out, PexAddress{Addr: e.Addr, NodeID: e.NodeID, LastSeen: e.LastSeen})
	}
	return out
}

func (s *Server) handlePexAddresses(_ *Peer, payload PexAddressesPayload) {
	if s.peerstore == nil {
		return
	}
	for _, addr := range payload.Addresses {
		if addr.Addr == "" || addr.NodeID == "" || addr.NodeID == s.nodeID {
			continue
		}
		entry := PeerstoreEntry{Addr: addr.Addr, NodeID: addr.NodeID, LastSeen: addr.LastSeen}
		if err := s.peerstore.Put(entry); err != nil {
			s.logger.Warn("pex: persist discovered peer", logging.MaskField("addr", addr.Addr), "err", err)
		}
	}
}

// normalizeHex lowercases and strips an optional "0x" prefix from a node ID,
// returning "" if what remains isn't valid hex.
func normalizeHex(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return ""
	}
	if _, err := hex.DecodeString(s); err != nil {
		return ""
	}
	return "0x" + s
}
