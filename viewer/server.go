package viewer

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server hosts both transports spec section 6 names for the viewer wire
// protocol: a raw length-prefixed-JSON TCP listener for native clients, and
// a WebSocket upgrade under the admin-style HTTP router for browser
// clients. Both share one Hub, so a Snapshot or Event published once
// reaches every connected viewer regardless of transport.
type Server struct {
	hub           *Hub
	log           *slog.Logger
	worldID       string
	schemaVersion uint32

	upgrader websocket.Upgrader

	// OnControl is invoked for every ControlMessage received from any
	// client, on any transport. Typically wired to an offline Replayer's
	// Control method, or a no-op for a pure live feed.
	OnControl func(ControlMessage)
}

// NewServer constructs a Server around hub. worldID/schemaVersion populate
// the HelloAck every new connection receives.
func NewServer(hub *Hub, log *slog.Logger, worldID string, schemaVersion uint32) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		hub:           hub,
		log:           log,
		worldID:       worldID,
		schemaVersion: schemaVersion,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish broadcasts a Frame to every connected viewer, live or replay.
func (s *Server) Publish(f Frame) {
	s.hub.Broadcast(f)
}

// ListenTCP accepts raw-TCP viewer connections on the given listener until
// the caller closes it (mirrors p2p/server.go's
// accept-loop-per-listener shape: one goroutine per accepted connection,
// no shared per-conn state beyond the Hub subscription).
func (s *Server) ListenTCP(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.log.Info("viewer: tcp listener closed", "err", err)
			return
		}
		go s.serveTCPConn(conn)
	}
}

func (s *Server) serveTCPConn(conn net.Conn) {
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	hello, err := newFrame(FrameHelloAck, HelloAck{WorldID: s.worldID, SchemaVersion: s.schemaVersion})
	if err == nil {
		if err := WriteFrame(conn, hello); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			f, err := ReadFrame(conn)
			if err != nil {
				return
			}
			s.handleInbound(f)
		}
	}()

	for {
		select {
		case <-done:
			return
		case f, ok := <-sub:
			if !ok {
				return
			}
			if err := WriteFrame(conn, f); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleInbound(f Frame) {
	if f.Type != FrameControl || s.OnControl == nil {
		return
	}
	var ctrl ControlMessage
	if err := unmarshalPayload(f, &ctrl); err != nil {
		s.log.Warn("viewer: malformed control frame", "err", err)
		return
	}
	s.OnControl(ctrl)
}

// Router exposes /health for liveness and /ws for the WebSocket transport,
// following the same plain mux.NewRouter()+router.HandleFunc shape the
// node admin surface uses.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	return router
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("viewer: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	hello, err := newFrame(FrameHelloAck, HelloAck{WorldID: s.worldID, SchemaVersion: s.schemaVersion})
	if err == nil {
		_ = conn.WriteJSON(hello)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			s.handleInbound(f)
		}
	}()

	for {
		select {
		case <-done:
			return
		case f, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
	}
}
