package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/eng-cc/agent-world/core/engine"
	"github.com/eng-cc/agent-world/core/types"
	"github.com/eng-cc/agent-world/node"
)

// statusResponse is the /status payload: enough for an operator or a
// readiness probe to tell a stalled node from a healthy one without
// reaching into the gossip layer.
type statusResponse struct {
	WorldID        string `json:"worldId"`
	NodeID         string `json:"nodeId"`
	Height         uint64 `json:"height"`
	Tick           uint64 `json:"tick"`
	ValidatorCount int    `json:"validatorCount"`
}

// newAdminRouter exposes a minimal liveness/status surface over cfg.RPCAddress,
// grounded on the plain mux.NewRouter()+router.HandleFunc("/health", ...)
// shape used across the example pack's HTTP services.
func newAdminRouter(worldID string, nodeID types.NodeID, n *node.Node, eng *engine.Engine, validatorCount int) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			WorldID:        worldID,
			NodeID:         string(nodeID),
			Height:         n.Height(),
			Tick:           eng.Snapshot().Tick,
			ValidatorCount: validatorCount,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodGet)

	return router
}

// runAdminServer serves the admin router until ctx is cancelled, then shuts
// down gracefully within a bounded timeout.
func runAdminServer(ctx context.Context, addr string, router *mux.Router, log *slog.Logger) {
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("admin server shutdown failed", "err", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("admin server stopped", "err", err)
	}
}
