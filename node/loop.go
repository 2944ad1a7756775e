package node

import (
	"context"
	"errors"
	"time"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/consensus/pos"
	"github.com/eng-cc/agent-world/p2p"
)

// Loop paces block proposal against wall-clock ticks: every TickInterval it
// advances to the next height and, if this node is that height's slot
// proposer, builds, executes, and gossips a proposal. Adapted from the
// teacher's maintainNetworkStream reconnect loop shape (ticker plus
// context-cancellation select), generalized from a gRPC stream keepalive to
// a consensus height cadence.
type Loop struct {
	node          *Node
	consensus     *pos.Engine
	handler       *Handler
	server        *p2p.Server
	tickInterval  time.Duration
	slotsPerEpoch uint64
	log           logger
}

// NewLoop builds a Loop. handler must already be wired to server via
// Handler.SetServer.
func NewLoop(n *Node, consensusEngine *pos.Engine, handler *Handler, server *p2p.Server, tickInterval time.Duration, slotsPerEpoch uint64) *Loop {
	if slotsPerEpoch == 0 {
		slotsPerEpoch = 1
	}
	return &Loop{
		node:          n,
		consensus:     consensusEngine,
		handler:       handler,
		server:        server,
		tickInterval:  tickInterval,
		slotsPerEpoch: slotsPerEpoch,
		log:           n.log,
	}
}

// Run blocks, proposing at every tick until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	height := l.node.Height() + 1
	slot := height
	epoch := height / l.slotsPerEpoch

	signed, err := l.consensus.ProposeIfSlotProposer(height, slot, epoch)
	if err != nil {
		if errors.Is(err, worlderrors.ErrNotSlotProposer) {
			return
		}
		l.log.Warn("propose attempt failed", "height", height, "err", err)
		return
	}

	msg, err := p2p.NewProposeMessage(*signed)
	if err != nil {
		l.log.Error("encode propose message", "height", height, "err", err)
		return
	}
	if err := l.server.Broadcast(msg); err != nil {
		l.log.Warn("broadcast propose failed", "height", height, "err", err)
	}

	source := l.node.LastEpoch()
	selfAttest, err := l.consensus.AttestHead(height, true, source, epoch)
	if err != nil {
		l.log.Warn("self-attest failed", "height", height, "err", err)
		return
	}
	attestMsg, err := p2p.NewAttestMessage(*selfAttest)
	if err != nil {
		l.log.Error("encode attest message", "height", height, "err", err)
		return
	}
	if err := l.server.Broadcast(attestMsg); err != nil {
		l.log.Warn("broadcast attest failed", "height", height, "err", err)
	}

	if state, ok := l.consensus.State(height); ok && state == pos.StateCommitted {
		if err := l.handler.broadcastCommit(height); err != nil {
			l.log.Warn("broadcast commit failed", "height", height, "err", err)
		}
	}
}
