package node

import (
	"encoding/json"
	"fmt"

	"github.com/eng-cc/agent-world/consensus/pos"
	"github.com/eng-cc/agent-world/p2p"
)

// Handler adapts a Node and its consensus/pos.Engine into a
// p2p.MessageHandler: it decodes gossip envelopes, feeds them to the
// agreement engine, and re-broadcasts whatever that produces (a
// self-attestation after binding a peer's proposal, a commit notice once
// supermajority is reached).
type Handler struct {
	node      *Node
	consensus *pos.Engine
	server    *p2p.Server
	log       logger
}

type logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewHandler builds a Handler. server is set after construction via
// SetServer once the p2p.Server exists, since the two are built from each
// other (NewServer needs a MessageHandler, the Handler needs to broadcast
// back through the Server it's registered with).
func NewHandler(n *Node, consensusEngine *pos.Engine) *Handler {
	return &Handler{node: n, consensus: consensusEngine, log: n.log}
}

// SetServer wires the p2p.Server the Handler broadcasts attestations and
// commit notices through, and registers the Node as that Server's
// fetch-commit/fetch-blob responder.
func (h *Handler) SetServer(server *p2p.Server) {
	h.server = server
	server.SetFetchProvider(h.node)
}

// HandleMessage dispatches one decoded gossip message by type.
func (h *Handler) HandleMessage(msg *p2p.Message) error {
	switch msg.Type {
	case p2p.MsgTypePropose:
		return h.handlePropose(msg)
	case p2p.MsgTypeAttest:
		return h.handleAttest(msg)
	case p2p.MsgTypeCommit:
		return h.handleCommit(msg)
	case p2p.MsgTypeReplicationRecord:
		return h.handleReplicationRecord(msg)
	default:
		return nil
	}
}

func (h *Handler) handlePropose(msg *p2p.Message) error {
	var sp pos.SignedProposeHead
	if err := json.Unmarshal(msg.Payload, &sp); err != nil {
		return fmt.Errorf("%w: decode propose: %v", p2p.ErrInvalidPayload, err)
	}
	if sp.Propose.ProposerID == h.node.nodeID {
		// Own proposal, already executed in ProposeIfSlotProposer and
		// self-attested by Loop.tick.
		return nil
	}
	if err := h.consensus.HandlePropose(sp); err != nil {
		return err
	}
	if err := h.consensus.ExecuteAndBindHead(sp.Propose.Height); err != nil {
		return fmt.Errorf("node: execute proposed head %d: %w", sp.Propose.Height, err)
	}

	source := h.node.LastEpoch()
	signed, err := h.consensus.AttestHead(sp.Propose.Height, true, source, sp.Propose.Epoch)
	if err != nil {
		return fmt.Errorf("node: attest head %d: %w", sp.Propose.Height, err)
	}
	return h.broadcastAttest(*signed)
}

func (h *Handler) handleAttest(msg *p2p.Message) error {
	var sa pos.SignedAttest
	if err := json.Unmarshal(msg.Payload, &sa); err != nil {
		return fmt.Errorf("%w: decode attest: %v", p2p.ErrInvalidPayload, err)
	}
	if sa.ValidatorID == h.node.nodeID {
		return nil
	}
	if err := h.consensus.HandleAttest(sa); err != nil {
		return err
	}
	if state, ok := h.consensus.State(sa.Attest.Height); ok && state == pos.StateCommitted {
		return h.broadcastCommit(sa.Attest.Height)
	}
	return nil
}

func (h *Handler) handleCommit(msg *p2p.Message) error {
	var payload p2p.CommitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode commit: %v", p2p.ErrInvalidPayload, err)
	}
	if payload.WorldID != h.node.worldID {
		return nil
	}
	local := h.node.Height()
	if payload.Height <= local {
		return nil
	}
	if h.server == nil {
		return nil
	}
	for height := local + 1; height < payload.Height; height++ {
		req, err := p2p.NewFetchCommitRequestMessage(p2p.FetchCommitRequest{WorldID: h.node.worldID, Height: height})
		if err != nil {
			return err
		}
		if err := h.server.Broadcast(req); err != nil {
			h.log.Warn("gap-sync fetch-commit broadcast failed", "height", height, "err", err)
		}
	}
	return nil
}

func (h *Handler) handleReplicationRecord(msg *p2p.Message) error {
	var payload p2p.ReplicationRecordPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode replication record: %v", p2p.ErrInvalidPayload, err)
	}
	return h.node.applyReplicationRecord(payload)
}

func (h *Handler) broadcastAttest(sa pos.SignedAttest) error {
	if h.server == nil {
		return nil
	}
	msg, err := p2p.NewAttestMessage(sa)
	if err != nil {
		return err
	}
	return h.server.Broadcast(msg)
}

func (h *Handler) broadcastCommit(height uint64) error {
	if h.server == nil {
		return nil
	}
	rec, ok := h.node.CommitRecord(height)
	if !ok {
		return nil
	}
	msg, err := p2p.NewCommitMessage(p2p.CommitPayload{
		WorldID:            h.node.worldID,
		Height:             height,
		BlockHash:          rec.Block.Header.BlockHash,
		ExecutionStateRoot: rec.ExecutionStateRoot,
	})
	if err != nil {
		return err
	}
	return h.server.Broadcast(msg)
}
