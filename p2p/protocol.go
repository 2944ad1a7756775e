package p2p

import (
	"encoding/json"
	"time"

	"github.com/eng-cc/agent-world/consensus/pos"
)

// Message type tags for the gossip and replication topics from spec
// section 4.4: three consensus topics (propose/attest/commit), one
// replication-record topic, and the two request/response protocols
// (fetch-commit, fetch-blob).
const (
	MsgTypePropose           byte = 0x01
	MsgTypeAttest            byte = 0x02
	MsgTypeCommit            byte = 0x03
	MsgTypeReplicationRecord byte = 0x04
	MsgTypeFetchCommitReq    byte = 0x05
	MsgTypeFetchCommitResp   byte = 0x06
	MsgTypeFetchBlobReq      byte = 0x07
	MsgTypeFetchBlobResp     byte = 0x08
	MsgTypePexRequest        byte = 0x09
	MsgTypePexAddresses      byte = 0x0A
	MsgTypeHandshake         byte = 0x0B
	MsgTypeHandshakeAck      byte = 0x0C
	MsgTypePing              byte = 0x0D
	MsgTypePong              byte = 0x0E
)

// PingPayload/PongPayload carry a keepalive nonce and the sender's send-time
// (UnixNano) so the receiver can fold the time elapsed since that send-time
// into its peer latency EWMA.
type PingPayload struct {
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

type PongPayload struct {
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// NewPingMessage wraps a keepalive probe.
func NewPingMessage(nonce uint64, sentAt time.Time) (*Message, error) {
	payload, err := json.Marshal(PingPayload{Nonce: nonce, Timestamp: sentAt.UnixNano()})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypePing, Payload: payload}, nil
}

// NewPongMessage echoes a keepalive probe's nonce back to the sender.
func NewPongMessage(nonce uint64, sentAt time.Time) (*Message, error) {
	payload, err := json.Marshal(PongPayload{Nonce: nonce, Timestamp: sentAt.UnixNano()})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypePong, Payload: payload}, nil
}

// NewPexAddressesMessage wraps a batch of discovered peer addresses.
func NewPexAddressesMessage(payload PexAddressesPayload) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypePexAddresses, Payload: data}, nil
}

// CommitPayload is what MsgTypeCommit gossips: a node's newly committed
// head, broadcast so peers can fast-forward without waiting on a gap-sync
// fetch.
type CommitPayload struct {
	WorldID            string `json:"world_id"`
	Height             uint64 `json:"height"`
	BlockHash          []byte `json:"block_hash"`
	ExecutionStateRoot []byte `json:"execution_state_root"`
}

// ReplicationRecordPayload carries one (writer_id, writer_epoch, sequence)
// ordered update, per spec section 4.4.
type ReplicationRecordPayload struct {
	WriterID    string `json:"writer_id"`
	WriterEpoch uint64 `json:"writer_epoch"`
	Sequence    uint64 `json:"sequence"`
	ContentHash []byte `json:"content_hash"`
	Payload     []byte `json:"payload"`
}

// FetchCommitRequest is "fetch-commit/1.0.0"'s request: {world_id, height}.
type FetchCommitRequest struct {
	WorldID         string `json:"world_id"`
	Height          uint64 `json:"height"`
	RequestEnvelope string `json:"request_envelope,omitempty"`
}

// FetchCommitResponse is "fetch-commit/1.0.0"'s response: found plus the
// replication message backing that height, if any.
type FetchCommitResponse struct {
	Found   bool                      `json:"found"`
	Record  *ReplicationRecordPayload `json:"record,omitempty"`
}

// FetchBlobRequest is "fetch-blob/1.0.0"'s request: {content_hash}.
type FetchBlobRequest struct {
	ContentHash     []byte `json:"content_hash"`
	RequestEnvelope string `json:"request_envelope,omitempty"`
}

// FetchBlobResponse is "fetch-blob/1.0.0"'s response: found plus blob bytes.
type FetchBlobResponse struct {
	Found bool   `json:"found"`
	Bytes []byte `json:"bytes,omitempty"`
}

// NewProposeMessage wraps a signed head proposal for gossip.
func NewProposeMessage(sp pos.SignedProposeHead) (*Message, error) {
	payload, err := json.Marshal(sp)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypePropose, Payload: payload}, nil
}

// NewAttestMessage wraps a signed attestation for gossip.
func NewAttestMessage(sa pos.SignedAttest) (*Message, error) {
	payload, err := json.Marshal(sa)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeAttest, Payload: payload}, nil
}

// NewCommitMessage wraps a committed head for gossip.
func NewCommitMessage(c CommitPayload) (*Message, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeCommit, Payload: payload}, nil
}

// NewReplicationRecordMessage wraps one ordered replication update.
func NewReplicationRecordMessage(r ReplicationRecordPayload) (*Message, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeReplicationRecord, Payload: payload}, nil
}

// NewFetchCommitRequestMessage wraps a gap-sync request for fetch-commit/1.0.0.
func NewFetchCommitRequestMessage(req FetchCommitRequest) (*Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeFetchCommitReq, Payload: payload}, nil
}

// NewFetchCommitResponseMessage wraps fetch-commit/1.0.0's reply.
func NewFetchCommitResponseMessage(resp FetchCommitResponse) (*Message, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeFetchCommitResp, Payload: payload}, nil
}

// NewFetchBlobRequestMessage wraps a content-addressed blob request for
// fetch-blob/1.0.0.
func NewFetchBlobRequestMessage(req FetchBlobRequest) (*Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeFetchBlobReq, Payload: payload}, nil
}

// NewFetchBlobResponseMessage wraps fetch-blob/1.0.0's reply.
func NewFetchBlobResponseMessage(resp FetchBlobResponse) (*Message, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeFetchBlobResp, Payload: payload}, nil
}
