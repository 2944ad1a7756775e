package p2p

import "encoding/json"

// FetchProvider answers the fetch-commit/1.0.0 and fetch-blob/1.0.0
// request/response protocols from a connected peer. A node registers one
// via SetFetchProvider once its replication log and DistFS store are ready;
// until then both protocols are left unhandled and requests are dropped.
type FetchProvider interface {
	FetchCommit(req FetchCommitRequest) (FetchCommitResponse, error)
	FetchBlob(req FetchBlobRequest) (FetchBlobResponse, error)
}

// SetFetchProvider registers the component that serves gap-sync and blob
// fetch requests from peers.
func (s *Server) SetFetchProvider(p FetchProvider) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	s.fetchProvider = p
}

func (s *Server) currentFetchProvider() FetchProvider {
	s.fetchMu.RLock()
	defer s.fetchMu.RUnlock()
	return s.fetchProvider
}

// handleFetchCommitRequest answers a peer's gap-sync request for the
// replication record backing one height. Returning (false, nil) when no
// provider is registered lets the message fall through to the server's
// MessageHandler; node.Handler ignores message types it does not dispatch.
func (s *Server) handleFetchCommitRequest(peer *Peer, msg *Message) (bool, error) {
	provider := s.currentFetchProvider()
	if provider == nil {
		return false, nil
	}
	var req FetchCommitRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return false, err
	}
	resp, err := provider.FetchCommit(req)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return false, err
	}
	return true, peer.Enqueue(&Message{Type: MsgTypeFetchCommitResp, Payload: payload})
}

// handleFetchBlobRequest answers a peer's request for one content-addressed
// blob by hash.
func (s *Server) handleFetchBlobRequest(peer *Peer, msg *Message) (bool, error) {
	provider := s.currentFetchProvider()
	if provider == nil {
		return false, nil
	}
	var req FetchBlobRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return false, err
	}
	resp, err := provider.FetchBlob(req)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return false, err
	}
	return true, peer.Enqueue(&Message{Type: MsgTypeFetchBlobResp, Payload: payload})
}
