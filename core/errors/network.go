package errors

import stderrors "errors"

var (
	ErrNetworkUnavailable    = stderrors.New("network: no peers available")
	ErrNetworkRequestFailed  = stderrors.New("network: request failed")
	ErrWriterEpochStale      = stderrors.New("network: writer_epoch is not strictly increasing")
	ErrSequenceOutOfOrder    = stderrors.New("network: replication sequence out of order")
	ErrFetchUnauthorized     = stderrors.New("network: signer not in writer/fetch allowlist")
	ErrMempoolBusy           = stderrors.New("network: mempool at capacity")
)
