package errors

import stderrors "errors"

// Signature and consensus-protocol failures. These never panic; the
// offending message is dropped and a metric increments.
var (
	ErrSignatureInvalid      = stderrors.New("consensus: signature invalid")
	ErrSignerBindingUnknown  = stderrors.New("consensus: validator_id -> public_key binding unknown")
	ErrNonceReplay           = stderrors.New("consensus: nonce replay")
	ErrNotSlotProposer       = stderrors.New("consensus: proposer is not the expected slot proposer")
	ErrStaleProposal         = stderrors.New("consensus: proposal height/round is stale")
	ErrDoubleVote            = stderrors.New("consensus: double vote for target epoch")
	ErrSurroundVote          = stderrors.New("consensus: surround vote detected")
	ErrMissingExecutionHash  = stderrors.New("consensus: commit missing execution hashes")
	ErrExecutionMismatch     = stderrors.New("consensus: execution_mismatch")
	ErrDuplicateCommit       = stderrors.New("consensus: height already committed")
	ErrInsufficientStake     = stderrors.New("consensus: approve stake below supermajority threshold")
	ErrVotingClosed          = stderrors.New("consensus: voting_closed")
)
