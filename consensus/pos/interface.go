package pos

import (
	"github.com/eng-cc/agent-world/core/types"
)

// NodeInterface is the node-side collaborator an Engine drives: mempool
// access, execution, and validator-set lookups. Generalized from the
// teacher's consensus/bft.NodeInterface, which exposed the same shape for
// transaction blocks rather than action-batch heads.
type NodeInterface interface {
	// Mempool returns the actions ready to fill the next proposed head, in
	// submission order.
	Mempool() []types.Envelope

	// BuildHeader assembles a Header for height atop parent, committing to
	// actions via its action root.
	BuildHeader(height, slot, epoch uint64, proposerID types.NodeID, parent types.Head, actions []types.Envelope) (types.Header, error)

	// ExecuteBlock runs a proposed block through the world engine and
	// returns the execution outputs that justify committing it. It must be
	// called before Commit for any block this node did not itself execute
	// as part of proposing.
	ExecuteBlock(block types.Block) (executionBlockHash []byte, executionStateRoot []byte, err error)

	// Commit finalizes height: persists the committed head and advances
	// the node's local height.
	Commit(block types.Block, executionBlockHash, executionStateRoot []byte) error

	// ValidatorSet returns each validator's stake weight, keyed by node id.
	ValidatorSet() map[types.NodeID]uint64

	// Height returns the highest committed height.
	Height() uint64

	// LastHead returns the most recently committed head, used as the
	// parent for the next proposal.
	LastHead() types.Head
}
