// Package mempool queues submitted actions for the next tick. Ordering and
// backpressure follow the same shape as the teacher's priority-lane
// scheduler (mempool/priority.go), generalized from transaction lanes to a
// single priority-ordered action queue since the world engine only needs
// the "(priority desc, arrival_seq asc)" ordering spec section 5 requires,
// not a reserved-lane split.
package mempool

import (
	"sort"
	"sync"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/types"
)

// entry pairs a submitted envelope with its arrival sequence so ties break
// deterministically by submission order.
type entry struct {
	envelope types.Envelope
	seq      uint64
}

// Mempool is a bounded, single-writer-many-reader action queue. Submissions
// beyond capacity return ErrMempoolBusy; producers never block.
type Mempool struct {
	mu       sync.Mutex
	capacity int
	nextSeq  uint64
	entries  []entry
}

// New constructs a Mempool with the given bounded capacity.
func New(capacity int) *Mempool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Mempool{capacity: capacity}
}

// Submit enqueues an action envelope. It returns ErrMempoolBusy when the
// mempool is at capacity; the caller must retry.
func (m *Mempool) Submit(env types.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.capacity {
		return worlderrors.ErrMempoolBusy
	}
	m.entries = append(m.entries, entry{envelope: env, seq: m.nextSeq})
	m.nextSeq++
	return nil
}

// Len reports the number of currently queued actions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Drain removes and returns up to budget actions in (priority desc,
// arrival_seq asc) order, per spec section 5's ordering guarantee.
func (m *Mempool) Drain(budget int) []types.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	if budget <= 0 || budget > len(m.entries) {
		budget = len(m.entries)
	}
	sort.SliceStable(m.entries, func(i, j int) bool {
		pi, pj := m.entries[i].envelope.Action.Priority, m.entries[j].envelope.Action.Priority
		if pi != pj {
			return pi > pj
		}
		return m.entries[i].seq < m.entries[j].seq
	})
	taken := make([]types.Envelope, budget)
	for i := 0; i < budget; i++ {
		taken[i] = m.entries[i].envelope
	}
	m.entries = m.entries[budget:]
	return taken
}
