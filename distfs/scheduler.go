package distfs

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/types"
)

// baseChallengeInterval is how often a clean-passing (node, blob) pair is
// challenged again.
const baseChallengeInterval = time.Minute

// ChallengeScheduler decides when each (node, blob) pair is next due for a
// storage challenge. A failure widens the interval by BackoffMultiplier; a
// clean pass restores the base cadence.
type ChallengeScheduler struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewChallengeScheduler() *ChallengeScheduler {
	return &ChallengeScheduler{limiters: make(map[string]*rate.Limiter)}
}

func schedulerKey(node types.NodeID, blobHash [32]byte) string {
	return string(node) + "/" + string(blobHash[:])
}

func (s *ChallengeScheduler) limiterFor(key string) *rate.Limiter {
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(baseChallengeInterval), 1)
		s.limiters[key] = lim
	}
	return lim
}

// Allow reports whether node is due for another challenge over blobHash
// right now, consuming one token from its limiter if so.
func (s *ChallengeScheduler) Allow(node types.NodeID, blobHash [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limiterFor(schedulerKey(node, blobHash)).Allow()
}

// RecordOutcome adjusts the pair's challenge cadence after a response: a
// nil reason (clean pass) resets to the base interval, otherwise the
// interval widens by BackoffMultiplier(reason).
func (s *ChallengeScheduler) RecordOutcome(node types.NodeID, blobHash [32]byte, reason *worlderrors.ChallengeFailureReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim := s.limiterFor(schedulerKey(node, blobHash))
	if reason == nil {
		lim.SetLimit(rate.Every(baseChallengeInterval))
		return
	}
	interval := time.Duration(float64(baseChallengeInterval) * BackoffMultiplier(*reason))
	lim.SetLimit(rate.Every(interval))
}
