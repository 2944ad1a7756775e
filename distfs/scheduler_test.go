package distfs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	worlderrors "github.com/eng-cc/agent-world/core/errors"
)

func TestChallengeSchedulerAllowsFirstThenThrottles(t *testing.T) {
	sched := NewChallengeScheduler()
	hash := [32]byte{0x01}
	require.True(t, sched.Allow("node-a", hash))
	require.False(t, sched.Allow("node-a", hash))
}

func TestChallengeSchedulerIndependentPerBlob(t *testing.T) {
	sched := NewChallengeScheduler()
	require.True(t, sched.Allow("node-a", [32]byte{0x01}))
	require.True(t, sched.Allow("node-a", [32]byte{0x02}))
}

func TestChallengeSchedulerRecordOutcomeResetsOnSuccess(t *testing.T) {
	sched := NewChallengeScheduler()
	hash := [32]byte{0x01}
	sched.Allow("node-a", hash)
	sched.RecordOutcome("node-a", hash, nil)

	reason := worlderrors.ChallengeHashMismatch
	sched.RecordOutcome("node-a", hash, &reason)
	key := schedulerKey("node-a", hash)
	require.Equal(t, rate.Every(4*baseChallengeInterval), sched.limiters[key].Limit())

	sched.RecordOutcome("node-a", hash, nil)
	require.Equal(t, rate.Every(baseChallengeInterval), sched.limiters[key].Limit())
}
