package distfs

import (
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eng-cc/agent-world/crypto"
	worlderrors "github.com/eng-cc/agent-world/core/errors"
)

func readerFor(content []byte) BlobReader {
	return func(offset, size uint64) ([]byte, error) {
		end := offset + size
		if end > uint64(len(content)) {
			end = uint64(len(content))
		}
		return content[offset:end], nil
	}
}

func TestChallengeRoundTripSucceeds(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	contentHash := sha256.Sum256(content)
	now := time.Unix(1000, 0)

	challenge, err := IssueChallenge("c1", contentHash, content, []byte("vrf-seed"), 8, time.Minute, now)
	require.NoError(t, err)

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	receipt := Respond(challenge, readerFor(content), "node-a", priv, now.Add(time.Second))
	require.Nil(t, receipt.FailureReason)

	require.NoError(t, Verify(challenge, receipt, priv.PubKey(), time.Second, now.Add(time.Second)))
}

func TestChallengeDetectsTimeout(t *testing.T) {
	content := []byte("data")
	contentHash := sha256.Sum256(content)
	now := time.Unix(1000, 0)
	challenge, err := IssueChallenge("c1", contentHash, content, []byte("seed"), 2, time.Second, now)
	require.NoError(t, err)

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	receipt := Respond(challenge, readerFor(content), "node-a", priv, now.Add(time.Hour))
	require.NotNil(t, receipt.FailureReason)
	require.Equal(t, worlderrors.ChallengeTimeout, *receipt.FailureReason)

	err = Verify(challenge, receipt, priv.PubKey(), time.Second, now.Add(time.Hour))
	var failure *worlderrors.ErrChallengeFailure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, worlderrors.ChallengeTimeout, failure.Reason)
}

func TestChallengeDetectsReadIOError(t *testing.T) {
	content := []byte("data")
	contentHash := sha256.Sum256(content)
	now := time.Unix(1000, 0)
	challenge, err := IssueChallenge("c1", contentHash, content, []byte("seed"), 2, time.Minute, now)
	require.NoError(t, err)

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	broken := func(offset, size uint64) ([]byte, error) { return nil, errors.New("disk failure") }
	receipt := Respond(challenge, broken, "node-a", priv, now)
	require.NotNil(t, receipt.FailureReason)
	require.Equal(t, worlderrors.ChallengeReadIOError, *receipt.FailureReason)
}

func TestChallengeDetectsHashMismatch(t *testing.T) {
	content := []byte("data")
	contentHash := sha256.Sum256(content)
	now := time.Unix(1000, 0)
	challenge, err := IssueChallenge("c1", contentHash, content, []byte("seed"), 2, time.Minute, now)
	require.NoError(t, err)

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	wrongContent := []byte("XXXX")
	receipt := Respond(challenge, readerFor(wrongContent), "node-a", priv, now)
	require.Nil(t, receipt.FailureReason)

	err = Verify(challenge, receipt, priv.PubKey(), time.Second, now)
	var failure *worlderrors.ErrChallengeFailure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, worlderrors.ChallengeHashMismatch, failure.Reason)
}

func TestChallengeDetectsBadSignature(t *testing.T) {
	content := []byte("data")
	contentHash := sha256.Sum256(content)
	now := time.Unix(1000, 0)
	challenge, err := IssueChallenge("c1", contentHash, content, []byte("seed"), 2, time.Minute, now)
	require.NoError(t, err)

	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	receipt := Respond(challenge, readerFor(content), "node-a", priv, now)
	err = Verify(challenge, receipt, other.PubKey(), time.Second, now)
	var failure *worlderrors.ErrChallengeFailure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, worlderrors.ChallengeSignatureBad, failure.Reason)
}

func TestBackoffMultiplierOrdering(t *testing.T) {
	require.Less(t, BackoffMultiplier(worlderrors.ChallengeTimeout), BackoffMultiplier(worlderrors.ChallengeMissingSample))
	require.Less(t, BackoffMultiplier(worlderrors.ChallengeMissingSample), BackoffMultiplier(worlderrors.ChallengeHashMismatch))
}
