package distfs

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"lukechampine.com/blake3"

	"github.com/eng-cc/agent-world/crypto"
	worlderrors "github.com/eng-cc/agent-world/core/errors"
	"github.com/eng-cc/agent-world/core/types"
)

// BlobReader reads a byte range of a stored blob. Implementations may
// return an error for any underlying I/O failure; Respond maps that to
// the read_io_error challenge failure reason rather than propagating it.
type BlobReader func(offset, size uint64) ([]byte, error)

// StorageChallenge asks a holder to prove it has ContentHash by hashing a
// pseudo-randomly chosen byte range, per spec section 4.5.
type StorageChallenge struct {
	ChallengeID        string
	ContentHash        [32]byte
	ContentLength      uint64
	SampleOffset       uint64
	SampleSize         uint64
	ExpectedSampleHash [32]byte
	IssuedAt           time.Time
	TTL                time.Duration
}

// IssueChallenge derives a deterministic sample window from contentHash
// and vrfSeed (an unpredictable-to-the-holder value, e.g. a recent block
// hash) so the holder cannot precompute which slice will be checked, and
// computes the expected sample hash from the challenger's own copy of
// the content.
func IssueChallenge(challengeID string, contentHash [32]byte, content []byte, vrfSeed []byte, sampleSize uint64, ttl time.Duration, now time.Time) (StorageChallenge, error) {
	contentLen := uint64(len(content))
	offset := sampleOffset(contentHash, vrfSeed, contentLen)
	end := offset + sampleSize
	if end > contentLen {
		end = contentLen
	}
	expected := sha256.Sum256(content[offset:end])
	return StorageChallenge{
		ChallengeID: challengeID, ContentHash: contentHash, ContentLength: contentLen,
		SampleOffset: offset, SampleSize: end - offset, ExpectedSampleHash: expected,
		IssuedAt: now, TTL: ttl,
	}, nil
}

func sampleOffset(contentHash [32]byte, vrfSeed []byte, contentLen uint64) uint64 {
	if contentLen == 0 {
		return 0
	}
	h := blake3.New(8, nil)
	h.Write(contentHash[:])
	h.Write(vrfSeed)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum) % contentLen
}

// StorageChallengeReceipt is a holder's signed answer to a
// StorageChallenge. FailureReason is set instead of SampleHash/Signature
// when the holder cannot answer at all.
type StorageChallengeReceipt struct {
	ChallengeID   string
	Source        types.NodeID
	SampleHash    [32]byte
	FailureReason *worlderrors.ChallengeFailureReason
	RespondedAt   time.Time
	Signature     []byte
}

// Respond answers challenge by reading its sample window through read and
// signing the resulting hash with signer. It never returns a Go error for
// an ordinary proof failure; those are reported in the receipt's
// FailureReason so the challenger can apply the reason-specific backoff
// from BackoffMultiplier.
func Respond(challenge StorageChallenge, read BlobReader, source types.NodeID, signer *crypto.PrivateKey, now time.Time) StorageChallengeReceipt {
	receipt := StorageChallengeReceipt{ChallengeID: challenge.ChallengeID, Source: source, RespondedAt: now}

	if now.After(challenge.IssuedAt.Add(challenge.TTL)) {
		return failReceipt(receipt, worlderrors.ChallengeTimeout)
	}

	sample, err := read(challenge.SampleOffset, challenge.SampleSize)
	if err != nil {
		return failReceipt(receipt, worlderrors.ChallengeReadIOError)
	}
	if uint64(len(sample)) != challenge.SampleSize {
		return failReceipt(receipt, worlderrors.ChallengeMissingSample)
	}

	receipt.SampleHash = sha256.Sum256(sample)
	receipt.Signature = signer.Sign(receiptDigest(receipt))
	return receipt
}

func failReceipt(receipt StorageChallengeReceipt, reason worlderrors.ChallengeFailureReason) StorageChallengeReceipt {
	receipt.FailureReason = &reason
	return receipt
}

// Verify checks a receipt against the challenge that provoked it and the
// claimed source's public key, returning an *worlderrors.ErrChallengeFailure
// on any failure with the closed-set reason that caused it.
func Verify(challenge StorageChallenge, receipt StorageChallengeReceipt, signerPub *crypto.PublicKey, clockSkew time.Duration, now time.Time) error {
	if receipt.FailureReason != nil {
		return worlderrors.NewChallengeFailure(*receipt.FailureReason)
	}
	if receipt.RespondedAt.Before(challenge.IssuedAt.Add(-clockSkew)) || receipt.RespondedAt.After(now.Add(clockSkew)) {
		return worlderrors.NewChallengeFailure(worlderrors.ChallengeTimeout)
	}
	if signerPub == nil || len(receipt.Signature) == 0 || !signerPub.Verify(receiptDigest(receipt), receipt.Signature) {
		return worlderrors.NewChallengeFailure(worlderrors.ChallengeSignatureBad)
	}
	if receipt.SampleHash != challenge.ExpectedSampleHash {
		return worlderrors.NewChallengeFailure(worlderrors.ChallengeHashMismatch)
	}
	return nil
}

func receiptDigest(r StorageChallengeReceipt) []byte {
	buf := make([]byte, 0, len(r.ChallengeID)+len(r.SampleHash)+len(r.Source))
	buf = append(buf, []byte(r.ChallengeID)...)
	buf = append(buf, r.SampleHash[:]...)
	buf = append(buf, []byte(r.Source)...)
	return buf
}

// BackoffMultiplier scales a challenge retry interval by failure reason:
// a slow-but-honest timeout backs off gently, while a hash mismatch or
// bad signature (evidence of misbehavior rather than transient load)
// backs off hard.
func BackoffMultiplier(reason worlderrors.ChallengeFailureReason) float64 {
	switch reason {
	case worlderrors.ChallengeTimeout, worlderrors.ChallengeReadIOError:
		return 1.5
	case worlderrors.ChallengeMissingSample:
		return 2.0
	case worlderrors.ChallengeHashMismatch, worlderrors.ChallengeSignatureBad:
		return 4.0
	default:
		return 2.0
	}
}
