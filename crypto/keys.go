// Package crypto implements the ed25519-only signing identity used across
// the world runtime: node/agent keys, action/head/membership envelopes, and
// the reward subsystem's mint/redeem signature formats from spec section 6.
package crypto

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// PrivateKey wraps an ed25519 signing key.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// PublicKey wraps an ed25519 verification key.
type PublicKey struct {
	key ed25519.PublicKey
}

// GeneratePrivateKey produces a fresh ed25519 key pair.
func GeneratePrivateKey() (*PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: priv}, nil
}

// PrivateKeyFromBytes parses a 64-byte ed25519 private key (seed || public).
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	cloned := append(ed25519.PrivateKey(nil), b...)
	return &PrivateKey{key: cloned}, nil
}

// Bytes returns the raw 64-byte ed25519 private key.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.key...)
}

// PubKey returns the public half of the key pair.
func (k *PrivateKey) PubKey() *PublicKey {
	pub := k.key.Public().(ed25519.PublicKey)
	return &PublicKey{key: pub}
}

// Sign produces a raw ed25519 signature over msg.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.key, msg)
}

// PublicKeyFromBytes parses a 32-byte ed25519 public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	cloned := append(ed25519.PublicKey(nil), b...)
	return &PublicKey{key: cloned}, nil
}

// Bytes returns the raw 32-byte ed25519 public key.
func (k *PublicKey) Bytes() []byte {
	return append([]byte(nil), k.key...)
}

// Verify reports whether sig is a valid ed25519 signature over msg under k.
func (k *PublicKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(k.key, msg, sig)
}

// ErrEnvelopeMalformed is returned when a signature envelope string does not
// match one of the normative formats in spec section 6.
var ErrEnvelopeMalformed = errors.New("crypto: signature envelope malformed")

// ActionEnvelope is the normative "ed25519:v1:<public_key_hex>:<signature_hex>"
// format used for action, head, and membership signatures.
type ActionEnvelope struct {
	PublicKey []byte
	Signature []byte
}

// EncodeActionEnvelope formats an ed25519:v1 envelope string.
func EncodeActionEnvelope(pub, sig []byte) string {
	return fmt.Sprintf("ed25519:v1:%s:%s", hex.EncodeToString(pub), hex.EncodeToString(sig))
}

// ParseActionEnvelope decodes an "ed25519:v1:<public_key_hex>:<signature_hex>"
// string.
func ParseActionEnvelope(s string) (*ActionEnvelope, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != "ed25519" || parts[1] != "v1" {
		return nil, ErrEnvelopeMalformed
	}
	pub, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeMalformed, err)
	}
	sig, err := hex.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeMalformed, err)
	}
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return nil, ErrEnvelopeMalformed
	}
	return &ActionEnvelope{PublicKey: pub, Signature: sig}, nil
}

// Verify checks the envelope's signature over msg.
func (e *ActionEnvelope) Verify(msg []byte) bool {
	return ed25519.Verify(e.PublicKey, msg, e.Signature)
}

// MintSignature is the reward subsystem's mint-record signature, either the
// authoritative ed25519 "mintsig:v2" form or the legacy sha256-digest
// "mintsig:v1" fallback accepted only when policy allows it.
type MintSignature struct {
	Version   int
	Signature []byte // ed25519 signature (v2) or sha256 digest (v1)
}

// ParseMintSignature decodes "mintsig:v2:<signature_hex>" or
// "mintsig:v1:<sha256_hex>".
func ParseMintSignature(s string) (*MintSignature, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "mintsig" {
		return nil, ErrEnvelopeMalformed
	}
	raw, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeMalformed, err)
	}
	switch parts[1] {
	case "v2":
		if len(raw) != ed25519.SignatureSize {
			return nil, ErrEnvelopeMalformed
		}
		return &MintSignature{Version: 2, Signature: raw}, nil
	case "v1":
		if len(raw) != 32 {
			return nil, ErrEnvelopeMalformed
		}
		return &MintSignature{Version: 1, Signature: raw}, nil
	default:
		return nil, ErrEnvelopeMalformed
	}
}

// EncodeMintSignatureV2 formats the authoritative ed25519 mint signature.
func EncodeMintSignatureV2(sig []byte) string {
	return fmt.Sprintf("mintsig:v2:%s", hex.EncodeToString(sig))
}

// RedeemSignature is "redeemsig:v1:<signature_hex>" for signed power
// redemption requests.
type RedeemSignature struct {
	Signature []byte
}

// ParseRedeemSignature decodes "redeemsig:v1:<signature_hex>".
func ParseRedeemSignature(s string) (*RedeemSignature, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "redeemsig" || parts[1] != "v1" {
		return nil, ErrEnvelopeMalformed
	}
	sig, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeMalformed, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, ErrEnvelopeMalformed
	}
	return &RedeemSignature{Signature: sig}, nil
}

// EncodeRedeemSignature formats a redeemsig:v1 envelope string.
func EncodeRedeemSignature(sig []byte) string {
	return fmt.Sprintf("redeemsig:v1:%s", hex.EncodeToString(sig))
}
