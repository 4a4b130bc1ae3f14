// Package ecdsa provides the secp256k1 ECDSA signatures used for
// confirmation signatures over an aeon-beginning block's entropy digest and
// for aeon-notarisation key ownership proofs (spec.md §3's
// BlockEntropy.confirmations and aeon_notarisation_keys). Threshold BLS
// (crypto/bls) is the group's own signature scheme; these per-participant
// ECDSA signatures are a separate, independently-keyed layer, exactly as
// drand keeps its self-sovereign "identity" signing keys distinct from the
// group's threshold key.
//
// Grounded on the secp256k1 stack already present as an indirect dependency
// of the teacher's own go.mod (github.com/btcsuite/btcd/btcec/v2,
// github.com/decred/dcrd/dcrec/secp256k1/v4, pulled in transitively through
// its TLS/libp2p stack) and used directly here rather than left dangling.
package ecdsa

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// PrivateKey is a confirmation/notarisation signing key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey is the verification half of a PrivateKey.
type PublicKey struct {
	key *btcec.PublicKey
}

// GenerateKey draws a fresh secp256k1 keypair.
func GenerateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("ecdsa: generate key: %w", err)
	}
	return &PrivateKey{key: k}, nil
}

// Public returns priv's verification key.
func (priv *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: priv.key.PubKey()}
}

// Bytes returns priv's compact wire encoding.
func (priv *PrivateKey) Bytes() []byte {
	b := priv.key.Serialize()
	return b
}

// ParsePrivateKey rebuilds a PrivateKey from its compact wire encoding.
func ParsePrivateKey(b []byte) (*PrivateKey, error) {
	key, _ := btcec.PrivKeyFromBytes(b)
	if key == nil {
		return nil, fmt.Errorf("ecdsa: malformed private key")
	}
	return &PrivateKey{key: key}, nil
}

// Bytes returns pub's compressed wire encoding, the form stored in
// NotarisationKey.Key.
func (pub *PublicKey) Bytes() []byte {
	return pub.key.SerializeCompressed()
}

// ParsePublicKey rebuilds a PublicKey from its compressed wire encoding.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("ecdsa: malformed public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// Sign produces a deterministic (RFC6979) DER signature over digest.
// digest is expected to already be a fixed-size hash (SHA-256 throughout
// this module); Sign does not hash its input again.
func (priv *PrivateKey) Sign(digest []byte) []byte {
	sig := ecdsa.Sign(priv.key, digest)
	return sig.Serialize()
}

// Verify checks that sig is pub's DER signature over digest. A malformed
// sig or pubKey bytes report false rather than erroring, since every caller
// treats an unverifiable signature as a validity failure regardless of
// cause.
func Verify(pubKeyBytes, digest, sig []byte) bool {
	pub, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, pub)
}

// VerifyKeyOwnership checks that sig is a valid signature by the key itself
// over its own compressed encoding - the proof-of-possession a
// NotarisationKey carries so its owner cannot be impersonated by someone who
// merely observed the public key on the wire.
func VerifyKeyOwnership(pubKeyBytes, sig []byte) bool {
	return Verify(pubKeyBytes, pubKeyBytes, sig)
}
