// Package bls wraps the pairing-friendly BLS12-381 suite used for both
// participant identity signatures and the threshold group signature that
// seeds block entropy. It is the only package in this module that touches
// a concrete curve implementation; everything above it works against
// kyber's Scalar/Point/Suite interfaces.
package bls

import (
	"crypto/sha256"
	"hash"

	"github.com/drand/kyber"
	kyberBls "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/sign"
	blssig "github.com/drand/kyber/sign/bls"
	"github.com/drand/kyber/sign/tbls"
	"golang.org/x/crypto/blake2b"
)

// Scheme bundles the groups and signature schemes a cabinet uses for one
// aeon: key material lives in KeyGroup, threshold group signatures live in
// SigGroup. Mirrors the teacher's crypto.Scheme, trimmed to the schemes this
// module actually exercises (no schnorr DKG-auth scheme, no scheme registry
// by name - the node runs exactly one scheme).
type Scheme struct {
	Suite           kyberBls.Suite
	KeyGroup        kyber.Group
	SigGroup        kyber.Group
	ThresholdScheme sign.ThresholdScheme
	AuthScheme      sign.Scheme
	IdentityHash    func() hash.Hash
}

// NewDefaultScheme returns the BLS12-381 scheme used throughout this module:
// keys on G1 (48 bytes), threshold signatures on G2 (96 bytes), matching the
// teacher's "pedersen-bls-chained" choice.
func NewDefaultScheme() *Scheme {
	suite := kyberBls.NewBLS12381SuiteWithDST(
		[]byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"),
		[]byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"),
	)
	keyGroup := suite.G1()
	sigGroup := suite.G2()
	return &Scheme{
		Suite:           suite,
		KeyGroup:        keyGroup,
		SigGroup:        sigGroup,
		ThresholdScheme: tbls.NewThresholdSchemeOnG2(suite),
		AuthScheme:      blssig.NewSchemeOnG2(suite),
		IdentityHash:    func() hash.Hash { h, _ := blake2b.New256(nil); return h },
	}
}

// PedersenH returns the module's fixed second generator for Pedersen
// commitments: a point in KeyGroup with unknown discrete log relative to
// the group's base point, derived by hashing a fixed domain string to a
// curve point. Every cabinet member computes the same value, so
// commitments C_k = f_k*G + f'_k*H are comparable across the cabinet
// without any setup ceremony. Falls back to a scalar-derived point for key
// groups that don't expose hash-to-curve; that fallback is weaker (the
// discrete log relation is then computable) but keeps the VSS share
// bookkeeping functional on any kyber group.
func (s *Scheme) PedersenH() kyber.Point {
	if hp, ok := s.KeyGroup.Point().(kyber.HashablePoint); ok {
		return hp.Hash([]byte("ledger-beacon/pedersen-vss/h"))
	}
	seed := sha256.Sum256([]byte("ledger-beacon/pedersen-vss/h"))
	scalar := s.KeyGroup.Scalar().SetBytes(seed[:])
	return s.KeyGroup.Point().Mul(scalar, nil)
}

// HashPrevSignature computes SHA-256 over a previous group signature. Per
// spec, "entropy_as_hash" is this value and "entropy_as_u64" is its first 8
// bytes, interpreted big-endian.
func HashPrevSignature(prevGroupSignature []byte) [32]byte {
	return sha256.Sum256(prevGroupSignature)
}

// EntropyAsU64 extracts the big-endian uint64 prefix of a 32-byte digest.
func EntropyAsU64(digest [32]byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(digest[i])
	}
	return v
}
