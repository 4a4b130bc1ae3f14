// Package address defines the fixed-size participant identifier, the
// identity/prover bundle built on it, and the digest type used throughout
// the consensus core. Grounded on the teacher's common/key.Identity/Pair,
// generalized from a string network address to the spec's raw 64-byte
// public identifier.
package address

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/drand/kyber"

	"github.com/drand/ledger-beacon/crypto/bls"
	"github.com/drand/ledger-beacon/crypto/ecdsa"
)

// Size is the fixed byte length of an Address.
const Size = 64

// Address is a fixed 64-byte public identifier of a cabinet participant.
type Address [Size]byte

// Raw returns the deterministic fixed-size array form of the address. Since
// Address already is that array, Raw is a value copy that callers can take
// without aliasing the receiver.
func (a Address) Raw() [Size]byte { return [Size]byte(a) }

// Equal reports byte-equality between two addresses.
func (a Address) Equal(o Address) bool { return a == o }

// Less gives addresses a total order, used for deterministic tie-breaks
// (heaviest-tip hash comparison reuses the same lexicographic convention).
func (a Address) Less(o Address) bool { return bytes.Compare(a[:], o[:]) < 0 }

func (a Address) String() string { return hex.EncodeToString(a[:8]) }

// FromBytes builds an Address from a public key's marshaled bytes, zero
// padded or truncated to Size like the teacher pads/truncates identity
// hashes to fit its wire format.
func FromBytes(b []byte) Address {
	var a Address
	copy(a[:], b)
	return a
}

// Identity is an (address, verification-key) bundle able to verify
// signatures produced by the matching Prover. ECDSAKey is a second,
// independently-keyed verification key (compressed secp256k1, see
// crypto/ecdsa) carried by participants that exchange ECDSA-signed setup
// messages (NotarisationKeyMessage, FinalStateMessage) alongside their BLS identity; it is nil for
// identities that never participate in DKG setup.
type Identity struct {
	Addr     Address
	Key      kyber.Point
	ECDSAKey []byte
	scheme   *bls.Scheme
}

// NewIdentity builds an Identity for the given address/public key pair under
// scheme.
func NewIdentity(addr Address, key kyber.Point, scheme *bls.Scheme) Identity {
	return Identity{Addr: addr, Key: key, scheme: scheme}
}

// WithECDSAKey attaches a secp256k1 verification key to an Identity,
// returning the updated value.
func (i Identity) WithECDSAKey(ecdsaKey []byte) Identity {
	i.ECDSAKey = ecdsaKey
	return i
}

// Address returns the identity's address.
func (i Identity) Address() Address { return i.Addr }

// Verify checks sig is a valid AuthScheme signature by this identity over
// msg.
func (i Identity) Verify(msg, sig []byte) error {
	return i.scheme.AuthScheme.Verify(i.Key, msg, sig)
}

// VerifyECDSA checks sig is a valid ECDSA signature by this identity's
// ECDSAKey over digest. Reports false if this identity carries no ECDSA
// key.
func (i Identity) VerifyECDSA(digest, sig []byte) bool {
	if len(i.ECDSAKey) == 0 {
		return false
	}
	return ecdsa.Verify(i.ECDSAKey, digest, sig)
}

func (i Identity) String() string {
	return fmt.Sprintf("{%s}", i.Addr)
}

// Prover is a private signing object: the non-shared half of an Identity.
// Grounded on the teacher's key.Pair (Key kyber.Scalar, Public *Identity).
type Prover struct {
	addr   Address
	scalar kyber.Scalar
	scheme *bls.Scheme
	pub    kyber.Point
}

// NewProver builds a Prover from a secret scalar, deriving the matching
// public point under scheme's KeyGroup base point.
func NewProver(addr Address, scalar kyber.Scalar, scheme *bls.Scheme) Prover {
	pub := scheme.KeyGroup.Point().Mul(scalar, nil)
	return Prover{addr: addr, scalar: scalar, scheme: scheme, pub: pub}
}

// Sign produces an AuthScheme signature over msg.
func (p Prover) Sign(msg []byte) ([]byte, error) {
	return p.scheme.AuthScheme.Sign(p.scalar, msg)
}

// Identity returns the public identity corresponding to this Prover.
func (p Prover) Identity() Identity {
	return NewIdentity(p.addr, p.pub, p.scheme)
}

// Digest is a 32-byte hash output.
type Digest [32]byte

// EmptyDigest is the sentinel distinct from any real hash. Because a real
// SHA-256 output can legitimately be all-zero bits (with vanishing but
// nonzero probability), equality with the zero value is not a safe test for
// "not yet computed" - callers needing that distinction should track it with
// an explicit flag rather than comparing against EmptyDigest. EmptyDigest
// exists for code that intentionally writes this exact sentinel, e.g. an
// uninitialized BlockEntropy.digest on a non-aeon-beginning block.
var EmptyDigest = Digest{}

// IsEmpty reports whether d is bitwise equal to EmptyDigest. See EmptyDigest
// for why this is not the same as "was never computed".
func (d Digest) IsEmpty() bool { return d == EmptyDigest }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Bytes returns the digest as a byte slice.
func (d Digest) Bytes() []byte { return d[:] }
