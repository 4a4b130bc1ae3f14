package bls

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPedersenHIsStableAndNonIdentity(t *testing.T) {
	scheme := NewDefaultScheme()
	h1 := scheme.PedersenH()
	h2 := scheme.PedersenH()
	require.True(t, h1.Equal(h2), "PedersenH must be deterministic across calls")
	require.False(t, h1.Equal(scheme.KeyGroup.Point().Null()), "PedersenH must not be the identity point")
}

func TestHashPrevSignatureAndEntropyAsU64(t *testing.T) {
	sig := []byte("group signature bytes")
	digest := HashPrevSignature(sig)
	require.NotEqual(t, [32]byte{}, digest)

	u64 := EntropyAsU64(digest)
	require.Equal(t, EntropyAsU64(HashPrevSignature(sig)), u64, "same input must hash deterministically")

	other := HashPrevSignature([]byte("different"))
	require.NotEqual(t, digest, other)
}

func TestSignVerifyRoundTripViaAuthScheme(t *testing.T) {
	scheme := NewDefaultScheme()
	scalar := scheme.KeyGroup.Scalar().Pick(scheme.Suite.RandomStream())
	pub := scheme.KeyGroup.Point().Mul(scalar, nil)

	msg := []byte("round entropy digest")
	sig, err := scheme.AuthScheme.Sign(scalar, msg)
	require.NoError(t, err)
	require.NoError(t, scheme.AuthScheme.Verify(pub, msg, sig))
}
