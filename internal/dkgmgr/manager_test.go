package dkgmgr

import (
	"testing"

	"github.com/drand/kyber"
	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/crypto/bls"
)

// roundFixture holds everything a full honest DKG round produces, for
// assertions by individual test functions.
type roundFixture struct {
	scheme   *bls.Scheme
	members  []address.Address
	managers map[address.Address]*DkgManager
}

// runFullRound drives n honest managers (polynomial degree) through
// coefficient generation, share exchange, qual finalization and public-key
// derivation. No complaints are raised since every participant is honest.
func runFullRound(t *testing.T, n, degree int) roundFixture {
	t.Helper()
	scheme := bls.NewDefaultScheme()

	members := make([]address.Address, n)
	for i := range members {
		members[i] = address.FromBytes([]byte{byte('a' + i)})
	}

	managers := make(map[address.Address]*DkgManager, n)
	for _, m := range members {
		managers[m] = NewCabinet(scheme, m, members, degree)
	}

	// Round 1: every dealer generates its polynomials/commitments and
	// deals private shares to every cabinet member, itself included.
	commits := make(map[address.Address][]kyber.Point, n)
	for _, dealer := range members {
		c, err := managers[dealer].GenerateCoefficients()
		require.NoError(t, err)
		commits[dealer] = c
	}
	for _, dealer := range members {
		for _, peer := range members {
			require.NoError(t, managers[peer].AddCoefficients(dealer, commits[dealer]))
			s, sprime, err := managers[dealer].GetOwnShares(peer)
			require.NoError(t, err)
			require.NoError(t, managers[peer].AddShares(dealer, s, sprime))
		}
	}

	// No complaints: every dealer behaved, so qual is the full cabinet.
	for _, m := range members {
		require.Empty(t, managers[m].ComputeComplaints(members))
	}

	// Qual phase: every dealer's commitments are re-broadcast for the
	// qual-specific verification round, then every manager finalizes qual
	// and derives its secret share and the group's public material.
	for _, m := range members {
		managers[m].SetQual(members)
	}
	for _, dealer := range members {
		for _, peer := range members {
			require.NoError(t, managers[peer].AddQualCoefficients(dealer, commits[dealer]))
		}
	}
	for _, m := range members {
		_, err := managers[m].ComputeSecretShare()
		require.NoError(t, err)
		_, _, err = managers[m].ComputePublicKeys()
		require.NoError(t, err)
	}

	return roundFixture{scheme: scheme, members: members, managers: managers}
}

func TestFullRoundEveryMemberAgreesOnGroupPublicKey(t *testing.T) {
	f := runFullRound(t, 4, 1)

	want := f.managers[f.members[0]].GroupPublicKey()
	require.NotNil(t, want)
	for _, m := range f.members[1:] {
		got := f.managers[m].GroupPublicKey()
		require.True(t, want.Equal(got), "all members must derive the same group public key")
	}
}

func TestFullRoundThresholdSignatureRecovers(t *testing.T) {
	f := runFullRound(t, 4, 1)
	message := []byte("block entropy digest")

	for _, m := range f.members {
		f.managers[m].SetMessage(message)
	}

	shares := make(map[address.Address][]byte, len(f.members))
	for _, m := range f.members {
		sig, err := f.managers[m].Sign()
		require.NoError(t, err)
		shares[m] = sig
	}

	// Feed every share into every manager; threshold is degree+1 = 2, so
	// two of four signers already suffice, but we deliver them all.
	collector := f.members[0]
	for from, sig := range shares {
		status := f.managers[collector].AddSignaturePart(from, sig)
		require.Equal(t, Added, status)
	}

	require.True(t, f.managers[collector].CanVerify())
	require.NoError(t, f.managers[collector].Verify())

	groupSig := f.managers[collector].GroupSignature()
	require.NotEmpty(t, groupSig)
	require.NoError(t, VerifyGroupSignature(f.scheme, f.managers[collector].GroupPublicKey(), message, groupSig))
}

func TestAddSignaturePartRejectsDuplicate(t *testing.T) {
	f := runFullRound(t, 4, 1)
	message := []byte("round message")
	for _, m := range f.members {
		f.managers[m].SetMessage(message)
	}

	collector := f.members[0]
	signer := f.members[1]
	sig, err := f.managers[signer].Sign()
	require.NoError(t, err)

	require.Equal(t, Added, f.managers[collector].AddSignaturePart(signer, sig))
	require.Equal(t, SignatureAlreadyAdded, f.managers[collector].AddSignaturePart(signer, sig))
}

func TestAddSignaturePartRejectsNonMember(t *testing.T) {
	f := runFullRound(t, 4, 1)
	message := []byte("round message")
	for _, m := range f.members {
		f.managers[m].SetMessage(message)
	}
	collector := f.members[0]
	outsider := address.FromBytes([]byte("outsider"))

	sig, err := f.managers[collector].Sign()
	require.NoError(t, err)
	require.Equal(t, NotMember, f.managers[collector].AddSignaturePart(outsider, sig))
}

func TestComputeComplaintsFlagsMissingShare(t *testing.T) {
	scheme := bls.NewDefaultScheme()
	members := []address.Address{
		address.FromBytes([]byte("a")),
		address.FromBytes([]byte("b")),
		address.FromBytes([]byte("c")),
		address.FromBytes([]byte("d")),
	}
	self := members[0]
	mgr := NewCabinet(scheme, self, members, 1)

	_, err := mgr.GenerateCoefficients()
	require.NoError(t, err)

	// Nothing has been delivered to mgr via AddCoefficients/AddShares for
	// any peer (including self, which never dealt to itself either), so
	// every member should be complained against.
	complaints := mgr.ComputeComplaints(members)
	require.Len(t, complaints, len(members))
}
