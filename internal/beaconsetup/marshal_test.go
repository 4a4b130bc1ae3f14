package beaconsetup

import (
	"testing"

	"github.com/drand/kyber"
	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/crypto/bls"
)

func TestMarshalPointsSkipsNothingForValidPoints(t *testing.T) {
	scheme := bls.NewDefaultScheme()
	points := make([]kyber.Point, 3)
	for i := range points {
		points[i] = scheme.KeyGroup.Point().Pick(scheme.Suite.RandomStream())
	}
	out := marshalPoints(points)
	require.Len(t, out, 3)
}

func TestUnmarshalPointsRoundTripsMarshalPoints(t *testing.T) {
	scheme := bls.NewDefaultScheme()
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	s := New(DefaultConfig(), scheme, self, nil, log.DefaultLogger())

	want := scheme.KeyGroup.Point().Pick(scheme.Suite.RandomStream())
	raw := marshalPoints([]kyber.Point{want})

	got, err := s.unmarshalPointsLocked(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Equal(want))
}

func TestUnmarshalPointsRejectsMalformedBytes(t *testing.T) {
	scheme := bls.NewDefaultScheme()
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	s := New(DefaultConfig(), scheme, self, nil, log.DefaultLogger())

	_, err := s.unmarshalPointsLocked([][]byte{[]byte("not a point")})
	require.Error(t, err)
}

func TestUnmarshalScalarRoundTrips(t *testing.T) {
	scheme := bls.NewDefaultScheme()
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	s := New(DefaultConfig(), scheme, self, nil, log.DefaultLogger())

	want := scheme.KeyGroup.Scalar().Pick(scheme.Suite.RandomStream())
	raw, err := want.MarshalBinary()
	require.NoError(t, err)

	got, err := s.unmarshalScalarLocked(raw)
	require.NoError(t, err)
	require.True(t, got.Equal(want))
}
