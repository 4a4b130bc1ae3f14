package beaconsvc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/log"
)

func TestEncodeDecodeRoundRoundTrip(t *testing.T) {
	b := encodeRound(42)
	got, ok := decodeRound(b)
	require.True(t, ok)
	require.Equal(t, uint64(42), got)
}

func TestDecodeRoundRejectsWrongLength(t *testing.T) {
	_, ok := decodeRound([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestEncodeDecodeSignatureInfoRoundTrip(t *testing.T) {
	addr := address.FromBytes([]byte("a"))
	info := SignatureInformation{
		BlockNumber: 7,
		Shares:      map[address.Address][]byte{addr: []byte("share")},
	}

	b := encodeSignatureInfo(info)
	got, err := decodeSignatureInfo(b)
	require.NoError(t, err)
	require.Equal(t, info.BlockNumber, got.BlockNumber)
	require.Equal(t, info.Shares[addr], got.Shares[addr])
}

func TestDecodeSignatureInfoRejectsGarbage(t *testing.T) {
	_, err := decodeSignatureInfo([]byte("not gob data"))
	require.Error(t, err)
}

func TestHandleGetSignatureSharesRejectsMalformedRequest(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	s := New(DefaultConfig(), nil, self, log.DefaultLogger())

	_, err := s.HandleGetSignatureShares(address.FromBytes([]byte("peer")), []byte("short"))
	require.Error(t, err)
}

func TestHandleGetSignatureSharesReturnsEncodedResponse(t *testing.T) {
	self := address.NewIdentity(address.FromBytes([]byte("self")), nil, nil)
	s := New(DefaultConfig(), nil, self, log.DefaultLogger())
	peerAddr := address.FromBytes([]byte("peer"))
	s.signaturesBeingBuilt[3] = &SignatureInformation{
		BlockNumber: 3,
		Shares:      map[address.Address][]byte{peerAddr: []byte("share")},
	}

	resp, err := s.HandleGetSignatureShares(peerAddr, encodeRound(3))
	require.NoError(t, err)

	got, err := decodeSignatureInfo(resp)
	require.NoError(t, err)
	require.Equal(t, uint64(3), got.BlockNumber)
	require.Equal(t, []byte("share"), got.Shares[peerAddr])
}
