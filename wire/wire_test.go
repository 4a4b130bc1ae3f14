package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
)

func TestEncodeDecodeBlockFullRoundTrip(t *testing.T) {
	miner := address.NewIdentity(address.FromBytes([]byte("miner")), nil, nil)
	blk := chaintypes.Block{
		Weight:         3,
		TotalWeight:    30,
		MinerSignature: []byte("sig"),
		Hash:           address.Digest{0x01},
		PreviousHash:   address.Digest{0x02},
		MerkleHash:     address.Digest{0x03},
		BlockNumber:    7,
		Miner:          miner,
		Log2NumLanes:   2,
		Timestamp:      1_700_000_000,
		Slices: [][]chaintypes.TransactionLayout{
			{{Digest: address.Digest{0xAA}}, {Digest: address.Digest{0xBB}}},
		},
		BlockEntropy: chaintypes.BlockEntropy{
			GroupSignature: []byte("groupsig"),
		},
	}

	encoded := EncodeBlockFull(blk)
	decoded, err := DecodeBlockFull(encoded)
	require.NoError(t, err)

	require.Equal(t, blk.Weight, decoded.Weight)
	require.Equal(t, blk.TotalWeight, decoded.TotalWeight)
	require.Equal(t, blk.MinerSignature, decoded.MinerSignature)
	require.Equal(t, blk.Hash, decoded.Hash)
	require.Equal(t, blk.PreviousHash, decoded.PreviousHash)
	require.Equal(t, blk.MerkleHash, decoded.MerkleHash)
	require.Equal(t, blk.BlockNumber, decoded.BlockNumber)
	require.Equal(t, blk.Miner.Address(), decoded.Miner.Address())
	require.Equal(t, blk.Log2NumLanes, decoded.Log2NumLanes)
	require.Equal(t, blk.Timestamp, decoded.Timestamp)
	require.Len(t, decoded.Slices, 1)
	require.Len(t, decoded.Slices[0], 2)
	require.Equal(t, blk.Slices[0][0].Digest, decoded.Slices[0][0].Digest)
	require.Equal(t, blk.BlockEntropy.GroupSignature, decoded.BlockEntropy.GroupSignature)
}

func TestEncodeBlockForHashExcludesHashAndMetadata(t *testing.T) {
	miner := address.NewIdentity(address.FromBytes([]byte("miner")), nil, nil)
	base := chaintypes.Block{
		Weight:       1,
		PreviousHash: address.Digest{0x02},
		BlockNumber:  1,
		Miner:        miner,
	}

	withHash := base
	withHash.Hash = address.Digest{0xFF}
	withHash.TotalWeight = 999
	withHash.IsLoose = true

	require.Equal(t, EncodeBlockForHash(base), EncodeBlockForHash(withHash),
		"hash preimage must not depend on Hash/TotalWeight/IsLoose")
}

func TestDecodeBlockEntropyRecomputesDigestOnlyWhenAeonBeginning(t *testing.T) {
	nonBeginning := EncodeBlockEntropy(chaintypes.BlockEntropy{GroupSignature: []byte("sig")})
	decoded, err := DecodeBlockEntropy(nonBeginning)
	require.NoError(t, err)
	require.True(t, decoded.Digest.IsEmpty())

	beginning := EncodeBlockEntropy(chaintypes.BlockEntropy{
		Qualified:     []address.Address{address.FromBytes([]byte("a"))},
		Confirmations: map[uint32][]byte{0: []byte("confirm")},
	})
	decodedBeginning, err := DecodeBlockEntropy(beginning)
	require.NoError(t, err)
	require.Len(t, decodedBeginning.Confirmations, 1)
	require.False(t, decodedBeginning.Digest.IsEmpty())
}

func TestEncodeAeonProducesNonEmptyEncoding(t *testing.T) {
	aeon := chaintypes.Aeon{
		Members:                 []address.Address{address.FromBytes([]byte("a")), address.FromBytes([]byte("b"))},
		RoundStart:              1,
		RoundEnd:                20,
		StartReferenceTimepoint: 1_700_000_000,
	}
	encoded := EncodeAeon(aeon)
	require.NotEmpty(t, encoded)
}
