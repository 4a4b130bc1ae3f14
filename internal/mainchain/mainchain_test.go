package mainchain

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
	"github.com/drand/ledger-beacon/common/log"
	"github.com/drand/ledger-beacon/wire"
)

func newTestGenesis() *chaintypes.Block {
	return &chaintypes.Block{
		BlockNumber: 0,
		Hash:        address.Digest{0x01},
	}
}

func childOf(parent *chaintypes.Block, weight uint64) *chaintypes.Block {
	return &chaintypes.Block{
		BlockNumber:  parent.BlockNumber + 1,
		PreviousHash: parent.Hash,
		Weight:       weight,
		Timestamp:    int64(parent.BlockNumber) + 1,
	}
}

func newTestChain(t *testing.T) (*MainChain, *chaintypes.Block) {
	t.Helper()
	genesis := newTestGenesis()
	mc := New(DefaultConfig(), genesis, nil, nil, log.DefaultLogger())
	return mc, genesis
}

func TestAddBlockAccepted(t *testing.T) {
	mc, genesis := newTestChain(t)
	blk := childOf(genesis, 5)

	status, err := mc.AddBlock(blk)
	require.NoError(t, err)
	require.Equal(t, Added, status)
	require.False(t, blk.Hash.IsEmpty(), "insertion should have computed the hash")

	got, ok := mc.GetBlock(blk.Hash)
	require.True(t, ok)
	require.Equal(t, blk.BlockNumber, got.BlockNumber)
}

func TestAddBlockDuplicate(t *testing.T) {
	mc, genesis := newTestChain(t)
	blk := childOf(genesis, 5)

	_, err := mc.AddBlock(blk)
	require.NoError(t, err)

	status, err := mc.AddBlock(blk)
	require.NoError(t, err)
	require.Equal(t, Duplicate, status)
}

func TestAddBlockLooseParent(t *testing.T) {
	mc, genesis := newTestChain(t)
	orphan := &chaintypes.Block{
		BlockNumber:  genesis.BlockNumber + 5,
		PreviousHash: address.Digest{0xDE, 0xAD},
		Weight:       1,
	}

	status, err := mc.AddBlock(orphan)
	require.NoError(t, err)
	require.Equal(t, Loose, status)

	_, ok := mc.GetBlock(orphan.Hash)
	require.False(t, ok, "a loose block is not yet part of the indexed chain")
}

func TestAddBlockResolvesLooseChildOnParentArrival(t *testing.T) {
	mc, genesis := newTestChain(t)
	child := childOf(genesis, 3)
	// Compute child's hash deterministically the same way AddBlock would,
	// so grandchild's PreviousHash already points at it before child lands.
	child.Hash = sha256.Sum256(wire.EncodeBlockForHash(*child))
	grandchild := &chaintypes.Block{
		BlockNumber:  child.BlockNumber + 1,
		PreviousHash: child.Hash,
		Weight:       1,
	}

	status, err := mc.AddBlock(grandchild)
	require.NoError(t, err)
	require.Equal(t, Loose, status)

	status, err = mc.AddBlock(child)
	require.NoError(t, err)
	require.Equal(t, Added, status)

	heaviest, ok := mc.GetHeaviestBlock()
	require.True(t, ok)
	require.Equal(t, grandchild.BlockNumber, heaviest.BlockNumber)
}

func TestAddBlockRejectsBlockNumberGap(t *testing.T) {
	mc, genesis := newTestChain(t)
	blk := &chaintypes.Block{
		BlockNumber:  genesis.BlockNumber + 2, // skips BlockNumber 1
		PreviousHash: genesis.Hash,
		Weight:       1,
	}

	status, err := mc.AddBlock(blk)
	require.Error(t, err)
	require.Equal(t, Invalid, status)
}

func TestGetHeaviestBlockHashTracksNewTip(t *testing.T) {
	mc, genesis := newTestChain(t)
	require.Equal(t, genesis.Hash, mc.GetHeaviestBlockHash())

	blk := childOf(genesis, 9)
	_, err := mc.AddBlock(blk)
	require.NoError(t, err)
	require.Equal(t, blk.Hash, mc.GetHeaviestBlockHash())
}
