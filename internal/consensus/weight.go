package consensus

import (
	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
)

// GetBlockGenerationWeight computes block's generation weight for
// identity: the entropy-shuffled qualified set's size minus identity's
// rank within it (rank 0, the top, yields the maximum weight). An identity
// absent from the qualified set has weight 0, per spec.md §4.5.
func GetBlockGenerationWeight(block *chaintypes.Block, identity address.Address) uint64 {
	qual := block.BlockEntropy.Qualified
	if len(qual) == 0 {
		return 0
	}
	rank := rankOf(qual, block.BlockEntropy.EntropyAsU64(), identity)
	if rank < 0 {
		return 0
	}
	return uint64(len(qual) - rank)
}

// Rank returns identity's position in block's entropy-shuffled qualified
// set (lower is better), or -1 if identity is not a qualified member.
func Rank(block *chaintypes.Block, identity address.Address) int {
	return rankOf(block.BlockEntropy.Qualified, block.BlockEntropy.EntropyAsU64(), identity)
}
