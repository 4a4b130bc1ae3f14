package mainchain

import (
	"github.com/drand/ledger-beacon/common/address"
	"github.com/drand/ledger-beacon/common/chaintypes"
)

// GetHeaviestBlock returns the block at the current heaviest tip.
func (mc *MainChain) GetHeaviestBlock() (*chaintypes.Block, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	b, ok := mc.blocks[mc.heaviest.Hash]
	return b, ok
}

// GetHeaviestBlockHash returns the current heaviest tip's hash.
func (mc *MainChain) GetHeaviestBlockHash() address.Digest {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.heaviest.Hash
}

// GetBlock looks up a block by hash.
func (mc *MainChain) GetBlock(hash address.Digest) (*chaintypes.Block, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	b, ok := mc.blocks[hash]
	return b, ok
}

// GetHeaviestChain walks back from the heaviest tip, returning up to limit
// blocks, most recent first.
func (mc *MainChain) GetHeaviestChain(limit int) []*chaintypes.Block {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.walkBackLocked(mc.heaviest.Hash, limit, true)
}

// GetChainPreceding walks back from hash, excluding hash itself, stopping
// at genesis, returning up to limit blocks, most recent first.
func (mc *MainChain) GetChainPreceding(hash address.Digest, limit int) []*chaintypes.Block {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.walkBackLocked(hash, limit, false)
}

// walkBackLocked walks backward from start, collecting at most limit
// blocks (0 = unbounded), stopping at genesis. inclusive controls whether
// start itself is included.
func (mc *MainChain) walkBackLocked(start address.Digest, limit int, inclusive bool) []*chaintypes.Block {
	var out []*chaintypes.Block
	cur, ok := mc.blocks[start]
	if !ok {
		return nil
	}
	if !inclusive {
		cur, ok = mc.blocks[cur.PreviousHash]
		if !ok {
			return nil
		}
	}
	for {
		out = append(out, cur)
		if limit > 0 && len(out) >= limit {
			break
		}
		if cur.Hash == mc.genesis {
			break
		}
		parent, ok := mc.blocks[cur.PreviousHash]
		if !ok {
			break
		}
		cur = parent
	}
	return out
}

// AncestorBehaviour controls GetPathToCommonAncestor's truncation policy
// when limit is hit mid-walk.
type AncestorBehaviour int

const (
	ReturnMostRecent AncestorBehaviour = iota
	ReturnLeastRecent
)

// GetPathToCommonAncestor performs a coordinated two-pointer walk back
// from tip and other, advancing whichever side's current block number is
// >= the other's, until a common hash is found. Returns the path from tip
// down to and including the common ancestor.
func (mc *MainChain) GetPathToCommonAncestor(tip, other address.Digest, limit int, behaviour AncestorBehaviour) ([]*chaintypes.Block, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	a, ok := mc.blocks[tip]
	if !ok {
		return nil, false
	}
	b, ok := mc.blocks[other]
	if !ok {
		return nil, false
	}

	var path []*chaintypes.Block
	for a.Hash != b.Hash {
		if a.BlockNumber >= b.BlockNumber {
			path = append(path, a)
			next, ok := mc.blocks[a.PreviousHash]
			if !ok {
				return nil, false
			}
			a = next
		} else {
			next, ok := mc.blocks[b.PreviousHash]
			if !ok {
				return nil, false
			}
			b = next
		}
	}
	path = append(path, a) // the common ancestor itself

	if limit <= 0 || len(path) <= limit {
		return path, true
	}
	switch behaviour {
	case ReturnLeastRecent:
		return path[len(path)-limit:], true
	default: // ReturnMostRecent
		return path[:limit], true
	}
}

// TimeTravelStatus is TimeTravel's classification of start relative to the
// current heaviest branch.
type TimeTravelStatus int

const (
	HeaviestBranch TimeTravelStatus = iota
	SideBranch
	NotFound
)

// TimeTravelResult is TimeTravel's return value.
type TimeTravelResult struct {
	HeaviestHash        address.Digest
	HeaviestBlockNumber uint64
	Status              TimeTravelStatus
	Blocks              []*chaintypes.Block
}

// TimeTravel reports where start sits relative to the heaviest branch. If
// start is on it, Blocks holds every block after start up to and including
// the heaviest tip, oldest first.
func (mc *MainChain) TimeTravel(start address.Digest) TimeTravelResult {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	_, ok := mc.blocks[start]
	heaviestBlock := mc.blocks[mc.heaviest.Hash]
	result := TimeTravelResult{HeaviestHash: mc.heaviest.Hash}
	if heaviestBlock != nil {
		result.HeaviestBlockNumber = heaviestBlock.BlockNumber
	}
	if !ok {
		result.Status = NotFound
		return result
	}

	var onHeaviest []*chaintypes.Block
	cur := heaviestBlock
	for cur != nil && cur.Hash != start {
		onHeaviest = append(onHeaviest, cur)
		if cur.Hash == mc.genesis {
			cur = nil
			break
		}
		cur = mc.blocks[cur.PreviousHash]
	}
	if cur == nil || cur.Hash != start {
		result.Status = SideBranch
		return result
	}

	// reverse onHeaviest so it reads oldest-first, excluding start itself.
	for i, j := 0, len(onHeaviest)-1; i < j; i, j = i+1, j-1 {
		onHeaviest[i], onHeaviest[j] = onHeaviest[j], onHeaviest[i]
	}
	result.Status = HeaviestBranch
	result.Blocks = onHeaviest
	return result
}

// GetCommonSubChain is the RPC-facing convenience wrapper spec.md §6
// exposes over GetPathToCommonAncestor: the portion of the path closest to
// start, since a syncing peer cares about catching start up to the tip it
// is behind on, not the oldest shared history.
func (mc *MainChain) GetCommonSubChain(start, lastSeen address.Digest, limit int) []*chaintypes.Block {
	path, ok := mc.GetPathToCommonAncestor(start, lastSeen, limit, ReturnMostRecent)
	if !ok {
		return nil
	}
	return path
}

// StripAlreadySeenTx walks back from startingHash, removing from container
// any transaction whose digest appears in any block's slice along the way.
func (mc *MainChain) StripAlreadySeenTx(startingHash address.Digest, container []chaintypes.TransactionLayout) []chaintypes.TransactionLayout {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	seen := map[address.Digest]struct{}{}
	for cur, ok := mc.blocks[startingHash]; ok; {
		for _, slice := range cur.Slices {
			for _, tx := range slice {
				seen[tx.Digest] = struct{}{}
			}
		}
		if cur.Hash == mc.genesis {
			break
		}
		cur, ok = mc.blocks[cur.PreviousHash]
	}

	out := container[:0:0]
	for _, tx := range container {
		if _, dup := seen[tx.Digest]; !dup {
			out = append(out, tx)
		}
	}
	return out
}
